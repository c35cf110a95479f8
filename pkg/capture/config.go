// Package capture reads frames from a camera device or a video file with
// OpenCV and converts them for the analysis core.
package capture

import "strconv"

// Config selects the video source.
type Config struct {
	// Source is a device index ("0") or a file path / stream URL.
	Source string `koanf:"source" validate:"required"`

	// Requested resolution for devices. Zero keeps the device default.
	// Files always play at their native size.
	Width  int `koanf:"width" validate:"gte=0"`
	Height int `koanf:"height" validate:"gte=0"`

	// Loop restarts a file source at EOF instead of closing.
	Loop bool `koanf:"loop"`
}

// DefaultConfig opens the first camera at 640x480.
func DefaultConfig() Config {
	return Config{
		Source: "0",
		Width:  640,
		Height: 480,
	}
}

// Device reports whether Source names a camera index, and which.
func (c Config) Device() (int, bool) {
	id, err := strconv.Atoi(c.Source)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Source == "" {
		errors = append(errors, "source must name a device index or a file")
	}
	if (c.Width == 0) != (c.Height == 0) {
		errors = append(errors, "width and height must be set together")
	}
	if _, ok := c.Device(); !ok && (c.Width != 0 || c.Height != 0) {
		errors = append(errors, "width and height only apply to camera devices")
	}
	if _, ok := c.Device(); ok && c.Loop {
		errors = append(errors, "loop only applies to file sources")
	}

	return errors
}
