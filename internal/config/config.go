// Package config loads the intent service configuration from built-in
// defaults, an optional YAML file and INTENT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/teslashibe/go-intent/pkg/alert"
	"github.com/teslashibe/go-intent/pkg/behavior"
	"github.com/teslashibe/go-intent/pkg/capture"
	"github.com/teslashibe/go-intent/pkg/detection"
	"github.com/teslashibe/go-intent/pkg/journal"
	"github.com/teslashibe/go-intent/pkg/perimeter"
	"github.com/teslashibe/go-intent/pkg/pipeline"
	"github.com/teslashibe/go-intent/pkg/publish"
	"github.com/teslashibe/go-intent/pkg/record"
	"github.com/teslashibe/go-intent/pkg/trust"
	"github.com/teslashibe/go-intent/pkg/web"
)

// LogConfig selects the log level.
type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn warning error"`
}

// Config is the full service configuration.
type Config struct {
	Log       LogConfig        `koanf:"log"`
	Capture   capture.Config   `koanf:"capture"`
	Detector  detection.Config `koanf:"detector"`
	Perimeter perimeter.Bands  `koanf:"perimeter"`
	Behavior  behavior.Config  `koanf:"behavior"`
	Trust     trust.Config     `koanf:"trust"`
	Alert     alert.Thresholds `koanf:"alert"`
	Record    record.Config    `koanf:"record"`
	Journal   journal.Config   `koanf:"journal"`
	Redis     publish.Config   `koanf:"redis"`
	Web       web.Config       `koanf:"web"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Log:       LogConfig{Level: "info"},
		Capture:   capture.DefaultConfig(),
		Detector:  detection.DefaultConfig(),
		Perimeter: perimeter.DefaultBands(),
		Behavior:  behavior.DefaultConfig(),
		Trust:     trust.DefaultConfig(),
		Alert:     alert.DefaultThresholds(),
		Record:    record.DefaultConfig(),
		Journal:   journal.DefaultConfig(),
		Redis:     publish.DefaultConfig(),
		Web:       web.DefaultConfig(),
	}
}

// Pipeline extracts the analysis core settings.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Behavior: c.Behavior,
		Trust:    c.Trust,
		Alert:    c.Alert,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges, then the relationships between fields that
// tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := c.Alert.Validate(); err != nil {
		return err
	}

	b := c.Perimeter
	if !(b.SafeLine < b.WarningLine && b.WarningLine < b.DangerLine) {
		return fmt.Errorf("invalid config: perimeter lines must increase (safe %.2f, warning %.2f, danger %.2f)",
			b.SafeLine, b.WarningLine, b.DangerLine)
	}

	if problems := c.Capture.Validate(); len(problems) > 0 {
		return fmt.Errorf("invalid config: capture: %s", strings.Join(problems, "; "))
	}

	if c.Detector.Kind == "yolo" && c.Detector.ModelPath == "" {
		return errors.New("invalid config: detector.model_path is required for yolo")
	}

	return nil
}
