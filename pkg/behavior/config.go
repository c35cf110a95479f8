package behavior

// Window sizes and thresholds for the pattern detectors. These are fixed
// tuning constants carried over from field calibration, not derived values.
const (
	PacingWindow = 30 // samples inspected for direction reversals
	PacingWeight = 15 // score per reversal

	ApproachWindow = 50 // samples inspected for advance-then-retreat peaks
	ApproachSpan   = 5  // samples before/after a peak
	ApproachWeight = 20 // score per peak

	LoiterMinSamples = 30
	LoiterWindow     = 60
	LoiterMinValid   = 10

	SuddenWindow     = 10
	SuddenMinValid   = 5
	SuddenMinAvgStep = 5.0 // pixels; below this the subject is near-stationary
)

// Config sizes the behavior history.
type Config struct {
	MemorySeconds int `koanf:"memory_seconds" validate:"gte=1"`
	SampleRate    int `koanf:"sample_rate" validate:"gte=1"` // assumed frames per second
}

// DefaultConfig remembers ten seconds at 30 FPS.
func DefaultConfig() Config {
	return Config{
		MemorySeconds: 10,
		SampleRate:    30,
	}
}

// Capacity is the number of observations retained.
func (c Config) Capacity() int {
	return c.MemorySeconds * c.SampleRate
}
