package trust

// Fixed detector constants.
const (
	FingerprintSize   = 32 // thumbnail edge used for repeat detection
	RepeatLookback    = 10 // recent fingerprints compared against
	RepeatStreakLimit = 5  // streaks above this reduce liveness
	MotionWindow      = 10 // motion samples needed before scoring

	entropyEpsilon = 1e-7
)

// Config sizes the frame history and sets the trust threshold.
type Config struct {
	HistoryFrames int `koanf:"history_frames" validate:"gte=10"`
	Threshold     int `koanf:"threshold" validate:"gte=0,lte=100"`
}

// DefaultConfig remembers 30 frames and trusts feeds scoring 70 or more.
func DefaultConfig() Config {
	return Config{
		HistoryFrames: 30,
		Threshold:     70,
	}
}
