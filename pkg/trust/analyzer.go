// Package trust estimates whether a video feed is live: not frozen, looped
// or synthetically static. Trust is a heuristic signal, not authentication.
package trust

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/teslashibe/go-intent/pkg/frame"
	"github.com/teslashibe/go-intent/pkg/history"
)

// Sample holds the values derived from one frame.
type Sample struct {
	Fingerprint uint64
	Entropy     float64
	Motion      float64
}

// Scores holds the sub-scores and weighted composite, each in [0,100].
type Scores struct {
	Liveness     int `json:"liveness"`
	Entropy      int `json:"entropy"`
	Motion       int `json:"motion"`
	OverallTrust int `json:"overall_trust"`
}

// Full is the score set reported before any frame has been seen.
var Full = Scores{Liveness: 100, Entropy: 100, Motion: 100, OverallTrust: 100}

// Trustworthy reports whether the composite meets threshold.
func Trustworthy(s Scores, threshold int) bool {
	return s.OverallTrust >= threshold
}

// Analyzer owns the frame history, the previous frame and the repeat streak.
// It is not safe for concurrent use.
type Analyzer struct {
	config Config

	samples *history.Ring[Sample]
	last    *frame.Gray
	streak  int
}

// New creates an analyzer sized from cfg.
func New(cfg Config) *Analyzer {
	return &Analyzer{
		config:  cfg,
		samples: history.New[Sample](cfg.HistoryFrames),
	}
}

// Score ingests one frame and returns the updated trust scores.
func (a *Analyzer) Score(g *frame.Gray) Scores {
	sample := Sample{
		Fingerprint: Fingerprint(g),
		Entropy:     Entropy(g),
		Motion:      a.motion(g),
	}

	liveness := a.liveness(sample.Fingerprint)
	a.samples.Push(sample)

	s := Scores{
		Liveness: liveness,
		Entropy:  EntropyScore(sample.Entropy),
		Motion:   a.motionScore(),
	}
	s.OverallTrust = Composite(s)
	return s
}

// Trustworthy applies the configured threshold to s.
func (a *Analyzer) Trustworthy(s Scores) bool {
	return Trustworthy(s, a.config.Threshold)
}

// Streak returns the current repeated-frame streak.
func (a *Analyzer) Streak() int {
	return a.streak
}

// Reset clears the history, the previous frame and the streak.
func (a *Analyzer) Reset() {
	a.samples.Clear()
	a.last = nil
	a.streak = 0
}

// liveness updates the repeat streak against the recent fingerprints. The
// streak only decays one step per fresh frame.
func (a *Analyzer) liveness(fp uint64) int {
	repeated := false
	for _, s := range a.samples.Recent(RepeatLookback) {
		if s.Fingerprint == fp {
			repeated = true
			break
		}
	}

	if repeated {
		a.streak++
	} else if a.streak > 0 {
		a.streak--
	}

	if a.streak > RepeatStreakLimit {
		return max(0, 100-a.streak*10)
	}
	return 100
}

// motion returns the mean absolute difference from the previous frame and
// then replaces it. The first frame has no motion.
func (a *Analyzer) motion(g *frame.Gray) float64 {
	prev := a.last
	a.last = g.Clone()
	if prev == nil {
		return 0
	}
	return g.MeanAbsDiff(prev)
}

func (a *Analyzer) motionScore() int {
	if a.samples.Len() < MotionWindow {
		return 100
	}

	recent := a.samples.Recent(MotionWindow)
	var sum float64
	for _, s := range recent {
		sum += s.Motion
	}
	mean := sum / float64(len(recent))

	var sq float64
	for _, s := range recent {
		d := s.Motion - mean
		sq += d * d
	}
	variance := sq / float64(len(recent))

	switch {
	case variance < 0.1 && mean < 0.5:
		return 30
	case variance < 1.0:
		return 60
	default:
		return 100
	}
}

// Fingerprint hashes a coarse thumbnail of the frame. Visually distinct frames
// that downscale identically collide; that approximation is accepted.
func Fingerprint(g *frame.Gray) uint64 {
	thumb := g.Resize(FingerprintSize, FingerprintSize)
	d := xxhash.New()
	var dims [8]byte
	binary.LittleEndian.PutUint32(dims[:4], uint32(thumb.Width))
	binary.LittleEndian.PutUint32(dims[4:], uint32(thumb.Height))
	_, _ = d.Write(dims[:])
	_, _ = d.Write(thumb.Pix)
	return d.Sum64()
}

// Entropy returns the Shannon entropy in bits of the intensity histogram.
func Entropy(g *frame.Gray) float64 {
	hist := g.Histogram()
	total := float64(len(g.Pix)) + entropyEpsilon

	var e float64
	for _, n := range hist {
		p := float64(n) / total
		e -= p * math.Log2(p+entropyEpsilon)
	}
	return e
}

// EntropyScore maps entropy to a score: flat frames score low, the normal
// [4.0, 8.5] range scores 100 and anything above is penalised.
func EntropyScore(e float64) int {
	switch {
	case e < 4.0:
		return clampScore(int(e * 25))
	case e > 8.5:
		return clampScore(100 - int((e-8.5)*20))
	default:
		return 100
	}
}

// Composite weights liveness 0.5, entropy 0.3 and motion 0.2 and floors the result.
func Composite(s Scores) int {
	v := float64(s.Liveness)*0.5 + float64(s.Entropy)*0.3 + float64(s.Motion)*0.2
	return clampScore(int(math.Floor(v)))
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
