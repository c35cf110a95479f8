// Package behavior scores a subject's recent movement around the perimeter
// for suspicious patterns: pacing, approach-then-retreat, loitering and
// sudden movement.
package behavior

import (
	"errors"
	"math"
	"time"

	"github.com/teslashibe/go-intent/pkg/history"
	"github.com/teslashibe/go-intent/pkg/perimeter"
)

// ErrNonFinitePosition is returned by Update for NaN or infinite coordinates.
var ErrNonFinitePosition = errors.New("behavior: position has non-finite coordinates")

// Observation is one recorded sample. It is never mutated after insertion.
type Observation struct {
	Position  perimeter.Position
	Zone      perimeter.Zone
	Timestamp time.Time
}

// Scores holds the sub-scores and the weighted composite, each in [0,100].
type Scores struct {
	Pacing           int `json:"pacing"`
	ApproachRetreat  int `json:"approach_retreat"`
	Loitering        int `json:"loitering"`
	SuddenMovement   int `json:"sudden_movement"`
	OverallSuspicion int `json:"overall_suspicion"`
}

// Analyzer owns the observation history. It is not safe for concurrent use;
// the pipeline drives it from a single goroutine.
type Analyzer struct {
	config  Config
	history *history.Ring[Observation]
	now     func() time.Time
}

// New creates an analyzer sized from cfg.
func New(cfg Config) *Analyzer {
	return &Analyzer{
		config:  cfg,
		history: history.New[Observation](cfg.Capacity()),
		now:     time.Now,
	}
}

// Update records an observation. A zero timestamp defaults to the current
// time. Non-finite coordinates are rejected and nothing is recorded.
func (a *Analyzer) Update(pos perimeter.Position, zone perimeter.Zone, ts time.Time) error {
	if pos.Present() && !pos.Finite() {
		return ErrNonFinitePosition
	}
	if ts.IsZero() {
		ts = a.now()
	}
	a.history.Push(Observation{Position: pos, Zone: zone, Timestamp: ts})
	return nil
}

// Len returns the number of stored observations.
func (a *Analyzer) Len() int {
	return a.history.Len()
}

// Summary recomputes every score from the current history.
func (a *Analyzer) Summary() Scores {
	s := Scores{
		Pacing:          a.Pacing(),
		ApproachRetreat: a.ApproachRetreat(),
		Loitering:       a.Loitering(),
		SuddenMovement:  a.SuddenMovement(),
	}
	s.OverallSuspicion = Composite(s)
	return s
}

// Reset clears all history.
func (a *Analyzer) Reset() {
	a.history.Clear()
}

// Composite weights the sub-scores 0.3/0.4/0.2/0.1 and floors the result.
func Composite(s Scores) int {
	v := float64(s.Pacing)*0.3 +
		float64(s.ApproachRetreat)*0.4 +
		float64(s.Loitering)*0.2 +
		float64(s.SuddenMovement)*0.1
	return clampScore(int(math.Floor(v)))
}

// Pacing counts horizontal direction reversals over the last PacingWindow
// samples. Any absent position in the window yields 0.
func (a *Analyzer) Pacing() int {
	if a.history.Len() < PacingWindow {
		return 0
	}

	recent := a.history.Recent(PacingWindow)
	xs := make([]float64, 0, len(recent))
	for _, o := range recent {
		if !o.Position.Present() {
			return 0
		}
		xs = append(xs, o.Position.X)
	}

	reversals := 0
	for i := 1; i < len(xs)-1; i++ {
		if (xs[i]-xs[i-1])*(xs[i+1]-xs[i]) < 0 {
			reversals++
		}
	}
	return min(100, reversals*PacingWeight)
}

// ApproachRetreat counts zone-severity peaks: samples at least Warning that
// are strictly more severe than every sample ApproachSpan before and after.
func (a *Analyzer) ApproachRetreat() int {
	if a.history.Len() < ApproachWindow {
		return 0
	}

	recent := a.history.Recent(ApproachWindow)
	sev := make([]int, len(recent))
	for i, o := range recent {
		sev[i] = o.Zone.Severity()
	}

	score := 0
	for i := ApproachSpan; i < len(sev)-ApproachSpan; i++ {
		if sev[i] < 1 {
			continue
		}
		if maxInt(sev[i-ApproachSpan:i]) < sev[i] && maxInt(sev[i+1:i+1+ApproachSpan]) < sev[i] {
			score += ApproachWeight
		}
	}
	return min(100, score)
}

// Loitering rewards low dispersion around the mean position of the valid
// samples among the last LoiterWindow.
func (a *Analyzer) Loitering() int {
	if a.history.Len() < LoiterMinSamples {
		return 0
	}

	valid := presentPositions(a.history.Recent(LoiterWindow))
	if len(valid) < LoiterMinValid {
		return 0
	}

	var sumX, sumY float64
	for _, p := range valid {
		sumX += p.X
		sumY += p.Y
	}
	center := perimeter.At(sumX/float64(len(valid)), sumY/float64(len(valid)))

	var sumDist float64
	for _, p := range valid {
		sumDist += p.Distance(center)
	}
	meanDist := sumDist / float64(len(valid))

	return clampScore(100 - int(meanDist*2))
}

// SuddenMovement compares the largest step over the last SuddenWindow samples
// with the mean step. Near-stationary subjects score 0.
func (a *Analyzer) SuddenMovement() int {
	if a.history.Len() < SuddenWindow {
		return 0
	}

	valid := presentPositions(a.history.Recent(SuddenWindow))
	if len(valid) < SuddenMinValid {
		return 0
	}

	steps := make([]float64, 0, len(valid)-1)
	for i := 1; i < len(valid); i++ {
		steps = append(steps, valid[i].Distance(valid[i-1]))
	}
	if len(steps) == 0 {
		return 0
	}

	var sum, maxStep float64
	for _, s := range steps {
		sum += s
		maxStep = math.Max(maxStep, s)
	}
	mean := sum / float64(len(steps))
	if mean < SuddenMinAvgStep {
		return 0
	}

	ratio := maxStep / (mean + 1)
	return clampScore(int((ratio - 1) * 30))
}

func presentPositions(obs []Observation) []perimeter.Position {
	out := make([]perimeter.Position, 0, len(obs))
	for _, o := range obs {
		if o.Position.Present() {
			out = append(out, o.Position)
		}
	}
	return out
}

// maxInt returns the largest value, or -1 for an empty slice.
func maxInt(vs []int) int {
	m := -1
	for _, v := range vs {
		if v > m {
			m = v
		}
	}
	return m
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
