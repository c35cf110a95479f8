// Package pipeline runs one processing cycle per frame: feed trust, subject
// detection, zone classification, behaviour analysis, risk fusion and the
// alert machine, in that order, then hands the result to sinks.
package pipeline

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-intent/pkg/alert"
	"github.com/teslashibe/go-intent/pkg/behavior"
	"github.com/teslashibe/go-intent/pkg/frame"
	"github.com/teslashibe/go-intent/pkg/perimeter"
	"github.com/teslashibe/go-intent/pkg/risk"
	"github.com/teslashibe/go-intent/pkg/trust"
)

// Frame is one captured image as seen by the core.
type Frame interface {
	Intensity() *frame.Gray
	Time() time.Time
}

// Detector locates the tracked subject. A nil error with an absent position
// means nobody was found.
type Detector[F Frame] interface {
	Locate(f F) (perimeter.Position, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc[F Frame] func(f F) (perimeter.Position, error)

// Locate calls fn(f).
func (fn DetectorFunc[F]) Locate(f F) (perimeter.Position, error) {
	return fn(f)
}

// ZoneClassifier maps a position to a zone. Absent positions must map to
// perimeter.Unknown.
type ZoneClassifier interface {
	Classify(pos perimeter.Position) perimeter.Zone
}

// Sink receives every cycle's result with the frame it came from. Sinks run
// synchronously after the core has decided.
type Sink[F Frame] interface {
	Consume(f F, r Result)
}

// SinkFunc adapts a function to Sink.
type SinkFunc[F Frame] func(f F, r Result)

// Consume calls fn(f, r).
func (fn SinkFunc[F]) Consume(f F, r Result) {
	fn(f, r)
}

// Config is the constructor-time configuration of the core.
type Config struct {
	Behavior behavior.Config
	Trust    trust.Config
	Alert    alert.Thresholds
}

// DefaultConfig returns the stock window sizes and thresholds.
func DefaultConfig() Config {
	return Config{
		Behavior: behavior.DefaultConfig(),
		Trust:    trust.DefaultConfig(),
		Alert:    alert.DefaultThresholds(),
	}
}

// Result is everything decided in one cycle.
type Result struct {
	Seq       uint64             `json:"seq"`
	Timestamp time.Time          `json:"timestamp"`
	Position  perimeter.Position `json:"position"`
	Zone      perimeter.Zone     `json:"zone"`
	Distance  int                `json:"distance_to_perimeter"`
	Behavior  behavior.Scores    `json:"behavior"`
	Trust     trust.Scores       `json:"trust"`
	Trusted   bool               `json:"trusted"`
	Risk      int                `json:"intent_risk"`
	Level     risk.Level         `json:"risk_level"`
	Alerting  bool               `json:"alerting"`
	Event     *alert.Event       `json:"event,omitempty"`
	Latency   time.Duration      `json:"latency"`
}

// Stats summarises a session.
type Stats struct {
	Frames     uint64    `json:"frames"`
	Detections uint64    `json:"detections"`
	Alerts     int       `json:"alerts"`
	StartedAt  time.Time `json:"started_at"`
}

// Elapsed returns the session length as of now.
func (s Stats) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

// Pipeline owns both analyzers and the alert machine. Process, Reset and
// Finish must be called from a single goroutine; Latest, Stats and
// RequestReset may be called from anywhere.
type Pipeline[F Frame] struct {
	config Config
	logger *slog.Logger

	detector Detector[F]
	zones    ZoneClassifier
	sinks    []Sink[F]

	behavior *behavior.Analyzer
	trust    *trust.Analyzer
	alerts   *alert.Machine
	now      func() time.Time

	resetPending atomic.Bool
	closing      *alert.Event

	mu     sync.RWMutex
	stats  Stats
	latest Result
	seq    uint64
}

// Option configures a Pipeline.
type Option[F Frame] func(*Pipeline[F])

// WithLogger sets the logger. The default is slog.Default().
func WithLogger[F Frame](l *slog.Logger) Option[F] {
	return func(p *Pipeline[F]) { p.logger = l }
}

// WithSinks appends result sinks.
func WithSinks[F Frame](sinks ...Sink[F]) Option[F] {
	return func(p *Pipeline[F]) { p.sinks = append(p.sinks, sinks...) }
}

// WithClock replaces the wall clock used for default timestamps and alert
// durations.
func WithClock[F Frame](now func() time.Time) Option[F] {
	return func(p *Pipeline[F]) { p.now = now }
}

// New wires a pipeline around a detector and a zone classifier.
func New[F Frame](cfg Config, detector Detector[F], zones ZoneClassifier, opts ...Option[F]) *Pipeline[F] {
	p := &Pipeline[F]{
		config:   cfg,
		logger:   slog.Default(),
		detector: detector,
		zones:    zones,
		behavior: behavior.New(cfg.Behavior),
		trust:    trust.New(cfg.Trust),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.alerts = alert.NewMachine(cfg.Alert).WithClock(p.now)
	p.stats.StartedAt = p.now()
	return p
}

// AddSink registers a sink. Not safe to call concurrently with Process.
func (p *Pipeline[F]) AddSink(s Sink[F]) {
	p.sinks = append(p.sinks, s)
}

// Process runs one cycle. An empty frame is rejected with frame.ErrEmptyFrame
// and leaves all state untouched, including a pending reset.
func (p *Pipeline[F]) Process(f F) (Result, error) {
	g := f.Intensity()
	if g == nil || len(g.Pix) == 0 {
		return Result{}, frame.ErrEmptyFrame
	}

	if p.resetPending.Swap(false) {
		p.Reset()
	}

	start := time.Now()
	ts := f.Time()
	if ts.IsZero() {
		ts = p.now()
	}

	trustScores := p.trust.Score(g)

	pos, err := p.detector.Locate(f)
	if err != nil {
		p.logger.Warn("detector failed", "error", err)
		pos = perimeter.Absent
	}
	zone := p.zones.Classify(pos)

	if err := p.behavior.Update(pos, zone, ts); err != nil {
		p.logger.Warn("discarding position", "position", pos, "error", err)
		pos, zone = perimeter.Absent, perimeter.Unknown
		_ = p.behavior.Update(pos, zone, ts)
	}
	scores := p.behavior.Summary()

	assessment := risk.Assess(scores.OverallSuspicion, zone, trustScores.OverallTrust)

	r := Result{
		Timestamp: ts,
		Position:  pos,
		Zone:      zone,
		Distance:  distance(p.zones, pos),
		Behavior:  scores,
		Trust:     trustScores,
		Trusted:   p.trust.Trustworthy(trustScores),
		Risk:      assessment.Score,
		Level:     assessment.Level,
	}

	ev, changed := p.alerts.Observe(r.Risk)
	if closing := p.closing; closing != nil {
		p.closing = nil
		if changed {
			// A reset closed one episode and this cycle opened the next:
			// sinks see the exit on its own result first.
			prev := r
			prev.Event = closing
			prev.Latency = time.Since(start)
			p.emit(f, prev)
		} else {
			r.Event = closing
		}
	}
	if changed {
		r.Event = &ev
		p.logEvent(ev)
	}
	r.Alerting = p.alerts.Active()
	r.Latency = time.Since(start)

	p.mu.Lock()
	p.stats.Frames++
	if pos.Present() {
		p.stats.Detections++
	}
	p.mu.Unlock()

	r = p.emit(f, r)

	p.logger.Debug("cycle",
		"seq", r.Seq,
		"zone", zone,
		"behavior", scores.OverallSuspicion,
		"trust", trustScores.OverallTrust,
		"risk", r.Risk,
	)
	return r, nil
}

// emit numbers r, records it as the latest result and hands it to the sinks.
func (p *Pipeline[F]) emit(f F, r Result) Result {
	p.mu.Lock()
	p.seq++
	r.Seq = p.seq
	if r.Event != nil && r.Event.Kind == alert.Entered {
		p.stats.Alerts++
	}
	p.latest = r
	p.mu.Unlock()

	for _, s := range p.sinks {
		s.Consume(f, r)
	}
	return r
}

// Finish closes the alert in progress, or one closed by a reset that no
// cycle has reported yet, and hands its Exited event to the sinks with the
// zero frame. The result repeats the last cycle's readings. It is meant for shutdown; ok is false when no alert was open.
func (p *Pipeline[F]) Finish() (r Result, ok bool) {
	ev, ok := p.alerts.Close()
	switch {
	case ok:
		p.logEvent(ev)
	case p.closing != nil:
		ev, ok = *p.closing, true
	default:
		return Result{}, false
	}
	p.closing = nil

	r = p.Latest()
	if r.Timestamp.IsZero() {
		r.Timestamp = p.now()
	}
	r.Event = &ev
	r.Alerting = false
	r.Latency = 0

	var zero F
	return p.emit(zero, r), true
}

func (p *Pipeline[F]) logEvent(ev alert.Event) {
	switch ev.Kind {
	case alert.Entered:
		p.logger.Warn("intent alert raised", "risk", ev.Risk, "count", ev.Count)
	case alert.Exited:
		p.logger.Info("intent alert cleared",
			"duration", ev.Duration.Round(100*time.Millisecond),
			"peak_risk", ev.PeakRisk,
		)
	}
}

// distance uses the classifier's distance-to-perimeter when it provides one.
func distance(zones ZoneClassifier, pos perimeter.Position) int {
	if d, ok := zones.(interface {
		DistanceToPerimeter(perimeter.Position) int
	}); ok {
		return d.DistanceToPerimeter(pos)
	}
	return 0
}

// Reset clears both analyzers and the alert machine. It must be called
// between cycles from the goroutine running Process; other goroutines use
// RequestReset. An alert in progress is closed and its Exited event is
// reported with the next cycle's result. Session stats are kept.
func (p *Pipeline[F]) Reset() {
	p.behavior.Reset()
	p.trust.Reset()
	if ev, ok := p.alerts.Reset(); ok {
		p.closing = &ev
		p.logEvent(ev)
	}

	p.mu.Lock()
	p.latest = Result{}
	p.mu.Unlock()

	p.logger.Info("analyzers reset")
}

// RequestReset schedules a Reset at the start of the next cycle.
func (p *Pipeline[F]) RequestReset() {
	p.resetPending.Store(true)
}

// Latest returns the most recent result.
func (p *Pipeline[F]) Latest() Result {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Stats returns the session statistics.
func (p *Pipeline[F]) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline[F]) Config() Config {
	return p.config
}
