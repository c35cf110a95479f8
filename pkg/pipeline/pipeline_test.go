package pipeline

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/teslashibe/go-intent/pkg/alert"
	"github.com/teslashibe/go-intent/pkg/frame"
	"github.com/teslashibe/go-intent/pkg/frame/frametest"
	"github.com/teslashibe/go-intent/pkg/perimeter"
)

type fakeFrame struct {
	gray *frame.Gray
	at   time.Time
}

func (f fakeFrame) Intensity() *frame.Gray { return f.gray }
func (f fakeFrame) Time() time.Time        { return f.at }

// scripted returns positions in order, then absent.
type scripted struct {
	positions []perimeter.Position
	errs      map[int]error
	calls     int
}

func (s *scripted) Locate(fakeFrame) (perimeter.Position, error) {
	i := s.calls
	s.calls++
	if err, ok := s.errs[i]; ok {
		return perimeter.Absent, err
	}
	if i < len(s.positions) {
		return s.positions[i], nil
	}
	return perimeter.Absent, nil
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestPipeline(d Detector[fakeFrame], opts ...Option[fakeFrame]) *Pipeline[fakeFrame] {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option[fakeFrame]{WithLogger[fakeFrame](quiet)}, opts...)
	return New(DefaultConfig(), d, perimeter.New(640, 480, perimeter.DefaultBands()), opts...)
}

// frameAt returns a full-range frame whose content shifts with i, so every
// frame is unique and the feed stays trusted.
func frameAt(i int) fakeFrame {
	return fakeFrame{
		gray: frametest.Ramp(32, 24, i),
		at:   epoch.Add(time.Duration(i) * time.Second / 30),
	}
}

// pacer alternates around x=100 deep inside the intrusion band.
func pacer(n int) []perimeter.Position {
	out := make([]perimeter.Position, n)
	for i := range out {
		x := 95.0
		if i%2 == 1 {
			x = 105
		}
		out[i] = perimeter.At(x, 460)
	}
	return out
}

func TestProcess_ClassifiesAndScores(t *testing.T) {
	d := &scripted{positions: []perimeter.Position{perimeter.At(320, 350)}}
	p := newTestPipeline(d)

	r, err := p.Process(frameAt(0))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if r.Zone != perimeter.Danger {
		t.Errorf("zone = %v, want DANGER", r.Zone)
	}
	if r.Distance != 27 {
		t.Errorf("distance = %d, want 27", r.Distance)
	}
	if r.Trust.OverallTrust != 100 || !r.Trusted {
		t.Errorf("trust = %+v, want 100 and trusted", r.Trust)
	}
	if r.Risk != 0 || r.Alerting {
		t.Errorf("got risk %d alerting %v, want 0 false", r.Risk, r.Alerting)
	}
	if r.Seq != 1 {
		t.Errorf("seq = %d, want 1", r.Seq)
	}
	if !r.Timestamp.Equal(epoch) {
		t.Errorf("timestamp = %v, want %v", r.Timestamp, epoch)
	}
}

func TestProcess_DetectorErrorIsAbsent(t *testing.T) {
	d := &scripted{
		positions: []perimeter.Position{perimeter.At(10, 10), perimeter.At(10, 10)},
		errs:      map[int]error{1: errors.New("inference failed")},
	}
	p := newTestPipeline(d)

	if _, err := p.Process(frameAt(0)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	r, err := p.Process(frameAt(1))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if r.Position.Present() || r.Zone != perimeter.Unknown {
		t.Errorf("got (%v, %v), want (absent, UNKNOWN)", r.Position, r.Zone)
	}
	if r.Distance != 100 {
		t.Errorf("distance = %d, want 100", r.Distance)
	}

	stats := p.Stats()
	if stats.Frames != 2 || stats.Detections != 1 {
		t.Errorf("stats = %+v, want 2 frames 1 detection", stats)
	}
	if p.behavior.Len() != 2 {
		t.Errorf("history length = %d, want 2", p.behavior.Len())
	}
}

func TestProcess_NonFinitePositionIsDiscarded(t *testing.T) {
	nan := perimeter.At(0, 0)
	nan.X = nan.X / zero()
	d := DetectorFunc[fakeFrame](func(fakeFrame) (perimeter.Position, error) {
		return nan, nil
	})
	p := newTestPipeline(d)

	r, err := p.Process(frameAt(0))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if r.Position.Present() {
		t.Errorf("position = %v, want absent", r.Position)
	}
	if p.behavior.Len() != 1 {
		t.Errorf("history length = %d, want 1", p.behavior.Len())
	}
}

func zero() float64 { return 0 }

func TestProcess_EmptyFrame(t *testing.T) {
	p := newTestPipeline(&scripted{})

	_, err := p.Process(fakeFrame{gray: &frame.Gray{}})
	if !errors.Is(err, frame.ErrEmptyFrame) {
		t.Fatalf("got %v, want ErrEmptyFrame", err)
	}
	if p.Stats().Frames != 0 {
		t.Errorf("frames = %d, want 0", p.Stats().Frames)
	}
}

func TestProcess_AlertLifecycle(t *testing.T) {
	clock := epoch
	d := &scripted{positions: pacer(30)}
	var events []alert.Event
	sink := SinkFunc[fakeFrame](func(_ fakeFrame, r Result) {
		if r.Event != nil {
			events = append(events, *r.Event)
		}
	})
	p := newTestPipeline(d, WithSinks(Sink[fakeFrame](sink)), WithClock[fakeFrame](func() time.Time { return clock }))

	for i := 0; i < 29; i++ {
		r, _ := p.Process(frameAt(i))
		if r.Risk != 0 {
			t.Fatalf("frame %d: risk = %d, want 0 before the windows fill", i, r.Risk)
		}
	}

	r, _ := p.Process(frameAt(29))
	if r.Behavior.OverallSuspicion != 48 {
		t.Errorf("suspicion = %d, want 48", r.Behavior.OverallSuspicion)
	}
	if r.Risk != 96 || !r.Alerting {
		t.Fatalf("got risk %d alerting %v, want 96 true", r.Risk, r.Alerting)
	}

	clock = clock.Add(4 * time.Second)
	r, _ = p.Process(frameAt(30))
	if r.Alerting {
		t.Errorf("alert should clear once the subject leaves, risk %d", r.Risk)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != alert.Entered || events[1].Kind != alert.Exited {
		t.Errorf("events = %v, %v, want entered, exited", events[0].Kind, events[1].Kind)
	}
	if events[1].Duration != 4*time.Second {
		t.Errorf("duration = %v, want 4s", events[1].Duration)
	}
	if p.Stats().Alerts != 1 {
		t.Errorf("alerts = %d, want 1", p.Stats().Alerts)
	}
}

func TestRequestReset_AppliesAtNextCycle(t *testing.T) {
	p := newTestPipeline(&scripted{positions: pacer(10)})
	for i := 0; i < 10; i++ {
		p.Process(frameAt(i))
	}

	p.RequestReset()
	if p.behavior.Len() != 10 {
		t.Fatalf("reset applied early: length %d", p.behavior.Len())
	}

	p.Process(frameAt(10))
	if p.behavior.Len() != 1 {
		t.Errorf("history length = %d, want 1", p.behavior.Len())
	}
	if p.trust.Streak() != 0 {
		t.Errorf("streak = %d, want 0", p.trust.Streak())
	}
	if p.Stats().Frames != 11 {
		t.Errorf("frames = %d, want 11 (session stats survive reset)", p.Stats().Frames)
	}
}

// eventLog collects every alert event the sinks see.
type eventLog struct {
	events  []alert.Event
	results []Result
}

func (l *eventLog) Consume(_ fakeFrame, r Result) {
	if r.Event != nil {
		l.events = append(l.events, *r.Event)
		l.results = append(l.results, r)
	}
}

// alertingPipeline drives a pacer into an alert and returns the pipeline
// with its clock and event log.
func alertingPipeline(t *testing.T, frames int) (*Pipeline[fakeFrame], *time.Time, *eventLog) {
	t.Helper()
	clock := epoch
	log := &eventLog{}
	p := newTestPipeline(&scripted{positions: pacer(frames)},
		WithSinks[fakeFrame](log),
		WithClock[fakeFrame](func() time.Time { return clock }),
	)
	for i := 0; i < 30; i++ {
		p.Process(frameAt(i))
	}
	if !p.Latest().Alerting || len(log.events) != 1 {
		t.Fatalf("setup: alerting %v with %d events, want true with 1", p.Latest().Alerting, len(log.events))
	}
	return p, &clock, log
}

func TestRequestReset_ClosesActiveAlert(t *testing.T) {
	p, clock, log := alertingPipeline(t, 40)

	*clock = clock.Add(3 * time.Second)
	p.RequestReset()
	r, err := p.Process(frameAt(30))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if r.Alerting {
		t.Error("alert should be over after a reset")
	}
	if r.Event == nil || r.Event.Kind != alert.Exited {
		t.Fatalf("event = %+v, want exited on the reset cycle", r.Event)
	}
	if len(log.events) != 2 {
		t.Fatalf("got %d events, want 2", len(log.events))
	}
	if log.events[0].Kind != alert.Entered || log.events[1].Kind != alert.Exited {
		t.Errorf("events = %v, %v, want entered, exited", log.events[0].Kind, log.events[1].Kind)
	}
	if log.events[1].ID != log.events[0].ID {
		t.Errorf("exit id %q should match entry id %q", log.events[1].ID, log.events[0].ID)
	}
	if log.events[1].Duration != 3*time.Second {
		t.Errorf("duration = %v, want 3s", log.events[1].Duration)
	}
	if p.Stats().Alerts != 1 {
		t.Errorf("alerts = %d, want 1", p.Stats().Alerts)
	}

	p.Process(frameAt(31))
	if len(log.events) != 2 {
		t.Errorf("exit reported more than once: %d events", len(log.events))
	}
}

func TestRequestReset_ExitPrecedesNewEntry(t *testing.T) {
	// A zero enter threshold alerts on every cycle, so the reset cycle both
	// closes the old episode and opens a new one.
	cfg := DefaultConfig()
	cfg.Alert = alert.Thresholds{Enter: 0, Exit: -1}
	log := &eventLog{}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(cfg, &scripted{}, perimeter.New(640, 480, perimeter.DefaultBands()),
		WithLogger[fakeFrame](quiet), WithSinks[fakeFrame](log))

	p.Process(frameAt(0))
	p.RequestReset()
	r, _ := p.Process(frameAt(1))

	if len(log.events) != 3 {
		t.Fatalf("got %d events, want 3", len(log.events))
	}
	kinds := []alert.Transition{log.events[0].Kind, log.events[1].Kind, log.events[2].Kind}
	if kinds[0] != alert.Entered || kinds[1] != alert.Exited || kinds[2] != alert.Entered {
		t.Errorf("events = %v, want entered, exited, entered", kinds)
	}
	if log.events[1].ID != log.events[0].ID || log.events[2].ID == log.events[0].ID {
		t.Error("the exit should close the first episode and the re-entry start a new one")
	}
	if log.results[1].Alerting || !log.results[2].Alerting {
		t.Error("only the re-entry result should be alerting")
	}
	if log.results[1].Seq+1 != log.results[2].Seq || r.Seq != log.results[2].Seq {
		t.Errorf("exit seq %d, entry seq %d, returned seq %d", log.results[1].Seq, log.results[2].Seq, r.Seq)
	}
	if p.Stats().Frames != 2 || p.Stats().Alerts != 2 {
		t.Errorf("stats = %+v, want 2 frames 2 alerts", p.Stats())
	}
}

func TestFinish_ClosesActiveAlert(t *testing.T) {
	p, clock, log := alertingPipeline(t, 40)

	*clock = clock.Add(2 * time.Second)
	r, ok := p.Finish()
	if !ok {
		t.Fatal("Finish should report the open alert")
	}
	if r.Alerting || r.Event == nil || r.Event.Kind != alert.Exited {
		t.Fatalf("got alerting %v event %+v, want an exit", r.Alerting, r.Event)
	}
	if r.Event.Duration != 2*time.Second {
		t.Errorf("duration = %v, want 2s", r.Event.Duration)
	}
	if len(log.events) != 2 || log.events[1].Kind != alert.Exited {
		t.Errorf("sinks got %d events, want entered then exited", len(log.events))
	}
	if p.Latest().Alerting {
		t.Error("latest result should no longer be alerting")
	}

	if _, ok := p.Finish(); ok {
		t.Error("second Finish should find nothing open")
	}
}

func TestFinish_ReportsUndeliveredResetExit(t *testing.T) {
	p, _, log := alertingPipeline(t, 40)

	p.Reset()
	r, ok := p.Finish()
	if !ok || r.Event == nil || r.Event.Kind != alert.Exited {
		t.Fatalf("got (%+v, %v), want the exit closed by Reset", r.Event, ok)
	}
	if len(log.events) != 2 {
		t.Errorf("got %d events, want 2", len(log.events))
	}
}

func TestFinish_Idle(t *testing.T) {
	p := newTestPipeline(&scripted{})
	p.Process(frameAt(0))
	if _, ok := p.Finish(); ok {
		t.Error("Finish on an idle pipeline should report nothing")
	}
}

func TestProcess_EmptyFrameKeepsPendingReset(t *testing.T) {
	p := newTestPipeline(&scripted{positions: pacer(5)})
	for i := 0; i < 5; i++ {
		p.Process(frameAt(i))
	}

	p.RequestReset()
	p.Process(fakeFrame{gray: &frame.Gray{}})
	if p.behavior.Len() != 5 {
		t.Fatalf("history length = %d, want 5 after an empty frame", p.behavior.Len())
	}

	p.Process(frameAt(5))
	if p.behavior.Len() != 1 {
		t.Errorf("history length = %d, want 1 once the reset applies", p.behavior.Len())
	}
}

func TestLatest(t *testing.T) {
	p := newTestPipeline(&scripted{positions: []perimeter.Position{perimeter.At(1, 1)}})
	if p.Latest().Seq != 0 {
		t.Fatal("latest should be empty before the first cycle")
	}
	r, _ := p.Process(frameAt(0))
	if got := p.Latest(); got.Seq != r.Seq || got.Zone != perimeter.Safe {
		t.Errorf("Latest() = %+v, want seq %d SAFE", got, r.Seq)
	}
}
