package alert

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestStep(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name      string
		state     State
		risk      int
		wantState State
		wantTr    Transition
	}{
		{"idle below enter", Idle, 74, Idle, None},
		{"idle at enter", Idle, 75, Alerting, Entered},
		{"idle inside band", Idle, 65, Idle, None},
		{"alerting above enter", Alerting, 90, Alerting, None},
		{"alerting inside band", Alerting, 60, Alerting, None},
		{"alerting below exit", Alerting, 59, Idle, Exited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, tr := Step(tt.state, tt.risk, th)
			if s != tt.wantState || tr != tt.wantTr {
				t.Errorf("Step(%v, %d) = (%v, %v), want (%v, %v)", tt.state, tt.risk, s, tr, tt.wantState, tt.wantTr)
			}
		})
	}
}

func TestStep_HysteresisSequence(t *testing.T) {
	risks := []int{70, 76, 78, 65, 58, 80}
	want := []Transition{None, Entered, None, None, Exited, Entered}

	s := Idle
	for i, r := range risks {
		var tr Transition
		s, tr = Step(s, r, DefaultThresholds())
		if tr != want[i] {
			t.Errorf("index %d (risk %d): got %v, want %v", i, r, tr, want[i])
		}
	}
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestMachine_Episode(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	m := NewMachine(DefaultThresholds()).WithClock(clock.now)
	start := clock.t

	ev, ok := m.Observe(80)
	if !ok || ev.Kind != Entered {
		t.Fatalf("got (%+v, %v), want Entered", ev, ok)
	}
	if ev.Count != 1 || !ev.StartedAt.Equal(start) {
		t.Errorf("got count %d start %v, want 1 %v", ev.Count, ev.StartedAt, start)
	}
	if !m.Active() {
		t.Error("machine should be active")
	}
	entered := ev

	clock.t = clock.t.Add(2 * time.Second)
	if _, ok := m.Observe(95); ok {
		t.Error("no transition expected while alerting")
	}

	clock.t = clock.t.Add(3 * time.Second)
	ev, ok = m.Observe(40)
	if !ok || ev.Kind != Exited {
		t.Fatalf("got (%+v, %v), want Exited", ev, ok)
	}
	if ev.Duration != 5*time.Second {
		t.Errorf("duration = %v, want 5s", ev.Duration)
	}
	if ev.ID == "" || ev.ID != entered.ID {
		t.Errorf("exit id %q should match entry id %q", ev.ID, entered.ID)
	}
	if ev.PeakRisk != 95 {
		t.Errorf("peak = %d, want 95", ev.PeakRisk)
	}
	if m.Active() {
		t.Error("machine should be idle")
	}
}

func TestMachine_CountsEpisodes(t *testing.T) {
	m := NewMachine(DefaultThresholds())
	for _, r := range []int{70, 76, 78, 65, 58, 80} {
		m.Observe(r)
	}
	if m.Count() != 2 {
		t.Errorf("Count() = %d, want 2", m.Count())
	}
	if m.State() != Alerting {
		t.Errorf("State() = %v, want ALERTING", m.State())
	}
}

func TestMachine_Reset(t *testing.T) {
	m := NewMachine(DefaultThresholds())
	m.Observe(10)
	if _, ok := m.Reset(); ok {
		t.Error("no event expected when resetting an idle machine")
	}

	m.Observe(90)
	m.Observe(50)
	m.Observe(90)
	m.Observe(10)
	m.Observe(90)
	if _, ok := m.Reset(); !ok {
		t.Fatal("Reset during an alert should close it")
	}

	if m.State() != Idle || m.Count() != 0 {
		t.Errorf("after Reset got (%v, %d), want (IDLE, 0)", m.State(), m.Count())
	}
	if _, ok := m.Observe(50); ok {
		t.Error("no exit event expected after Reset")
	}
}

func TestMachine_ResetClosesEpisode(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	m := NewMachine(DefaultThresholds()).WithClock(clock.now)

	entered, _ := m.Observe(85)
	clock.t = clock.t.Add(1500 * time.Millisecond)
	m.Observe(92)
	m.Observe(70)

	ev, ok := m.Reset()
	if !ok || ev.Kind != Exited {
		t.Fatalf("got (%+v, %v), want Exited", ev, ok)
	}
	if ev.ID != entered.ID {
		t.Errorf("exit id %q should match entry id %q", ev.ID, entered.ID)
	}
	if ev.Duration != 1500*time.Millisecond || !ev.EndedAt.Equal(clock.t) {
		t.Errorf("got duration %v ended %v, want 1.5s %v", ev.Duration, ev.EndedAt, clock.t)
	}
	if ev.Risk != 70 || ev.PeakRisk != 92 || ev.Count != 1 {
		t.Errorf("got risk %d peak %d count %d, want 70 92 1", ev.Risk, ev.PeakRisk, ev.Count)
	}
}

func TestMachine_Close(t *testing.T) {
	m := NewMachine(DefaultThresholds())
	if _, ok := m.Close(); ok {
		t.Error("no event expected when closing an idle machine")
	}

	m.Observe(80)
	ev, ok := m.Close()
	if !ok || ev.Kind != Exited {
		t.Fatalf("got (%+v, %v), want Exited", ev, ok)
	}
	if m.Active() || m.Count() != 1 {
		t.Errorf("got active %v count %d, want false 1", m.Active(), m.Count())
	}
	if _, ok := m.Close(); ok {
		t.Error("second Close should be a no-op")
	}

	// A later entry starts a fresh episode.
	next, ok := m.Observe(80)
	if !ok || next.Kind != Entered || next.ID == ev.ID || next.Count != 2 {
		t.Errorf("got %+v, want a second Entered episode", next)
	}
}

func TestThresholdsValidate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Errorf("default thresholds: %v", err)
	}
	if err := (Thresholds{Enter: 60, Exit: 60}).Validate(); err != ErrInvalidThresholds {
		t.Errorf("got %v, want ErrInvalidThresholds", err)
	}
}

func TestEvent_JSON(t *testing.T) {
	in := Event{ID: "abc", Kind: Exited, Risk: 50, PeakRisk: 88, Count: 3, Duration: time.Second}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"exited"`) {
		t.Errorf("kind should encode by name: %s", data)
	}

	var out Event
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Kind != Exited || out.PeakRisk != 88 || out.ID != "abc" {
		t.Errorf("got %+v, want %+v", out, in)
	}
}
