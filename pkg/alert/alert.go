// Package alert implements the hysteresis state machine that turns a stream
// of risk scores into alert episodes.
package alert

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidThresholds is returned when the exit threshold is not below the
// enter threshold.
var ErrInvalidThresholds = errors.New("alert: exit threshold must be below enter threshold")

// Thresholds bound the hysteresis band.
type Thresholds struct {
	Enter int `koanf:"enter_threshold" validate:"gte=0,lte=100"`
	Exit  int `koanf:"exit_threshold" validate:"gte=0,lte=100,ltfield=Enter"`
}

// DefaultThresholds enters at 75 and leaves below 60.
func DefaultThresholds() Thresholds {
	return Thresholds{Enter: 75, Exit: 60}
}

// Validate checks the band is well formed.
func (t Thresholds) Validate() error {
	if t.Exit >= t.Enter {
		return ErrInvalidThresholds
	}
	return nil
}

// State is the alert machine state.
type State int

const (
	Idle State = iota
	Alerting
)

func (s State) String() string {
	if s == Alerting {
		return "ALERTING"
	}
	return "IDLE"
}

// Transition describes what a single step did.
type Transition int

const (
	None Transition = iota
	Entered
	Exited
)

func (t Transition) String() string {
	switch t {
	case Entered:
		return "entered"
	case Exited:
		return "exited"
	default:
		return "none"
	}
}

// MarshalText encodes the transition by name.
func (t Transition) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a transition name.
func (t *Transition) UnmarshalText(text []byte) error {
	switch string(text) {
	case "entered":
		*t = Entered
	case "exited":
		*t = Exited
	case "none":
		*t = None
	default:
		return fmt.Errorf("alert: unknown transition %q", text)
	}
	return nil
}

// Step is the pure transition function. Idle enters on risk >= Enter;
// Alerting leaves on risk < Exit. Everything else holds state.
func Step(s State, risk int, t Thresholds) (State, Transition) {
	switch s {
	case Idle:
		if risk >= t.Enter {
			return Alerting, Entered
		}
	case Alerting:
		if risk < t.Exit {
			return Idle, Exited
		}
	}
	return s, None
}

// Event is emitted on every state change.
type Event struct {
	ID        string        `json:"id"`
	Kind      Transition    `json:"kind"`
	Risk      int           `json:"risk"`
	PeakRisk  int           `json:"peak_risk"`
	Count     int           `json:"count"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Duration  time.Duration `json:"duration"`
}

// Machine tracks alert episodes. It is safe for concurrent use.
type Machine struct {
	mu sync.Mutex

	thresholds Thresholds
	now        func() time.Time

	state     State
	count     int
	id        string
	startedAt time.Time
	peak      int
	last      int
}

// NewMachine creates an idle machine.
func NewMachine(t Thresholds) *Machine {
	return &Machine{thresholds: t, now: time.Now}
}

// WithClock replaces the time source. Used by tests and replay.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// Observe feeds one risk score. ok is false when nothing changed.
func (m *Machine) Observe(risk int) (ev Event, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, tr := Step(m.state, risk, m.thresholds)
	m.state = next
	m.last = risk

	switch tr {
	case Entered:
		m.count++
		m.id = uuid.NewString()
		m.startedAt = m.now()
		m.peak = risk
		return Event{
			ID:        m.id,
			Kind:      Entered,
			Risk:      risk,
			PeakRisk:  risk,
			Count:     m.count,
			StartedAt: m.startedAt,
		}, true

	case Exited:
		return m.exit(risk), true
	}

	if m.state == Alerting && risk > m.peak {
		m.peak = risk
	}
	return Event{}, false
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active reports whether an alert is in progress.
func (m *Machine) Active() bool {
	return m.State() == Alerting
}

// Count returns the number of alerts entered since the last reset.
func (m *Machine) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Close ends the alert in progress, if any, and returns its Exited event
// with the last observed risk. The episode count is kept.
func (m *Machine) Close() (ev Event, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.close()
}

// Reset returns to Idle and zeroes the count. An alert in progress is closed
// first and its Exited event returned.
func (m *Machine) Reset() (ev Event, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok = m.close()
	m.count = 0
	m.last = 0
	return ev, ok
}

func (m *Machine) close() (Event, bool) {
	if m.state != Alerting {
		return Event{}, false
	}
	m.state = Idle
	return m.exit(m.last), true
}

// exit builds the Exited event for the current episode and clears it.
// The caller holds mu.
func (m *Machine) exit(risk int) Event {
	end := m.now()
	ev := Event{
		ID:        m.id,
		Kind:      Exited,
		Risk:      risk,
		PeakRisk:  m.peak,
		Count:     m.count,
		StartedAt: m.startedAt,
		EndedAt:   end,
		Duration:  end.Sub(m.startedAt),
	}
	m.id = ""
	m.startedAt = time.Time{}
	m.peak = 0
	return ev
}
