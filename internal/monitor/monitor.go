package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-intent/pkg/capture"
	"github.com/teslashibe/go-intent/pkg/overlay"
	"github.com/teslashibe/go-intent/pkg/pipeline"
	"github.com/teslashibe/go-intent/pkg/record"
)

// FrameSource yields captured frames until it returns capture.ErrSourceClosed.
type FrameSource interface {
	Read() (*capture.Frame, error)
}

// View receives annotated frames for the live dashboard.
type View interface {
	FrameDue() bool
	SendFrame(jpeg []byte)
}

// Monitor pulls frames through the pipeline. When the source runs dry it
// terminates the supervisor tree so the process can exit.
type Monitor struct {
	source FrameSource
	pipe   *pipeline.Pipeline[*capture.Frame]
	logger *slog.Logger

	painter  *overlay.Painter
	recorder *record.Recorder
	view     View
	now      func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithRecorder saves annotated clips of every alert.
func WithRecorder(r *record.Recorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

// WithView streams annotated frames to v.
func WithView(v View) Option {
	return func(m *Monitor) { m.view = v }
}

// New builds a monitor. The painter annotates frames for the recorder and
// the view; without either it is unused.
func New(source FrameSource, pipe *pipeline.Pipeline[*capture.Frame], painter *overlay.Painter, logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		source:  source,
		pipe:    pipe,
		painter: painter,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// String names the monitor for the supervisor.
func (m *Monitor) String() string {
	return "monitor"
}

// Serve processes frames until ctx is done or the source is exhausted. Either
// way an alert still in progress is closed before it returns.
func (m *Monitor) Serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			m.finish()
			return err
		}

		f, err := m.source.Read()
		if errors.Is(err, capture.ErrSourceClosed) {
			m.logger.Info("video source exhausted", "frames", m.pipe.Stats().Frames)
			m.finish()
			return suture.ErrTerminateSupervisorTree
		}
		if err != nil {
			return fmt.Errorf("monitor: read frame: %w", err)
		}

		m.step(f)
		f.Close()
	}
}

func (m *Monitor) finish() {
	r, ok := m.pipe.Finish()
	if !ok {
		return
	}
	m.logger.Info("open alert closed on shutdown",
		"alert", r.Event.ID,
		"duration", r.Event.Duration.Round(100*time.Millisecond),
	)
	if m.recorder != nil {
		none := gocv.NewMat()
		defer none.Close()
		m.recorder.Observe(r.Event, false, none)
	}
}

func (m *Monitor) step(f *capture.Frame) {
	r, err := m.pipe.Process(f)
	if err != nil {
		m.logger.Warn("frame skipped", "index", f.Index, "error", err)
		return
	}

	save := m.recorder != nil && (r.Alerting || r.Event != nil)
	stream := m.view != nil && m.view.FrameDue()
	if !save && !stream {
		return
	}

	img := f.Mat.Clone()
	defer img.Close()
	m.painter.Draw(&img, r, m.now())

	if save {
		m.recorder.Observe(r.Event, r.Alerting, img)
	}
	if stream {
		buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
		if err != nil {
			m.logger.Warn("jpeg encode failed", "error", err)
			return
		}
		m.view.SendFrame(bytes.Clone(buf.GetBytes()))
		buf.Close()
	}
}
