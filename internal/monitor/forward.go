// Package monitor runs the capture loop and forwards its results to the
// slow outputs (alert journal and Redis) without stalling the frame rate.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-intent/pkg/alert"
	"github.com/teslashibe/go-intent/pkg/metrics"
	"github.com/teslashibe/go-intent/pkg/pipeline"
	"github.com/teslashibe/go-intent/pkg/publish"
)

const (
	forwardQueue   = 64
	forwardTimeout = 2 * time.Second

	// eventWait bounds how long Consume stalls the frame loop for queue
	// space when the result carries an alert transition.
	eventWait = 100 * time.Millisecond
)

// EventStore persists alert transitions.
type EventStore interface {
	Record(ctx context.Context, ev alert.Event) error
}

// Announcer pushes alerts and status snapshots to other processes.
type Announcer interface {
	PublishAlert(ctx context.Context, ev alert.Event) error
	PublishStatus(ctx context.Context, r pipeline.Result) error
}

type job struct {
	result pipeline.Result
	status bool
}

// Forwarder queues results from the pipeline goroutine and writes them out
// from its own. Either output may be nil.
type Forwarder struct {
	store  EventStore
	bus    Announcer
	logger *slog.Logger

	queue  chan job
	status *rate.Limiter
}

// NewForwarder builds a forwarder that publishes status at most statusHz
// times per second, or never when statusHz is zero. Alert events are never
// rate limited and wait up to eventWait for queue space.
func NewForwarder(store EventStore, bus Announcer, statusHz float64, logger *slog.Logger) *Forwarder {
	f := &Forwarder{
		store:  store,
		bus:    bus,
		logger: logger,
		queue:  make(chan job, forwardQueue),
	}
	if statusHz > 0 {
		f.status = rate.NewLimiter(rate.Limit(statusHz), 1)
	}
	return f
}

// String names the forwarder for the supervisor.
func (f *Forwarder) String() string {
	return "forwarder"
}

// Consume queues r when it carries an alert event or a status snapshot is
// due. A status snapshot is dropped at once on a full queue; an alert event
// waits up to eventWait before it is dropped.
func (f *Forwarder) Consume(r pipeline.Result) {
	j := job{result: r, status: f.bus != nil && f.status != nil && f.status.Allow()}
	if r.Event == nil && !j.status {
		return
	}

	select {
	case f.queue <- j:
		return
	default:
	}

	if r.Event != nil {
		t := time.NewTimer(eventWait)
		defer t.Stop()
		select {
		case f.queue <- j:
			return
		case <-t.C:
		}
	}

	metrics.SinkErrors.WithLabelValues("forwarder").Inc()
	f.logger.Warn("forward queue full, result dropped", "seq", r.Seq, "event", r.Event != nil)
}

// Serve drains the queue until ctx is done, then flushes what is left.
func (f *Forwarder) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			f.Flush()
			return ctx.Err()
		case j := <-f.queue:
			f.handle(ctx, j)
		}
	}
}

// Flush writes out everything still queued. Serve calls it on the way out;
// call it again once Serve has returned to pick up results queued during
// shutdown.
func (f *Forwarder) Flush() {
	ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
	defer cancel()
	for {
		select {
		case j := <-f.queue:
			f.handle(ctx, j)
		default:
			return
		}
	}
}

func (f *Forwarder) handle(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()

	if ev := j.result.Event; ev != nil {
		if f.store != nil {
			if err := f.store.Record(ctx, *ev); err != nil {
				metrics.SinkErrors.WithLabelValues("journal").Inc()
				f.logger.Error("journal write failed", "alert", ev.ID, "kind", ev.Kind, "error", err)
			}
		}
		if f.bus != nil {
			f.report("alert", f.bus.PublishAlert(ctx, *ev))
		}
	}

	if j.status {
		f.report("status", f.bus.PublishStatus(ctx, j.result))
	}
}

func (f *Forwarder) report(what string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, publish.ErrDropped):
		f.logger.Debug("publish skipped, breaker open", "message", what)
	default:
		metrics.SinkErrors.WithLabelValues("redis").Inc()
		f.logger.Warn("publish failed", "message", what, "error", err)
	}
}

// Sink adapts f to a pipeline sink.
func Sink[F pipeline.Frame](f *Forwarder) pipeline.Sink[F] {
	return pipeline.SinkFunc[F](func(_ F, r pipeline.Result) {
		f.Consume(r)
	})
}
