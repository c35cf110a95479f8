// Package web serves the operator dashboard: a JSON API over the latest
// cycle, websocket feeds for status, alerts and camera frames, and the
// Prometheus scrape endpoint.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-intent/pkg/hub"
	"github.com/teslashibe/go-intent/pkg/journal"
	"github.com/teslashibe/go-intent/pkg/pipeline"
)

const shutdownTimeout = 5 * time.Second

// Config controls the dashboard listener.
type Config struct {
	Enabled   bool    `koanf:"enabled"`
	Port      int     `koanf:"port" validate:"gte=1,lte=65535"`
	FrameRate float64 `koanf:"frame_rate" validate:"gte=0"`
	Static    string  `koanf:"static"`
}

// DefaultConfig serves on 8080 and streams camera frames at 10 Hz.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Port:      8080,
		FrameRate: 10,
	}
}

// Status is the read side of the running pipeline.
type Status interface {
	Latest() pipeline.Result
	Stats() pipeline.Stats
	RequestReset()
}

// AlertStore lists past alert episodes.
type AlertStore interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Server is the web dashboard server
type Server struct {
	cfg    Config
	app    *fiber.App
	logger *slog.Logger

	status Status
	alerts AlertStore
	now    func() time.Time

	statusHub *hub.Hub
	alertHub  *hub.Hub
	cameraHub *hub.Hub

	frames *rate.Limiter
}

// Option configures a Server.
type Option func(*Server)

// WithAlerts enables /api/alerts backed by store.
func WithAlerts(store AlertStore) Option {
	return func(s *Server) { s.alerts = store }
}

// WithClock replaces time.Now for elapsed-time reporting.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New builds the dashboard. The hubs it returns from Hubs must be running
// before websocket clients can receive anything.
func New(cfg Config, status Status, logger *slog.Logger, opts ...Option) *Server {
	limit := rate.Inf
	if cfg.FrameRate > 0 {
		limit = rate.Limit(cfg.FrameRate)
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		status:    status,
		now:       time.Now,
		statusHub: hub.New("status", logger),
		alertHub:  hub.New("alerts", logger),
		cameraHub: hub.New("camera", logger),
		frames:    rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	app := fiber.New(fiber.Config{
		AppName:               "Intent Dashboard",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(cors.New())

	if cfg.Static != "" {
		app.Static("/", cfg.Static)
	}

	app.Get("/healthz", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/stats", s.handleStats)
	api.Get("/alerts", s.handleAlerts)
	api.Post("/reset", s.handleReset)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.attach(s.statusHub)))
	app.Get("/ws/alerts", websocket.New(s.attach(s.alertHub)))
	app.Get("/ws/camera", websocket.New(s.attach(s.cameraHub)))

	s.app = app
	return s
}

func (s *Server) attach(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		h.Attach(context.Background(), c)
	}
}

// Hubs returns the broadcast hubs so the caller can supervise them.
func (s *Server) Hubs() []*hub.Hub {
	return []*hub.Hub{s.statusHub, s.alertHub, s.cameraHub}
}

// String names the server for the supervisor.
func (s *Server) String() string {
	return fmt.Sprintf("web:%d", s.cfg.Port)
}

// Serve listens until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "url", fmt.Sprintf("http://localhost:%d", s.cfg.Port))
		errCh <- s.app.Listen(fmt.Sprintf(":%d", s.cfg.Port))
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web: listen: %w", err)
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			s.logger.Warn("dashboard shutdown", "error", err)
		}
		return ctx.Err()
	}
}

// Publish pushes a cycle result to status subscribers and, when the cycle
// opened or closed an alert, to alert subscribers.
func (s *Server) Publish(r pipeline.Result) {
	if r.Event != nil {
		if err := s.alertHub.BroadcastJSON(r.Event); err != nil {
			s.logger.Warn("encode alert", "error", err)
		}
	}
	if s.statusHub.ClientCount() == 0 {
		return
	}
	if err := s.statusHub.BroadcastJSON(r); err != nil {
		s.logger.Warn("encode status", "error", err)
	}
}

// FrameDue reports whether a camera frame should be encoded now. It is false
// when nobody is watching or the frame rate budget is spent.
func (s *Server) FrameDue() bool {
	if s.cameraHub.ClientCount() == 0 {
		return false
	}
	return s.frames.Allow()
}

// SendFrame broadcasts an encoded JPEG to camera subscribers.
func (s *Server) SendFrame(jpeg []byte) {
	s.cameraHub.BroadcastBinary(jpeg)
}

// Sink adapts s to a pipeline sink.
func Sink[F pipeline.Frame](s *Server) pipeline.Sink[F] {
	return pipeline.SinkFunc[F](func(_ F, r pipeline.Result) {
		s.Publish(r)
	})
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
