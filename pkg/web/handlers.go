package web

import (
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-intent/pkg/journal"
	"github.com/teslashibe/go-intent/pkg/pipeline"
)

const (
	defaultAlertLimit = 20
	maxAlertLimit     = 500
)

// StatsResponse is the session summary served at /api/stats.
type StatsResponse struct {
	pipeline.Stats
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	FPS            float64 `json:"fps"`
	Clients        int     `json:"clients"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.SendString("ok")
}

// handleStatus returns the most recent cycle.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status.Latest())
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	st := s.status.Stats()
	elapsed := st.Elapsed(s.now()).Seconds()

	resp := StatsResponse{
		Stats:          st,
		ElapsedSeconds: elapsed,
		Clients:        s.statusHub.ClientCount() + s.alertHub.ClientCount() + s.cameraHub.ClientCount(),
	}
	if elapsed > 0 {
		resp.FPS = float64(st.Frames) / elapsed
	}
	return c.JSON(resp)
}

// handleAlerts lists recent alert episodes, newest first.
func (s *Server) handleAlerts(c *fiber.Ctx) error {
	if s.alerts == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "alert journal disabled")
	}

	limit := c.QueryInt("limit", defaultAlertLimit)
	if limit <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be positive")
	}
	if limit > maxAlertLimit {
		limit = maxAlertLimit
	}

	entries, err := s.alerts.Recent(c.UserContext(), limit)
	if err != nil {
		s.logger.Error("list alerts", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "could not read alert journal")
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	return c.JSON(fiber.Map{"alerts": entries, "count": len(entries)})
}

// handleReset schedules a pipeline reset before the next frame.
func (s *Server) handleReset(c *fiber.Ctx) error {
	s.status.RequestReset()
	s.logger.Info("reset requested", "remote", c.IP())
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "reset scheduled"})
}
