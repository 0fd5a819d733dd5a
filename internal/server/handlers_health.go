package server

import (
	"time"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := time.Since(s.startTime).Seconds()
	return c.JSON(200, map[string]any{
		"status": "ok",
		"uptime": uptime,
	})
}

// handleReadiness probes the relay actor; an unresponsive actor means
// the core event loop is stuck.
func (s *Server) handleReadiness(c echo.Context) error {
	counts, err := s.relay.Counts()
	if err != nil {
		return c.JSON(503, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(200, map[string]any{
		"status":  "ready",
		"viewers": counts.Viewers,
		"speaker": counts.HasSpeaker,
		"session": counts.UpstreamActive,
	})
}
