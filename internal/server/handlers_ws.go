package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Cristianpl08/live-translation/internal/logging"
	"github.com/Cristianpl08/live-translation/internal/relay"
)

const roleSpeaker = "speaker"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // clients embed the viewer page anywhere
	},
}

func (s *Server) handleWebSocket(c echo.Context) error {
	role := c.QueryParam("role")

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	// Malformed or missing role values default to viewer behavior.
	if role == roleSpeaker {
		logging.WithRole(roleSpeaker).Debug("WebSocket connection upgraded")
		s.serveSpeaker(conn)
	} else {
		logging.WithRole("viewer").Debug("WebSocket connection upgraded")
		s.serveViewer(conn)
	}
	return nil
}

func (s *Server) serveSpeaker(conn *websocket.Conn) {
	if err := s.relay.AttachSpeaker(conn); err != nil {
		if !errors.Is(err, relay.ErrSpeakerExists) {
			slog.Error("Failed to attach speaker", "error", err)
			_ = conn.Close()
		}
		// On ErrSpeakerExists the relay already sent the error payload
		// and closed the connection.
		return
	}

	// Read pump, blocks until the connection closes.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.relay.HandleSpeakerMessage(conn, data)
	}

	s.relay.DetachSpeaker(conn)
}

func (s *Server) serveViewer(conn *websocket.Conn) {
	if err := s.relay.AttachViewer(conn); err != nil {
		slog.Warn("Failed to attach viewer", "error", err)
		return
	}

	// Viewers only receive; drain inbound frames to process pongs and
	// detect disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.relay.DetachViewer(conn)
}
