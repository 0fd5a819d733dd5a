package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// DefaultURL is the production realtime endpoint.
	DefaultURL = "wss://api.openai.com/v1/realtime"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-realtime-preview"

	defaultHandshakeTimeout = 10 * time.Second
	eventBufferSize         = 100
)

// Config holds connection parameters for Dial.
type Config struct {
	// URL is the websocket endpoint. Defaults to DefaultURL.
	URL string

	// Model is appended as the model query parameter. Defaults to DefaultModel.
	Model string

	// HandshakeTimeout bounds the websocket handshake.
	HandshakeTimeout time.Duration
}

// Session is an open realtime connection. A background goroutine reads
// server events into the channel returned by Events; the channel is
// closed when the connection closes for any reason, after which Err
// reports the terminal read error, if any.
type Session struct {
	conn     *websocket.Conn
	events   chan ServerEvent
	closeCh  chan struct{}
	closeOne sync.Once

	writeMu sync.Mutex

	errMu   sync.Mutex
	readErr error
}

// Dial opens a realtime session authenticated with apiKey.
func Dial(ctx context.Context, cfg Config, apiKey string) (*Session, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}

	url := fmt.Sprintf("%s?model=%s", cfg.URL, cfg.Model)

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+apiKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: connect failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime: connect failed: %w", err)
	}

	s := &Session{
		conn:    conn,
		events:  make(chan ServerEvent, eventBufferSize),
		closeCh: make(chan struct{}),
	}
	go s.readLoop()

	return s, nil
}

// UpdateSession sends a session.update event.
func (s *Session) UpdateSession(cfg SessionConfig) error {
	return s.sendEvent(map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeSessionUpdate,
		"session":  cfg,
	})
}

// AppendAudio appends base64-encoded audio to the input buffer.
func (s *Session) AppendAudio(audioBase64 string) error {
	return s.sendEvent(map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeInputAudioBufferAppend,
		"audio":    audioBase64,
	})
}

// CommitInput commits the input audio buffer, closing the current turn.
func (s *Session) CommitInput() error {
	return s.sendEvent(map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeInputAudioBufferCommit,
	})
}

// CreateResponse requests a text-only model response with the given
// instructions.
func (s *Session) CreateResponse(instructions string) error {
	return s.sendEvent(map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeResponseCreate,
		"response": map[string]any{
			"modalities":   []string{"text"},
			"instructions": instructions,
		},
	})
}

// DeleteItem deletes a server-side conversation item.
func (s *Session) DeleteItem(itemID string) error {
	return s.sendEvent(map[string]any{
		"event_id": generateEventID(),
		"type":     EventTypeConversationItemDelete,
		"item_id":  itemID,
	})
}

// Events returns the server event stream. The channel closes when the
// connection does.
func (s *Session) Events() <-chan ServerEvent {
	return s.events
}

// Err returns the terminal read error after Events has closed, or nil
// for a clean local close.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.readErr
}

// Close closes the connection. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOne.Do(func() {
		close(s.closeCh)
		err = s.conn.Close()
	})
	return err
}

func (s *Session) sendEvent(event map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(event); err != nil {
		return fmt.Errorf("realtime: send %v: %w", event["type"], err)
	}
	return nil
}

func (s *Session) readLoop() {
	defer close(s.events)
	// Release the connection when the loop exits for any reason.
	defer func() { _ = s.Close() }()

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closeCh:
				// local close, not an error
			default:
				s.errMu.Lock()
				s.readErr = err
				s.errMu.Unlock()
			}
			return
		}

		var event ServerEvent
		if err := json.Unmarshal(message, &event); err != nil {
			s.errMu.Lock()
			s.readErr = fmt.Errorf("realtime: parse event: %w", err)
			s.errMu.Unlock()
			return
		}
		event.Raw = message

		select {
		case s.events <- event:
		case <-s.closeCh:
			return
		}
	}
}

func generateEventID() string {
	return "evt_" + uuid.New().String()[:12]
}
