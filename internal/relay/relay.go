package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Cristianpl08/live-translation/internal/metrics"
	"github.com/Cristianpl08/live-translation/internal/realtime"
)

const (
	commandTimeout = 5 * time.Second
	dialTimeout    = 15 * time.Second
	stopTimeout    = 10 * time.Second
)

// ErrSpeakerExists is returned when a speaker connection is rejected
// because another speaker is already active.
var ErrSpeakerExists = errors.New("a speaker is already connected")

// upstreamState is the lifecycle state of the upstream session.
type upstreamState int

const (
	upstreamAbsent upstreamState = iota
	upstreamConnecting
	upstreamActive
)

// Several upstream event names map to the same logical translation
// event; older and newer API names are both accepted.
var englishDeltaEvents = map[string]bool{
	realtime.EventTypeResponseAudioTranscriptDelta:       true,
	realtime.EventTypeResponseOutputAudioTranscriptDelta: true,
	realtime.EventTypeResponseTextDelta:                  true,
	realtime.EventTypeResponseOutputTextDelta:            true,
}

var englishDoneEvents = map[string]bool{
	realtime.EventTypeResponseAudioTranscriptDone:       true,
	realtime.EventTypeResponseOutputAudioTranscriptDone: true,
	realtime.EventTypeResponseTextDone:                  true,
	realtime.EventTypeResponseOutputTextDone:            true,
}

// --- Command types ---

type relayCmd interface{ isRelayCmd() }

type baseRelayCmd struct{}

func (baseRelayCmd) isRelayCmd() {}

type attachSpeakerCmd struct {
	baseRelayCmd
	connection   *websocket.Conn
	errorChannel chan error
}

type detachSpeakerCmd struct {
	baseRelayCmd
	connection *websocket.Conn
}

type speakerMessageCmd struct {
	baseRelayCmd
	connection *websocket.Conn
	data       []byte
}

type attachViewerCmd struct {
	baseRelayCmd
	connection   *websocket.Conn
	errorChannel chan error
}

type detachViewerCmd struct {
	baseRelayCmd
	connection *websocket.Conn
}

type upstreamOpenedCmd struct {
	baseRelayCmd
	generation uint64
	session    Upstream
	err        error
}

type upstreamEventCmd struct {
	baseRelayCmd
	generation uint64
	event      realtime.ServerEvent
}

type upstreamClosedCmd struct {
	baseRelayCmd
	generation uint64
	err        error
}

type countsCmd struct {
	baseRelayCmd
	replyChannel chan Counts
}

type stopCmd struct {
	baseRelayCmd
}

// Counts is a snapshot of the relay's connection state.
type Counts struct {
	Viewers        int
	HasSpeaker     bool
	UpstreamActive bool
}

// Relay is the session relay actor. All fields below cmdCh are owned by
// the run goroutine and must not be touched from outside it.
type Relay struct {
	cmdCh      chan relayCmd
	clock      clockwork.Clock
	dial       Dialer
	done       chan struct{}
	maxViewers int

	speaker       *websocket.Conn
	speakerWriter *clientWriter
	viewers       map[*websocket.Conn]*clientWriter

	state        upstreamState
	generation   uint64
	upstream     Upstream
	pendingItems []string
}

// New creates a relay and starts its actor goroutine.
// dial opens upstream sessions on the speaker's start command.
// maxViewers caps concurrent viewer connections.
func New(dial Dialer, clock clockwork.Clock, maxViewers int) *Relay {
	r := &Relay{
		cmdCh:      make(chan relayCmd, 256),
		clock:      clock,
		dial:       dial,
		done:       make(chan struct{}),
		maxViewers: maxViewers,
		viewers:    make(map[*websocket.Conn]*clientWriter),
	}
	go r.run()
	return r
}

// AttachSpeaker registers conn as the sole speaker. If a speaker is
// already connected, conn receives an error payload, is closed, and
// ErrSpeakerExists is returned; the incumbent is unaffected.
func (r *Relay) AttachSpeaker(conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	if !r.send(attachSpeakerCmd{connection: conn, errorChannel: errCh}) {
		return errors.New("relay stopped")
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("attach speaker timed out after %v", commandTimeout)
	}
}

// DetachSpeaker clears the speaker slot if conn holds it, tearing down
// any upstream session and notifying all clients.
func (r *Relay) DetachSpeaker(conn *websocket.Conn) {
	r.send(detachSpeakerCmd{connection: conn})
}

// HandleSpeakerMessage processes one raw message from the speaker
// connection. Malformed payloads are logged and ignored.
func (r *Relay) HandleSpeakerMessage(conn *websocket.Conn, data []byte) {
	r.send(speakerMessageCmd{connection: conn, data: data})
}

// AttachViewer adds conn to the viewer set and sends it one status
// message reflecting whether a speaker is present.
func (r *Relay) AttachViewer(conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	if !r.send(attachViewerCmd{connection: conn, errorChannel: errCh}) {
		return errors.New("relay stopped")
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("attach viewer timed out after %v", commandTimeout)
	}
}

// DetachViewer removes conn from the viewer set.
func (r *Relay) DetachViewer(conn *websocket.Conn) {
	r.send(detachViewerCmd{connection: conn})
}

// Counts returns a snapshot of connection state, or an error if the
// actor does not respond within the command timeout.
func (r *Relay) Counts() (Counts, error) {
	replyCh := make(chan Counts, 1)
	if !r.send(countsCmd{replyChannel: replyCh}) {
		return Counts{}, errors.New("relay stopped")
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case counts := <-replyCh:
		return counts, nil
	case <-timer.Chan():
		return Counts{}, fmt.Errorf("counts timed out after %v", commandTimeout)
	}
}

// Stop shuts the relay down, closing all client connections and any
// upstream session. Blocks until the actor exits or a timeout elapses.
func (r *Relay) Stop() {
	if !r.send(stopCmd{}) {
		return // already stopped
	}

	timer := r.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-r.done:
		slog.Info("Relay stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Relay stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (r *Relay) run() {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Relay panic recovered", "panic", rec)
			r.closeAllClients("relay panic")
		}
	}()
	defer close(r.done)

	for cmd := range r.cmdCh {
		switch c := cmd.(type) {
		case attachSpeakerCmd:
			r.handleAttachSpeaker(c)
		case detachSpeakerCmd:
			r.handleDetachSpeaker(c)
		case speakerMessageCmd:
			r.handleSpeakerMessage(c)
		case attachViewerCmd:
			r.handleAttachViewer(c)
		case detachViewerCmd:
			r.handleDetachViewer(c)
		case upstreamOpenedCmd:
			r.handleUpstreamOpened(c)
		case upstreamEventCmd:
			r.handleUpstreamEvent(c)
		case upstreamClosedCmd:
			r.handleUpstreamClosed(c)
		case countsCmd:
			c.replyChannel <- Counts{
				Viewers:        len(r.viewers),
				HasSpeaker:     r.speaker != nil,
				UpstreamActive: r.state == upstreamActive,
			}
		case stopCmd:
			r.handleShutdown()
			return
		default:
			slog.Warn("Relay received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

// --- Speaker handling ---

func (r *Relay) handleAttachSpeaker(c attachSpeakerCmd) {
	if r.speaker != nil {
		r.rejectConnection(c.connection, MsgSpeakerExists)
		metrics.SpeakersRejected.Inc()
		slog.Warn("Rejected second speaker connection")
		c.errorChannel <- ErrSpeakerExists
		return
	}

	r.speaker = c.connection
	r.speakerWriter = newClientWriter(c.connection, r.clock)
	metrics.SpeakerConnected.Set(1)
	slog.Info("Speaker connected")
	c.errorChannel <- nil
}

func (r *Relay) handleDetachSpeaker(c detachSpeakerCmd) {
	if r.speaker != c.connection {
		return
	}

	r.speakerWriter.stop()
	r.speaker = nil
	r.speakerWriter = nil
	metrics.SpeakerConnected.Set(0)

	r.teardownUpstream()

	// session_ended first, then the status notice, in that order.
	r.broadcast(SessionEndedEvent())
	r.broadcast(StatusEvent(StatusSpeakerDisconnected))
	slog.Info("Speaker disconnected")
}

func (r *Relay) handleSpeakerMessage(c speakerMessageCmd) {
	if r.speaker != c.connection {
		return
	}

	var cmd speakerCommand
	if err := json.Unmarshal(c.data, &cmd); err != nil {
		slog.Warn("Ignoring malformed speaker message", "error", err)
		return
	}

	switch cmd.Type {
	case commandStart:
		r.handleStart(cmd.APIKey)
	case commandAudio:
		r.handleAudio(cmd.Audio)
	case commandCommit:
		r.handleCommit()
	case commandStop:
		r.handleSessionStop()
	default:
		slog.Warn("Ignoring unknown speaker command", "type", cmd.Type)
	}
}

func (r *Relay) handleStart(apiKey string) {
	r.teardownUpstream()

	r.generation++
	generation := r.generation
	r.state = upstreamConnecting
	slog.Info("Opening upstream translation session")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		session, err := r.dial(ctx, apiKey)
		r.send(upstreamOpenedCmd{generation: generation, session: session, err: err})
	}()
}

func (r *Relay) handleAudio(audio string) {
	// No upstream session: drop silently, no error to the speaker.
	if r.state != upstreamActive {
		return
	}
	if err := r.upstream.AppendAudio(audio); err != nil {
		slog.Warn("Failed to forward audio upstream", "error", err)
	}
}

func (r *Relay) handleCommit() {
	if r.state != upstreamActive {
		return
	}
	if err := r.upstream.CommitInput(); err != nil {
		slog.Warn("Failed to commit audio buffer", "error", err)
	}
	if err := r.upstream.CreateResponse(responseInstructions); err != nil {
		slog.Warn("Failed to request translation response", "error", err)
	}
}

func (r *Relay) handleSessionStop() {
	r.teardownUpstream()
	r.broadcast(SessionEndedEvent())
	slog.Info("Translation session stopped by speaker")
}

// --- Viewer handling ---

func (r *Relay) handleAttachViewer(c attachViewerCmd) {
	if len(r.viewers) >= r.maxViewers {
		r.rejectConnection(c.connection, "Viewer limit reached.")
		slog.Warn("Rejecting viewer: max viewers reached", "max_viewers", r.maxViewers)
		c.errorChannel <- fmt.Errorf("max viewers (%d) reached", r.maxViewers)
		return
	}

	cw := newClientWriter(c.connection, r.clock)
	r.viewers[c.connection] = cw
	metrics.ConnectedViewers.Set(float64(len(r.viewers)))

	status := StatusWaitingForSpeaker
	if r.speaker != nil {
		status = StatusWaitingForSpeech
	}
	r.sendTo(cw, StatusEvent(status))

	slog.Debug("Viewer connected", "total_viewers", len(r.viewers))
	c.errorChannel <- nil
}

func (r *Relay) handleDetachViewer(c detachViewerCmd) {
	cw, exists := r.viewers[c.connection]
	if !exists {
		return
	}

	cw.stop()
	delete(r.viewers, c.connection)
	metrics.ConnectedViewers.Set(float64(len(r.viewers)))
	slog.Debug("Viewer disconnected", "remaining_viewers", len(r.viewers))
}

// --- Upstream handling ---

func (r *Relay) handleUpstreamOpened(c upstreamOpenedCmd) {
	// A teardown or restart raced the dial: discard the stale result.
	if c.generation != r.generation || r.state != upstreamConnecting {
		if c.session != nil {
			_ = c.session.Close()
		}
		return
	}

	if c.err != nil {
		r.state = upstreamAbsent
		metrics.UpstreamErrors.Inc()
		slog.Error("Upstream connect failed", "error", c.err)
		r.broadcast(ErrorEvent("Failed to connect to translation service."))
		return
	}

	r.upstream = c.session
	r.state = upstreamActive
	metrics.UpstreamSessionsTotal.Inc()

	if err := r.upstream.UpdateSession(defaultSessionConfig()); err != nil {
		slog.Error("Failed to configure upstream session", "error", err)
		r.teardownUpstream()
		r.broadcast(ErrorEvent("Failed to configure translation service."))
		return
	}
	r.broadcast(StatusEvent(StatusConnected))
	slog.Info("Upstream translation session active")

	generation := c.generation
	session := c.session
	go func() {
		for event := range session.Events() {
			if !r.send(upstreamEventCmd{generation: generation, event: event}) {
				return
			}
		}
		r.send(upstreamClosedCmd{generation: generation, err: session.Err()})
	}()
}

func (r *Relay) handleUpstreamEvent(c upstreamEventCmd) {
	// Events from a torn-down session are stale.
	if c.generation != r.generation || r.state != upstreamActive {
		return
	}

	event := c.event
	metrics.UpstreamEventsTotal.WithLabelValues(event.Type).Inc()

	switch {
	case event.Type == realtime.EventTypeConversationItemInputAudioTranscriptionCompleted:
		if text := strings.TrimSpace(event.Transcript); text != "" {
			r.broadcast(SpanishEvent(text))
		}

	case englishDeltaEvents[event.Type]:
		r.broadcast(EnglishDeltaEvent(event.Delta))

	case englishDoneEvents[event.Type]:
		r.broadcast(EnglishDoneEvent())

	case event.Type == realtime.EventTypeConversationItemCreated:
		if event.Item != nil && event.Item.ID != "" {
			r.pendingItems = append(r.pendingItems, event.Item.ID)
		}

	case event.Type == realtime.EventTypeResponseDone:
		r.drainPendingItems()
		r.broadcast(StatusEvent(StatusListening))

	case event.Type == realtime.EventTypeError:
		message := "Translation service error."
		if event.Error != nil && event.Error.Message != "" {
			message = event.Error.Message
		}
		slog.Warn("Upstream error event", "message", message)
		r.broadcast(ErrorEvent(message))

	default:
		// ignored
	}
}

func (r *Relay) handleUpstreamClosed(c upstreamClosedCmd) {
	// Teardown already bumped the generation; this close is stale.
	if c.generation != r.generation {
		return
	}

	if c.err != nil {
		metrics.UpstreamErrors.Inc()
		slog.Warn("Upstream connection lost", "error", c.err)
		r.broadcast(ErrorEvent("Translation service connection lost."))
	}

	// Release the underlying connection; Close is idempotent.
	if r.upstream != nil {
		_ = r.upstream.Close()
	}
	r.upstream = nil
	r.state = upstreamAbsent
	r.pendingItems = nil
	slog.Info("Upstream translation session closed")
}

// drainPendingItems deletes queued conversation items in creation order,
// exactly once each, then leaves the queue empty.
func (r *Relay) drainPendingItems() {
	for _, itemID := range r.pendingItems {
		if err := r.upstream.DeleteItem(itemID); err != nil {
			slog.Warn("Failed to delete conversation item", "item_id", itemID, "error", err)
			continue
		}
		metrics.UpstreamItemsDeleted.Inc()
	}
	r.pendingItems = nil
}

// teardownUpstream closes any upstream session and invalidates in-flight
// events by bumping the generation. Idempotent.
func (r *Relay) teardownUpstream() {
	if r.upstream != nil {
		_ = r.upstream.Close()
		r.upstream = nil
	}
	r.state = upstreamAbsent
	r.generation++
	r.pendingItems = nil
}

// --- Fan-out ---

// broadcast serializes the event once and delivers it to every viewer
// and the speaker. A slow viewer is evicted rather than allowed to
// stall delivery; a slow speaker just misses the message.
func (r *Relay) broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal broadcast event", "error", err)
		return
	}
	metrics.BroadcastsTotal.WithLabelValues(event.Type).Inc()

	var slow []*websocket.Conn
	for conn, cw := range r.viewers {
		select {
		case cw.sendChannel <- data:
		default:
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		slog.Warn("Disconnecting slow viewer")
		metrics.SlowViewersEvicted.Inc()
		r.handleDetachViewer(detachViewerCmd{connection: conn})
	}

	if r.speakerWriter != nil {
		select {
		case r.speakerWriter.sendChannel <- data:
		default:
			slog.Warn("Dropping broadcast for slow speaker", "type", event.Type)
		}
	}
}

// sendTo delivers one event to a single client writer.
func (r *Relay) sendTo(cw *clientWriter, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal event", "error", err)
		return
	}
	select {
	case cw.sendChannel <- data:
	default:
		slog.Warn("Dropping event for slow client", "type", event.Type)
	}
}

// rejectConnection writes one error payload directly to a connection
// that has no writer yet, then closes it.
func (r *Relay) rejectConnection(conn *websocket.Conn, message string) {
	data, err := json.Marshal(ErrorEvent(message))
	if err == nil {
		_ = conn.SetWriteDeadline(r.clock.Now().Add(writeDeadline))
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
	_ = conn.Close()
}

// send enqueues a command unless the relay has stopped.
func (r *Relay) send(cmd relayCmd) bool {
	select {
	case r.cmdCh <- cmd:
		return true
	case <-r.done:
		return false
	}
}

func (r *Relay) handleShutdown() {
	slog.Info("Relay shutting down", "viewers", len(r.viewers), "has_speaker", r.speaker != nil)
	r.teardownUpstream()
	r.closeAllClients("Server shutting down")
}

// closeAllClients closes every client connection with the given reason.
// Used during shutdown and panic recovery.
func (r *Relay) closeAllClients(reason string) {
	for conn, cw := range r.viewers {
		cw.stopGraceful(reason)
		delete(r.viewers, conn)
	}
	metrics.ConnectedViewers.Set(0)

	if r.speakerWriter != nil {
		r.speakerWriter.stopGraceful(reason)
		r.speaker = nil
		r.speakerWriter = nil
		metrics.SpeakerConnected.Set(0)
	}
}
