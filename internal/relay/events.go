package relay

// Broadcast event types sent to viewers and the speaker.
const (
	EventStatus       = "status"
	EventError        = "error"
	EventSessionEnded = "session_ended"
	EventSpanish      = "spanish"
	EventEnglishDelta = "english_delta"
	EventEnglishDone  = "english_done"
)

// Status messages shown to clients.
const (
	StatusConnected           = "Connected — speak in Spanish..."
	StatusListening           = "Listening — speak in Spanish..."
	StatusWaitingForSpeech    = "Connected — waiting for speech..."
	StatusWaitingForSpeaker   = "Waiting for speaker to connect..."
	StatusSpeakerDisconnected = "Speaker disconnected"
)

// MsgSpeakerExists is sent to a second speaker connection before it is
// closed.
const MsgSpeakerExists = "A speaker is already connected."

// Event is a broadcast message. Exactly one payload field is populated
// depending on Type.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
	Delta   string `json:"delta,omitempty"`
}

// StatusEvent reports a human-readable session status.
func StatusEvent(message string) Event {
	return Event{Type: EventStatus, Message: message}
}

// ErrorEvent reports an error to clients.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// SessionEndedEvent signals that the translation session is over.
func SessionEndedEvent() Event {
	return Event{Type: EventSessionEnded}
}

// SpanishEvent carries a completed Spanish transcript.
func SpanishEvent(text string) Event {
	return Event{Type: EventSpanish, Text: text}
}

// EnglishDeltaEvent carries an incremental English translation fragment.
func EnglishDeltaEvent(delta string) Event {
	return Event{Type: EventEnglishDelta, Delta: delta}
}

// EnglishDoneEvent signals the end of an English translation.
func EnglishDoneEvent() Event {
	return Event{Type: EventEnglishDone}
}

// Speaker command types received over the speaker connection.
const (
	commandStart  = "start"
	commandAudio  = "audio"
	commandCommit = "commit"
	commandStop   = "stop"
)

// speakerCommand is a structured message from the speaker.
type speakerCommand struct {
	Type   string `json:"type"`
	APIKey string `json:"apiKey,omitempty"`
	Audio  string `json:"audio,omitempty"`
}
