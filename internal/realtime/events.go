package realtime

// Client event types (sent to the server).
const (
	EventTypeSessionUpdate          = "session.update"
	EventTypeInputAudioBufferAppend = "input_audio_buffer.append"
	EventTypeInputAudioBufferCommit = "input_audio_buffer.commit"
	EventTypeConversationItemDelete = "conversation.item.delete"
	EventTypeResponseCreate         = "response.create"
)

// Server event types (received from the server).
//
// The API has renamed its transcript events over time; both the old
// "audio_transcript"/"text" names and the newer "output_audio_transcript"/
// "output_text" names are listed so callers can treat them as aliases.
const (
	EventTypeError = "error"

	EventTypeSessionCreated = "session.created"
	EventTypeSessionUpdated = "session.updated"

	EventTypeConversationItemCreated                          = "conversation.item.created"
	EventTypeConversationItemInputAudioTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"

	EventTypeResponseDone = "response.done"

	EventTypeResponseAudioTranscriptDelta       = "response.audio_transcript.delta"
	EventTypeResponseAudioTranscriptDone        = "response.audio_transcript.done"
	EventTypeResponseOutputAudioTranscriptDelta = "response.output_audio_transcript.delta"
	EventTypeResponseOutputAudioTranscriptDone  = "response.output_audio_transcript.done"
	EventTypeResponseTextDelta                  = "response.text.delta"
	EventTypeResponseTextDone                   = "response.text.done"
	EventTypeResponseOutputTextDelta            = "response.output_text.delta"
	EventTypeResponseOutputTextDone             = "response.output_text.done"
)

// ServerEvent is a server event received over the realtime connection.
// Only the fields the relay consumes are modelled; everything else is
// preserved in Raw.
type ServerEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`

	// Item carries the conversation item for conversation.item.* events.
	Item *ConversationItem `json:"item,omitempty"`

	// ItemID identifies the item for events that reference one by ID.
	ItemID string `json:"item_id,omitempty"`

	// Transcript is the completed input transcription text.
	Transcript string `json:"transcript,omitempty"`

	// Delta is the incremental text fragment for *.delta events.
	Delta string `json:"delta,omitempty"`

	// Error carries details for error events.
	Error *EventError `json:"error,omitempty"`

	// Raw is the original JSON message.
	Raw []byte `json:"-"`
}

// ConversationItem is a server-side conversation turn record.
type ConversationItem struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
	Role string `json:"role,omitempty"`
}

// EventError describes an application-level error reported by the server.
type EventError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SessionConfig is the payload of a session.update event.
type SessionConfig struct {
	Instructions            string               `json:"instructions,omitempty"`
	Modalities              []string             `json:"modalities,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string               `json:"output_audio_format,omitempty"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`

	// TurnDetection is serialized even when nil: a JSON null disables
	// server-side voice activity detection.
	TurnDetection *TurnDetection `json:"turn_detection"`
}

// TranscriptionConfig enables input audio transcription.
type TranscriptionConfig struct {
	Model string `json:"model"`
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}
