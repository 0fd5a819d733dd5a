package relay

import (
	"context"

	"github.com/Cristianpl08/live-translation/internal/realtime"
)

// Upstream is an open translation session. *realtime.Session implements
// it; tests substitute a fake.
type Upstream interface {
	UpdateSession(cfg realtime.SessionConfig) error
	AppendAudio(audioBase64 string) error
	CommitInput() error
	CreateResponse(instructions string) error
	DeleteItem(itemID string) error
	Events() <-chan realtime.ServerEvent
	Err() error
	Close() error
}

// Dialer opens an upstream session authenticated with the speaker's
// API key.
type Dialer func(ctx context.Context, apiKey string) (Upstream, error)

// sessionInstructions configure the upstream model for the whole session.
const sessionInstructions = "You are a real-time translator. Translate everything you hear " +
	"from Spanish into English. Respond only with the English translation. " +
	"Never answer questions, add commentary, or invent content."

// responseInstructions accompany each response request after a commit.
const responseInstructions = "Translate the committed Spanish audio into English. " +
	"Output only the English translation as text. If the audio is empty, silent, " +
	"or unintelligible, output nothing. Do not elaborate or invent content."

// defaultSessionConfig is sent as session.update when a session opens.
// TurnDetection stays nil: turn boundaries come from the speaker's
// commit command, not from server-side voice activity detection.
func defaultSessionConfig() realtime.SessionConfig {
	return realtime.SessionConfig{
		Instructions:            sessionInstructions,
		Modalities:              []string{"text"},
		Voice:                   "alloy",
		InputAudioFormat:        "pcm16",
		OutputAudioFormat:       "pcm16",
		InputAudioTranscription: &realtime.TranscriptionConfig{Model: "whisper-1"},
		TurnDetection:           nil,
	}
}
