// Package realtime implements a minimal WebSocket client for the
// OpenAI Realtime API, covering the subset of client and server events
// the relay needs: session configuration, audio buffer append/commit,
// response creation, and conversation item deletion.
package realtime
