// Package server exposes the HTTP surface: the websocket endpoint that
// classifies inbound connections as speaker or viewer, plus health and
// metrics endpoints.
package server
