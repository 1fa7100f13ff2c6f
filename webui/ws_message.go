package webui

import (
	"time"

	"srdash/enhance"
	"srdash/pages"
)

// Message types pushed to dashboard clients.
const (
	// MessageTypeInitial carries every page and the backend status on connect.
	MessageTypeInitial = "initial"

	// MessageTypePageState carries one page after it changed.
	MessageTypePageState = "page_state"

	// MessageTypeBackendStatus reports a change of the backend liveness probe.
	MessageTypeBackendStatus = "backend_status"

	// MessageTypeError carries a server-side error.
	MessageTypeError = "error"
)

// WSMessage is the envelope of every WebSocket message.
type WSMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NewWSMessage stamps a message with the current time.
func NewWSMessage(msgType string, data any) WSMessage {
	return WSMessage{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// ErrorData is the payload of an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InitialData is the snapshot a client receives right after connecting.
type InitialData struct {
	Version string              `json:"version"`
	Backend enhance.HealthState `json:"backend"`
	Pages   []pages.State       `json:"pages"`
}

// NewPageStateMessage wraps a page state.
func NewPageStateMessage(state pages.State) WSMessage {
	return NewWSMessage(MessageTypePageState, state)
}

// NewBackendStatusMessage wraps a backend health state.
func NewBackendStatusMessage(state enhance.HealthState) WSMessage {
	return NewWSMessage(MessageTypeBackendStatus, state)
}

// NewErrorMessage creates an error message.
func NewErrorMessage(code, message string) WSMessage {
	return NewWSMessage(MessageTypeError, ErrorData{Code: code, Message: message})
}

// NewInitialMessage creates the on-connect snapshot.
func NewInitialMessage(data InitialData) WSMessage {
	return NewWSMessage(MessageTypeInitial, data)
}
