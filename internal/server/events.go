// Package server defines the wire protocol exchanged over the realtime
// channel: a small JSON envelope with an event name and payload.
package server

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mbeckers/relaychat/internal/store"
)

// Inbound event names (client to server).
const (
	EventMessageSend = "message:send"
	EventTypingStart = "user:typing:start"
	EventTypingStop  = "user:typing:stop"
)

// Outbound event names (server to client).
const (
	EventMessageHistory = "message:history"
	EventMessageNew     = "message:new"
	EventMessageError   = "message:error"
	EventUserTyping     = "user:typing"
)

// Envelope is the frame format for every realtime event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendMessagePayload is the data of a message:send event.
type SendMessagePayload struct {
	Content string `json:"content"`
}

// ErrorPayload is the data of a message:error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// TypingPayload is the data of a user:typing event.
type TypingPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// MessageRecord is the client-facing projection of a persisted message.
type MessageRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

func recordFromMessage(msg *store.Message) MessageRecord {
	return MessageRecord{
		ID:        msg.ID.Hex(),
		UserID:    msg.UserID.Hex(),
		Username:  msg.Username,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
		CreatedAt: msg.CreatedAt,
	}
}

// encodeEvent marshals an event name and payload into a wire frame.
func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
