// Package server implements the message broadcast engine: history replay for
// new sessions and the validate-persist-broadcast path for submitted messages.
package server

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mbeckers/relaychat/internal/store"
)

// Validation and persistence error messages delivered via message:error.
const (
	errContentRequired = "Message content is required"
	errContentTooLong  = "Message content cannot exceed 1000 characters"
	errHistoryFailed   = "Failed to load message history"
	errSendFailed      = "Failed to send message"
)

// replayHistory delivers the most recent messages, oldest first, to a single
// newly created session. It is called once per session, before the session is
// registered for broadcasts, so the batch never overlaps with a later
// message:new frame.
func (s *Server) replayHistory(session *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	messages, err := s.messages.Recent(ctx, s.cfg.HistoryLimit)
	if err != nil {
		log.Printf("History replay failed for session %s: %v", session.id, err)
		session.sendEvent(EventMessageError, ErrorPayload{Message: errHistoryFailed})
		return
	}

	records := make([]MessageRecord, 0, len(messages))
	for i := range messages {
		records = append(records, recordFromMessage(&messages[i]))
	}
	session.sendEvent(EventMessageHistory, records)
}

// handleSendMessage validates a submitted message, persists it, and fans the
// persisted record out to every registered session, the sender included.
// Validation and persistence failures are reported to the sender only, and a
// failed persist never triggers a broadcast.
func (s *Server) handleSendMessage(session *Session, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		session.sendEvent(EventMessageError, ErrorPayload{Message: errContentRequired})
		return
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxMessageLength {
		session.sendEvent(EventMessageError, ErrorPayload{Message: errContentTooLong})
		return
	}

	authorID, err := primitive.ObjectIDFromHex(session.user.ID)
	if err != nil {
		log.Printf("Session %s has malformed user id %q", session.id, session.user.ID)
		session.sendEvent(EventMessageError, ErrorPayload{Message: errSendFailed})
		return
	}

	// The display name is captured now, not re-resolved at broadcast or read
	// time, so history keeps the name the author had when sending.
	message := &store.Message{
		UserID:    authorID,
		Username:  session.user.Username,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	saved, err := s.messages.Insert(ctx, message)
	if err != nil {
		log.Printf("Message persist failed for session %s: %v", session.id, err)
		session.sendEvent(EventMessageError, ErrorPayload{Message: errSendFailed})
		return
	}

	payload, err := encodeEvent(EventMessageNew, recordFromMessage(saved))
	if err != nil {
		log.Printf("Error encoding message:new event: %v", err)
		return
	}
	s.hub.BroadcastAll(payload)
}
