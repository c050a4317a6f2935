// Package server tracks user presence: a user's stored status follows the
// lifecycle of their realtime connections.
package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mbeckers/relaychat/internal/store"
)

// markOnline sets a user's presence status to online. Called on successful
// authentication, before the session is created; last-seen is left unchanged.
func (s *Server) markOnline(ctx context.Context, userID string) error {
	if err := s.users.UpdateStatus(ctx, userID, store.StatusOnline, nil); err != nil {
		return fmt.Errorf("failed to mark user %s online: %w", userID, err)
	}
	return nil
}

// handleDisconnect sets the session's user offline and records last-seen.
// This is last-writer-wins per connection event: concurrent sessions for the
// same user are not counted, so closing one of several marks the user offline
// even if another session is still live.
func (s *Server) handleDisconnect(session *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	now := time.Now().UTC()
	if err := s.users.UpdateStatus(ctx, session.user.ID, store.StatusOffline, &now); err != nil {
		log.Printf("Failed to mark user %s offline: %v", session.user.ID, err)
		return
	}
	log.Printf("User %s marked offline (session %s)", session.user.Username, session.id)
}
