// Package server relays ephemeral typing indicators between sessions.
package server

import "log"

// relayTyping fans a typing indicator out to every registered session except
// the originator. Nothing is persisted and delivery is fire-and-forget; any
// debouncing is a client responsibility.
func (s *Server) relayTyping(session *Session, isTyping bool) {
	payload, err := encodeEvent(EventUserTyping, TypingPayload{
		UserID:   session.user.ID,
		Username: session.user.Username,
		IsTyping: isTyping,
	})
	if err != nil {
		log.Printf("Error encoding user:typing event: %v", err)
		return
	}
	s.hub.BroadcastExcept(session.id, payload)
}
