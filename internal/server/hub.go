// Package server coordinates session registration, event fan-out, and
// connection cleanup for the relaychat realtime system via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"
)

// outboundEvent is an encoded frame queued for fan-out. ExcludeSessionID, when
// non-empty, names the one session that must not receive the frame (used by
// the typing relay to skip the originator).
type outboundEvent struct {
	payload          []byte
	excludeSessionID string
}

// Hub maintains the registry of live sessions and fans events out to them.
// The registry is keyed by session id; insertion happens on successful
// authentication and removal on disconnect. Fan-out iterates a snapshot of the
// registry taken at call time.
type Hub struct {
	sessions   map[string]*Session
	broadcast  chan outboundEvent
	register   chan *Session
	unregister chan *Session
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates and initializes a new Hub. The returned Hub is ready to
// manage realtime sessions once Run is started.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:   make(map[string]*Session),
		broadcast:  make(chan outboundEvent),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Register queues a session for registration; the hub launches its pumps.
func (h *Hub) Register(session *Session) {
	h.register <- session
}

// Unregister queues a session for removal from the registry.
func (h *Hub) Unregister(session *Session) {
	h.unregister <- session
}

// BroadcastAll delivers an encoded frame to every registered session,
// including the sender's.
func (h *Hub) BroadcastAll(payload []byte) {
	h.broadcast <- outboundEvent{payload: payload}
}

// BroadcastExcept delivers an encoded frame to every registered session except
// the one with the given session id.
func (h *Hub) BroadcastExcept(sessionID string, payload []byte) {
	h.broadcast <- outboundEvent{payload: payload, excludeSessionID: sessionID}
}

// SessionCount returns the number of currently registered sessions.
func (h *Hub) SessionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.sessions)
}

func (h *Hub) safeSend(session *Session, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock for the whole send so unregistration cannot close the
	// channel mid-send.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.sessions[session.id]
	if !exists || session.closed {
		return false
	}

	select {
	case session.send <- payload:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling session registration,
// unregistration, and event broadcasting. This method should be called in a
// separate goroutine as it runs indefinitely.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownSessions()
			return

		case session := <-h.register:
			if session == nil {
				log.Printf("Received nil session registration; skipping")
				continue
			}

			h.mutex.Lock()
			session.closed = false
			h.sessions[session.id] = session
			sessionCount := len(h.sessions)
			h.mutex.Unlock()
			log.Printf("Session %s registered for user %s. Total sessions: %d", session.id, session.user.Username, sessionCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				session.writePump()
			}()
			go func() {
				defer h.wg.Done()
				session.readPump()
			}()

		case session := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.sessions[session.id]; ok {
				delete(h.sessions, session.id)
				session.closed = true
				sessionCount := len(h.sessions)
				h.mutex.Unlock()
				// Close the channel after releasing the lock.
				close(session.send)
				log.Printf("Session %s unregistered for user %s. Total sessions: %d", session.id, session.user.Username, sessionCount)
			} else {
				h.mutex.Unlock()
			}

		case event := <-h.broadcast:
			h.handleBroadcast(event)
		}
	}
}

// handleBroadcast delivers an event to a snapshot of the registry, honoring
// the event's exclusion.
func (h *Hub) handleBroadcast(event outboundEvent) {
	sessions := h.sessionSnapshot()

	var sessionsToRemove []*Session
	for _, session := range sessions {
		if event.excludeSessionID != "" && session.id == event.excludeSessionID {
			continue
		}
		if !h.safeSend(session, event.payload) {
			sessionsToRemove = append(sessionsToRemove, session)
		}
	}

	h.removeFailedSessions(sessionsToRemove)
}

// sessionSnapshot returns a point-in-time copy of the registered sessions so
// fan-out never iterates the live map.
func (h *Hub) sessionSnapshot() []*Session {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	sessions := make([]*Session, 0, len(h.sessions))
	for _, session := range h.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// removeFailedSessions drops sessions whose send buffers are full and closes
// their channels.
func (h *Hub) removeFailedSessions(sessionsToRemove []*Session) {
	if len(sessionsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, session := range sessionsToRemove {
		if _, exists := h.sessions[session.id]; exists {
			delete(h.sessions, session.id)
			session.closed = true
			channelsToClose = append(channelsToClose, session.send)
			log.Printf("Session %s removed due to full send buffer", session.id)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock.
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownSessions closes all active session connections.
func (h *Hub) shutdownSessions() {
	log.Println("Shutting down all realtime sessions...")

	h.mutex.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, session := range h.sessions {
		sessions = append(sessions, session)
	}
	h.mutex.Unlock()

	for _, session := range sessions {
		if session.conn != nil {
			if err := session.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing session %s connection: %v", session.id, err)
				}
			}
		}
	}

	log.Printf("Closed %d session connections", len(sessions))
}

// Shutdown initiates graceful shutdown of the hub and waits for all session
// goroutines to complete, or for the timeout to be reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()

	// Wait for Run() to complete.
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
