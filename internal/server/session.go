// Package server manages individual realtime sessions, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mbeckers/relaychat/internal/config"
)

const (
	// pongWait is how long a connection may stay silent before it is
	// considered dead; pings are sent at a fraction of it.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// sessionUser is the identity a session is bound to after authentication.
type sessionUser struct {
	ID       string
	Username string
}

// Session is the live binding between one websocket connection and one
// authenticated user. It exists only while the connection is live; a
// reconnect creates a brand-new session.
type Session struct {
	id           string
	user         sessionUser
	conn         *websocket.Conn
	send         chan []byte
	server       *Server
	hub          *Hub
	addr         string
	closed       bool
	maxFrameSize int64
	rateLimiter  *rateLimiter
	rateLimit    config.RateLimitConfig
}

// newSession creates a Session bound to the given user identity. The send
// channel is buffered so fan-out never blocks on a slow connection.
func newSession(srv *Server, conn *websocket.Conn, user sessionUser, addr string) *Session {
	cfg := srv.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxFrameSize)
	}

	return &Session{
		id:           uuid.NewString(),
		user:         user,
		conn:         conn,
		send:         make(chan []byte, 256),
		server:       srv,
		hub:          srv.hub,
		addr:         addr,
		maxFrameSize: cfg.MaxFrameSize,
		rateLimiter:  newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:    cfg.RateLimit,
	}
}

// ID returns the session's registry key.
func (s *Session) ID() string {
	return s.id
}

// sendEvent encodes an event and queues it for delivery to this session only.
// Delivery is best-effort: a full buffer or closed session drops the frame.
func (s *Session) sendEvent(event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		log.Printf("Error encoding %s event for session %s: %v", event, s.id, err)
		return
	}
	s.enqueue(payload)
}

// enqueue puts an already-encoded frame on the send channel without blocking.
// The hub lock is held for the send so unregistration cannot close the channel
// mid-send.
func (s *Session) enqueue(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Dropped frame for closed session %s", s.id)
		}
	}()

	s.hub.mutex.RLock()
	defer s.hub.mutex.RUnlock()

	if s.closed {
		return
	}
	select {
	case s.send <- payload:
	default:
		log.Printf("Send buffer full for session %s; dropping frame", s.id)
	}
}

// setupReadConnection configures read deadlines and the pong handler.
func (s *Session) setupReadConnection() {
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", s.addr, err)
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", s.addr, err)
		}
		return nil
	})
}

// logReadError logs an appropriate message for a read-loop error.
func (s *Session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Frame from %s exceeded maximum size of %d bytes", s.addr, s.maxFrameSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Session %s (%s) disconnected: %v", s.id, s.addr, err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		log.Printf("Session %s connection closed: %v", s.id, err)
	default:
		log.Printf("Websocket read error from %s: %v", s.addr, err)
	}
}

// checkRateLimit reports whether the next inbound frame may be processed.
func (s *Session) checkRateLimit() bool {
	if s.rateLimiter != nil && !s.rateLimiter.allow() {
		log.Printf("Rate limit exceeded for %s (%d frames per %s); discarding frame", s.addr, s.rateLimit.Burst, s.rateLimit.RefillInterval)
		return false
	}
	return true
}

// dispatch routes one inbound frame to the matching event handler.
func (s *Session) dispatch(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("Invalid frame from session %s: %v", s.id, err)
		return
	}

	switch env.Event {
	case EventMessageSend:
		var payload SendMessagePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			log.Printf("Invalid message:send payload from session %s: %v", s.id, err)
			return
		}
		s.server.handleSendMessage(s, payload.Content)
	case EventTypingStart:
		s.server.relayTyping(s, true)
	case EventTypingStop:
		s.server.relayTyping(s, false)
	default:
		log.Printf("Unknown event %q from session %s", env.Event, s.id)
	}
}

// readPump reads inbound frames until the connection dies, then triggers the
// disconnect transition. Teardown always runs, on every exit path, so the
// registry entry and the presence record never outlive the connection.
func (s *Session) readPump() {
	defer func() {
		s.server.handleDisconnect(s)
		s.hub.unregister <- s
		if err := s.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error closing connection in readPump: %v", err)
			}
		}
	}()

	s.setupReadConnection()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			break
		}

		if !s.checkRateLimit() {
			continue
		}

		s.dispatch(raw)
	}
}

// writePump drains the send channel onto the connection and keeps it alive
// with periodic pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.closeConnection()
	}()

	for s.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (s *Session) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case payload, ok := <-s.send:
		return s.handleOutbound(payload, ok)
	case <-ticker.C:
		return s.handlePing()
	}
}

// closeConnection closes the websocket connection, ignoring expected errors.
func (s *Session) closeConnection() {
	if err := s.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}
}

// handleOutbound writes one frame and returns false if the connection should
// be closed.
func (s *Session) handleOutbound(payload []byte, ok bool) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", s.addr, err)
		return false
	}

	if !ok {
		// The hub closed the channel.
		if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error writing close message to %s: %v", s.addr, err)
			}
		}
		return false
	}

	// One event per text frame; clients parse each frame as a single envelope.
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("Error writing frame to %s: %v", s.addr, err)
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive.
func (s *Session) handlePing() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", s.addr, err)
		return false
	}
	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Printf("Error writing ping message to %s: %v", s.addr, err)
		return false
	}
	return true
}
