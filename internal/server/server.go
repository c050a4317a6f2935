// Package server constructs and runs the relaychat HTTP and realtime service.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/mbeckers/relaychat/internal/auth"
	"github.com/mbeckers/relaychat/internal/config"
	"github.com/mbeckers/relaychat/internal/store"
)

// UserDirectory is the persistence contract for user identity and presence.
// Implemented by store.UserRepository.
type UserDirectory interface {
	Create(ctx context.Context, user *store.User) (*store.User, error)
	FindByID(ctx context.Context, id string) (*store.User, error)
	FindByLogin(ctx context.Context, login string) (*store.User, error)
	UpdateStatus(ctx context.Context, id string, status string, lastSeen *time.Time) error
}

// MessageStore is the persistence contract for the append-only message log.
// Implemented by store.MessageRepository.
type MessageStore interface {
	Insert(ctx context.Context, message *store.Message) (*store.Message, error)
	Recent(ctx context.Context, limit int) ([]store.Message, error)
}

// storeTimeout bounds every persistence call made on behalf of a session.
const storeTimeout = 10 * time.Second

// Server ties the realtime hub, the persistence layer, and the HTTP surface
// together.
type Server struct {
	cfg      config.Config
	hub      *Hub
	users    UserDirectory
	messages MessageStore
	tokens   *auth.TokenService
	validate *validator.Validate
	upgrader websocket.Upgrader
	origins  *originPolicy
}

// New creates a Server. The hub is created but not started; call StartHub
// before serving connections.
func New(cfg config.Config, users UserDirectory, messages MessageStore, tokens *auth.TokenService) *Server {
	s := &Server{
		cfg:      cfg,
		hub:      NewHub(),
		users:    users,
		messages: messages,
		tokens:   tokens,
		validate: validator.New(),
		origins:  newOriginPolicy(cfg.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Hub returns the server's session hub for lifecycle coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// StartHub starts the hub's event loop in a separate goroutine. This must be
// called before the HTTP server accepts websocket connections.
func (s *Server) StartHub() {
	go s.hub.Run()
	log.Println("Hub started and ready to manage realtime sessions")
}

// CreateServer creates and configures an HTTP server with the specified port
// and handler. It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns an error if the server fails to start.
func StartServer(server *http.Server) error {
	log.Printf("Server listening on %s", server.Addr)
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting
// active connections. It waits for active connections to close or until the
// timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	log.Println("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return err
	}

	log.Println("HTTP server shutdown completed")
	return nil
}
