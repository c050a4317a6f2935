package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mbeckers/relaychat/internal/auth"
	"github.com/mbeckers/relaychat/internal/config"
	"github.com/mbeckers/relaychat/internal/store"
)

const testSecret = "test-secret"

// fakeUserDirectory is an in-memory UserDirectory with switchable failures.
type fakeUserDirectory struct {
	mu         sync.Mutex
	users      map[string]*store.User
	failFind   bool
	failUpdate bool
}

func newFakeUserDirectory() *fakeUserDirectory {
	return &fakeUserDirectory{users: make(map[string]*store.User)}
}

func (f *fakeUserDirectory) add(username, email, passwordHash string) *store.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := &store.User{
		ID:       primitive.NewObjectID(),
		Username: username,
		Email:    strings.ToLower(email),
		Password: passwordHash,
		Status:   store.StatusOffline,
	}
	f.users[user.ID.Hex()] = user
	return user
}

func (f *fakeUserDirectory) Create(_ context.Context, user *store.User) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Username == user.Username || existing.Email == strings.ToLower(user.Email) {
			return nil, store.ErrDuplicate
		}
	}
	user.ID = primitive.NewObjectID()
	user.Email = strings.ToLower(user.Email)
	user.Status = store.StatusOffline
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID.Hex()] = user
	return user, nil
}

func (f *fakeUserDirectory) FindByID(_ context.Context, id string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFind {
		return nil, errors.New("directory unavailable")
	}
	user, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *user
	copied.Password = ""
	return &copied, nil
}

func (f *fakeUserDirectory) FindByLogin(_ context.Context, login string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Username == login || user.Email == strings.ToLower(login) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeUserDirectory) UpdateStatus(_ context.Context, id string, status string, lastSeen *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate {
		return errors.New("directory unavailable")
	}
	user, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Status = status
	if lastSeen != nil {
		user.LastSeen = *lastSeen
	}
	return nil
}

func (f *fakeUserDirectory) status(id string) (string, time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return "", time.Time{}
	}
	return user.Status, user.LastSeen
}

// fakeMessageStore is an in-memory MessageStore with switchable failures.
type fakeMessageStore struct {
	mu         sync.Mutex
	messages   []store.Message
	failInsert bool
	failRecent bool
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{}
}

func (f *fakeMessageStore) Insert(_ context.Context, message *store.Message) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return nil, errors.New("message store unavailable")
	}
	message.ID = primitive.NewObjectID()
	message.CreatedAt = time.Now().UTC()
	f.messages = append(f.messages, *message)
	return message, nil
}

func (f *fakeMessageStore) Recent(_ context.Context, limit int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRecent {
		return nil, errors.New("message store unavailable")
	}
	start := len(f.messages) - limit
	if start < 0 {
		start = 0
	}
	out := make([]store.Message, len(f.messages)-start)
	copy(out, f.messages[start:])
	return out, nil
}

func (f *fakeMessageStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

// testEnv bundles a server wired to fakes with a running hub.
type testEnv struct {
	srv      *Server
	users    *fakeUserDirectory
	messages *fakeMessageStore
	tokens   *auth.TokenService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.AllowedOrigins = []string{"*"}
	cfg.JWTSecret = testSecret
	// Generous burst so tests never trip the inbound rate limiter.
	cfg.RateLimit.Burst = 1000

	users := newFakeUserDirectory()
	messages := newFakeMessageStore()
	tokens := auth.NewTokenService(testSecret, time.Hour)

	srv := New(cfg, users, messages, tokens)
	srv.StartHub()
	t.Cleanup(func() {
		_ = srv.Hub().Shutdown(time.Second)
	})

	return &testEnv{srv: srv, users: users, messages: messages, tokens: tokens}
}

// startHTTP exposes the env's routes on an httptest server.
func (e *testEnv) startHTTP(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(e.srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

// wsURL rewrites an httptest base URL to the websocket endpoint.
func wsURL(ts *httptest.Server, token string) string {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

// dialWS opens a websocket connection, requiring a successful handshake.
func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readEvent reads the next frame and decodes its envelope.
func readEvent(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

// expectEvent reads frames until one with the wanted event name arrives.
func expectEvent(t *testing.T, conn *websocket.Conn, event string) Envelope {
	t.Helper()
	for i := 0; i < 10; i++ {
		env := readEvent(t, conn)
		if env.Event == event {
			return env
		}
	}
	t.Fatalf("event %q never arrived", event)
	return Envelope{}
}

// expectNoEvent asserts that nothing arrives within the wait window.
func expectNoEvent(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no frame, got %s", raw)
	}
	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout(), "expected read timeout, got %v", err)
}

// decodeData unmarshals an envelope payload into dst.
func decodeData(t *testing.T, env Envelope, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

// issueToken signs a token for the given user with the test secret.
func (e *testEnv) issueToken(t *testing.T, user *store.User) string {
	t.Helper()
	token, err := e.tokens.Issue(user.ID.Hex())
	require.NoError(t, err)
	return token
}

// registerBareSession inserts a session into the hub registry without pumps,
// for white-box tests that inspect the send channel directly.
func (e *testEnv) registerBareSession(user *store.User) *Session {
	session := newSession(e.srv, nil, sessionUser{ID: user.ID.Hex(), Username: user.Username}, "test")
	e.srv.hub.mutex.Lock()
	e.srv.hub.sessions[session.id] = session
	e.srv.hub.mutex.Unlock()
	return session
}

// nextFrame pops one frame from a bare session's send channel.
func nextFrame(t *testing.T, session *Session) Envelope {
	t.Helper()
	select {
	case raw := <-session.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no frame queued for session")
		return Envelope{}
	}
}

// noFrame asserts a bare session's send channel stays empty for the window.
func noFrame(t *testing.T, session *Session, wait time.Duration) {
	t.Helper()
	select {
	case raw := <-session.send:
		t.Fatalf("expected no frame, got %s", raw)
	case <-time.After(wait):
	}
}
