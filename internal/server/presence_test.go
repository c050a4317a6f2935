package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeckers/relaychat/internal/store"
)

func TestMarkOnline(t *testing.T) {
	env := newTestEnv(t)

	alice := env.users.add("alice", "alice@example.com", "")

	require.NoError(t, env.srv.markOnline(context.Background(), alice.ID.Hex()))

	status, lastSeen := env.users.status(alice.ID.Hex())
	assert.Equal(t, store.StatusOnline, status)
	// Last-seen is left unchanged on the online transition.
	assert.True(t, lastSeen.IsZero())
}

func TestHandleDisconnect_MarksOfflineWithLastSeen(t *testing.T) {
	env := newTestEnv(t)

	alice := env.users.add("alice", "alice@example.com", "")
	session := env.registerBareSession(alice)

	require.NoError(t, env.srv.markOnline(context.Background(), alice.ID.Hex()))

	before := time.Now().UTC()
	env.srv.handleDisconnect(session)

	status, lastSeen := env.users.status(alice.ID.Hex())
	assert.Equal(t, store.StatusOffline, status)
	assert.False(t, lastSeen.Before(before))
}

func TestHandleDisconnect_LastWriterWins(t *testing.T) {
	env := newTestEnv(t)

	// Two concurrent sessions for the same user: closing one marks the user
	// offline even though the other is still registered. Sessions are not
	// reference-counted per user.
	alice := env.users.add("alice", "alice@example.com", "")
	first := env.registerBareSession(alice)
	_ = env.registerBareSession(alice)

	require.NoError(t, env.srv.markOnline(context.Background(), alice.ID.Hex()))
	env.srv.handleDisconnect(first)

	status, _ := env.users.status(alice.ID.Hex())
	assert.Equal(t, store.StatusOffline, status)
	assert.Equal(t, 2, env.srv.Hub().SessionCount())
}

func TestHandleDisconnect_DirectoryFailureLogged(t *testing.T) {
	env := newTestEnv(t)

	alice := env.users.add("alice", "alice@example.com", "")
	session := env.registerBareSession(alice)
	env.users.failUpdate = true

	// Must not panic; the failure is logged and the disconnect continues.
	env.srv.handleDisconnect(session)
}
