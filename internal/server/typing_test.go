package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayTyping_ExcludesOriginator(t *testing.T) {
	env := newTestEnv(t)

	alice := env.users.add("alice", "alice@example.com", "")
	bob := env.users.add("bob", "bob@example.com", "")
	carol := env.users.add("carol", "carol@example.com", "")

	origin := env.registerBareSession(alice)
	second := env.registerBareSession(bob)
	third := env.registerBareSession(carol)

	env.srv.relayTyping(origin, true)

	for _, s := range []*Session{second, third} {
		frame := nextFrame(t, s)
		require.Equal(t, EventUserTyping, frame.Event)

		var payload TypingPayload
		decodeData(t, frame, &payload)
		assert.Equal(t, alice.ID.Hex(), payload.UserID)
		assert.Equal(t, "alice", payload.Username)
		assert.True(t, payload.IsTyping)
	}

	noFrame(t, origin, 100*time.Millisecond)
}

func TestRelayTyping_StopFlag(t *testing.T) {
	env := newTestEnv(t)

	alice := env.users.add("alice", "alice@example.com", "")
	bob := env.users.add("bob", "bob@example.com", "")
	origin := env.registerBareSession(alice)
	other := env.registerBareSession(bob)

	env.srv.relayTyping(origin, false)

	frame := nextFrame(t, other)
	require.Equal(t, EventUserTyping, frame.Event)

	var payload TypingPayload
	decodeData(t, frame, &payload)
	assert.False(t, payload.IsTyping)
}

func TestRelayTyping_NoOtherSessions(t *testing.T) {
	env := newTestEnv(t)

	alice := env.users.add("alice", "alice@example.com", "")
	origin := env.registerBareSession(alice)

	// Fire-and-forget: with nobody else connected nothing is observed and
	// nothing blocks.
	env.srv.relayTyping(origin, true)
	noFrame(t, origin, 100*time.Millisecond)
}
