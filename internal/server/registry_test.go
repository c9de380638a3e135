package server

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_Register(t *testing.T) {
	t.Run("adds sessions under user", func(t *testing.T) {
		r := NewRegistry()

		assert.True(t, r.Register("bob", "s2"))
		assert.True(t, r.Register("bob", "s3"))
		assert.True(t, r.IsOnline("bob"))
		assert.Equal(t, []string{"s3", "s2"}, r.SessionsFor("bob"), "expected most recent session first")
	})

	t.Run("re-registering is idempotent", func(t *testing.T) {
		r := NewRegistry()

		assert.True(t, r.Register("alice", "s1"))
		assert.True(t, r.Register("alice", "s2"))
		before := r.SessionsFor("alice")

		assert.False(t, r.Register("alice", "s1"), "expected no change on duplicate register")
		assert.Equal(t, before, r.SessionsFor("alice"), "expected duplicate register not to bump recency")

		latest, ok := r.LatestSession("alice")
		assert.True(t, ok)
		assert.Equal(t, "s2", latest)
	})

	t.Run("moves session to new owner", func(t *testing.T) {
		r := NewRegistry()

		r.Register("alice", "s1")
		assert.True(t, r.Register("bob", "s1"))

		assert.False(t, r.IsOnline("alice"), "expected alice to be pruned")
		owner, ok := r.Owner("s1")
		assert.True(t, ok)
		assert.Equal(t, "bob", owner)
	})

	t.Run("rejects empty ids", func(t *testing.T) {
		r := NewRegistry()

		assert.False(t, r.Register("", "s1"))
		assert.False(t, r.Register("alice", ""))
		assert.Empty(t, r.OnlineUserIds())
	})
}

func TestRegistry_Deregister(t *testing.T) {
	t.Run("prunes empty user", func(t *testing.T) {
		r := NewRegistry()
		r.Register("alice", "s1")

		userId, ok := r.Deregister("s1")
		assert.True(t, ok)
		assert.Equal(t, "alice", userId)
		assert.False(t, r.IsOnline("alice"))
		assert.Empty(t, r.OnlineUserIds())
	})

	t.Run("keeps user with remaining sessions", func(t *testing.T) {
		r := NewRegistry()
		r.Register("bob", "s2")
		r.Register("bob", "s3")

		r.Deregister("s3")
		assert.True(t, r.IsOnline("bob"))
		assert.Equal(t, []string{"s2"}, r.SessionsFor("bob"))
	})

	t.Run("unknown session is a no-op", func(t *testing.T) {
		r := NewRegistry()
		r.Register("alice", "s1")
		r.Register("bob", "s2")

		userId, ok := r.Deregister("missing")
		assert.False(t, ok)
		assert.Empty(t, userId)
		assert.Equal(t, []string{"alice", "bob"}, r.OnlineUserIds())
		assert.Equal(t, []string{"s1"}, r.SessionsFor("alice"))
		assert.Equal(t, []string{"s2"}, r.SessionsFor("bob"))
	})
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	r.Register("alice", "s1")

	assert.False(t, r.Unregister("bob", "s1"), "expected logout of a foreign session to fail")
	assert.True(t, r.IsOnline("alice"))

	assert.True(t, r.Unregister("alice", "s1"))
	assert.False(t, r.IsOnline("alice"))
	assert.False(t, r.Unregister("alice", "s1"))
}

func TestRegistry_LatestSession(t *testing.T) {
	r := NewRegistry()

	_, ok := r.LatestSession("alice")
	assert.False(t, ok, "expected no session for offline user")

	r.Register("alice", "s1")
	r.Register("alice", "s2")
	r.Register("alice", "s3")
	r.Deregister("s3")

	latest, ok := r.LatestSession("alice")
	assert.True(t, ok)
	assert.Equal(t, "s2", latest)
}

func TestRegistry_OnlineUserIds_Sorted(t *testing.T) {
	r := NewRegistry()
	r.Register("carol", "s3")
	r.Register("alice", "s1")
	r.Register("bob", "s2")

	assert.Equal(t, []string{"alice", "bob", "carol"}, r.OnlineUserIds())
}

// A user is listed online iff it has at least one session, for any sequence
// of register and deregister calls.
func TestRegistry_PresenceMatchesSessions(t *testing.T) {
	users := []string{"alice", "bob", "carol"}
	sessions := []string{"s1", "s2", "s3", "s4", "s5", "s6"}
	rng := rand.New(rand.NewSource(42))

	r := NewRegistry()
	model := make(map[string]string) // session -> user

	for i := 0; i < 2000; i++ {
		s := sessions[rng.Intn(len(sessions))]
		switch rng.Intn(3) {
		case 0:
			u := users[rng.Intn(len(users))]
			r.Register(u, s)
			model[s] = u
		case 1:
			r.Deregister(s)
			delete(model, s)
		case 2:
			u := users[rng.Intn(len(users))]
			if r.Unregister(u, s) {
				delete(model, s)
			}
		}

		expected := make(map[string]int)
		for _, u := range model {
			expected[u]++
		}

		online := r.OnlineUserIds()
		assert.Len(t, online, len(expected), "step %d", i)
		for _, u := range online {
			assert.Equal(t, expected[u], len(r.SessionsFor(u)), "step %d user %s", i, u)
			assert.NotZero(t, expected[u], "step %d: orphan entry for %s", i, u)
		}
	}
}
