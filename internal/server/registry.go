package server

import (
	"sort"
	"sync"
)

// Registry maps each online user to its live sessions. It is the only source
// of truth for presence: a user is online iff it has at least one session.
type Registry struct {
	mu     sync.RWMutex
	users  map[string]map[string]uint64
	owners map[string]string
	seq    uint64
}

func NewRegistry() *Registry {
	return &Registry{
		users:  make(map[string]map[string]uint64),
		owners: make(map[string]string),
	}
}

// Register adds sessionId to userId's sessions and reports whether anything
// changed. A session belongs to one user; registering it under a new user
// moves it.
func (r *Registry) Register(userId, sessionId string) bool {
	if userId == "" || sessionId == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.owners[sessionId]; ok {
		if owner == userId {
			return false
		}
		r.remove(owner, sessionId)
	}

	sessions, ok := r.users[userId]
	if !ok {
		sessions = make(map[string]uint64)
		r.users[userId] = sessions
	}

	r.seq++
	sessions[sessionId] = r.seq
	r.owners[sessionId] = userId

	return true
}

// Deregister removes sessionId from whichever user owns it.
func (r *Registry) Deregister(sessionId string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userId, ok := r.owners[sessionId]
	if !ok {
		return "", false
	}

	r.remove(userId, sessionId)
	return userId, true
}

// Unregister removes sessionId only if it is owned by userId.
func (r *Registry) Unregister(userId, sessionId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.owners[sessionId]; !ok || owner != userId {
		return false
	}

	r.remove(userId, sessionId)
	return true
}

func (r *Registry) remove(userId, sessionId string) {
	delete(r.owners, sessionId)

	sessions, ok := r.users[userId]
	if !ok {
		return
	}

	delete(sessions, sessionId)
	if len(sessions) == 0 {
		delete(r.users, userId)
	}
}

// SessionsFor returns userId's sessions, most recently registered first.
func (r *Registry) SessionsFor(userId string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.users[userId]
	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		return sessions[ids[i]] > sessions[ids[j]]
	})

	return ids
}

// LatestSession picks the session a single-target event is sent to: the most
// recently registered live session of userId.
func (r *Registry) LatestSession(userId string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		latest string
		seq    uint64
	)
	for id, s := range r.users[userId] {
		if s > seq {
			latest, seq = id, s
		}
	}

	return latest, latest != ""
}

func (r *Registry) OnlineUserIds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

func (r *Registry) IsOnline(userId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.users[userId]
	return ok
}

// Owner returns the user a session is registered under.
func (r *Registry) Owner(sessionId string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userId, ok := r.owners[sessionId]
	return userId, ok
}

func (r *Registry) HasSession(userId, sessionId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.users[userId][sessionId]
	return ok
}
