package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/npezzotti/go-callhub/internal/stats"
	"github.com/teris-io/shortid"
)

type CallState int

const (
	CallPending CallState = iota + 1
	CallActive
)

func (s CallState) String() string {
	switch s {
	case CallPending:
		return "pending"
	case CallActive:
		return "active"
	}
	return "unknown"
}

// Call pairs two users. A pending call is an invitation awaiting the callee's
// response; it already locks both parties. While pending, CalleeSession is
// the session the invitation was delivered to.
type Call struct {
	Id            string
	Caller        string
	Callee        string
	CallerSession string
	CalleeSession string
	State         CallState
	CreatedAt     time.Time

	timer *time.Timer
}

// Peer returns the other participant.
func (c *Call) Peer(userId string) string {
	if userId == c.Caller {
		return c.Callee
	}
	return c.Caller
}

// SessionOf returns the session userId is bound to in this call, if any.
func (c *Call) SessionOf(userId string) string {
	switch userId {
	case c.Caller:
		return c.CallerSession
	case c.Callee:
		return c.CalleeSession
	}
	return ""
}

func (c *Call) Involves(userId string) bool {
	return userId == c.Caller || userId == c.Callee
}

// CallTable holds every pending and active call. Each user is in at most one.
type CallTable struct {
	mu     sync.RWMutex
	byUser map[string]*Call
	byId   map[string]*Call
}

func NewCallTable() *CallTable {
	return &CallTable{
		byUser: make(map[string]*Call),
		byId:   make(map[string]*Call),
	}
}

// Invite stores a pending call from caller to callee. It fails with
// ErrAlreadyInCall when either party is already in a call, in either
// direction.
func (t *CallTable) Invite(caller, callee, callerSession, calleeSession string) (*Call, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byUser[caller]; ok {
		return nil, ErrAlreadyInCall
	}
	if _, ok := t.byUser[callee]; ok {
		return nil, ErrAlreadyInCall
	}

	id, err := shortid.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate call id: %w", err)
	}

	c := &Call{
		Id:            id,
		Caller:        caller,
		Callee:        callee,
		CallerSession: callerSession,
		CalleeSession: calleeSession,
		State:         CallPending,
		CreatedAt:     Now(),
	}
	t.byUser[caller] = c
	t.byUser[callee] = c
	t.byId[id] = c

	return c, nil
}

// Pending returns the pending invitation from caller to callee.
func (t *CallTable) Pending(caller, callee string) (*Call, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c, ok := t.byUser[callee]
	if !ok || c.State != CallPending || c.Caller != caller || c.Callee != callee {
		return nil, false
	}
	return c, true
}

// Accept activates the pending call from caller to callee and binds the
// callee's responding session.
func (t *CallTable) Accept(caller, callee, calleeSession string) (*Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.byUser[callee]
	if !ok || c.State != CallPending || c.Caller != caller || c.Callee != callee {
		return nil, false
	}

	c.State = CallActive
	c.CalleeSession = calleeSession
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	return c, true
}

// Remove deletes c and stops its expiry timer. It reports false when c was
// already gone.
func (t *CallTable) Remove(c *Call) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.byId[c.Id]; !ok || cur != c {
		return false
	}

	delete(t.byId, c.Id)
	if t.byUser[c.Caller] == c {
		delete(t.byUser, c.Caller)
	}
	if t.byUser[c.Callee] == c {
		delete(t.byUser, c.Callee)
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	return true
}

func (t *CallTable) CallOf(userId string) (*Call, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c, ok := t.byUser[userId]
	return c, ok
}

// BoundTo returns every call with a participant bound to sessionId.
func (t *CallTable) BoundTo(sessionId string) []*Call {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var calls []*Call
	for _, c := range t.byId {
		if c.CallerSession == sessionId || c.CalleeSession == sessionId {
			calls = append(calls, c)
		}
	}
	return calls
}

func (t *CallTable) Get(callId string) (*Call, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c, ok := t.byId[callId]
	return c, ok
}

func (t *CallTable) InCall(userId string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.byUser[userId]
	return ok
}

// SetTimer attaches the invitation expiry timer to a pending call.
func (t *CallTable) SetTimer(c *Call, timer *time.Timer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c.timer = timer
}

func (t *CallTable) NumActive() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, c := range t.byId {
		if c.State == CallActive {
			n++
		}
	}
	return n
}

// StopTimers cancels every pending expiry, used on shutdown.
func (t *CallTable) StopTimers() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, c := range t.byId {
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
	}
}

func (h *Hub) requestCall(s *Session, req *CallRequest) error {
	caller, callee := req.UserId, req.To
	if caller == "" || callee == "" {
		return ErrMissingCallParties
	}
	if caller == callee {
		return ErrSelfCall
	}
	if err := h.authorize(s, caller); err != nil {
		return err
	}

	calleeSession, ok := h.registry.LatestSession(callee)
	if !ok {
		return ErrTargetOffline
	}

	c, err := h.calls.Invite(caller, callee, s.id, calleeSession)
	if err != nil {
		return err
	}

	timeout := h.inviteTimeout
	h.calls.SetTimer(c, time.AfterFunc(timeout, func() {
		select {
		case h.expire <- c.Id:
		case <-h.done:
		}
	}))

	h.log.Printf("call %q: %q invited %q", c.Id, caller, callee)
	h.sendToSession(calleeSession, NewCallInvitation(caller, req.Username, c.Id))
	return nil
}

// respondToInvitation handles the callee's answer. from is the callee and to
// the caller.
func (h *Hub) respondToInvitation(s *Session, resp *InvitationResponse) error {
	callee, caller := resp.From, resp.To
	if callee == "" || caller == "" {
		return ErrMissingCallParties
	}
	if err := h.authorize(s, callee); err != nil {
		return err
	}

	if !h.registry.IsOnline(caller) {
		if c, ok := h.calls.Pending(caller, callee); ok {
			h.endCall(c)
		}
		return ErrTargetUnavailable
	}

	c, ok := h.calls.Pending(caller, callee)
	if !ok {
		return ErrInvitationNotFound
	}

	dest := c.CallerSession
	if !h.registry.HasSession(caller, dest) {
		dest, _ = h.registry.LatestSession(caller)
	}

	if resp.Action == ActionAllow {
		h.calls.Accept(caller, callee, s.id)
		h.stats.Incr(stats.NumActiveCalls)
		h.log.Printf("call %q: accepted by %q", c.Id, callee)
	} else {
		h.endCall(c)
		h.log.Printf("call %q: %q responded %q", c.Id, callee, resp.Action)
	}

	h.sendToSession(dest, NewInvitationRemoteResponse(resp.Action, callee, c.Id))
	return nil
}

// leaveCall ends from's call. When to is set it must be from's peer in that
// call, so a user can only hang up a call they are part of. The leaving
// session and every session of the peer are told to leave.
func (h *Hub) leaveCall(s *Session, from, to string) error {
	if from == "" {
		return ErrMissingCallParties
	}
	if err := h.authorize(s, from); err != nil {
		return err
	}

	c, ok := h.calls.CallOf(from)
	if !ok {
		return nil
	}
	if to != "" && (to == from || !c.Involves(to)) {
		return ErrNotInCallWith
	}

	h.endCall(c)
	h.log.Printf("call %q: left by %q", c.Id, from)

	s.queueMessage(NewLeaveCall())
	h.sendToUser(c.Peer(from), NewLeaveCall())
	return nil
}

func (h *Hub) expireInvitation(callId string) {
	c, ok := h.calls.Get(callId)
	if !ok || c.State != CallPending {
		return
	}

	h.endCall(c)
	h.log.Printf("call %q: invitation expired", c.Id)
	h.sendToUser(c.Caller, NewInvitationRemoteResponse(ActionTimeout, c.Callee, c.Id))
	h.sendToUser(c.Callee, NewLeaveCall())
}

// releaseSession ends userId's call when sessionId was the session bound to
// it, or when userId has no sessions left. The peer is told to leave.
func (h *Hub) releaseSession(userId, sessionId string) {
	c, ok := h.calls.CallOf(userId)
	if !ok {
		return
	}
	if c.SessionOf(userId) != sessionId && h.registry.IsOnline(userId) {
		return
	}

	h.endCall(c)
	h.log.Printf("call %q: released after %q lost session %q", c.Id, userId, sessionId)
	h.sendToUser(c.Peer(userId), NewLeaveCall())
}

// releaseBoundSession ends every call still bound to a closed session. This
// covers sessions that acted in a call without registering under the
// participant. Participants bound elsewhere are told to leave.
func (h *Hub) releaseBoundSession(sessionId string) {
	for _, c := range h.calls.BoundTo(sessionId) {
		h.endCall(c)
		h.log.Printf("call %q: released after session %q closed", c.Id, sessionId)
		for _, userId := range []string{c.Caller, c.Callee} {
			if c.SessionOf(userId) != sessionId {
				h.sendToUser(userId, NewLeaveCall())
			}
		}
	}
}

func (h *Hub) endCall(c *Call) {
	if h.calls.Remove(c) && c.State == CallActive {
		h.stats.Decr(stats.NumActiveCalls)
	}
}
