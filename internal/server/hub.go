package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-callhub/internal/database"
	"github.com/npezzotti/go-callhub/internal/media"
	"github.com/npezzotti/go-callhub/internal/stats"
)

const defaultInviteTimeout = 30 * time.Second

var ErrHubStopped = errors.New("hub stopped")

// Hub owns presence and call state. Every transition happens on the Run
// goroutine, in the order events are received.
type Hub struct {
	log      *log.Logger
	db       database.GoChatRepository
	stats    stats.StatsProvider
	uploader media.Uploader
	messages MessageSink
	mirror   *presenceMirror

	registry      *Registry
	calls         *CallTable
	sessions      map[string]*Session
	inviteTimeout time.Duration

	connect    chan *Session
	disconnect chan *Session
	events     chan *ClientEvent
	deliver    chan *delivery
	expire     chan string

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

type HubOption func(*Hub)

func WithInviteTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.inviteTimeout = d
		}
	}
}

// WithPresenceSink mirrors every presence snapshot to sink.
func WithPresenceSink(sink PresenceSink) HubOption {
	return func(h *Hub) {
		if sink != nil {
			h.mirror = newPresenceMirror(h.log, sink)
		}
	}
}

// WithMessageSink publishes every persisted message to sink.
func WithMessageSink(sink MessageSink) HubOption {
	return func(h *Hub) {
		h.messages = sink
	}
}

func NewHub(logger *log.Logger, db database.GoChatRepository, st stats.StatsProvider, uploader media.Uploader, opts ...HubOption) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		log:           logger,
		db:            db,
		stats:         st,
		uploader:      uploader,
		registry:      NewRegistry(),
		calls:         NewCallTable(),
		sessions:      make(map[string]*Session),
		inviteTimeout: defaultInviteTimeout,
		connect:       make(chan *Session),
		disconnect:    make(chan *Session),
		events:        make(chan *ClientEvent, 256),
		deliver:       make(chan *delivery, 256),
		expire:        make(chan string, 64),
		ctx:           ctx,
		cancel:        cancel,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(h)
	}

	for _, m := range stats.Metrics {
		h.stats.RegisterMetric(m)
	}

	return h
}

func (h *Hub) Run() {
	if h.mirror != nil {
		go h.mirror.run(h.ctx)
	}

	for {
		select {
		case s := <-h.connect:
			h.addSession(s)
		case s := <-h.disconnect:
			h.removeSession(s)
		case ev := <-h.events:
			h.handleEvent(ev)
		case d := <-h.deliver:
			h.deliverMessage(d)
		case callId := <-h.expire:
			h.expireInvitation(callId)
		case <-h.stop:
			h.log.Println("shutting down hub")
			h.cancel()
			h.calls.StopTimers()
			for _, s := range h.sessions {
				s.stopSession()
			}

			h.wg.Wait()
			close(h.done)
			return
		}
	}
}

// Shutdown stops the loop, cancels in-flight message submissions and closes
// every session.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.log.Println("received shutdown signal")
	h.stopOnce.Do(func() { close(h.stop) })

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register hands a freshly accepted session to the hub.
func (h *Hub) Register(s *Session) error {
	select {
	case h.connect <- s:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) unregister(s *Session) {
	select {
	case h.disconnect <- s:
	case <-h.done:
	}
}

// submit queues an inbound event without blocking the session's read pump.
func (h *Hub) submit(ev *ClientEvent) bool {
	select {
	case h.events <- ev:
		return true
	default:
		return false
	}
}

// OnlineUserIds is safe to call from any goroutine.
func (h *Hub) OnlineUserIds() []string {
	return h.registry.OnlineUserIds()
}

func (h *Hub) addSession(s *Session) {
	h.log.Printf("adding session %q", s.id)
	h.sessions[s.id] = s
	h.stats.Incr(stats.NumSessions)
}

func (h *Hub) removeSession(s *Session) {
	if _, ok := h.sessions[s.id]; !ok {
		return
	}

	h.log.Printf("removing session %q", s.id)
	delete(h.sessions, s.id)
	h.stats.Decr(stats.NumSessions)

	userId, ok := h.registry.Deregister(s.id)
	if !ok {
		h.releaseBoundSession(s.id)
		return
	}

	if !h.registry.IsOnline(userId) {
		h.stats.Decr(stats.NumOnlineUsers)
	}
	h.releaseSession(userId, s.id)
	h.releaseBoundSession(s.id)
	h.broadcastPresence()
}

func (h *Hub) handleEvent(ev *ClientEvent) {
	s := ev.session
	if _, ok := h.sessions[s.id]; !ok {
		h.log.Printf("dropping %q from unknown session %q", ev.Name, s.id)
		return
	}

	var err error
	switch {
	case ev.UserOnline != nil:
		err = h.userOnline(s, ev.UserOnline.UserId)
	case ev.UserLogout != nil:
		err = h.userLogout(s, ev.UserLogout.UserId)
	case ev.ChatMessage != nil:
		err = h.submitMessage(s, ev.ChatMessage)
	case ev.CallRequest != nil:
		err = h.requestCall(s, ev.CallRequest)
	case ev.InvitationResponse != nil:
		err = h.respondToInvitation(s, ev.InvitationResponse)
	case ev.Signal != nil:
		err = h.forwardSignal(s, ev.Signal)
	case ev.LeaveCall != nil:
		err = h.leaveCall(s, ev.LeaveCall.From, ev.LeaveCall.To)
	default:
		err = ErrInvalidEvent
	}

	if err != nil {
		h.notifyError(s, ev.Name, err)
	}
}

func (h *Hub) notifyError(s *Session, event string, err error) {
	h.log.Printf("%s from session %q: %v", event, s.id, err)
	s.queueMessage(NewErrorNotification(err))
}

// authorize checks that s may act as userId. Sessions opened without a
// token may act as anyone.
func (h *Hub) authorize(s *Session, userId string) error {
	if s.authUserId != "" && s.authUserId != userId {
		return ErrUnauthorized
	}
	return nil
}

func (h *Hub) userOnline(s *Session, userId string) error {
	if userId == "" {
		return ErrMissingUserId
	}
	if err := h.authorize(s, userId); err != nil {
		return err
	}

	prevOwner, hadOwner := h.registry.Owner(s.id)
	wasOnline := h.registry.IsOnline(userId)
	if !h.registry.Register(userId, s.id) {
		return nil
	}

	h.log.Printf("user %q online on session %q", userId, s.id)
	if !wasOnline {
		h.stats.Incr(stats.NumOnlineUsers)
	}
	if hadOwner && !h.registry.IsOnline(prevOwner) {
		h.stats.Decr(stats.NumOnlineUsers)
	}
	if hadOwner {
		h.releaseSession(prevOwner, s.id)
	}

	h.broadcastPresence()
	return nil
}

func (h *Hub) userLogout(s *Session, userId string) error {
	if userId == "" {
		return ErrMissingUserId
	}
	if err := h.authorize(s, userId); err != nil {
		return err
	}

	if !h.registry.Unregister(userId, s.id) {
		return nil
	}

	h.log.Printf("user %q logged out of session %q", userId, s.id)
	if !h.registry.IsOnline(userId) {
		h.stats.Decr(stats.NumOnlineUsers)
	}
	h.releaseSession(userId, s.id)
	h.broadcastPresence()
	return nil
}

// sessionUser is the user a session acts as: its registered owner, else the
// identity it authenticated with.
func (h *Hub) sessionUser(s *Session) string {
	if userId, ok := h.registry.Owner(s.id); ok {
		return userId
	}
	return s.authUserId
}

func (h *Hub) sendToSession(sessionId string, ev *ServerEvent) bool {
	s, ok := h.sessions[sessionId]
	if !ok {
		return false
	}
	return s.queueMessage(ev)
}

func (h *Hub) sendToUser(userId string, ev *ServerEvent) {
	for _, id := range h.registry.SessionsFor(userId) {
		h.sendToSession(id, ev)
	}
}
