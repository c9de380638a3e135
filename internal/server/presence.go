package server

import (
	"context"
	"log"
	"time"
)

const mirrorTimeout = 5 * time.Second

// PresenceSink receives the full online user snapshot after every change.
type PresenceSink interface {
	PublishPresence(ctx context.Context, userIds []string) error
}

// broadcastPresence sends the full sorted online snapshot to every connected
// session, registered or not.
func (h *Hub) broadcastPresence() {
	ids := h.registry.OnlineUserIds()
	ev := NewOnlineUsers(ids)

	for _, s := range h.sessions {
		if !s.queueMessage(ev) {
			h.log.Printf("dropped presence update for session %q", s.id)
		}
	}

	if h.mirror != nil {
		h.mirror.update(ids)
	}
}

// presenceMirror forwards snapshots to a PresenceSink off the hub loop. Only
// the newest pending snapshot is kept.
type presenceMirror struct {
	log     *log.Logger
	sink    PresenceSink
	updates chan []string
	done    chan struct{}
}

func newPresenceMirror(logger *log.Logger, sink PresenceSink) *presenceMirror {
	return &presenceMirror{
		log:     logger,
		sink:    sink,
		updates: make(chan []string, 1),
		done:    make(chan struct{}),
	}
}

// update replaces any snapshot still waiting to be published. It must only
// be called from one goroutine.
func (m *presenceMirror) update(ids []string) {
	for {
		select {
		case m.updates <- ids:
			return
		default:
		}

		select {
		case <-m.updates:
		default:
		}
	}
}

func (m *presenceMirror) run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case ids := <-m.updates:
			pctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
			if err := m.sink.PublishPresence(pctx, ids); err != nil {
				m.log.Printf("mirror presence: %v", err)
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}
