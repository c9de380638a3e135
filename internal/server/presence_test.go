package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-callhub/internal/database"
	"github.com/npezzotti/go-callhub/internal/stats"
	"github.com/npezzotti/go-callhub/internal/testutil"
	"github.com/stretchr/testify/assert"
)

type fakePresenceSink struct {
	mu        sync.Mutex
	snapshots [][]string
	err       error
}

func (f *fakePresenceSink) PublishPresence(_ context.Context, userIds []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, userIds)
	return f.err
}

func (f *fakePresenceSink) last() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.snapshots) == 0 {
		return nil
	}
	return f.snapshots[len(f.snapshots)-1]
}

func TestHub_broadcastPresence(t *testing.T) {
	t.Run("full snapshot on every change", func(t *testing.T) {
		h := newTestHub(t, &database.MockGoChatRepository{}, (&stats.MockStatsUpdater{}).AllowCounters())
		s1 := online(t, h, "bob", "s1")
		s2 := online(t, h, "alice", "s2")

		evs := drain(s1)
		assert.Len(t, evs, 2)
		assert.Equal(t, []string{"alice", "bob"}, evs[1].Data, "expected sorted full snapshot")
		assert.Equal(t, []string{"alice", "bob"}, expectEvent(t, s2, EventUpdateOnlineUsers).Data)
	})

	t.Run("full send queue is skipped", func(t *testing.T) {
		h := newTestHub(t, &database.MockGoChatRepository{}, (&stats.MockStatsUpdater{}).AllowCounters())
		full := &Session{id: "full", log: testutil.TestLogger(t), send: make(chan *ServerEvent, 1), stop: make(chan struct{})}
		full.send <- &ServerEvent{}
		h.sessions[full.id] = full
		s1 := newTestSession(t, h, "s1")

		assert.NoError(t, h.userOnline(s1, "alice"))
		expectEvent(t, s1, EventUpdateOnlineUsers)
		assert.Len(t, full.send, 1)
	})

	t.Run("empty snapshot is an empty list", func(t *testing.T) {
		h := newTestHub(t, &database.MockGoChatRepository{}, (&stats.MockStatsUpdater{}).AllowCounters())
		s1 := online(t, h, "alice", "s1")
		drain(s1)

		assert.NoError(t, h.userLogout(s1, "alice"))
		ev := expectEvent(t, s1, EventUpdateOnlineUsers)
		assert.Equal(t, []string{}, ev.Data)
	})
}

func TestPresenceMirror(t *testing.T) {
	t.Run("publishes the latest snapshot", func(t *testing.T) {
		sink := &fakePresenceSink{}
		h := newTestHub(t, &database.MockGoChatRepository{}, (&stats.MockStatsUpdater{}).AllowCounters(), WithPresenceSink(sink))
		assert.NotNil(t, h.mirror)
		go h.Run()

		s1 := &Session{id: "s1", hub: h, log: testutil.TestLogger(t), send: make(chan *ServerEvent, 32), stop: make(chan struct{})}
		assert.NoError(t, h.Register(s1))
		h.submit(&ClientEvent{Name: EventUserOnline, UserOnline: &UserOnline{UserId: "alice"}, session: s1})

		assert.Eventually(t, func() bool {
			return assert.ObjectsAreEqual([]string{"alice"}, sink.last())
		}, time.Second, 10*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, h.Shutdown(ctx))
	})

	t.Run("update keeps only the newest pending snapshot", func(t *testing.T) {
		m := newPresenceMirror(testutil.TestLogger(t), &fakePresenceSink{})

		m.update([]string{"alice"})
		m.update([]string{"alice", "bob"})

		assert.Len(t, m.updates, 1)
		assert.Equal(t, []string{"alice", "bob"}, <-m.updates)
	})

	t.Run("sink errors are logged only", func(t *testing.T) {
		logger, buf := testutil.BufferLogger(t)
		sink := &fakePresenceSink{err: errors.New("redis down")}
		m := newPresenceMirror(logger, sink)

		ctx, cancel := context.WithCancel(context.Background())
		go m.run(ctx)

		m.update([]string{"alice"})
		assert.Eventually(t, func() bool {
			return sink.last() != nil
		}, time.Second, 10*time.Millisecond)

		cancel()
		<-m.done
		assert.Contains(t, buf.String(), "redis down")
	})
}
