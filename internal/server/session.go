package server

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	// large enough for inline base64 attachments
	maxMessageSize = 25 << 20
)

// Session is one websocket connection. A user may hold several.
type Session struct {
	id         string
	conn       *websocket.Conn
	hub        *Hub
	log        *log.Logger
	authUserId string
	send       chan *ServerEvent
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewSession wraps conn. authUserId is the identity proven at the handshake,
// empty when authentication is disabled.
func NewSession(conn *websocket.Conn, hub *Hub, l *log.Logger, authUserId string) *Session {
	return &Session{
		id:         uuid.NewString(),
		conn:       conn,
		hub:        hub,
		log:        l,
		authUserId: authUserId,
		send:       make(chan *ServerEvent, 256),
		stop:       make(chan struct{}),
	}
}

func (s *Session) Id() string {
	return s.id
}

func (s *Session) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case ev := <-s.send:
			bytes, err := serializeEvent(ev)
			if err != nil {
				s.log.Println("failed to serialize event:", err)
				continue
			}

			if !s.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-s.stop:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case <-ticker.C:
			if !s.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (s *Session) Read() {
	defer func() {
		s.conn.Close()
		s.hub.unregister(s)
		s.stopSession()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.log.Printf("ws: read: %v", err)
			}
			break
		}

		ev, err := decodeEvent(raw)
		if err != nil {
			s.log.Printf("session %q: %v", s.id, err)
			s.queueMessage(NewErrorNotification(ErrInvalidEvent))
			continue
		}

		ev.session = s
		if !s.hub.submit(ev) {
			s.log.Printf("session %q: event queue full, dropping %q", s.id, ev.Name)
			s.queueMessage(NewErrorNotification(ErrServiceUnavailable))
		}
	}
}

func (s *Session) queueMessage(ev *ServerEvent) bool {
	select {
	case s.send <- ev:
	default:
		s.log.Printf("session %q: send queue full", s.id)
		return false
	}

	return true
}

func (s *Session) sendMessage(msgType int, msg []byte) bool {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := s.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			s.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (s *Session) stopSession() {
	s.stopOnce.Do(func() { close(s.stop) })
}
