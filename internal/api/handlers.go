package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-callhub/internal/database"
	"github.com/npezzotti/go-callhub/internal/server"
	"github.com/npezzotti/go-callhub/internal/types"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *GoChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check: %v", err)
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *GoChatApp) getOnlineUsers(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, s.hub.OnlineUserIds())
}

// getMessages pages backwards through a conversation's history. before is an
// exclusive message id cursor, zero meaning the newest message.
func (s *GoChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	connectionId := r.PathValue("id")
	if connectionId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var (
		before int64
		limit  = defaultHistoryLimit
		err    error
	)

	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		before, err = strconv.ParseInt(beforeStr, 10, 64)
		if err != nil || before < 0 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}
	limit = min(limit, maxHistoryLimit)

	conn, err := s.db.GetConnectionById(r.Context(), connectionId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if userId, ok := UserId(r.Context()); ok && !conn.HasParticipant(userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages, err := s.db.GetMessages(r.Context(), conn.Id, before, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	senders := make(map[string]types.User, 2)
	history := make([]types.ChatMessage, 0, len(messages))

	for _, msg := range messages {
		sender, ok := senders[msg.SenderId]
		if !ok {
			sender, err = s.lookupSender(r, msg.SenderId)
			if err != nil {
				errResp := NewInternalServerError(err)
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
			senders[msg.SenderId] = sender
		}

		history = append(history, types.ChatMessage{
			Id:           msg.Id,
			ConnectionId: msg.ConnectionId,
			Sender:       sender,
			Message:      msg.Content,
			Attachments: types.Attachments{
				Image: msg.ImageURL,
				Video: msg.VideoURL,
				Pdf:   msg.PdfURL,
			},
			CreatedAt: msg.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, history)
}

// lookupSender resolves a message author. Accounts removed since the message
// was written are reported by id only.
func (s *GoChatApp) lookupSender(r *http.Request, userId string) (types.User, error) {
	user, err := s.db.GetAccountById(r.Context(), userId)
	if errors.Is(err, sql.ErrNoRows) {
		return types.User{Id: userId}, nil
	}
	if err != nil {
		return types.User{}, err
	}

	return senderFromAccount(user), nil
}

func senderFromAccount(u database.User) types.User {
	return types.User{
		Id:        u.Id,
		Username:  u.Username,
		Image:     u.Image,
		CreatedAt: u.CreatedAt,
	}
}

func (s *GoChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	// empty when authentication is disabled
	userId, _ := UserId(r.Context())

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	session := server.NewSession(conn, s.hub, s.log, userId)
	if err := s.hub.Register(session); err != nil {
		s.log.Printf("register session: %v", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go session.Write()
	go session.Read()
}
