package server

import (
	"context"
	"database/sql"
	"errors"

	"github.com/npezzotti/go-callhub/internal/database"
	"github.com/npezzotti/go-callhub/internal/media"
	"github.com/npezzotti/go-callhub/internal/stats"
	"github.com/npezzotti/go-callhub/internal/types"
)

// MessageSink receives every message after it is persisted.
type MessageSink interface {
	PublishMessage(ctx context.Context, msg types.ChatMessage) error
}

type delivery struct {
	msg  types.ChatMessage
	conn database.Connection
}

// submitMessage validates and stores a chat message off the hub loop. The
// stored message re-enters the loop for delivery.
func (h *Hub) submitMessage(s *Session, sub *ChatSubmission) error {
	if sub.Message == "" && sub.Image == "" && sub.Video == "" && sub.Pdf == "" {
		return ErrEmptyMessage
	}
	if sub.UserId == "" || sub.RecipientId == "" {
		return ErrMissingParticipants
	}
	if err := h.authorize(s, sub.UserId); err != nil {
		return err
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		d, err := h.storeMessage(h.ctx, sub)
		if err != nil {
			h.notifyError(s, EventAddChatMessage, err)
			return
		}

		select {
		case h.deliver <- d:
		case <-h.ctx.Done():
			return
		}

		if h.messages != nil {
			if err := h.messages.PublishMessage(h.ctx, d.msg); err != nil {
				h.log.Printf("publish message %d: %v", d.msg.Id, err)
			}
		}
	}()

	return nil
}

func (h *Hub) storeMessage(ctx context.Context, sub *ChatSubmission) (*delivery, error) {
	sender, err := h.db.GetAccountById(ctx, sub.UserId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownSender
		}
		return nil, wrapError(ErrPersistFailed, err)
	}

	conn, err := h.db.GetConnectionById(ctx, sub.RecipientId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownConversation
		}
		return nil, wrapError(ErrPersistFailed, err)
	}
	if !conn.HasParticipant(sender.Id) {
		return nil, ErrNotParticipant
	}

	var attachments types.Attachments
	uploads := []struct {
		kind    media.Kind
		payload string
		url     *string
	}{
		{media.KindImage, sub.Image, &attachments.Image},
		{media.KindVideo, sub.Video, &attachments.Video},
		{media.KindPdf, sub.Pdf, &attachments.Pdf},
	}
	for _, u := range uploads {
		if u.payload == "" {
			continue
		}

		url, err := h.uploader.Upload(ctx, u.kind, u.payload)
		if err != nil {
			return nil, wrapError(ErrAttachmentUploadFailed, err)
		}
		*u.url = url
	}

	stored, err := h.db.CreateMessage(ctx, database.CreateMessageParams{
		ConnectionId: conn.Id,
		SenderId:     sender.Id,
		Content:      sub.Message,
		ImageURL:     attachments.Image,
		VideoURL:     attachments.Video,
		PdfURL:       attachments.Pdf,
		CreatedAt:    Now(),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownConversation
		}
		return nil, wrapError(ErrPersistFailed, err)
	}

	return &delivery{
		msg: types.ChatMessage{
			Id:           stored.Id,
			ConnectionId: stored.ConnectionId,
			Sender: types.User{
				Id:       sender.Id,
				Username: sender.Username,
				Image:    sender.Image,
			},
			Message:     stored.Content,
			Attachments: attachments,
			CreatedAt:   stored.CreatedAt,
		},
		conn: conn,
	}, nil
}

// deliverMessage sends a stored message to every live session of both
// participants.
func (h *Hub) deliverMessage(d *delivery) {
	h.stats.Incr(stats.NumMessages)

	ev := NewChatMessageSuccess(d.conn.Id, d.msg)
	seen := make(map[string]struct{}, 2)
	for _, userId := range []string{d.conn.User1Id, d.conn.User2Id} {
		if _, ok := seen[userId]; ok {
			continue
		}
		seen[userId] = struct{}{}

		h.sendToUser(userId, ev)
	}
}
