package database

import (
	"database/sql"
	"time"
)

type User struct {
	Id        string
	Username  string
	Image     string
	CreatedAt time.Time
}

// Connection is a two-party conversation. Messages are appended to it in
// insertion order.
type Connection struct {
	Id            string
	User1Id       string
	User2Id       string
	MessageCount  int
	LastMessageId sql.NullInt64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasParticipant reports whether userId is one of the two participants.
func (c Connection) HasParticipant(userId string) bool {
	return c.User1Id == userId || c.User2Id == userId
}

type Message struct {
	Id           int64
	ConnectionId string
	SenderId     string
	Content      string
	ImageURL     string
	VideoURL     string
	PdfURL       string
	CreatedAt    time.Time
}

type CreateMessageParams struct {
	ConnectionId string
	SenderId     string
	Content      string
	ImageURL     string
	VideoURL     string
	PdfURL       string
	CreatedAt    time.Time
}
