package types

import (
	"time"
)

type User struct {
	Id        string    `json:"_id"`
	Username  string    `json:"username"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Attachments struct {
	Image string `json:"image,omitempty"`
	Video string `json:"video,omitempty"`
	Pdf   string `json:"pdf,omitempty"`
}

// ChatMessage is the persisted, sender-enriched message delivered to clients.
type ChatMessage struct {
	Id           int64       `json:"_id"`
	ConnectionId string      `json:"connection_id"`
	Sender       User        `json:"sender"`
	Message      string      `json:"message,omitempty"`
	Attachments  Attachments `json:"attachments"`
	CreatedAt    time.Time   `json:"created_at"`
}
