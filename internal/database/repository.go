package database

import "context"

type GoChatRepository interface {
	Ping() error
	GetAccountById(ctx context.Context, accountId string) (User, error)
	GetConnectionById(ctx context.Context, connectionId string) (Connection, error)
	// CreateMessage stores the message and appends it to its connection
	// in a single transaction.
	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	GetMessages(ctx context.Context, connectionId string, before int64, limit int) ([]Message, error)
}
