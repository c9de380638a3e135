package database

import (
	"context"
	"database/sql"
	"fmt"
)

const defaultMessageLimit = 20

func (db *PgGoChatRepository) GetAccountById(ctx context.Context, id string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, COALESCE(image, ''), created_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.Image,
		&user.CreatedAt,
	)

	return user, err
}

func (db *PgGoChatRepository) GetConnectionById(ctx context.Context, id string) (Connection, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, user1_id, user2_id, message_count, last_message_id, created_at, updated_at "+
			"FROM connections WHERE id = $1 LIMIT 1",
		id,
	)

	var c Connection
	err := row.Scan(
		&c.Id,
		&c.User1Id,
		&c.User2Id,
		&c.MessageCount,
		&c.LastMessageId,
		&c.CreatedAt,
		&c.UpdatedAt,
	)

	return c, err
}

func (db *PgGoChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRowContext(ctx,
		"INSERT INTO messages (connection_id, sender_id, content, image_url, video_url, pdf_url, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) "+
			"RETURNING id, connection_id, sender_id, content, image_url, video_url, pdf_url, created_at",
		params.ConnectionId,
		params.SenderId,
		params.Content,
		params.ImageURL,
		params.VideoURL,
		params.PdfURL,
		params.CreatedAt,
	)

	var msg Message
	err = res.Scan(
		&msg.Id,
		&msg.ConnectionId,
		&msg.SenderId,
		&msg.Content,
		&msg.ImageURL,
		&msg.VideoURL,
		&msg.PdfURL,
		&msg.CreatedAt,
	)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	var result sql.Result
	result, err = tx.ExecContext(ctx,
		"UPDATE connections SET message_count = message_count + 1, last_message_id = $1, updated_at = $2 "+
			"WHERE id = $3",
		msg.Id,
		params.CreatedAt,
		params.ConnectionId,
	)
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}

	var n int64
	if n, err = result.RowsAffected(); err == nil && n == 0 {
		err = sql.ErrNoRows
	}
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

// GetMessages returns up to limit messages of a connection older than before,
// newest first. A before of 0 starts from the latest message.
func (db *PgGoChatRepository) GetMessages(ctx context.Context, connectionId string, before int64, limit int) ([]Message, error) {
	var upper int64 = 1<<63 - 1
	if before > 0 {
		upper = before - 1
	}

	if limit <= 0 {
		limit = defaultMessageLimit
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, connection_id, sender_id, content, image_url, video_url, pdf_url, created_at FROM messages "+
			"WHERE connection_id = $1 AND id <= $2 ORDER BY id DESC LIMIT $3",
		connectionId,
		upper,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(
			&msg.Id,
			&msg.ConnectionId,
			&msg.SenderId,
			&msg.Content,
			&msg.ImageURL,
			&msg.VideoURL,
			&msg.PdfURL,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}
