package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/flemzord/rolechat/pkg/message"
)

// execer abstracts *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Load returns every message of the conversation in stored order.
func (s *Store) Load(ctx context.Context, conversationID string) ([]message.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, text, is_memory, ts
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []message.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load rows: %w", err)
	}
	return msgs, nil
}

// Append adds messages to the end of the conversation in one transaction.
func (s *Store) Append(ctx context.Context, conversationID string, msgs ...message.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range msgs {
		if err := insertMessage(ctx, tx, conversationID, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Replace deletes and rewrites the conversation in one transaction.
func (s *Store) Replace(ctx context.Context, conversationID string, msgs []message.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin replace tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("sqlite: replace delete: %w", err)
	}
	for _, m := range msgs {
		if err := insertMessage(ctx, tx, conversationID, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Len returns the number of messages stored for the conversation.
func (s *Store) Len(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count messages: %w", err)
	}
	return count, nil
}

func insertMessage(ctx context.Context, ex execer, conversationID string, m message.Message) error {
	isMemory := 0
	if m.IsMemory {
		isMemory = 1
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, seq, id, role, text, is_memory, ts)
		VALUES (?, COALESCE((SELECT MAX(seq) FROM messages WHERE conversation_id = ?), 0) + 1,
		        ?, ?, ?, ?, ?)`,
		conversationID, conversationID,
		m.ID, string(m.Role), m.Text, isMemory, m.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert message: %w", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (message.Message, error) {
	var (
		msg      message.Message
		role     string
		isMemory int
		ts       int64
	)
	if err := s.Scan(&msg.ID, &role, &msg.Text, &isMemory, &ts); err != nil {
		return msg, fmt.Errorf("sqlite: scan message: %w", err)
	}
	msg.Role = message.Role(role)
	msg.IsMemory = isMemory != 0
	msg.Timestamp = time.Unix(0, ts).UTC()
	return msg, nil
}
