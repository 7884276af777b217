package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNoToken is returned by LatestToken when no token was ever issued for
// the group.
var ErrNoToken = errors.New("no token issued for group")

// Store defines the data access operations for tokens and messages.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveToken appends a new access token for the group. Tokens are never
	// updated or deleted.
	SaveToken(ctx context.Context, grp, token string) error

	// LatestToken returns the most recently saved token for the group, or
	// ErrNoToken when none exists.
	LatestToken(ctx context.Context, grp string) (string, error)

	// UpsertMessage inserts the message, or merges it into the existing row
	// with the same MsgID. The merge never replaces a known non-empty field
	// with an empty one; the stored type changes only when the incoming
	// observation carries a file.
	UpsertMessage(ctx context.Context, msg *Message) error

	// ListMessages returns messages ordered by msg_id ascending
	// (lexicographic), optionally filtered to one exact msg_id.
	ListMessages(ctx context.Context, limit, offset int, msgID string) ([]Message, error)
}

// sqlxStore implements Store using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store backed by sqlx. It requires a connected
// sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) SaveToken(ctx context.Context, grp, token string) error {
	if token == "" {
		return fmt.Errorf("cannot save empty token for group %q", grp)
	}

	query := `INSERT INTO tokens (token, grp, created_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, token, grp, nowUTC()); err != nil {
		s.logger.ErrorContext(ctx, "Error saving token", "grp", grp, "error", err)
		return fmt.Errorf("failed to save token for group %q: %w", grp, err)
	}

	s.logger.DebugContext(ctx, "Token saved", "grp", grp)
	return nil
}

func (s *sqlxStore) LatestToken(ctx context.Context, grp string) (string, error) {
	var token string
	query := `SELECT token FROM tokens WHERE grp = ? ORDER BY id DESC LIMIT 1`

	err := s.db.GetContext(ctx, &token, query, grp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrNoToken, grp)
		}
		return "", fmt.Errorf("failed to query latest token for group %q: %w", grp, err)
	}
	return token, nil
}

// UpsertMessage performs the insert-or-merge inside a single transaction so
// readers never observe a partially written row.
func (s *sqlxStore) UpsertMessage(ctx context.Context, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("cannot upsert nil message")
	}
	if msg.MsgID == "" {
		return fmt.Errorf("message must have a non-empty msg_id")
	}
	if msg.MessageType == "" {
		return fmt.Errorf("message must have a non-empty message_type")
	}

	msg.CreatedAt = nowUTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	var existing Message
	err = tx.GetContext(ctx, &existing, `SELECT * FROM messages WHERE msg_id = ?`, msg.MsgID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		query := `
            INSERT INTO messages (msg_id, message_type, text_content, file_path, grp, member_id, member_name, published_at, created_at)
            VALUES (:msg_id, :message_type, :text_content, :file_path, :grp, :member_id, :member_name, :published_at, :created_at)`
		if _, err := tx.NamedExecContext(ctx, query, msg); err != nil {
			return fmt.Errorf("failed to insert message %q: %w", msg.MsgID, err)
		}
	case err != nil:
		return fmt.Errorf("failed to load existing message %q: %w", msg.MsgID, err)
	default:
		merged := mergeMessage(existing, *msg)
		query := `
            UPDATE messages
            SET message_type = :message_type, text_content = :text_content, file_path = :file_path,
                grp = :grp, member_id = :member_id, member_name = :member_name,
                published_at = :published_at, created_at = :created_at
            WHERE msg_id = :msg_id`
		if _, err := tx.NamedExecContext(ctx, query, &merged); err != nil {
			return fmt.Errorf("failed to merge message %q: %w", msg.MsgID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert of message %q: %w", msg.MsgID, err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Message upserted", "msg_id", msg.MsgID, "type", msg.MessageType)
	return nil
}

// mergeMessage folds a new observation of a message into the stored row.
// Precedence: the type changes only when the incoming observation carries a
// file (a file-bearing re-observation may upgrade e.g. text to image);
// every other field adopts the incoming value only when it is non-empty.
func mergeMessage(existing, incoming Message) Message {
	merged := existing

	if incoming.FilePath != "" {
		merged.MessageType = incoming.MessageType
	}
	merged.TextContent = coalesce(incoming.TextContent, existing.TextContent)
	merged.FilePath = coalesce(incoming.FilePath, existing.FilePath)
	merged.Grp = coalesce(incoming.Grp, existing.Grp)
	merged.MemberID = coalesce(incoming.MemberID, existing.MemberID)
	merged.MemberName = coalesce(incoming.MemberName, existing.MemberName)
	merged.PublishedAt = coalesce(incoming.PublishedAt, existing.PublishedAt)
	merged.CreatedAt = coalesce(incoming.CreatedAt, existing.CreatedAt)

	return merged
}

func coalesce(incoming, existing string) string {
	if incoming != "" {
		return incoming
	}
	return existing
}

func (s *sqlxStore) ListMessages(ctx context.Context, limit, offset int, msgID string) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var messages []Message
	var err error
	if msgID != "" {
		query := `SELECT * FROM messages WHERE msg_id = ? ORDER BY msg_id ASC LIMIT ? OFFSET ?`
		err = s.db.SelectContext(ctx, &messages, query, msgID, limit, offset)
	} else {
		query := `SELECT * FROM messages ORDER BY msg_id ASC LIMIT ? OFFSET ?`
		err = s.db.SelectContext(ctx, &messages, query, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return messages, nil
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
