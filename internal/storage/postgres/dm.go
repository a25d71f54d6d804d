// Package postgres is the PostgreSQL-backed document store. Change
// notifications use LISTEN/NOTIFY on a single channel and are fanned out
// locally through a livequery.Hub.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/livequery"
	"github.com/Vasu1712/chatwise-backend/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	first_name    TEXT NOT NULL DEFAULT '',
	last_name     TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS dm_conversations (
	id              TEXT PRIMARY KEY,
	participant1_id TEXT NOT NULL,
	participant2_id TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS dm_conversations_p1 ON dm_conversations (participant1_id);
CREATE INDEX IF NOT EXISTS dm_conversations_p2 ON dm_conversations (participant2_id);
CREATE TABLE IF NOT EXISTS dm_messages (
	id                 TEXT PRIMARY KEY,
	dm_conversation_id TEXT NOT NULL REFERENCES dm_conversations (id) ON DELETE CASCADE,
	sender_id          TEXT NOT NULL,
	content            TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'sent',
	timestamp          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS dm_messages_conv_ts ON dm_messages (dm_conversation_id, timestamp, id);
`

// PostgresDMStore implements storage.Store using PostgreSQL.
type PostgresDMStore struct {
	pool *pgxpool.Pool
	feed *Feed
	log  zerolog.Logger
}

// NewPostgresDMStore connects to dataSourceName, applies the schema and
// starts the LISTEN bridge into hub. The bridge stops when ctx is
// cancelled.
func NewPostgresDMStore(ctx context.Context, dataSourceName string, hub *livequery.Hub, logger zerolog.Logger) (*PostgresDMStore, error) {
	cfg, err := pgxpool.ParseConfig(dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.MaxConns = 25
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection for DMs: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database for DMs: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	feed := NewFeed(pool, hub, logger)
	go feed.Run(ctx)

	logger.Info().Msg("connected to PostgreSQL")
	return &PostgresDMStore{pool: pool, feed: feed, log: logger}, nil
}

func (s *PostgresDMStore) Feed() livequery.Feed { return s.feed }

// Close closes the connection pool.
func (s *PostgresDMStore) Close() error {
	s.pool.Close()
	return nil
}

const chatColumns = `id, participant1_id, participant2_id, created_at`

func scanChat(row pgx.Row) (*models.Chat, error) {
	conv := &models.Chat{}
	err := row.Scan(&conv.ID, &conv.Users[0], &conv.Users[1], &conv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	msg := &models.Message{}
	var status string
	if err := row.Scan(&msg.ID, &msg.ChatID, &msg.Sender, &msg.Text, &status, &msg.CreatedAt); err != nil {
		return nil, err
	}
	msg.Status = models.MessageStatus(status)
	return msg, nil
}

// ListChats lists all conversations a user is a part of.
func (s *PostgresDMStore) ListChats(ctx context.Context, email string) ([]models.Chat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+chatColumns+`
		FROM dm_conversations
		WHERE participant1_id = $1 OR participant2_id = $1
		ORDER BY created_at DESC, id ASC
	`, email)
	if err != nil {
		return nil, fmt.Errorf("list conversations for %s: %w", email, err)
	}
	defer rows.Close()

	convs := []models.Chat{}
	for rows.Next() {
		conv, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation for %s: %w", email, err)
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

func (s *PostgresDMStore) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	conv, err := scanChat(s.pool.QueryRow(ctx, `SELECT `+chatColumns+` FROM dm_conversations WHERE id = $1`, chatID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("chat " + chatID)
	}
	return conv, err
}

func (s *PostgresDMStore) CreateChat(ctx context.Context, users [2]string) (*models.Chat, error) {
	conv, _, err := s.CreateChatIfAbsent(ctx, uuid.NewString(), users)
	return conv, err
}

// CreateChatIfAbsent inserts the conversation unless id is taken, in which
// case the stored row is returned.
func (s *PostgresDMStore) CreateChatIfAbsent(ctx context.Context, id string, users [2]string) (*models.Chat, bool, error) {
	conv, err := scanChat(s.pool.QueryRow(ctx, `
		INSERT INTO dm_conversations (id, participant1_id, participant2_id, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO NOTHING
		RETURNING `+chatColumns,
		id, users[0], users[1]))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := s.GetChat(ctx, id)
		return existing, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}

	s.log.Debug().Str("dm_id", conv.ID).Str("user1", users[0]).Str("user2", users[1]).Msg("created conversation")
	s.publish(ctx, livequery.ChatsTopic(users[0]), livequery.ChatsTopic(users[1]))
	return conv, true, nil
}

// ListMessages retrieves all messages for a given conversation ID.
func (s *PostgresDMStore) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, dm_conversation_id, sender_id, content, status, timestamp
		FROM dm_messages
		WHERE dm_conversation_id = $1
		ORDER BY timestamp ASC, id ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", chatID, err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message for %s: %w", chatID, err)
		}
		msgs = append(msgs, *msg)
	}
	return msgs, rows.Err()
}

// AddMessage inserts a message stamped no earlier than the newest one in
// the conversation.
func (s *PostgresDMStore) AddMessage(ctx context.Context, chatID, senderID, content string) (*models.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, `
		INSERT INTO dm_messages (id, dm_conversation_id, sender_id, content, status, timestamp)
		SELECT $1, c.id, $3, $4, 'sent', GREATEST(clock_timestamp(),
			COALESCE((SELECT MAX(timestamp) FROM dm_messages WHERE dm_conversation_id = c.id), clock_timestamp()))
		FROM dm_conversations c WHERE c.id = $2
		RETURNING id, dm_conversation_id, sender_id, content, status, timestamp
	`, ulid.Make().String(), chatID, senderID, content))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("chat " + chatID)
	}
	if err != nil {
		return nil, fmt.Errorf("add message to %s: %w", chatID, err)
	}

	s.publish(ctx, livequery.MessagesTopic(chatID))
	return msg, nil
}

// MarkRead flips the message to read unless reader sent it.
func (s *PostgresDMStore) MarkRead(ctx context.Context, chatID, messageID, reader string) error {
	var status, sender string
	err := s.pool.QueryRow(ctx, `
		SELECT status, sender_id FROM dm_messages WHERE id = $1 AND dm_conversation_id = $2
	`, messageID, chatID).Scan(&status, &sender)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("message " + messageID)
	}
	if err != nil {
		return err
	}
	if sender == reader {
		return apperr.Validation("cannot mark your own message read")
	}
	if status == string(models.StatusRead) {
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE dm_messages SET status = 'read'
		WHERE id = $1 AND dm_conversation_id = $2 AND sender_id <> $3 AND status <> 'read'
	`, messageID, chatID, reader)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		s.publish(ctx, livequery.MessagesTopic(chatID))
	}
	return nil
}

func (s *PostgresDMStore) publish(ctx context.Context, topics ...string) {
	seen := make(map[string]bool, len(topics))
	for _, topic := range topics {
		if seen[topic] {
			continue
		}
		seen[topic] = true
		if err := s.feed.Publish(ctx, topic); err != nil {
			s.log.Warn().Err(err).Str("topic", topic).Msg("change notification dropped")
		}
	}
}
