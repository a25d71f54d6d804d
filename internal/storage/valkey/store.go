// Package valkey is the Valkey-backed document store. Records are JSON
// values; message order lives in a sorted set per chat; change
// notifications travel over one pub/sub channel and are fanned out
// locally through a livequery.Hub.
package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/valkey-io/valkey-go"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/livequery"
	"github.com/Vasu1712/chatwise-backend/internal/models"
)

const keyPrefix = "chatwise:"

func userKey(email string) string { return keyPrefix + "user:" + email }
func userChatsKey(email string) string { return keyPrefix + "user:" + email + ":chats" }
func chatKey(chatID string) string { return keyPrefix + "chat:" + chatID }
func messagesKey(chatID string) string { return keyPrefix + "chat:" + chatID + ":messages" }
func orderKey(chatID string) string { return keyPrefix + "chat:" + chatID + ":order" }

// appendScript stamps a message no earlier than the newest one in the
// chat, indexes it and stores the record in one step.
var appendScript = valkey.NewLuaScript(`
local ts = tonumber(ARGV[1])
local last = redis.call('ZRANGE', KEYS[1], -1, -1, 'WITHSCORES')
if last[2] and tonumber(last[2]) > ts then ts = tonumber(last[2]) end
local rec = cjson.decode(ARGV[3])
rec.createdAtMs = ts
redis.call('ZADD', KEYS[1], ts, ARGV[2])
redis.call('HSET', KEYS[2], ARGV[2], cjson.encode(rec))
return ts
`)

// markReadScript flips a message to read for reader ARGV[2]. Returns -1
// when missing, -2 when reader is the sender, 0 when already read, 1 when
// changed.
var markReadScript = valkey.NewLuaScript(`
local raw = redis.call('HGET', KEYS[1], ARGV[1])
if not raw then return -1 end
local rec = cjson.decode(raw)
if rec.sender == ARGV[2] then return -2 end
if rec.status == 'read' then return 0 end
rec.status = 'read'
redis.call('HSET', KEYS[1], ARGV[1], cjson.encode(rec))
return 1
`)

// messageRecord is the stored form of a message. The timestamp is kept
// in milliseconds so the append script can clamp it.
type messageRecord struct {
	ID          string               `json:"id"`
	Sender      string               `json:"sender"`
	Text        string               `json:"text"`
	CreatedAtMs int64                `json:"createdAtMs"`
	Status      models.MessageStatus `json:"status"`
}

func (r messageRecord) message(chatID string) models.Message {
	return models.Message{
		ID:        r.ID,
		ChatID:    chatID,
		Sender:    r.Sender,
		Text:      r.Text,
		CreatedAt: time.UnixMilli(r.CreatedAtMs).UTC(),
		Status:    r.Status,
	}
}

type userRecord struct {
	models.Identity
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store implements storage.Store on Valkey.
type Store struct {
	client valkey.Client
	feed   *Feed
	log    zerolog.Logger
	now    func() time.Time
}

// NewStore connects to the Valkey server at url and starts the change
// feed bridge into hub. The bridge stops when ctx is cancelled.
func NewStore(ctx context.Context, url string, hub *livequery.Hub, logger zerolog.Logger) (*Store, error) {
	opt, err := valkey.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid valkey url: %w", err)
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}

	feed := NewFeed(client, hub, logger)
	go feed.Run(ctx)

	logger.Info().Msg("connected to valkey")
	return &Store{client: client, feed: feed, log: logger, now: time.Now}, nil
}

func (s *Store) Feed() livequery.Feed { return s.feed }

func (s *Store) Close() error {
	s.client.Close()
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	email := models.NormalizeEmail(u.Email)
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	u.Email = email

	data, err := json.Marshal(userRecord{Identity: u.Identity, PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt})
	if err != nil {
		return err
	}
	err = s.client.Do(ctx, s.client.B().Set().Key(userKey(email)).Value(string(data)).Nx().Build()).Error()
	if valkey.IsValkeyNil(err) {
		return apperr.Auth("email already in use")
	}
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(userKey(email)).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return nil, apperr.NotFound("user " + email)
	}
	if err != nil {
		return nil, err
	}
	var rec userRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", email, err)
	}
	return &models.User{Identity: rec.Identity, PasswordHash: rec.PasswordHash, CreatedAt: rec.CreatedAt}, nil
}

func (s *Store) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	u, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	data, err := json.Marshal(userRecord{Identity: u.Identity, PasswordHash: passwordHash, CreatedAt: u.CreatedAt})
	if err != nil {
		return err
	}
	return s.client.Do(ctx, s.client.B().Set().Key(userKey(u.Email)).Value(string(data)).Xx().Build()).Error()
}

func (s *Store) ListChats(ctx context.Context, email string) ([]models.Chat, error) {
	ids, err := s.client.Do(ctx, s.client.B().Smembers().Key(userChatsKey(email)).Build()).AsStrSlice()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Chat{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = chatKey(id)
	}
	found, err := valkey.MGet(s.client, ctx, keys)
	if err != nil {
		return nil, err
	}

	chats := make([]models.Chat, 0, len(ids))
	for _, key := range keys {
		msg, ok := found[key]
		if !ok {
			continue
		}
		raw, err := msg.ToString()
		if valkey.IsValkeyNil(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var c models.Chat
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("skipping undecodable chat")
			continue
		}
		chats = append(chats, c)
	}
	models.SortChats(chats)
	return chats, nil
}

func (s *Store) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(chatKey(chatID)).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return nil, apperr.NotFound("chat " + chatID)
	}
	if err != nil {
		return nil, err
	}
	var c models.Chat
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decode chat %s: %w", chatID, err)
	}
	return &c, nil
}

func (s *Store) CreateChat(ctx context.Context, users [2]string) (*models.Chat, error) {
	c, _, err := s.CreateChatIfAbsent(ctx, uuid.NewString(), users)
	return c, err
}

func (s *Store) CreateChatIfAbsent(ctx context.Context, id string, users [2]string) (*models.Chat, bool, error) {
	c := &models.Chat{ID: id, Users: users, CreatedAt: s.now().UTC()}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, false, err
	}

	err = s.client.Do(ctx, s.client.B().Set().Key(chatKey(id)).Value(string(data)).Nx().Build()).Error()
	if valkey.IsValkeyNil(err) {
		existing, err := s.GetChat(ctx, id)
		return existing, false, err
	}
	if err != nil {
		return nil, false, err
	}

	for _, resp := range s.client.DoMulti(ctx,
		s.client.B().Sadd().Key(userChatsKey(users[0])).Member(id).Build(),
		s.client.B().Sadd().Key(userChatsKey(users[1])).Member(id).Build(),
	) {
		if err := resp.Error(); err != nil {
			return nil, false, fmt.Errorf("index chat %s: %w", id, err)
		}
	}

	s.publish(ctx, livequery.ChatsTopic(users[0]), livequery.ChatsTopic(users[1]))
	return c, true, nil
}

func (s *Store) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	ids, err := s.client.Do(ctx, s.client.B().Zrange().Key(orderKey(chatID)).Min("0").Max("-1").Build()).AsStrSlice()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Message{}, nil
	}

	values, err := s.client.Do(ctx, s.client.B().Hmget().Key(messagesKey(chatID)).Field(ids...).Build()).ToArray()
	if err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(values))
	for i, v := range values {
		raw, err := v.ToString()
		if valkey.IsValkeyNil(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec messageRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.log.Warn().Err(err).Str("dm_id", chatID).Str("message_id", ids[i]).Msg("skipping undecodable message")
			continue
		}
		msgs = append(msgs, rec.message(chatID))
	}
	models.SortMessages(msgs)
	return msgs, nil
}

func (s *Store) AddMessage(ctx context.Context, chatID, sender, text string) (*models.Message, error) {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return nil, err
	}

	rec := messageRecord{
		ID:          ulid.Make().String(),
		Sender:      sender,
		Text:        text,
		CreatedAtMs: s.now().UnixMilli(),
		Status:      models.StatusSent,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}

	ts, err := appendScript.Exec(ctx, s.client,
		[]string{orderKey(chatID), messagesKey(chatID)},
		[]string{fmt.Sprint(rec.CreatedAtMs), rec.ID, string(data)},
	).AsInt64()
	if err != nil {
		return nil, fmt.Errorf("append message to %s: %w", chatID, err)
	}
	rec.CreatedAtMs = ts

	s.publish(ctx, livequery.MessagesTopic(chatID))
	msg := rec.message(chatID)
	return &msg, nil
}

func (s *Store) MarkRead(ctx context.Context, chatID, messageID, reader string) error {
	changed, err := markReadScript.Exec(ctx, s.client, []string{messagesKey(chatID)}, []string{messageID, reader}).AsInt64()
	if err != nil {
		return err
	}
	switch changed {
	case -1:
		return apperr.NotFound("message " + messageID)
	case -2:
		return apperr.Validation("cannot mark your own message read")
	case 1:
		s.publish(ctx, livequery.MessagesTopic(chatID))
	}
	return nil
}

func (s *Store) publish(ctx context.Context, topics ...string) {
	for _, topic := range slices.Compact(slices.Clone(topics)) {
		if err := s.feed.Publish(ctx, topic); err != nil {
			s.log.Warn().Err(err).Str("topic", topic).Msg("change notification dropped")
		}
	}
}
