package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/livequery"
	"github.com/Vasu1712/chatwise-backend/internal/models"
)

var errOwnMessage = apperr.Validation("cannot mark your own message read")

// DMStore keeps users, chats and messages in process memory and
// publishes changes on a livequery feed.
type DMStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Chat     // dmID -> conversation
	userIndex     map[string][]string         // email -> []dmID
	messages      map[string][]models.Message // dmID -> messages in order
	lastStamp     map[string]time.Time        // dmID -> newest message time
	users         map[string]*models.User     // email -> user

	feed livequery.Feed
	log  zerolog.Logger
	now  func() time.Time
}

// Option configures a DMStore.
type Option func(*DMStore)

// WithClock replaces the store's clock.
func WithClock(now func() time.Time) Option {
	return func(s *DMStore) { s.now = now }
}

func NewDMStore(feed livequery.Feed, logger zerolog.Logger, opts ...Option) *DMStore {
	s := &DMStore{
		conversations: make(map[string]*models.Chat),
		userIndex:     make(map[string][]string),
		messages:      make(map[string][]models.Message),
		lastStamp:     make(map[string]time.Time),
		users:         make(map[string]*models.User),
		feed:          feed,
		log:           logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Feed returns the feed the store publishes on.
func (s *DMStore) Feed() livequery.Feed { return s.feed }

func (s *DMStore) Close() error { return nil }

func (s *DMStore) ListChats(ctx context.Context, email string) ([]models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.Chat, 0, len(s.userIndex[email]))
	for _, dmID := range s.userIndex[email] {
		if conv, ok := s.conversations[dmID]; ok {
			result = append(result, *conv)
		}
	}
	models.SortChats(result)
	return result, nil
}

func (s *DMStore) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[chatID]
	if !ok {
		return nil, apperr.NotFound("chat " + chatID)
	}
	c := *conv
	return &c, nil
}

func (s *DMStore) CreateChat(ctx context.Context, users [2]string) (*models.Chat, error) {
	s.mu.Lock()
	conv := s.insertChatLocked(uuid.NewString(), users)
	s.mu.Unlock()

	s.publish(ctx, livequery.ChatsTopic(users[0]), livequery.ChatsTopic(users[1]))
	return conv, nil
}

func (s *DMStore) CreateChatIfAbsent(ctx context.Context, id string, users [2]string) (*models.Chat, bool, error) {
	s.mu.Lock()
	if existing, ok := s.conversations[id]; ok {
		c := *existing
		s.mu.Unlock()
		return &c, false, nil
	}
	conv := s.insertChatLocked(id, users)
	s.mu.Unlock()

	s.publish(ctx, livequery.ChatsTopic(users[0]), livequery.ChatsTopic(users[1]))
	return conv, true, nil
}

func (s *DMStore) insertChatLocked(id string, users [2]string) *models.Chat {
	conv := &models.Chat{
		ID:        id,
		Users:     users,
		CreatedAt: s.now(),
	}
	s.conversations[id] = conv
	s.userIndex[users[0]] = append(s.userIndex[users[0]], id)
	if users[1] != users[0] {
		s.userIndex[users[1]] = append(s.userIndex[users[1]], id)
	}
	c := *conv
	return &c
}

func (s *DMStore) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[chatID]; !ok {
		return nil, apperr.NotFound("chat " + chatID)
	}
	out := make([]models.Message, len(s.messages[chatID]))
	copy(out, s.messages[chatID])
	return out, nil
}

func (s *DMStore) AddMessage(ctx context.Context, chatID, sender, text string) (*models.Message, error) {
	s.mu.Lock()
	if _, ok := s.conversations[chatID]; !ok {
		s.mu.Unlock()
		return nil, apperr.NotFound("chat " + chatID)
	}

	stamp := s.now()
	if last := s.lastStamp[chatID]; stamp.Before(last) {
		stamp = last
	}
	s.lastStamp[chatID] = stamp

	msg := models.Message{
		ID:        ulid.Make().String(),
		ChatID:    chatID,
		Sender:    sender,
		Text:      text,
		CreatedAt: stamp,
		Status:    models.StatusSent,
	}
	s.messages[chatID] = append(s.messages[chatID], msg)
	s.mu.Unlock()

	s.publish(ctx, livequery.MessagesTopic(chatID))
	return &msg, nil
}

func (s *DMStore) MarkRead(ctx context.Context, chatID, messageID, reader string) error {
	s.mu.Lock()
	msgs, ok := s.messages[chatID]
	if !ok {
		if _, exists := s.conversations[chatID]; !exists {
			s.mu.Unlock()
			return apperr.NotFound("chat " + chatID)
		}
	}
	idx := -1
	for i := range msgs {
		if msgs[i].ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return apperr.NotFound("message " + messageID)
	}
	if msgs[idx].Sender == reader {
		s.mu.Unlock()
		return errOwnMessage
	}
	if msgs[idx].Status == models.StatusRead {
		s.mu.Unlock()
		return nil
	}
	msgs[idx].Status = models.StatusRead
	s.mu.Unlock()

	s.publish(ctx, livequery.MessagesTopic(chatID))
	return nil
}

// publish notifies the feed after a committed write. The write already
// succeeded, so failures are logged rather than returned.
func (s *DMStore) publish(ctx context.Context, topics ...string) {
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
