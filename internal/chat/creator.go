package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/auth"
	"github.com/Vasu1712/chatwise-backend/internal/config"
	"github.com/Vasu1712/chatwise-backend/internal/metrics"
	"github.com/Vasu1712/chatwise-backend/internal/models"
	"github.com/Vasu1712/chatwise-backend/internal/storage"
)

// chatNamespace seeds the name-based ids of pair-keyed chats.
var chatNamespace = uuid.MustParse("6f1c2a9e-3b7d-4c55-9a1e-2d8f0b4e7c31")

// PairChatID returns the chat id two users share in pair mode. It does not
// depend on argument order.
func PairChatID(a, b string) string {
	return uuid.NewSHA1(chatNamespace, []byte(models.PairKey(a, b))).String()
}

// Creator finds the chat between two users, creating it if needed.
type Creator struct {
	store storage.Store
	mode  string
	log   zerolog.Logger
}

// NewCreator returns a Creator. mode is config.ChatIDPair or
// config.ChatIDRandom; anything else falls back to pair.
func NewCreator(store storage.Store, mode string, logger zerolog.Logger) *Creator {
	if mode != config.ChatIDRandom {
		mode = config.ChatIDPair
	}
	return &Creator{store: store, mode: mode, log: logger}
}

// FindOrCreate returns the chat between current and the user registered
// under target. Input is validated before the store is touched. An
// existing chat is returned unchanged; the bool reports whether a new one
// was written.
func (c *Creator) FindOrCreate(ctx context.Context, current, target string) (*models.Chat, bool, error) {
	current = models.NormalizeEmail(current)
	target = models.NormalizeEmail(target)

	if current == "" {
		return nil, false, apperr.Auth("not signed in")
	}
	if target == "" {
		return nil, false, apperr.Validation("please enter an email")
	}
	if err := auth.ValidateEmail(target); err != nil {
		return nil, false, err
	}
	if target == current {
		return nil, false, apperr.Validation("you cannot start a chat with yourself")
	}

	if _, err := c.store.GetUserByEmail(ctx, target); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, false, apperr.NotFound("user not found")
		}
		return nil, false, fmt.Errorf("lookup user: %w", err)
	}

	chats, err := c.store.ListChats(ctx, current)
	if err != nil {
		return nil, false, fmt.Errorf("list chats: %w", err)
	}
	for i := range chats {
		if chats[i].Has(target) {
			return &chats[i], false, nil
		}
	}

	users := [2]string{current, target}
	var (
		chat    *models.Chat
		created = true
	)
	if c.mode == config.ChatIDRandom {
		chat, err = c.store.CreateChat(ctx, users)
	} else {
		chat, created, err = c.store.CreateChatIfAbsent(ctx, PairChatID(current, target), users)
	}
	if err != nil {
		return nil, false, apperr.Write(err)
	}

	if created {
		metrics.ChatsCreated.Inc()
		c.log.Info().Str("dm_id", chat.ID).Str("from", current).Str("to", target).Msg("chat created")
	}
	return chat, created, nil
}
