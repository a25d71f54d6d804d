// Package storage defines the document store the chat core runs against.
// Implementations live in the memory, valkey and postgres subpackages.
package storage

import (
	"context"

	"github.com/Vasu1712/chatwise-backend/internal/livequery"
	"github.com/Vasu1712/chatwise-backend/internal/models"
)

// Users is the user directory.
type Users interface {
	// CreateUser stores a new user. A taken email is an auth error.
	CreateUser(ctx context.Context, u *models.User) error
	// GetUserByEmail returns apperr.ErrNotFound when no user has email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, email, passwordHash string) error
}

// Chats is the conversation collection.
type Chats interface {
	// ListChats returns every chat whose users contain email.
	ListChats(ctx context.Context, email string) ([]models.Chat, error)
	GetChat(ctx context.Context, chatID string) (*models.Chat, error)
	// CreateChat stores a chat under a fresh random id.
	CreateChat(ctx context.Context, users [2]string) (*models.Chat, error)
	// CreateChatIfAbsent atomically stores a chat under id unless one
	// exists; it returns the stored chat and whether it was created.
	CreateChatIfAbsent(ctx context.Context, id string, users [2]string) (*models.Chat, bool, error)
}

// Messages is the per-chat message subcollection.
type Messages interface {
	// ListMessages returns the chat's messages ordered by CreatedAt.
	ListMessages(ctx context.Context, chatID string) ([]models.Message, error)
	// AddMessage appends a sent message stamped with the store's clock.
	AddMessage(ctx context.Context, chatID, sender, text string) (*models.Message, error)
	// MarkRead sets the message status to read on behalf of reader.
	// Marking a read message again is a no-op; a sender marking their own
	// message is a validation error.
	MarkRead(ctx context.Context, chatID, messageID, reader string) error
}

// Store is the full document store. Every write publishes the affected
// livequery topics on Feed.
type Store interface {
	Users
	Chats
	Messages
	Feed() livequery.Feed
	Close() error
}
