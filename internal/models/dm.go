package models

import (
	"slices"
	"strings"
	"time"
)

// MessageStatus is the delivery state of a message. It only ever moves
// from StatusSent to StatusRead.
type MessageStatus string

const (
	StatusSent MessageStatus = "sent"
	StatusRead MessageStatus = "read"
)

// Chat is a one-to-one conversation between two users, keyed by email.
type Chat struct {
	ID        string    `json:"id"`
	Users     [2]string `json:"users"`     // Always 2 for DM
	CreatedAt time.Time `json:"createdAt"`
}

// Has reports whether email takes part in the chat.
func (c Chat) Has(email string) bool {
	return c.Users[0] == email || c.Users[1] == email
}

// Other returns the participant that is not email, or "" when both
// entries equal email.
func (c Chat) Other(email string) string {
	for _, u := range c.Users {
		if u != email {
			return u
		}
	}
	return ""
}

// PairKey returns the participants sorted and joined, identical for
// either ordering of the same two users.
func PairKey(a, b string) string {
	pair := []string{a, b}
	slices.Sort(pair)
	return strings.Join(pair, "|")
}

// Message is a single text entry within a chat.
type Message struct {
	ID        string        `json:"id"`
	ChatID    string        `json:"chatId"`
	Sender    string        `json:"sender"`
	Text      string        `json:"text"`
	CreatedAt time.Time     `json:"createdAt"`
	Status    MessageStatus `json:"status"`
}

// SortMessages orders messages by creation time, breaking ties by id.
func SortMessages(msgs []Message) {
	slices.SortStableFunc(msgs, func(a, b Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// SortChats orders chats newest first, breaking ties by id.
func SortChats(chats []Chat) {
	slices.SortStableFunc(chats, func(a, b Chat) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
