package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
)

// Composer holds the draft of the next message.
type Composer struct {
	mu   sync.Mutex
	text string
}

func (c *Composer) Set(text string) {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
}

func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Submit passes the draft to send and clears it. A whitespace-only draft
// is rejected and left as is. If send fails the draft is restored unless
// it was edited in the meantime.
func (c *Composer) Submit(ctx context.Context, send func(context.Context, string) error) error {
	c.mu.Lock()
	text := c.text
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return apperr.Validation("message is empty")
	}
	c.text = ""
	c.mu.Unlock()

	if err := send(ctx, text); err != nil {
		c.mu.Lock()
		if c.text == "" {
			c.text = text
		}
		c.mu.Unlock()
		return err
	}
	return nil
}
