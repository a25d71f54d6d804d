package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/livequery"
	"github.com/Vasu1712/chatwise-backend/internal/metrics"
	"github.com/Vasu1712/chatwise-backend/internal/models"
	"github.com/Vasu1712/chatwise-backend/internal/session"
	"github.com/Vasu1712/chatwise-backend/internal/storage"
)

// Transcript is the rendered message list of the open chat.
type Transcript struct {
	ChatID string `json:"dmId"`
	Title  string `json:"title"`
	Items  []Item `json:"items"`
	Error  string `json:"error,omitempty"`
}

// Stream follows the messages of one chat at a time. Opening another chat
// drops the previous subscription, and snapshots that arrive for it
// afterwards are discarded.
type Stream struct {
	store    storage.Store
	session  *session.Session
	receipts *Reconciler
	log      zerolog.Logger
	onChange func(Transcript)

	mu       sync.Mutex
	gen      uint64
	sub      *livequery.Subscription
	chat     models.Chat
	messages []models.Message
	err      error

	emitMu sync.Mutex
}

func NewStream(store storage.Store, sess *session.Session, receipts *Reconciler, logger zerolog.Logger, onChange func(Transcript)) *Stream {
	if onChange == nil {
		onChange = func(Transcript) {}
	}
	return &Stream{
		store:    store,
		session:  sess,
		receipts: receipts,
		log:      logger,
		onChange: onChange,
	}
}

// Open switches the stream to chatID. The viewer must take part in the
// chat.
func (s *Stream) Open(ctx context.Context, chatID string) error {
	viewer, err := s.session.Identity()
	if err != nil {
		return err
	}
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.Has(viewer.Email) {
		return apperr.NotFound("chat " + chatID)
	}

	s.mu.Lock()
	prev, prevID := s.sub, s.chat.ID
	s.sub = nil
	s.gen++
	gen := s.gen
	s.chat = *chat
	s.messages = nil
	s.err = nil
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
		if prevID != chatID {
			s.receipts.Forget(prevID)
		}
	}
	s.emit(gen)

	sub, err := livequery.Watch(ctx, s.store.Feed(), livequery.MessagesTopic(chatID),
		func(ctx context.Context) ([]models.Message, error) {
			return s.store.ListMessages(ctx, chatID)
		},
		func(msgs []models.Message, err error) {
			s.apply(ctx, gen, chatID, msgs, err)
		})
	if err != nil {
		s.apply(ctx, gen, chatID, nil, err)
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		sub.Close()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// apply installs a snapshot delivered for (chatID, gen). Snapshots of a
// chat that is no longer open are dropped.
func (s *Stream) apply(ctx context.Context, gen uint64, chatID string, msgs []models.Message, err error) {
	s.mu.Lock()
	if gen != s.gen || chatID != s.chat.ID {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.err = apperr.Subscription(err)
		s.mu.Unlock()
		metrics.SubscriptionErrors.WithLabelValues("messages").Inc()
		s.log.Warn().Err(err).Str("dm_id", chatID).Msg("message subscription failed")
		s.emit(gen)
		return
	}
	s.messages = msgs
	s.err = nil
	s.mu.Unlock()

	if !s.emit(gen) {
		return
	}
	if viewer := s.session.Email(); viewer != "" {
		s.receipts.Reconcile(ctx, chatID, viewer, msgs)
	}
}

// emit reports whether the transcript of gen was delivered.
func (s *Stream) emit(gen uint64) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	t := s.transcriptLocked()
	s.mu.Unlock()
	s.onChange(t)
	return true
}

// Transcript returns the rendered open chat.
func (s *Stream) Transcript() Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcriptLocked()
}

func (s *Stream) transcriptLocked() Transcript {
	viewer := s.session.Email()
	t := Transcript{
		ChatID: s.chat.ID,
		Items:  GroupByDay(s.messages, viewer, s.session.Location()),
	}
	if s.chat.ID != "" {
		t.Title = Label(s.chat, viewer)
	}
	if s.err != nil {
		t.Error = s.err.Error()
	}
	return t
}

// Active returns the open chat id or "".
func (s *Stream) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat.ID
}

// Refresh refetches the open chat.
func (s *Stream) Refresh() {
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub != nil {
		sub.Refresh()
	}
}

// Send appends text to chatID as the signed-in user. Whitespace-only text
// is rejected without a write.
func (s *Stream) Send(ctx context.Context, chatID, text string) (*models.Message, error) {
	viewer, err := s.session.Identity()
	if err != nil {
		return nil, err
	}
	return SendAs(ctx, s.store, viewer.Email, chatID, text, s.log)
}

// SendAs appends text to chatID on behalf of sender.
func SendAs(ctx context.Context, store storage.Store, sender, chatID, text string, logger zerolog.Logger) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validation("message is empty")
	}
	if chatID == "" {
		return nil, apperr.Validation("no chat selected")
	}
	chat, err := store.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Write(err)
	}
	if !chat.Has(sender) {
		return nil, apperr.Validation("sender is not a participant")
	}

	msg, err := store.AddMessage(ctx, chatID, sender, text)
	if err != nil {
		logger.Error().Err(err).Str("dm_id", chatID).Msg("send failed")
		return nil, apperr.Write(err)
	}
	metrics.MessagesSent.Inc()
	logger.Debug().Str("dm_id", chatID).Str("message_id", msg.ID).Msg("message sent")
	return msg, nil
}

// Close releases the subscription.
func (s *Stream) Close() {
	s.mu.Lock()
	sub, chatID := s.sub, s.chat.ID
	s.sub = nil
	s.gen++
	s.chat = models.Chat{}
	s.messages = nil
	s.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
	if chatID != "" {
		s.receipts.Forget(chatID)
	}
}
