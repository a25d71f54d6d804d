package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/metrics"
	"github.com/Vasu1712/chatwise-backend/internal/models"
	"github.com/Vasu1712/chatwise-backend/internal/storage"
)

// Reconciler issues read receipts for messages a viewer has seen. It
// remembers which receipts are in flight so a burst of snapshots does not
// repeat the same write.
type Reconciler struct {
	store storage.Messages
	log   zerolog.Logger

	mu       sync.Mutex
	inflight map[string]map[string]struct{} // chatID -> message ids
}

func NewReconciler(store storage.Messages, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		log:      logger,
		inflight: make(map[string]map[string]struct{}),
	}
}

// MarkRead sets the message status to read on behalf of reader.
func (r *Reconciler) MarkRead(ctx context.Context, chatID, messageID, reader string) error {
	if err := r.store.MarkRead(ctx, chatID, messageID, reader); err != nil {
		metrics.ReadReceipts.WithLabelValues("error").Inc()
		return apperr.Write(err)
	}
	metrics.ReadReceipts.WithLabelValues("ok").Inc()
	return nil
}

// Reconcile marks every message in msgs that viewer did not send and has
// not read yet, skipping receipts already in flight. A receipt stays in
// flight only until its write returns; failures are logged and the message
// becomes eligible again on the next snapshot. It returns the number of
// receipts issued.
func (r *Reconciler) Reconcile(ctx context.Context, chatID, viewer string, msgs []models.Message) int {
	var pending []string

	r.mu.Lock()
	seen := r.inflight[chatID]
	for _, m := range msgs {
		if m.Status == models.StatusRead {
			delete(seen, m.ID)
			continue
		}
		if m.Sender == viewer {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		if seen == nil {
			seen = make(map[string]struct{})
			r.inflight[chatID] = seen
		}
		seen[m.ID] = struct{}{}
		pending = append(pending, m.ID)
	}
	if len(seen) == 0 {
		delete(r.inflight, chatID)
	}
	r.mu.Unlock()

	for _, id := range pending {
		if err := r.MarkRead(ctx, chatID, id, viewer); err != nil {
			r.log.Warn().Err(err).Str("dm_id", chatID).Str("message_id", id).Msg("read receipt failed")
		}
		r.settle(chatID, id)
	}
	return len(pending)
}

func (r *Reconciler) settle(chatID, messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := r.inflight[chatID]
	delete(seen, messageID)
	if len(seen) == 0 {
		delete(r.inflight, chatID)
	}
}

// pending reports how many receipts of chatID are in flight.
func (r *Reconciler) pending(chatID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight[chatID])
}

// Forget drops the in-flight markers of a chat the viewer left.
func (r *Reconciler) Forget(chatID string) {
	r.mu.Lock()
	delete(r.inflight, chatID)
	r.mu.Unlock()
}
