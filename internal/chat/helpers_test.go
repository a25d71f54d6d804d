package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/chatwise-backend/internal/livequery"
	"github.com/Vasu1712/chatwise-backend/internal/models"
	"github.com/Vasu1712/chatwise-backend/internal/session"
	"github.com/Vasu1712/chatwise-backend/internal/storage"
	"github.com/Vasu1712/chatwise-backend/internal/storage/memory"
)

const (
	alice = "alice@x.com"
	bob   = "bob@x.com"
	carol = "carol@x.com"

	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

var errBoom = errors.New("boom")

// testStore wraps the memory store, counting calls and failing on demand.
type testStore struct {
	*memory.DMStore

	calls atomic.Int32

	failList atomic.Bool
	failMsgs atomic.Bool
	failAdd  atomic.Bool
	failMark atomic.Bool
}

var _ storage.Store = (*testStore)(nil)

func newTestStore(t *testing.T, users ...string) *testStore {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := livequery.NewHub()
	go hub.Run(ctx)

	s := &testStore{DMStore: memory.NewDMStore(hub, zerolog.Nop())}
	for _, email := range users {
		require.NoError(t, s.DMStore.CreateUser(ctx, &models.User{Identity: models.Identity{Email: email}}))
	}
	return s
}

func (s *testStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.calls.Add(1)
	return s.DMStore.GetUserByEmail(ctx, email)
}

func (s *testStore) ListChats(ctx context.Context, email string) ([]models.Chat, error) {
	s.calls.Add(1)
	if s.failList.Load() {
		return nil, errBoom
	}
	return s.DMStore.ListChats(ctx, email)
}

func (s *testStore) CreateChat(ctx context.Context, users [2]string) (*models.Chat, error) {
	s.calls.Add(1)
	return s.DMStore.CreateChat(ctx, users)
}

func (s *testStore) CreateChatIfAbsent(ctx context.Context, id string, users [2]string) (*models.Chat, bool, error) {
	s.calls.Add(1)
	return s.DMStore.CreateChatIfAbsent(ctx, id, users)
}

func (s *testStore) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	if s.failMsgs.Load() {
		return nil, errBoom
	}
	return s.DMStore.ListMessages(ctx, chatID)
}

func (s *testStore) AddMessage(ctx context.Context, chatID, sender, text string) (*models.Message, error) {
	s.calls.Add(1)
	if s.failAdd.Load() {
		return nil, errBoom
	}
	return s.DMStore.AddMessage(ctx, chatID, sender, text)
}

func (s *testStore) MarkRead(ctx context.Context, chatID, messageID, reader string) error {
	if s.failMark.Load() {
		return errBoom
	}
	return s.DMStore.MarkRead(ctx, chatID, messageID, reader)
}

func signedIn(t *testing.T, email string) *session.Session {
	t.Helper()
	sess := session.New()
	require.NoError(t, sess.Start(models.Identity{Email: email}, time.UTC))
	return sess
}

// recorder keeps every value handed to a callback.
type recorder[T any] struct {
	mu  sync.Mutex
	all []T
}

func (r *recorder[T]) record(v T) {
	r.mu.Lock()
	r.all = append(r.all, v)
	r.mu.Unlock()
}

func (r *recorder[T]) get() (T, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last T
	if len(r.all) > 0 {
		last = r.all[len(r.all)-1]
	}
	return last, len(r.all)
}

func (r *recorder[T]) history() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.all...)
}

func (r *recorder[T]) latest() T {
	v, _ := r.get()
	return v
}
