package livequery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
)

type recorder struct {
	mu     sync.Mutex
	values []int
	errs   []error
}

func (r *recorder) deliver(v int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errs = append(r.errs, err)
		return
	}
	r.values = append(r.values, v)
}

func (r *recorder) last() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return 0, 0
	}
	return r.values[len(r.values)-1], len(r.values)
}

func (r *recorder) errCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func TestWatchDeliversInitialAndChangedSnapshots(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()

	var state atomic.Int32
	state.Store(1)
	rec := &recorder{}
	sub, err := Watch(ctx, h, "messages:c1", func(context.Context) (int, error) {
		return int(state.Load()), nil
	}, rec.deliver)
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { v, _ := rec.last(); return v == 1 }, time.Second, 5*time.Millisecond)

	state.Store(2)
	require.NoError(t, h.Publish(ctx, "messages:c1"))
	require.Eventually(t, func() bool { v, _ := rec.last(); return v == 2 }, time.Second, 5*time.Millisecond)
}

func TestWatchCloseStopsDelivery(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()

	rec := &recorder{}
	sub, err := Watch(ctx, h, "chats:a@x.com", func(context.Context) (int, error) { return 7, nil }, rec.deliver)
	require.NoError(t, err)
	require.Eventually(t, func() bool { _, n := rec.last(); return n == 1 }, time.Second, 5*time.Millisecond)

	sub.Close()
	<-sub.Done()
	require.Eventually(t, func() bool { return h.Listeners("chats:a@x.com") == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Publish(ctx, "chats:a@x.com"))
	time.Sleep(20 * time.Millisecond)
	_, n := rec.last()
	require.Equal(t, 1, n)
}

func TestWatchFetchErrorIsRetryable(t *testing.T) {
	h := startHub(t)

	var fail atomic.Bool
	fail.Store(true)
	rec := &recorder{}
	sub, err := Watch(context.Background(), h, "chats:a@x.com", func(context.Context) (int, error) {
		if fail.Load() {
			return 0, errors.New("store down")
		}
		return 3, nil
	}, rec.deliver)
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { return rec.errCount() == 1 }, time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	require.ErrorIs(t, rec.errs[0], apperr.ErrSubscription)
	rec.mu.Unlock()

	fail.Store(false)
	sub.Refresh()
	require.Eventually(t, func() bool { v, _ := rec.last(); return v == 3 }, time.Second, 5*time.Millisecond)
}

func TestWatchFeedFailure(t *testing.T) {
	h := startHub(t)
	ctx := context.Background()

	rec := &recorder{}
	sub, err := Watch(ctx, h, "messages:c1", func(context.Context) (int, error) { return 1, nil }, rec.deliver)
	require.NoError(t, err)
	defer sub.Close()
	require.Eventually(t, func() bool { _, n := rec.last(); return n == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Broadcast(ctx, errors.New("listener connection lost")))
	require.Eventually(t, func() bool { return rec.errCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWatchListenFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub()
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	_, err := Watch(context.Background(), h, "chats:a@x.com", func(context.Context) (int, error) { return 0, nil }, func(int, error) {})
	require.ErrorIs(t, err, apperr.ErrSubscription)
}
