package livequery

import (
	"context"
	"sync"

	"github.com/Vasu1712/chatwise-backend/internal/apperr"
	"github.com/Vasu1712/chatwise-backend/internal/metrics"
)

// Subscription is the handle of a live query. The owner must Close it.
type Subscription struct {
	topic    string
	cancel   context.CancelFunc
	unlisten func()
	wake     chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	feedErr error
	once    sync.Once
}

// Watch runs fetch once immediately and again after every change on topic,
// passing each full result to deliver. Deliveries are serial and
// coalesced: bursts of changes yield one refetch. Fetch and feed failures
// reach deliver as subscription errors; the subscription stays open and
// recovers on the next change or Refresh.
func Watch[T any](ctx context.Context, feed Feed, topic string, fetch func(context.Context) (T, error), deliver func(T, error)) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		topic:  topic,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	unlisten, err := feed.Listen(topic, s.notify)
	if err != nil {
		cancel()
		return nil, apperr.Subscription(err)
	}
	s.unlisten = unlisten
	metrics.LiveSubscriptions.Inc()

	s.notify(nil)
	go func() {
		defer close(s.done)
		defer metrics.LiveSubscriptions.Dec()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			}

			s.mu.Lock()
			feedErr := s.feedErr
			s.feedErr = nil
			s.mu.Unlock()

			var zero T
			if feedErr != nil {
				deliver(zero, apperr.Subscription(feedErr))
				continue
			}

			v, err := fetch(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				deliver(zero, apperr.Subscription(err))
				continue
			}
			deliver(v, nil)
		}
	}()
	return s, nil
}

// notify records the latest feed state and wakes the delivery loop. A
// later change clears an earlier feed error since the refetch reports
// the current state either way.
func (s *Subscription) notify(err error) {
	s.mu.Lock()
	s.feedErr = err
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Topic returns the watched topic.
func (s *Subscription) Topic() string { return s.topic }

// Refresh forces a refetch.
func (s *Subscription) Refresh() { s.notify(nil) }

// Close stops delivery. A delivery already in progress may still
// complete; callers that need a hard cut-off must guard their own state.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		s.unlisten()
	})
}

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }
