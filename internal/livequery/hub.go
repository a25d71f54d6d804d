// Package livequery turns store change notifications into live snapshot
// subscriptions.
package livequery

import (
	"context"
	"errors"
	"sync"
)

// ErrHubStopped is returned once the hub's run loop has exited.
var ErrHubStopped = errors.New("livequery: hub stopped")

// Feed carries change notifications for named topics. Stores publish a
// topic after every write that changes the result of a query on it.
type Feed interface {
	// Publish notifies every listener of topic.
	Publish(ctx context.Context, topic string) error
	// Listen registers fn for topic. fn receives nil on a change and a
	// non-nil error when the feed itself fails. fn must not block.
	Listen(topic string, fn func(error)) (cancel func(), err error)
}

// ChatsTopic is published when the chat set of email changes.
func ChatsTopic(email string) string { return "chats:" + email }

// MessagesTopic is published when any message of a chat changes.
func MessagesTopic(chatID string) string { return "messages:" + chatID }

type listener struct {
	topic string
	fn    func(error)
}

type event struct {
	topic string
	all   bool
	err   error
}

// Hub is the in-process Feed. Remote feeds (Valkey, PostgreSQL) bridge
// their notifications into a Hub for local fan-out.
type Hub struct {
	listeners  map[string]map[*listener]bool // topic -> listeners
	register   chan *listener
	unregister chan *listener
	broadcast  chan event
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		listeners:  make(map[string]map[*listener]bool),
		register:   make(chan *listener),
		unregister: make(chan *listener),
		broadcast:  make(chan event, 64),
		done:       make(chan struct{}),
	}
}

// Run dispatches registrations and notifications until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case l := <-h.register:
			h.mu.Lock()
			if h.listeners[l.topic] == nil {
				h.listeners[l.topic] = make(map[*listener]bool)
			}
			h.listeners[l.topic][l] = true
			h.mu.Unlock()
		case l := <-h.unregister:
			h.mu.Lock()
			if ls, ok := h.listeners[l.topic]; ok {
				delete(ls, l)
				if len(ls) == 0 {
					delete(h.listeners, l.topic)
				}
			}
			h.mu.Unlock()
		case ev := <-h.broadcast:
			h.mu.RLock()
			if ev.all {
				for _, ls := range h.listeners {
					for l := range ls {
						l.fn(ev.err)
					}
				}
			} else {
				for l := range h.listeners[ev.topic] {
					l.fn(nil)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish implements Feed.
func (h *Hub) Publish(ctx context.Context, topic string) error {
	return h.send(ctx, event{topic: topic})
}

// Broadcast notifies every listener on every topic. A nil err asks all
// subscriptions to refetch; a non-nil err reports a feed failure.
func (h *Hub) Broadcast(ctx context.Context, err error) error {
	return h.send(ctx, event{all: true, err: err})
}

func (h *Hub) send(ctx context.Context, ev event) error {
	select {
	case h.broadcast <- ev:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Listen implements Feed.
func (h *Hub) Listen(topic string, fn func(error)) (func(), error) {
	l := &listener{topic: topic, fn: fn}
	select {
	case h.register <- l:
	case <-h.done:
		return nil, ErrHubStopped
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			select {
			case h.unregister <- l:
			case <-h.done:
			}
		})
	}, nil
}

// Listeners returns the number of listeners registered for topic.
func (h *Hub) Listeners(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[topic])
}
