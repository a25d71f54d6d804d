package valkey

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/valkey-io/valkey-go"

	"github.com/Vasu1712/chatwise-backend/internal/livequery"
)

// changesChannel carries livequery topics between service instances.
const changesChannel = keyPrefix + "changes"

// Feed publishes topics over Valkey pub/sub and delivers every received
// topic to local listeners through a hub.
type Feed struct {
	client valkey.Client
	hub    *livequery.Hub
	log    zerolog.Logger
}

func NewFeed(client valkey.Client, hub *livequery.Hub, logger zerolog.Logger) *Feed {
	return &Feed{client: client, hub: hub, log: logger}
}

func (f *Feed) Publish(ctx context.Context, topic string) error {
	return f.client.Do(ctx, f.client.B().Publish().Channel(changesChannel).Message(topic).Build()).Error()
}

func (f *Feed) Listen(topic string, fn func(error)) (func(), error) {
	return f.hub.Listen(topic, fn)
}

// Run keeps the pub/sub subscription alive until ctx is cancelled. While
// the subscription is down, listeners see the failure; after it comes
// back they are asked to refetch.
func (f *Feed) Run(ctx context.Context) {
	backoff := 100 * time.Millisecond
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			_ = f.hub.Broadcast(ctx, nil)
		}
		err := f.client.Receive(ctx, f.client.B().Subscribe().Channel(changesChannel).Build(), func(msg valkey.PubSubMessage) {
			if err := f.hub.Publish(ctx, msg.Message); err != nil {
				f.log.Warn().Err(err).Str("topic", msg.Message).Msg("change notification dropped")
			}
		})
		if ctx.Err() != nil {
			return
		}
		f.log.Error().Err(err).Dur("retry_in", backoff).Msg("valkey change feed lost")
		_ = f.hub.Broadcast(ctx, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}
