package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Vasu1712/chatwise-backend/internal/livequery"
)

// notifyChannel carries livequery topics as NOTIFY payloads.
const notifyChannel = "chatwise_changes"

const (
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// backoff doubles the reconnect delay up to maxBackoff.
type backoff struct{ cur time.Duration }

func newBackoff() *backoff { return &backoff{cur: initialBackoff} }

// next returns the delay to wait now and grows the following one.
func (b *backoff) next() time.Duration {
	d := b.cur
	b.cur *= 2
	if b.cur > maxBackoff {
		b.cur = maxBackoff
	}
	return d
}

func (b *backoff) reset() { b.cur = initialBackoff }

// Feed publishes topics with pg_notify and delivers every received
// notification to local listeners through a hub.
type Feed struct {
	pool *pgxpool.Pool
	hub  *livequery.Hub
	log  zerolog.Logger
}

func NewFeed(pool *pgxpool.Pool, hub *livequery.Hub, logger zerolog.Logger) *Feed {
	return &Feed{pool: pool, hub: hub, log: logger}
}

func (f *Feed) Publish(ctx context.Context, topic string) error {
	_, err := f.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, topic)
	return err
}

func (f *Feed) Listen(topic string, fn func(error)) (func(), error) {
	return f.hub.Listen(topic, fn)
}

// Run holds a dedicated LISTEN connection until ctx is cancelled,
// reconnecting with backoff. The backoff starts over once LISTEN succeeds.
// Listeners see connection failures and are asked to refetch once the
// connection is back.
func (f *Feed) Run(ctx context.Context) {
	wait := newBackoff()
	for attempt := 0; ; attempt++ {
		err := f.listen(ctx, attempt > 0, wait.reset)
		if ctx.Err() != nil {
			return
		}
		delay := wait.next()
		f.log.Error().Err(err).Dur("retry_in", delay).Msg("postgres change feed lost")
		_ = f.hub.Broadcast(ctx, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (f *Feed) listen(ctx context.Context, reconnect bool, listening func()) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	listening()
	if reconnect {
		_ = f.hub.Broadcast(ctx, nil)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if err := f.hub.Publish(ctx, n.Payload); err != nil {
			f.log.Warn().Err(err).Str("topic", n.Payload).Msg("change notification dropped")
		}
	}
}
