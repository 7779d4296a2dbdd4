package bus

import (
	"context"
	"encoding/json"

	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis implements Bus on Redis pub/sub. Pattern subscriptions use
// PSUBSCRIBE; each subscription drains its channel on one goroutine so
// messages from a single publisher arrive at the handler in order.
type Redis struct {
	rdb *r.Client
	log *zap.Logger
}

func NewRedis(rdb *r.Client, log *zap.Logger) *Redis {
	return &Redis{rdb: rdb, log: log}
}

func (b *Redis) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, topic, data).Err()
}

func (b *Redis) Subscribe(ctx context.Context, pattern string, h Handler) (Subscription, error) {
	ps := b.rdb.PSubscribe(ctx, pattern)
	// Force the SUBSCRIBE round trip so a dead transport fails here,
	// not silently in the drain goroutine.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	go func() {
		for msg := range ps.Channel() {
			h(msg.Channel, []byte(msg.Payload))
		}
		b.log.Debug("subscription drained", zap.String("pattern", pattern))
	}()

	return &redisSub{ps: ps}, nil
}

type redisSub struct{ ps *r.PubSub }

// Close unsubscribes and ends the drain goroutine (the message channel
// is closed by go-redis once the PubSub is closed).
func (s *redisSub) Close() error { return s.ps.Close() }
