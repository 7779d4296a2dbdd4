// Package relay bridges bus topics to room broadcasts. One wildcard
// subscription per event class is established at startup; entity ids
// are extracted from topic names at dispatch time, never by
// re-subscribing per entity.
package relay

import (
	"context"

	"go.uber.org/zap"

	"github.com/you/uvian/internal/bus"
)

// Broadcaster is the room-facing side of the relay; the ws Hub
// satisfies it.
type Broadcaster interface {
	Broadcast(roomID, event string, payload any)
}

// route binds one topic pattern to an outbound room event. idKey is the
// field name the extracted entity id is merged under.
type route struct {
	pattern string
	event   string
	idKey   string
}

type Relay struct {
	bus    bus.Subscriber
	rooms  Broadcaster
	log    *zap.Logger
	routes []route
	subs   []bus.Subscription
}

func New(b bus.Subscriber, rooms Broadcaster, log *zap.Logger) *Relay {
	return &Relay{
		bus:   b,
		rooms: rooms,
		log:   log,
		routes: []route{
			{bus.Pattern(bus.KindConversation, bus.ClassMessages), "new_message", "conversationId"},
			{bus.Pattern(bus.KindJob, bus.ClassStatus), "job_update", "jobId"},
		},
	}
}

// Start subscribes every route. A route that cannot subscribe is logged
// once and stays inactive; the REST surface keeps working without it.
func (r *Relay) Start(ctx context.Context) {
	for _, rt := range r.routes {
		sub, err := r.bus.Subscribe(ctx, rt.pattern, r.handler(rt))
		if err != nil {
			r.log.Error("relay subscribe failed, route inactive",
				zap.String("pattern", rt.pattern), zap.Error(err))
			continue
		}
		r.log.Info("relay subscribed", zap.String("pattern", rt.pattern))
		r.subs = append(r.subs, sub)
	}
}

// Stop tears down every live subscription.
func (r *Relay) Stop() {
	for _, s := range r.subs {
		_ = s.Close()
	}
	r.subs = nil
}

func (r *Relay) handler(rt route) bus.Handler {
	return func(topic string, payload []byte) {
		id, ok := bus.EntityID(topic)
		if !ok {
			r.log.Warn("relay: malformed topic", zap.String("topic", topic))
			return
		}

		env, err := decodeEnvelope(payload)
		if err != nil {
			// A single bad message must not interrupt the subscription.
			r.log.Error("relay: failed to parse payload",
				zap.String("topic", topic), zap.Error(err))
			return
		}

		r.rooms.Broadcast(id, rt.event, env.normalize(rt.idKey, id))
	}
}
