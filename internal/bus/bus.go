// Package bus wraps the publish/subscribe transport. Publishing is
// best-effort and fire-and-forget: the state change that triggered a
// publish has already committed, so transport failures are the caller's
// to log, never to propagate.
package bus

import (
	"context"
	"strings"
)

const (
	KindConversation = "conversation"
	KindJob          = "job"

	ClassMessages = "messages"
	ClassStatus   = "status"
)

// Topic builds the <kind>:<id>:<class> channel name for one entity.
func Topic(kind, id, class string) string {
	return kind + ":" + id + ":" + class
}

// Pattern builds the wildcard channel pattern matching every entity of
// a kind/class pair.
func Pattern(kind, class string) string {
	return kind + ":*:" + class
}

// EntityID extracts the entity id from a topic name. The id sits at a
// fixed position between the delimiters.
func EntityID(topic string) (string, bool) {
	parts := strings.Split(topic, ":")
	if len(parts) < 3 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Handler receives one decoded transport message. Handlers on a single
// subscription are invoked sequentially, preserving per-channel order.
type Handler func(topic string, payload []byte)

// Subscription is a live pattern subscription; Close tears it down.
type Subscription interface {
	Close() error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, pattern string, h Handler) (Subscription, error)
}

type Bus interface {
	Publisher
	Subscriber
}
