package bus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gobwas/glob"
)

type memMsg struct {
	topic   string
	payload []byte
}

// Memory is an in-process Bus with Redis-style glob pattern matching.
// It backs tests and single-process development. Delivery is buffered
// per subscription; a full buffer drops, matching the best-effort
// contract of the real transport.
type Memory struct {
	mu   sync.RWMutex
	subs map[*memSub]struct{}
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[*memSub]struct{})}
}

func (b *Memory) Publish(_ context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !s.matcher.Match(topic) {
			continue
		}
		select {
		case s.ch <- memMsg{topic: topic, payload: data}:
		default:
			// slow subscriber, drop
		}
	}
	return nil
}

func (b *Memory) Subscribe(_ context.Context, pattern string, h Handler) (Subscription, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	s := &memSub{
		bus:     b,
		matcher: g,
		ch:      make(chan memMsg, 64),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		for {
			select {
			case m := <-s.ch:
				h(m.topic, m.payload)
			case <-s.done:
				return
			}
		}
	}()
	return s, nil
}

type memSub struct {
	bus     *Memory
	matcher glob.Glob
	ch      chan memMsg
	done    chan struct{}
	once    sync.Once
}

func (s *memSub) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.done)
	})
	return nil
}
