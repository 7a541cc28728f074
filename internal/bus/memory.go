package bus

import (
	"context"
	"sync"
)

const subscriberBuffer = 64

// MemoryBus is an in-process Bus for single-node deployments and tests.
type MemoryBus struct {
	mu     sync.RWMutex
	topics map[string]map[*memorySub]struct{}
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{topics: make(map[string]map[*memorySub]struct{})}
}

type memorySub struct {
	bus   *MemoryBus
	topic string
	ch    chan Event
	once  sync.Once
}

func (s *memorySub) C() <-chan Event { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if subs, ok := s.bus.topics[s.topic]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.bus.topics, s.topic)
			}
		}
		s.bus.mu.Unlock()
		close(s.ch)
	})
	return nil
}

func (b *MemoryBus) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.topics[ev.Topic] {
		// Non-blocking send so a stalled subscriber cannot block the publisher.
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(topic string) (Subscription, error) {
	sub := &memorySub{bus: b, topic: topic, ch: make(chan Event, subscriberBuffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub, nil
	}
	if _, ok := b.topics[topic]; !ok {
		b.topics[topic] = make(map[*memorySub]struct{})
	}
	b.topics[topic][sub] = struct{}{}
	return sub, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	subs := make([]*memorySub, 0)
	for _, topicSubs := range b.topics {
		for sub := range topicSubs {
			subs = append(subs, sub)
		}
	}
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}
