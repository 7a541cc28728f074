package bus

import (
	"context"
	"encoding/json"
	"log"

	"github.com/go-redis/redis/v8"
)

// RedisBus carries events over redis pub/sub so fan-out works across
// server instances.
type RedisBus struct {
	client *redis.Client
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, ev.Topic, data).Err()
}

func (b *RedisBus) Subscribe(topic string) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := b.client.Subscribe(ctx, topic)

	// Force the subscription to be established before returning so a
	// publish immediately after Subscribe is not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		pubsub.Close()
		return nil, err
	}

	sub := &redisSub{pubsub: pubsub, cancel: cancel, ch: make(chan Event, subscriberBuffer)}
	go sub.pump()
	return sub, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

type redisSub struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	ch     chan Event
}

func (s *redisSub) pump() {
	defer close(s.ch)
	for msg := range s.pubsub.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			log.Printf("bus: dropping malformed event on %s: %v", msg.Channel, err)
			continue
		}
		select {
		case s.ch <- ev:
		default:
		}
	}
}

func (s *redisSub) C() <-chan Event { return s.ch }

func (s *redisSub) Close() error {
	s.cancel()
	return s.pubsub.Close()
}
