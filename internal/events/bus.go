package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bus moves events from the services that produce them to the fan-out hub.
// The redis backend lets a separate process (worker) publish into the same
// stream the api process broadcasts from.
type Bus interface {
	Publish(ctx context.Context, e Event) error
	Consume(ctx context.Context) (<-chan Event, error)
}

// InMemory is a channel-backed bus for single-process deployments and tests.
type InMemory struct {
	ch chan Event
}

// NewInMemory creates a bounded in-memory bus.
func NewInMemory(size int) *InMemory {
	if size <= 0 {
		size = 64
	}
	return &InMemory{ch: make(chan Event, size)}
}

// Publish enqueues an event.
func (b *InMemory) Publish(ctx context.Context, e Event) error {
	select {
	case b.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns the delivery channel.
func (b *InMemory) Consume(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case e := <-b.ch:
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisBus implements the bus over a redis list with LPUSH/BRPOP semantics.
type RedisBus struct {
	client *redis.Client
	key    string
}

// NewRedisBus builds a bus on the given list key.
func NewRedisBus(client *redis.Client, key string) *RedisBus {
	if key == "" {
		key = "classroom:events"
	}
	return &RedisBus{client: client, key: key}
}

// Publish enqueues an event as JSON.
func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.client.LPush(ctx, b.key, payload).Err()
}

// Consume streams events using BRPOP.
func (b *RedisBus) Consume(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			res, err := b.client.BRPop(ctx, 5*time.Second, b.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var e Event
			if err := json.Unmarshal([]byte(res[1]), &e); err != nil {
				log.Printf("events: dropping undecodable payload: %v", err)
				continue
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
