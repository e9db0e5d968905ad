package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// opTimeout bounds every registry round-trip. A registry outage surfaces as
// an explicit error to the caller, never a hang.
const opTimeout = 3 * time.Second

// RedisStore implements SessionStore on go-redis. Connection-level retry and
// backoff are configured on the client itself.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("registry set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("registry get %q: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// DEL of an absent key returns 0 deleted, which is fine.
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("registry del %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ok, err := s.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("registry expire %q: %w", key, err)
	}
	return ok, nil
}

// KeysByPrefix enumerates live keys with SCAN so large registries don't
// block the server the way KEYS would.
func (s *RedisStore) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("registry scan %q: %w", prefix, err)
	}
	return keys, nil
}

func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("registry publish %q: %w", channel, err)
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := s.client.Subscribe(ctx, channel)

	// Force the SUBSCRIBE round-trip so connection failures surface here
	// instead of silently on the first receive.
	recvCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := pubsub.Receive(recvCtx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("registry subscribe %q: %w", channel, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	events    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) Events() <-chan []byte { return s.events }

func (s *redisSubscription) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.pubsub.Close()
}

// pump copies messages from go-redis into the subscription channel. The
// go-redis PubSub reconnects internally; Channel() closes only after Close.
// The done select keeps pump from hanging on a full events buffer once the
// consumer has stopped reading.
func (s *redisSubscription) pump() {
	defer close(s.events)
	for msg := range s.pubsub.Channel() {
		select {
		case s.events <- []byte(msg.Payload):
		case <-s.done:
			return
		}
	}
}
