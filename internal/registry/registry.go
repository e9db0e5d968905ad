// Package registry provides the shared session store crossing process
// boundaries: a key/value store with per-key expiry plus a publish/subscribe
// channel used to fan session-count changes out to every replica.
package registry

import (
	"context"
	"time"
)

// SessionKeyPrefix namespaces session keys: "session:<id>" -> accountID.
const SessionKeyPrefix = "session:"

// Subscription yields raw messages from the registry broadcast channel.
// Close releases the underlying connection; Events is closed afterwards.
type Subscription interface {
	Events() <-chan []byte
	Close() error
}

// SessionStore is the injected capability for the shared registry. It is
// never a process-global: callers receive an implementation (Redis in
// production, an in-memory fake in tests) through their constructor.
type SessionStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	// Del is idempotent: deleting an absent key is not an error.
	Del(ctx context.Context, key string) error
	// Expire resets the TTL for an existing key. Used by sliding-session
	// policy; returns false if the key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	KeysByPrefix(ctx context.Context, prefix string) ([]string, error)
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// ErrKeyNotFound is returned by Get when the key is absent or expired.
// Store-enforced expiry makes the two cases indistinguishable.
var ErrKeyNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "registry: key not found" }
