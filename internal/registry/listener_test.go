package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ttrenholm/gatehouse/internal/notify"
)

func TestListener_RecountsOnSessionEvents(t *testing.T) {
	_, store := newTestStore(t)
	hub := notify.NewHub()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewListener(store, hub, "gatehouse:sessions", logger)
	go listener.Run(ctx)

	obs := hub.Register()
	defer obs.Cancel()

	// Baseline count arrives once the listener is subscribed.
	waitForCount(t, obs, 0)

	require.NoError(t, store.Set(ctx, "session:abc", "acct-1", time.Hour))
	require.NoError(t, store.Publish(ctx, "gatehouse:sessions", []byte(`{"session_id":"abc","action":"login"}`)))
	waitForCount(t, obs, 1)

	require.NoError(t, store.Del(ctx, "session:abc"))
	require.NoError(t, store.Publish(ctx, "gatehouse:sessions", []byte(`{"session_id":"abc","action":"logout"}`)))
	waitForCount(t, obs, 0)
}

func TestListener_SkipsMalformedEvents(t *testing.T) {
	_, store := newTestStore(t)
	hub := notify.NewHub()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewListener(store, hub, "gatehouse:sessions", logger)
	go listener.Run(ctx)

	obs := hub.Register()
	defer obs.Cancel()
	waitForCount(t, obs, 0)

	require.NoError(t, store.Publish(ctx, "gatehouse:sessions", []byte("not json")))

	// The listener survives the garbage and keeps processing real events.
	require.NoError(t, store.Set(ctx, "session:abc", "acct-1", time.Hour))
	require.NoError(t, store.Publish(ctx, "gatehouse:sessions", []byte(`{"session_id":"abc","action":"login"}`)))
	waitForCount(t, obs, 1)
}

func TestListener_StopsOnContextCancel(t *testing.T) {
	_, store := newTestStore(t)
	hub := notify.NewHub()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	listener := NewListener(store, hub, "gatehouse:sessions", logger)
	go func() {
		listener.Run(ctx)
		close(done)
	}()

	obs := hub.Register()
	defer obs.Cancel()
	waitForCount(t, obs, 0)

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop after context cancel")
	}
}

// waitForCount drains the observer until the expected count arrives.
func waitForCount(t *testing.T, obs *notify.Observer, want int) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case update := <-obs.C:
			if update.ActiveSessions == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for session count %d", want)
		}
	}
}
