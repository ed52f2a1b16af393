package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vovakirdan/chatcore-server/internal/store"
	"github.com/vovakirdan/chatcore-server/internal/store/sqlite"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent fails if an event of the given kind arrives within wait.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	deadline := time.After(wait)
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event %v: %+v", kind, ev)
			}
		case <-deadline:
			return
		}
	}
}

// newTestHub starts a hub over a seeded in-memory store.
func newTestHub(t *testing.T) (*Hub, *sqlite.SQLiteStore) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := st.SeedChannels(context.Background(), store.DefaultChannels()); err != nil {
		t.Fatalf("seed channels: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return startHub(t, st), st
}

// startHub runs a hub over st until the test ends.
func startHub(t *testing.T, st store.Store) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(st, 0, nil)
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

var errStoreDown = errors.New("store down")

// flakyStore fails selected operations on demand.
type flakyStore struct {
	*sqlite.SQLiteStore

	failHistory atomic.Bool
	failSave    atomic.Bool
}

func (s *flakyStore) ListRecentMessages(ctx context.Context, channelID int64, limit int) ([]*store.Message, error) {
	if s.failHistory.Load() {
		return nil, errStoreDown
	}
	return s.SQLiteStore.ListRecentMessages(ctx, channelID, limit)
}

func (s *flakyStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if s.failSave.Load() {
		return errStoreDown
	}
	return s.SQLiteStore.SaveMessage(ctx, msg)
}

// newFlakyHub starts a hub over a seeded store whose failures the test controls.
func newFlakyHub(t *testing.T) (*Hub, *flakyStore) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := st.SeedChannels(context.Background(), store.DefaultChannels()); err != nil {
		t.Fatalf("seed channels: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	flaky := &flakyStore{SQLiteStore: st}
	return startHub(t, flaky), flaky
}

// awaitEvent is mustEvent for goroutines other than the test's own.
func awaitEvent(ch <-chan *Event, kind EventKind, wait time.Duration) (*Event, error) {
	deadline := time.After(wait)
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				return ev, nil
			}
		case <-deadline:
			return nil, fmt.Errorf("event %v not received within %s", kind, wait)
		}
	}
}

// connect registers a client and binds it to username.
func connect(t *testing.T, hub *Hub, id, username string) *Client {
	t.Helper()

	c := NewClient(id, 0)
	if !hub.RegisterClient(c) {
		t.Fatalf("register %s: hub stopped", id)
	}
	c.Commands <- &Command{Kind: CommandJoinApp, Username: username}
	ev := mustEvent(t, c.Events, EventJoinedApp)
	if ev.Username != username {
		t.Fatalf("unexpected joined_app: %+v", ev)
	}
	return c
}

func joinChannel(t *testing.T, c *Client, channelID int64) *Event {
	t.Helper()

	c.Commands <- &Command{Kind: CommandJoinChannel, ChannelID: channelID}
	ev := mustEvent(t, c.Events, EventChannelJoined)
	if ev.Channel.ID != channelID {
		t.Fatalf("joined wrong channel: %+v", ev)
	}
	return ev
}
