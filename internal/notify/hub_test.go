package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
)

type fakeConn struct {
	mu       sync.Mutex
	messages []wsMessage
	writeErr error
	closed   bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.messages = append(c.messages, v.(wsMessage))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() []wsMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wsMessage(nil), c.messages...)
}

func newTestHub() *Hub {
	return NewHub(slog.Default())
}

func TestHub_PublishTargeted(t *testing.T) {
	hub := newTestHub()
	ctx := context.Background()

	alice := &fakeConn{}
	bob := &fakeConn{}
	hub.Register("alice", alice)
	hub.Register("bob", bob)

	if err := hub.Publish(ctx, EventParticipantPaid, map[string]string{"order_id": "o-1"}, "alice"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if got := alice.received(); len(got) != 1 || got[0].Event != EventParticipantPaid {
		t.Errorf("alice received %+v, want one participant.paid event", got)
	}
	if got := bob.received(); len(got) != 0 {
		t.Errorf("bob received %+v, want nothing", got)
	}
}

func TestHub_PublishBroadcast(t *testing.T) {
	hub := newTestHub()
	ctx := context.Background()

	alice := &fakeConn{}
	bob := &fakeConn{}
	hub.Register("alice", alice)
	hub.Register("bob", bob)

	if err := hub.Publish(ctx, EventOrderConfirmed, nil); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(alice.received()) != 1 || len(bob.received()) != 1 {
		t.Error("broadcast did not reach all connected users")
	}
}

func TestHub_MultipleConnectionsPerUser(t *testing.T) {
	hub := newTestHub()
	ctx := context.Background()

	tab1 := &fakeConn{}
	tab2 := &fakeConn{}
	hub.Register("alice", tab1)
	hub.Register("alice", tab2)

	if err := hub.Publish(ctx, EventSessionInvite, nil, "alice"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(tab1.received()) != 1 || len(tab2.received()) != 1 {
		t.Error("event did not reach every connection of the user")
	}

	hub.Unregister("alice", tab1)
	if hub.Connected("alice") != 1 {
		t.Errorf("Connected = %d after unregister, want 1", hub.Connected("alice"))
	}
}

func TestHub_DropsFailedConnections(t *testing.T) {
	hub := newTestHub()
	ctx := context.Background()

	broken := &fakeConn{writeErr: errors.New("broken pipe")}
	hub.Register("alice", broken)

	if err := hub.Publish(ctx, EventOrderCancelled, nil, "alice"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if hub.Connected("alice") != 0 {
		t.Error("failed connection was not dropped from the hub")
	}
	if !broken.closed {
		t.Error("failed connection was not closed")
	}
}

func TestMulti_ContinuesPastFailures(t *testing.T) {
	ctx := context.Background()

	failing := publisherFunc(func(context.Context, string, any, ...string) error {
		return errors.New("sink down")
	})
	var delivered int
	counting := publisherFunc(func(context.Context, string, any, ...string) error {
		delivered++
		return nil
	})

	multi := NewMulti(slog.Default(), failing, counting)
	if err := multi.Publish(ctx, EventOrderConfirmed, nil); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if delivered != 1 {
		t.Errorf("second publisher called %d times, want 1", delivered)
	}
}

type publisherFunc func(ctx context.Context, event string, payload any, userIDs ...string) error

func (f publisherFunc) Publish(ctx context.Context, event string, payload any, userIDs ...string) error {
	return f(ctx, event, payload, userIDs...)
}
