package websocket

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/postdeck/internal/model"
	"github.com/dukerupert/postdeck/internal/session"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		send: make(chan []byte, sendBufferSize),
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
	return Message{}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(nil)

	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	hub.Unregister(c1) // second call must not panic

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}
	hub.Unregister(c2)
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(nil)
	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)

	hub.Broadcast(Message{Type: TypePostCreated, ID: 42})

	for _, c := range []*Client{c1, c2} {
		got := receive(t, c)
		if got.Type != TypePostCreated {
			t.Errorf("type = %q, want %q", got.Type, TypePostCreated)
		}
		if got.ID != 42 {
			t.Errorf("id = %d, want 42", got.ID)
		}
	}
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(nil)
	c := mockClient(hub)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(Message{Type: TypePostDeleted, ID: int64(i)})
	}
	// This should drop the message, not block
	hub.Broadcast(Message{Type: TypePostDeleted, ID: 999})

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("buffered = %d, want %d", got, sendBufferSize)
	}
	if got := hub.Dropped(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
}

func TestSessionChanged(t *testing.T) {
	hub := NewHub(nil)
	c := mockClient(hub)
	hub.Register(c)

	hub.SessionChanged(session.Event{State: session.Authenticated, User: &model.User{Username: "alice"}})
	got := receive(t, c)
	if got.Type != TypeSessionStarted || got.Username != "alice" || got.Redirect != "/dashboard" {
		t.Errorf("started message = %+v", got)
	}

	hub.SessionChanged(session.Event{State: session.Anonymous, Reason: "unauthorized"})
	got = receive(t, c)
	if got.Type != TypeSessionEnded || got.Reason != "unauthorized" || got.Redirect != "/login" {
		t.Errorf("ended message = %+v", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(nil)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub)
			hub.Register(c)
			hub.Broadcast(Message{Type: TypePostCreated})
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}

func TestClose(t *testing.T) {
	hub := NewHub(nil)
	c := mockClient(hub)
	hub.Register(c)

	hub.Close()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after close, got %d", got)
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel should be closed")
	}
	hub.Unregister(c) // must not double close
}
