package ws

import (
	"net"
	"testing"
	"time"
)

// pipeConn builds a registered connection over net.Pipe. The client side is
// drained in the background so writes never block.
func pipeConn(t *testing.T, id string, fd int) *Connection {
	t.Helper()
	server, client := net.Pipe()
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := client.Read(buf); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() { client.Close() })
	return newConnection(server, fd, id, 16, time.Second, nil)
}

func TestRegistry_PrimaryIsNewestConnection(t *testing.T) {
	r := NewRegistry()
	c1 := pipeConn(t, "c1", 11)
	c2 := pipeConn(t, "c2", 12)
	r.Add(c1)
	r.Add(c2)

	r.Authenticate("c1", "u1")
	r.Authenticate("c2", "u1")

	if got := r.Primary("u1"); got == nil || got.ID != "c2" {
		t.Fatalf("primary = %v, want c2", got)
	}

	// Dropping the primary falls back to the older connection.
	if _, last, _ := r.Remove("c2"); last {
		t.Error("removing one of two connections reported last")
	}
	if got := r.Primary("u1"); got == nil || got.ID != "c1" {
		t.Fatalf("primary after removal = %v, want c1", got)
	}

	userID, last, removed := r.Remove("c1")
	if !removed || !last || userID != "u1" {
		t.Errorf("final removal = (%s, %v, %v), want (u1, true, true)", userID, last, removed)
	}
	if r.Primary("u1") != nil {
		t.Error("user still has a primary after all connections removed")
	}
}

func TestRegistry_SendToOfflineUserIsNoop(t *testing.T) {
	r := NewRegistry()
	// Must not panic or block.
	r.Send("nobody", []byte("x"))
	r.SendDroppable("nobody", []byte("x"))
}

func TestRegistry_RemoveUnknownConnection(t *testing.T) {
	r := NewRegistry()
	if _, _, removed := r.Remove("ghost"); removed {
		t.Error("removing an unknown connection reported success")
	}
}

func TestRegistry_UnauthenticatedConnectionHasNoUser(t *testing.T) {
	r := NewRegistry()
	c := pipeConn(t, "c1", 21)
	r.Add(c)

	if c.UserID() != "" {
		t.Error("fresh connection already has a user")
	}
	if r.Count() != 1 {
		t.Errorf("count = %d, want 1", r.Count())
	}

	userID, last, removed := r.Remove("c1")
	if !removed || last || userID != "" {
		t.Errorf("remove = (%q, %v, %v), want (\"\", false, true)", userID, last, removed)
	}
}

func TestConnection_SlowConsumerIsTornDown(t *testing.T) {
	// Server side of a pipe with nobody reading: writes block until the send
	// timeout, then the writer reports the connection dead.
	server, client := net.Pipe()
	defer client.Close()

	dead := make(chan *Connection, 1)
	c := newConnection(server, 31, "slow", 2, 20*time.Millisecond, func(conn *Connection) {
		select {
		case dead <- conn:
		default:
		}
		conn.Close()
	})

	c.Enqueue([]byte("msg-1"), false)
	c.Enqueue([]byte("msg-2"), false)
	c.Enqueue([]byte("msg-3"), false) // overflow on a queue with nothing droppable

	select {
	case got := <-dead:
		if got.ID != "slow" {
			t.Errorf("dead conn = %s, want slow", got.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("slow consumer was never torn down")
	}
}
