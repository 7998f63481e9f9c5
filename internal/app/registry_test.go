package app

import (
	"testing"

	"github.com/conduit-app/relay/internal/core"
)

func TestRegistry_SendToRegistered(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	r.Register("u1", conn)

	if !r.Send("u1", core.Frame(`{"type":"x"}`)) {
		t.Fatal("send to registered user reported not-delivered")
	}
	if conn.count() != 1 {
		t.Fatalf("expected 1 frame, got %d", conn.count())
	}
}

func TestRegistry_SendOffline(t *testing.T) {
	r := NewRegistry()
	if r.Send("nobody", core.Frame(`{}`)) {
		t.Fatal("send to unknown user reported delivered")
	}
}

func TestRegistry_ReRegisterEvictsPrior(t *testing.T) {
	r := NewRegistry()
	first := &fakeConn{}
	second := &fakeConn{}

	r.Register("u1", first)
	r.Register("u1", second)

	if !first.isClosed() {
		t.Fatal("evicted connection was not closed")
	}
	if second.isClosed() {
		t.Fatal("new connection must stay open")
	}

	r.Send("u1", core.Frame(`{}`))
	if second.count() != 1 || first.count() != 0 {
		t.Fatalf("delivery went to the wrong connection: first=%d second=%d", first.count(), second.count())
	}
}

func TestRegistry_UnregisterStaleHandleIsNoop(t *testing.T) {
	r := NewRegistry()
	stale := &fakeConn{}
	current := &fakeConn{}

	r.Register("u1", stale)
	r.Register("u1", current)

	// The evicted handle's late cleanup must not remove the new mapping.
	r.Unregister("u1", stale)

	if !r.Online("u1") {
		t.Fatal("current connection was removed by a stale unregister")
	}

	r.Unregister("u1", current)
	if r.Online("u1") {
		t.Fatal("unregister of current handle did not remove the mapping")
	}
	if r.Send("u1", core.Frame(`{}`)) {
		t.Fatal("send after unregister reported delivered")
	}
}

func TestRegistry_SendBackpressureIsNotDelivered(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{reject: true}
	r.Register("u1", conn)

	if r.Send("u1", core.Frame(`{}`)) {
		t.Fatal("backpressured send reported delivered")
	}
}

func TestRegistry_BroadcastExcludes(t *testing.T) {
	r := NewRegistry()
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	r.Register("a", a)
	r.Register("b", b)
	r.Register("c", c)

	sent := r.Broadcast(core.Frame(`{"type":"announce"}`), "b")
	if sent != 2 {
		t.Fatalf("expected 2 deliveries, got %d", sent)
	}
	if b.count() != 0 {
		t.Fatal("excluded user received broadcast")
	}
	if a.count() != 1 || c.count() != 1 {
		t.Fatalf("uneven delivery: a=%d c=%d", a.count(), c.count())
	}
}
