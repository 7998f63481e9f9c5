package app

import (
	"context"
	"testing"

	"github.com/conduit-app/relay/internal/domain"
	"github.com/conduit-app/relay/internal/store"
)

func newSignalingFixture(t *testing.T, callID domain.CallID, users ...string) (*SignalingRelay, map[string]*fakeConn, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	sr := &SignalingRelay{Calls: NewCallTable(), Auth: mem}
	conns := make(map[string]*fakeConn, len(users))
	for _, u := range users {
		conn := &fakeConn{}
		conns[u] = conn
		sr.Calls.Join(callID, domain.UserID(u), conn)
	}
	return sr, conns, mem
}

func TestSignalingRelay_OfferUnicast(t *testing.T) {
	sr, conns, _ := newSignalingFixture(t, "call1", "a", "b", "c")

	sr.HandleFrame(context.Background(), "call1", "a",
		[]byte(`{"type":"offer","target_user":"b","offer":{"type":"offer","sdp":"v=0"}}`))

	got := conns["b"].ofType(t, "offer")
	if len(got) != 1 {
		t.Fatalf("expected 1 offer at b, got %d", len(got))
	}
	if got[0]["from_user"] != "a" {
		t.Fatalf("offer not tagged with sender: %v", got[0])
	}
	if conns["c"].count() != 0 {
		t.Fatal("offer leaked to a non-target participant")
	}
}

func TestSignalingRelay_OfferToAbsentTargetDropped(t *testing.T) {
	sr, conns, _ := newSignalingFixture(t, "call1", "a", "b")

	sr.HandleFrame(context.Background(), "call1", "a",
		[]byte(`{"type":"offer","target_user":"ghost","offer":{"type":"offer","sdp":"v=0"}}`))

	for u, conn := range conns {
		if conn.count() != 0 {
			t.Fatalf("unexpected delivery to %s", u)
		}
	}
}

func TestSignalingRelay_OfferWithoutTargetDropped(t *testing.T) {
	sr, conns, _ := newSignalingFixture(t, "call1", "a", "b")

	sr.HandleFrame(context.Background(), "call1", "a",
		[]byte(`{"type":"offer","offer":{"type":"offer","sdp":"v=0"}}`))

	if conns["b"].count() != 0 {
		t.Fatal("offer without a target was forwarded")
	}
}

func TestSignalingRelay_ICETargetedAndBroadcast(t *testing.T) {
	sr, conns, _ := newSignalingFixture(t, "call1", "a", "b", "c")

	sr.HandleFrame(context.Background(), "call1", "a",
		[]byte(`{"type":"ice_candidate","target_user":"b","candidate":{"candidate":"candidate:1"}}`))
	if len(conns["b"].ofType(t, "ice_candidate")) != 1 || conns["c"].count() != 0 {
		t.Fatal("targeted trickle-ICE went to the wrong set")
	}

	sr.HandleFrame(context.Background(), "call1", "a",
		[]byte(`{"type":"ice_candidate","candidate":{"candidate":"candidate:2"}}`))
	if len(conns["b"].ofType(t, "ice_candidate")) != 2 || len(conns["c"].ofType(t, "ice_candidate")) != 1 {
		t.Fatal("broadcast trickle-ICE did not reach all other members")
	}
	if conns["a"].count() != 0 {
		t.Fatal("ICE echoed back to the sender")
	}
}

func TestSignalingRelay_MuteBroadcast(t *testing.T) {
	sr, conns, _ := newSignalingFixture(t, "call1", "a", "b", "c")

	sr.HandleFrame(context.Background(), "call1", "a", []byte(`{"type":"mute"}`))

	for _, u := range []string{"b", "c"} {
		got := conns[u].ofType(t, "mute")
		if len(got) != 1 || got[0]["user_id"] != "a" {
			t.Fatalf("mute at %s = %v", u, got)
		}
	}
	if conns["a"].count() != 0 {
		t.Fatal("mute echoed back to the sender")
	}
}

func TestSignalingRelay_VideoToggleDefaultsEnabled(t *testing.T) {
	sr, conns, _ := newSignalingFixture(t, "call1", "a", "b")

	sr.HandleFrame(context.Background(), "call1", "a", []byte(`{"type":"video_toggle"}`))
	got := conns["b"].ofType(t, "video_toggle")
	if len(got) != 1 || got[0]["video_enabled"] != true {
		t.Fatalf("video_toggle = %v", got)
	}

	sr.HandleFrame(context.Background(), "call1", "a", []byte(`{"type":"video_toggle","video_enabled":false}`))
	got = conns["b"].ofType(t, "video_toggle")
	if len(got) != 2 || got[1]["video_enabled"] != false {
		t.Fatalf("video_toggle = %v", got)
	}
}

func TestSignalingRelay_JoinedAnnouncement(t *testing.T) {
	sr, conns, _ := newSignalingFixture(t, "call1", "a", "b")
	c := &fakeConn{}
	participants := sr.Calls.Join("call1", "c", c)
	sr.Joined("call1", "c", participants)

	for _, u := range []string{"a", "b"} {
		got := conns[u].ofType(t, "user_joined")
		if len(got) != 1 || got[0]["user_id"] != "c" {
			t.Fatalf("user_joined at %s = %v", u, got)
		}
		list := got[0]["participants"].([]any)
		if len(list) != 3 {
			t.Fatalf("participant list = %v", list)
		}
	}
	if c.count() != 0 {
		t.Fatal("joiner received its own announcement")
	}
}

func TestSignalingRelay_DisconnectCascade(t *testing.T) {
	sr, conns, _ := newSignalingFixture(t, "call1", "a", "b", "c")

	// A dropped connection and an explicit leave may race; the cascade must
	// announce exactly once.
	sr.Disconnect("call1", "b", conns["b"])
	sr.Disconnect("call1", "b", conns["b"])

	for _, u := range []string{"a", "c"} {
		got := conns[u].ofType(t, "user_left")
		if len(got) != 1 {
			t.Fatalf("expected exactly one user_left at %s, got %d", u, len(got))
		}
		if got[0]["user_id"] != "b" {
			t.Fatalf("user_left = %v", got[0])
		}
		list := got[0]["participants"].([]any)
		if len(list) != 2 || list[0] != "a" || list[1] != "c" {
			t.Fatalf("participants after cascade = %v", list)
		}
	}
	if !equalIDs(sr.Calls.Members("call1"), ids("a", "c")) {
		t.Fatalf("members after cascade = %v", sr.Calls.Members("call1"))
	}
}

func TestSignalingRelay_StaleDisconnectAfterRejoin(t *testing.T) {
	sr, conns, _ := newSignalingFixture(t, "call1", "a", "b")

	// b reconnects to the same call; the evicted socket's teardown then runs.
	replacement := &fakeConn{}
	sr.Calls.Join("call1", "b", replacement)
	sr.Disconnect("call1", "b", conns["b"])

	if len(conns["a"].ofType(t, "user_left")) != 0 {
		t.Fatal("stale disconnect announced a user_left")
	}
	if !equalIDs(sr.Calls.Members("call1"), ids("a", "b")) {
		t.Fatalf("members after stale disconnect = %v", sr.Calls.Members("call1"))
	}
	if conn, ok := sr.Calls.Conn("call1", "b"); !ok || conn != replacement {
		t.Fatal("replacement connection was torn down")
	}
}

func TestSignalingRelay_EndCallAuthorized(t *testing.T) {
	sr, conns, mem := newSignalingFixture(t, "call1", "a", "b", "c")
	mem.SetCallCreator("call1", "a")

	sr.HandleFrame(context.Background(), "call1", "a", []byte(`{"type":"end_call"}`))

	for u, conn := range conns {
		got := conn.ofType(t, "call_ended")
		if len(got) != 1 || got[0]["ended_by"] != "a" {
			t.Fatalf("call_ended at %s = %v", u, got)
		}
	}
	if got := sr.Calls.Members("call1"); got != nil {
		t.Fatalf("call not emptied: %v", got)
	}
	if _, ok := sr.Calls.CurrentCall("b"); ok {
		t.Fatal("forced disconnect left a user mapped to the call")
	}
}

func TestSignalingRelay_EndCallDeniedForNonCreator(t *testing.T) {
	sr, conns, mem := newSignalingFixture(t, "call1", "a", "b")
	mem.SetCallCreator("call1", "a")

	sr.HandleFrame(context.Background(), "call1", "b", []byte(`{"type":"end_call"}`))

	for u, conn := range conns {
		if len(conn.ofType(t, "call_ended")) != 0 {
			t.Fatalf("unauthorized end_call reached %s", u)
		}
	}
	if !equalIDs(sr.Calls.Members("call1"), ids("a", "b")) {
		t.Fatal("unauthorized end_call mutated membership")
	}
}

func TestSignalingRelay_MalformedFramesDropped(t *testing.T) {
	sr, conns, _ := newSignalingFixture(t, "call1", "a", "b")

	frames := [][]byte{
		[]byte(`not json`),
		[]byte(`{"type":"warp_drive"}`),
		[]byte(`{"type":"ice_candidate"}`),
	}
	for _, fr := range frames {
		sr.HandleFrame(context.Background(), "call1", "a", fr)
	}
	if conns["b"].count() != 0 {
		t.Fatal("malformed frame produced a delivery")
	}
}
