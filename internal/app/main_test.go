package app

import (
	"encoding/json"
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/conduit-app/relay/internal/core"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

// fakeConn records delivered frames in place of a live WebSocket.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	reject bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return core.ErrClosed
	}
	if f.reject {
		return core.ErrBackpressure
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// decoded unmarshals every recorded frame for assertions on shape.
func (f *fakeConn) decoded(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.frames))
	for _, fr := range f.frames {
		var m map[string]any
		if err := json.Unmarshal(fr, &m); err != nil {
			t.Fatalf("undecodable frame %q: %v", fr, err)
		}
		out = append(out, m)
	}
	return out
}

// ofType filters decoded frames by their type field.
func (f *fakeConn) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range f.decoded(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}
