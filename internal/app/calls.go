package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/conduit-app/relay/internal/core"
	"github.com/conduit-app/relay/internal/domain"
)

// callState holds one call's live membership. order preserves join order for
// the participant lists sent to clients.
type callState struct {
	order []domain.UserID
	conns map[domain.UserID]core.Conn
}

func (s *callState) remove(uid domain.UserID) {
	delete(s.conns, uid)
	for i, id := range s.order {
		if id == uid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *callState) members() []domain.UserID {
	out := make([]domain.UserID, len(s.order))
	copy(out, s.order)
	return out
}

// CallTable maps a call to its current participants and each user to their
// current call. A user belongs to at most one call at a time; empty calls are
// pruned so the table never grows unbounded.
type CallTable struct {
	mu     sync.RWMutex
	calls  map[domain.CallID]*callState
	byUser map[domain.UserID]domain.CallID
}

func NewCallTable() *CallTable {
	return &CallTable{
		calls:  make(map[domain.CallID]*callState),
		byUser: make(map[domain.UserID]domain.CallID),
	}
}

// Join attaches uid to callID with the given connection and returns the
// member snapshot after the join. Membership in a different call is removed
// first; re-joining the same call replaces the stored connection. An evicted
// connection is closed, and its late Leave becomes a no-op.
func (t *CallTable) Join(callID domain.CallID, uid domain.UserID, conn core.Conn) []domain.UserID {
	t.mu.Lock()

	var evicted core.Conn
	if prev, ok := t.byUser[uid]; ok && prev != callID {
		if prevState, ok := t.calls[prev]; ok {
			evicted = prevState.conns[uid]
		}
		t.leaveLocked(prev, uid)
		log.Info().Str("module", "app.calls").Str("user", string(uid)).Str("from_call", string(prev)).Msg("migrated out of prior call")
	}

	state, ok := t.calls[callID]
	if !ok {
		state = &callState{conns: make(map[domain.UserID]core.Conn)}
		t.calls[callID] = state
	}
	if cur, member := state.conns[uid]; !member {
		state.order = append(state.order, uid)
	} else if cur != conn {
		evicted = cur
	}
	state.conns[uid] = conn
	t.byUser[uid] = callID

	members := state.members()
	t.mu.Unlock()

	if evicted != nil && evicted != conn {
		evicted.Close()
		log.Info().Str("module", "app.calls").Str("call", string(callID)).Str("user", string(uid)).Msg("evicted prior call connection")
	}
	log.Info().Str("module", "app.calls").Str("call", string(callID)).Str("user", string(uid)).Int("members", len(members)).Msg("joined call")
	return members
}

// Leave detaches uid from callID. removed is false when uid was not a member,
// which makes a duplicate leave (disconnect racing an explicit leave) a no-op.
// A non-nil conn must still be the stored connection, so the read-error path
// of an evicted socket cannot tear down its replacement; nil detaches
// unconditionally. remaining is the member snapshot after removal.
func (t *CallTable) Leave(callID domain.CallID, uid domain.UserID, conn core.Conn) (remaining []domain.UserID, removed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if conn != nil {
		if state, ok := t.calls[callID]; ok {
			if cur, member := state.conns[uid]; member && cur != conn {
				log.Warn().Str("module", "app.calls").Str("call", string(callID)).Str("user", string(uid)).Msg("leave from stale handle ignored")
				return state.members(), false
			}
		}
	}
	return t.leaveLocked(callID, uid)
}

func (t *CallTable) leaveLocked(callID domain.CallID, uid domain.UserID) ([]domain.UserID, bool) {
	state, ok := t.calls[callID]
	if !ok {
		return nil, false
	}
	if _, member := state.conns[uid]; !member {
		return state.members(), false
	}
	state.remove(uid)
	if cur, ok := t.byUser[uid]; ok && cur == callID {
		delete(t.byUser, uid)
	}
	if len(state.order) == 0 {
		delete(t.calls, callID)
		log.Info().Str("module", "app.calls").Str("call", string(callID)).Msg("pruned empty call")
		return nil, true
	}
	log.Info().Str("module", "app.calls").Str("call", string(callID)).Str("user", string(uid)).Int("members", len(state.order)).Msg("left call")
	return state.members(), true
}

// Members returns a snapshot copy of the call's current member ids. Callers
// iterate it while the table keeps mutating, so never hand out a live view.
func (t *CallTable) Members(callID domain.CallID) []domain.UserID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.calls[callID]
	if !ok {
		return nil
	}
	return state.members()
}

// CurrentCall returns the call uid is attached to, if any.
func (t *CallTable) CurrentCall(uid domain.UserID) (domain.CallID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byUser[uid]
	return id, ok
}

// Conn returns uid's connection on callID, if uid is currently a member there.
func (t *CallTable) Conn(callID domain.CallID, uid domain.UserID) (core.Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.calls[callID]
	if !ok {
		return nil, false
	}
	conn, ok := state.conns[uid]
	return conn, ok
}

// Conns returns a snapshot of member connections, optionally excluding one
// user. Taken under the same lock as writes so a broadcast never iterates a
// set that is concurrently mutated.
func (t *CallTable) Conns(callID domain.CallID, exclude domain.UserID) map[domain.UserID]core.Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.calls[callID]
	if !ok {
		return nil
	}
	out := make(map[domain.UserID]core.Conn, len(state.conns))
	for uid, conn := range state.conns {
		if uid == exclude {
			continue
		}
		out[uid] = conn
	}
	return out
}
