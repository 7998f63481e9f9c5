package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/conduit-app/relay/internal/core"
	"github.com/conduit-app/relay/internal/domain"
)

// Registry maps a user to its single live chat connection.
// Mutated concurrently by every session handler's lifecycle.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.UserID]core.Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.UserID]core.Conn)}
}

// Register installs conn as the sole entry for uid. A prior connection for the
// same user is evicted and closed; its late Unregister becomes a no-op.
func (r *Registry) Register(uid domain.UserID, conn core.Conn) {
	r.mu.Lock()
	prev := r.conns[uid]
	r.conns[uid] = conn
	r.mu.Unlock()

	if prev != nil && prev != conn {
		prev.Close()
		log.Info().Str("module", "app.registry").Str("user", string(uid)).Msg("evicted prior connection")
	}
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Msg("registered connection")
}

// Unregister removes the entry only if conn is still the current owner.
// A stale handle here means a lifecycle bug upstream; ignore but log it.
func (r *Registry) Unregister(uid domain.UserID, conn core.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[uid]
	if !ok {
		return
	}
	if cur != conn {
		log.Warn().Str("module", "app.registry").Str("user", string(uid)).Msg("unregister from stale handle ignored")
		return
	}
	delete(r.conns, uid)
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Msg("unregistered connection")
}

// Send attempts delivery to uid's live connection. A missing or broken
// connection is "recipient offline", reported as false, never an error.
func (r *Registry) Send(uid domain.UserID, f core.Frame) bool {
	r.mu.RLock()
	conn, ok := r.conns[uid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if err := conn.TrySend(f); err != nil {
		log.Debug().Str("module", "app.registry").Str("user", string(uid)).Err(err).Msg("send failed")
		return false
	}
	return true
}

// Broadcast delivers to every registered connection except exclude.
// Not on the chat hot path; used for global announcements.
func (r *Registry) Broadcast(f core.Frame, exclude domain.UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sent := 0
	for uid, conn := range r.conns {
		if uid == exclude {
			continue
		}
		if err := conn.TrySend(f); err == nil {
			sent++
		}
	}
	return sent
}

// Online reports whether uid currently holds a registered connection.
func (r *Registry) Online(uid domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[uid]
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
