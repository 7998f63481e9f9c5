// Package store provides in-memory implementations of the external
// collaborator interfaces. They back the standalone binary and the tests; a
// deployment against the managed data platform swaps in its own clients.
package store

import (
	"context"
	"sync"

	"github.com/conduit-app/relay/internal/domain"
)

type Memory struct {
	mu           sync.RWMutex
	messages     []*domain.StoredMessage
	participants map[domain.EventID][]domain.UserID
	creators     map[domain.CallID]domain.UserID
	deviceTokens map[domain.UserID][]string
}

func NewMemory() *Memory {
	return &Memory{
		participants: make(map[domain.EventID][]domain.UserID),
		creators:     make(map[domain.CallID]domain.UserID),
		deviceTokens: make(map[domain.UserID][]string),
	}
}

func (m *Memory) SaveMessage(_ context.Context, msg *domain.StoredMessage) (*domain.StoredMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *msg
	m.messages = append(m.messages, &stored)
	return &stored, nil
}

func (m *Memory) Messages() []*domain.StoredMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.StoredMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *Memory) SetEventParticipants(eventID domain.EventID, users ...domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants[eventID] = users
}

func (m *Memory) EventParticipants(_ context.Context, eventID domain.EventID) ([]domain.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.UserID, len(m.participants[eventID]))
	copy(out, m.participants[eventID])
	return out, nil
}

func (m *Memory) SetCallCreator(callID domain.CallID, uid domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creators[callID] = uid
}

func (m *Memory) AuthorizeCallEnd(_ context.Context, callID domain.CallID, uid domain.UserID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	creator, ok := m.creators[callID]
	return ok && creator == uid, nil
}

func (m *Memory) AddDeviceToken(uid domain.UserID, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviceTokens[uid] = append(m.deviceTokens[uid], token)
}

func (m *Memory) DeviceTokens(_ context.Context, uid domain.UserID) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.deviceTokens[uid]))
	copy(out, m.deviceTokens[uid])
	return out, nil
}
