package storage

import (
	"context"
	"sync"
)

// Slot holds the identifier of the session's current ride. It is a single
// slot mailbox: a lookup key re-fetched by every view, never a cache of
// ride content. An empty string means no ride is held.
type Slot interface {
	Load(ctx context.Context) (string, error)
	Store(ctx context.Context, rideID string) error
	Clear(ctx context.Context) error
}

type MemorySlot struct {
	mu     sync.RWMutex
	rideID string
}

func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

func (m *MemorySlot) Load(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rideID, nil
}

func (m *MemorySlot) Store(ctx context.Context, rideID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rideID = rideID
	return nil
}

func (m *MemorySlot) Clear(ctx context.Context) error {
	return m.Store(ctx, "")
}

var (
	_ Slot = (*MemorySlot)(nil)
	_ Slot = (*FileSlot)(nil)
	_ Slot = (*RedisSlot)(nil)
)
