package storage

import (
	"context"
	"sync"

	"github.com/example/ride-client/internal/models"
)

// Journal records effective ride status transitions.
type Journal interface {
	Record(ctx context.Context, t models.Transition) error
}

type MemoryJournal struct {
	mu          sync.RWMutex
	transitions []models.Transition
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (m *MemoryJournal) Record(ctx context.Context, t models.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, t)
	return nil
}

func (m *MemoryJournal) Transitions() []models.Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Transition, len(m.transitions))
	copy(out, m.transitions)
	return out
}

// MultiJournal records to every journal and returns the first error.
type MultiJournal []Journal

func (mj MultiJournal) Record(ctx context.Context, t models.Transition) error {
	var first error
	for _, j := range mj {
		if j == nil {
			continue
		}
		if err := j.Record(ctx, t); err != nil && first == nil {
			first = err
		}
	}
	return first
}
