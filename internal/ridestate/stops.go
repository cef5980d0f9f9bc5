package ridestate

import (
	"fmt"
	"strings"
	"sync"

	"github.com/example/ride-client/internal/api"
	"github.com/example/ride-client/internal/models"
)

// Stops is the ordered list of intermediate stops of a return ride.
type Stops struct {
	mu    sync.Mutex
	kind  models.RideKind
	items []string
}

func (s *Stops) reset(kind models.RideKind, items []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = kind
	s.items = append([]string(nil), items...)
}

func (s *Stops) Add(stop string) error {
	stop = strings.TrimSpace(stop)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind != models.KindReturn {
		return ErrStopsNotAllowed
	}
	if stop == "" {
		return fmt.Errorf("empty stop: %w", api.ErrInvalidInput)
	}
	s.items = append(s.items, stop)
	return nil
}

func (s *Stops) Remove(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.items) {
		return fmt.Errorf("stop %d out of range: %w", i, api.ErrInvalidInput)
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

// List returns a copy of the stops; never nil.
func (s *Stops) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}
