// Package memory is a single-process Store used by tests and by the
// development mode of the service. Update holds an exclusive lock and works on
// a copy of the state that is swapped in only when the unit of work succeeds.
package memory

import (
	"context"
	"sync"
	"time"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"
)

type Store struct {
	mu    sync.RWMutex
	state *state
	now   func() time.Time
}

type state struct {
	customers map[string]models.Customer
	staff     map[string]models.Staff
	modules   map[string]models.Module
	turns     map[string]models.Turn
	counters  map[string]int
}

func New() *Store {
	return &Store{
		state: &state{
			customers: make(map[string]models.Customer),
			staff:     make(map[string]models.Staff),
			modules:   make(map[string]models.Module),
			turns:     make(map[string]models.Turn),
			counters:  make(map[string]int),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) View(ctx context.Context, fn func(store.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{state: s.state, readOnly: true, now: s.now})
}

func (s *Store) Update(ctx context.Context, fn func(store.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	if err := fn(&tx{state: next, now: s.now}); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (st *state) clone() *state {
	next := &state{
		customers: make(map[string]models.Customer, len(st.customers)),
		staff:     make(map[string]models.Staff, len(st.staff)),
		modules:   make(map[string]models.Module, len(st.modules)),
		turns:     make(map[string]models.Turn, len(st.turns)),
		counters:  make(map[string]int, len(st.counters)),
	}
	for k, v := range st.customers {
		next.customers[k] = v
	}
	for k, v := range st.staff {
		next.staff[k] = v
	}
	for k, v := range st.modules {
		next.modules[k] = v
	}
	for k, v := range st.turns {
		next.turns[k] = v
	}
	for k, v := range st.counters {
		next.counters[k] = v
	}
	return next
}
