package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"
	"qms/turn-service/internal/store/memory"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	svc   *Service
	store *memory.Store
	clock *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), step: time.Second}
	st := memory.New()
	svc := NewService(st, Options{Now: clock.Now})
	return &fixture{svc: svc, store: st, clock: clock}
}

func (f *fixture) addCustomer(t *testing.T, name, nationalID string) models.Customer {
	t.Helper()
	var customer models.Customer
	err := f.store.Update(context.Background(), func(q store.Queries) error {
		var err error
		customer, err = q.InsertCustomer(context.Background(), models.Customer{Name: name, NationalID: nationalID})
		return err
	})
	require.NoError(t, err)
	return customer
}

func (f *fixture) addStaff(t *testing.T, name, role string) models.Staff {
	t.Helper()
	var staff models.Staff
	err := f.store.Update(context.Background(), func(q store.Queries) error {
		var err error
		staff, err = q.InsertStaff(context.Background(), models.Staff{Name: name, Email: name + "@office.test", Role: role})
		return err
	})
	require.NoError(t, err)
	return staff
}

func (f *fixture) addModule(t *testing.T, name string, active bool) models.Module {
	t.Helper()
	var module models.Module
	err := f.store.Update(context.Background(), func(q store.Queries) error {
		var err error
		module, err = q.InsertModule(context.Background(), models.Module{Name: name, Active: active})
		return err
	})
	require.NoError(t, err)
	return module
}

// staffedModule creates an active module with an agent stationed at it.
func (f *fixture) staffedModule(t *testing.T, name string) (models.Module, models.Staff) {
	t.Helper()
	module := f.addModule(t, name, true)
	agent := f.addStaff(t, "agent-"+name, models.RoleAgent)
	status, err := f.svc.TakeModule(context.Background(), module.ModuleID, agent.StaffID)
	require.NoError(t, err)
	return status.Module, agent
}
