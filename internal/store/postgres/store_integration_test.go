package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/queue"
	"qms/turn-service/internal/registry"
	"qms/turn-service/internal/store"
	"qms/turn-service/migrations"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestAssignToModuleConcurrency(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	svc := queue.NewService(st, queue.Options{})
	reg := registry.NewService(st)

	moduleIDs := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		module := createModule(t, ctx, reg, fmt.Sprintf("Desk %d", i+1))
		agent := createStaff(t, ctx, reg, models.RoleAgent)
		if _, err := svc.TakeModule(ctx, module.ModuleID, agent.StaffID); err != nil {
			t.Fatalf("take module: %v", err)
		}
		moduleIDs = append(moduleIDs, module.ModuleID)
	}
	for i := 0; i < 2; i++ {
		nationalID := fmt.Sprintf("NID-%d", i)
		createCustomer(t, ctx, reg, nationalID)
		if _, err := svc.CreateTurn(ctx, nationalID); err != nil {
			t.Fatalf("create turn: %v", err)
		}
	}

	type result struct {
		turnID string
		err    error
	}
	results := make(chan result, len(moduleIDs))
	var wg sync.WaitGroup
	for _, moduleID := range moduleIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			turn, err := svc.AssignToModule(ctx, id)
			results <- result{turnID: turn.TurnID, err: err}
		}(moduleID)
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	empty := 0
	for res := range results {
		if errors.Is(res.err, store.ErrQueueEmpty) {
			empty++
			continue
		}
		if res.err != nil {
			t.Fatalf("assign: %v", res.err)
		}
		if seen[res.turnID] {
			t.Fatalf("turn %s assigned twice", res.turnID)
		}
		seen[res.turnID] = true
	}
	if len(seen) != 2 || empty != 1 {
		t.Fatalf("expected 2 assignments and 1 empty queue, got %d and %d", len(seen), empty)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.BeingServed != 2 || stats.Waiting != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestCreateTurnConcurrency(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	svc := queue.NewService(st, queue.Options{})
	reg := registry.NewService(st)

	const customers = 8
	for i := 0; i < customers; i++ {
		createCustomer(t, ctx, reg, fmt.Sprintf("NID-%d", i))
	}

	codes := make(chan string, customers)
	errs := make(chan error, customers)
	var wg sync.WaitGroup
	for i := 0; i < customers; i++ {
		wg.Add(1)
		go func(nationalID string) {
			defer wg.Done()
			turn, err := svc.CreateTurn(ctx, nationalID)
			if err != nil {
				errs <- err
				return
			}
			codes <- turn.TicketCode
		}(fmt.Sprintf("NID-%d", i))
	}
	wg.Wait()
	close(codes)
	close(errs)

	for err := range errs {
		t.Fatalf("create turn: %v", err)
	}
	seen := map[string]bool{}
	for code := range codes {
		if seen[code] {
			t.Fatalf("duplicate ticket code %s", code)
		}
		seen[code] = true
	}
	for i := 1; i <= customers; i++ {
		code := queue.FormatTicket("A", 3, i)
		if !seen[code] {
			t.Fatalf("missing ticket %s, got %v", code, seen)
		}
	}
}

func TestOneActiveTurnPerCustomer(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	svc := queue.NewService(st, queue.Options{})
	reg := registry.NewService(st)
	createCustomer(t, ctx, reg, "NID-1")

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateTurn(ctx, "NID-1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, store.ErrActiveTurnExists):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one turn, got %d", created)
	}
}

func TestCascadeAndConstraintTranslation(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	svc := queue.NewService(st, queue.Options{})
	reg := registry.NewService(st)
	customer := createCustomer(t, ctx, reg, "NID-1")
	module := createModule(t, ctx, reg, "Desk 1")
	agent := createStaff(t, ctx, reg, models.RoleAgent)

	if _, err := reg.RegisterCustomer(ctx, registry.CustomerInput{Name: "Dup", NationalID: "NID-1"}); !errors.Is(err, store.ErrDuplicateNationalID) {
		t.Fatalf("expected duplicate national id, got %v", err)
	}
	if _, err := reg.CreateModule(ctx, registry.ModuleInput{Name: "desk 1"}); !errors.Is(err, store.ErrDuplicateModuleName) {
		t.Fatalf("expected duplicate module name, got %v", err)
	}

	if _, err := svc.TakeModule(ctx, module.ModuleID, agent.StaffID); err != nil {
		t.Fatalf("take module: %v", err)
	}
	turn, err := svc.CreateTurn(ctx, "NID-1")
	if err != nil {
		t.Fatalf("create turn: %v", err)
	}
	if _, err := svc.AssignToModule(ctx, module.ModuleID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := svc.CompleteTurn(ctx, turn.TurnID, agent.StaffID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := reg.DeleteCustomer(ctx, customer.CustomerID); err != nil {
		t.Fatalf("delete customer: %v", err)
	}
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM turns`).Scan(&count); err != nil {
		t.Fatalf("count turns: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected turns to cascade, got %d", count)
	}
	if _, err := svc.GetTurn(ctx, turn.TurnID); !errors.Is(err, store.ErrTurnNotFound) {
		t.Fatalf("expected turn not found, got %v", err)
	}
	if _, err := svc.GetTurn(ctx, "not-a-uuid"); !errors.Is(err, store.ErrTurnNotFound) {
		t.Fatalf("expected turn not found for malformed id, got %v", err)
	}
}

func TestExpireWaitingTurnsFromEarlierDays(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	reg := registry.NewService(st)
	customer := createCustomer(t, ctx, reg, "NID-1")
	at := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	err := st.Update(ctx, func(q store.Queries) error {
		_, err := q.InsertTurn(ctx, models.Turn{
			CustomerID:   customer.CustomerID,
			CustomerName: customer.Name,
			NationalID:   customer.NationalID,
			TicketCode:   "A001",
			TicketNumber: 1,
			Status:       models.StatusWaiting,
			ServiceDate:  "2026-03-02",
			CreatedAt:    at.Add(-24 * time.Hour),
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert turn: %v", err)
	}

	err = st.Update(ctx, func(q store.Queries) error {
		if _, found, err := q.LockOldestWaitingTurn(ctx, "2026-03-03"); err != nil || found {
			return fmt.Errorf("expected no waiting turn today, found=%v err=%v", found, err)
		}
		expired, err := q.ExpireWaitingTurns(ctx, "2026-03-03", at)
		if err != nil {
			return err
		}
		if expired != 1 {
			return fmt.Errorf("expected 1 expired turn, got %d", expired)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expire: %v", err)
	}

	svc := queue.NewService(st, queue.Options{Now: func() time.Time { return at }})
	turn, err := svc.CreateTurn(ctx, "NID-1")
	if err != nil {
		t.Fatalf("create turn on the next day: %v", err)
	}
	if turn.TicketCode != "A001" || turn.ServiceDate != "2026-03-03" {
		t.Fatalf("unexpected turn %s on %s", turn.TicketCode, turn.ServiceDate)
	}
	stats, err := svc.StatsFor(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Cancelled != 1 || stats.Waiting != 0 || stats.NextTicket != nil {
		t.Fatalf("unexpected stats for the closed day: %+v", stats)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	_, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	applied, err := Migrate(ctx, pool, migrations.Files)
	if err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected no new migrations, got %d", applied)
	}
}

func createCustomer(t *testing.T, ctx context.Context, reg *registry.Service, nationalID string) models.Customer {
	t.Helper()
	customer, err := reg.RegisterCustomer(ctx, registry.CustomerInput{Name: "Customer " + nationalID, NationalID: nationalID})
	if err != nil {
		t.Fatalf("register customer: %v", err)
	}
	return customer
}

func createModule(t *testing.T, ctx context.Context, reg *registry.Service, name string) models.Module {
	t.Helper()
	module, err := reg.CreateModule(ctx, registry.ModuleInput{Name: name})
	if err != nil {
		t.Fatalf("create module: %v", err)
	}
	return module
}

func createStaff(t *testing.T, ctx context.Context, reg *registry.Service, role string) models.Staff {
	t.Helper()
	staff, err := reg.CreateStaff(ctx, registry.StaffInput{
		Name:     "Staff",
		Email:    uuid.NewString() + "@example.com",
		Password: "password123",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}
	return staff
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if _, err := Migrate(ctx, pool, migrations.Files); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return NewStore(pool), pool, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}
