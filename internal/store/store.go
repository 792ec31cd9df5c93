package store

import (
	"context"
	"time"

	"qms/turn-service/internal/models"
)

// Store runs units of work against the persistence layer. Update executes fn in
// a single atomic transaction: if fn returns an error nothing it wrote is kept.
type Store interface {
	View(ctx context.Context, fn func(Queries) error) error
	Update(ctx context.Context, fn func(Queries) error) error
	Ping(ctx context.Context) error
}

type TurnFilter struct {
	Statuses    []string
	ServiceDate string
	ModuleID    string
	CustomerID  string
	Limit       int
}

// Queries are the primitives available inside a unit of work. Lock* methods
// take a row lock for the rest of the transaction.
type Queries interface {
	GetCustomer(ctx context.Context, customerID string) (models.Customer, error)
	GetCustomerByNationalID(ctx context.Context, nationalID string) (models.Customer, error)
	ListCustomers(ctx context.Context) ([]models.Customer, error)
	InsertCustomer(ctx context.Context, customer models.Customer) (models.Customer, error)
	UpdateCustomer(ctx context.Context, customer models.Customer) (models.Customer, error)
	DeleteCustomer(ctx context.Context, customerID string) error

	GetStaff(ctx context.Context, staffID string) (models.Staff, error)
	GetStaffByEmail(ctx context.Context, email string) (models.Staff, error)
	ListStaff(ctx context.Context) ([]models.Staff, error)
	CountStaff(ctx context.Context) (int, error)
	InsertStaff(ctx context.Context, staff models.Staff) (models.Staff, error)
	UpdateStaff(ctx context.Context, staff models.Staff) (models.Staff, error)
	DeleteStaff(ctx context.Context, staffID string) error

	GetModule(ctx context.Context, moduleID string) (models.Module, error)
	LockModule(ctx context.Context, moduleID string) (models.Module, error)
	ListModules(ctx context.Context) ([]models.Module, error)
	ModuleByAgent(ctx context.Context, staffID string) (models.Module, bool, error)
	InsertModule(ctx context.Context, module models.Module) (models.Module, error)
	UpdateModule(ctx context.Context, module models.Module) (models.Module, error)
	DeleteModule(ctx context.Context, moduleID string) error

	GetTurn(ctx context.Context, turnID string) (models.Turn, error)
	LockTurn(ctx context.Context, turnID string) (models.Turn, error)
	// ListTurns orders by created_at, then service date, then ticket number.
	ListTurns(ctx context.Context, filter TurnFilter) ([]models.Turn, error)
	// LockOldestWaitingTurn skips rows another transaction already holds.
	LockOldestWaitingTurn(ctx context.Context, serviceDate string) (models.Turn, bool, error)
	// ExpireWaitingTurns cancels waiting turns issued before the given
	// service date and reports how many it touched.
	ExpireWaitingTurns(ctx context.Context, before string, at time.Time) (int, error)
	ActiveTurnForCustomer(ctx context.Context, customerID string) (models.Turn, bool, error)
	ServingTurnForModule(ctx context.Context, moduleID string) (models.Turn, bool, error)
	CountTurnsByStatus(ctx context.Context, serviceDate string) (map[string]int, error)
	InsertTurn(ctx context.Context, turn models.Turn) (models.Turn, error)
	UpdateTurn(ctx context.Context, turn models.Turn) (models.Turn, error)

	NextTicketNumber(ctx context.Context, serviceDate string) (int, error)
}
