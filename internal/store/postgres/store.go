package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"qms/turn-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) View(ctx context.Context, fn func(store.Queries) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&queries{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Update(ctx context.Context, fn func(store.Queries) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&queries{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return translateError(err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type queries struct {
	tx pgx.Tx
}

var uniqueViolations = map[string]error{
	"customers_national_id_key": store.ErrDuplicateNationalID,
	"staff_email_key":           store.ErrDuplicateEmail,
	"modules_name_key":          store.ErrDuplicateModuleName,
	"modules_agent_key":         store.ErrStaffHoldsModule,
	"turns_active_customer_key": store.ErrActiveTurnExists,
	"turns_serving_module_key":  store.ErrModuleBusy,
	"turns_ticket_key":          store.ErrConflict,
}

var foreignKeyViolations = map[string]error{
	"modules_agent_id_fkey":   store.ErrStaffNotFound,
	"turns_customer_id_fkey":  store.ErrCustomerNotFound,
	"turns_module_id_fkey":    store.ErrModuleNotFound,
	"turns_completed_by_fkey": store.ErrStaffNotFound,
}

// translateError maps constraint violations onto store sentinels so the
// database-level guards report the same errors as the explicit checks.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		if mapped, ok := uniqueViolations[pgErr.ConstraintName]; ok {
			return mapped
		}
		return store.ErrConflict
	case "23503":
		if mapped, ok := foreignKeyViolations[pgErr.ConstraintName]; ok {
			return mapped
		}
		return store.ErrNotFound
	}
	return err
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return translateError(err)
}

func isUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}
