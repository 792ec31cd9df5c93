package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const turnColumns = `turn_id, customer_id, customer_name, national_id, module_id, ticket_code, ticket_number,
	status, service_date::text, created_at, called_at, completed_at, cancelled_at, completed_by`

const turnOrder = ` ORDER BY created_at ASC, service_date ASC, ticket_number ASC`

func scanTurn(row pgx.Row) (models.Turn, error) {
	var turn models.Turn
	var moduleID sql.NullString
	var completedBy sql.NullString
	var calledAt sql.NullTime
	var completedAt sql.NullTime
	var cancelledAt sql.NullTime
	if err := row.Scan(&turn.TurnID, &turn.CustomerID, &turn.CustomerName, &turn.NationalID, &moduleID, &turn.TicketCode, &turn.TicketNumber,
		&turn.Status, &turn.ServiceDate, &turn.CreatedAt, &calledAt, &completedAt, &cancelledAt, &completedBy); err != nil {
		return models.Turn{}, err
	}
	turn.CreatedAt = turn.CreatedAt.UTC()
	turn.ModuleID = nullStringPtr(moduleID)
	turn.CompletedBy = nullStringPtr(completedBy)
	turn.CalledAt = nullTimePtr(calledAt)
	turn.CompletedAt = nullTimePtr(completedAt)
	turn.CancelledAt = nullTimePtr(cancelledAt)
	return turn, nil
}

func collectTurns(rows pgx.Rows) ([]models.Turn, error) {
	defer rows.Close()
	var turns []models.Turn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return turns, nil
}

func (q *queries) GetTurn(ctx context.Context, turnID string) (models.Turn, error) {
	if !isUUID(turnID) {
		return models.Turn{}, store.ErrTurnNotFound
	}
	turn, err := scanTurn(q.tx.QueryRow(ctx, `
		SELECT `+turnColumns+` FROM turns WHERE turn_id = $1
	`, turnID))
	if err != nil {
		return models.Turn{}, notFound(err, store.ErrTurnNotFound)
	}
	return turn, nil
}

func (q *queries) LockTurn(ctx context.Context, turnID string) (models.Turn, error) {
	if !isUUID(turnID) {
		return models.Turn{}, store.ErrTurnNotFound
	}
	turn, err := scanTurn(q.tx.QueryRow(ctx, `
		SELECT `+turnColumns+` FROM turns WHERE turn_id = $1 FOR UPDATE
	`, turnID))
	if err != nil {
		return models.Turn{}, notFound(err, store.ErrTurnNotFound)
	}
	return turn, nil
}

func (q *queries) ListTurns(ctx context.Context, filter store.TurnFilter) ([]models.Turn, error) {
	var conditions []string
	var args []interface{}
	if len(filter.Statuses) > 0 {
		args = append(args, filter.Statuses)
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.ServiceDate != "" {
		args = append(args, filter.ServiceDate)
		conditions = append(conditions, fmt.Sprintf("service_date = $%d::date", len(args)))
	}
	if filter.ModuleID != "" {
		if !isUUID(filter.ModuleID) {
			return nil, nil
		}
		args = append(args, filter.ModuleID)
		conditions = append(conditions, fmt.Sprintf("module_id = $%d", len(args)))
	}
	if filter.CustomerID != "" {
		if !isUUID(filter.CustomerID) {
			return nil, nil
		}
		args = append(args, filter.CustomerID)
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)))
	}

	query := `SELECT ` + turnColumns + ` FROM turns`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += turnOrder
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := q.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectTurns(rows)
}

// LockOldestWaitingTurn claims the head of the queue. Rows locked by a
// concurrent call-next are skipped so two agents never receive the same turn.
func (q *queries) LockOldestWaitingTurn(ctx context.Context, serviceDate string) (models.Turn, bool, error) {
	turn, err := scanTurn(q.tx.QueryRow(ctx, `
		SELECT `+turnColumns+` FROM turns
		WHERE status = 'waiting' AND service_date = $1::date`+turnOrder+`
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, serviceDate))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Turn{}, false, nil
		}
		return models.Turn{}, false, err
	}
	return turn, true, nil
}

func (q *queries) ExpireWaitingTurns(ctx context.Context, before string, at time.Time) (int, error) {
	tag, err := q.tx.Exec(ctx, `
		UPDATE turns SET status = 'cancelled', cancelled_at = $2
		WHERE status = 'waiting' AND service_date < $1::date
	`, before, at)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (q *queries) ActiveTurnForCustomer(ctx context.Context, customerID string) (models.Turn, bool, error) {
	if !isUUID(customerID) {
		return models.Turn{}, false, nil
	}
	return q.findTurn(ctx, `
		SELECT `+turnColumns+` FROM turns
		WHERE customer_id = $1 AND status IN ('waiting', 'being_served')
		LIMIT 1
	`, customerID)
}

func (q *queries) ServingTurnForModule(ctx context.Context, moduleID string) (models.Turn, bool, error) {
	if !isUUID(moduleID) {
		return models.Turn{}, false, nil
	}
	return q.findTurn(ctx, `
		SELECT `+turnColumns+` FROM turns
		WHERE module_id = $1 AND status = 'being_served'
		LIMIT 1
	`, moduleID)
}

func (q *queries) findTurn(ctx context.Context, query string, args ...interface{}) (models.Turn, bool, error) {
	turn, err := scanTurn(q.tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Turn{}, false, nil
		}
		return models.Turn{}, false, err
	}
	return turn, true, nil
}

func (q *queries) CountTurnsByStatus(ctx context.Context, serviceDate string) (map[string]int, error) {
	rows, err := q.tx.Query(ctx, `
		SELECT status, COUNT(*) FROM turns
		WHERE service_date = $1::date
		GROUP BY status
	`, serviceDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (q *queries) InsertTurn(ctx context.Context, turn models.Turn) (models.Turn, error) {
	if turn.TurnID == "" {
		turn.TurnID = uuid.NewString()
	}
	if !isUUID(turn.CustomerID) {
		return models.Turn{}, store.ErrCustomerNotFound
	}
	inserted, err := scanTurn(q.tx.QueryRow(ctx, `
		INSERT INTO turns (
			turn_id, customer_id, customer_name, national_id, module_id, ticket_code, ticket_number,
			status, service_date, created_at, called_at, completed_at, cancelled_at, completed_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::date,COALESCE($10, now()),$11,$12,$13,$14)
		RETURNING `+turnColumns,
		turn.TurnID, turn.CustomerID, turn.CustomerName, turn.NationalID, turn.ModuleID, turn.TicketCode, turn.TicketNumber,
		turn.Status, turn.ServiceDate, nullIfZero(turn), turn.CalledAt, turn.CompletedAt, turn.CancelledAt, turn.CompletedBy))
	if err != nil {
		return models.Turn{}, translateError(err)
	}
	return inserted, nil
}

func (q *queries) UpdateTurn(ctx context.Context, turn models.Turn) (models.Turn, error) {
	if !isUUID(turn.TurnID) {
		return models.Turn{}, store.ErrTurnNotFound
	}
	updated, err := scanTurn(q.tx.QueryRow(ctx, `
		UPDATE turns SET
			module_id = $2, status = $3, called_at = $4, completed_at = $5, cancelled_at = $6, completed_by = $7
		WHERE turn_id = $1
		RETURNING `+turnColumns,
		turn.TurnID, turn.ModuleID, turn.Status, turn.CalledAt, turn.CompletedAt, turn.CancelledAt, turn.CompletedBy))
	if err != nil {
		return models.Turn{}, notFound(err, store.ErrTurnNotFound)
	}
	return updated, nil
}

// NextTicketNumber increments the day's counter, creating it at 1 on first use.
// The row lock taken by the upsert serializes concurrent issuers until commit.
func (q *queries) NextTicketNumber(ctx context.Context, serviceDate string) (int, error) {
	var next int
	row := q.tx.QueryRow(ctx, `
		INSERT INTO daily_counters (service_date, current_number)
		VALUES ($1::date, 1)
		ON CONFLICT (service_date)
		DO UPDATE SET current_number = daily_counters.current_number + 1
		RETURNING current_number
	`, serviceDate)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func nullIfZero(turn models.Turn) interface{} {
	if turn.CreatedAt.IsZero() {
		return nil
	}
	return turn.CreatedAt
}
