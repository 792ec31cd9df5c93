package postgres

import (
	"context"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const staffColumns = `staff_id, name, email, password_hash, role, created_at, updated_at`

func scanStaff(row pgx.Row) (models.Staff, error) {
	var staff models.Staff
	if err := row.Scan(&staff.StaffID, &staff.Name, &staff.Email, &staff.PasswordHash, &staff.Role, &staff.CreatedAt, &staff.UpdatedAt); err != nil {
		return models.Staff{}, err
	}
	return staff, nil
}

func (q *queries) GetStaff(ctx context.Context, staffID string) (models.Staff, error) {
	if !isUUID(staffID) {
		return models.Staff{}, store.ErrStaffNotFound
	}
	staff, err := scanStaff(q.tx.QueryRow(ctx, `
		SELECT `+staffColumns+` FROM staff WHERE staff_id = $1
	`, staffID))
	if err != nil {
		return models.Staff{}, notFound(err, store.ErrStaffNotFound)
	}
	return staff, nil
}

func (q *queries) GetStaffByEmail(ctx context.Context, email string) (models.Staff, error) {
	staff, err := scanStaff(q.tx.QueryRow(ctx, `
		SELECT `+staffColumns+` FROM staff WHERE lower(email) = lower($1)
	`, email))
	if err != nil {
		return models.Staff{}, notFound(err, store.ErrStaffNotFound)
	}
	return staff, nil
}

func (q *queries) ListStaff(ctx context.Context) ([]models.Staff, error) {
	rows, err := q.tx.Query(ctx, `
		SELECT `+staffColumns+` FROM staff ORDER BY name ASC, staff_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Staff
	for rows.Next() {
		staff, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, staff)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (q *queries) CountStaff(ctx context.Context) (int, error) {
	var count int
	if err := q.tx.QueryRow(ctx, `SELECT COUNT(*) FROM staff`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (q *queries) InsertStaff(ctx context.Context, staff models.Staff) (models.Staff, error) {
	if staff.StaffID == "" {
		staff.StaffID = uuid.NewString()
	}
	inserted, err := scanStaff(q.tx.QueryRow(ctx, `
		INSERT INTO staff (staff_id, name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+staffColumns, staff.StaffID, staff.Name, staff.Email, staff.PasswordHash, staff.Role))
	if err != nil {
		return models.Staff{}, translateError(err)
	}
	return inserted, nil
}

func (q *queries) UpdateStaff(ctx context.Context, staff models.Staff) (models.Staff, error) {
	if !isUUID(staff.StaffID) {
		return models.Staff{}, store.ErrStaffNotFound
	}
	updated, err := scanStaff(q.tx.QueryRow(ctx, `
		UPDATE staff SET name = $2, email = $3, password_hash = $4, role = $5, updated_at = now()
		WHERE staff_id = $1
		RETURNING `+staffColumns, staff.StaffID, staff.Name, staff.Email, staff.PasswordHash, staff.Role))
	if err != nil {
		return models.Staff{}, notFound(err, store.ErrStaffNotFound)
	}
	return updated, nil
}

func (q *queries) DeleteStaff(ctx context.Context, staffID string) error {
	if !isUUID(staffID) {
		return store.ErrStaffNotFound
	}
	tag, err := q.tx.Exec(ctx, `DELETE FROM staff WHERE staff_id = $1`, staffID)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrStaffNotFound
	}
	return nil
}
