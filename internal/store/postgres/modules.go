package postgres

import (
	"context"
	"database/sql"
	"errors"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const moduleColumns = `module_id, name, description, active, agent_id, created_at, updated_at`

func scanModule(row pgx.Row) (models.Module, error) {
	var module models.Module
	var agentID sql.NullString
	if err := row.Scan(&module.ModuleID, &module.Name, &module.Description, &module.Active, &agentID, &module.CreatedAt, &module.UpdatedAt); err != nil {
		return models.Module{}, err
	}
	module.AgentID = nullStringPtr(agentID)
	return module, nil
}

func (q *queries) GetModule(ctx context.Context, moduleID string) (models.Module, error) {
	if !isUUID(moduleID) {
		return models.Module{}, store.ErrModuleNotFound
	}
	module, err := scanModule(q.tx.QueryRow(ctx, `
		SELECT `+moduleColumns+` FROM modules WHERE module_id = $1
	`, moduleID))
	if err != nil {
		return models.Module{}, notFound(err, store.ErrModuleNotFound)
	}
	return module, nil
}

func (q *queries) LockModule(ctx context.Context, moduleID string) (models.Module, error) {
	if !isUUID(moduleID) {
		return models.Module{}, store.ErrModuleNotFound
	}
	module, err := scanModule(q.tx.QueryRow(ctx, `
		SELECT `+moduleColumns+` FROM modules WHERE module_id = $1 FOR UPDATE
	`, moduleID))
	if err != nil {
		return models.Module{}, notFound(err, store.ErrModuleNotFound)
	}
	return module, nil
}

func (q *queries) ListModules(ctx context.Context) ([]models.Module, error) {
	rows, err := q.tx.Query(ctx, `
		SELECT `+moduleColumns+` FROM modules ORDER BY name ASC, module_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []models.Module
	for rows.Next() {
		module, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		modules = append(modules, module)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return modules, nil
}

func (q *queries) ModuleByAgent(ctx context.Context, staffID string) (models.Module, bool, error) {
	if !isUUID(staffID) {
		return models.Module{}, false, nil
	}
	module, err := scanModule(q.tx.QueryRow(ctx, `
		SELECT `+moduleColumns+` FROM modules WHERE agent_id = $1
	`, staffID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Module{}, false, nil
		}
		return models.Module{}, false, err
	}
	return module, true, nil
}

func (q *queries) InsertModule(ctx context.Context, module models.Module) (models.Module, error) {
	if module.ModuleID == "" {
		module.ModuleID = uuid.NewString()
	}
	inserted, err := scanModule(q.tx.QueryRow(ctx, `
		INSERT INTO modules (module_id, name, description, active, agent_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+moduleColumns, module.ModuleID, module.Name, module.Description, module.Active, module.AgentID))
	if err != nil {
		return models.Module{}, translateError(err)
	}
	return inserted, nil
}

func (q *queries) UpdateModule(ctx context.Context, module models.Module) (models.Module, error) {
	if !isUUID(module.ModuleID) {
		return models.Module{}, store.ErrModuleNotFound
	}
	if module.AgentID != nil && !isUUID(*module.AgentID) {
		return models.Module{}, store.ErrStaffNotFound
	}
	updated, err := scanModule(q.tx.QueryRow(ctx, `
		UPDATE modules SET name = $2, description = $3, active = $4, agent_id = $5, updated_at = now()
		WHERE module_id = $1
		RETURNING `+moduleColumns, module.ModuleID, module.Name, module.Description, module.Active, module.AgentID))
	if err != nil {
		return models.Module{}, notFound(err, store.ErrModuleNotFound)
	}
	return updated, nil
}

func (q *queries) DeleteModule(ctx context.Context, moduleID string) error {
	if !isUUID(moduleID) {
		return store.ErrModuleNotFound
	}
	tag, err := q.tx.Exec(ctx, `DELETE FROM modules WHERE module_id = $1`, moduleID)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrModuleNotFound
	}
	return nil
}
