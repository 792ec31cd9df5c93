package registry

import (
	"context"
	"strings"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"
)

type ModuleInput struct {
	Name        string
	Description string
	Active      *bool
}

func (s *Service) CreateModule(ctx context.Context, input ModuleInput) (models.Module, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return models.Module{}, invalid("name is required")
	}
	active := true
	if input.Active != nil {
		active = *input.Active
	}
	var created models.Module
	err := s.store.Update(ctx, func(q store.Queries) error {
		var err error
		created, err = q.InsertModule(ctx, models.Module{
			Name:        name,
			Description: strings.TrimSpace(input.Description),
			Active:      active,
		})
		return err
	})
	return created, err
}

func (s *Service) GetModule(ctx context.Context, moduleID string) (models.Module, error) {
	var module models.Module
	err := s.store.View(ctx, func(q store.Queries) error {
		var err error
		module, err = q.GetModule(ctx, moduleID)
		return err
	})
	return module, err
}

// UpdateModule edits name, description and the active flag. The current
// agent is managed through take and leave, never here.
func (s *Service) UpdateModule(ctx context.Context, moduleID string, input ModuleInput) (models.Module, error) {
	var updated models.Module
	err := s.store.Update(ctx, func(q store.Queries) error {
		module, err := q.LockModule(ctx, moduleID)
		if err != nil {
			return err
		}
		module.Name = pick(input.Name, module.Name)
		module.Description = pick(input.Description, module.Description)
		if input.Active != nil {
			module.Active = *input.Active
		}
		updated, err = q.UpdateModule(ctx, module)
		return err
	})
	return updated, err
}

// DeleteModule refuses while the module is serving a turn. Finished turns
// keep their history with the module reference cleared.
func (s *Service) DeleteModule(ctx context.Context, moduleID string) error {
	return s.store.Update(ctx, func(q store.Queries) error {
		if _, err := q.LockModule(ctx, moduleID); err != nil {
			return err
		}
		if _, busy, err := q.ServingTurnForModule(ctx, moduleID); err != nil {
			return err
		} else if busy {
			return store.ErrModuleBusy
		}
		return q.DeleteModule(ctx, moduleID)
	})
}
