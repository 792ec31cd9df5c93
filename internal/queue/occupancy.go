package queue

import (
	"context"
	"errors"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"
)

// TakeModule stations staffID at moduleID. Taking the module one already
// holds is a no-op; a module held by someone else, or a staff member already
// holding another module, is a conflict.
func (s *Service) TakeModule(ctx context.Context, moduleID, staffID string) (result models.ModuleStatus, err error) {
	ctx, span := tracer.Start(ctx, "queue.TakeModule", withModule(moduleID))
	defer func() { endSpan(span, err) }()

	err = s.store.Update(ctx, func(q store.Queries) error {
		staff, err := q.GetStaff(ctx, staffID)
		if err != nil {
			return err
		}
		module, err := q.LockModule(ctx, moduleID)
		if err != nil {
			return err
		}
		if !module.HeldBy(staff.StaffID) {
			if !module.Active {
				return store.ErrModuleInactive
			}
			if module.AgentID != nil {
				return store.ErrModuleTaken
			}
			if _, holds, err := q.ModuleByAgent(ctx, staff.StaffID); err != nil {
				return err
			} else if holds {
				return store.ErrStaffHoldsModule
			}
			module.AgentID = &staff.StaffID
			if module, err = q.UpdateModule(ctx, module); err != nil {
				return err
			}
		}
		result, err = moduleStatus(ctx, q, module)
		return err
	})
	if err != nil {
		return models.ModuleStatus{}, err
	}
	return result, nil
}

// LeaveModule clears the module's agent. With a non-empty staffID the caller
// must be the current holder; an empty staffID clears it unconditionally.
func (s *Service) LeaveModule(ctx context.Context, moduleID, staffID string) (result models.ModuleStatus, err error) {
	ctx, span := tracer.Start(ctx, "queue.LeaveModule", withModule(moduleID))
	defer func() { endSpan(span, err) }()

	err = s.store.Update(ctx, func(q store.Queries) error {
		module, err := q.LockModule(ctx, moduleID)
		if err != nil {
			return err
		}
		if staffID != "" && !module.HeldBy(staffID) {
			return store.ErrModuleNotHeld
		}
		if module.AgentID != nil {
			module.AgentID = nil
			if module, err = q.UpdateModule(ctx, module); err != nil {
				return err
			}
		}
		result, err = moduleStatus(ctx, q, module)
		return err
	})
	if err != nil {
		return models.ModuleStatus{}, err
	}
	return result, nil
}

// IsBusy reports whether a turn is currently being served at moduleID.
func (s *Service) IsBusy(ctx context.Context, moduleID string) (bool, error) {
	var busy bool
	err := s.store.View(ctx, func(q store.Queries) error {
		if _, err := q.GetModule(ctx, moduleID); err != nil {
			return err
		}
		var err error
		_, busy, err = q.ServingTurnForModule(ctx, moduleID)
		return err
	})
	return busy, err
}

func (s *Service) ModuleStatus(ctx context.Context, moduleID string) (models.ModuleStatus, error) {
	var result models.ModuleStatus
	err := s.store.View(ctx, func(q store.Queries) error {
		module, err := q.GetModule(ctx, moduleID)
		if err != nil {
			return err
		}
		result, err = moduleStatus(ctx, q, module)
		return err
	})
	return result, err
}

// ModuleForStaff returns the module staffID currently holds, if any.
func (s *Service) ModuleForStaff(ctx context.Context, staffID string) (models.ModuleStatus, bool, error) {
	var result models.ModuleStatus
	var found bool
	err := s.store.View(ctx, func(q store.Queries) error {
		module, holds, err := q.ModuleByAgent(ctx, staffID)
		if err != nil || !holds {
			return err
		}
		found = true
		result, err = moduleStatus(ctx, q, module)
		return err
	})
	return result, found, err
}

func (s *Service) ModuleStatuses(ctx context.Context) ([]models.ModuleStatus, error) {
	var result []models.ModuleStatus
	err := s.store.View(ctx, func(q store.Queries) error {
		var err error
		result, err = moduleStatuses(ctx, q)
		return err
	})
	return result, err
}

func moduleStatus(ctx context.Context, q store.Queries, module models.Module) (models.ModuleStatus, error) {
	status := models.ModuleStatus{Module: module}
	serving, busy, err := q.ServingTurnForModule(ctx, module.ModuleID)
	if err != nil {
		return models.ModuleStatus{}, err
	}
	if busy {
		status.Busy = true
		status.ServingTurn = &serving
	}
	if module.AgentID != nil {
		agent, err := q.GetStaff(ctx, *module.AgentID)
		switch {
		case err == nil:
			status.Agent = &agent
		case !errors.Is(err, store.ErrNotFound):
			return models.ModuleStatus{}, err
		}
	}
	return status, nil
}

func moduleStatuses(ctx context.Context, q store.Queries) ([]models.ModuleStatus, error) {
	modules, err := q.ListModules(ctx)
	if err != nil {
		return nil, err
	}
	serving, err := q.ListTurns(ctx, store.TurnFilter{Statuses: []string{models.StatusBeingServed}})
	if err != nil {
		return nil, err
	}
	staff, err := q.ListStaff(ctx)
	if err != nil {
		return nil, err
	}

	servingByModule := make(map[string]models.Turn, len(serving))
	for _, turn := range serving {
		if turn.ModuleID != nil {
			servingByModule[*turn.ModuleID] = turn
		}
	}
	staffByID := make(map[string]models.Staff, len(staff))
	for _, member := range staff {
		staffByID[member.StaffID] = member
	}

	statuses := make([]models.ModuleStatus, 0, len(modules))
	for _, module := range modules {
		status := models.ModuleStatus{Module: module}
		if turn, ok := servingByModule[module.ModuleID]; ok {
			turn := turn
			status.Busy = true
			status.ServingTurn = &turn
		}
		if module.AgentID != nil {
			if agent, ok := staffByID[*module.AgentID]; ok {
				agent := agent
				status.Agent = &agent
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
