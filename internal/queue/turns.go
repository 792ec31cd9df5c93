package queue

import (
	"context"
	"strings"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CreateTurn issues today's next ticket to the customer with nationalID and
// queues them as waiting. The customer name and national id are copied onto
// the turn so the ticket stays readable if the customer record changes.
// Turns still waiting from an earlier service date are cancelled first.
func (s *Service) CreateTurn(ctx context.Context, nationalID string) (result models.TurnDetail, err error) {
	ctx, span := tracer.Start(ctx, "queue.CreateTurn")
	defer func() { endSpan(span, err) }()

	nationalID = strings.TrimSpace(nationalID)
	err = s.store.Update(ctx, func(q store.Queries) error {
		customer, err := q.GetCustomerByNationalID(ctx, nationalID)
		if err != nil {
			return err
		}
		now := s.clock()
		serviceDate := s.ServiceDate(now)
		if _, err := q.ExpireWaitingTurns(ctx, serviceDate, now); err != nil {
			return err
		}
		if _, found, err := q.ActiveTurnForCustomer(ctx, customer.CustomerID); err != nil {
			return err
		} else if found {
			return store.ErrActiveTurnExists
		}

		number, code, err := s.issueTicket(ctx, q, serviceDate)
		if err != nil {
			return err
		}

		turn, err := q.InsertTurn(ctx, models.Turn{
			CustomerID:   customer.CustomerID,
			CustomerName: customer.Name,
			NationalID:   customer.NationalID,
			TicketCode:   code,
			TicketNumber: number,
			Status:       models.StatusWaiting,
			ServiceDate:  serviceDate,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		result = models.TurnDetail{Turn: turn, Customer: &customer}
		return nil
	})
	if err != nil {
		return models.TurnDetail{}, err
	}
	span.SetAttributes(attribute.String("turn.id", result.TurnID), attribute.String("turn.ticket_code", result.TicketCode))
	return result, nil
}

// CancelTurn moves a waiting or serving turn to cancelled. Completed turns
// and turns already cancelled are rejected with a conflict.
func (s *Service) CancelTurn(ctx context.Context, turnID string) (result models.TurnDetail, err error) {
	ctx, span := tracer.Start(ctx, "queue.CancelTurn", withTurn(turnID))
	defer func() { endSpan(span, err) }()

	err = s.store.Update(ctx, func(q store.Queries) error {
		turn, err := q.LockTurn(ctx, turnID)
		if err != nil {
			return err
		}
		if !store.ValidTransition(store.ActionCancel, turn.Status) {
			return store.TransitionError(store.ActionCancel, turn.Status)
		}
		now := s.clock()
		turn.Status = models.StatusCancelled
		turn.CancelledAt = &now
		updated, err := q.UpdateTurn(ctx, turn)
		if err != nil {
			return err
		}
		result, err = detail(ctx, q, updated)
		return err
	})
	if err != nil {
		return models.TurnDetail{}, err
	}
	return result, nil
}

// AssignToModule calls the oldest waiting turn of the current service date to
// moduleID. It returns store.ErrQueueEmpty when nobody is waiting and
// store.ErrModuleBusy when the module is still serving someone.
func (s *Service) AssignToModule(ctx context.Context, moduleID string) (models.TurnDetail, error) {
	return s.assign(ctx, moduleID, "")
}

// CallNext is AssignToModule on behalf of agentID, who must hold the module
// when the assignment commits.
func (s *Service) CallNext(ctx context.Context, moduleID, agentID string) (models.TurnDetail, error) {
	return s.assign(ctx, moduleID, agentID)
}

func (s *Service) assign(ctx context.Context, moduleID, agentID string) (result models.TurnDetail, err error) {
	ctx, span := tracer.Start(ctx, "queue.AssignToModule", withModule(moduleID))
	defer func() { endSpan(span, err) }()

	err = s.store.Update(ctx, func(q store.Queries) error {
		module, err := q.LockModule(ctx, moduleID)
		if err != nil {
			return err
		}
		if !module.Active {
			return store.ErrModuleInactive
		}
		if agentID != "" && !module.HeldBy(agentID) {
			return store.ErrModuleNotHeld
		}
		if module.AgentID == nil {
			return store.ErrModuleUnattended
		}

		now := s.clock()
		serviceDate := s.ServiceDate(now)
		if _, err := q.ExpireWaitingTurns(ctx, serviceDate, now); err != nil {
			return err
		}
		// Read before locking so a busy module never holds the head row.
		waiting := store.TurnFilter{Statuses: []string{models.StatusWaiting}, ServiceDate: serviceDate, Limit: 1}
		if head, err := q.ListTurns(ctx, waiting); err != nil {
			return err
		} else if len(head) == 0 {
			return store.ErrQueueEmpty
		}
		if _, busy, err := q.ServingTurnForModule(ctx, module.ModuleID); err != nil {
			return err
		} else if busy {
			return store.ErrModuleBusy
		}
		turn, found, err := q.LockOldestWaitingTurn(ctx, serviceDate)
		if err != nil {
			return err
		}
		if !found {
			return store.ErrQueueEmpty
		}
		if !store.ValidTransition(store.ActionAssign, turn.Status) {
			return store.TransitionError(store.ActionAssign, turn.Status)
		}

		turn.Status = models.StatusBeingServed
		turn.ModuleID = &module.ModuleID
		turn.CalledAt = &now
		updated, err := q.UpdateTurn(ctx, turn)
		if err != nil {
			return err
		}
		result, err = detail(ctx, q, updated)
		return err
	})
	if err != nil {
		return models.TurnDetail{}, err
	}
	span.SetAttributes(attribute.String("turn.id", result.TurnID), attribute.String("turn.ticket_code", result.TicketCode))
	return result, nil
}

// CompleteTurn finishes a turn that is being served and records staffID as
// the staff member who completed it.
func (s *Service) CompleteTurn(ctx context.Context, turnID, staffID string) (result models.TurnDetail, err error) {
	ctx, span := tracer.Start(ctx, "queue.CompleteTurn", withTurn(turnID))
	defer func() { endSpan(span, err) }()

	err = s.store.Update(ctx, func(q store.Queries) error {
		turn, err := q.LockTurn(ctx, turnID)
		if err != nil {
			return err
		}
		if !store.ValidTransition(store.ActionComplete, turn.Status) {
			return store.TransitionError(store.ActionComplete, turn.Status)
		}
		staff, err := q.GetStaff(ctx, staffID)
		if err != nil {
			return err
		}

		now := s.clock()
		turn.Status = models.StatusCompleted
		turn.CompletedAt = &now
		turn.CompletedBy = &staff.StaffID
		updated, err := q.UpdateTurn(ctx, turn)
		if err != nil {
			return err
		}
		result, err = detail(ctx, q, updated)
		return err
	})
	if err != nil {
		return models.TurnDetail{}, err
	}
	return result, nil
}

func (s *Service) GetTurn(ctx context.Context, turnID string) (models.TurnDetail, error) {
	var result models.TurnDetail
	err := s.store.View(ctx, func(q store.Queries) error {
		turn, err := q.GetTurn(ctx, turnID)
		if err != nil {
			return err
		}
		result, err = detail(ctx, q, turn)
		return err
	})
	return result, err
}

func withTurn(turnID string) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String("turn.id", turnID))
}

func withModule(moduleID string) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String("module.id", moduleID))
}
