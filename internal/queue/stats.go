package queue

import (
	"context"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"
)

// WaitingTurns lists today's waiting turns in call order. Its first element is
// the turn AssignToModule would pick next.
func (s *Service) WaitingTurns(ctx context.Context) ([]models.TurnDetail, error) {
	return s.listTurns(ctx, store.TurnFilter{Statuses: []string{models.StatusWaiting}, ServiceDate: s.Today()})
}

func (s *Service) CurrentlyServed(ctx context.Context) ([]models.TurnDetail, error) {
	return s.listTurns(ctx, store.TurnFilter{Statuses: []string{models.StatusBeingServed}})
}

// DayTurns lists every turn issued on serviceDate regardless of status.
func (s *Service) DayTurns(ctx context.Context, serviceDate string) ([]models.TurnDetail, error) {
	return s.listTurns(ctx, store.TurnFilter{ServiceDate: serviceDate})
}

func (s *Service) listTurns(ctx context.Context, filter store.TurnFilter) ([]models.TurnDetail, error) {
	var result []models.TurnDetail
	err := s.store.View(ctx, func(q store.Queries) error {
		var err error
		result, err = listDetails(ctx, q, filter)
		return err
	})
	return result, err
}

// Stats aggregates today's turns by status.
func (s *Service) Stats(ctx context.Context) (models.QueueStats, error) {
	return s.StatsFor(ctx, s.Today())
}

func (s *Service) StatsFor(ctx context.Context, serviceDate string) (result models.QueueStats, err error) {
	ctx, span := tracer.Start(ctx, "queue.Stats")
	defer func() { endSpan(span, err) }()

	err = s.store.View(ctx, func(q store.Queries) error {
		var err error
		result, err = statsIn(ctx, q, serviceDate)
		return err
	})
	return result, err
}

func statsIn(ctx context.Context, q store.Queries, serviceDate string) (models.QueueStats, error) {
	counts, err := q.CountTurnsByStatus(ctx, serviceDate)
	if err != nil {
		return models.QueueStats{}, err
	}
	head, err := q.ListTurns(ctx, store.TurnFilter{Statuses: []string{models.StatusWaiting}, ServiceDate: serviceDate, Limit: 1})
	if err != nil {
		return models.QueueStats{}, err
	}
	var next *models.Turn
	if len(head) > 0 {
		next = &head[0]
	}
	return buildStats(serviceDate, counts, next), nil
}

// buildStats reports every status even when its count is zero. NextTicket is
// the head of the waiting queue for the same service date.
func buildStats(serviceDate string, counts map[string]int, head *models.Turn) models.QueueStats {
	stats := models.QueueStats{
		ServiceDate: serviceDate,
		Waiting:     counts[models.StatusWaiting],
		BeingServed: counts[models.StatusBeingServed],
		Completed:   counts[models.StatusCompleted],
		Cancelled:   counts[models.StatusCancelled],
	}
	stats.TotalToday = stats.Waiting + stats.BeingServed + stats.Completed + stats.Cancelled
	if head != nil {
		code := head.TicketCode
		stats.NextTicket = &code
	}
	return stats
}
