package queue

import (
	"context"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"
)

// PredictAssignments pairs the first n waiting turns, in order, with the
// active modules that are not busy. Turns past the number of free modules get
// no prediction. The result is advisory: agents choose which module calls next.
func PredictAssignments(waiting []models.TurnDetail, modules []models.ModuleStatus, n int) []models.PredictedTurn {
	var available []models.Module
	for _, status := range modules {
		if status.Active && !status.Busy {
			available = append(available, status.Module)
		}
	}

	if n > len(waiting) {
		n = len(waiting)
	}
	if n < 0 {
		n = 0
	}
	predictions := make([]models.PredictedTurn, 0, n)
	for i := 0; i < n; i++ {
		prediction := models.PredictedTurn{Turn: waiting[i]}
		if i < len(available) {
			module := available[i]
			prediction.PredictedModule = &module
		}
		predictions = append(predictions, prediction)
	}
	return predictions
}

// Board is the public display: today's stats, who is being served where, and
// the next turns with their predicted modules.
func (s *Service) Board(ctx context.Context) (result models.Board, err error) {
	ctx, span := tracer.Start(ctx, "queue.Board")
	defer func() { endSpan(span, err) }()

	serviceDate := s.Today()
	err = s.store.View(ctx, func(q store.Queries) error {
		stats, err := statsIn(ctx, q, serviceDate)
		if err != nil {
			return err
		}
		serving, err := listDetails(ctx, q, store.TurnFilter{Statuses: []string{models.StatusBeingServed}})
		if err != nil {
			return err
		}
		waiting, err := listDetails(ctx, q, store.TurnFilter{Statuses: []string{models.StatusWaiting}, ServiceDate: serviceDate, Limit: s.previewSize})
		if err != nil {
			return err
		}
		modules, err := moduleStatuses(ctx, q)
		if err != nil {
			return err
		}
		result = models.Board{
			Stats:    stats,
			Serving:  serving,
			Upcoming: PredictAssignments(waiting, modules, s.previewSize),
		}
		return nil
	})
	return result, err
}
