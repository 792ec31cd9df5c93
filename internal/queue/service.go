// Package queue holds the turn lifecycle, daily ticket sequencing, module
// occupancy and the read models built over turn state. Every mutation runs as
// one store.Update so the check and the write it guards commit together.
package queue

import (
	"context"
	"errors"
	"time"

	"qms/turn-service/internal/models"
	"qms/turn-service/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DateLayout = "2006-01-02"

const (
	defaultPrefix      = "A"
	defaultPad         = 3
	defaultPreviewSize = 3
)

var tracer = otel.Tracer("qms/turn-service/internal/queue")

type Options struct {
	Location     *time.Location
	TicketPrefix string
	TicketPad    int
	PreviewSize  int
	Now          func() time.Time
}

type Service struct {
	store       store.Store
	loc         *time.Location
	prefix      string
	pad         int
	previewSize int
	now         func() time.Time
}

func NewService(st store.Store, options Options) *Service {
	svc := &Service{
		store:       st,
		loc:         options.Location,
		prefix:      options.TicketPrefix,
		pad:         options.TicketPad,
		previewSize: options.PreviewSize,
		now:         options.Now,
	}
	if svc.loc == nil {
		svc.loc = time.UTC
	}
	if svc.prefix == "" {
		svc.prefix = defaultPrefix
	}
	if svc.pad <= 0 {
		svc.pad = defaultPad
	}
	if svc.previewSize <= 0 {
		svc.previewSize = defaultPreviewSize
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

func (s *Service) PreviewSize() int {
	return s.previewSize
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, store.ErrQueueEmpty) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// detail joins a turn with its customer and module. Missing references are
// left nil rather than failing the read.
func detail(ctx context.Context, q store.Queries, turn models.Turn) (models.TurnDetail, error) {
	out := models.TurnDetail{Turn: turn}
	customer, err := q.GetCustomer(ctx, turn.CustomerID)
	switch {
	case err == nil:
		out.Customer = &customer
	case !errors.Is(err, store.ErrNotFound):
		return models.TurnDetail{}, err
	}
	if turn.ModuleID != nil {
		module, err := q.GetModule(ctx, *turn.ModuleID)
		switch {
		case err == nil:
			out.Module = &module
		case !errors.Is(err, store.ErrNotFound):
			return models.TurnDetail{}, err
		}
	}
	return out, nil
}

func listDetails(ctx context.Context, q store.Queries, filter store.TurnFilter) ([]models.TurnDetail, error) {
	turns, err := q.ListTurns(ctx, filter)
	if err != nil {
		return nil, err
	}
	customers := make(map[string]*models.Customer)
	modules := make(map[string]*models.Module)
	details := make([]models.TurnDetail, 0, len(turns))
	for _, turn := range turns {
		out := models.TurnDetail{Turn: turn}
		customer, seen := customers[turn.CustomerID]
		if !seen {
			found, err := q.GetCustomer(ctx, turn.CustomerID)
			switch {
			case err == nil:
				customer = &found
			case !errors.Is(err, store.ErrNotFound):
				return nil, err
			}
			customers[turn.CustomerID] = customer
		}
		out.Customer = customer
		if turn.ModuleID != nil {
			module, seen := modules[*turn.ModuleID]
			if !seen {
				found, err := q.GetModule(ctx, *turn.ModuleID)
				switch {
				case err == nil:
					module = &found
				case !errors.Is(err, store.ErrNotFound):
					return nil, err
				}
				modules[*turn.ModuleID] = module
			}
			out.Module = module
		}
		details = append(details, out)
	}
	return details, nil
}
