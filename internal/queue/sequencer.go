package queue

import (
	"context"
	"fmt"
	"time"

	"qms/turn-service/internal/store"
)

// FormatTicket renders a ticket code such as A007. Numbers wider than pad keep
// all their digits (A1000).
func FormatTicket(prefix string, pad, number int) string {
	return fmt.Sprintf("%s%0*d", prefix, pad, number)
}

// ServiceDate is the calendar day, in the office time zone, that t belongs to.
func (s *Service) ServiceDate(t time.Time) string {
	return t.In(s.loc).Format(DateLayout)
}

func (s *Service) Today() string {
	return s.ServiceDate(s.clock())
}

// issueTicket draws the next number for serviceDate. It must run inside the
// same Update as the turn insert so a failed insert returns the number.
func (s *Service) issueTicket(ctx context.Context, q store.Queries, serviceDate string) (int, string, error) {
	number, err := q.NextTicketNumber(ctx, serviceDate)
	if err != nil {
		return 0, "", fmt.Errorf("next ticket number: %w", err)
	}
	return number, FormatTicket(s.prefix, s.pad, number), nil
}
