package models

import "time"

type Turn struct {
	TurnID       string     `json:"turn_id"`
	CustomerID   string     `json:"customer_id"`
	CustomerName string     `json:"customer_name"`
	NationalID   string     `json:"national_id"`
	ModuleID     *string    `json:"module_id,omitempty"`
	TicketCode   string     `json:"ticket_code"`
	TicketNumber int        `json:"ticket_number"`
	Status       string     `json:"status"`
	ServiceDate  string     `json:"service_date"`
	CreatedAt    time.Time  `json:"created_at"`
	CalledAt     *time.Time `json:"called_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CompletedBy  *string    `json:"completed_by,omitempty"`
}

// TurnDetail is a turn joined with its customer and, once assigned, its module.
type TurnDetail struct {
	Turn
	Customer *Customer `json:"customer,omitempty"`
	Module   *Module   `json:"module,omitempty"`
}

const (
	StatusWaiting     = "waiting"
	StatusBeingServed = "being_served"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
)

var TurnStatuses = []string{StatusWaiting, StatusBeingServed, StatusCompleted, StatusCancelled}

func IsActiveStatus(status string) bool {
	return status == StatusWaiting || status == StatusBeingServed
}
