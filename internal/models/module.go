package models

import "time"

type Module struct {
	ModuleID    string    `json:"module_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	AgentID     *string   `json:"agent_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (m Module) HeldBy(staffID string) bool {
	return m.AgentID != nil && *m.AgentID == staffID
}

// ModuleStatus combines a module with its derived occupancy and busy state.
// Busy is true while a turn referencing the module is being served.
type ModuleStatus struct {
	Module
	Busy        bool   `json:"busy"`
	Agent       *Staff `json:"agent,omitempty"`
	ServingTurn *Turn  `json:"serving_turn,omitempty"`
}
