package models

import "time"

type Staff struct {
	StaffID      string    `json:"staff_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	RoleAdmin        = "admin"
	RoleAgent        = "agent"
	RoleReceptionist = "receptionist"
)

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleAgent, RoleReceptionist:
		return true
	default:
		return false
	}
}
