package models

import "time"

type Customer struct {
	CustomerID string    `json:"customer_id"`
	NationalID string    `json:"national_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
