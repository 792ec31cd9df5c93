// Package registry manages the records the queue works with: customers,
// staff accounts and modules.
package registry

import (
	"errors"
	"strings"

	"qms/turn-service/internal/store"
)

var ErrInvalidInput = errors.New("invalid input")

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

func invalid(message string) error {
	return &inputError{message: message}
}

type inputError struct {
	message string
}

func (e *inputError) Error() string {
	return e.message
}

func (e *inputError) Unwrap() error {
	return ErrInvalidInput
}

// pick returns value trimmed, or fallback when value is blank.
func pick(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
