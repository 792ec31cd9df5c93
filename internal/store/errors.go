package store

import (
	"errors"
	"fmt"
)

// Every sentinel below wraps ErrNotFound or ErrConflict so callers can classify
// failures with errors.Is against the root.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

var (
	ErrCustomerNotFound = fmt.Errorf("customer %w", ErrNotFound)
	ErrStaffNotFound    = fmt.Errorf("staff %w", ErrNotFound)
	ErrModuleNotFound   = fmt.Errorf("module %w", ErrNotFound)
	ErrTurnNotFound     = fmt.Errorf("turn %w", ErrNotFound)
)

var (
	ErrDuplicateNationalID  = fmt.Errorf("national id already registered: %w", ErrConflict)
	ErrDuplicateEmail       = fmt.Errorf("email already registered: %w", ErrConflict)
	ErrDuplicateModuleName  = fmt.Errorf("module name already exists: %w", ErrConflict)
	ErrActiveTurnExists     = fmt.Errorf("customer already has an active turn: %w", ErrConflict)
	ErrModuleBusy           = fmt.Errorf("module is serving a turn: %w", ErrConflict)
	ErrTurnCompleted        = fmt.Errorf("turn already completed: %w", ErrConflict)
	ErrTurnAlreadyCancelled = fmt.Errorf("turn already cancelled: %w", ErrConflict)
	ErrTurnNotServing       = fmt.Errorf("turn is not being served: %w", ErrConflict)
	ErrModuleTaken          = fmt.Errorf("module held by another staff member: %w", ErrConflict)
	ErrStaffHoldsModule     = fmt.Errorf("staff member already holds a module: %w", ErrConflict)
	ErrModuleNotHeld        = fmt.Errorf("module not held by staff member: %w", ErrConflict)
	ErrModuleUnattended     = fmt.Errorf("module has no agent: %w", ErrConflict)
	ErrModuleInactive       = fmt.Errorf("module is inactive: %w", ErrConflict)
)

// ErrQueueEmpty is returned by call-next when no turn is waiting. It is an
// outcome, not a failure, and belongs to neither root.
var ErrQueueEmpty = errors.New("no waiting turn")

var ErrReadOnly = errors.New("write attempted in read-only transaction")
