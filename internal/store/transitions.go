package store

import "qms/turn-service/internal/models"

const (
	ActionAssign   = "assign"
	ActionComplete = "complete"
	ActionCancel   = "cancel"
)

var transitionMap = map[string][]string{
	ActionAssign:   {models.StatusWaiting},
	ActionComplete: {models.StatusBeingServed},
	ActionCancel:   {models.StatusWaiting, models.StatusBeingServed},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// TransitionError explains why action is not allowed from fromStatus.
func TransitionError(action, fromStatus string) error {
	switch fromStatus {
	case models.StatusCompleted:
		return ErrTurnCompleted
	case models.StatusCancelled:
		return ErrTurnAlreadyCancelled
	}
	if action == ActionComplete {
		return ErrTurnNotServing
	}
	return ErrConflict
}
