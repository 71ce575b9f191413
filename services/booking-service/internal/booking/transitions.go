package booking

import "github.com/md-rashed-zaman/slotwise/services/booking-service/internal/model"

// transitions lists the allowed status moves. completed, cancelled and no_show
// have no exits.
var transitions = map[model.Status][]model.Status{
	model.StatusPending:   {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed: {model.StatusCompleted, model.StatusCancelled, model.StatusNoShow},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to model.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions leave s.
func Terminal(s model.Status) bool {
	return len(transitions[s]) == 0
}

// blocksCalendar reports whether an appointment in status s occupies its slot.
func blocksCalendar(s model.Status) bool {
	return s != model.StatusCancelled
}
