package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/booking"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// FromBooking renders a committed appointment change as an outbox event.
func FromBooking(evt booking.Event, occurredAt time.Time) (Event, error) {
	appt := evt.Appointment
	payload := map[string]any{
		"appointment_id":  appt.ID,
		"tenant_id":       appt.TenantID,
		"professional_id": appt.ProfessionalID,
		"service_id":      appt.ServiceID,
		"client_id":       appt.ClientID,
		"client_email":    appt.ClientEmail,
		"client_phone":    appt.ClientPhone,
		"start_time":      appt.StartTime.UTC().Format(time.RFC3339),
		"end_time":        appt.EndTime.UTC().Format(time.RFC3339),
		"status":          string(appt.Status),
		"occurred_at":     occurredAt.UTC().Format(time.RFC3339),
	}
	if evt.Previous != nil {
		payload["previous"] = map[string]any{
			"professional_id": evt.Previous.ProfessionalID,
			"start_time":      evt.Previous.StartTime.UTC().Format(time.RFC3339),
			"end_time":        evt.Previous.EndTime.UTC().Format(time.RFC3339),
			"status":          string(evt.Previous.Status),
		}
	}
	if evt.Reason != "" {
		payload["reason"] = evt.Reason
	}
	if appt.CancelledAt != nil {
		payload["cancelled_at"] = appt.CancelledAt.UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     evt.Type,
		Payload:       body,
	}, nil
}
