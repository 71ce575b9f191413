package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/model"
)

// Store hands out calendars bound to one tenant. There is no way to reach
// appointment data without naming the tenant first.
type Store interface {
	Tenant(tenantID string) Calendar
}

// Calendar is the tenant-scoped persistence surface. Implementations apply the
// tenant filter to every statement and translate missing rows to ErrNotFound.
type Calendar interface {
	// ListAppointments returns non-cancelled appointments of the professional
	// that intersect [from, to), ordered by start time ascending.
	ListAppointments(ctx context.Context, professionalID string, from, to time.Time) ([]model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	InsertAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, id string, upd AppointmentUpdate) (model.Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error
	ListByTenant(ctx context.Context, filter ListFilter) ([]model.Appointment, error)
	GetService(ctx context.Context, id string) (model.Service, error)
	GetProfessional(ctx context.Context, id string) (model.Professional, error)
}

// AppointmentUpdate carries the fields to change; nil fields are left alone.
type AppointmentUpdate struct {
	ProfessionalID *string
	StartTime      *time.Time
	EndTime        *time.Time
	Status         *model.Status
	CancelledAt    *time.Time
	CancelReason   *string
}

type ListFilter struct {
	ProfessionalID string
	From           time.Time
	To             time.Time
	Status         model.Status
	Limit          int
}

// Locker serializes detect-then-write on one calendar key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

const (
	EventBooked        = "booking.appointment.booked.v1"
	EventRescheduled   = "booking.appointment.rescheduled.v1"
	EventStatusChanged = "booking.appointment.status_changed.v1"
	EventCancelled     = "booking.appointment.cancelled.v1"
	EventDeleted       = "booking.appointment.deleted.v1"
)

// Event describes a committed change to an appointment.
type Event struct {
	Type        string
	Appointment model.Appointment
	Previous    *model.Appointment
	Reason      string
}

type EventSink interface {
	Emit(ctx context.Context, evt Event) error
}

type discardSink struct{}

func (discardSink) Emit(context.Context, Event) error { return nil }

func lockKey(tenantID, professionalID string) string {
	return "calendar:" + tenantID + ":" + professionalID
}
