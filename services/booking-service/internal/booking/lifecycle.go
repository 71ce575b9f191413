package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Origin distinguishes the booking entry points. They differ only in the
// status a new appointment starts in.
type Origin int

const (
	OriginSelfService Origin = iota
	OriginAdmin
)

func (o Origin) initialStatus() model.Status {
	if o == OriginAdmin {
		return model.StatusPending
	}
	return model.StatusConfirmed
}

type CreateInput struct {
	TenantID       string
	ProfessionalID string
	ServiceID      string
	ClientID       string
	ClientName     string
	ClientEmail    string
	ClientPhone    string
	Start          time.Time
	// End is derived from the service duration when zero.
	End    time.Time
	Origin Origin
}

type RescheduleInput struct {
	TenantID      string
	AppointmentID string
	Start         time.Time
	// End is derived from the service duration when zero.
	End time.Time
	// ProfessionalID moves the appointment to another calendar when set.
	ProfessionalID string
}

type UpdateStatusInput struct {
	TenantID      string
	AppointmentID string
	Status        model.Status
	Reason        string
	// Override skips the transition table for administrative corrections.
	Override bool
}

// Manager owns the appointment lifecycle and checks every invariant before
// writing. Detect-then-write runs under a per-professional lock.
type Manager struct {
	store    Store
	detector *Detector
	locker   Locker
	events   EventSink
	clock    Clock
	logger   *slog.Logger
	newID    func() string
}

type ManagerConfig struct {
	Store    Store
	Detector *Detector
	Locker   Locker
	Events   EventSink
	Clock    Clock
	Logger   *slog.Logger
	NewID    func() string
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Detector == nil {
		cfg.Detector = NewDetector(cfg.Store, cfg.Clock, cfg.Logger)
	}
	if cfg.Events == nil {
		cfg.Events = discardSink{}
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Manager{
		store:    cfg.Store,
		detector: cfg.Detector,
		locker:   cfg.Locker,
		events:   cfg.Events,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		newID:    cfg.NewID,
	}
}

func (m *Manager) Create(ctx context.Context, in CreateInput) (model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.Create", trace.WithAttributes(
		attribute.String("tenant_id", in.TenantID),
		attribute.String("professional_id", in.ProfessionalID),
	))
	defer span.End()

	if err := requireIDs(map[string]string{"tenant_id": in.TenantID, "professional_id": in.ProfessionalID, "service_id": in.ServiceID}); err != nil {
		return model.Appointment{}, err
	}
	if in.ClientID == "" && strings.TrimSpace(in.ClientName) == "" {
		return model.Appointment{}, invalid("client", ErrRequired)
	}
	if err := m.validateInterval(in.Start, in.End); err != nil {
		return model.Appointment{}, err
	}

	cal := m.store.Tenant(in.TenantID)
	svc, err := cal.GetService(ctx, in.ServiceID)
	if err != nil {
		return model.Appointment{}, err
	}
	end := in.End
	if end.IsZero() {
		end = in.Start.Add(svc.Duration())
		if err := m.validateInterval(in.Start, end); err != nil {
			return model.Appointment{}, err
		}
	}
	if err := m.ensureBookable(ctx, cal, in.ProfessionalID); err != nil {
		return model.Appointment{}, err
	}

	unlock, err := m.lock(ctx, in.TenantID, in.ProfessionalID)
	if err != nil {
		return model.Appointment{}, err
	}
	defer unlock()

	if m.detector.HasConflict(ctx, in.TenantID, in.ProfessionalID, in.Start, end, "") {
		return model.Appointment{}, ErrConflict
	}

	now := m.clock.now()
	created, err := cal.InsertAppointment(ctx, model.Appointment{
		ID:             m.newID(),
		TenantID:       in.TenantID,
		ProfessionalID: in.ProfessionalID,
		ServiceID:      in.ServiceID,
		ClientID:       in.ClientID,
		ClientName:     strings.TrimSpace(in.ClientName),
		ClientEmail:    strings.TrimSpace(in.ClientEmail),
		ClientPhone:    strings.TrimSpace(in.ClientPhone),
		StartTime:      in.Start,
		EndTime:        end,
		Status:         in.Origin.initialStatus(),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return model.Appointment{}, ErrConflict
		}
		return model.Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}

	m.emit(ctx, Event{Type: EventBooked, Appointment: created})
	return created, nil
}

func (m *Manager) Reschedule(ctx context.Context, in RescheduleInput) (model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.Reschedule", trace.WithAttributes(
		attribute.String("tenant_id", in.TenantID),
		attribute.String("appointment_id", in.AppointmentID),
	))
	defer span.End()

	if err := requireIDs(map[string]string{"tenant_id": in.TenantID, "appointment_id": in.AppointmentID}); err != nil {
		return model.Appointment{}, err
	}
	if err := m.validateInterval(in.Start, in.End); err != nil {
		return model.Appointment{}, err
	}

	cal := m.store.Tenant(in.TenantID)
	current, err := cal.GetAppointment(ctx, in.AppointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if current.Status != model.StatusConfirmed && !CanTransition(current.Status, model.StatusConfirmed) {
		return model.Appointment{}, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrIllegalTransition, current.Status)
	}

	target := current.ProfessionalID
	if in.ProfessionalID != "" {
		target = in.ProfessionalID
	}
	end := in.End
	if end.IsZero() {
		svc, err := cal.GetService(ctx, current.ServiceID)
		if err != nil {
			return model.Appointment{}, err
		}
		end = in.Start.Add(svc.Duration())
		if err := m.validateInterval(in.Start, end); err != nil {
			return model.Appointment{}, err
		}
	}
	if target != current.ProfessionalID {
		if err := m.ensureBookable(ctx, cal, target); err != nil {
			return model.Appointment{}, err
		}
	}

	unlock, err := m.lock(ctx, in.TenantID, current.ProfessionalID, target)
	if err != nil {
		return model.Appointment{}, err
	}
	defer unlock()

	// The record may have been cancelled or moved while we waited for the lock.
	fresh, err := cal.GetAppointment(ctx, current.ID)
	if err != nil {
		return model.Appointment{}, err
	}
	if fresh.ProfessionalID != current.ProfessionalID {
		return model.Appointment{}, ErrConflict
	}
	if fresh.Status != model.StatusConfirmed && !CanTransition(fresh.Status, model.StatusConfirmed) {
		return model.Appointment{}, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrIllegalTransition, fresh.Status)
	}
	current = fresh

	if m.detector.HasConflict(ctx, in.TenantID, target, in.Start, end, current.ID) {
		return model.Appointment{}, ErrConflict
	}

	confirmed := model.StatusConfirmed
	updated, err := cal.UpdateAppointment(ctx, current.ID, AppointmentUpdate{
		ProfessionalID: &target,
		StartTime:      &in.Start,
		EndTime:        &end,
		Status:         &confirmed,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			return model.Appointment{}, err
		}
		return model.Appointment{}, fmt.Errorf("update appointment: %w", err)
	}

	m.emit(ctx, Event{Type: EventRescheduled, Appointment: updated, Previous: &current})
	return updated, nil
}

// UpdateStatus applies a lifecycle move. Writing the current status again is a
// no-op. Reviving a cancelled appointment (override only) re-checks the
// calendar because it starts occupying its slot again.
func (m *Manager) UpdateStatus(ctx context.Context, in UpdateStatusInput) (model.Appointment, error) {
	if err := requireIDs(map[string]string{"tenant_id": in.TenantID, "appointment_id": in.AppointmentID}); err != nil {
		return model.Appointment{}, err
	}
	if !in.Status.Valid() {
		return model.Appointment{}, invalid("status", ErrUnknown)
	}

	cal := m.store.Tenant(in.TenantID)
	current, err := cal.GetAppointment(ctx, in.AppointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	unlock, err := m.lock(ctx, in.TenantID, current.ProfessionalID)
	if err != nil {
		return model.Appointment{}, err
	}
	defer unlock()
	if current, err = cal.GetAppointment(ctx, in.AppointmentID); err != nil {
		return model.Appointment{}, err
	}
	if current.Status == in.Status {
		return current, nil
	}
	if !CanTransition(current.Status, in.Status) {
		if !in.Override {
			return model.Appointment{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current.Status, in.Status)
		}
		m.logger.Warn("status transition override",
			"tenant_id", in.TenantID,
			"appointment_id", current.ID,
			"from", current.Status,
			"to", in.Status,
		)
	}

	upd := AppointmentUpdate{Status: &in.Status}
	if in.Status == model.StatusCancelled {
		now := m.clock.now()
		reason := strings.TrimSpace(in.Reason)
		upd.CancelledAt = &now
		upd.CancelReason = &reason
	}

	if !blocksCalendar(current.Status) && blocksCalendar(in.Status) {
		if m.detector.HasConflict(ctx, in.TenantID, current.ProfessionalID, current.StartTime, current.EndTime, current.ID) {
			return model.Appointment{}, ErrConflict
		}
	}

	updated, err := cal.UpdateAppointment(ctx, current.ID, upd)
	if err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			return model.Appointment{}, err
		}
		return model.Appointment{}, fmt.Errorf("update appointment status: %w", err)
	}

	evtType := EventStatusChanged
	if in.Status == model.StatusCancelled {
		evtType = EventCancelled
	}
	m.emit(ctx, Event{Type: evtType, Appointment: updated, Previous: &current, Reason: strings.TrimSpace(in.Reason)})
	return updated, nil
}

// Cancel frees the appointment's slot. Cancelling twice returns the existing record.
func (m *Manager) Cancel(ctx context.Context, tenantID, appointmentID, reason string) (model.Appointment, error) {
	return m.UpdateStatus(ctx, UpdateStatusInput{
		TenantID:      tenantID,
		AppointmentID: appointmentID,
		Status:        model.StatusCancelled,
		Reason:        reason,
	})
}

// Delete removes the record entirely. It is meant for administrative
// correction; day-to-day cancellations go through Cancel.
func (m *Manager) Delete(ctx context.Context, tenantID, appointmentID string) error {
	if err := requireIDs(map[string]string{"tenant_id": tenantID, "appointment_id": appointmentID}); err != nil {
		return err
	}
	cal := m.store.Tenant(tenantID)
	current, err := cal.GetAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}
	if err := cal.DeleteAppointment(ctx, appointmentID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete appointment: %w", err)
	}
	m.emit(ctx, Event{Type: EventDeleted, Appointment: current})
	return nil
}

func (m *Manager) Get(ctx context.Context, tenantID, appointmentID string) (model.Appointment, error) {
	if err := requireIDs(map[string]string{"tenant_id": tenantID, "appointment_id": appointmentID}); err != nil {
		return model.Appointment{}, err
	}
	return m.store.Tenant(tenantID).GetAppointment(ctx, appointmentID)
}

func (m *Manager) List(ctx context.Context, tenantID string, filter ListFilter) ([]model.Appointment, error) {
	if err := requireIDs(map[string]string{"tenant_id": tenantID}); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid("status", ErrUnknown)
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return m.store.Tenant(tenantID).ListByTenant(ctx, filter)
}

// validateInterval checks start/end shape and the no-retroactive-booking rule.
// A zero end is accepted here and checked once it has been derived.
func (m *Manager) validateInterval(start, end time.Time) error {
	if start.IsZero() {
		return invalid("start_time", ErrRequired)
	}
	if !end.IsZero() && !end.After(start) {
		return invalid("end_time", ErrInvalidRange)
	}
	if m.clock.BeforeToday(start) {
		return invalid("start_time", ErrPastDate)
	}
	return nil
}

func (m *Manager) ensureBookable(ctx context.Context, cal Calendar, professionalID string) error {
	pro, err := cal.GetProfessional(ctx, professionalID)
	if err != nil {
		return err
	}
	if !pro.Active {
		return ErrProfessionalInactive
	}
	return nil
}

// lock takes the calendar locks for the given professionals in sorted order
// so that two moves between the same pair of calendars cannot deadlock.
func (m *Manager) lock(ctx context.Context, tenantID string, professionalIDs ...string) (func(), error) {
	if m.locker == nil {
		return func() {}, nil
	}
	keys := make([]string, 0, len(professionalIDs))
	seen := make(map[string]bool, len(professionalIDs))
	for _, id := range professionalIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, lockKey(tenantID, id))
	}
	sort.Strings(keys)

	var unlocks []func()
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, key := range keys {
		unlock, err := m.locker.Lock(ctx, key)
		if err != nil {
			release()
			return nil, fmt.Errorf("acquire calendar lock: %w", err)
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

func (m *Manager) emit(ctx context.Context, evt Event) {
	if err := m.events.Emit(ctx, evt); err != nil {
		m.logger.Error("failed to record appointment event",
			"err", err,
			"event_type", evt.Type,
			"appointment_id", evt.Appointment.ID,
		)
	}
}
