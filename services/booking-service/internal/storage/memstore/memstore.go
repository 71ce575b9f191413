// Package memstore keeps calendars in process memory. It backs STORAGE_MODE=memory
// and the unit tests; data is lost on restart.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/model"
)

type Store struct {
	mu            sync.RWMutex
	appointments  map[string]model.Appointment
	services      map[string]model.Service
	professionals map[string]model.Professional
	now           func() time.Time
}

func New() *Store {
	return &Store{
		appointments:  make(map[string]model.Appointment),
		services:      make(map[string]model.Service),
		professionals: make(map[string]model.Professional),
		now:           time.Now,
	}
}

func (s *Store) Tenant(tenantID string) booking.Calendar {
	return &calendar{store: s, tenantID: tenantID}
}

func (s *Store) UpsertService(_ context.Context, svc model.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[catalogKey(svc.TenantID, svc.ID)] = svc
	return nil
}

func (s *Store) UpsertProfessional(_ context.Context, pro model.Professional) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.professionals[catalogKey(pro.TenantID, pro.ID)] = pro
	return nil
}

func catalogKey(tenantID, id string) string {
	return tenantID + "/" + id
}

type calendar struct {
	store    *Store
	tenantID string
}

func (c *calendar) ListAppointments(_ context.Context, professionalID string, from, to time.Time) ([]model.Appointment, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	window := availability.Interval{Start: from, End: to}
	var out []model.Appointment
	for _, appt := range c.store.appointments {
		if appt.TenantID != c.tenantID || appt.ProfessionalID != professionalID {
			continue
		}
		if appt.Status == model.StatusCancelled {
			continue
		}
		if !availability.Overlaps(window, availability.Interval{Start: appt.StartTime, End: appt.EndTime}) {
			continue
		}
		out = append(out, appt)
	}
	sortByStart(out)
	return out, nil
}

func (c *calendar) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	appt, ok := c.store.appointments[id]
	if !ok || appt.TenantID != c.tenantID {
		return model.Appointment{}, booking.ErrNotFound
	}
	return appt, nil
}

// InsertAppointment rejects overlapping non-cancelled rows the same way the
// Postgres exclusion constraint does.
func (c *calendar) InsertAppointment(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	appt.TenantID = c.tenantID
	if c.collidesLocked(appt) {
		return model.Appointment{}, booking.ErrConflict
	}
	now := c.store.now()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = appt.CreatedAt
	c.store.appointments[appt.ID] = appt
	return appt, nil
}

func (c *calendar) UpdateAppointment(_ context.Context, id string, upd booking.AppointmentUpdate) (model.Appointment, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	appt, ok := c.store.appointments[id]
	if !ok || appt.TenantID != c.tenantID {
		return model.Appointment{}, booking.ErrNotFound
	}
	if upd.ProfessionalID != nil {
		appt.ProfessionalID = *upd.ProfessionalID
	}
	if upd.StartTime != nil {
		appt.StartTime = *upd.StartTime
	}
	if upd.EndTime != nil {
		appt.EndTime = *upd.EndTime
	}
	if upd.Status != nil {
		appt.Status = *upd.Status
	}
	if upd.CancelledAt != nil {
		at := *upd.CancelledAt
		appt.CancelledAt = &at
	}
	if upd.CancelReason != nil {
		appt.CancelReason = *upd.CancelReason
	}
	if c.collidesLocked(appt) {
		return model.Appointment{}, booking.ErrConflict
	}
	appt.UpdatedAt = c.store.now()
	c.store.appointments[id] = appt
	return appt, nil
}

func (c *calendar) DeleteAppointment(_ context.Context, id string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	appt, ok := c.store.appointments[id]
	if !ok || appt.TenantID != c.tenantID {
		return booking.ErrNotFound
	}
	delete(c.store.appointments, id)
	return nil
}

func (c *calendar) ListByTenant(_ context.Context, filter booking.ListFilter) ([]model.Appointment, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	var out []model.Appointment
	for _, appt := range c.store.appointments {
		if appt.TenantID != c.tenantID {
			continue
		}
		if filter.ProfessionalID != "" && appt.ProfessionalID != filter.ProfessionalID {
			continue
		}
		if filter.Status != "" && appt.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && !appt.EndTime.After(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !appt.StartTime.Before(filter.To) {
			continue
		}
		out = append(out, appt)
	}
	sortByStart(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (c *calendar) GetService(_ context.Context, id string) (model.Service, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	svc, ok := c.store.services[catalogKey(c.tenantID, id)]
	if !ok || !svc.Active {
		return model.Service{}, booking.ErrNotFound
	}
	return svc, nil
}

func (c *calendar) GetProfessional(_ context.Context, id string) (model.Professional, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	pro, ok := c.store.professionals[catalogKey(c.tenantID, id)]
	if !ok {
		return model.Professional{}, booking.ErrNotFound
	}
	return pro, nil
}

func (c *calendar) collidesLocked(appt model.Appointment) bool {
	if appt.Status == model.StatusCancelled {
		return false
	}
	candidate := availability.Interval{Start: appt.StartTime, End: appt.EndTime}
	for _, other := range c.store.appointments {
		if other.ID == appt.ID || other.TenantID != appt.TenantID || other.ProfessionalID != appt.ProfessionalID {
			continue
		}
		if other.Status == model.StatusCancelled {
			continue
		}
		if availability.Overlaps(candidate, availability.Interval{Start: other.StartTime, End: other.EndTime}) {
			return true
		}
	}
	return false
}

func sortByStart(appts []model.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].StartTime.Equal(appts[j].StartTime) {
			return appts[i].ID < appts[j].ID
		}
		return appts[i].StartTime.Before(appts[j].StartTime)
	})
}
