package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/model"
)

// fakeStore is a minimal single-tenant calendar that counts reads and can be
// told to fail them.
type fakeStore struct {
	mu       sync.Mutex
	tenantID string
	appts    []model.Appointment
	services map[string]model.Service
	pros     map[string]model.Professional
	listErr  error
	reads    int
}

func newFakeStore(tenantID string) *fakeStore {
	return &fakeStore{
		tenantID: tenantID,
		services: map[string]model.Service{},
		pros:     map[string]model.Professional{},
	}
}

func (s *fakeStore) Tenant(tenantID string) Calendar {
	return &fakeCalendar{s: s, tenantID: tenantID}
}

func (s *fakeStore) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type fakeCalendar struct {
	s        *fakeStore
	tenantID string
}

func (c *fakeCalendar) ListAppointments(_ context.Context, professionalID string, from, to time.Time) ([]model.Appointment, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.reads++
	if c.s.listErr != nil {
		return nil, c.s.listErr
	}
	var out []model.Appointment
	if c.tenantID != c.s.tenantID {
		return out, nil
	}
	for _, a := range c.s.appts {
		if a.ProfessionalID == professionalID && a.Status != model.StatusCancelled &&
			a.StartTime.Before(to) && from.Before(a.EndTime) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (c *fakeCalendar) GetAppointment(context.Context, string) (model.Appointment, error) {
	return model.Appointment{}, ErrNotFound
}

func (c *fakeCalendar) InsertAppointment(_ context.Context, a model.Appointment) (model.Appointment, error) {
	return a, errors.New("fake: read only")
}

func (c *fakeCalendar) UpdateAppointment(context.Context, string, AppointmentUpdate) (model.Appointment, error) {
	return model.Appointment{}, errors.New("fake: read only")
}

func (c *fakeCalendar) DeleteAppointment(context.Context, string) error {
	return errors.New("fake: read only")
}

func (c *fakeCalendar) ListByTenant(context.Context, ListFilter) ([]model.Appointment, error) {
	return nil, nil
}

func (c *fakeCalendar) GetService(_ context.Context, id string) (model.Service, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.reads++
	svc, ok := c.s.services[id]
	if !ok || c.tenantID != c.s.tenantID {
		return model.Service{}, ErrNotFound
	}
	return svc, nil
}

func (c *fakeCalendar) GetProfessional(_ context.Context, id string) (model.Professional, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.reads++
	pro, ok := c.s.pros[id]
	if !ok || c.tenantID != c.s.tenantID {
		return model.Professional{}, ErrNotFound
	}
	return pro, nil
}
