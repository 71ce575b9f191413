package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/model"
)

func at(hour, minute int) time.Time {
	return time.Date(2030, 3, 4, hour, minute, 0, 0, time.UTC)
}

func TestListAppointmentsOrderedAndFiltered(t *testing.T) {
	ctx := context.Background()
	s := New()
	cal := s.Tenant("t1")

	seed := []model.Appointment{
		{ID: "c", ProfessionalID: "p1", StartTime: at(14, 0), EndTime: at(15, 0), Status: model.StatusConfirmed},
		{ID: "a", ProfessionalID: "p1", StartTime: at(9, 0), EndTime: at(10, 0), Status: model.StatusPending},
		{ID: "x", ProfessionalID: "p1", StartTime: at(11, 0), EndTime: at(12, 0), Status: model.StatusCancelled},
		{ID: "o", ProfessionalID: "p2", StartTime: at(9, 0), EndTime: at(10, 0), Status: model.StatusConfirmed},
	}
	for _, appt := range seed {
		if _, err := cal.InsertAppointment(ctx, appt); err != nil {
			t.Fatalf("insert %s: %v", appt.ID, err)
		}
	}
	if _, err := s.Tenant("t2").InsertAppointment(ctx, model.Appointment{
		ID: "other-tenant", ProfessionalID: "p1", StartTime: at(12, 0), EndTime: at(13, 0), Status: model.StatusConfirmed,
	}); err != nil {
		t.Fatalf("insert other tenant: %v", err)
	}

	got, err := cal.ListAppointments(ctx, "p1", at(0, 0), at(23, 59))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("unexpected list: %+v", got)
	}
}

func TestInsertRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	cal := New().Tenant("t1")
	first := model.Appointment{ID: "a", ProfessionalID: "p1", StartTime: at(9, 0), EndTime: at(10, 0), Status: model.StatusConfirmed}
	if _, err := cal.InsertAppointment(ctx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	clash := model.Appointment{ID: "b", ProfessionalID: "p1", StartTime: at(9, 30), EndTime: at(10, 30), Status: model.StatusConfirmed}
	if _, err := cal.InsertAppointment(ctx, clash); !errors.Is(err, booking.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	touching := model.Appointment{ID: "c", ProfessionalID: "p1", StartTime: at(10, 0), EndTime: at(11, 0), Status: model.StatusConfirmed}
	if _, err := cal.InsertAppointment(ctx, touching); err != nil {
		t.Fatalf("back-to-back insert: %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.Tenant("t1").InsertAppointment(ctx, model.Appointment{
		ID: "a", ProfessionalID: "p1", StartTime: at(9, 0), EndTime: at(10, 0), Status: model.StatusConfirmed,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	other := s.Tenant("t2")
	if _, err := other.GetAppointment(ctx, "a"); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := other.DeleteAppointment(ctx, "a"); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected not found on delete, got %v", err)
	}
	status := model.StatusCancelled
	if _, err := other.UpdateAppointment(ctx, "a", booking.AppointmentUpdate{Status: &status}); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
}

func TestCatalogLookupsAreTenantScoped(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.UpsertService(ctx, model.Service{ID: "svc", TenantID: "t1", DurationMinutes: 30, Active: true})
	_ = s.UpsertService(ctx, model.Service{ID: "retired", TenantID: "t1", DurationMinutes: 30})
	_ = s.UpsertProfessional(ctx, model.Professional{ID: "p1", TenantID: "t1", Active: true})

	if _, err := s.Tenant("t1").GetService(ctx, "svc"); err != nil {
		t.Fatalf("get service: %v", err)
	}
	if _, err := s.Tenant("t1").GetService(ctx, "retired"); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("inactive service should be not found, got %v", err)
	}
	if _, err := s.Tenant("t2").GetService(ctx, "svc"); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
	if _, err := s.Tenant("t2").GetProfessional(ctx, "p1"); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
}

func TestListByTenantFilters(t *testing.T) {
	ctx := context.Background()
	cal := New().Tenant("t1")
	for i, status := range []model.Status{model.StatusPending, model.StatusConfirmed, model.StatusCancelled} {
		if _, err := cal.InsertAppointment(ctx, model.Appointment{
			ID: string(rune('a' + i)), ProfessionalID: "p1",
			StartTime: at(9+i, 0), EndTime: at(10+i, 0), Status: status,
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	got, err := cal.ListByTenant(ctx, booking.ListFilter{Status: model.StatusConfirmed})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("unexpected filtered list: %+v", got)
	}
	got, _ = cal.ListByTenant(ctx, booking.ListFilter{Limit: 2})
	if len(got) != 2 || got[0].ID != "a" {
		t.Fatalf("unexpected limited list: %+v", got)
	}
}
