package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/scheduling"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("booking")

// SlotFinder lists scored open starts for one professional on one day.
type SlotFinder struct {
	store  Store
	hours  scheduling.Provider
	policy policy.Provider
	clock  Clock
}

func NewSlotFinder(store Store, hours scheduling.Provider, policyProvider policy.Provider, clock Clock) *SlotFinder {
	return &SlotFinder{store: store, hours: hours, policy: policyProvider, clock: clock}
}

// FindSlots returns candidates ordered by score, best first. Only the calendar
// date of date is used. Starts that already passed today are dropped.
func (f *SlotFinder) FindSlots(ctx context.Context, tenantID, serviceID, professionalID string, date time.Time) ([]availability.Slot, error) {
	ctx, span := tracer.Start(ctx, "booking.FindSlots", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("professional_id", professionalID),
		attribute.String("service_id", serviceID),
	))
	defer span.End()

	d, err := f.resolveDay(ctx, tenantID, serviceID, professionalID, date)
	if err != nil {
		return nil, err
	}
	if !d.working {
		return []availability.Slot{}, nil
	}

	gaps := availability.Gaps(d.window.Open, d.window.Close, d.busy)
	candidates := availability.Candidates(gaps, d.window.Open, d.duration, d.policy.Buffer, d.policy.Step)

	now := f.clock.now()
	slots := make([]availability.Slot, 0, len(candidates))
	for _, c := range candidates {
		if c.Start.Before(now) {
			continue
		}
		slots = append(slots, c)
	}
	span.SetAttributes(attribute.Int("slots", len(slots)))
	return availability.Rank(slots), nil
}

// OpenStarts is the unscored view: every step-aligned start from opening time
// whose service interval is free, in chronological order. The buffer is not
// applied.
func (f *SlotFinder) OpenStarts(ctx context.Context, tenantID, serviceID, professionalID string, date time.Time) ([]availability.Interval, error) {
	d, err := f.resolveDay(ctx, tenantID, serviceID, professionalID, date)
	if err != nil {
		return nil, err
	}
	if !d.working {
		return []availability.Interval{}, nil
	}
	starts := availability.AvailableSlots(d.window.Open, d.window.Close, d.duration, d.policy.Step, d.busy, f.clock.now())
	out := make([]availability.Interval, 0, len(starts))
	for _, s := range starts {
		out = append(out, availability.Interval{Start: s, End: s.Add(d.duration)})
	}
	return out, nil
}

type dayPlan struct {
	working  bool
	window   scheduling.Window
	policy   policy.SlotPolicy
	duration time.Duration
	busy     []availability.Interval
}

func (f *SlotFinder) resolveDay(ctx context.Context, tenantID, serviceID, professionalID string, date time.Time) (dayPlan, error) {
	if err := requireIDs(map[string]string{"tenant_id": tenantID, "service_id": serviceID, "professional_id": professionalID}); err != nil {
		return dayPlan{}, err
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, f.clock.loc())
	if f.clock.BeforeToday(day) {
		return dayPlan{}, invalid("date", ErrPastDate)
	}

	cal := f.store.Tenant(tenantID)
	svc, err := cal.GetService(ctx, serviceID)
	if err != nil {
		return dayPlan{}, err
	}
	if svc.DurationMinutes <= 0 {
		return dayPlan{}, fmt.Errorf("service %s has no duration configured", serviceID)
	}
	pro, err := cal.GetProfessional(ctx, professionalID)
	if err != nil {
		return dayPlan{}, err
	}
	if !pro.Active {
		return dayPlan{}, ErrProfessionalInactive
	}

	win, working, err := f.hours.WorkingHours(ctx, tenantID, professionalID, day)
	if err != nil {
		return dayPlan{}, fmt.Errorf("resolve working hours: %w", err)
	}
	if !working {
		return dayPlan{}, nil
	}
	sp, err := f.policy.SlotPolicy(ctx, tenantID)
	if err != nil {
		return dayPlan{}, fmt.Errorf("resolve slot policy: %w", err)
	}

	appts, err := cal.ListAppointments(ctx, professionalID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return dayPlan{}, fmt.Errorf("list appointments: %w", err)
	}
	busy := make([]availability.Interval, 0, len(appts))
	for _, a := range appts {
		busy = append(busy, availability.Interval{Start: a.StartTime, End: a.EndTime})
	}
	return dayPlan{working: true, window: win, policy: sp, duration: svc.Duration(), busy: busy}, nil
}

func requireIDs(fields map[string]string) error {
	for _, name := range []string{"tenant_id", "appointment_id", "service_id", "professional_id"} {
		v, ok := fields[name]
		if ok && v == "" {
			return invalid(name, ErrRequired)
		}
	}
	return nil
}
