package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/model"
)

// Detector answers whether a candidate interval collides with an existing,
// non-cancelled appointment of the same professional.
type Detector struct {
	store  Store
	clock  Clock
	logger *slog.Logger
}

func NewDetector(store Store, clock Clock, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{store: store, clock: clock, logger: logger}
}

// HasConflict fails closed: if existing appointments cannot be read it reports
// a conflict so the booking is denied.
func (d *Detector) HasConflict(ctx context.Context, tenantID, professionalID string, start, end time.Time, excludeID string) bool {
	conflict, err := d.Check(ctx, tenantID, professionalID, start, end, excludeID)
	if err != nil {
		d.logger.Error("conflict check failed; denying booking",
			"err", err,
			"tenant_id", tenantID,
			"professional_id", professionalID,
		)
		return true
	}
	return conflict
}

// Check is HasConflict with the read error surfaced instead of folded in.
func (d *Detector) Check(ctx context.Context, tenantID, professionalID string, start, end time.Time, excludeID string) (bool, error) {
	if err := requireIDs(map[string]string{"tenant_id": tenantID, "professional_id": professionalID}); err != nil {
		return false, err
	}
	from, to := d.clock.dayRange(start, end)
	existing, err := d.store.Tenant(tenantID).ListAppointments(ctx, professionalID, from, to)
	if err != nil {
		return false, err
	}

	candidate := availability.Interval{Start: start, End: end}
	for _, appt := range existing {
		if excludeID != "" && appt.ID == excludeID {
			continue
		}
		if appt.Status == model.StatusCancelled {
			continue
		}
		if availability.Overlaps(candidate, availability.Interval{Start: appt.StartTime, End: appt.EndTime}) {
			return true, nil
		}
	}
	return false, nil
}
