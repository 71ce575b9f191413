package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/booking"
)

// Sink records booking events in the outbox table for the publisher to relay.
type Sink struct {
	db   Execer
	repo *Repository
	now  func() time.Time
}

func NewSink(db Execer, repo *Repository) *Sink {
	return &Sink{db: db, repo: repo, now: time.Now}
}

func (s *Sink) Emit(ctx context.Context, evt booking.Event) error {
	out, err := FromBooking(evt, s.now())
	if err != nil {
		return err
	}
	return s.repo.Insert(ctx, s.db, out)
}

// LogSink writes events to the log only. It stands in for the outbox when the
// service runs without Postgres.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, evt booking.Event) error {
	s.logger.Info("appointment event",
		"event_type", evt.Type,
		"appointment_id", evt.Appointment.ID,
		"tenant_id", evt.Appointment.TenantID,
		"status", evt.Appointment.Status,
	)
	return nil
}
