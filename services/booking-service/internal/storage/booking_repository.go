package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/slotwise/libs/db"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/model"
)

// BookingRepository stores calendars in Postgres. Overlap is also enforced by
// the appointments_no_overlap exclusion constraint.
type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Tenant(tenantID string) booking.Calendar {
	return &pgCalendar{pool: r.pool, tenantID: tenantID}
}

const appointmentColumns = `id, tenant_id, professional_id, service_id, client_id, client_name, client_email, client_phone,
	start_time, end_time, status, cancelled_at, cancel_reason, created_at, updated_at`

type pgCalendar struct {
	pool     *db.Pool
	tenantID string
}

func (c *pgCalendar) ListAppointments(ctx context.Context, professionalID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1
			AND professional_id = $2
			AND status <> 'cancelled'
			AND start_time < $4
			AND end_time > $3
		ORDER BY start_time ASC
	`, c.tenantID, professionalID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (c *pgCalendar) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND id = $2
	`, c.tenantID, id)
	appt, err := scanAppointment(row)
	return appt, mapError(err)
}

func (c *pgCalendar) InsertAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	row := c.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(id, tenant_id, professional_id, service_id, client_id, client_name, client_email, client_phone,
			 start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+appointmentColumns,
		appt.ID, c.tenantID, appt.ProfessionalID, appt.ServiceID, appt.ClientID, appt.ClientName,
		appt.ClientEmail, appt.ClientPhone, appt.StartTime, appt.EndTime, string(appt.Status))
	created, err := scanAppointment(row)
	return created, mapError(err)
}

func (c *pgCalendar) UpdateAppointment(ctx context.Context, id string, upd booking.AppointmentUpdate) (model.Appointment, error) {
	sets, args := updateAssignments(upd)
	if len(sets) == 0 {
		return c.GetAppointment(ctx, id)
	}
	args = append(args, c.tenantID, id)
	query := fmt.Sprintf(`
		UPDATE appointments
		SET %s, updated_at = now()
		WHERE tenant_id = $%d AND id = $%d
		RETURNING %s
	`, strings.Join(sets, ", "), len(args)-1, len(args), appointmentColumns)

	updated, err := scanAppointment(c.pool.QueryRow(ctx, query, args...))
	return updated, mapError(err)
}

func (c *pgCalendar) DeleteAppointment(ctx context.Context, id string) error {
	tag, err := c.pool.Exec(ctx, `DELETE FROM appointments WHERE tenant_id = $1 AND id = $2`, c.tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (c *pgCalendar) ListByTenant(ctx context.Context, filter booking.ListFilter) ([]model.Appointment, error) {
	where, args := listConditions(c.tenantID, filter)
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	rows, err := c.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM appointments
		WHERE %s
		ORDER BY start_time ASC
		LIMIT $%d
	`, appointmentColumns, strings.Join(where, " AND "), len(args)), args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (c *pgCalendar) GetService(ctx context.Context, id string) (model.Service, error) {
	var svc model.Service
	err := c.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, duration_minutes, active
		FROM services
		WHERE tenant_id = $1 AND id = $2 AND active
	`, c.tenantID, id).Scan(&svc.ID, &svc.TenantID, &svc.Name, &svc.DurationMinutes, &svc.Active)
	return svc, mapError(err)
}

func (c *pgCalendar) GetProfessional(ctx context.Context, id string) (model.Professional, error) {
	var pro model.Professional
	err := c.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, active
		FROM professionals
		WHERE tenant_id = $1 AND id = $2
	`, c.tenantID, id).Scan(&pro.ID, &pro.TenantID, &pro.Name, &pro.Active)
	return pro, mapError(err)
}

// updateAssignments renders the SET list for the non-nil fields of upd with
// placeholders starting at $1.
func updateAssignments(upd booking.AppointmentUpdate) ([]string, []any) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.ProfessionalID != nil {
		add("professional_id", *upd.ProfessionalID)
	}
	if upd.StartTime != nil {
		add("start_time", *upd.StartTime)
	}
	if upd.EndTime != nil {
		add("end_time", *upd.EndTime)
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.CancelledAt != nil {
		add("cancelled_at", *upd.CancelledAt)
	}
	if upd.CancelReason != nil {
		add("cancel_reason", *upd.CancelReason)
	}
	return sets, args
}

func listConditions(tenantID string, filter booking.ListFilter) ([]string, []any) {
	args := []any{tenantID}
	where := []string{"tenant_id = $1"}
	add := func(cond string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ProfessionalID != "" {
		add("professional_id = $%d", filter.ProfessionalID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if !filter.From.IsZero() {
		add("end_time > $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("start_time < $%d", filter.To)
	}
	return where, args
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.TenantID,
		&appt.ProfessionalID,
		&appt.ServiceID,
		&appt.ClientID,
		&appt.ClientName,
		&appt.ClientEmail,
		&appt.ClientPhone,
		&appt.StartTime,
		&appt.EndTime,
		&status,
		&cancelledAt,
		&appt.CancelReason,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.Status(status)
	appt.CancelledAt = cancelledAt
	return appt, nil
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case IsNotFound(err):
		return booking.ErrNotFound
	case IsConflict(err):
		return booking.ErrConflict
	default:
		return err
	}
}

// IsConflict reports an exclusion-constraint violation.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
