package storage

import (
	"context"

	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/model"
)

// UpsertService replaces the local replica of a catalog service.
func (r *BookingRepository) UpsertService(ctx context.Context, svc model.Service) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO services (tenant_id, id, name, duration_minutes, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, id)
		DO UPDATE SET name = EXCLUDED.name,
		              duration_minutes = EXCLUDED.duration_minutes,
		              active = EXCLUDED.active,
		              updated_at = now()
	`, svc.TenantID, svc.ID, svc.Name, svc.DurationMinutes, svc.Active)
	return err
}

// UpsertProfessional replaces the local replica of a staff member. Deactivation
// keeps existing appointments untouched.
func (r *BookingRepository) UpsertProfessional(ctx context.Context, pro model.Professional) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO professionals (tenant_id, id, name, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, id)
		DO UPDATE SET name = EXCLUDED.name,
		              active = EXCLUDED.active,
		              updated_at = now()
	`, pro.TenantID, pro.ID, pro.Name, pro.Active)
	return err
}
