package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

const (
	TopicStaffUpserted   = "business.staff.upserted.v1"
	TopicServiceUpserted = "business.service.upserted.v1"
)

// Catalog is the local replica of professionals and services.
type Catalog interface {
	UpsertProfessional(ctx context.Context, pro model.Professional) error
	UpsertService(ctx context.Context, svc model.Service) error
}

type staffUpserted struct {
	TenantID string `json:"tenant_id"`
	StaffID  string `json:"staff_id"`
	Name     string `json:"name"`
	IsActive *bool  `json:"is_active"`
}

type serviceUpserted struct {
	TenantID     string `json:"tenant_id"`
	ServiceID    string `json:"service_id"`
	Name         string `json:"name"`
	DurationMins int    `json:"duration_minutes"`
	IsActive     *bool  `json:"is_active"`
}

// CatalogHandler applies catalog upserts to the replica. Unknown topics are
// ignored.
func CatalogHandler(catalog Catalog) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		switch msg.Topic {
		case TopicStaffUpserted:
			var evt staffUpserted
			if err := json.Unmarshal(msg.Value, &evt); err != nil {
				return fmt.Errorf("%w: decode %s: %v", ErrMalformedEvent, msg.Topic, err)
			}
			evt.TenantID = strings.TrimSpace(evt.TenantID)
			evt.StaffID = strings.TrimSpace(evt.StaffID)
			if evt.TenantID == "" || evt.StaffID == "" {
				return fmt.Errorf("%w: %s: tenant_id and staff_id required", ErrMalformedEvent, msg.Topic)
			}
			return catalog.UpsertProfessional(ctx, model.Professional{
				ID:       evt.StaffID,
				TenantID: evt.TenantID,
				Name:     strings.TrimSpace(evt.Name),
				Active:   evt.IsActive == nil || *evt.IsActive,
			})
		case TopicServiceUpserted:
			var evt serviceUpserted
			if err := json.Unmarshal(msg.Value, &evt); err != nil {
				return fmt.Errorf("%w: decode %s: %v", ErrMalformedEvent, msg.Topic, err)
			}
			evt.TenantID = strings.TrimSpace(evt.TenantID)
			evt.ServiceID = strings.TrimSpace(evt.ServiceID)
			if evt.TenantID == "" || evt.ServiceID == "" {
				return fmt.Errorf("%w: %s: tenant_id and service_id required", ErrMalformedEvent, msg.Topic)
			}
			if evt.DurationMins <= 0 {
				return fmt.Errorf("%w: %s: duration_minutes must be positive", ErrMalformedEvent, msg.Topic)
			}
			return catalog.UpsertService(ctx, model.Service{
				ID:              evt.ServiceID,
				TenantID:        evt.TenantID,
				Name:            strings.TrimSpace(evt.Name),
				DurationMinutes: evt.DurationMins,
				Active:          evt.IsActive == nil || *evt.IsActive,
			})
		default:
			return nil
		}
	}
}
