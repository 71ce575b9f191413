package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

type Appointment struct {
	ID             string
	TenantID       string
	ProfessionalID string
	ServiceID      string
	ClientID       string
	ClientName     string
	ClientEmail    string
	ClientPhone    string
	StartTime      time.Time
	EndTime        time.Time
	Status         Status
	CancelledAt    *time.Time
	CancelReason   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Service is the catalog entry a booking is made for. Only the duration
// matters for scheduling.
type Service struct {
	ID              string
	TenantID        string
	Name            string
	DurationMinutes int
	Active          bool
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Professional owns a calendar. Inactive professionals keep their history but
// cannot take new bookings.
type Professional struct {
	ID       string
	TenantID string
	Name     string
	Active   bool
}
