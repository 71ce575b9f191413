package booking

import "errors"

var (
	// ErrNotFound is returned when a service, professional or appointment does not exist for the tenant.
	ErrNotFound = errors.New("booking: not found")
	// ErrConflict is returned when the requested interval collides with another booking.
	ErrConflict = errors.New("booking: time slot already booked")
	// ErrIllegalTransition is returned when a status change is not allowed from the current status.
	ErrIllegalTransition = errors.New("booking: illegal status transition")
	// ErrProfessionalInactive is returned when booking a deactivated professional.
	ErrProfessionalInactive = errors.New("booking: professional is not accepting bookings")

	ErrPastDate     = errors.New("date is before today")
	ErrInvalidRange = errors.New("end must be after start")
	ErrRequired     = errors.New("is required")
	ErrUnknown      = errors.New("is not a known value")
)

// ValidationError marks input that was rejected before any write. Callers
// surface it to the user as-is.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return "booking: " + e.Field + " " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
