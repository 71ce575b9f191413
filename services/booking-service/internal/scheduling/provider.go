package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Window is one day's opening hours for a professional, as absolute instants.
type Window struct {
	Open  time.Time
	Close time.Time
}

// Provider resolves working hours. The second result is false when the
// professional does not work on that day.
type Provider interface {
	WorkingHours(ctx context.Context, tenantID, professionalID string, day time.Time) (Window, bool, error)
}

type staticProvider struct {
	openMinute  int
	closeMinute int
	workdays    map[time.Weekday]bool
}

// NewStaticProvider serves the same daily window to every professional on the
// listed weekdays. Minutes are wall-clock minutes in the location of the day passed in.
func NewStaticProvider(openMinute, closeMinute int, workdays []time.Weekday) (Provider, error) {
	if openMinute < 0 || closeMinute > 24*60 || closeMinute <= openMinute {
		return nil, fmt.Errorf("invalid working hours %d-%d", openMinute, closeMinute)
	}
	days := make(map[time.Weekday]bool, len(workdays))
	for _, d := range workdays {
		days[d] = true
	}
	return &staticProvider{openMinute: openMinute, closeMinute: closeMinute, workdays: days}, nil
}

func (p *staticProvider) WorkingHours(_ context.Context, _, _ string, day time.Time) (Window, bool, error) {
	if !p.workdays[day.Weekday()] {
		return Window{}, false, nil
	}
	return Window{Open: atMinute(day, p.openMinute), Close: atMinute(day, p.closeMinute)}, true, nil
}

// atMinute builds wall-clock time so DST transition days keep their hours.
func atMinute(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, day.Location())
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseWeekdays reads a list such as "mon,tue,wed,thu,fri,sat".
func ParseWeekdays(raw []string) ([]time.Weekday, error) {
	var out []time.Weekday
	for _, part := range raw {
		key := strings.ToLower(strings.TrimSpace(part))
		if len(key) > 3 {
			key = key[:3]
		}
		d, ok := weekdayNames[key]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", part)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one working day is required")
	}
	return out, nil
}
