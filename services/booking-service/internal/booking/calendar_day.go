package booking

import "time"

// Clock fixes the business timezone and the source of "now" for every
// date-granularity rule.
type Clock struct {
	Location *time.Location
	Now      func() time.Time
}

func (c Clock) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c Clock) now() time.Time {
	if c.Now == nil {
		return time.Now().In(c.loc())
	}
	return c.Now().In(c.loc())
}

// DayStart returns local midnight of the calendar day containing t.
func (c Clock) DayStart(t time.Time) time.Time {
	t = t.In(c.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc())
}

// Today is local midnight of the current business day.
func (c Clock) Today() time.Time {
	return c.DayStart(c.now())
}

// BeforeToday reports whether t falls on a calendar day earlier than today.
// Earlier instants of today are not past for this rule.
func (c Clock) BeforeToday(t time.Time) bool {
	return c.DayStart(t).Before(c.Today())
}

// dayRange covers the calendar day of start, stretched to end if the interval
// runs past midnight.
func (c Clock) dayRange(start, end time.Time) (time.Time, time.Time) {
	from := c.DayStart(start)
	to := from.AddDate(0, 0, 1)
	if end.After(to) {
		to = end
	}
	return from, to
}
