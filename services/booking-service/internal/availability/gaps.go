package availability

import (
	"sort"
	"time"
)

const (
	baseScore     = 50
	flushBonus    = 25
	openingBonus  = 10
	reasonBefore  = "Perfect fit, no gap before"
	reasonAfter   = "Perfect fit, no gap after"
	reasonOpening = "Start of day"
	reasonDefault = "Available"
)

// Slot is a scored candidate start. End excludes the turnaround buffer.
type Slot struct {
	Start  time.Time
	End    time.Time
	Score  int
	Reason string
}

// Gaps walks busy intervals once, in ascending start order, and returns the
// free stretches inside [open, closing). Busy intervals may spill outside the
// window; they only push the cursor forward.
func Gaps(open, closing time.Time, busy []Interval) []Interval {
	if !closing.After(open) {
		return nil
	}

	var gaps []Interval
	cursor := open
	for _, b := range busy {
		if !cursor.Before(closing) {
			break
		}
		if b.Start.After(cursor) {
			end := b.Start
			if end.After(closing) {
				end = closing
			}
			gaps = append(gaps, Interval{Start: cursor, End: end})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(closing) {
		gaps = append(gaps, Interval{Start: cursor, End: closing})
	}
	return gaps
}

// Candidates enumerates starts every step from each gap's start while the
// service plus its buffer still fits, scoring each one. Starts flush against
// either gap boundary earn a bonus per side.
func Candidates(gaps []Interval, open time.Time, duration, buffer, step time.Duration) []Slot {
	if duration <= 0 || step <= 0 || buffer < 0 {
		return nil
	}
	span := duration + buffer

	var out []Slot
	for _, g := range gaps {
		for start := g.Start; !start.Add(span).After(g.End); start = start.Add(step) {
			out = append(out, score(start, duration, span, g, open))
		}
	}
	return out
}

func score(start time.Time, duration, span time.Duration, gap Interval, open time.Time) Slot {
	s := Slot{Start: start, End: start.Add(duration), Score: baseScore}
	if start.Equal(gap.Start) {
		s.Score += flushBonus
		s.Reason = reasonBefore
	}
	if start.Add(span).Equal(gap.End) {
		s.Score += flushBonus
		if s.Reason == "" {
			s.Reason = reasonAfter
		}
	}
	if start.Equal(open) {
		s.Score += openingBonus
		if s.Reason == "" {
			s.Reason = reasonOpening
		}
	}
	if s.Reason == "" {
		s.Reason = reasonDefault
	}
	return s
}

// Rank orders slots by score, highest first. Equal scores keep generation
// order, which is chronological.
func Rank(slots []Slot) []Slot {
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Score > slots[j].Score })
	return slots
}
