package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/model"
)

func utc(day, hour, minute int) time.Time {
	return time.Date(2030, 3, day, hour, minute, 0, 0, time.UTC)
}

func TestDetectorSkipsCancelledAndExcluded(t *testing.T) {
	store := newFakeStore("t1")
	store.appts = []model.Appointment{
		{ID: "a", ProfessionalID: "p1", StartTime: utc(5, 10, 0), EndTime: utc(5, 11, 0), Status: model.StatusConfirmed},
		{ID: "b", ProfessionalID: "p1", StartTime: utc(5, 12, 0), EndTime: utc(5, 13, 0), Status: model.StatusCancelled},
	}
	d := NewDetector(store, Clock{Location: time.UTC}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	if !d.HasConflict(ctx, "t1", "p1", utc(5, 10, 30), utc(5, 11, 30), "") {
		t.Fatal("expected overlap with a")
	}
	if d.HasConflict(ctx, "t1", "p1", utc(5, 10, 30), utc(5, 11, 30), "a") {
		t.Fatal("a is excluded")
	}
	if d.HasConflict(ctx, "t1", "p1", utc(5, 12, 0), utc(5, 13, 0), "") {
		t.Fatal("cancelled appointments do not block")
	}
	if d.HasConflict(ctx, "t1", "p2", utc(5, 10, 0), utc(5, 11, 0), "") {
		t.Fatal("different professional")
	}
}

func TestDetectorFailsClosed(t *testing.T) {
	store := newFakeStore("t1")
	store.listErr = errors.New("connection reset")
	d := NewDetector(store, Clock{Location: time.UTC}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if !d.HasConflict(context.Background(), "t1", "p1", utc(5, 10, 0), utc(5, 11, 0), "") {
		t.Fatal("read failure must be reported as a conflict")
	}
	if _, err := d.Check(context.Background(), "t1", "p1", utc(5, 10, 0), utc(5, 11, 0), ""); err == nil {
		t.Fatal("Check should surface the read error")
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to model.Status
		ok       bool
	}{
		{model.StatusPending, model.StatusConfirmed, true},
		{model.StatusPending, model.StatusCancelled, true},
		{model.StatusPending, model.StatusCompleted, false},
		{model.StatusPending, model.StatusNoShow, false},
		{model.StatusConfirmed, model.StatusCompleted, true},
		{model.StatusConfirmed, model.StatusCancelled, true},
		{model.StatusConfirmed, model.StatusNoShow, true},
		{model.StatusConfirmed, model.StatusPending, false},
		{model.StatusCompleted, model.StatusCancelled, false},
		{model.StatusCancelled, model.StatusConfirmed, false},
		{model.StatusNoShow, model.StatusConfirmed, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.ok)
		}
	}
	for _, s := range []model.Status{model.StatusCompleted, model.StatusCancelled, model.StatusNoShow} {
		if !Terminal(s) {
			t.Fatalf("%s should be terminal", s)
		}
	}
}

func TestClockDayRules(t *testing.T) {
	lisbon, err := time.LoadLocation("Europe/Lisbon")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2030, 7, 10, 0, 30, 0, 0, lisbon)
	c := Clock{Location: lisbon, Now: func() time.Time { return now }}

	// 23:45 UTC on the 9th is 00:45 on the 10th in Lisbon (UTC+1 in summer).
	if c.BeforeToday(time.Date(2030, 7, 9, 23, 45, 0, 0, time.UTC)) {
		t.Fatal("instant on the business day must not be past")
	}
	if !c.BeforeToday(time.Date(2030, 7, 9, 22, 0, 0, 0, time.UTC)) {
		t.Fatal("23:00 on the 9th in Lisbon is yesterday")
	}

	from, to := c.dayRange(time.Date(2030, 7, 10, 23, 0, 0, 0, lisbon), time.Date(2030, 7, 11, 1, 0, 0, 0, lisbon))
	if !from.Equal(time.Date(2030, 7, 10, 0, 0, 0, 0, lisbon)) || !to.Equal(time.Date(2030, 7, 11, 1, 0, 0, 0, lisbon)) {
		t.Fatalf("unexpected day range %s..%s", from, to)
	}
}

func TestDetectorRequiresIDs(t *testing.T) {
	store := newFakeStore("t1")
	d := NewDetector(store, Clock{Location: time.UTC}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	for _, ids := range [][2]string{{"", "p1"}, {"t1", ""}} {
		if _, err := d.Check(ctx, ids[0], ids[1], utc(5, 10, 0), utc(5, 11, 0), ""); !errors.Is(err, ErrRequired) || !IsValidation(err) {
			t.Fatalf("%q/%q: expected validation error, got %v", ids[0], ids[1], err)
		}
		if !d.HasConflict(ctx, ids[0], ids[1], utc(5, 10, 0), utc(5, 11, 0), "") {
			t.Fatalf("%q/%q: missing ids must deny the booking", ids[0], ids[1])
		}
	}
	if store.readCount() != 0 {
		t.Fatalf("expected no store reads, got %d", store.readCount())
	}
}
