package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotwise/libs/httpx"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/idempotency"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/locking"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/scheduling"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/storage/memstore"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	_ = store.UpsertService(ctx, model.Service{ID: "svc", TenantID: "t1", DurationMinutes: 30, Active: true})
	_ = store.UpsertProfessional(ctx, model.Professional{ID: "p1", TenantID: "t1", Active: true})
	_ = store.UpsertProfessional(ctx, model.Professional{ID: "off", TenantID: "t1", Active: false})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := booking.Clock{Location: time.UTC, Now: func() time.Time {
		return time.Date(2030, 3, 4, 8, 0, 0, 0, time.UTC)
	}}
	hours, err := scheduling.NewStaticProvider(9*60, 19*60, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday})
	if err != nil {
		t.Fatal(err)
	}
	policies, err := policy.NewStaticProvider(policy.DefaultSlotPolicy)
	if err != nil {
		t.Fatal(err)
	}
	locker := locking.NewLocal()
	detector := booking.NewDetector(store, clock, logger)
	h := NewBookingHandler(Config{
		Manager: booking.NewManager(booking.ManagerConfig{
			Store: store, Detector: detector, Locker: locker, Clock: clock, Logger: logger,
		}),
		SlotFinder:  booking.NewSlotFinder(store, hours, policies, clock),
		Detector:    detector,
		Idempotency: idempotency.NewMemory(time.Hour),
		Locker:      locker,
		Location:    time.UTC,
		Logger:      logger,
	})
	mux := http.NewServeMux()
	h.Register(mux, nil)
	return mux
}

func do(t *testing.T, mux http.Handler, method, target string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(httpx.TenantHeader, "t1")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestBookAndList(t *testing.T) {
	mux := newTestMux(t)
	rr := do(t, mux, http.MethodPost, "/api/v1/public/book", map[string]string{
		"professional_id": "p1", "service_id": "svc", "client_name": "Ana", "start_time": "2030-03-05T10:00:00Z",
	}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[appointmentResponse](t, rr)
	if created.Status != "confirmed" || created.EndTime != "2030-03-05T10:30:00Z" {
		t.Fatalf("unexpected booking: %+v", created)
	}

	rr = do(t, mux, http.MethodGet, "/api/v1/appointments?professional_id=p1", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: %d", rr.Code)
	}
	items := decode[[]appointmentResponse](t, rr)
	if len(items) != 1 || items[0].AppointmentID != created.AppointmentID {
		t.Fatalf("unexpected list: %+v", items)
	}

	rr = do(t, mux, http.MethodGet, "/api/v1/appointments?appointment_id="+created.AppointmentID, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: %d", rr.Code)
	}
}

func TestAdminCreateIsPending(t *testing.T) {
	mux := newTestMux(t)
	rr := do(t, mux, http.MethodPost, "/api/v1/appointments", map[string]string{
		"professional_id": "p1", "service_id": "svc", "client_id": "c1",
		"start_time": "2030-03-05T10:00:00Z", "end_time": "2030-03-05T11:00:00Z",
	}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decode[appointmentResponse](t, rr); got.Status != "pending" {
		t.Fatalf("expected pending, got %s", got.Status)
	}
}

func TestErrorMapping(t *testing.T) {
	mux := newTestMux(t)
	first := do(t, mux, http.MethodPost, "/api/v1/public/book", map[string]string{
		"professional_id": "p1", "service_id": "svc", "client_id": "c1", "start_time": "2030-03-05T10:00:00Z",
	}, nil)
	if first.Code != http.StatusCreated {
		t.Fatalf("seed booking: %d", first.Code)
	}

	cases := []struct {
		name string
		body map[string]string
		want int
	}{
		{"past date", map[string]string{"professional_id": "p1", "service_id": "svc", "client_id": "c", "start_time": "2030-03-01T10:00:00Z"}, http.StatusBadRequest},
		{"bad time", map[string]string{"professional_id": "p1", "service_id": "svc", "client_id": "c", "start_time": "tomorrow"}, http.StatusBadRequest},
		{"end before start", map[string]string{"professional_id": "p1", "service_id": "svc", "client_id": "c", "start_time": "2030-03-05T12:00:00Z", "end_time": "2030-03-05T11:00:00Z"}, http.StatusBadRequest},
		{"missing service", map[string]string{"professional_id": "p1", "service_id": "nope", "client_id": "c", "start_time": "2030-03-05T12:00:00Z"}, http.StatusNotFound},
		{"conflict", map[string]string{"professional_id": "p1", "service_id": "svc", "client_id": "c", "start_time": "2030-03-05T10:15:00Z"}, http.StatusConflict},
		{"inactive", map[string]string{"professional_id": "off", "service_id": "svc", "client_id": "c", "start_time": "2030-03-05T12:00:00Z"}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, mux, http.MethodPost, "/api/v1/public/book", tc.body, nil)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestBusyCalendarIsUnavailable(t *testing.T) {
	h := NewBookingHandler(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	for _, err := range []error{
		fmt.Errorf("acquire calendar lock: %w", locking.ErrLockTimeout),
		fmt.Errorf("acquire calendar lock: %w", context.DeadlineExceeded),
	} {
		if status, _ := h.errorPayload(err); status != http.StatusServiceUnavailable {
			t.Fatalf("%v: expected 503, got %d", err, status)
		}
	}
}

func TestMissingTenant(t *testing.T) {
	mux := newTestMux(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestIdempotentBookReplaysFirstResponse(t *testing.T) {
	mux := newTestMux(t)
	body := map[string]string{"professional_id": "p1", "service_id": "svc", "client_id": "c1", "start_time": "2030-03-05T10:00:00Z"}
	hdr := map[string]string{"Idempotency-Key": "k-1"}

	first := do(t, mux, http.MethodPost, "/api/v1/public/book", body, hdr)
	second := do(t, mux, http.MethodPost, "/api/v1/public/book", body, hdr)
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected both 201, got %d and %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replay differs:\n%s\n%s", first.Body.String(), second.Body.String())
	}

	other := do(t, mux, http.MethodPost, "/api/v1/public/book", body, map[string]string{"Idempotency-Key": "k-2"})
	if other.Code != http.StatusConflict {
		t.Fatalf("a new key must hit the conflict check, got %d", other.Code)
	}
}

func TestLifecycleRoutes(t *testing.T) {
	mux := newTestMux(t)
	rr := do(t, mux, http.MethodPost, "/api/v1/appointments", map[string]string{
		"professional_id": "p1", "service_id": "svc", "client_id": "c1", "start_time": "2030-03-05T10:00:00Z",
	}, nil)
	id := decode[appointmentResponse](t, rr).AppointmentID

	rr = do(t, mux, http.MethodPost, "/api/v1/appointments/reschedule", map[string]string{
		"appointment_id": id, "start_time": "2030-03-05T14:00:00Z",
	}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("reschedule: %d %s", rr.Code, rr.Body.String())
	}
	moved := decode[appointmentResponse](t, rr)
	if moved.StartTime != "2030-03-05T14:00:00Z" || moved.Status != "confirmed" {
		t.Fatalf("unexpected reschedule: %+v", moved)
	}

	rr = do(t, mux, http.MethodGet, "/api/v1/appointments/conflicts?professional_id=p1&start_time=2030-03-05T14:15:00Z&end_time=2030-03-05T14:45:00Z", nil, nil)
	if rr.Code != http.StatusOK || !decode[conflictResponse](t, rr).Conflict {
		t.Fatalf("expected conflict: %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, mux, http.MethodGet, "/api/v1/appointments/conflicts?professional_id=p1&start_time=2030-03-05T14:15:00Z&end_time=2030-03-05T14:45:00Z&exclude_id="+id, nil, nil)
	if decode[conflictResponse](t, rr).Conflict {
		t.Fatal("excluded appointment must not conflict")
	}

	rr = do(t, mux, http.MethodPost, "/api/v1/appointments/status", map[string]any{"appointment_id": id, "status": "pending"}, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("confirmed -> pending must be rejected, got %d", rr.Code)
	}
	rr = do(t, mux, http.MethodPost, "/api/v1/appointments/status", map[string]any{"appointment_id": id, "status": "bogus"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown status should be 400, got %d", rr.Code)
	}

	rr = do(t, mux, http.MethodPost, "/api/v1/appointments/cancel", map[string]string{"appointment_id": id, "reason": "ill"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel: %d", rr.Code)
	}
	if got := decode[appointmentResponse](t, rr); got.Status != "cancelled" || !got.Terminal || got.CancelReason != "ill" || got.CancelledAt == "" {
		t.Fatalf("unexpected cancel: %+v", got)
	}

	rr = do(t, mux, http.MethodPost, "/api/v1/appointments/delete", map[string]string{"appointment_id": id}, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}
	rr = do(t, mux, http.MethodPost, "/api/v1/appointments/delete", map[string]string{"appointment_id": id}, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", rr.Code)
	}
}

func TestSlotsRoute(t *testing.T) {
	mux := newTestMux(t)
	do(t, mux, http.MethodPost, "/api/v1/public/book", map[string]string{
		"professional_id": "p1", "service_id": "svc", "client_id": "c1",
		"start_time": "2030-03-05T10:00:00Z", "end_time": "2030-03-05T11:00:00Z",
	}, nil)

	rr := do(t, mux, http.MethodGet, "/api/v1/public/slots?professional_id=p1&service_id=svc&date=2030-03-05", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("slots: %d %s", rr.Code, rr.Body.String())
	}
	slots := decode[[]slotItem](t, rr)
	if len(slots) == 0 || slots[0].Score < slots[len(slots)-1].Score {
		t.Fatalf("expected ranked slots, got %+v", slots)
	}
	var eleven, quarter int
	for _, s := range slots {
		switch s.StartTime {
		case "2030-03-05T11:00:00Z":
			eleven = s.Score
		case "2030-03-05T11:15:00Z":
			quarter = s.Score
		}
	}
	if eleven <= quarter {
		t.Fatalf("11:00 (%d) should outrank 11:15 (%d)", eleven, quarter)
	}

	rr = do(t, mux, http.MethodGet, "/api/v1/public/slots?professional_id=p1&service_id=svc&date=2030-03-05&mode=plain", nil, nil)
	plain := decode[[]slotItem](t, rr)
	if len(plain) == 0 || plain[0].StartTime != "2030-03-05T09:00:00Z" || plain[0].Score != 0 {
		t.Fatalf("unexpected plain slots: %+v", plain)
	}

	rr = do(t, mux, http.MethodGet, "/api/v1/public/slots?professional_id=p1&service_id=svc&date=2030-03-01", nil, nil)
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "date") {
		t.Fatalf("past date should be 400, got %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, mux, http.MethodGet, "/api/v1/public/slots?professional_id=p1&service_id=svc&date=03/05/2030", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad date should be 400, got %d", rr.Code)
	}
}
