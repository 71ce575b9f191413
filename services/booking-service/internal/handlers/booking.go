package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotwise/libs/httpx"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/idempotency"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/locking"
	"github.com/md-rashed-zaman/slotwise/services/booking-service/internal/model"
)

type BookingHandler struct {
	manager  *booking.Manager
	finder   *booking.SlotFinder
	detector *booking.Detector
	idem     idempotency.Store
	locker   booking.Locker
	location *time.Location
	logger   *slog.Logger
}

type Config struct {
	Manager     *booking.Manager
	SlotFinder  *booking.SlotFinder
	Detector    *booking.Detector
	Idempotency idempotency.Store
	Locker      booking.Locker
	Location    *time.Location
	Logger      *slog.Logger
}

func NewBookingHandler(cfg Config) *BookingHandler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &BookingHandler{
		manager:  cfg.Manager,
		finder:   cfg.SlotFinder,
		detector: cfg.Detector,
		idem:     cfg.Idempotency,
		locker:   cfg.Locker,
		location: cfg.Location,
		logger:   cfg.Logger,
	}
}

// Register mounts the booking routes on mux.
func (h *BookingHandler) Register(mux *http.ServeMux, public httpx.Middleware) {
	if public == nil {
		public = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("/api/v1/public/slots", public(http.HandlerFunc(h.Slots)))
	mux.Handle("/api/v1/public/book", public(http.HandlerFunc(h.Book)))
	mux.HandleFunc("/api/v1/appointments", h.Appointments)
	mux.HandleFunc("/api/v1/appointments/reschedule", h.Reschedule)
	mux.HandleFunc("/api/v1/appointments/status", h.UpdateStatus)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/appointments/delete", h.Delete)
	mux.HandleFunc("/api/v1/appointments/conflicts", h.Conflicts)
}

type createRequest struct {
	ProfessionalID string `json:"professional_id"`
	ServiceID      string `json:"service_id"`
	ClientID       string `json:"client_id"`
	ClientName     string `json:"client_name"`
	ClientEmail    string `json:"client_email"`
	ClientPhone    string `json:"client_phone"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
}

type rescheduleRequest struct {
	AppointmentID  string `json:"appointment_id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	ProfessionalID string `json:"professional_id"`
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
	Override      bool   `json:"override"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type deleteRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type appointmentResponse struct {
	AppointmentID  string `json:"appointment_id"`
	ProfessionalID string `json:"professional_id"`
	ServiceID      string `json:"service_id"`
	ClientID       string `json:"client_id,omitempty"`
	ClientName     string `json:"client_name,omitempty"`
	ClientEmail    string `json:"client_email,omitempty"`
	ClientPhone    string `json:"client_phone,omitempty"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Status         string `json:"status"`
	Terminal       bool   `json:"terminal"`
	CancelledAt    string `json:"cancelled_at,omitempty"`
	CancelReason   string `json:"cancel_reason,omitempty"`
	CreatedAt      string `json:"created_at"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Score     int    `json:"score,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type conflictResponse struct {
	Conflict bool `json:"conflict"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// Slots lists scored slots for a day; mode=plain returns the unscored starts.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := httpx.TenantID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tenant_id required"})
		return
	}
	q := r.URL.Query()
	professionalID := strings.TrimSpace(q.Get("professional_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if professionalID == "" || serviceID == "" || dateStr == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "professional_id, service_id, and date are required"})
		return
	}
	day, err := time.ParseInLocation("2006-01-02", dateStr, h.location)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid date", Field: "date"})
		return
	}

	resp := []slotItem{}
	if q.Get("mode") == "plain" {
		starts, err := h.finder.OpenStarts(r.Context(), tenantID, serviceID, professionalID, day)
		if err != nil {
			h.writeError(w, err)
			return
		}
		for _, s := range starts {
			resp = append(resp, slotItem{StartTime: formatTime(s.Start), EndTime: formatTime(s.End)})
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	slots, err := h.finder.FindSlots(r.Context(), tenantID, serviceID, professionalID, day)
	if err != nil {
		h.writeError(w, err)
		return
	}
	for _, s := range slots {
		resp = append(resp, slotItem{StartTime: formatTime(s.Start), EndTime: formatTime(s.End), Score: s.Score, Reason: s.Reason})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Book is the self-service entry point. Bookings start confirmed.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := httpx.TenantID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tenant_id required"})
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" || h.idem == nil {
		status, body := h.create(r.Context(), tenantID, req, booking.OriginSelfService)
		writeJSON(w, status, body)
		return
	}

	ctx := r.Context()
	storeKey := idempotency.Key(tenantID, key)
	if h.locker != nil {
		unlock, err := h.locker.Lock(ctx, "idem:"+storeKey)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "idempotency key busy, retry"})
			return
		}
		defer unlock()
	}
	if rec, found, err := h.idem.Get(ctx, storeKey); err != nil {
		h.logger.Error("idempotency lookup failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read idempotency key"})
		return
	} else if found {
		writeRaw(w, rec.StatusCode, rec.Body)
		return
	}

	status, payload := h.create(ctx, tenantID, req, booking.OriginSelfService)
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	// Server faults are not recorded so the client can retry with the same key.
	if status < http.StatusInternalServerError {
		if err := h.idem.Put(ctx, storeKey, idempotency.Response{StatusCode: status, Body: body}); err != nil {
			h.logger.Error("failed to finalize idempotency key", "err", err)
		}
	}
	writeRaw(w, status, body)
}

// Appointments handles the admin calendar: GET lists (or fetches one by
// appointment_id), POST creates a pending appointment.
func (h *BookingHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httpx.TenantID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tenant_id required"})
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.list(w, r, tenantID)
	case http.MethodPost:
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
			return
		}
		status, body := h.create(r.Context(), tenantID, req, booking.OriginAdmin)
		writeJSON(w, status, body)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.postWithTenant(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	start, end, err := parseInterval(req.StartTime, req.EndTime)
	if err != nil {
		h.writeError(w, err)
		return
	}
	appt, err := h.manager.Reschedule(r.Context(), booking.RescheduleInput{
		TenantID:       tenantID,
		AppointmentID:  strings.TrimSpace(req.AppointmentID),
		Start:          start,
		End:            end,
		ProfessionalID: strings.TrimSpace(req.ProfessionalID),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.postWithTenant(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	appt, err := h.manager.UpdateStatus(r.Context(), booking.UpdateStatusInput{
		TenantID:      tenantID,
		AppointmentID: strings.TrimSpace(req.AppointmentID),
		Status:        model.Status(strings.TrimSpace(req.Status)),
		Reason:        req.Reason,
		Override:      req.Override,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.postWithTenant(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	appt, err := h.manager.Cancel(r.Context(), tenantID, strings.TrimSpace(req.AppointmentID), req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.postWithTenant(w, r)
	if !ok {
		return
	}
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	if err := h.manager.Delete(r.Context(), tenantID, strings.TrimSpace(req.AppointmentID)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Conflicts answers whether an interval is free on a professional's calendar.
func (h *BookingHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenantID, ok := httpx.TenantID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tenant_id required"})
		return
	}
	q := r.URL.Query()
	professionalID := strings.TrimSpace(q.Get("professional_id"))
	if professionalID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "professional_id required", Field: "professional_id"})
		return
	}
	start, end, err := parseInterval(q.Get("start_time"), q.Get("end_time"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if end.IsZero() || !end.After(start) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "end_time must be after start_time", Field: "end_time"})
		return
	}
	conflict := h.detector.HasConflict(r.Context(), tenantID, professionalID, start, end, strings.TrimSpace(q.Get("exclude_id")))
	writeJSON(w, http.StatusOK, conflictResponse{Conflict: conflict})
}

func (h *BookingHandler) create(ctx context.Context, tenantID string, req createRequest, origin booking.Origin) (int, any) {
	start, end, err := parseInterval(req.StartTime, req.EndTime)
	if err != nil {
		return h.errorPayload(err)
	}
	appt, err := h.manager.Create(ctx, booking.CreateInput{
		TenantID:       tenantID,
		ProfessionalID: strings.TrimSpace(req.ProfessionalID),
		ServiceID:      strings.TrimSpace(req.ServiceID),
		ClientID:       strings.TrimSpace(req.ClientID),
		ClientName:     req.ClientName,
		ClientEmail:    req.ClientEmail,
		ClientPhone:    req.ClientPhone,
		Start:          start,
		End:            end,
		Origin:         origin,
	})
	if err != nil {
		return h.errorPayload(err)
	}
	return http.StatusCreated, toResponse(appt)
}

func (h *BookingHandler) list(w http.ResponseWriter, r *http.Request, tenantID string) {
	q := r.URL.Query()
	if id := strings.TrimSpace(q.Get("appointment_id")); id != "" {
		appt, err := h.manager.Get(r.Context(), tenantID, id)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toResponse(appt))
		return
	}

	filter := booking.ListFilter{
		ProfessionalID: strings.TrimSpace(q.Get("professional_id")),
		Status:         model.Status(strings.TrimSpace(q.Get("status"))),
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			filter.Limit = n
		}
	}
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid from", Field: "from"})
			return
		}
		filter.From = from
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid to", Field: "to"})
			return
		}
		filter.To = to
	}

	appts, err := h.manager.List(r.Context(), tenantID, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toResponse(appt))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) postWithTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}
	tenantID, ok := httpx.TenantID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "tenant_id required"})
		return "", false
	}
	return tenantID, true
}

type requestError struct {
	field string
	msg   string
}

func (e *requestError) Error() string { return e.msg }

// parseInterval reads RFC3339 start/end values. An empty end is returned as
// the zero time so the service duration applies.
func parseInterval(rawStart, rawEnd string) (time.Time, time.Time, error) {
	rawStart = strings.TrimSpace(rawStart)
	rawEnd = strings.TrimSpace(rawEnd)
	if rawStart == "" {
		return time.Time{}, time.Time{}, &requestError{field: "start_time", msg: "start_time required"}
	}
	start, err := time.Parse(time.RFC3339, rawStart)
	if err != nil {
		return time.Time{}, time.Time{}, &requestError{field: "start_time", msg: "invalid start_time"}
	}
	if rawEnd == "" {
		return start, time.Time{}, nil
	}
	end, err := time.Parse(time.RFC3339, rawEnd)
	if err != nil {
		return time.Time{}, time.Time{}, &requestError{field: "end_time", msg: "invalid end_time"}
	}
	return start, end, nil
}

func (h *BookingHandler) writeError(w http.ResponseWriter, err error) {
	status, body := h.errorPayload(err)
	writeJSON(w, status, body)
}

func (h *BookingHandler) errorPayload(err error) (int, errorResponse) {
	var reqErr *requestError
	var valErr *booking.ValidationError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, errorResponse{Error: reqErr.msg, Field: reqErr.field}
	case errors.As(err, &valErr):
		return http.StatusBadRequest, errorResponse{Error: valErr.Error(), Field: valErr.Field}
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: err.Error()}
	case errors.Is(err, booking.ErrConflict), errors.Is(err, booking.ErrIllegalTransition):
		return http.StatusConflict, errorResponse{Error: err.Error()}
	case errors.Is(err, booking.ErrProfessionalInactive):
		return http.StatusUnprocessableEntity, errorResponse{Error: err.Error()}
	case errors.Is(err, locking.ErrLockTimeout), errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("calendar busy", "err", err)
		return http.StatusServiceUnavailable, errorResponse{Error: "calendar is busy, retry"}
	default:
		h.logger.Error("booking request failed", "err", err)
		return http.StatusInternalServerError, errorResponse{Error: "internal error"}
	}
}

func toResponse(appt model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID:  appt.ID,
		ProfessionalID: appt.ProfessionalID,
		ServiceID:      appt.ServiceID,
		ClientID:       appt.ClientID,
		ClientName:     appt.ClientName,
		ClientEmail:    appt.ClientEmail,
		ClientPhone:    appt.ClientPhone,
		StartTime:      formatTime(appt.StartTime),
		EndTime:        formatTime(appt.EndTime),
		Status:         string(appt.Status),
		Terminal:       booking.Terminal(appt.Status),
		CancelReason:   appt.CancelReason,
		CreatedAt:      formatTime(appt.CreatedAt),
	}
	if appt.CancelledAt != nil {
		resp.CancelledAt = formatTime(*appt.CancelledAt)
	}
	return resp
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
