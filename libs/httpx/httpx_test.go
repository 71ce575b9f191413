package httpx

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		order = append(order, "handler")
	}), mark("a"), mark("b"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "handler" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestWithRequestID(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if seen != "req-1" || rw.Header().Get(RequestIDHeader) != "req-1" {
		t.Fatalf("expected propagated request id, got %q", seen)
	}

	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(seen) != 36 {
		t.Fatalf("expected generated uuid, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad id\nwith newline")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "bad id\nwith newline" || len(seen) != 36 {
		t.Fatalf("expected unprintable id to be replaced, got %q", seen)
	}
}

func TestTenantID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?tenant_id=salon_query", nil)
	req.Header.Set(TenantHeader, "salon-1")
	if id, ok := TenantID(req); !ok || id != "salon-1" {
		t.Fatalf("expected header tenant, got %q %v", id, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/?tenant_id=salon_query", nil)
	if id, ok := TenantID(req); !ok || id != "salon_query" {
		t.Fatalf("expected query tenant, got %q %v", id, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/?tenant_id=drop%20table", nil)
	if _, ok := TenantID(req); ok {
		t.Fatalf("expected malformed tenant to be rejected")
	}

	if _, ok := TenantID(httptest.NewRequest(http.MethodGet, "/", nil)); ok {
		t.Fatalf("expected missing tenant to be rejected")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
		if rw.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rw.Code)
		}
	}
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rw.Code)
	}
	if rw.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	// Another tenant from the same address has its own budget.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TenantHeader, "salon-2")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200 for separate tenant, got %d", rw.Code)
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	now := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	if ok, _ := rl.allow("k"); !ok {
		t.Fatal("first request should pass")
	}
	if ok, retry := rl.allow("k"); ok || retry != time.Minute {
		t.Fatalf("second request should be limited for a minute, got %v %s", ok, retry)
	}
	now = now.Add(61 * time.Second)
	if ok, _ := rl.allow("k"); !ok {
		t.Fatal("request after the window should pass")
	}
}

func TestAccessLogIncludesTenant(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := WithAccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set(TenantHeader, "salon-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, `"tenant_id":"salon-1"`) || !strings.Contains(out, `"level":"ERROR"`) {
		t.Fatalf("unexpected access log %q", out)
	}
}

func TestWithCORSPreflight(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://book.example.com"},
		AllowedMethods: []string{"GET", "POST"},
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/public/slots", nil)
	req.Header.Set("Origin", "https://book.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rw.Code)
	}
	if rw.Header().Get("Access-Control-Allow-Origin") != "https://book.example.com" {
		t.Fatalf("missing allow-origin header")
	}
}
