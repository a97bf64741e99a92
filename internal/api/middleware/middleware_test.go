package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/api/photos":                "/api/photos",
		"/api/photos/abc123":         "/api/photos/{hash}",
		"/api/photos/abc/extra":      "/api/*",
		"/api/nothing":               "/api/*",
		"/api/maintenance/reconcile": "/api/maintenance/reconcile",
		"/photos/abc.png":            "/photos/{file}",
		"/metrics":                   "/metrics",
		"/":                          "/*",
		"/bundle.js":                 "/*",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("%s: ожидалось %s, получено %s", in, want, got)
		}
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/photos/x", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("невалидная запись лога: %v (%s)", err, buf.String())
	}
	if entry["level"] != "WARN" {
		t.Errorf("уровень: ожидался WARN, получен %v", entry["level"])
	}
	if entry["status"] != float64(404) || entry["bytes"] != float64(7) || entry["path"] != "/api/photos/x" {
		t.Errorf("неожиданные поля: %v", entry)
	}
}

func TestRequestLogger_ProbesAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	h := RequestLogger(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if buf.Len() != 0 {
		t.Errorf("запросы проб не должны логироваться на INFO: %s", buf.String())
	}
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(2)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/photos", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("ожидалось [200 200 429], получено %v", codes)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(0)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("лимит отключён, получен %d", rec.Code)
		}
	}
}

func TestMetrics_PassesThrough(t *testing.T) {
	h := Metrics()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/photos", nil))
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("ответ изменён middleware: %d %q", rec.Code, rec.Body.String())
	}
}
