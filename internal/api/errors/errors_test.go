package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		msg    string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad") }, http.StatusBadRequest, "bad"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "Photo not found") }, http.StatusNotFound, "Photo not found"},
		{"conflict", ReconcileInProgress, http.StatusConflict, "Reconciliation is already running"},
		{"rate limit", TooManyRequests, http.StatusTooManyRequests, "Too many requests, try again later"},
		{"internal", func(w http.ResponseWriter) { InternalError(w, "File is too large") }, http.StatusInternalServerError, "File is too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			if rec.Code != tt.status {
				t.Errorf("ожидался статус %d, получен %d", tt.status, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type: получено %q", ct)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("невалидный JSON: %v", err)
			}
			if body["error"] != tt.msg {
				t.Errorf("error: ожидалось %q, получено %q", tt.msg, body["error"])
			}
		})
	}
}
