package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ivishnuraj/vmaker/internal/logging"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(RequestIDKey).(string)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	got := rr.Header().Get("X-Request-ID")
	if len(got) != 8 {
		t.Fatalf("X-Request-ID = %q, want 8 characters", got)
	}
	if seen != got {
		t.Errorf("context request id = %q, header = %q", seen, got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(logging.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	body := decodeJSONBody(t, rr)
	if body["code"] != "INTERNAL_ERROR" {
		t.Errorf("code = %v, want INTERNAL_ERROR", body["code"])
	}
}

func TestLoggingMiddleware_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, "info", "json")

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(logger))
	r.Get("/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/teapot", nil))

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "http request" || entry["path"] != "/teapot" {
		t.Errorf("unexpected log entry: %v", entry)
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Errorf("logged status = %v, want %d", entry["status"], http.StatusTeapot)
	}
	if entry["request_id"] != rr.Header().Get("X-Request-ID") {
		t.Errorf("logged request_id = %v, header = %q", entry["request_id"], rr.Header().Get("X-Request-ID"))
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	tests := []struct {
		name  string
		limit float64
		burst int
		want  []int
	}{
		{"disabled", 0, 0, []int{202, 202, 202}},
		{"burst of two", 0.001, 2, []int{202, 202, 429}},
		{"burst floor is one", 0.001, 0, []int{202, 429}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimitMiddleware(tt.limit, tt.burst, logging.NewNop())(ok)
			for i, want := range tt.want {
				rr := httptest.NewRecorder()
				h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/download", nil))
				if rr.Code != want {
					t.Fatalf("request %d: status = %d, want %d", i, rr.Code, want)
				}
				if want == http.StatusTooManyRequests {
					if rr.Header().Get("Retry-After") == "" {
						t.Error("Retry-After header missing")
					}
					if body := decodeJSONBody(t, rr); body["code"] != "RATE_LIMITED" {
						t.Errorf("code = %v, want RATE_LIMITED", body["code"])
					}
				}
			}
		})
	}
}

func TestRouter_RateLimitOnlyCoversSubmissions(t *testing.T) {
	env := newTestEnv(t, 16)
	env.cfg.SubmitRate = 0.001
	env.cfg.SubmitBurst = 1
	env.router = NewRouter(env.cfg)

	if rr := env.do(http.MethodPost, "/api/download", `{"url":"a"}`); rr.Code != http.StatusAccepted {
		t.Fatalf("first submit status = %d", rr.Code)
	}
	if rr := env.do(http.MethodPost, "/api/clip", `{"filename":"v.mp4","start":0,"end":1}`); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second submit status = %d, want 429", rr.Code)
	}
	for i := 0; i < 3; i++ {
		if rr := env.do(http.MethodGet, "/api/jobs", ""); rr.Code != http.StatusOK {
			t.Fatalf("jobs listing status = %d, want 200", rr.Code)
		}
	}
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, http.StatusNotFound, "job not found: x", "NOT_FOUND")

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"code":"NOT_FOUND"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}
