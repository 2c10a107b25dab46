package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ivishnuraj/vmaker/internal/artifacts"
	"github.com/ivishnuraj/vmaker/internal/clips"
	"github.com/ivishnuraj/vmaker/internal/events"
	"github.com/ivishnuraj/vmaker/internal/jobs"
	"github.com/ivishnuraj/vmaker/internal/logging"
	"github.com/ivishnuraj/vmaker/internal/media"
	"github.com/ivishnuraj/vmaker/internal/orchestrator"
	"github.com/ivishnuraj/vmaker/internal/sessions"
	"github.com/ivishnuraj/vmaker/internal/templates"
)

type testEnv struct {
	cfg     ServerConfig
	router  http.Handler
	dataDir string
}

// newTestEnv wires real stores around a scheduler that is never started, so
// submitted jobs stay queued.
func newTestEnv(t *testing.T, queueSize int) *testEnv {
	t.Helper()

	dataDir := t.TempDir()
	logger := logging.NewNop()
	dir := func(name string) string {
		p := filepath.Join(dataDir, name)
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
		return p
	}

	store := jobs.NewStore()
	bus := events.NewBus(100)
	sess := sessions.NewManager(dir("sessions"), logger)
	tpls := templates.NewStore(dir("templates"), logger)
	sched := orchestrator.NewScheduler(store, bus, sess, logger, orchestrator.SchedulerOptions{Workers: 1, QueueSize: queueSize})

	cfg := ServerConfig{
		Service:   orchestrator.NewService(store, sched, bus, tpls, sess, logger),
		Scheduler: sched,
		Jobs:      store,
		Bus:       bus,
		Templates: tpls,
		Clips:     clips.NewLibrary(dir("clips"), nil),
		Artifacts: artifacts.NewServer(map[artifacts.Area]string{
			artifacts.AreaDownloads:   dir("downloads"),
			artifacts.AreaClips:       dir("clips"),
			artifacts.AreaTranscripts: dir("transcripts"),
		}, logger),
		Logger:    logger,
		StartTime: time.Now().Add(-90 * time.Second),
		Version:   "test",
	}
	return &testEnv{cfg: cfg, router: NewRouter(cfg), dataDir: dataDir}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) writeFile(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(e.dataDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	return body
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t, 4)

	rr := env.do(http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("unexpected body: %v", body)
	}
	if up, _ := body["uptime_s"].(float64); up < 90 {
		t.Errorf("uptime_s = %v, want >= 90", body["uptime_s"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestSubmitRoutes(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"download", "/api/download", `{"url":"https://example.com/v"}`, http.StatusAccepted, ""},
		{"download missing url", "/api/download", `{"url":"  "}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"download bad session", "/api/download", `{"url":"u","session_id":"../x"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"malformed body", "/api/download", `{"url":`, http.StatusBadRequest, "BAD_REQUEST"},
		{"transcribe", "/api/transcribe", `{"filename":"v.mp4"}`, http.StatusAccepted, ""},
		{"transcribe traversal", "/api/transcribe", `{"filename":"../v.mp4"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"clip", "/api/clip", `{"filename":"v.mp4","start":1,"end":3,"text":"Hi"}`, http.StatusAccepted, ""},
		{"clip bad output name", "/api/clip", `{"filename":"v.mp4","start":1,"end":3,"output_name":"a/b"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"template clip inline", "/api/template-clip", `{"filename":"v.mp4","template_json":{"duration":4}}`, http.StatusAccepted, ""},
		{"template clip unknown", "/api/template-clip", `{"filename":"v.mp4","template_name":"nope"}`, http.StatusNotFound, "NOT_FOUND"},
		{"template clip no template", "/api/template-clip", `{"filename":"v.mp4"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"merge", "/api/merge", `{"clips":["v/a.mp4","v/b.mp4"],"output_name":"final"}`, http.StatusAccepted, ""},
		{"merge without clips", "/api/merge", `{"clips":[],"output_name":"final"}`, http.StatusBadRequest, "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 4)

			rr := env.do(http.MethodPost, tt.path, tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("status code = %d, want %d (body %s)", rr.Code, tt.wantCode, rr.Body.String())
			}
			body := decodeJSONBody(t, rr)
			if tt.wantErr != "" {
				if body["code"] != tt.wantErr {
					t.Errorf("code = %v, want %s", body["code"], tt.wantErr)
				}
				if env.cfg.Jobs.Len() != 0 {
					t.Errorf("rejected submission created %d jobs", env.cfg.Jobs.Len())
				}
				return
			}

			id, _ := body["job_id"].(string)
			job, err := env.cfg.Jobs.Get(id)
			if err != nil {
				t.Fatalf("job %q not stored: %v", id, err)
			}
			if job.Status != jobs.StatusQueued {
				t.Errorf("job status = %s, want queued", job.Status)
			}
		})
	}
}

func TestSubmit_QueueFull(t *testing.T) {
	env := newTestEnv(t, 1)

	if rr := env.do(http.MethodPost, "/api/download", `{"url":"a"}`); rr.Code != http.StatusAccepted {
		t.Fatalf("first submit status = %d", rr.Code)
	}
	rr := env.do(http.MethodPost, "/api/download", `{"url":"b"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("second submit status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	if body := decodeJSONBody(t, rr); body["code"] != "QUEUE_FULL" {
		t.Errorf("code = %v, want QUEUE_FULL", body["code"])
	}

	counts := env.cfg.Jobs.Counts()
	if counts[jobs.StatusQueued] != 1 || counts[jobs.StatusError] != 1 {
		t.Errorf("counts = %v, want one queued and one error", counts)
	}
}

func TestSubmit_SchedulerStopped(t *testing.T) {
	env := newTestEnv(t, 4)
	env.cfg.Scheduler.Stop()

	rr := env.do(http.MethodPost, "/api/download", `{"url":"a"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	if body := decodeJSONBody(t, rr); body["code"] != "UNAVAILABLE" {
		t.Errorf("code = %v, want UNAVAILABLE", body["code"])
	}
}

func TestJobRoutes(t *testing.T) {
	env := newTestEnv(t, 8)

	var ids []string
	for _, url := range []string{"a", "b", "c"} {
		rr := env.do(http.MethodPost, "/api/download", `{"url":"`+url+`"}`)
		ids = append(ids, decodeJSONBody(t, rr)["job_id"].(string))
	}

	rr := env.do(http.MethodGet, "/api/job/"+ids[0], "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get job status = %d", rr.Code)
	}
	job := decodeJSONBody(t, rr)
	if job["id"] != ids[0] || job["kind"] != "download" || job["status"] != "queued" {
		t.Errorf("unexpected job: %v", job)
	}
	meta, _ := job["meta"].(map[string]interface{})
	if meta["url"] != "a" {
		t.Errorf("meta.url = %v, want a", meta["url"])
	}

	rr = env.do(http.MethodGet, "/api/job/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", rr.Code)
	}

	rr = env.do(http.MethodGet, "/api/jobs?limit=2", "")
	var list JobsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Jobs) != 2 {
		t.Errorf("len(jobs) = %d, want 2", len(list.Jobs))
	}

	if rr := env.do(http.MethodGet, "/api/jobs?limit=x", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rr.Code)
	}
}

type stubProber struct {
	caps *media.Capabilities
}

func (p *stubProber) Probe(ctx context.Context) (*media.Capabilities, error) {
	return p.caps, nil
}

func TestStatusHandler(t *testing.T) {
	env := newTestEnv(t, 4)
	env.cfg.Doctor = media.NewCachedDoctor(&stubProber{caps: &media.Capabilities{
		Tools:    map[string]media.ToolInfo{"ffmpeg": {Available: true, Version: "6.1"}},
		Summary:  media.Summary{Available: 1, Total: 1, AllOK: true},
		ProbedAt: time.Now(),
	}}, env.cfg.Logger)

	rr := httptest.NewRecorder()
	statusHandler(env.cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	body := decodeJSONBody(t, rr)
	if body["state"] != "idle" {
		t.Errorf("state = %v, want idle", body["state"])
	}
	tools, ok := body["tools"].(map[string]interface{})
	if !ok {
		t.Fatal("tools missing from response")
	}
	if summary, _ := tools["summary"].(map[string]interface{}); summary["all_ok"] != true {
		t.Errorf("tools.summary = %v", tools["summary"])
	}

	env.do(http.MethodPost, "/api/download", `{"url":"a"}`)
	body = decodeJSONBody(t, env.do(http.MethodGet, "/api/status", ""))
	if body["state"] != "busy" {
		t.Errorf("state = %v, want busy", body["state"])
	}
	jobCounts, _ := body["jobs"].(map[string]interface{})
	if jobCounts["queued"] != float64(1) {
		t.Errorf("jobs.queued = %v, want 1", jobCounts["queued"])
	}
	evts, _ := body["events"].(map[string]interface{})
	if evts["last_seq"] != float64(1) {
		t.Errorf("events.last_seq = %v, want 1", evts["last_seq"])
	}

	if rr := env.do(http.MethodPost, "/api/scheduler/pause", ""); rr.Code != http.StatusOK {
		t.Fatalf("pause status = %d", rr.Code)
	}
	body = decodeJSONBody(t, env.do(http.MethodGet, "/api/status", ""))
	if body["state"] != "paused" {
		t.Errorf("state = %v, want paused", body["state"])
	}
	env.do(http.MethodPost, "/api/scheduler/resume", "")
	if env.cfg.Scheduler.IsPaused() {
		t.Error("scheduler still paused after resume")
	}
}

func TestStatusHandler_LastError(t *testing.T) {
	env := newTestEnv(t, 4)
	id := env.cfg.Jobs.Create(jobs.KindClip, nil)
	env.cfg.Jobs.Fail(id, "invalid start/end")

	body := decodeJSONBody(t, env.do(http.MethodGet, "/api/status", ""))
	if body["state"] != "error" || body["last_error"] != "invalid start/end" {
		t.Errorf("state = %v, last_error = %v", body["state"], body["last_error"])
	}
	if _, ok := body["tools"]; ok {
		t.Error("tools should be omitted without a doctor")
	}
}

func TestTemplateRoutes(t *testing.T) {
	env := newTestEnv(t, 4)

	rr := env.do(http.MethodPost, "/api/templates", `{"name":"promo","data":{"duration":5,"text":"Hi","mode":"full_width"}}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d (body %s)", rr.Code, rr.Body.String())
	}
	if _, err := os.Stat(filepath.Join(env.dataDir, "templates", "promo.json")); err != nil {
		t.Errorf("template file not written: %v", err)
	}

	var list TemplatesResponse
	if err := json.Unmarshal(env.do(http.MethodGet, "/api/templates", "").Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Templates) != 1 || list.Templates[0].Name != "promo" || list.Templates[0].Data.Duration != 5 {
		t.Errorf("templates = %+v", list.Templates)
	}

	bad := []struct {
		name string
		body string
	}{
		{"missing data", `{"name":"x"}`},
		{"missing name", `{"data":{"duration":3}}`},
		{"traversal name", `{"name":"../x","data":{"duration":3}}`},
		{"negative duration", `{"name":"x","data":{"duration":-1}}`},
		{"unknown mode", `{"name":"x","data":{"mode":"sideways"}}`},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if rr := env.do(http.MethodPost, "/api/templates", tt.body); rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}

	rr = env.do(http.MethodPost, "/api/template-clip", `{"filename":"v.mp4","template_name":"promo"}`)
	if rr.Code != http.StatusAccepted {
		t.Errorf("template clip with saved template status = %d", rr.Code)
	}
}

func TestListClipsHandler(t *testing.T) {
	env := newTestEnv(t, 4)
	env.writeFile(t, "clips/v/clip_1.mp4", "xx")
	env.writeFile(t, "clips/v/notes.txt", "ignored")

	rr := env.do(http.MethodGet, "/api/clips/v.mp4", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp ClipsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Clips) != 1 || resp.Clips[0].Filename != "clip_1.mp4" || resp.Clips[0].URL != "/clips/v/clip_1.mp4" {
		t.Errorf("clips = %+v", resp.Clips)
	}

	rr = env.do(http.MethodGet, "/api/clips/other.mp4", "")
	if body := decodeJSONBody(t, rr); len(body["clips"].([]interface{})) != 0 {
		t.Errorf("expected empty clip list, got %v", body["clips"])
	}
}

func TestCleanupHandler(t *testing.T) {
	env := newTestEnv(t, 4)
	env.writeFile(t, "sessions/s1/a.mp4", "video")
	env.writeFile(t, "sessions/s1/b.txt", "text")

	rr := env.do(http.MethodPost, "/api/session/cleanup", `{"session_id":"s1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rr.Code, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	if body["ok"] != true {
		t.Errorf("ok = %v, want true", body["ok"])
	}
	summary, _ := body["summary"].(map[string]interface{})
	if summary["files_removed"] != float64(2) {
		t.Errorf("summary = %v", summary)
	}
	if _, err := os.Stat(filepath.Join(env.dataDir, "sessions", "s1")); !os.IsNotExist(err) {
		t.Errorf("session dir still present: %v", err)
	}

	rr = env.do(http.MethodPost, "/api/session/cleanup", `{"session_id":"s1"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second cleanup status = %d, want 404", rr.Code)
	}
	if body := decodeJSONBody(t, rr); body["ok"] != false {
		t.Errorf("ok = %v, want false", body["ok"])
	}

	rr = env.do(http.MethodPost, "/api/session/cleanup", `{"session_id":"../etc"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("traversal cleanup status = %d, want 400", rr.Code)
	}
}

func TestCleanupHandler_KeepVideos(t *testing.T) {
	env := newTestEnv(t, 4)
	env.writeFile(t, "sessions/s2/a.mp4", "video")
	env.writeFile(t, "sessions/s2/b.txt", "text")

	rr := env.do(http.MethodPost, "/api/session/cleanup", `{"session_id":"s2","delete_clips":false,"delete_video":false}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if _, err := os.Stat(filepath.Join(env.dataDir, "sessions", "s2", "a.mp4")); err != nil {
		t.Errorf("video removed: %v", err)
	}
}

func TestArtifactRoutes(t *testing.T) {
	env := newTestEnv(t, 4)
	env.writeFile(t, "clips/v/a.mp4", "0123456789")
	env.writeFile(t, "downloads/d.mp4", "download")
	env.writeFile(t, "transcripts/d.txt", "[0.00] hi")

	req := httptest.NewRequest(http.MethodGet, "/clips/v/a.mp4", nil)
	req.Header.Set("Range", "bytes=2-4")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusPartialContent || rr.Body.String() != "234" {
		t.Errorf("range: status = %d body = %q", rr.Code, rr.Body.String())
	}

	tests := []struct {
		method   string
		path     string
		wantCode int
		wantBody string
	}{
		{http.MethodGet, "/downloads/d.mp4", http.StatusOK, "download"},
		{http.MethodGet, "/video/d.mp4", http.StatusOK, "download"},
		{http.MethodGet, "/transcripts/d.txt", http.StatusOK, "[0.00] hi"},
		{http.MethodHead, "/downloads/d.mp4", http.StatusOK, ""},
		{http.MethodGet, "/downloads/missing.mp4", http.StatusNotFound, ""},
		{http.MethodGet, "/clips/v", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := env.do(tt.method, tt.path, "")
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK && rr.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rr.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestEventsHandler(t *testing.T) {
	env := newTestEnv(t, 4)
	for i := 0; i < 3; i++ {
		env.cfg.Bus.Publish(events.Event{Type: events.TypeLog, Payload: map[string]any{"message": "m"}})
	}

	rr := env.do(http.MethodGet, "/api/events?since=1", "")
	body := decodeJSONBody(t, rr)
	list, _ := body["events"].([]interface{})
	if len(list) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(list))
	}
	first, _ := list[0].(map[string]interface{})
	if first["seq"] != float64(2) || first["message"] != "m" {
		t.Errorf("first event = %v", first)
	}
	if body["last_seq"] != float64(3) {
		t.Errorf("last_seq = %v, want 3", body["last_seq"])
	}

	if rr := env.do(http.MethodGet, "/api/events?since=-1", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("negative since status = %d, want 400", rr.Code)
	}
}
