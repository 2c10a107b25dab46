package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ivishnuraj/vmaker/internal/artifacts"
	"github.com/ivishnuraj/vmaker/internal/jobs"
	"github.com/ivishnuraj/vmaker/internal/orchestrator"
	"github.com/ivishnuraj/vmaker/internal/templates"
)

const (
	maxBodyBytes     = 1 << 20
	defaultJobsLimit = 50
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	r.Get("/ws", wsHandler(cfg))

	for _, route := range []struct {
		pattern string
		area    artifacts.Area
		param   string
	}{
		{"/downloads/{name}", artifacts.AreaDownloads, "name"},
		{"/video/{name}", artifacts.AreaDownloads, "name"},
		{"/clips/*", artifacts.AreaClips, "*"},
		{"/transcripts/{name}", artifacts.AreaTranscripts, "name"},
	} {
		h := artifactHandler(cfg, route.area, route.param)
		r.Get(route.pattern, h)
		r.Head(route.pattern, h)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", statusHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/job/{id}", getJobHandler(cfg))
		r.Get("/events", eventsHandler(cfg))
		r.Get("/templates", listTemplatesHandler(cfg))
		r.Get("/clips/{video}", listClipsHandler(cfg))
		r.Post("/session/cleanup", cleanupHandler(cfg))
		r.Post("/scheduler/pause", pauseHandler(cfg, true))
		r.Post("/scheduler/resume", pauseHandler(cfg, false))

		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(cfg.SubmitRate, cfg.SubmitBurst, cfg.Logger))

			r.Post("/download", submitHandler(cfg, (*orchestrator.Service).SubmitDownload))
			r.Post("/transcribe", submitHandler(cfg, (*orchestrator.Service).SubmitTranscribe))
			r.Post("/clip", submitHandler(cfg, (*orchestrator.Service).SubmitClip))
			r.Post("/template-clip", submitHandler(cfg, (*orchestrator.Service).SubmitTemplateClip))
			r.Post("/merge", submitHandler(cfg, (*orchestrator.Service).SubmitMerge))
			r.Post("/templates", createTemplateHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptimeSeconds(cfg.StartTime),
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			State: "idle",
			Jobs:  map[jobs.Status]int{},
		}

		if cfg.Jobs != nil {
			resp.Jobs = cfg.Jobs.Counts()
			for _, j := range cfg.Jobs.List(defaultJobsLimit) {
				if j.Status == jobs.StatusRunning && resp.ActiveJob == nil {
					active := j
					resp.ActiveJob = &active
				}
				if j.Status == jobs.StatusError && resp.LastError == "" {
					resp.LastError = j.Error
				}
			}
		}

		switch {
		case cfg.Scheduler != nil && cfg.Scheduler.IsPaused():
			resp.State = "paused"
		case resp.Jobs[jobs.StatusRunning] > 0 || resp.Jobs[jobs.StatusQueued] > 0:
			resp.State = "busy"
		case resp.LastError != "":
			resp.State = "error"
		}

		if cfg.Scheduler != nil {
			stats := cfg.Scheduler.Stats()
			resp.Scheduler = &stats
		}
		if cfg.Bus != nil {
			resp.Events = EventStatsResponse{
				Subscribers: cfg.Bus.SubscriberCount(),
				Dropped:     cfg.Bus.Dropped(),
				LastSeq:     cfg.Bus.LastSeq(),
			}
		}
		if cfg.Doctor != nil {
			if caps, err := cfg.Doctor.Get(r.Context()); err == nil {
				resp.Tools = caps
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

// submitHandler decodes a request body of type T and hands it to one of the
// Service submit methods.
func submitHandler[T any](cfg ServerConfig, submit func(*orchestrator.Service, T) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if err := decodeBody(w, r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		id, err := submit(cfg.Service, req)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, SubmitResponse{JobID: id})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultJobsLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				WriteError(w, http.StatusBadRequest, "invalid limit", "BAD_REQUEST")
				return
			}
			limit = n
		}
		WriteJSON(w, http.StatusOK, JobsResponse{Jobs: cfg.Service.ListJobs(limit)})
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Service.GetJob(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

func listTemplatesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := cfg.Templates.List()
		resp := TemplatesResponse{Templates: make([]TemplateEntry, len(list))}
		for i, t := range list {
			resp.Templates[i] = TemplateEntry{Name: t.Name, Data: t}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func createTemplateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateTemplateRequest
		if err := decodeBody(w, r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" || len(req.Data) == 0 {
			WriteError(w, http.StatusBadRequest, "name and data required", "BAD_REQUEST")
			return
		}
		if err := templates.ValidateName(name); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		tpl := templates.FromDocument(name, req.Data)
		if err := tpl.Validate(); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		if err := cfg.Templates.Save(tpl); err != nil {
			cfg.Logger.Error("failed to save template", "name", name, "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to save template", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusCreated, CreateTemplateResponse{Message: "template created", Name: name})
	}
}

func listClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := cfg.Clips.List(r.Context(), chi.URLParam(r, "video"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		WriteJSON(w, http.StatusOK, ClipsResponse{Clips: entries})
	}
}

func cleanupHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CleanupRequest
		if err := decodeBody(w, r, &req); err != nil {
			WriteJSON(w, http.StatusBadRequest, CleanupResponse{Error: "invalid request body"})
			return
		}
		deleteClips := req.DeleteClips == nil || *req.DeleteClips
		deleteVideo := req.DeleteVideo == nil || *req.DeleteVideo

		summary, err := cfg.Service.CleanupSession(req.SessionID, deleteClips, deleteVideo)
		var (
			nf   *orchestrator.NotFoundError
			verr *orchestrator.ValidationError
		)
		switch {
		case errors.As(err, &nf):
			WriteJSON(w, http.StatusNotFound, CleanupResponse{Error: err.Error()})
		case errors.As(err, &verr):
			WriteJSON(w, http.StatusBadRequest, CleanupResponse{Error: err.Error()})
		case err != nil:
			cfg.Logger.Error("session cleanup incomplete", "session_id", req.SessionID, "error", err)
			WriteJSON(w, http.StatusInternalServerError, CleanupResponse{Summary: &summary, Error: err.Error()})
		default:
			WriteJSON(w, http.StatusOK, CleanupResponse{OK: true, Summary: &summary})
		}
	}
}

func pauseHandler(cfg ServerConfig, pause bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pause {
			cfg.Scheduler.Pause()
		} else {
			cfg.Scheduler.Resume()
		}
		WriteJSON(w, http.StatusOK, cfg.Scheduler.Stats())
	}
}

func artifactHandler(cfg ServerConfig, area artifacts.Area, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, param)
		err := cfg.Artifacts.Serve(w, r, area, name)
		switch {
		case err == nil:
		case errors.Is(err, artifacts.ErrNotFound), errors.Is(err, artifacts.ErrUnknownArea):
			WriteError(w, http.StatusNotFound, "file not found", "NOT_FOUND")
		case errors.Is(err, artifacts.ErrInvalidPath):
			WriteError(w, http.StatusBadRequest, "invalid path", "BAD_REQUEST")
		default:
			cfg.Logger.Error("artifact error", "area", area, "name", name, "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to serve file", "INTERNAL_ERROR")
		}
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// writeServiceError maps orchestrator errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		verr *orchestrator.ValidationError
		nf   *orchestrator.NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	case errors.As(err, &nf):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, orchestrator.ErrQueueFull):
		WriteError(w, http.StatusServiceUnavailable, "job queue is full", "QUEUE_FULL")
	case errors.Is(err, orchestrator.ErrSchedulerStopped):
		WriteError(w, http.StatusServiceUnavailable, "scheduler stopped", "UNAVAILABLE")
	default:
		logger.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
	}
}
