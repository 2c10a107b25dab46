package api

import (
	"time"

	"github.com/ivishnuraj/vmaker/internal/clips"
	"github.com/ivishnuraj/vmaker/internal/events"
	"github.com/ivishnuraj/vmaker/internal/jobs"
	"github.com/ivishnuraj/vmaker/internal/media"
	"github.com/ivishnuraj/vmaker/internal/orchestrator"
	"github.com/ivishnuraj/vmaker/internal/sessions"
	"github.com/ivishnuraj/vmaker/internal/templates"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State     string              `json:"state"`
	LastError string              `json:"last_error,omitempty"`
	Jobs      map[jobs.Status]int `json:"jobs"`
	Scheduler *orchestrator.Stats `json:"scheduler,omitempty"`
	Events    EventStatsResponse  `json:"events"`
	Tools     *media.Capabilities `json:"tools,omitempty"`
	ActiveJob *jobs.Job           `json:"active_job,omitempty"`
}

type EventStatsResponse struct {
	Subscribers int   `json:"subscribers"`
	Dropped     int64 `json:"dropped"`
	LastSeq     int64 `json:"last_seq"`
}

type SubmitResponse struct {
	JobID string `json:"job_id"`
}

type JobsResponse struct {
	Jobs []jobs.Job `json:"jobs"`
}

type EventsResponse struct {
	Events  []events.Event `json:"events"`
	LastSeq int64          `json:"last_seq"`
}

type TemplateEntry struct {
	Name string             `json:"name"`
	Data templates.Template `json:"data"`
}

type TemplatesResponse struct {
	Templates []TemplateEntry `json:"templates"`
}

type CreateTemplateRequest struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data"`
}

type CreateTemplateResponse struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

type ClipsResponse struct {
	Clips []clips.Entry `json:"clips"`
}

// CleanupRequest deletes a session. Both flags default to true so the whole
// session tree goes.
type CleanupRequest struct {
	SessionID   string `json:"session_id"`
	DeleteClips *bool  `json:"delete_clips,omitempty"`
	DeleteVideo *bool  `json:"delete_video,omitempty"`
}

type CleanupResponse struct {
	OK      bool              `json:"ok"`
	Summary *sessions.Summary `json:"summary,omitempty"`
	Error   string            `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func uptimeSeconds(start time.Time) int64 {
	if start.IsZero() {
		return 0
	}
	return int64(time.Since(start).Seconds())
}
