package orchestrator

import (
	"log/slog"

	"github.com/ivishnuraj/vmaker/internal/events"
	"github.com/ivishnuraj/vmaker/internal/jobs"
	"github.com/ivishnuraj/vmaker/internal/logging"
	"github.com/ivishnuraj/vmaker/internal/sessions"
)

// Run is a handler's view of the job it executes. Every state change goes
// through the store and is published in the order it was made.
type Run struct {
	job       jobs.Job
	store     *jobs.Store
	bus       *events.Bus
	sessions  *sessions.Manager
	logger    *slog.Logger
	artifacts []string
}

func newRun(job jobs.Job, store *jobs.Store, bus *events.Bus, sess *sessions.Manager, logger *slog.Logger) *Run {
	return &Run{job: job, store: store, bus: bus, sessions: sess, logger: logger}
}

// Job returns the snapshot taken when the job was dequeued.
func (r *Run) Job() jobs.Job {
	return r.job
}

func (r *Run) ID() string {
	return r.job.ID
}

func (r *Run) Logger() *slog.Logger {
	return r.logger
}

// Progress records a completion percentage and publishes it, first as the
// given sub-event (when non-empty) and then as a job update.
func (r *Run) Progress(percent float64, sub events.Type) {
	job, ok := r.store.SetProgress(r.job.ID, percent)
	if !ok {
		return
	}
	if sub != "" {
		r.Emit(sub, map[string]any{"progress": job.Progress})
	}
	r.publish(job)
}

// Emit publishes a sub-event for the job.
func (r *Run) Emit(t events.Type, payload map[string]any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.Event{Type: t, JobID: r.job.ID, Payload: payload})
}

// Artifact marks path to be copied into the job's session once it succeeds.
func (r *Run) Artifact(path string) {
	r.artifacts = append(r.artifacts, path)
}

func (r *Run) begin() bool {
	job, ok := r.store.SetStatus(r.job.ID, jobs.StatusRunning)
	if !ok || job.Status != jobs.StatusRunning {
		return false
	}
	r.job = job
	r.logger.Info("job started")
	r.publish(job)
	return true
}

func (r *Run) finish(result map[string]any) {
	r.copyToSession()
	job, ok := r.store.Finish(r.job.ID, result)
	if !ok {
		return
	}
	r.logger.Info("job finished")
	r.publish(job)
}

func (r *Run) fail(err error) {
	job, ok := r.store.Fail(r.job.ID, err.Error())
	if !ok {
		return
	}
	r.logger.Error("job failed", "error", err)
	r.publish(job)
}

// copyToSession copies recorded artifacts into the session directory named
// by the job's session_id. Failures are logged and never fail the job.
func (r *Run) copyToSession() {
	sessionID := r.job.String("session_id")
	if sessionID == "" || r.sessions == nil || len(r.artifacts) == 0 {
		return
	}
	logger := logging.WithSessionID(r.logger, sessionID)
	for _, path := range r.artifacts {
		if _, err := r.sessions.CopyArtifact(sessionID, path); err != nil {
			logger.Warn("failed to copy artifact into session", "path", logging.SanitizePath(path), "error", err)
			continue
		}
		logger.Debug("artifact copied into session", "path", logging.SanitizePath(path))
	}
}

func (r *Run) publish(job jobs.Job) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.Event{
		Type:    events.TypeJobUpdate,
		JobID:   job.ID,
		Payload: map[string]any{"job": job},
	})
}
