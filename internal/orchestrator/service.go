package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/ivishnuraj/vmaker/internal/events"
	"github.com/ivishnuraj/vmaker/internal/jobs"
	"github.com/ivishnuraj/vmaker/internal/overlay"
	"github.com/ivishnuraj/vmaker/internal/sessions"
	"github.com/ivishnuraj/vmaker/internal/templates"
)

type DownloadRequest struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id,omitempty"`
}

type TranscribeRequest struct {
	Filename  string `json:"filename"`
	SessionID string `json:"session_id,omitempty"`
}

type ClipRequest struct {
	Filename   string  `json:"filename"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text,omitempty"`
	Flip       bool    `json:"flip,omitempty"`
	OutputName string  `json:"output_name,omitempty"`
	SessionID  string  `json:"session_id,omitempty"`
}

// TemplateClipRequest names a stored template or carries an inline one.
// Set fields override the template on a private copy.
type TemplateClipRequest struct {
	Filename     string            `json:"filename"`
	TemplateName string            `json:"template_name,omitempty"`
	TemplateJSON map[string]any    `json:"template_json,omitempty"`
	Start        *float64          `json:"start,omitempty"`
	End          *float64          `json:"end,omitempty"`
	Duration     *float64          `json:"duration,omitempty"`
	Overlays     []overlay.Overlay `json:"overlays,omitempty"`
	Flip         *bool             `json:"flip,omitempty"`
	Resolution   *string           `json:"resolution,omitempty"`
	OutputName   string            `json:"output_name,omitempty"`
	SessionID    string            `json:"session_id,omitempty"`
}

type MergeRequest struct {
	Clips      []string `json:"clips"`
	OutputName string   `json:"output_name"`
	SessionID  string   `json:"session_id,omitempty"`
}

// Service is the job submission surface. Submissions return as soon as the
// job is queued.
type Service struct {
	store     *jobs.Store
	scheduler *Scheduler
	bus       *events.Bus
	templates *templates.Store
	sessions  *sessions.Manager
	logger    *slog.Logger
}

func NewService(store *jobs.Store, scheduler *Scheduler, bus *events.Bus, tpls *templates.Store, sess *sessions.Manager, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		scheduler: scheduler,
		bus:       bus,
		templates: tpls,
		sessions:  sess,
		logger:    logger,
	}
}

func (s *Service) SubmitDownload(req DownloadRequest) (string, error) {
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return "", invalid("url", "is required")
	}
	if err := checkSession(req.SessionID); err != nil {
		return "", err
	}
	return s.submit(jobs.KindDownload, map[string]any{
		"url":        url,
		"session_id": req.SessionID,
	})
}

func (s *Service) SubmitTranscribe(req TranscribeRequest) (string, error) {
	if err := checkFilename(req.Filename); err != nil {
		return "", err
	}
	if err := checkSession(req.SessionID); err != nil {
		return "", err
	}
	return s.submit(jobs.KindTranscribe, map[string]any{
		"filename":   req.Filename,
		"session_id": req.SessionID,
	})
}

// SubmitClip queues a clip job. An empty or inverted time range is reported
// by the job itself, before any transcoder runs.
func (s *Service) SubmitClip(req ClipRequest) (string, error) {
	if err := checkFilename(req.Filename); err != nil {
		return "", err
	}
	if err := checkSession(req.SessionID); err != nil {
		return "", err
	}
	outputName, err := normalizeOutputName(req.OutputName)
	if err != nil {
		return "", err
	}
	return s.submit(jobs.KindClip, map[string]any{
		"filename":    req.Filename,
		"start":       req.Start,
		"end":         req.End,
		"text":        req.Text,
		"flip":        req.Flip,
		"output_name": outputName,
		"session_id":  req.SessionID,
	})
}

// SubmitTemplateClip resolves the template before creating a job, so an
// unknown template name never produces one.
func (s *Service) SubmitTemplateClip(req TemplateClipRequest) (string, error) {
	if err := checkFilename(req.Filename); err != nil {
		return "", err
	}
	if err := checkSession(req.SessionID); err != nil {
		return "", err
	}
	tpl, err := s.resolveTemplate(req)
	if err != nil {
		return "", err
	}
	return s.submit(jobs.KindTemplateClip, map[string]any{
		"filename":   req.Filename,
		"template":   tpl,
		"session_id": req.SessionID,
	})
}

func (s *Service) SubmitMerge(req MergeRequest) (string, error) {
	if len(req.Clips) == 0 {
		return "", invalid("clips", "at least one clip is required")
	}
	for _, c := range req.Clips {
		if _, err := within(".", c); err != nil {
			return "", invalid("clips", "invalid clip name %q", c)
		}
	}
	if strings.TrimSpace(req.OutputName) == "" {
		return "", invalid("output_name", "is required")
	}
	outputName, err := normalizeOutputName(req.OutputName)
	if err != nil {
		return "", err
	}
	if err := checkSession(req.SessionID); err != nil {
		return "", err
	}
	return s.submit(jobs.KindMerge, map[string]any{
		"clips":       append([]string(nil), req.Clips...),
		"output_name": outputName,
		"session_id":  req.SessionID,
	})
}

func (s *Service) GetJob(id string) (jobs.Job, error) {
	job, err := s.store.Get(id)
	if err != nil {
		return jobs.Job{}, &NotFoundError{What: "job", Name: id, Err: err}
	}
	return job, nil
}

func (s *Service) ListJobs(limit int) []jobs.Job {
	return s.store.List(limit)
}

// CleanupSession deletes a session's artifacts synchronously.
func (s *Service) CleanupSession(sessionID string, deleteClips, deleteVideo bool) (sessions.Summary, error) {
	summary, err := s.sessions.Cleanup(sessionID, deleteClips, deleteVideo)
	if errors.Is(err, sessions.ErrSessionNotFound) {
		return summary, &NotFoundError{What: "session", Name: sessionID, Err: err}
	}
	if err != nil && sessions.ValidateID(sessionID) != nil {
		return summary, invalid("session_id", "%v", err)
	}
	return summary, err
}

func (s *Service) submit(kind jobs.Kind, params map[string]any) (string, error) {
	id := s.store.Create(kind, params)
	if job, err := s.store.Get(id); err == nil {
		s.publish(job)
	}

	if err := s.scheduler.Enqueue(id); err != nil {
		if job, ok := s.store.Fail(id, err.Error()); ok {
			s.publish(job)
		}
		s.logger.Warn("job rejected", "job_id", id, "kind", kind, "error", err)
		return id, fmt.Errorf("enqueue job %s: %w", id, err)
	}
	s.logger.Info("job queued", "job_id", id, "kind", kind)
	return id, nil
}

func (s *Service) publish(job jobs.Job) {
	s.bus.Publish(events.Event{
		Type:    events.TypeJobUpdate,
		JobID:   job.ID,
		Payload: map[string]any{"job": job},
	})
}

func (s *Service) resolveTemplate(req TemplateClipRequest) (templates.Template, error) {
	var tpl templates.Template
	switch {
	case req.TemplateName != "":
		found, err := s.templates.Get(req.TemplateName)
		if errors.Is(err, templates.ErrTemplateNotFound) {
			return tpl, &NotFoundError{What: "template", Name: req.TemplateName, Err: err}
		}
		if err != nil {
			return tpl, invalid("template_name", "%v", err)
		}
		tpl = found
	case req.TemplateJSON != nil:
		tpl = templates.FromDocument("", req.TemplateJSON)
	default:
		return tpl, &ValidationError{Message: "template_name or template_json required"}
	}

	overrides := templates.Overrides{
		Start:      req.Start,
		End:        req.End,
		Duration:   req.Duration,
		Overlays:   req.Overlays,
		Flip:       req.Flip,
		Resolution: req.Resolution,
	}
	if req.OutputName != "" {
		name, err := normalizeOutputName(req.OutputName)
		if err != nil {
			return tpl, err
		}
		overrides.OutputName = &name
	}
	tpl = tpl.Apply(overrides)

	if req.End != nil && *req.End <= tpl.Start {
		return tpl, &ValidationError{Message: "invalid start/end"}
	}
	if req.Resolution != nil && *req.Resolution != "" && *req.Resolution != "original" {
		if _, _, ok := overlay.ParseResolution(*req.Resolution); !ok {
			return tpl, invalid("resolution", "expected WxH or W:H, got %q", *req.Resolution)
		}
	}
	if err := tpl.Validate(); err != nil {
		return tpl, invalid("template", "%v", err)
	}
	return tpl, nil
}

func checkFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("filename", "is required")
	}
	_, err := within(".", name)
	return err
}

func checkSession(id string) error {
	if id == "" {
		return nil
	}
	if err := sessions.ValidateID(id); err != nil {
		return invalid("session_id", "%v", err)
	}
	return nil
}

// normalizeOutputName NFC-normalizes a client-supplied file name and rejects
// anything that is not a bare name.
func normalizeOutputName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return "", nil
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." || strings.ContainsRune(name, 0) {
		return "", invalid("output_name", "must be a plain file name, got %q", name)
	}
	return name, nil
}
