package jobs

import (
	"errors"
	"time"
)

// Kind identifies the handler a job is dispatched to.
type Kind string

const (
	KindDownload     Kind = "download"
	KindTranscribe   Kind = "transcribe"
	KindClip         Kind = "clip"
	KindTemplateClip Kind = "template_clip"
	KindMerge        Kind = "merge"
)

// Kinds lists every kind a handler exists for.
var Kinds = []Kind{KindDownload, KindTranscribe, KindClip, KindTemplateClip, KindMerge}

type Status string

const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusError    Status = "error"
)

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusError
}

// CanTransition reports whether moving from s to next is a forward step of
// the job state machine.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusRunning || next == StatusError
	case StatusRunning:
		return next == StatusFinished || next == StatusError
	default:
		return false
	}
}

var ErrJobNotFound = errors.New("job not found")

// Job is a snapshot of one unit of asynchronous media work.
type Job struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Params    map[string]any `json:"meta"`
	Status    Status         `json:"status"`
	Progress  float64        `json:"progress"`
	Result    map[string]any `json:"result"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a copy of j that shares no maps or slices with it.
func (j Job) Clone() Job {
	j.Params = cloneMap(j.Params)
	j.Result = cloneMap(j.Result)
	return j
}

// String returns the string parameter named key, or "" when it is absent or
// not a string.
func (j Job) String(key string) string {
	s, _ := j.Params[key].(string)
	return s
}

// Float returns the numeric parameter named key.
func (j Job) Float(key string) (float64, bool) {
	switch v := j.Params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Bool returns the boolean parameter named key, false when absent.
func (j Job) Bool(key string) bool {
	b, _ := j.Params[key].(bool)
	return b
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
