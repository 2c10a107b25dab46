// Package jobs holds the in-memory registry of job records. The store is the
// single owner of every Job; callers read snapshots and write through Mutate.
package jobs

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type record struct {
	mu  sync.Mutex
	job Job
}

// Store is a concurrency-safe job registry. The registry map is guarded by an
// RWMutex; each record carries its own mutex so updates to different jobs never
// contend.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		records: make(map[string]*record),
		now:     time.Now,
	}
}

// Create inserts a queued job and returns its id.
func (s *Store) Create(kind Kind, params map[string]any) string {
	id := uuid.NewString()
	now := s.now()
	rec := &record{job: Job{
		ID:        id,
		Kind:      kind,
		Params:    cloneMap(params),
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}}
	if rec.job.Params == nil {
		rec.job.Params = map[string]any{}
	}

	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()
	return id
}

// Get returns a snapshot of the job, or ErrJobNotFound.
func (s *Store) Get(id string) (Job, error) {
	rec := s.lookup(id)
	if rec == nil {
		return Job{}, ErrJobNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.job.Clone(), nil
}

// Mutate applies fn to a working copy of the job under the record lock and
// commits the result. The store enforces the job invariants on commit:
//   - id, kind, params and created_at never change
//   - status only moves forward; other transitions are ignored
//   - progress is clamped to [0,100], rounded to 2 decimals and never decreases
//   - finished forces progress 100 and no error; error drops the result
//
// A terminal job is never changed. Unknown ids are a no-op and return false.
func (s *Store) Mutate(id string, fn func(*Job)) (Job, bool) {
	rec := s.lookup(id)
	if rec == nil {
		return Job{}, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	prev := rec.job
	if prev.Status.IsTerminal() {
		return prev.Clone(), true
	}

	next := prev.Clone()
	fn(&next)

	next.ID = prev.ID
	next.Kind = prev.Kind
	next.Params = prev.Params
	next.CreatedAt = prev.CreatedAt

	if next.Status != prev.Status && !prev.Status.CanTransition(next.Status) {
		next.Status = prev.Status
	}

	next.Progress = normalizeProgress(next.Progress)
	if next.Progress < prev.Progress {
		next.Progress = prev.Progress
	}

	switch next.Status {
	case StatusFinished:
		next.Progress = 100
		next.Error = ""
		if next.Result == nil {
			next.Result = map[string]any{}
		}
	case StatusError:
		next.Result = nil
		if next.Error == "" {
			next.Error = "unknown error"
		}
	default:
		next.Result = nil
		next.Error = ""
	}

	next.UpdatedAt = s.now()
	rec.job = next
	return next.Clone(), true
}

// SetStatus moves the job to status when the transition is allowed.
func (s *Store) SetStatus(id string, status Status) (Job, bool) {
	return s.Mutate(id, func(j *Job) { j.Status = status })
}

// SetProgress records progress for a running job.
func (s *Store) SetProgress(id string, progress float64) (Job, bool) {
	return s.Mutate(id, func(j *Job) { j.Progress = progress })
}

// Finish marks the job finished with result.
func (s *Store) Finish(id string, result map[string]any) (Job, bool) {
	return s.Mutate(id, func(j *Job) {
		j.Status = StatusFinished
		j.Result = result
	})
}

// Fail marks the job as errored with msg.
func (s *Store) Fail(id string, msg string) (Job, bool) {
	return s.Mutate(id, func(j *Job) {
		j.Status = StatusError
		j.Error = msg
	})
}

// List returns snapshots newest first. A limit <= 0 returns everything.
func (s *Store) List(limit int) []Job {
	s.mu.RLock()
	recs := make([]*record, 0, len(s.records))
	for _, r := range s.records {
		recs = append(recs, r)
	}
	s.mu.RUnlock()

	out := make([]Job, 0, len(recs))
	for _, r := range recs {
		r.mu.Lock()
		out = append(out, r.job.Clone())
		r.mu.Unlock()
	}

	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID > out[k].ID
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Counts returns the number of jobs in each status.
func (s *Store) Counts() map[Status]int {
	counts := map[Status]int{
		StatusQueued:   0,
		StatusRunning:  0,
		StatusFinished: 0,
		StatusError:    0,
	}
	for _, j := range s.List(0) {
		counts[j.Status]++
	}
	return counts
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) lookup(id string) *record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[id]
}

func normalizeProgress(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return math.Round(p*100) / 100
}
