// Package events fans job progress out to connected subscribers.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Type classifies messages pushed to subscribers.
type Type string

const (
	TypeJobUpdate         Type = "job_update"
	TypeDownloadProgress  Type = "download_progress"
	TypeClipProgress      Type = "clip_progress"
	TypeTemplateProgress  Type = "template_progress"
	TypeMergeProgress     Type = "merge_progress"
	TypeTranscriptSegment Type = "transcript_segment"
	TypeLog               Type = "log"
)

// Event is a sequenced message. Payload keys are flattened next to the
// envelope fields when encoded.
type Event struct {
	Seq       int64          `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Type      Type           `json:"type"`
	JobID     string         `json:"job_id,omitempty"`
	Payload   map[string]any `json:"-"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Payload)+4)
	for k, v := range e.Payload {
		out[k] = v
	}
	out["seq"] = e.Seq
	out["timestamp"] = e.Timestamp
	out["type"] = e.Type
	if e.JobID != "" {
		out["job_id"] = e.JobID
	}
	return json.Marshal(out)
}

// Subscriber receives events on a buffered channel. Done is closed when the
// subscriber is removed from the bus, either explicitly or because it fell
// behind.
type Subscriber struct {
	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Subscriber) C() <-chan Event {
	return s.ch
}

func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		close(s.ch)
	})
}

// Bus delivers each published event to every live subscriber and keeps a
// bounded history for incremental polling.
//
// Sends happen under the publish lock and never block: a subscriber whose
// buffer is full is dropped. Holding the lock across the fan-out is what keeps
// every subscriber's view in publish order.
type Bus struct {
	mu          sync.Mutex
	nextSeq     int64
	subscribers map[*Subscriber]struct{}
	history     []Event
	maxHistory  int
	dropped     int64
}

// NewBus creates a bus retaining up to maxHistory events for Since.
func NewBus(maxHistory int) *Bus {
	if maxHistory <= 0 {
		maxHistory = 500
	}
	return &Bus{
		subscribers: make(map[*Subscriber]struct{}),
		history:     make([]Event, 0, maxHistory),
		maxHistory:  maxHistory,
	}
}

// Subscribe registers a subscriber with the given channel buffer.
func (b *Bus) Subscribe(buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 64
	}
	s := &Subscriber{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.subscribers[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes s and closes its channel. Safe to call more than once.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, s)
	b.mu.Unlock()
	s.close()
}

// Publish assigns the next sequence number and delivers evt.
func (b *Bus) Publish(evt Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	evt.Seq = b.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.history = append(b.history, evt)
	if len(b.history) > b.maxHistory {
		trim := len(b.history) - b.maxHistory
		b.history = append([]Event(nil), b.history[trim:]...)
	}

	for s := range b.subscribers {
		select {
		case s.ch <- evt:
		default:
			delete(b.subscribers, s)
			s.close()
			b.dropped++
		}
	}
	return evt
}

// Since returns retained events with sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Event, 0, len(b.history))
	for _, evt := range b.history {
		if evt.Seq > seq {
			out = append(out, evt)
		}
	}
	return out
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Dropped returns how many subscribers were removed for falling behind.
func (b *Bus) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// LastSeq returns the sequence number of the most recent event.
func (b *Bus) LastSeq() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextSeq
}
