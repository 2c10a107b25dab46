package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_OrderingSlowAndFastSubscribers(t *testing.T) {
	bus := NewBus(100)
	const n = 50

	fast := bus.Subscribe(n)
	slow := bus.Subscribe(n)

	var wg sync.WaitGroup
	collect := func(s *Subscriber, delay time.Duration, out *[]int64) {
		defer wg.Done()
		for i := 0; i < n; i++ {
			evt := <-s.C()
			*out = append(*out, evt.Payload["i"].(int64))
			if delay > 0 {
				time.Sleep(delay)
			}
		}
	}

	var fastGot, slowGot []int64
	wg.Add(2)
	go collect(fast, 0, &fastGot)
	go collect(slow, time.Millisecond, &slowGot)

	for i := int64(0); i < n; i++ {
		bus.Publish(Event{Type: TypeClipProgress, JobID: "job-1", Payload: map[string]any{"i": i}})
	}
	wg.Wait()

	for i := int64(0); i < n; i++ {
		assert.Equal(t, i, fastGot[i], "fast subscriber out of order")
		assert.Equal(t, i, slowGot[i], "slow subscriber out of order")
	}
}

func TestBus_ConcurrentPublishersPreserveSeqOrder(t *testing.T) {
	bus := NewBus(1000)
	sub := bus.Subscribe(1000)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				bus.Publish(Event{Type: TypeJobUpdate, JobID: fmt.Sprintf("job-%d", p)})
			}
		}(p)
	}
	wg.Wait()

	var last int64
	for i := 0; i < 400; i++ {
		evt := <-sub.C()
		require.Greater(t, evt.Seq, last)
		last = evt.Seq
	}
}

func TestBus_FullSubscriberIsDroppedOthersUnaffected(t *testing.T) {
	bus := NewBus(10)
	stuck := bus.Subscribe(1)
	healthy := bus.Subscribe(10)

	bus.Publish(Event{Type: TypeLog})
	bus.Publish(Event{Type: TypeLog})

	select {
	case <-stuck.Done():
	default:
		t.Fatal("stuck subscriber should have been removed")
	}
	assert.Equal(t, 1, bus.SubscriberCount())
	assert.Equal(t, int64(1), bus.Dropped())

	assert.Len(t, healthy.C(), 2)

	// The dropped subscriber keeps its buffered event, then sees a closed channel.
	_, ok := <-stuck.C()
	assert.True(t, ok)
	_, ok = <-stuck.C()
	assert.False(t, ok)
}

func TestBus_UnsubscribeIdempotent(t *testing.T) {
	bus := NewBus(10)
	s := bus.Subscribe(1)
	bus.Unsubscribe(s)
	bus.Unsubscribe(s)
	assert.Equal(t, 0, bus.SubscriberCount())

	// Publishing after unsubscribe must not panic on the closed channel.
	bus.Publish(Event{Type: TypeLog})
}

func TestBus_Since(t *testing.T) {
	bus := NewBus(3)
	for i := 0; i < 5; i++ {
		bus.Publish(Event{Type: TypeLog})
	}
	assert.Equal(t, int64(5), bus.LastSeq())

	all := bus.Since(0)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].Seq)

	tail := bus.Since(4)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(5), tail[0].Seq)
	assert.Empty(t, bus.Since(5))
}

func TestEvent_MarshalFlattensPayload(t *testing.T) {
	evt := Event{
		Seq:     7,
		Type:    TypeTranscriptSegment,
		JobID:   "job-9",
		Payload: map[string]any{"segment": map[string]any{"start": 1.5, "text": "hi"}},
	}
	data, err := json.Marshal(evt)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "transcript_segment", got["type"])
	assert.Equal(t, "job-9", got["job_id"])
	assert.Equal(t, float64(7), got["seq"])
	seg := got["segment"].(map[string]any)
	assert.Equal(t, "hi", seg["text"])
}
