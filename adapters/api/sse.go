package api

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gosane/domain/deconv"
	"gosane/ports"
)

// EventType defines the SSE event types emitted during a run.
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventMajorIteration EventType = "major_iteration"
	EventRunFinished    EventType = "run_finished"
)

// Event is one server-sent progress event.
type Event struct {
	EventType EventType    `json:"event_type"`
	RunID     deconv.RunID `json:"run_id"`
	Timestamp time.Time    `json:"timestamp"`
	Data      any          `json:"data,omitempty"`
}

// SSEFormat renders the event in text/event-stream framing.
func (e Event) SSEFormat() string {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("event: %s\ndata: {}\n\n", e.EventType)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", e.EventType, payload)
}

// Broadcaster fans run progress out to SSE subscribers. It implements
// ports.ProgressSink; subscribers receive events for one run ID.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[deconv.RunID]map[chan Event]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[deconv.RunID]map[chan Event]struct{})}
}

var _ ports.ProgressSink = (*Broadcaster)(nil)

// Subscribe registers a buffered channel for one run's events. The returned
// cancel function must be called when the subscriber goes away.
func (b *Broadcaster) Subscribe(id deconv.RunID) (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	if b.subs[id] == nil {
		b.subs[id] = make(map[chan Event]struct{})
	}
	b.subs[id][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[id]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, id)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Broadcaster) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[e.RunID] {
		select {
		case ch <- e:
		default:
			// Slow subscriber; drop rather than stall the run.
		}
	}
}

// RunStarted implements ports.ProgressSink.
func (b *Broadcaster) RunStarted(run *deconv.Run) {
	b.publish(Event{EventType: EventRunStarted, RunID: run.ID, Timestamp: time.Now().UTC(), Data: run})
}

// MajorIteration implements ports.ProgressSink.
func (b *Broadcaster) MajorIteration(id deconv.RunID, m deconv.IterationMetrics) {
	b.publish(Event{EventType: EventMajorIteration, RunID: id, Timestamp: time.Now().UTC(), Data: m})
}

// RunFinished implements ports.ProgressSink.
func (b *Broadcaster) RunFinished(id deconv.RunID, status deconv.Status, errMsg string) {
	b.publish(Event{
		EventType: EventRunFinished,
		RunID:     id,
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"status": status, "error": errMsg},
	})
}
