// Package events carries orchestration lifecycle notifications (stage,
// agent, critique and segment milestones) from the core to whatever
// presents them: the log, a websocket hub or a NATS subject.
//
// Emit is synchronous. Sinks that do I/O must not block for long.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names a lifecycle milestone.
type Type string

const (
	QueryStarted   Type = "query.started"
	QueryCompleted Type = "query.completed"
	QueryFailed    Type = "query.failed"

	PlanDecided Type = "plan.decided"

	StageStarted   Type = "stage.started"
	StageCompleted Type = "stage.completed"

	AgentCreated   Type = "agent.created"
	AgentRemoved   Type = "agent.removed"
	AgentResponded Type = "agent.responded"
	AgentFailed    Type = "agent.failed"

	CollaborationStarted   Type = "collaboration.started"
	CollaborationCompleted Type = "collaboration.completed"

	CritiqueProduced Type = "critique.produced"
	AlternativeTried Type = "alternative.tried"

	SegmentationAssessed Type = "segmentation.assessed"
	SegmentGenerated     Type = "segment.generated"
	SegmentDisplayed     Type = "segment.displayed"

	FallbackUsed Type = "fallback.used"
)

// Event is one notification.
type Event struct {
	ID      string         `json:"id"`
	Type    Type           `json:"type"`
	RunID   string         `json:"run_id,omitempty"`
	Time    time.Time      `json:"time"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// New creates an event. kv is a flat list of key/value pairs.
func New(t Type, message string, kv ...any) Event {
	e := Event{
		ID:      uuid.New().String(),
		Type:    t,
		Time:    time.Now().UTC(),
		Message: message,
	}
	if len(kv) > 1 {
		e.Data = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			if k, ok := kv[i].(string); ok {
				e.Data[k] = kv[i+1]
			}
		}
	}
	return e
}

// Sink receives events.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event)

func (f SinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }

// Nop discards everything.
var Nop Sink = SinkFunc(func(context.Context, Event) {})

type runIDKey struct{}

// WithRunID tags every event emitted with ctx as belonging to runID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID returns the run id carried by ctx, if any.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Bus fans each event out to every attached sink, in attach order.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewBus creates a bus with the given sinks.
func NewBus(sinks ...Sink) *Bus {
	return &Bus{sinks: sinks}
}

// Attach adds a sink.
func (b *Bus) Attach(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Emit implements Sink.
func (b *Bus) Emit(ctx context.Context, e Event) {
	if e.RunID == "" {
		e.RunID = RunID(ctx)
	}
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()
	for _, s := range sinks {
		s.Emit(ctx, e)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of what was recorded.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
