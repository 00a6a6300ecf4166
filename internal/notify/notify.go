// Package notify carries case events out of the engine. Delivery, templating
// and retries belong to the sinks; the engine only calls Enqueue.
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

type Type string

const (
	TypeNewCase       Type = "new_case"
	TypeCaseTaken     Type = "case_taken"
	TypeStatusChanged Type = "status_changed"
	TypeNewComment    Type = "new_comment"
)

type Event struct {
	ID               string         `json:"id"`
	Type             Type           `json:"type"`
	CaseID           string         `json:"case_id"`
	CasePublicID     int            `json:"case_public_id"`
	RelevantActorIDs []string       `json:"relevant_actor_ids"`
	Payload          map[string]any `json:"payload,omitempty"`
	OccurredAt       string         `json:"occurred_at"`
}

// Sink accepts event descriptors. Implementations must not block on delivery.
type Sink interface {
	Enqueue(ctx context.Context, evt Event) error
}

var ErrQueueFull = errors.New("notification queue full")

// Nop drops every event.
type Nop struct{}

func (Nop) Enqueue(context.Context, Event) error { return nil }

// LogSink writes each event as a structured log line.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Enqueue(_ context.Context, evt Event) error {
	s.Logger.Info().
		Str("event_id", evt.ID).
		Str("type", string(evt.Type)).
		Str("case_id", evt.CaseID).
		Int("case_public_id", evt.CasePublicID).
		Strs("recipients", evt.RelevantActorIDs).
		Msg("notification")
	return nil
}

// Fanout hands each event to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Enqueue(ctx context.Context, evt Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Enqueue(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps events in memory. Err, when set, is returned from Enqueue
// after the event is recorded.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Enqueue(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return r.Err
}

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
	for _, evt := range r.Events() {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
