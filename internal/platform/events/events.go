// Package events publishes domain events to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is the envelope written to the stream. Key selects the partition so
// that events for one aggregate stay ordered.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	ActorID    string          `json:"actorId,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// New builds an event with a fresh id and the payload encoded as JSON.
func New(eventType, key, actorID string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        key,
		ActorID:    actorID,
		Payload:    raw,
		OccurredAt: time.Now().UTC(),
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// LogPublisher writes events to the log. It is used when no broker is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.logger.Info().
		Str("event_id", evt.ID).
		Str("type", evt.Type).
		Str("key", evt.Key).
		Str("actor_id", evt.ActorID).
		RawJSON("payload", evt.Payload).
		Msg("event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the type of every recorded event in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
