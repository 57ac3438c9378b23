// Package audit records the append-only trail of a document's signing
// lifecycle and folds it into per-signer summaries.
package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/georgepadayatti/signflow/logging"
)

// Action names an audit event.
type Action string

const (
	ActionViewed           Action = "viewed"
	ActionSignedByBusiness Action = "signed_by_business"
	ActionSent             Action = "sent"
	ActionViewedByClient   Action = "viewed_by_client"
	ActionSignedByClient   Action = "signed_by_client"
	ActionCompleted        Action = "completed"
	ActionFieldUpdated     Action = "field_updated"
)

// Detail keys shared by the producers and the signer fold.
const (
	DetailIP        = "ip"
	DetailLocation  = "location"
	DetailName      = "name"
	DetailEmail     = "email"
	DetailFieldID   = "fieldId"
	DetailFieldType = "fieldType"
	DetailRole      = "role"
	DetailLayout    = "layout"
	DetailFrozenAt  = "frozenAt"
)

// Event is one immutable entry of the trail.
type Event struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"documentId"`
	Action     Action         `json:"action"`
	ActorID    *string        `json:"actorId"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Sink persists events. It is owned by the caller.
type Sink interface {
	Append(ctx context.Context, e Event) error
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty sink, optionally seeded with events.
func NewMemorySink(seed ...Event) *MemorySink {
	return &MemorySink{events: append([]Event(nil), seed...)}
}

// Append implements Sink.
func (m *MemorySink) Append(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Events returns the trail of one document in timestamp order. An empty
// id returns every event.
func (m *MemorySink) Events(docID string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if docID == "" || e.DocumentID == docID {
			out = append(out, e)
		}
	}
	Sort(out)
	return out
}

// Recorder stamps and forwards events. Sink failures are logged and never
// returned.
type Recorder struct {
	sink   Sink
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewRecorder creates a recorder. A nil clock uses time.Now.
func NewRecorder(sink Sink, logger logrus.FieldLogger, clock func() time.Time) *Recorder {
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{sink: sink, logger: logging.OrDiscard(logger), now: clock}
}

// Record builds an event and appends it to the sink.
func (r *Recorder) Record(ctx context.Context, docID string, action Action, actor *string, details map[string]any) Event {
	e := Event{
		ID:         uuid.NewString(),
		DocumentID: docID,
		Action:     action,
		ActorID:    actor,
		Details:    details,
		Timestamp:  r.now().UTC(),
	}
	if r.sink == nil {
		return e
	}
	if err := r.sink.Append(ctx, e); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"document": docID,
			"action":   action,
		}).Error("failed to append audit event")
	}
	return e
}

// Sort orders events by timestamp, keeping insertion order for ties.
func Sort(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
