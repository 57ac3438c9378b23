package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/georgepadayatti/signflow/document"
)

type failingSink struct{}

func (failingSink) Append(context.Context, Event) error { return errors.New("db down") }

func clockFrom(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

var base = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func TestRecorder(t *testing.T) {
	sink := NewMemorySink()
	r := NewRecorder(sink, nil, clockFrom(base))
	ctx := context.Background()

	first := r.Record(ctx, "doc-1", ActionSent, nil, nil)
	r.Record(ctx, "doc-2", ActionSent, nil, nil)
	r.Record(ctx, "doc-1", ActionCompleted, nil, nil)

	events := sink.Events("doc-1")
	if len(events) != 2 {
		t.Fatalf("Expected 2 events for doc-1, got %d", len(events))
	}
	if events[0].ID != first.ID || events[0].ID == "" {
		t.Errorf("Expected the first event to keep its id")
	}
	if !events[1].Timestamp.After(events[0].Timestamp) {
		t.Error("Expected events in timestamp order")
	}
	if len(sink.Events("")) != 3 {
		t.Error("Expected all events for an empty id")
	}
}

func TestRecorderSinkFailureIsNonFatal(t *testing.T) {
	r := NewRecorder(failingSink{}, nil, nil)
	e := r.Record(context.Background(), "doc", ActionViewed, nil, nil)
	if e.Action != ActionViewed || e.ID == "" {
		t.Errorf("Expected the event to be returned despite the sink failure, got %+v", e)
	}
}

func TestSigners(t *testing.T) {
	at := func(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }
	events := []Event{
		{Action: ActionSignedByClient, Timestamp: at(30), Details: map[string]any{DetailIP: "198.51.100.4", DetailLocation: "Bergen, Norway"}},
		{Action: ActionViewedByClient, Timestamp: at(10), Details: map[string]any{DetailIP: "198.51.100.9", DetailName: "Kari"}},
		{Action: ActionViewedByClient, Timestamp: at(20)},
		{Action: ActionSent, Timestamp: at(5)},
		{Action: ActionSignedByClient, Timestamp: at(40)},
	}
	dir := Directory{
		document.AssigneeContact:  {Name: "Ignored", Email: "kari@example.com"},
		document.AssigneeBusiness: {Name: "Acme"},
	}

	signers := Signers(events, dir)
	if len(signers) != 1 {
		t.Fatalf("Expected only the contact to be listed, got %d", len(signers))
	}
	s := signers[0]
	if s.Assignee != document.AssigneeContact {
		t.Errorf("Expected contact, got %s", s.Assignee)
	}
	if !s.ViewedAt.Equal(at(10)) || !s.SignedAt.Equal(at(30)) {
		t.Errorf("Expected first view and first signature, got %v / %v", s.ViewedAt, s.SignedAt)
	}
	if s.IP != "198.51.100.4" || s.Location != "Bergen, Norway" {
		t.Errorf("Expected signing metadata, got %s / %s", s.IP, s.Location)
	}
	if s.Name != "Kari" || s.Email != "kari@example.com" {
		t.Errorf("Expected name from the trail and email from the directory, got %s / %s", s.Name, s.Email)
	}

	events = append(events, Event{Action: ActionViewed, Timestamp: at(1)})
	signers = Signers(events, dir)
	if len(signers) != 2 || signers[0].Assignee != document.AssigneeBusiness {
		t.Fatalf("Expected business first, got %+v", signers)
	}
	if signers[0].SignedAt != nil || signers[0].Name != "Acme" {
		t.Errorf("Expected an unsigned business record named from the directory, got %+v", signers[0])
	}
}

func TestMilestones(t *testing.T) {
	tl := Milestones([]Event{
		{Action: ActionCompleted, Timestamp: base.Add(time.Hour)},
		{Action: ActionSent, Timestamp: base},
	})
	if tl.SentAt == nil || !tl.SentAt.Equal(base) {
		t.Errorf("Expected sent at %v, got %v", base, tl.SentAt)
	}
	if tl.CompletedAt == nil || !tl.CompletedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("Expected completed an hour later, got %v", tl.CompletedAt)
	}
	if Milestones(nil).SentAt != nil {
		t.Error("Expected no milestones for an empty trail")
	}
}
