package audit

import (
	"time"

	"github.com/georgepadayatti/signflow/document"
)

// Party is contact information for one side of the agreement.
type Party struct {
	Name  string
	Email string
}

// Directory supplies names and emails the trail does not carry.
type Directory map[document.Assignee]Party

// SignerRecord summarises one party's trail.
type SignerRecord struct {
	Assignee document.Assignee
	Name     string
	Email    string
	ViewedAt *time.Time
	SignedAt *time.Time
	IP       string
	Location string
}

type partyActions struct {
	assignee document.Assignee
	viewed   Action
	signed   Action
}

var parties = []partyActions{
	{document.AssigneeBusiness, ActionViewed, ActionSignedByBusiness},
	{document.AssigneeContact, ActionViewedByClient, ActionSignedByClient},
}

// SignedAction returns the signing action for a party.
func SignedAction(a document.Assignee) Action {
	if a == document.AssigneeBusiness {
		return ActionSignedByBusiness
	}
	return ActionSignedByClient
}

// ViewedAction returns the view action for a party.
func ViewedAction(a document.Assignee) Action {
	if a == document.AssigneeBusiness {
		return ActionViewed
	}
	return ActionViewedByClient
}

// Signers folds the trail into one record per party that has a view or
// signing event, business first.
func Signers(events []Event, dir Directory) []SignerRecord {
	sorted := append([]Event(nil), events...)
	Sort(sorted)

	var out []SignerRecord
	for _, p := range parties {
		var viewed, signed *Event
		for i := range sorted {
			e := &sorted[i]
			if e.Action == p.viewed && viewed == nil {
				viewed = e
			}
			if e.Action == p.signed && signed == nil {
				signed = e
			}
		}
		if viewed == nil && signed == nil {
			continue
		}

		rec := SignerRecord{Assignee: p.assignee}
		if viewed != nil {
			t := viewed.Timestamp
			rec.ViewedAt = &t
		}
		if signed != nil {
			t := signed.Timestamp
			rec.SignedAt = &t
		}
		rec.IP = firstDetail(DetailIP, signed, viewed)
		rec.Location = firstDetail(DetailLocation, signed, viewed)
		rec.Name = firstDetail(DetailName, signed, viewed)
		rec.Email = firstDetail(DetailEmail, signed, viewed)
		if entry, ok := dir[p.assignee]; ok {
			if rec.Name == "" {
				rec.Name = entry.Name
			}
			if rec.Email == "" {
				rec.Email = entry.Email
			}
		}
		out = append(out, rec)
	}
	return out
}

func firstDetail(key string, events ...*Event) string {
	for _, e := range events {
		if e == nil {
			continue
		}
		if s, ok := e.Details[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Timeline is the document-level milestones of a trail.
type Timeline struct {
	SentAt      *time.Time
	CompletedAt *time.Time
}

// Milestones returns the first sent and completed timestamps.
func Milestones(events []Event) Timeline {
	var tl Timeline
	for _, e := range events {
		t := e.Timestamp
		switch e.Action {
		case ActionSent:
			if tl.SentAt == nil || t.Before(*tl.SentAt) {
				tl.SentAt = &t
			}
		case ActionCompleted:
			if tl.CompletedAt == nil || t.Before(*tl.CompletedAt) {
				tl.CompletedAt = &t
			}
		}
	}
	return tl
}

// Count returns how many events carry the action.
func Count(events []Event, action Action) int {
	n := 0
	for _, e := range events {
		if e.Action == action {
			n++
		}
	}
	return n
}
