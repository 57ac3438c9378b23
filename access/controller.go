package access

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/georgepadayatti/signflow/audit"
	"github.com/georgepadayatti/signflow/document"
	"github.com/georgepadayatti/signflow/geometry"
	"github.com/georgepadayatti/signflow/geoip"
	"github.com/georgepadayatti/signflow/logging"
	"github.com/georgepadayatti/signflow/pagination"
)

// Controller guards one document. All mutations go through it so the state
// gate and the audit trail stay consistent. Concurrent writes to the same
// field are last-write-wins.
type Controller struct {
	mu       sync.Mutex
	doc      *document.Document
	snapshot *document.Document
	frozenAt time.Time
	recorder *audit.Recorder
	geo      geoip.Resolver
	logger   logrus.FieldLogger
	now      func() time.Time
	actors   map[Role]string
	dir      audit.Directory

	// Actions already in the trail that must only appear once.
	seen map[audit.Action]bool
	// Layout carried by the trail's sent event, if any.
	sent *audit.Event
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the clock that stamps the layout snapshot on send.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Controller) { c.logger = logging.OrDiscard(l) }
}

// WithGeo sets the resolver consulted for view and signing events.
func WithGeo(r geoip.Resolver) Option {
	return func(c *Controller) { c.geo = r }
}

// WithActor attributes events made under role to an actor id.
func WithActor(role Role, id string) Option {
	return func(c *Controller) { c.actors[role] = id }
}

// WithDirectory adds party names and emails to signing events.
func WithDirectory(dir audit.Directory) Option {
	return func(c *Controller) { c.dir = dir }
}

// WithHistory seeds the controller with the document's existing trail so
// one-shot events are not recorded twice.
func WithHistory(events []audit.Event) Option {
	return func(c *Controller) {
		for i, e := range events {
			c.seen[e.Action] = true
			if e.Action == audit.ActionSent {
				c.sent = &events[i]
			}
		}
	}
}

// NewController wraps doc. The controller owns doc from here on; callers
// read it back through Document.
func NewController(doc *document.Document, recorder *audit.Recorder, opts ...Option) *Controller {
	c := &Controller{
		doc:      doc,
		recorder: recorder,
		logger:   logging.Discard(),
		now:      time.Now,
		actors:   make(map[Role]string),
		seen:     make(map[audit.Action]bool),
	}
	if recorder == nil {
		c.recorder = audit.NewRecorder(nil, nil, nil)
	}
	for _, opt := range opts {
		opt(c)
	}
	if doc.Status != document.StatusDraft {
		c.restoreSnapshot()
	}
	return c
}

// restoreSnapshot rebuilds the frozen layout of a document loaded after
// send. The sent event's layout wins over the current fields, which may
// already carry values filled since. Without one the current layout is used.
func (c *Controller) restoreSnapshot() {
	c.snapshot = c.doc.Clone()
	if c.sent == nil {
		return
	}
	c.frozenAt = c.sent.Timestamp
	if s, ok := c.sent.Details[audit.DetailFrozenAt].(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			c.frozenAt = t
		}
	}
	layout, err := decodeLayout(c.sent.Details[audit.DetailLayout])
	if err != nil {
		c.logger.WithError(err).WithField("document", c.doc.ID).Warn("unreadable layout in sent event")
		return
	}
	rec := c.snapshot.ToRecord()
	rec.Metadata.Fields = layout
	snap, err := document.FromRecord(rec)
	if err != nil {
		c.logger.WithError(err).WithField("document", c.doc.ID).Warn("invalid layout in sent event")
		return
	}
	c.snapshot = snap
}

// decodeLayout accepts the layout as recorded in memory or as read back
// from JSON storage.
func decodeLayout(v any) ([]document.FieldRecord, error) {
	switch layout := v.(type) {
	case []document.FieldRecord:
		return layout, nil
	case nil:
		return nil, fmt.Errorf("%w: no layout", document.ErrInvalidField)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var layout []document.FieldRecord
	if err := json.Unmarshal(data, &layout); err != nil {
		return nil, err
	}
	return layout, nil
}

// Status returns the current lifecycle state.
func (c *Controller) Status() document.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Status
}

// Document returns a copy of the current document.
func (c *Controller) Document() *document.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Clone()
}

// Snapshot returns the layout frozen at send time and when it was frozen,
// or nil in draft. The time is zero when the trail does not record it.
func (c *Controller) Snapshot() (*document.Document, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return nil, time.Time{}
	}
	return c.snapshot.Clone(), c.frozenAt
}

func (c *Controller) requireDraft(what string) error {
	if c.doc.Status != document.StatusDraft {
		return fmt.Errorf("%w: cannot %s while %s", document.ErrDocumentLocked, what, c.doc.Status)
	}
	return nil
}

// SetBackground selects the background layer.
func (c *Controller) SetBackground(kind document.BackgroundKind, ref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.SetBackground(kind, ref)
}

// AddPage appends an empty page.
func (c *Controller) AddPage() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireDraft("add pages"); err != nil {
		return 0, err
	}
	if c.doc.Background == document.BackgroundNone {
		return 0, fmt.Errorf("%w: choose a background first", document.ErrInvalidField)
	}
	return c.doc.AddPage(), nil
}

// EditContent replaces a rich-text page's markup and reflows from there.
func (c *Controller) EditContent(page int, markup string, engine *pagination.Engine) (pagination.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireDraft("edit content"); err != nil {
		return pagination.Result{}, err
	}
	if c.doc.Background != document.BackgroundRichText {
		return pagination.Result{}, fmt.Errorf("%w: page content needs a rich-text background", document.ErrInvalidField)
	}
	if err := c.doc.SetPageContent(page, markup); err != nil {
		return pagination.Result{}, err
	}
	return engine.Reflow(c.doc, page)
}

// Repaginate reflows every rich-text page from the first, for content laid
// out under different text metrics.
func (c *Controller) Repaginate(engine *pagination.Engine) (pagination.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireDraft("repaginate"); err != nil {
		return pagination.Result{}, err
	}
	if c.doc.Background != document.BackgroundRichText {
		return pagination.Result{}, fmt.Errorf("%w: pagination needs a rich-text background", document.ErrInvalidField)
	}
	return engine.ReflowAll(c.doc)
}

// PlaceField drops a new field of type t at pointer on page with the
// type's default size. New fields belong to the contact.
func (c *Controller) PlaceField(t document.FieldType, label string, pointer geometry.Percent, page int) (document.Field, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireDraft("place fields"); err != nil {
		return document.Field{}, err
	}
	f := document.Field{
		ID:         document.NewFieldID(),
		Type:       t,
		Label:      label,
		Position:   pointer,
		Size:       document.DefaultSize(t),
		PageNumber: page,
		Assignee:   document.AssigneeContact,
	}
	if err := c.doc.UpsertField(f); err != nil {
		return document.Field{}, err
	}
	return f, nil
}

func (c *Controller) editLayout(id string, edit func(*document.Field)) (document.Field, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireDraft("edit the layout"); err != nil {
		return document.Field{}, err
	}
	f, ok := c.doc.Field(id)
	if !ok {
		return document.Field{}, fmt.Errorf("%w: field %s", document.ErrNotFound, id)
	}
	edit(&f)
	if err := c.doc.UpsertField(f); err != nil {
		return document.Field{}, err
	}
	return f, nil
}

// MoveField repositions a field, optionally onto another page. A page of 0
// keeps the current page.
func (c *Controller) MoveField(id string, pos geometry.Percent, page int) (document.Field, error) {
	return c.editLayout(id, func(f *document.Field) {
		f.Position = pos
		if page > 0 {
			f.PageNumber = page
		}
	})
}

// ResizeField changes a field's box.
func (c *Controller) ResizeField(id string, size geometry.Size) (document.Field, error) {
	return c.editLayout(id, func(f *document.Field) { f.Size = size })
}

// AssignField hands a field to another party.
func (c *Controller) AssignField(id string, a document.Assignee) (document.Field, error) {
	return c.editLayout(id, func(f *document.Field) { f.Assignee = a })
}

// RelabelField changes a field's caption.
func (c *Controller) RelabelField(id, label string) (document.Field, error) {
	return c.editLayout(id, func(f *document.Field) { f.Label = label })
}

// DeleteField removes a field. Unknown ids are ignored.
func (c *Controller) DeleteField(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireDraft("delete fields"); err != nil {
		return err
	}
	c.doc.RemoveField(id)
	return nil
}

type pending struct {
	action  audit.Action
	role    Role
	details map[string]any
	geo     bool
}

// FillField writes a value on behalf of role.
func (c *Controller) FillField(ctx context.Context, id, value string, role Role) error {
	c.mu.Lock()
	f, ok := c.doc.Field(id)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: field %s", document.ErrNotFound, id)
	}
	if !CanEdit(role, f, c.doc.Status) {
		status, docID := c.doc.Status, c.doc.ID
		c.mu.Unlock()
		c.logger.WithFields(logrus.Fields{
			"document": docID,
			"field":    id,
			"role":     role,
			"assignee": f.Assignee,
			"status":   status,
		}).Warn("denied field write")
		return fmt.Errorf("%w: %s may not write field %s while %s", document.ErrUnauthorized, role, id, status)
	}
	if value == "" && c.doc.Status != document.StatusDraft {
		c.mu.Unlock()
		return fmt.Errorf("%w: empty value", document.ErrInvalidField)
	}

	f.Value = value
	if err := c.doc.UpsertField(f); err != nil {
		c.mu.Unlock()
		return err
	}
	events := []pending{{
		action: audit.ActionFieldUpdated,
		role:   role,
		details: map[string]any{
			audit.DetailFieldID:   f.ID,
			audit.DetailFieldType: string(f.Type),
			audit.DetailRole:      string(role),
		},
	}}
	if c.doc.Status == document.StatusSent {
		if party, ok := role.Party(); ok && c.partyDone(party) {
			action := audit.SignedAction(party)
			if !c.seen[action] {
				c.seen[action] = true
				events = append(events, pending{action: action, role: role, details: c.partyDetails(party), geo: true})
			}
		}
		events = append(events, c.checkCompletion()...)
	}
	docID := c.doc.ID
	c.mu.Unlock()

	c.flush(ctx, docID, events)
	return nil
}

func (c *Controller) partyDone(party document.Assignee) bool {
	fields := c.doc.FieldsFor(party)
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if !f.Filled() {
			return false
		}
	}
	return true
}

func (c *Controller) partyDetails(party document.Assignee) map[string]any {
	details := map[string]any{}
	if entry, ok := c.dir[party]; ok {
		if entry.Name != "" {
			details[audit.DetailName] = entry.Name
		}
		if entry.Email != "" {
			details[audit.DetailEmail] = entry.Email
		}
	}
	return details
}

// checkCompletion moves a fully filled sent document to completed. It
// returns the event to record, at most once per document. Callers hold mu.
func (c *Controller) checkCompletion() []pending {
	if c.doc.Status != document.StatusSent || !c.doc.AllFilled() {
		return nil
	}
	c.doc.Status = document.StatusCompleted
	if c.seen[audit.ActionCompleted] {
		return nil
	}
	c.seen[audit.ActionCompleted] = true
	return []pending{{action: audit.ActionCompleted}}
}

// CheckCompletion re-evaluates completion. It is safe to call repeatedly.
func (c *Controller) CheckCompletion(ctx context.Context) bool {
	c.mu.Lock()
	events := c.checkCompletion()
	done := c.doc.Status == document.StatusCompleted
	docID := c.doc.ID
	c.mu.Unlock()
	c.flush(ctx, docID, events)
	return done
}

// Send freezes the layout and opens the document for signing.
func (c *Controller) Send(ctx context.Context) error {
	c.mu.Lock()
	if err := c.requireDraft("send"); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.doc.Background == document.BackgroundNone {
		c.mu.Unlock()
		return fmt.Errorf("%w: nothing to send without a background", document.ErrInvalidField)
	}
	c.doc.Status = document.StatusSent
	c.snapshot = c.doc.Clone()
	c.frozenAt = c.now().UTC()

	events := []pending{{
		action: audit.ActionSent,
		role:   RoleComposer,
		details: map[string]any{
			audit.DetailLayout:   c.snapshot.ToRecord().Metadata.Fields,
			audit.DetailFrozenAt: c.frozenAt.Format(time.RFC3339),
		},
	}}
	c.seen[audit.ActionSent] = true
	events = append(events, c.checkCompletion()...)
	docID := c.doc.ID
	c.mu.Unlock()

	c.flush(ctx, docID, events)
	return nil
}

// MarkViewed records that a signing party opened the document. The
// composer's own views are not tracked.
func (c *Controller) MarkViewed(ctx context.Context, role Role) error {
	party, ok := role.Party()
	if !ok {
		return nil
	}
	c.mu.Lock()
	if c.doc.Status == document.StatusDraft {
		c.mu.Unlock()
		return fmt.Errorf("%w: document has not been sent", document.ErrDocumentLocked)
	}
	docID := c.doc.ID
	details := c.partyDetails(party)
	c.mu.Unlock()

	c.flush(ctx, docID, []pending{{action: audit.ViewedAction(party), role: role, details: details, geo: true}})
	return nil
}

func (c *Controller) flush(ctx context.Context, docID string, events []pending) {
	var info *geoip.Info
	for _, p := range events {
		details := p.details
		if p.geo {
			if info == nil {
				v := geoip.Lookup(ctx, c.geo, c.logger)
				info = &v
			}
			if details == nil {
				details = map[string]any{}
			}
			details[audit.DetailIP] = info.IP
			details[audit.DetailLocation] = info.Location()
		}
		var actor *string
		if id, ok := c.actors[p.role]; ok {
			actor = &id
		}
		c.recorder.Record(ctx, docID, p.action, actor, details)
	}
}
