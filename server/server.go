// Package server exposes the composition and signing flow over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/georgepadayatti/signflow/access"
	"github.com/georgepadayatti/signflow/audit"
	"github.com/georgepadayatti/signflow/document"
	"github.com/georgepadayatti/signflow/export"
	"github.com/georgepadayatti/signflow/fetch"
	"github.com/georgepadayatti/signflow/geoip"
	"github.com/georgepadayatti/signflow/logging"
	"github.com/georgepadayatti/signflow/pagination"
	"github.com/georgepadayatti/signflow/richtext"
	"github.com/georgepadayatti/signflow/store"
)

// Request headers naming the caller.
const (
	HeaderRole  = "X-Signflow-Role"
	HeaderActor = "X-Signflow-Actor"
)

// Deps are the collaborators a Server needs. Nil engine and exporter get
// defaults.
type Deps struct {
	Repo     store.Repository
	Audit    store.AuditLog
	Exporter *export.Exporter
	Engine   *pagination.Engine
}

// Server handles the document routes.
type Server struct {
	repo     store.Repository
	trail    store.AuditLog
	exporter *export.Exporter
	engine   *pagination.Engine
	geo      geoip.Resolver
	dir      audit.Directory
	logger   logrus.FieldLogger
	clock    func() time.Time

	locks sync.Map
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) { s.logger = logging.OrDiscard(l) }
}

// WithGeo sets the geo resolver. Without one the client address is
// recorded with an unknown location.
func WithGeo(r geoip.Resolver) Option {
	return func(s *Server) { s.geo = r }
}

// WithDirectory sets party names and emails for signing events.
func WithDirectory(dir audit.Directory) Option {
	return func(s *Server) { s.dir = dir }
}

// WithClock overrides the audit clock.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.clock = now }
}

// New creates a server.
func New(deps Deps, opts ...Option) (*Server, error) {
	if deps.Repo == nil || deps.Audit == nil {
		return nil, errors.New("server needs a repository and an audit log")
	}
	s := &Server{
		repo:     deps.Repo,
		trail:    deps.Audit,
		exporter: deps.Exporter,
		engine:   deps.Engine,
		logger:   logging.Discard(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		ts, err := richtext.Default()
		if err != nil {
			return nil, err
		}
		s.engine = pagination.New(richtext.NewMeasurer(ts), s.logger)
	}
	if s.exporter == nil {
		s.exporter = export.NewExporter(export.Deps{
			Loader: fetch.NewMultiLoader(nil, nil),
			Logger: s.logger,
		}, s.dir)
	}
	return s, nil
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(s.logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "signflow"})
	})

	docs := r.Group("/documents")
	docs.POST("", s.createDocument)
	docs.GET("", s.listDocuments)
	docs.GET("/:id", s.getDocument)
	docs.PUT("/:id/background", s.setBackground)
	docs.POST("/:id/pages", s.addPage)
	docs.PUT("/:id/pages/:page/content", s.editContent)
	docs.POST("/:id/repaginate", s.repaginate)
	docs.GET("/:id/layout", s.frozenLayout)
	docs.POST("/:id/fields", s.placeField)
	docs.PATCH("/:id/fields/:fieldId", s.updateField)
	docs.DELETE("/:id/fields/:fieldId", s.deleteField)
	docs.PUT("/:id/fields/:fieldId/value", s.fillField)
	docs.POST("/:id/send", s.send)
	docs.POST("/:id/view", s.view)
	docs.GET("/:id/audit", s.auditTrail)
	docs.GET("/:id/export", s.export)
	return r
}

// lock serializes writes to one document.
func (s *Server) lock(id string) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// session is one request's view of a document.
type session struct {
	role  access.Role
	ctl   *access.Controller
	trail []audit.Event
}

func roleOf(c *gin.Context) (access.Role, error) {
	h := c.GetHeader(HeaderRole)
	if h == "" {
		return access.RoleComposer, nil
	}
	return access.ParseRole(h)
}

func (s *Server) open(c *gin.Context) (*session, error) {
	ctx := c.Request.Context()
	role, err := roleOf(c)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.Get(ctx, c.Param("id"))
	if err != nil {
		return nil, err
	}
	doc, err := document.FromRecord(rec)
	if err != nil {
		return nil, err
	}
	trail, err := s.trail.Events(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	geo := s.geo
	if geo == nil {
		geo = geoip.Static{IP: c.ClientIP()}
	}
	opts := []access.Option{
		access.WithLogger(s.logger),
		access.WithGeo(geo),
		access.WithDirectory(s.dir),
		access.WithHistory(trail),
		access.WithClock(s.clock),
	}
	if actor := c.GetHeader(HeaderActor); actor != "" {
		opts = append(opts, access.WithActor(role, actor))
	}
	recorder := audit.NewRecorder(s.trail, s.logger, s.clock)
	return &session{role: role, ctl: access.NewController(doc, recorder, opts...), trail: trail}, nil
}

// layout rejects layout changes the caller may not make.
func (ss *session) layout() error {
	status := ss.ctl.Status()
	if access.CanEditLayout(ss.role, status) {
		return nil
	}
	if status != document.StatusDraft {
		return fmt.Errorf("%w: layout is frozen while %s", document.ErrDocumentLocked, status)
	}
	return fmt.Errorf("%w: %s may not change the layout", document.ErrUnauthorized, ss.role)
}

// mutate loads the document under its lock, applies fn and saves the
// result. The reply carries the saved record plus whatever fn returns.
func (s *Server) mutate(c *gin.Context, fn func(ctx context.Context, ss *session) (gin.H, error)) {
	unlock := s.lock(c.Param("id"))
	defer unlock()

	ss, err := s.open(c)
	if err != nil {
		failErr(c, err)
		return
	}
	ctx := c.Request.Context()
	extra, err := fn(ctx, ss)
	if err != nil {
		failErr(c, err)
		return
	}
	rec := ss.ctl.Document().ToRecord()
	if err := s.repo.Save(ctx, rec); err != nil {
		failErr(c, err)
		return
	}
	data := gin.H{"document": rec}
	for k, v := range extra {
		data[k] = v
	}
	success(c, data)
}
