package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/georgepadayatti/signflow/document"
	"github.com/georgepadayatti/signflow/export"
	"github.com/georgepadayatti/signflow/geometry"
	"github.com/georgepadayatti/signflow/richtext"
)

func bind(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return fmt.Errorf("%w: %v", document.ErrInvalidField, err)
	}
	return nil
}

func (s *Server) createDocument(c *gin.Context) {
	var body struct {
		Title      string `json:"title" binding:"required"`
		Background string `json:"background"`
		FileURL    string `json:"file_url"`
	}
	if err := bind(c, &body); err != nil {
		failErr(c, err)
		return
	}
	kind, err := document.ParseBackgroundKind(body.Background)
	if err != nil {
		failErr(c, err)
		return
	}

	doc := document.New(body.Title)
	if kind != document.BackgroundNone {
		if err := doc.SetBackground(kind, body.FileURL); err != nil {
			failErr(c, err)
			return
		}
	}
	rec := doc.ToRecord()
	if err := s.repo.Save(c.Request.Context(), rec); err != nil {
		failErr(c, err)
		return
	}
	created(c, gin.H{"document": rec})
}

func (s *Server) listDocuments(c *gin.Context) {
	list, err := s.repo.List(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, gin.H{"items": list, "total": len(list)})
}

func (s *Server) getDocument(c *gin.Context) {
	rec, err := s.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, gin.H{"document": rec})
}

func (s *Server) setBackground(c *gin.Context) {
	var body struct {
		Type    string `json:"type" binding:"required"`
		FileURL string `json:"file_url"`
	}
	if err := bind(c, &body); err != nil {
		failErr(c, err)
		return
	}
	kind, err := document.ParseBackgroundKind(body.Type)
	if err != nil {
		failErr(c, err)
		return
	}
	s.mutate(c, func(_ context.Context, ss *session) (gin.H, error) {
		if err := ss.layout(); err != nil {
			return nil, err
		}
		return nil, ss.ctl.SetBackground(kind, body.FileURL)
	})
}

func (s *Server) addPage(c *gin.Context) {
	s.mutate(c, func(_ context.Context, ss *session) (gin.H, error) {
		if err := ss.layout(); err != nil {
			return nil, err
		}
		n, err := ss.ctl.AddPage()
		if err != nil {
			return nil, err
		}
		return gin.H{"pages": n}, nil
	})
}

func (s *Server) editContent(c *gin.Context) {
	page, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		failErr(c, fmt.Errorf("%w: page %q", document.ErrInvalidField, c.Param("page")))
		return
	}
	var body struct {
		Markup   string `json:"markup"`
		Markdown string `json:"markdown"`
	}
	if err := bind(c, &body); err != nil {
		failErr(c, err)
		return
	}
	markup := body.Markup
	if body.Markdown != "" {
		if markup, err = richtext.FromMarkdown([]byte(body.Markdown)); err != nil {
			failErr(c, fmt.Errorf("%w: %v", document.ErrInvalidField, err))
			return
		}
	}

	s.mutate(c, func(_ context.Context, ss *session) (gin.H, error) {
		if err := ss.layout(); err != nil {
			return nil, err
		}
		res, err := ss.ctl.EditContent(page, markup, s.engine)
		if err != nil {
			return nil, err
		}
		return gin.H{"touched": res.Touched, "created": res.Created}, nil
	})
}

func (s *Server) repaginate(c *gin.Context) {
	s.mutate(c, func(_ context.Context, ss *session) (gin.H, error) {
		if err := ss.layout(); err != nil {
			return nil, err
		}
		res, err := ss.ctl.Repaginate(s.engine)
		if err != nil {
			return nil, err
		}
		return gin.H{"touched": res.Touched, "created": res.Created}, nil
	})
}

// frozenLayout returns the field layout as it was when the document was
// sent, without values filled since.
func (s *Server) frozenLayout(c *gin.Context) {
	ss, err := s.open(c)
	if err != nil {
		failErr(c, err)
		return
	}
	snap, at := ss.ctl.Snapshot()
	if snap == nil {
		failErr(c, fmt.Errorf("%w: document has not been sent", document.ErrDocumentLocked))
		return
	}
	body := gin.H{"fields": snap.ToRecord().Metadata.Fields}
	if !at.IsZero() {
		body["frozen_at"] = at
	}
	success(c, body)
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type size struct {
	W float64 `json:"width"`
	H float64 `json:"height"`
}

func (s *Server) placeField(c *gin.Context) {
	var body struct {
		Type       string `json:"type" binding:"required"`
		Label      string `json:"label"`
		Page       int    `json:"page"`
		Pointer    point  `json:"pointer"`
		PageOrigin point  `json:"page_origin"`
		Rendered   size   `json:"rendered"`
		DragOffset *point `json:"drag_offset"`
		Assignee   string `json:"assignee"`
	}
	if err := bind(c, &body); err != nil {
		failErr(c, err)
		return
	}
	t, err := document.ParseFieldType(body.Type)
	if err != nil {
		failErr(c, err)
		return
	}
	var offset *geometry.Point
	if body.DragOffset != nil {
		offset = &geometry.Point{X: body.DragOffset.X, Y: body.DragOffset.Y}
	}
	pos, err := geometry.ScreenToPercent(
		geometry.Point{X: body.Pointer.X, Y: body.Pointer.Y},
		geometry.Point{X: body.PageOrigin.X, Y: body.PageOrigin.Y},
		geometry.Size{W: body.Rendered.W, H: body.Rendered.H},
		offset,
	)
	if err != nil {
		failErr(c, err)
		return
	}
	page := body.Page
	if page == 0 {
		page = 1
	}

	s.mutate(c, func(_ context.Context, ss *session) (gin.H, error) {
		if err := ss.layout(); err != nil {
			return nil, err
		}
		f, err := ss.ctl.PlaceField(t, body.Label, pos, page)
		if err != nil {
			return nil, err
		}
		if body.Assignee != "" {
			a, err := document.ParseAssignee(body.Assignee)
			if err != nil {
				return nil, err
			}
			if f, err = ss.ctl.AssignField(f.ID, a); err != nil {
				return nil, err
			}
		}
		return gin.H{"field_id": f.ID}, nil
	})
}

func (s *Server) updateField(c *gin.Context) {
	var body struct {
		X        *float64 `json:"x"`
		Y        *float64 `json:"y"`
		Page     int      `json:"page"`
		Width    *float64 `json:"width"`
		Height   *float64 `json:"height"`
		Assignee *string  `json:"assignee"`
		Label    *string  `json:"label"`
	}
	if err := bind(c, &body); err != nil {
		failErr(c, err)
		return
	}
	id := c.Param("fieldId")

	s.mutate(c, func(_ context.Context, ss *session) (gin.H, error) {
		if err := ss.layout(); err != nil {
			return nil, err
		}
		f, ok := ss.ctl.Document().Field(id)
		if !ok {
			return nil, fmt.Errorf("%w: field %s", document.ErrNotFound, id)
		}
		if body.X != nil || body.Y != nil || body.Page > 0 {
			pos := f.Position
			if body.X != nil {
				pos.X = *body.X
			}
			if body.Y != nil {
				pos.Y = *body.Y
			}
			if _, err := ss.ctl.MoveField(id, pos, body.Page); err != nil {
				return nil, err
			}
		}
		if body.Width != nil || body.Height != nil {
			sz := f.Size
			if body.Width != nil {
				sz.W = *body.Width
			}
			if body.Height != nil {
				sz.H = *body.Height
			}
			if _, err := ss.ctl.ResizeField(id, sz); err != nil {
				return nil, err
			}
		}
		if body.Assignee != nil {
			a, err := document.ParseAssignee(*body.Assignee)
			if err != nil {
				return nil, err
			}
			if _, err := ss.ctl.AssignField(id, a); err != nil {
				return nil, err
			}
		}
		if body.Label != nil {
			if _, err := ss.ctl.RelabelField(id, *body.Label); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}

func (s *Server) deleteField(c *gin.Context) {
	id := c.Param("fieldId")
	s.mutate(c, func(_ context.Context, ss *session) (gin.H, error) {
		if err := ss.layout(); err != nil {
			return nil, err
		}
		return nil, ss.ctl.DeleteField(id)
	})
}

func (s *Server) fillField(c *gin.Context) {
	var body struct {
		Value string `json:"value"`
	}
	if err := bind(c, &body); err != nil {
		failErr(c, err)
		return
	}
	id := c.Param("fieldId")
	s.mutate(c, func(ctx context.Context, ss *session) (gin.H, error) {
		if err := ss.ctl.FillField(ctx, id, body.Value, ss.role); err != nil {
			return nil, err
		}
		return gin.H{"status": ss.ctl.Status()}, nil
	})
}

func (s *Server) send(c *gin.Context) {
	s.mutate(c, func(ctx context.Context, ss *session) (gin.H, error) {
		if err := ss.layout(); err != nil {
			return nil, err
		}
		return nil, ss.ctl.Send(ctx)
	})
}

func (s *Server) view(c *gin.Context) {
	s.mutate(c, func(ctx context.Context, ss *session) (gin.H, error) {
		return nil, ss.ctl.MarkViewed(ctx, ss.role)
	})
}

func (s *Server) auditTrail(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.repo.Get(ctx, id); err != nil {
		failErr(c, err)
		return
	}
	events, err := s.trail.Events(ctx, id)
	if err != nil {
		failErr(c, err)
		return
	}
	success(c, gin.H{"events": events})
}

func (s *Server) export(c *gin.Context) {
	ctx := c.Request.Context()
	rec, err := s.repo.Get(ctx, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	doc, err := document.FromRecord(rec)
	if err != nil {
		failErr(c, err)
		return
	}
	trail, err := s.trail.Events(ctx, doc.ID)
	if err != nil {
		failErr(c, err)
		return
	}
	data, err := s.exporter.Export(ctx, doc, trail)
	if err != nil {
		failErr(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(doc.Title)))
	c.Data(http.StatusOK, "application/pdf", data)
}
