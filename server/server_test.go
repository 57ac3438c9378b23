package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/georgepadayatti/signflow/audit"
	"github.com/georgepadayatti/signflow/document"
	"github.com/georgepadayatti/signflow/geoip"
	"github.com/georgepadayatti/signflow/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type docData struct {
	Document document.Record `json:"document"`
	FieldID  string          `json:"field_id"`
	Status   string          `json:"status"`
}

func newTestServer(t *testing.T) (*gin.Engine, *store.MemoryAudit) {
	t.Helper()
	trail := store.NewMemoryAudit()
	clock := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	s, err := New(Deps{Repo: store.NewMemory(), Audit: trail},
		WithGeo(geoip.Static{IP: "203.0.113.9", City: "Oslo", Country: "Norway"}),
		WithDirectory(audit.Directory{document.AssigneeContact: {Name: "Kari", Email: "kari@example.com"}}),
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s.Router(), trail
}

func call(t *testing.T, r http.Handler, method, path, role string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode failed: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set(HeaderRole, role)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: bad envelope %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, env
}

func decode(t *testing.T, env envelope) docData {
	t.Helper()
	var d docData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		t.Fatalf("decode data failed: %v", err)
	}
	return d
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("Expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func signatureURI(t *testing.T) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 4))
	img.Set(1, 1, color.NRGBA{0, 0, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func createDoc(t *testing.T, r http.Handler) string {
	t.Helper()
	w, env := call(t, r, http.MethodPost, "/documents", "", map[string]any{"title": "Lease", "background": "text"})
	expectStatus(t, w, http.StatusCreated)
	d := decode(t, env)
	if d.Document.ID == "" || d.Document.Status != "draft" {
		t.Fatalf("Unexpected created record %+v", d.Document)
	}
	return d.Document.ID
}

func placeSignature(t *testing.T, r http.Handler, id string) string {
	t.Helper()
	w, env := call(t, r, http.MethodPost, "/documents/"+id+"/fields", "", map[string]any{
		"type":        "signature",
		"page":        1,
		"pointer":     map[string]float64{"x": 397.5, "y": 100},
		"page_origin": map[string]float64{"x": 100, "y": 15.8},
		"rendered":    map[string]float64{"width": 595, "height": 842},
	})
	expectStatus(t, w, http.StatusOK)
	return decode(t, env).FieldID
}

func TestSigningFlow(t *testing.T) {
	r, trail := newTestServer(t)
	id := createDoc(t, r)

	w, env := call(t, r, http.MethodPut, "/documents/"+id+"/pages/1/content", "", map[string]string{"markdown": "# Lease\n\nTerms apply."})
	expectStatus(t, w, http.StatusOK)
	if got := decode(t, env).Document.Metadata.Content["1"]; !strings.Contains(got, "<h1>Lease</h1>") {
		t.Errorf("Expected the markdown as markup, got %q", got)
	}

	fieldID := placeSignature(t, r, id)
	if fieldID == "" {
		t.Fatal("Expected a field id")
	}

	w, _ = call(t, r, http.MethodPut, "/documents/"+id+"/fields/"+fieldID+"/value", "contact", map[string]string{"value": "x"})
	expectStatus(t, w, http.StatusForbidden)

	w, _ = call(t, r, http.MethodPost, "/documents/"+id+"/send", "", nil)
	expectStatus(t, w, http.StatusOK)

	w, env = call(t, r, http.MethodPut, "/documents/"+id+"/background", "", map[string]string{"type": "image", "file_url": "x.png"})
	expectStatus(t, w, http.StatusConflict)
	if env.Code != CodeConflict {
		t.Errorf("Expected code %s, got %s", CodeConflict, env.Code)
	}

	w, _ = call(t, r, http.MethodPost, "/documents/"+id+"/view", "contact", nil)
	expectStatus(t, w, http.StatusOK)

	w, _ = call(t, r, http.MethodPut, "/documents/"+id+"/fields/"+fieldID+"/value", "business", map[string]string{"value": signatureURI(t)})
	expectStatus(t, w, http.StatusForbidden)

	w, env = call(t, r, http.MethodPut, "/documents/"+id+"/fields/"+fieldID+"/value", "contact", map[string]string{"value": signatureURI(t)})
	expectStatus(t, w, http.StatusOK)
	if d := decode(t, env); d.Status != "completed" || d.Document.Status != "completed" {
		t.Errorf("Expected the document to complete, got %+v", d)
	}

	events, _ := trail.Events(context.Background(), id)
	want := map[audit.Action]int{
		audit.ActionSent:           1,
		audit.ActionViewedByClient: 1,
		audit.ActionFieldUpdated:   1,
		audit.ActionSignedByClient: 1,
		audit.ActionCompleted:      1,
	}
	for action, n := range want {
		if got := audit.Count(events, action); got != n {
			t.Errorf("Expected %d %s events, got %d", n, action, got)
		}
	}

	w, _ = call(t, r, http.MethodGet, "/documents/"+id+"/export", "", nil)
	expectStatus(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Expected application/pdf, got %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="Lease_preview.pdf"` {
		t.Errorf("Unexpected Content-Disposition %q", cd)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")) {
		t.Error("Expected a PDF body")
	}
}

func TestFieldPlacementFromPointer(t *testing.T) {
	r, _ := newTestServer(t)
	id := createDoc(t, r)
	fieldID := placeSignature(t, r, id)

	w, env := call(t, r, http.MethodGet, "/documents/"+id, "", nil)
	expectStatus(t, w, http.StatusOK)
	fields := decode(t, env).Document.Metadata.Fields
	if len(fields) != 1 || fields[0].ID != fieldID {
		t.Fatalf("Expected the placed field, got %+v", fields)
	}
	f := fields[0]
	if f.X != 50 || f.Y < 9.99 || f.Y > 10.01 || f.Width != 200 || f.Height != 40 || f.Assignee != "contact" {
		t.Errorf("Unexpected field %+v", f)
	}

	label := "Tenant"
	w, env = call(t, r, http.MethodPatch, "/documents/"+id+"/fields/"+fieldID, "", map[string]any{"x": 20, "label": label, "assignee": "business"})
	expectStatus(t, w, http.StatusOK)
	f = decode(t, env).Document.Metadata.Fields[0]
	if f.X != 20 || f.Label != label || f.Assignee != "business" {
		t.Errorf("Unexpected patched field %+v", f)
	}

	w, _ = call(t, r, http.MethodPatch, "/documents/"+id+"/fields/"+fieldID, "", map[string]any{"page": 7})
	expectStatus(t, w, http.StatusBadRequest)

	w, _ = call(t, r, http.MethodPatch, "/documents/"+id+"/fields/"+fieldID, "contact", map[string]any{"x": 1})
	expectStatus(t, w, http.StatusForbidden)

	w, env = call(t, r, http.MethodDelete, "/documents/"+id+"/fields/"+fieldID, "", nil)
	expectStatus(t, w, http.StatusOK)
	if n := len(decode(t, env).Document.Metadata.Fields); n != 0 {
		t.Errorf("Expected no fields after delete, got %d", n)
	}
}

func TestErrorMapping(t *testing.T) {
	r, _ := newTestServer(t)
	id := createDoc(t, r)

	tests := []struct {
		name   string
		method string
		path   string
		role   string
		body   any
		status int
		code   string
	}{
		{"unknown document", http.MethodGet, "/documents/missing", "", nil, http.StatusNotFound, CodeNotFound},
		{"unknown role", http.MethodPost, "/documents/" + id + "/send", "auditor", nil, http.StatusForbidden, CodeForbidden},
		{"zero rendered size", http.MethodPost, "/documents/" + id + "/fields", "", map[string]any{"type": "text"}, http.StatusBadRequest, CodeBadRequest},
		{"unknown field type", http.MethodPost, "/documents/" + id + "/fields", "", map[string]any{"type": "stamp"}, http.StatusBadRequest, CodeBadRequest},
		{"bad page", http.MethodPut, "/documents/" + id + "/pages/x/content", "", map[string]string{"markup": "<p>a</p>"}, http.StatusBadRequest, CodeBadRequest},
		{"unknown field", http.MethodPut, "/documents/" + id + "/fields/nope/value", "", map[string]string{"value": "a"}, http.StatusNotFound, CodeNotFound},
		{"missing title", http.MethodPost, "/documents", "", map[string]string{}, http.StatusBadRequest, CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := call(t, r, tt.method, tt.path, tt.role, tt.body)
			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if env.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, env.Code)
			}
		})
	}
}

func TestExportWithoutBackground(t *testing.T) {
	r, _ := newTestServer(t)
	w, env := call(t, r, http.MethodPost, "/documents", "", map[string]any{"title": "Empty"})
	expectStatus(t, w, http.StatusCreated)
	id := decode(t, env).Document.ID

	w, env = call(t, r, http.MethodGet, "/documents/"+id+"/export", "", nil)
	expectStatus(t, w, http.StatusBadGateway)
	if env.Code != CodeBadGateway {
		t.Errorf("Expected code %s, got %s", CodeBadGateway, env.Code)
	}
}

func TestFrozenLayout(t *testing.T) {
	r, _ := newTestServer(t)
	id := createDoc(t, r)
	fieldID := placeSignature(t, r, id)

	w, _ := call(t, r, http.MethodGet, "/documents/"+id+"/layout", "contact", nil)
	expectStatus(t, w, http.StatusConflict)

	w, _ = call(t, r, http.MethodPost, "/documents/"+id+"/repaginate", "", nil)
	expectStatus(t, w, http.StatusOK)

	w, _ = call(t, r, http.MethodPost, "/documents/"+id+"/send", "", nil)
	expectStatus(t, w, http.StatusOK)
	w, _ = call(t, r, http.MethodPost, "/documents/"+id+"/repaginate", "", nil)
	expectStatus(t, w, http.StatusConflict)
	w, _ = call(t, r, http.MethodPut, "/documents/"+id+"/fields/"+fieldID+"/value", "contact", map[string]string{"value": signatureURI(t)})
	expectStatus(t, w, http.StatusOK)

	w, env := call(t, r, http.MethodGet, "/documents/"+id+"/layout", "contact", nil)
	expectStatus(t, w, http.StatusOK)
	var layout struct {
		Fields   []document.FieldRecord `json:"fields"`
		FrozenAt time.Time              `json:"frozen_at"`
	}
	if err := json.Unmarshal(env.Data, &layout); err != nil {
		t.Fatalf("decode layout failed: %v", err)
	}
	if len(layout.Fields) != 1 || layout.Fields[0].ID != fieldID || layout.Fields[0].Value != "" {
		t.Errorf("Expected the unfilled layout from send time, got %+v", layout.Fields)
	}
	if layout.FrozenAt.IsZero() {
		t.Error("Expected the time the layout was frozen")
	}
}
