package cli

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/georgepadayatti/signflow/audit"
	"github.com/georgepadayatti/signflow/document"
)

func writeSignature(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 4))
	img.Set(2, 2, color.NRGBA{0, 0, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	path := filepath.Join(dir, "signature.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestSigningWorkflow(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	docPath := filepath.Join(dir, "lease.json")
	mdPath := filepath.Join(dir, "lease.md")
	if err := os.WriteFile(mdPath, []byte("# Lease\n\nThe tenant agrees.\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	doc, err := compose(docPath, &ComposeOptions{Title: "Lease", Background: "text", Markdown: mdPath})
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if doc.Pages != 1 || !strings.Contains(doc.PageContent(1), "<h1>Lease</h1>") {
		t.Errorf("Unexpected composed document %+v", doc)
	}

	f, err := placeField(docPath, &FieldOptions{Type: "signature", Page: 1, X: 50, Y: 80, Assignee: "contact"})
	if err != nil {
		t.Fatalf("placeField failed: %v", err)
	}
	if f.Assignee != document.AssigneeContact {
		t.Errorf("Expected a contact field, got %s", f.Assignee)
	}

	signing := &SigningOptions{Role: "contact", IP: "198.51.100.4", Field: f.ID, ValueFile: writeSignature(t, dir)}
	if _, err := fill(ctx, docPath, signing); err == nil {
		t.Error("Expected filling a draft to fail")
	}

	status, err := send(ctx, docPath, "", "")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if status != document.StatusSent {
		t.Errorf("Expected status sent, got %s", status)
	}
	if err := view(ctx, docPath, signing); err != nil {
		t.Fatalf("view failed: %v", err)
	}

	status, err = fill(ctx, docPath, signing)
	if err != nil {
		t.Fatalf("fill failed: %v", err)
	}
	if status != document.StatusCompleted {
		t.Errorf("Expected status completed, got %s", status)
	}

	events, err := readTrail(trailPathFor(docPath))
	if err != nil {
		t.Fatalf("readTrail failed: %v", err)
	}
	for _, action := range []audit.Action{audit.ActionSent, audit.ActionViewedByClient, audit.ActionSignedByClient, audit.ActionCompleted} {
		if n := audit.Count(events, action); n != 1 {
			t.Errorf("Expected one %s event, got %d", action, n)
		}
	}

	out := filepath.Join(dir, "lease.pdf")
	got, err := exportDocument(ctx, docPath, &ExportOptions{Output: out})
	if err != nil {
		t.Fatalf("exportDocument failed: %v", err)
	}
	data, err := os.ReadFile(got)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Error("Expected a PDF")
	}
}

func TestPlaceFieldRejectsUnknownType(t *testing.T) {
	docPath := filepath.Join(t.TempDir(), "doc.json")
	if _, err := compose(docPath, &ComposeOptions{Title: "Doc", Background: "text"}); err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if _, err := placeField(docPath, &FieldOptions{Type: "stamp", Page: 1}); err == nil {
		t.Error("Expected an error for an unknown field type")
	}
}

func TestFieldValue(t *testing.T) {
	dir := t.TempDir()
	textPath := filepath.Join(dir, "name.txt")
	if err := os.WriteFile(textPath, []byte("Kari Nordmann\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	tests := []struct {
		name   string
		opts   SigningOptions
		prefix string
	}{
		{"inline", SigningOptions{Value: "2026-04-02"}, "2026-04-02"},
		{"text file", SigningOptions{ValueFile: textPath}, "Kari Nordmann"},
		{"image file", SigningOptions{ValueFile: writeSignature(t, dir)}, "data:image/png;base64,"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fieldValue(&tt.opts)
			if err != nil {
				t.Fatalf("fieldValue failed: %v", err)
			}
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("Expected prefix %q, got %q", tt.prefix, got)
			}
			if tt.name == "text file" && got != "Kari Nordmann" {
				t.Errorf("Expected the trailing newline trimmed, got %q", got)
			}
		})
	}
}

func TestTrailPathFor(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"lease.json", "lease.audit.json"},
		{"/tmp/docs/lease", "/tmp/docs/lease.audit.json"},
	}
	for _, tt := range tests {
		if got := trailPathFor(tt.in); got != tt.want {
			t.Errorf("Expected %s, got %s", tt.want, got)
		}
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var code int
	osExit = func(c int) { code = c }
	defer func() { osExit = os.Exit }()

	Run([]string{"signflow", "notarize"})
	if code != 2 {
		t.Errorf("Expected exit code 2, got %d", code)
	}
}
