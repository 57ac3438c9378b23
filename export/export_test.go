package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/georgepadayatti/signflow/audit"
	"github.com/georgepadayatti/signflow/certificate"
	"github.com/georgepadayatti/signflow/document"
	"github.com/georgepadayatti/signflow/geometry"
	"github.com/georgepadayatti/signflow/pdf/generic"
	"github.com/georgepadayatti/signflow/pdf/reader"
	"github.com/georgepadayatti/signflow/pdf/writer"
)

type mapLoader map[string][]byte

func (m mapLoader) Load(_ context.Context, ref string) ([]byte, error) {
	data, ok := m[ref]
	if !ok {
		return nil, errors.New("not found: " + ref)
	}
	return data, nil
}

func encodePNG(t *testing.T, c color.Color, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func dataURI(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func sourcePDF(t *testing.T, pages int) []byte {
	t.Helper()
	return sourcePDFWithContent(t, pages, "0 0 m\n")
}

func sourcePDFWithContent(t *testing.T, pages int, content string) []byte {
	t.Helper()
	w := writer.NewPdfFileWriter()
	for i := 0; i < pages; i++ {
		if _, err := w.AppendPage(generic.Rectangle{URX: 595, URY: 842}, []byte(content), nil); err != nil {
			t.Fatalf("AppendPage failed: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := w.Write(&buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return buf.Bytes()
}

func readPDF(t *testing.T, data []byte) *reader.PdfFileReader {
	t.Helper()
	r, err := reader.NewPdfFileReaderFromBytes(data)
	if err != nil {
		t.Fatalf("Reader failed: %v", err)
	}
	return r
}

func pageContent(t *testing.T, r *reader.PdfFileReader, index int) []byte {
	t.Helper()
	page, err := r.Page(index)
	if err != nil {
		t.Fatalf("Page(%d) failed: %v", index, err)
	}
	body, err := r.Contents(page)
	if err != nil {
		t.Fatalf("Contents failed: %v", err)
	}
	return body
}

func trail() []audit.Event {
	t0 := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	return []audit.Event{
		{Action: audit.ActionSent, Timestamp: t0},
		{Action: audit.ActionSignedByClient, Timestamp: t0.Add(time.Minute)},
		{Action: audit.ActionCompleted, Timestamp: t0.Add(time.Minute)},
	}
}

func TestForDocument(t *testing.T) {
	tests := []struct {
		kind document.BackgroundKind
		want string
	}{
		{document.BackgroundExistingPdf, "overlay"},
		{document.BackgroundRichText, "raster"},
		{document.BackgroundImage, "raster"},
	}
	for _, tt := range tests {
		doc := document.New("x")
		doc.Background = tt.kind
		s, err := ForDocument(doc, Deps{})
		if err != nil {
			t.Fatalf("ForDocument(%q) failed: %v", tt.kind, err)
		}
		var got string
		switch s.(type) {
		case *OverlayStrategy:
			got = "overlay"
		case *RasterStrategy:
			got = "raster"
		}
		if got != tt.want {
			t.Errorf("ForDocument(%q): expected %s, got %s", tt.kind, tt.want, got)
		}
	}

	if _, err := ForDocument(document.New("x"), Deps{}); !errors.Is(err, ErrExportFailure) {
		t.Errorf("Expected ErrExportFailure without a background, got %v", err)
	}
}

func TestOverlayExport(t *testing.T) {
	doc := document.New("Lease")
	if err := doc.SetBackground(document.BackgroundExistingPdf, "mem://lease.pdf"); err != nil {
		t.Fatalf("SetBackground failed: %v", err)
	}
	doc.Fields = []document.Field{
		{
			ID: "sig", Type: document.FieldSignature, PageNumber: 1, Assignee: document.AssigneeContact,
			Position: geometry.Percent{X: 50, Y: 90}, Size: document.DefaultSize(document.FieldSignature),
			Value: dataURI(encodePNG(t, color.Black, 20, 4)),
		},
		{
			ID: "ghost", Type: document.FieldText, PageNumber: 3, Assignee: document.AssigneeContact,
			Position: geometry.Percent{X: 10, Y: 10}, Size: document.DefaultSize(document.FieldText),
			Value: "off the end",
		},
		{
			ID: "broken", Type: document.FieldImage, PageNumber: 1, Assignee: document.AssigneeContact,
			Position: geometry.Percent{X: 10, Y: 10}, Size: geometry.Size{W: 50, H: 50},
			Value: "data:image/png;base64,bm90IGFuIGltYWdl",
		},
	}

	e := NewExporter(Deps{Loader: mapLoader{"mem://lease.pdf": sourcePDF(t, 1)}}, nil)
	out, err := e.Export(context.Background(), doc, trail())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	r := readPDF(t, out)
	if r.NumPages() != 2 {
		t.Fatalf("Expected the source page plus a certificate, got %d pages", r.NumPages())
	}
	body := pageContent(t, r, 0)
	if !bytes.Contains(body, []byte("1 0 0 1 297.5 44.2 cm\n/SFStamp1 Do")) {
		t.Errorf("Expected the signature at the mapped position, got %q", body)
	}
	if bytes.Contains(body, []byte("SFStamp2")) {
		t.Error("Expected the broken image to be skipped")
	}
	cert := pageContent(t, r, 1)
	if !bytes.Contains(cert, []byte("(Signature Certificate) Tj")) {
		t.Error("Expected the certificate as the last page")
	}
}

func TestExportDigestCoversSource(t *testing.T) {
	doc := document.New("Lease")
	if err := doc.SetBackground(document.BackgroundExistingPdf, "mem://lease.pdf"); err != nil {
		t.Fatalf("SetBackground failed: %v", err)
	}

	certFor := func(source []byte) []byte {
		e := NewExporter(Deps{Loader: mapLoader{"mem://lease.pdf": source}}, nil)
		out, err := e.Export(context.Background(), doc, trail())
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		return pageContent(t, readPDF(t, out), 1)
	}

	first := sourcePDFWithContent(t, 1, "0 0 m\n")
	second := sourcePDFWithContent(t, 1, "10 10 m\n")
	want := certificate.DocumentDigest(doc, first)
	if cert := certFor(first); !bytes.Contains(cert, []byte(want)) {
		t.Errorf("Expected %q on the certificate, got %q", want, cert)
	}
	if bytes.Equal(certFor(first), certFor(second)) {
		t.Error("Expected a different source file to change the certificate digest")
	}
}

func TestOverlayExportFailures(t *testing.T) {
	doc := document.New("Lease")
	if err := doc.SetBackground(document.BackgroundExistingPdf, "mem://missing.pdf"); err != nil {
		t.Fatalf("SetBackground failed: %v", err)
	}
	e := NewExporter(Deps{Loader: mapLoader{"mem://bad.pdf": []byte("not a pdf")}}, nil)
	out, err := e.Export(context.Background(), doc, nil)
	if !errors.Is(err, ErrExportFailure) || out != nil {
		t.Errorf("Expected ErrExportFailure and no output for a missing source, got %v", err)
	}

	doc.FileURL = "mem://bad.pdf"
	if _, err := e.Export(context.Background(), doc, nil); !errors.Is(err, ErrExportFailure) {
		t.Errorf("Expected ErrExportFailure for an unreadable source, got %v", err)
	}
}

func TestRasterExport(t *testing.T) {
	doc := document.New("Notes")
	if err := doc.SetBackground(document.BackgroundRichText, ""); err != nil {
		t.Fatalf("SetBackground failed: %v", err)
	}
	doc.AddPage()
	if err := doc.SetPageContent(1, "<p>Hello</p>"); err != nil {
		t.Fatalf("SetPageContent failed: %v", err)
	}

	e := NewExporter(Deps{}, nil)
	out, err := e.Export(context.Background(), doc, trail())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	r := readPDF(t, out)
	if r.NumPages() != 3 {
		t.Fatalf("Expected 2 pages plus a certificate, got %d", r.NumPages())
	}
	for i := 0; i < 2; i++ {
		page, _ := r.Page(i)
		if page.MediaBox.Width() != 595 || page.MediaBox.Height() != 842 {
			t.Errorf("Page %d: expected A4, got %+v", i+1, page.MediaBox)
		}
		if !bytes.Contains(pageContent(t, r, i), []byte("595 0 0 842 0 0 cm\n/Page Do")) {
			t.Errorf("Page %d: expected a full page image", i+1)
		}
	}
}

func TestRasterExportImageBackground(t *testing.T) {
	doc := document.New("Scan")
	if err := doc.SetBackground(document.BackgroundImage, "mem://scan.png"); err != nil {
		t.Fatalf("SetBackground failed: %v", err)
	}
	e := NewExporter(Deps{Loader: mapLoader{"mem://scan.png": encodePNG(t, color.White, 40, 60)}}, nil)
	out, err := e.Export(context.Background(), doc, nil)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if n := readPDF(t, out).NumPages(); n != 2 {
		t.Errorf("Expected 2 pages, got %d", n)
	}

	doc.FileURL = "mem://gone.png"
	if _, err := e.Export(context.Background(), doc, nil); !errors.Is(err, ErrExportFailure) {
		t.Errorf("Expected ErrExportFailure for a missing background, got %v", err)
	}
}

func TestExportCanceled(t *testing.T) {
	doc := document.New("Notes")
	if err := doc.SetBackground(document.BackgroundRichText, ""); err != nil {
		t.Fatalf("SetBackground failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := NewExporter(Deps{}, nil).Export(ctx, doc, nil)
	if !errors.Is(err, ErrExportFailure) || !errors.Is(err, context.Canceled) {
		t.Errorf("Expected a canceled export failure, got %v", err)
	}
	if out != nil {
		t.Error("Expected no partial output")
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		title, want string
	}{
		{"Lease", "Lease_preview.pdf"},
		{"  a/b\\c ", "a_b_c_preview.pdf"},
		{"", "document_preview.pdf"},
		{"line\nbreak", "line_break_preview.pdf"},
	}
	for _, tt := range tests {
		if got := FileName(tt.title); got != tt.want {
			t.Errorf("FileName(%q): expected %q, got %q", tt.title, tt.want, got)
		}
	}
}
