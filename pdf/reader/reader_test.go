package reader

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/georgepadayatti/signflow/pdf/generic"
)

// buildPDF lays out numbered object bodies and a classic xref table.
func buildPDF(bodies []string, trailer string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	offsets := make([]int, len(bodies))
	for i, body := range bodies {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(bodies)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R %s >>\nstartxref\n%d\n%%%%EOF\n", len(bodies)+1, trailer, xref)
	return buf.Bytes()
}

func twoPageBodies() []string {
	return []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 /MediaBox [0 0 595 842] /Resources << /Font << /F1 5 0 R >> >> >>",
		"<< /Type /Page /Parent 2 0 R /Contents 6 0 R >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 842 595] /Rotate -90 /Resources << >> >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		"<< /Length 8 >>\nstream\nBT ET q\nendstream",
	}
}

func TestReadPageTree(t *testing.T) {
	r, err := NewPdfFileReaderFromBytes(buildPDF(twoPageBodies(), ""))
	if err != nil {
		t.Fatalf("NewPdfFileReaderFromBytes failed: %v", err)
	}
	if r.Version != "1.7" {
		t.Errorf("Expected version 1.7, got %s", r.Version)
	}
	if r.NumPages() != 2 {
		t.Fatalf("Expected 2 pages, got %d", r.NumPages())
	}

	p1, _ := r.Page(0)
	if p1.Ref.Number != 3 {
		t.Errorf("Expected first page to be object 3, got %d", p1.Ref.Number)
	}
	if p1.MediaBox.Width() != 595 || p1.MediaBox.Height() != 842 {
		t.Errorf("Expected inherited A4 media box, got %+v", p1.MediaBox)
	}
	if p1.Resources.Dict("Font") == nil {
		t.Error("Expected inherited font resources")
	}
	content, err := r.Contents(p1)
	if err != nil || !bytes.HasPrefix(content, []byte("BT ET q")) {
		t.Errorf("Expected page content, got %q (%v)", content, err)
	}

	p2, _ := r.Page(1)
	if p2.MediaBox.Width() != 842 || p2.Rotate != 270 {
		t.Errorf("Expected landscape page rotated 270, got %+v rotate %d", p2.MediaBox, p2.Rotate)
	}
	if p2.Resources.Len() != 0 {
		t.Error("Expected the page's own empty resources to override the parent")
	}

	if _, err := r.Page(2); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Expected ErrObjectNotFound, got %v", err)
	}
	if r.Size() != 7 {
		t.Errorf("Expected size 7, got %d", r.Size())
	}
}

func TestRebuildBrokenXRef(t *testing.T) {
	data := buildPDF(twoPageBodies(), "")
	// Corrupt the startxref offset.
	i := bytes.LastIndex(data, []byte("startxref"))
	broken := append(append([]byte(nil), data[:i]...), []byte("startxref\n999999\n%%EOF\n")...)

	r, err := NewPdfFileReaderFromBytes(broken)
	if err != nil {
		t.Fatalf("Expected a rebuilt reader, got %v", err)
	}
	if !r.Rebuilt {
		t.Error("Expected Rebuilt to be set")
	}
	if r.NumPages() != 2 {
		t.Errorf("Expected 2 pages, got %d", r.NumPages())
	}
}

func TestRejectsEncrypted(t *testing.T) {
	_, err := NewPdfFileReaderFromBytes(buildPDF(twoPageBodies(), "/Encrypt << /Filter /Standard >>"))
	if !errors.Is(err, ErrEncrypted) {
		t.Errorf("Expected ErrEncrypted, got %v", err)
	}
}

func TestRejectsNonPDF(t *testing.T) {
	if _, err := NewPdfFileReaderFromBytes([]byte("hello")); !errors.Is(err, ErrInvalidPDF) {
		t.Errorf("Expected ErrInvalidPDF, got %v", err)
	}
}

func TestXRefStreamAndObjectStream(t *testing.T) {
	// Objects 3 (page tree) and 4 (page) live in object stream 2.
	objs := "3 0 4 80 "
	first := len(objs)
	tree := "<< /Type /Pages /Kids [4 0 R] /Count 1 /MediaBox [0 0 100 200] >>"
	objs += tree + string(bytes.Repeat([]byte(" "), 80-len(tree)))
	objs += "<< /Type /Page /Parent 3 0 R >>"

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 3 0 R >>\nendobj\n")
	off2 := buf.Len()
	fmt.Fprintf(&buf, "2 0 obj\n<< /Type /ObjStm /N 2 /First %d /Length %d >>\nstream\n%s\nendstream\nendobj\n", first, len(objs), objs)
	off5 := buf.Len()

	row := func(kind, a, b int) []byte {
		return []byte{byte(kind), byte(a >> 8), byte(a), byte(b)}
	}
	var rows []byte
	rows = append(rows, row(0, 0, 0)...)
	rows = append(rows, row(1, off1, 0)...)
	rows = append(rows, row(1, off2, 0)...)
	rows = append(rows, row(2, 2, 0)...)
	rows = append(rows, row(2, 2, 1)...)
	rows = append(rows, row(1, off5, 0)...)
	fmt.Fprintf(&buf, "5 0 obj\n<< /Type /XRef /Size 6 /W [1 2 1] /Root 1 0 R /Length %d >>\nstream\n", len(rows))
	buf.Write(rows)
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", off5)

	r, err := NewPdfFileReaderFromBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("NewPdfFileReaderFromBytes failed: %v", err)
	}
	if !r.HasXRefStream {
		t.Error("Expected HasXRefStream")
	}
	if r.NumPages() != 1 {
		t.Fatalf("Expected 1 page, got %d", r.NumPages())
	}
	p, _ := r.Page(0)
	if p.Ref.Number != 4 || p.MediaBox.Height() != 200 {
		t.Errorf("Expected page 4 with height 200, got %d / %+v", p.Ref.Number, p.MediaBox)
	}
	if r.XRef[4].Type != EntryCompressed {
		t.Errorf("Expected object 4 to be compressed, got %v", r.XRef[4].Type)
	}
}

func TestIncrementalSectionsPreferNewest(t *testing.T) {
	data := buildPDF(twoPageBodies(), "")
	prev := bytes.LastIndex(data, []byte("\nxref\n")) + 1

	var buf bytes.Buffer
	buf.Write(data)
	off := buf.Len()
	buf.WriteString("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Courier >>\nendobj\n")
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n5 1\n%010d 00000 n \ntrailer\n<< /Size 7 /Root 1 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", off, prev, xref)

	r, err := NewPdfFileReaderFromBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("NewPdfFileReaderFromBytes failed: %v", err)
	}
	obj, err := r.GetObject(5)
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	if base := obj.(*generic.Dictionary).Name("BaseFont"); base != "Courier" {
		t.Errorf("Expected the updated font, got %s", base)
	}
	if r.StartXRef != xref {
		t.Errorf("Expected StartXRef %d, got %d", xref, r.StartXRef)
	}
}
