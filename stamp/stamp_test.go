package stamp

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/georgepadayatti/signflow/document"
	"github.com/georgepadayatti/signflow/pdf/generic"
	"github.com/georgepadayatti/signflow/pdf/reader"
	"github.com/georgepadayatti/signflow/pdf/writer"
)

func pngDataURI(t *testing.T) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for x := 0; x < 4; x++ {
		img.Set(x, 0, color.NRGBA{0, 0, 255, 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestTextStampRender(t *testing.T) {
	s := NewTextStamp("Hi", 100, 10, nil)
	want := "q\n0 0 0 rg\nBT\n/F1 6 Tf\n2 2.5 Td\n(Hi) Tj\nET\nQ\n"
	if got := string(s.Render()); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	tall := NewTextStamp("Hi", 100, 40, nil)
	if !bytes.Contains(tall.Render(), []byte("/F1 12 Tf")) {
		t.Errorf("Expected the font size capped at 12, got %q", tall.Render())
	}

	long := "Kari Nordmann, Storgata 1, 0155 Oslo"
	narrow := NewTextStamp(long, 40, 10, nil)
	out := narrow.Render()
	if bytes.Contains(out, []byte(long)) || !bytes.Contains(out, []byte("...) Tj")) {
		t.Errorf("Expected the text cut to the box width, got %q", out)
	}
	shown := out[bytes.IndexByte(out, '(')+1 : bytes.LastIndexByte(out, ')')]
	if w := narrow.Style.Font.StringWidth(string(shown), 6); w > 40-narrow.Style.Padding {
		t.Errorf("Expected at most %v points of text, got %v", 40-narrow.Style.Padding, w)
	}

	xobj, err := s.CreateAppearanceStream(nil)
	if err != nil {
		t.Fatalf("CreateAppearanceStream failed: %v", err)
	}
	if xobj.Dict.Name("Subtype") != "Form" {
		t.Error("Expected a form XObject")
	}
	font := xobj.Dict.Dict("Resources").Dict("Font").Dict("F1")
	if font.Name("BaseFont") != "Helvetica" {
		t.Errorf("Expected Helvetica, got %s", font.Name("BaseFont"))
	}
	if box := xobj.Dict.Array("BBox"); len(box) != 4 || box[2] != generic.Real(100) {
		t.Errorf("Expected a 100pt wide box, got %v", box)
	}
}

func TestForField(t *testing.T) {
	field := func(ft document.FieldType, value string) document.Field {
		return document.Field{ID: "f", Type: ft, Value: value}
	}
	tests := []struct {
		name  string
		field document.Field
		want  string
	}{
		{"empty", field(document.FieldText, ""), ""},
		{"text", field(document.FieldText, "Jane"), "*stamp.TextStamp"},
		{"date", field(document.FieldDate, "2026-01-02"), "*stamp.TextStamp"},
		{"checked", field(document.FieldCheckbox, document.CheckedValue), "*stamp.CheckStamp"},
		{"unchecked", field(document.FieldCheckbox, "no"), ""},
		{"signature", field(document.FieldSignature, pngDataURI(t)), "*stamp.ImageStamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ForField(tt.field, 100, 20, nil)
			if err != nil {
				t.Fatalf("ForField failed: %v", err)
			}
			got := ""
			switch s.(type) {
			case *TextStamp:
				got = "*stamp.TextStamp"
			case *CheckStamp:
				got = "*stamp.CheckStamp"
			case *ImageStamp:
				got = "*stamp.ImageStamp"
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}

	_, err := ForField(field(document.FieldImage, "not a data uri"), 10, 10, nil)
	if !errors.Is(err, ErrEmbed) {
		t.Errorf("Expected ErrEmbed, got %v", err)
	}
}

func TestCheckStampDrawsX(t *testing.T) {
	s := NewCheckStamp(document.CheckedValue, 20, 20, nil)
	if !bytes.Contains(s.Render(), []byte("(X) Tj")) {
		t.Errorf("Expected an X, got %q", s.Render())
	}
	if got := NewCheckStamp("", 20, 20, nil).Render(); len(got) != 0 {
		t.Errorf("Expected no drawing when unchecked, got %q", got)
	}
}

func TestImageStampEmbedFailure(t *testing.T) {
	s := NewImageStamp([]byte("garbage"), 10, 10)
	if _, err := s.CreateAppearanceStream(writer.NewPdfFileWriter()); !errors.Is(err, ErrEmbed) {
		t.Errorf("Expected ErrEmbed, got %v", err)
	}
}

func TestOverlayNaming(t *testing.T) {
	o := NewOverlay(writer.NewPdfFileWriter())
	if !o.Empty() {
		t.Error("Expected a new overlay to be empty")
	}
	o.Reserve("SFStamp1")
	if err := o.Place(NewTextStamp("a", 50, 10, nil), 10, 20); err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	want := "q\n1 0 0 1 10 20 cm\n/SFStamp2 Do\nQ\n"
	if got := string(o.Content()); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
	if !o.Resources().Dict("XObject").Has("SFStamp2") {
		t.Error("Expected the XObject resource to be registered")
	}
}

func TestApplyToExistingPage(t *testing.T) {
	src := writer.NewPdfFileWriter()
	if _, err := src.AppendPage(generic.Rectangle{URX: 595, URY: 842}, []byte("0 0 m\n"), nil); err != nil {
		t.Fatalf("AppendPage failed: %v", err)
	}
	var buf bytes.Buffer
	if err := src.Write(&buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	r, err := reader.NewPdfFileReaderFromBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("Reader failed: %v", err)
	}

	w := writer.NewIncrementalPdfFileWriter(r)
	o, err := NewPageOverlay(w, r, 0)
	if err != nil {
		t.Fatalf("NewPageOverlay failed: %v", err)
	}
	if err := o.Place(NewImageStamp(mustDecode(t, pngDataURI(t)), 80, 40), 100, 700); err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if err := o.ApplyTo(w, 0); err != nil {
		t.Fatalf("ApplyTo failed: %v", err)
	}
	var out bytes.Buffer
	if err := w.Write(&out); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	r2, err := reader.NewPdfFileReaderFromBytes(out.Bytes())
	if err != nil {
		t.Fatalf("Reader on stamped file failed: %v", err)
	}
	page, _ := r2.Page(0)
	body, err := r2.Contents(page)
	if err != nil {
		t.Fatalf("Contents failed: %v", err)
	}
	if !bytes.Contains(body, []byte("1 0 0 1 100 700 cm\n/SFStamp1 Do")) {
		t.Errorf("Expected the stamp at its position, got %q", body)
	}
}

func mustDecode(t *testing.T, uri string) []byte {
	t.Helper()
	i := bytes.IndexByte([]byte(uri), ',')
	data, err := base64.StdEncoding.DecodeString(uri[i+1:])
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return data
}
