package images

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/georgepadayatti/signflow/pdf/generic"
)

type collector struct {
	objects []generic.Object
}

func (c *collector) AddObject(obj generic.Object) generic.Reference {
	c.objects = append(c.objects, obj)
	return generic.Ref(len(c.objects))
}

func TestFromImageOpaque(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	img.Set(1, 0, color.RGBA{0, 0, 255, 255})

	stream, mask, err := FromImage(img)
	if err != nil {
		t.Fatalf("FromImage failed: %v", err)
	}
	if mask != nil {
		t.Error("Expected no soft mask for an opaque image")
	}
	data, err := stream.Decoded()
	if err != nil {
		t.Fatalf("Decoded failed: %v", err)
	}
	expected := []byte{255, 0, 0, 0, 0, 255}
	if !bytes.Equal(data, expected) {
		t.Errorf("Expected %v, got %v", expected, data)
	}
	if w, _ := stream.Dict.Int("Width"); w != 2 {
		t.Errorf("Expected width 2, got %d", w)
	}
}

func TestEmbedTransparentPNG(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.Set(1, 1, color.NRGBA{0, 0, 0, 128})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}

	c := &collector{}
	x, err := Embed(c, buf.Bytes())
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if x.Width != 3 || x.Height != 2 {
		t.Errorf("Expected 3x2, got %dx%d", x.Width, x.Height)
	}
	if len(c.objects) != 2 {
		t.Fatalf("Expected image and soft mask objects, got %d", len(c.objects))
	}
	s := c.objects[x.Ref.Number-1].(*generic.Stream)
	if _, ok := s.Dict.Get("SMask").(generic.Reference); !ok {
		t.Error("Expected the image to reference its soft mask")
	}
}

func TestEmbedJPEGPassthrough(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode failed: %v", err)
	}

	c := &collector{}
	if _, err := Embed(c, buf.Bytes()); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	s := c.objects[0].(*generic.Stream)
	if s.Dict.Name("Filter") != "DCTDecode" || !bytes.Equal(s.Data, buf.Bytes()) {
		t.Error("Expected JPEG bytes to be embedded unchanged")
	}
}

func TestEmbedRejectsGarbage(t *testing.T) {
	if _, err := Embed(&collector{}, []byte("not an image")); err == nil {
		t.Error("Expected an error for undecodable data")
	}
}
