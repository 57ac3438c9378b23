// Package images turns raster images into PDF image XObjects.
package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/georgepadayatti/signflow/pdf/generic"
)

// Common errors
var (
	ErrDecodeFailed      = errors.New("image decode failed")
	ErrInvalidDimensions = errors.New("invalid image dimensions")
)

// Adder stores an object and returns its reference.
type Adder interface {
	AddObject(obj generic.Object) generic.Reference
}

// XObject is an embedded image.
type XObject struct {
	Ref    generic.Reference
	Width  int
	Height int
}

// Embed decodes data (PNG, JPEG, GIF, BMP, TIFF or WebP) and adds it as an
// image XObject. Baseline JPEG data is passed through unchanged.
func Embed(w Adder, data []byte) (XObject, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return XObject{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	if format == "jpeg" && cfg.ColorModel != color.CMYKModel {
		stream, err := FromJPEG(data)
		if err != nil {
			return XObject{}, err
		}
		return XObject{Ref: w.AddObject(stream), Width: cfg.Width, Height: cfg.Height}, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return XObject{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return EmbedImage(w, img)
}

// EmbedImage adds a decoded image, with a soft mask when it has
// transparency.
func EmbedImage(w Adder, img image.Image) (XObject, error) {
	stream, mask, err := FromImage(img)
	if err != nil {
		return XObject{}, err
	}
	if mask != nil {
		stream.Dict.Set("SMask", w.AddObject(mask))
	}
	b := img.Bounds()
	return XObject{Ref: w.AddObject(stream), Width: b.Dx(), Height: b.Dy()}, nil
}

// FromImage converts img to an 8-bit RGB Flate stream. The second result is
// a DeviceGray soft mask, or nil when the image is fully opaque.
func FromImage(img image.Image) (*generic.Stream, *generic.Stream, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, nil, ErrInvalidDimensions
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Rect, img, b.Min, draw.Src)
	}

	w, h := b.Dx(), b.Dy()
	rgb := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	opaque := true
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w*4; x += 4 {
			rgb = append(rgb, row[x], row[x+1], row[x+2])
			alpha = append(alpha, row[x+3])
			if row[x+3] != 0xFF {
				opaque = false
			}
		}
	}

	stream, err := generic.NewFlateStream(imageDict(w, h, "DeviceRGB"), rgb)
	if err != nil {
		return nil, nil, err
	}
	if opaque {
		return stream, nil, nil
	}
	mask, err := generic.NewFlateStream(imageDict(w, h, "DeviceGray"), alpha)
	if err != nil {
		return nil, nil, err
	}
	return stream, mask, nil
}

// FromJPEG wraps JPEG data in a DCTDecode stream.
func FromJPEG(data []byte) (*generic.Stream, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	cs := "DeviceRGB"
	if cfg.ColorModel == color.GrayModel {
		cs = "DeviceGray"
	}
	dict := imageDict(cfg.Width, cfg.Height, cs)
	dict.Set("Filter", generic.Name("DCTDecode"))
	return generic.NewStream(dict, data), nil
}

func imageDict(w, h int, colorSpace string) *generic.Dictionary {
	return generic.Dict(
		"Type", generic.Name("XObject"),
		"Subtype", generic.Name("Image"),
		"Width", generic.Integer(w),
		"Height", generic.Integer(h),
		"ColorSpace", generic.Name(colorSpace),
		"BitsPerComponent", generic.Integer(8),
	)
}
