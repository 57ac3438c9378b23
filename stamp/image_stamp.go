package stamp

import (
	"fmt"

	"github.com/georgepadayatti/signflow/pdf/content"
	"github.com/georgepadayatti/signflow/pdf/generic"
	"github.com/georgepadayatti/signflow/pdf/images"
)

// ImageStamp draws a raster stretched to fill its box.
type ImageStamp struct {
	Data   []byte
	Width  float64
	Height float64
}

// NewImageStamp creates an image stamp from encoded image data.
func NewImageStamp(data []byte, width, height float64) *ImageStamp {
	return &ImageStamp{Data: data, Width: width, Height: height}
}

// CreateAppearanceStream embeds the image through w and returns a form
// that paints it over the whole box.
func (s *ImageStamp) CreateAppearanceStream(w images.Adder) (*generic.Stream, error) {
	img, err := images.Embed(w, s.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbed, err)
	}
	data := content.NewBuilder().
		SaveState().
		Transform(s.Width, 0, 0, s.Height, 0, 0).
		DrawXObject("Im0").
		RestoreState().
		Bytes()
	resources := generic.Dict("XObject", generic.Dict("Im0", img.Ref))
	return formXObject(s.Width, s.Height, data, resources), nil
}

// GetDimensions implements Stamper.
func (s *ImageStamp) GetDimensions() (width, height float64) {
	return s.Width, s.Height
}
