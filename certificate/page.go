package certificate

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/georgepadayatti/signflow/geometry"
	"github.com/georgepadayatti/signflow/logging"
	"github.com/georgepadayatti/signflow/pdf/content"
	"github.com/georgepadayatti/signflow/pdf/fonts"
	"github.com/georgepadayatti/signflow/pdf/generic"
	"github.com/georgepadayatti/signflow/pdf/images"
	"github.com/georgepadayatti/signflow/pdf/writer"
)

const (
	margin      = 56.0
	blockHeight = 96.0
	footerTop   = margin + 40
	sigWidth    = 160.0
	sigHeight   = 60.0
	timeLayout  = "2006-01-02 15:04:05 UTC"
)

var (
	regular = fonts.New(fonts.Helvetica)
	bold    = fonts.New(fonts.HelveticaBold)
)

// Placement is a signature raster positioned on the page.
type Placement struct {
	Data []byte
	X, Y float64
	W, H float64
}

// Layout is the drawn certificate before images are embedded.
type Layout struct {
	Content []byte
	Images  []Placement
	// Hidden counts signers summarised in the "+N more signers" line.
	Hidden int
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

type pen struct {
	b *content.Builder
}

func (p pen) text(f *fonts.Font, res string, size, x, y float64, s string) {
	s = f.Truncate(s, size, geometry.A4Width-margin-x)
	p.b.BeginText().SetFont(res, size).TextPosition(x, y).ShowText(f.Encode(s)).EndText()
}

func (p pen) rule(y float64) {
	p.b.SetStrokeRGB(0.8, 0.8, 0.8).SetLineWidth(0.5).
		MoveTo(margin, y).LineTo(geometry.A4Width-margin, y).Stroke()
}

// Page lays out the single certificate page.
func Page(data Data) *Layout {
	b := content.NewBuilder()
	p := pen{b}
	l := &Layout{}

	y := geometry.A4Height - margin - 18
	p.text(bold, "F2", 18, margin, y, "Signature Certificate")
	y -= 26
	for _, line := range []string{
		"Document: " + data.DocumentTitle,
		"Document ID: " + data.DocumentID,
		"Reference: " + data.Reference,
		"Sent: " + formatTime(data.SentAt),
	} {
		p.text(regular, "F1", 10, margin, y, line)
		y -= 14
	}
	p.rule(y)
	y -= 8

	capacity := int((y - footerTop) / blockHeight)
	shown := data.Signers
	if len(shown) > capacity {
		shown = shown[:max(0, capacity-1)]
		l.Hidden = len(data.Signers) - len(shown)
	}

	for _, s := range shown {
		top := y
		name := s.Name
		if name == "" {
			name = string(s.Assignee)
		}
		y -= 14
		p.text(bold, "F2", 12, margin, y, name)
		for _, line := range []string{
			"Email: " + orDash(s.Email),
			"Viewed: " + formatTime(s.ViewedAt),
			"Signed: " + formatTime(s.SignedAt),
			"IP address: " + orDash(s.IP),
			"Location: " + orDash(s.Location),
		} {
			y -= 13
			p.text(regular, "F1", 9, margin+8, y, line)
		}
		if len(s.Signature) > 0 {
			l.Images = append(l.Images, Placement{
				Data: s.Signature,
				X:    geometry.A4Width - margin - sigWidth,
				Y:    top - 14 - sigHeight,
				W:    sigWidth,
				H:    sigHeight,
			})
		}
		y = top - blockHeight
		p.rule(y + 6)
	}
	if l.Hidden > 0 {
		y -= 14
		p.text(regular, "F1", 10, margin, y, fmt.Sprintf("+%d more signers", l.Hidden))
	}

	p.text(regular, "F1", 7, margin, footerTop-18, "Content digest (BLAKE2b-256): "+orDash(data.Digest))
	p.text(bold, "F2", 10, margin, margin, "Completed: "+formatTime(data.CompletedAt))

	l.Content = b.Bytes()
	return l
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Append adds the certificate as a new A4 page. Signature rasters that fail
// to embed are logged and left out.
func Append(target writer.PageAppender, data Data, logger logrus.FieldLogger) error {
	l := Page(data)
	xobjects := generic.NewDictionary()
	b := content.NewBuilder().Raw(l.Content)
	for i, img := range l.Images {
		x, err := images.Embed(target, img.Data)
		if err != nil {
			logging.OrDiscard(logger).WithError(err).WithField("document", data.DocumentID).
				Warn("skipping signature on certificate")
			continue
		}
		name := fmt.Sprintf("Sig%d", i+1)
		xobjects.Set(name, x.Ref)
		b.SaveState().Transform(img.W, 0, 0, img.H, img.X, img.Y).DrawXObject(name).RestoreState()
	}

	resources := generic.Dict("Font", generic.Dict("F1", regular.Dict(), "F2", bold.Dict()))
	if xobjects.Len() > 0 {
		resources.Set("XObject", xobjects)
	}
	box := generic.Rectangle{URX: geometry.A4Width, URY: geometry.A4Height}
	if _, err := target.AppendPage(box, b.Bytes(), resources); err != nil {
		return fmt.Errorf("failed to append certificate page: %w", err)
	}
	return nil
}
