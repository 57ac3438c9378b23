package cli

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/georgepadayatti/signflow/access"
	"github.com/georgepadayatti/signflow/document"
	"github.com/georgepadayatti/signflow/geometry"
	"github.com/georgepadayatti/signflow/pagination"
	"github.com/georgepadayatti/signflow/richtext"
)

// ComposeOptions contains options for the compose command.
type ComposeOptions struct {
	Title      string
	Background string
	FileURL    string
	Markdown   string
	Markup     string
	Config     string
}

// ComposeCommand implements the 'compose' command.
func ComposeCommand(args []string) {
	fs := flag.NewFlagSet("compose", flag.ExitOnError)

	var opts ComposeOptions
	fs.StringVar(&opts.Title, "title", "", "Document title")
	fs.StringVar(&opts.Background, "background", "text", "Background: text, image, pdf, none")
	fs.StringVar(&opts.FileURL, "file-url", "", "Source file or URL for image and pdf backgrounds")
	fs.StringVar(&opts.Markdown, "markdown", "", "Markdown file for the first page")
	fs.StringVar(&opts.Markup, "markup", "", "HTML markup file for the first page")
	fs.StringVar(&opts.Config, "config", "", "Configuration file")

	fs.Usage = func() {
		fmt.Printf("Usage: %s compose [options] <document.json>\n\n", os.Args[0])
		fmt.Println("Create a draft document record.")
		fmt.Println("")
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		osExit(1)
		return
	}
	if fs.NArg() < 1 || opts.Title == "" {
		fs.Usage()
		osExit(1)
		return
	}

	doc, err := compose(fs.Arg(0), &opts)
	if exitOnError(err) {
		return
	}
	fmt.Printf("Created document %s (%d pages): %s\n", doc.ID, doc.Pages, fs.Arg(0))
}

func compose(outPath string, opts *ComposeOptions) (*document.Document, error) {
	_, logger, err := loadSettings(opts.Config)
	if err != nil {
		return nil, err
	}
	kind, err := document.ParseBackgroundKind(opts.Background)
	if err != nil {
		return nil, err
	}

	doc := document.New(opts.Title)
	ctl := access.NewController(doc, nil, access.WithLogger(logger))
	if kind != document.BackgroundNone {
		if err := ctl.SetBackground(kind, opts.FileURL); err != nil {
			return nil, err
		}
	}

	markup, err := pageMarkup(opts)
	if err != nil {
		return nil, err
	}
	if markup != "" {
		engine, err := newEngine(logger)
		if err != nil {
			return nil, err
		}
		res, err := ctl.EditContent(1, markup, engine)
		if err != nil {
			return nil, err
		}
		logger.WithFields(logrus.Fields{"touched": res.Touched, "created": res.Created}).Debug("paginated content")
	}

	doc = ctl.Document()
	if err := writeRecord(outPath, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func pageMarkup(opts *ComposeOptions) (string, error) {
	switch {
	case opts.Markup != "":
		data, err := os.ReadFile(opts.Markup)
		if err != nil {
			return "", fmt.Errorf("failed to read markup: %w", err)
		}
		return string(data), nil
	case opts.Markdown != "":
		data, err := os.ReadFile(opts.Markdown)
		if err != nil {
			return "", fmt.Errorf("failed to read markdown: %w", err)
		}
		return richtext.FromMarkdown(data)
	}
	return "", nil
}

func newEngine(logger logrus.FieldLogger) (*pagination.Engine, error) {
	ts, err := richtext.Default()
	if err != nil {
		return nil, err
	}
	return pagination.New(richtext.NewMeasurer(ts), logger), nil
}

// FieldOptions contains options for the field command.
type FieldOptions struct {
	Type     string
	Label    string
	Page     int
	X, Y     float64
	Width    float64
	Height   float64
	Assignee string
	Config   string
}

// FieldCommand implements the 'field' command.
func FieldCommand(args []string) {
	fs := flag.NewFlagSet("field", flag.ExitOnError)

	var opts FieldOptions
	fs.StringVar(&opts.Type, "type", "signature", "Field type: text, signature, initials, date")
	fs.StringVar(&opts.Label, "label", "", "Field label")
	fs.IntVar(&opts.Page, "page", 1, "Page number")
	fs.Float64Var(&opts.X, "x", 0, "Left edge as a percentage of the page width")
	fs.Float64Var(&opts.Y, "y", 0, "Top edge as a percentage of the page height")
	fs.Float64Var(&opts.Width, "width", 0, "Width in pixels (0 keeps the type default)")
	fs.Float64Var(&opts.Height, "height", 0, "Height in pixels (0 keeps the type default)")
	fs.StringVar(&opts.Assignee, "assignee", "", "Assignee: business, contact")
	fs.StringVar(&opts.Config, "config", "", "Configuration file")

	fs.Usage = func() {
		fmt.Printf("Usage: %s field [options] <document.json>\n\n", os.Args[0])
		fmt.Println("Place a field on a draft document and print its id.")
		fmt.Println("")
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		osExit(1)
		return
	}
	if fs.NArg() < 1 {
		fs.Usage()
		osExit(1)
		return
	}

	f, err := placeField(fs.Arg(0), &opts)
	if exitOnError(err) {
		return
	}
	fmt.Println(f.ID)
}

func placeField(docPath string, opts *FieldOptions) (document.Field, error) {
	ws, err := openWorkspace(docPath, "", opts.Config)
	if err != nil {
		return document.Field{}, err
	}
	t, err := document.ParseFieldType(opts.Type)
	if err != nil {
		return document.Field{}, err
	}

	ctl := ws.controller(access.RoleComposer, "", nil)
	f, err := ctl.PlaceField(t, opts.Label, geometry.Percent{X: opts.X, Y: opts.Y}, opts.Page)
	if err != nil {
		return document.Field{}, err
	}
	if opts.Width > 0 || opts.Height > 0 {
		size := f.Size
		if opts.Width > 0 {
			size.W = opts.Width
		}
		if opts.Height > 0 {
			size.H = opts.Height
		}
		if f, err = ctl.ResizeField(f.ID, size); err != nil {
			return document.Field{}, err
		}
	}
	if opts.Assignee != "" {
		a, err := document.ParseAssignee(opts.Assignee)
		if err != nil {
			return document.Field{}, err
		}
		if f, err = ctl.AssignField(f.ID, a); err != nil {
			return document.Field{}, err
		}
	}
	return f, ws.save(ctl)
}

// SendCommand implements the 'send' command.
func SendCommand(args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Configuration file")
	trailPath := fs.String("audit", "", "Audit trail file (default <document>.audit.json)")
	fs.Usage = func() {
		fmt.Printf("Usage: %s send [options] <document.json>\n\n", os.Args[0])
		fmt.Println("Freeze the layout and open the document for signing.")
		fmt.Println("")
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		osExit(1)
		return
	}
	if fs.NArg() < 1 {
		fs.Usage()
		osExit(1)
		return
	}

	status, err := send(context.Background(), fs.Arg(0), *trailPath, *cfgPath)
	if exitOnError(err) {
		return
	}
	fmt.Printf("Document is %s\n", status)
}

func send(ctx context.Context, docPath, trailPath, cfgPath string) (document.Status, error) {
	ws, err := openWorkspace(docPath, trailPath, cfgPath)
	if err != nil {
		return "", err
	}
	ctl := ws.controller(access.RoleComposer, "", nil)
	if err := ctl.Send(ctx); err != nil {
		return "", err
	}
	return ctl.Status(), ws.save(ctl)
}

// SigningOptions contains options shared by the view and fill commands.
type SigningOptions struct {
	Role      string
	Actor     string
	IP        string
	Field     string
	Value     string
	ValueFile string
	Audit     string
	Config    string
}

func signingFlags(name string, opts *SigningOptions) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&opts.Role, "role", "contact", "Caller role: composer, business, contact")
	fs.StringVar(&opts.Actor, "actor", "", "Actor id recorded on events")
	fs.StringVar(&opts.IP, "ip", "", "Caller address; empty uses the configured geo-ip endpoint")
	fs.StringVar(&opts.Audit, "audit", "", "Audit trail file (default <document>.audit.json)")
	fs.StringVar(&opts.Config, "config", "", "Configuration file")
	return fs
}

// ViewCommand implements the 'view' command.
func ViewCommand(args []string) {
	var opts SigningOptions
	fs := signingFlags("view", &opts)
	fs.Usage = func() {
		fmt.Printf("Usage: %s view [options] <document.json>\n\n", os.Args[0])
		fmt.Println("Record that a signing party opened the document.")
		fmt.Println("")
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		osExit(1)
		return
	}
	if fs.NArg() < 1 {
		fs.Usage()
		osExit(1)
		return
	}
	if exitOnError(view(context.Background(), fs.Arg(0), &opts)) {
		return
	}
	fmt.Printf("Recorded view by %s\n", opts.Role)
}

func view(ctx context.Context, docPath string, opts *SigningOptions) error {
	ws, role, ctl, err := openSigning(docPath, opts)
	if err != nil {
		return err
	}
	if err := ctl.MarkViewed(ctx, role); err != nil {
		return err
	}
	return ws.save(ctl)
}

// FillCommand implements the 'fill' command.
func FillCommand(args []string) {
	var opts SigningOptions
	fs := signingFlags("fill", &opts)
	fs.StringVar(&opts.Field, "field", "", "Field id")
	fs.StringVar(&opts.Value, "value", "", "Field value")
	fs.StringVar(&opts.ValueFile, "value-file", "", "File holding the value; images become data URIs")
	fs.Usage = func() {
		fmt.Printf("Usage: %s fill [options] <document.json>\n\n", os.Args[0])
		fmt.Println("Fill a field as a signing party.")
		fmt.Println("")
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		osExit(1)
		return
	}
	if fs.NArg() < 1 || opts.Field == "" {
		fs.Usage()
		osExit(1)
		return
	}

	status, err := fill(context.Background(), fs.Arg(0), &opts)
	if exitOnError(err) {
		return
	}
	fmt.Printf("Document is %s\n", status)
}

func fill(ctx context.Context, docPath string, opts *SigningOptions) (document.Status, error) {
	value, err := fieldValue(opts)
	if err != nil {
		return "", err
	}
	ws, role, ctl, err := openSigning(docPath, opts)
	if err != nil {
		return "", err
	}
	if err := ctl.FillField(ctx, opts.Field, value, role); err != nil {
		return "", err
	}
	return ctl.Status(), ws.save(ctl)
}

func openSigning(docPath string, opts *SigningOptions) (*workspace, access.Role, *access.Controller, error) {
	role, err := access.ParseRole(opts.Role)
	if err != nil {
		return nil, "", nil, err
	}
	ws, err := openWorkspace(docPath, opts.Audit, opts.Config)
	if err != nil {
		return nil, "", nil, err
	}
	geo, err := ws.resolver(opts.IP)
	if err != nil {
		return nil, "", nil, err
	}
	return ws, role, ws.controller(role, opts.Actor, geo), nil
}

// fieldValue reads the value to write. Image files are wrapped as data
// URIs so signature fields can be stamped.
func fieldValue(opts *SigningOptions) (string, error) {
	if opts.ValueFile == "" {
		return opts.Value, nil
	}
	data, err := os.ReadFile(opts.ValueFile)
	if err != nil {
		return "", fmt.Errorf("failed to read value: %w", err)
	}
	mediaType := http.DetectContentType(data)
	if strings.HasPrefix(mediaType, "image/") {
		return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
