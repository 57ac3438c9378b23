package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/georgepadayatti/signflow/config"
	"github.com/georgepadayatti/signflow/export"
	"github.com/georgepadayatti/signflow/fetch"
	"github.com/georgepadayatti/signflow/geometry"
	"github.com/georgepadayatti/signflow/raster"
)

// ExportOptions contains options for the export command.
type ExportOptions struct {
	Output string
	Audit  string
	Config string
}

// ExportCommand implements the 'export' command.
func ExportCommand(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)

	var opts ExportOptions
	fs.StringVar(&opts.Output, "o", "", "Output PDF (default <title>_preview.pdf)")
	fs.StringVar(&opts.Audit, "audit", "", "Audit trail file (default <document>.audit.json)")
	fs.StringVar(&opts.Config, "config", "", "Configuration file")

	fs.Usage = func() {
		fmt.Printf("Usage: %s export [options] <document.json>\n\n", os.Args[0])
		fmt.Println("Render the document with its filled fields and append the signing certificate.")
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

	out, err := exportDocument(context.Background(), fs.Arg(0), &opts)
	if exitOnError(err) {
		return
	}
	fmt.Printf("Exported PDF: %s\n", out)
}

func exportDocument(ctx context.Context, docPath string, opts *ExportOptions) (string, error) {
	ws, err := openWorkspace(docPath, opts.Audit, opts.Config)
	if err != nil {
		return "", err
	}
	exporter, err := newExporter(ws.cfg, ws.logger)
	if err != nil {
		return "", err
	}
	data, err := exporter.Export(ctx, ws.doc, ws.events())
	if err != nil {
		return "", err
	}

	out := opts.Output
	if out == "" {
		out = export.FileName(ws.doc.Title)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write output: %w", err)
	}
	return out, nil
}

// newExporter wires the export pipeline from configuration.
func newExporter(cfg *config.AppConfig, logger logrus.FieldLogger) (*export.Exporter, error) {
	mapper := geometry.A4()
	if cfg.Export.RenderedWidth > 0 {
		m, err := geometry.ForRenderedWidth(cfg.Export.RenderedWidth)
		if err != nil {
			return nil, err
		}
		mapper = m
	}

	client, err := fetch.NewClient(nil)
	if err != nil {
		return nil, err
	}
	loader := fetch.NewMultiLoader(client, fetch.DefaultRetryConfig())
	if h, ok := loader.HTTP.(*fetch.HTTPLoader); ok {
		h.MaxBytes = cfg.Export.MaxSourceBytes
	}

	renderer, err := raster.NewRenderer(logger)
	if err != nil {
		return nil, err
	}
	renderer.Scale = cfg.Export.RasterScale
	renderer.Mapper = mapper

	return export.NewExporter(export.Deps{
		Loader:   loader,
		Renderer: renderer,
		Mapper:   mapper,
		Logger:   logger,
	}, cfg.Directory()), nil
}
