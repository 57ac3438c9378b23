package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/georgepadayatti/signflow/access"
	"github.com/georgepadayatti/signflow/audit"
	"github.com/georgepadayatti/signflow/config"
	"github.com/georgepadayatti/signflow/document"
	"github.com/georgepadayatti/signflow/geoip"
)

// workspace is a document record file and its audit trail file.
type workspace struct {
	docPath   string
	trailPath string

	cfg    *config.AppConfig
	logger *logrus.Logger
	doc    *document.Document
	trail  *audit.MemorySink
}

// trailPathFor returns the default trail file next to a record file:
// lease.json keeps its events in lease.audit.json.
func trailPathFor(docPath string) string {
	return strings.TrimSuffix(docPath, filepath.Ext(docPath)) + ".audit.json"
}

func loadSettings(cfgPath string) (*config.AppConfig, *logrus.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openWorkspace reads the record at docPath and its trail. A missing trail
// file is an empty trail.
func openWorkspace(docPath, trailPath, cfgPath string) (*workspace, error) {
	cfg, logger, err := loadSettings(cfgPath)
	if err != nil {
		return nil, err
	}
	if trailPath == "" {
		trailPath = trailPathFor(docPath)
	}

	data, err := os.ReadFile(docPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	rec, err := document.DecodeRecord(data)
	if err != nil {
		return nil, err
	}
	doc, err := document.FromRecord(rec)
	if err != nil {
		return nil, err
	}
	events, err := readTrail(trailPath)
	if err != nil {
		return nil, err
	}

	return &workspace{
		docPath:   docPath,
		trailPath: trailPath,
		cfg:       cfg,
		logger:    logger,
		doc:       doc,
		trail:     audit.NewMemorySink(events...),
	}, nil
}

func readTrail(path string) ([]audit.Event, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audit trail: %w", err)
	}
	var events []audit.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to decode audit trail: %w", err)
	}
	return events, nil
}

func writeRecord(path string, doc *document.Document) error {
	data, err := document.EncodeRecord(doc.ToRecord())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

// events returns the trail of the workspace document.
func (w *workspace) events() []audit.Event {
	return w.trail.Events(w.doc.ID)
}

// controller wraps the document for one caller. geo is nil for layout
// commands that never record a signing event.
func (w *workspace) controller(role access.Role, actor string, geo geoip.Resolver) *access.Controller {
	opts := []access.Option{
		access.WithLogger(w.logger),
		access.WithDirectory(w.cfg.Directory()),
		access.WithHistory(w.events()),
	}
	if geo != nil {
		opts = append(opts, access.WithGeo(geo))
	}
	if actor != "" {
		opts = append(opts, access.WithActor(role, actor))
	}
	recorder := audit.NewRecorder(w.trail, w.logger, nil)
	return access.NewController(w.doc, recorder, opts...)
}

// resolver picks the geo lookup for signing events: a fixed address when
// ip is set, otherwise the configured endpoint.
func (w *workspace) resolver(ip string) (geoip.Resolver, error) {
	if ip != "" || w.cfg.GeoIP.URL == "" {
		return geoip.Static{IP: ip}, nil
	}
	return geoip.NewHTTPResolver(w.cfg.GeoIP.URL)
}

// save writes the controller's document and the whole trail back.
func (w *workspace) save(ctl *access.Controller) error {
	w.doc = ctl.Document()
	if err := writeRecord(w.docPath, w.doc); err != nil {
		return err
	}
	data, err := json.MarshalIndent(w.trail.Events(""), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(w.trailPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write audit trail: %w", err)
	}
	return nil
}

