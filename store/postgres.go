package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/georgepadayatti/signflow/audit"
	"github.com/georgepadayatti/signflow/document"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	status     TEXT NOT NULL,
	file_url   TEXT NOT NULL DEFAULT '',
	metadata   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_events (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	action      TEXT NOT NULL,
	actor_id    TEXT,
	details     JSONB,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_events_document_idx ON audit_events (document_id, created_at);
`

// Migrate creates the tables if they are missing.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// Postgres stores records in the documents table.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres creates a repository on an open pool.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Get implements Repository. Metadata is decoded through the record codec
// so legacy rows come back normalised.
func (p *Postgres) Get(ctx context.Context, id string) (document.Record, error) {
	query := `
		SELECT json_build_object(
			'id', id, 'title', title, 'status', status,
			'file_url', file_url, 'metadata', metadata)
		FROM documents
		WHERE id = $1`

	var raw []byte
	err := p.db.QueryRow(ctx, query, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return document.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return document.Record{}, fmt.Errorf("failed to get document: %w", err)
	}
	return document.DecodeRecord(raw)
}

// Save implements Repository.
func (p *Postgres) Save(ctx context.Context, r document.Record) error {
	if r.ID == "" {
		return fmt.Errorf("%w: record without id", document.ErrInvalidField)
	}
	metadata, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	query := `
		INSERT INTO documents (id, title, status, file_url, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			file_url = EXCLUDED.file_url,
			metadata = EXCLUDED.metadata,
			updated_at = now()`

	if _, err := p.db.Exec(ctx, query, r.ID, r.Title, r.Status, r.FileURL, metadata); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// List implements Repository.
func (p *Postgres) List(ctx context.Context) ([]document.Record, error) {
	query := `
		SELECT json_build_object(
			'id', id, 'title', title, 'status', status,
			'file_url', file_url, 'metadata', metadata)
		FROM documents
		ORDER BY updated_at DESC`

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []document.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		r, err := document.DecodeRecord(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PostgresAuditSink stores events in the audit_events table.
type PostgresAuditSink struct {
	db *pgxpool.Pool
}

// NewPostgresAuditSink creates a sink on an open pool.
func NewPostgresAuditSink(db *pgxpool.Pool) *PostgresAuditSink {
	return &PostgresAuditSink{db: db}
}

// Append implements audit.Sink.
func (s *PostgresAuditSink) Append(ctx context.Context, e audit.Event) error {
	var details []byte
	if e.Details != nil {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return fmt.Errorf("failed to encode event details: %w", err)
		}
	}
	query := `
		INSERT INTO audit_events (id, document_id, action, actor_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := s.db.Exec(ctx, query, e.ID, e.DocumentID, string(e.Action), e.ActorID, details, e.Timestamp); err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// Events implements AuditLog.
func (s *PostgresAuditSink) Events(ctx context.Context, docID string) ([]audit.Event, error) {
	query := `
		SELECT id, document_id, action, actor_id, details, created_at
		FROM audit_events
		WHERE document_id = $1
		ORDER BY created_at`

	rows, err := s.db.Query(ctx, query, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit trail: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e       audit.Event
			action  string
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.DocumentID, &action, &e.ActorID, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Action = audit.Action(action)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode event details: %w", err)
			}
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	audit.Sort(out)
	return out, nil
}
