// Package store persists document records and their audit trails.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/georgepadayatti/signflow/audit"
	"github.com/georgepadayatti/signflow/document"
)

// ErrNotFound is returned for unknown document ids.
var ErrNotFound = fmt.Errorf("document %w", document.ErrNotFound)

// Repository loads and saves document records.
type Repository interface {
	Get(ctx context.Context, id string) (document.Record, error)
	Save(ctx context.Context, r document.Record) error
	List(ctx context.Context) ([]document.Record, error)
}

// AuditLog is an audit sink that can read a trail back.
type AuditLog interface {
	audit.Sink
	Events(ctx context.Context, docID string) ([]audit.Event, error)
}

// Memory keeps records in a map. Records are deep-copied through JSON on
// the way in and out so callers never share state.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemory creates an empty repository.
func NewMemory() *Memory {
	return &Memory{records: make(map[string][]byte)}
}

// Get implements Repository.
func (m *Memory) Get(_ context.Context, id string) (document.Record, error) {
	m.mu.RLock()
	data, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return document.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return document.DecodeRecord(data)
}

// Save implements Repository.
func (m *Memory) Save(_ context.Context, r document.Record) error {
	if r.ID == "" {
		return fmt.Errorf("%w: record without id", document.ErrInvalidField)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	m.mu.Lock()
	m.records[r.ID] = data
	m.mu.Unlock()
	return nil
}

// List implements Repository. Records are ordered by id.
func (m *Memory) List(_ context.Context) ([]document.Record, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	out := make([]document.Record, 0, len(ids))
	for _, id := range ids {
		r, err := m.Get(context.Background(), id)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// MemoryAudit adapts audit.MemorySink to AuditLog.
type MemoryAudit struct {
	sink *audit.MemorySink
}

// NewMemoryAudit creates an empty in-memory trail.
func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{sink: audit.NewMemorySink()}
}

// Append implements audit.Sink.
func (m *MemoryAudit) Append(ctx context.Context, e audit.Event) error {
	return m.sink.Append(ctx, e)
}

// Events implements AuditLog.
func (m *MemoryAudit) Events(_ context.Context, docID string) ([]audit.Event, error) {
	return m.sink.Events(docID), nil
}
