// Package store persists image-generation records so that callers can poll
// the status of asynchronous generations. Two implementations exist: an
// in-memory store for single-process deployments and a PostgreSQL store for
// deployments that must survive restarts.
package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Generation status values.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// ErrNotFound is returned when no generation with the requested id exists.
var ErrNotFound = errors.New("generation not found")

// Image is one artifact produced by a completed generation.
type Image struct {
	URL    string `json:"url,omitempty"`
	Base64 string `json:"b64_json,omitempty"`
	Seed   int64  `json:"seed,omitempty"`
}

// Generation is one image-generation request and its outcome.
type Generation struct {
	ID        string         `json:"id"`
	ModelID   string         `json:"model_id"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Images    []Image        `json:"images"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Store persists generation records.
type Store interface {
	// Put inserts or replaces the record keyed by gen.ID.
	Put(ctx context.Context, gen *Generation) error

	// Get returns the record with the given id, or an error wrapping
	// [ErrNotFound].
	Get(ctx context.Context, id string) (*Generation, error)
}

// MemoryStore is an in-process Store. Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	gens map[string]*Generation
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{gens: make(map[string]*Generation)}
}

// Put stores a copy of gen.
func (s *MemoryStore) Put(_ context.Context, gen *Generation) error {
	cp := *gen
	cp.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	s.gens[gen.ID] = &cp
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the stored record.
func (s *MemoryStore) Get(_ context.Context, id string) (*Generation, error) {
	s.mu.RLock()
	gen, ok := s.gens[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := *gen
	return &cp, nil
}
