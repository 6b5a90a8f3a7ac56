package server

import (
	"context"
	"sync"
	"time"
)

// defaultScanLimit caps Scan results when the caller does not pass a limit.
const defaultScanLimit = 50

// MemoryStore implements the Store interface with an in-process map. It
// stands in for the managed table during local runs and tests: state lives
// for the life of the process and is never persisted. Access is mutex-guarded
// so concurrent handlers can share one instance; same-key writers are
// last-write-wins with no ordering guarantee.
type MemoryStore struct {
	mu    sync.RWMutex
	table string
	items map[string]*Record
	order []string
}

// NewMemoryStore creates an empty in-memory store. The table name is kept
// for logging only.
func NewMemoryStore(table string) *MemoryStore {
	return &MemoryStore{
		table: table,
		items: make(map[string]*Record),
	}
}

// SeedSampleData loads the same fixture users the local mock ships with.
func (s *MemoryStore) SeedSampleData() {
	seedTime := func(v string) time.Time {
		t, _ := time.Parse(time.RFC3339, v)
		return t
	}
	seeds := []*Record{
		{
			ID:        "user_1",
			Name:      "John Doe",
			Email:     "john@example.com",
			CreatedAt: seedTime("2024-01-15T10:30:00Z"),
			UpdatedAt: seedTime("2024-01-15T10:30:00Z"),
		},
		{
			ID:        "user_2",
			Name:      "Jane Smith",
			Email:     "jane@example.com",
			CreatedAt: seedTime("2024-01-16T14:20:00Z"),
			UpdatedAt: seedTime("2024-01-16T14:20:00Z"),
		},
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range seeds {
		s.setLocked(rec)
	}
}

// setLocked stores a record, tracking first-insertion order. Caller holds mu.
func (s *MemoryStore) setLocked(rec *Record) {
	if _, exists := s.items[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.items[rec.ID] = rec
}

// Put stores or overwrites a record under its id.
func (s *MemoryStore) Put(ctx context.Context, record *Record) error {
	if record == nil || record.ID == "" {
		return &ValidationError{Message: "record id is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(record.Clone())
	return nil
}

// Get returns the stored record, or (nil, nil) when the id is absent.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, &ValidationError{Message: "record id is required"}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[id].Clone(), nil
}

// Scan returns up to limit records in insertion order. Count and ScannedCount
// both report the full table size; the store has no filter pushdown.
func (s *MemoryStore) Scan(ctx context.Context, limit int) (*ScanResult, error) {
	if limit <= 0 {
		limit = defaultScanLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.order)
	n := total
	if n > limit {
		n = limit
	}
	items := make([]*Record, 0, n)
	for _, id := range s.order[:n] {
		items = append(items, s.items[id].Clone())
	}
	return &ScanResult{
		Items:        items,
		Count:        total,
		ScannedCount: total,
	}, nil
}

// Update merges the mutation into the existing record, or into an empty
// record when the id is absent; a missing key is not an error. The id is
// immutable and updatedAt is always refreshed.
func (s *MemoryStore) Update(ctx context.Context, id string, mutation map[string]interface{}) (*Record, error) {
	if id == "" {
		return nil, &ValidationError{Message: "record id is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.items[id].Clone()
	if rec == nil {
		rec = &Record{ID: id}
	}
	for k, v := range mutation {
		switch k {
		case "id", "createdAt", "updatedAt":
			// server-owned fields
		case "name":
			if name, ok := v.(string); ok {
				rec.Name = name
			}
		case "email":
			if email, ok := v.(string); ok {
				rec.Email = email
			}
		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]interface{})
			}
			rec.Extra[k] = v
		}
	}
	rec.UpdatedAt = time.Now().UTC()
	s.setLocked(rec)
	return rec.Clone(), nil
}

// Delete removes the record if present. Deleting a missing id succeeds.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return &ValidationError{Message: "record id is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; exists {
		delete(s.items, id)
		for i, ordered := range s.order {
			if ordered == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	return nil
}
