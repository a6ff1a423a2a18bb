package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/edital-crawler/internal/edital"
)

// Row is a stored edital with its bookkeeping columns.
type Row struct {
	ID        string
	Record    edital.Record
	UpdatedAt time.Time
}

// EditalStore is an in-memory Recorder keyed by natural key.
type EditalStore struct {
	mu    sync.RWMutex
	rows  map[edital.NaturalKey]Row
	ids   edital.IDGenerator
	clock edital.Clock
}

// NewEditalStore constructs an EditalStore.
func NewEditalStore(ids edital.IDGenerator, clock edital.Clock) *EditalStore {
	return &EditalStore{
		rows:  make(map[edital.NaturalKey]Row),
		ids:   ids,
		clock: clock,
	}
}

// Upsert replaces the row for the record's natural key or inserts a new one.
func (s *EditalStore) Upsert(ctx context.Context, rec edital.Record) (edital.UpsertResult, error) {
	key := rec.Key()
	if key.Institution == "" || key.Specialty == "" {
		return edital.UpsertResult{}, &edital.StoreError{Op: "validate", Key: key, Err: errors.New("natural key is blank")}
	}
	if err := ctx.Err(); err != nil {
		return edital.UpsertResult{}, &edital.StoreError{Op: "upsert", Key: key, Err: err}
	}
	rec.Institution, rec.Specialty = key.Institution, key.Specialty

	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[key]; ok {
		s.rows[key] = Row{ID: row.ID, Record: rec, UpdatedAt: s.clock.Now()}
		return edital.UpsertResult{ID: row.ID, Op: edital.OpUpdated}, nil
	}
	id, err := s.ids.NewID()
	if err != nil {
		return edital.UpsertResult{}, &edital.StoreError{Op: "insert", Key: key, Err: err}
	}
	s.rows[key] = Row{ID: id, Record: rec, UpdatedAt: s.clock.Now()}
	return edital.UpsertResult{ID: id, Op: edital.OpInserted}, nil
}

// Get returns the row stored under key.
func (s *EditalStore) Get(key edital.NaturalKey) (Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[key]
	return row, ok
}

// Len reports how many rows are stored.
func (s *EditalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Ping always succeeds.
func (s *EditalStore) Ping(context.Context) error {
	return nil
}
