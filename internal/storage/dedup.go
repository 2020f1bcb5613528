package storage

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"wecounts/internal/model"
)

// Store is the in-memory dedup record of checked items, backed by a Backend.
// It is not safe for concurrent use; the scheduler goroutine owns it.
type Store struct {
	backend Backend
	records map[string]model.CheckedRecord
	log     *slog.Logger
}

// NewStore loads the mapping from backend. A failed load is logged and the
// store starts empty.
func NewStore(ctx context.Context, backend Backend, log *slog.Logger) *Store {
	records, err := backend.Load(ctx)
	if err != nil {
		log.Error("load checked items, starting empty", "error", err)
		records = nil
	}
	if records == nil {
		records = make(map[string]model.CheckedRecord)
	}
	log.Info("loaded checked items", "count", len(records))
	return &Store{backend: backend, records: records, log: log}
}

// Has reports whether link has been checked.
func (s *Store) Has(link string) bool {
	_, ok := s.records[link]
	return ok
}

// Get returns the record for link.
func (s *Store) Get(link string) (model.CheckedRecord, bool) {
	r, ok := s.records[link]
	return r, ok
}

// Record marks link as checked at now. Recording the same link again
// overwrites the previous record.
func (s *Store) Record(link, title string, now time.Time, reason model.SkipReason) {
	s.records[link] = model.CheckedRecord{
		Link:       link,
		Title:      title,
		CheckedAt:  now,
		SkipReason: reason,
	}
}

// Len returns the number of checked items.
func (s *Store) Len() int {
	return len(s.records)
}

// Flush persists the full mapping, replacing what the backend held.
func (s *Store) Flush(ctx context.Context) error {
	return s.backend.Persist(ctx, maps.Clone(s.records))
}
