// Package storage persists the record of checked feed items.
package storage

import (
	"context"

	"wecounts/internal/model"
)

// Backend loads and persists the full dedup mapping, keyed by item link.
// Persist replaces everything previously stored.
type Backend interface {
	Load(ctx context.Context) (map[string]model.CheckedRecord, error)
	Persist(ctx context.Context, records map[string]model.CheckedRecord) error
	Close() error
}
