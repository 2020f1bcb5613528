package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"wecounts/internal/fsutil"
	"wecounts/internal/model"
)

const (
	fileTimeLayout = "2006-01-02 15:04:05"
	fileTooOld     = "too old"
)

// JSONFile implements Backend on a single JSON document mapping each link
// to its record.
type JSONFile struct {
	path string
}

type fileRecord struct {
	Title     string `json:"title"`
	CheckTime string `json:"check_time"`
	Skipped   string `json:"skipped,omitempty"`
}

// NewJSONFile creates a JSONFile backend at path, creating its directory.
func NewJSONFile(path string) (*JSONFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}
	return &JSONFile{path: path}, nil
}

// Close implements Backend.
func (f *JSONFile) Close() error { return nil }

// Load implements Backend. A missing file is an empty mapping.
func (f *JSONFile) Load(_ context.Context) (map[string]model.CheckedRecord, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]model.CheckedRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	var raw map[string]fileRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}

	records := make(map[string]model.CheckedRecord, len(raw))
	for link, r := range raw {
		rec := model.CheckedRecord{Link: link, Title: r.Title}
		if t, err := time.ParseInLocation(fileTimeLayout, r.CheckTime, time.Local); err == nil {
			rec.CheckedAt = t
		}
		if r.Skipped != "" {
			rec.SkipReason = model.SkipTooOld
		}
		records[link] = rec
	}
	return records, nil
}

// Persist implements Backend. The document is synced to a temporary file
// and renamed over the previous one.
func (f *JSONFile) Persist(_ context.Context, records map[string]model.CheckedRecord) error {
	raw := make(map[string]fileRecord, len(records))
	for link, r := range records {
		fr := fileRecord{Title: r.Title, CheckTime: r.CheckedAt.Local().Format(fileTimeLayout)}
		if r.SkipReason == model.SkipTooOld {
			fr.Skipped = fileTooOld
		}
		raw[link] = fr
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	if err := fsutil.WriteFileAtomic(f.path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}
