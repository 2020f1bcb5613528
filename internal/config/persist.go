package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"wecounts/internal/fsutil"
)

// Persister writes the monitor config back to durable storage.
type Persister interface {
	Persist(m *Monitor) error
}

// FilePersister writes the config to a file, replacing it atomically.
type FilePersister struct {
	Path string
}

// Persist implements Persister. The file is written to a temporary sibling
// and renamed over the original, keeping the original's permissions.
func (p FilePersister) Persist(m *Monitor) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	data := buf.Bytes()
	if formatOf(p.Path) == formatYAML {
		y, err := jsonToYAML(data)
		if err != nil {
			return err
		}
		data = y
	}
	return fsutil.WriteFileAtomic(p.Path, data, 0o600)
}
