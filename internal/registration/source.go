// Package registration grows the recipient list from a signup export and
// welcomes the newcomers.
package registration

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// EmailColumns are the header names accepted for the address column.
var EmailColumns = []string{"邮箱", "email"}

// ErrNoEmailColumn is returned when the CSV header has no address column.
var ErrNoEmailColumn = errors.New("no email column in header")

// Source returns the raw address values of every pending registration.
type Source interface {
	ReadPending(ctx context.Context) ([]string, error)
}

// CSVSource reads registrations from a CSV export. A missing file has no
// pending registrations.
type CSVSource struct {
	Path string
}

// ReadPending implements Source.
func (s CSVSource) ReadPending(_ context.Context) ([]string, error) {
	f, err := os.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer func() { _ = f.Close() }()

	values, err := readColumn(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return values, nil
}

func readColumn(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := -1
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if slices.ContainsFunc(EmailColumns, func(c string) bool { return strings.EqualFold(c, h) }) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ErrNoEmailColumn
	}

	var values []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if col < len(rec) {
			values = append(values, rec[col])
		} else {
			values = append(values, "")
		}
	}
	return values, nil
}
