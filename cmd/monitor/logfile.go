package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const logFileLayout = "2006-01-02"

// dailyFile appends to <dir>/<date>.log, switching files when the local
// date changes.
type dailyFile struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

func newDailyFile(dir string) (*dailyFile, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &dailyFile{dir: dir, now: time.Now}, nil
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	day := d.now().Format(logFileLayout)
	if d.file == nil || day != d.day {
		if d.file != nil {
			_ = d.file.Close()
		}
		f, err := os.OpenFile(filepath.Join(d.dir, day+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			d.file = nil
			return 0, fmt.Errorf("open log file: %w", err)
		}
		d.file, d.day = f, day
	}
	return d.file.Write(p)
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
