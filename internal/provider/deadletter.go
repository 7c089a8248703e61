package provider

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"stocksync/internal/domain"
)

// DeadLetterEntry is one durably logged, unrecovered failure for a unit of
// work. The file format is newline-delimited JSON so failed units can be
// re-run later without re-processing successes.
type DeadLetterEntry struct {
	Timestamp    string `json:"timestamp"`
	UnitKey      string `json:"unit_key"`
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// DeadLetter appends failed-unit records to an NDJSON file. Safe for use by
// concurrent scheduler workers.
type DeadLetter struct {
	mu   sync.Mutex
	f    *os.File
	path string
	log  *slog.Logger
}

// OpenDeadLetter opens (or creates) the dead-letter file at path in append
// mode, creating parent directories as needed.
func OpenDeadLetter(path string, logger *slog.Logger) (*DeadLetter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating dead-letter dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening dead-letter file: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeadLetter{f: f, path: path, log: logger.With("sink", "dead_letter")}, nil
}

// Append records one failed unit. A write failure is logged but not
// returned: dead-lettering must never abort the pipeline.
func (d *DeadLetter) Append(unit domain.Unit, code int, message string) {
	entry := DeadLetterEntry{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		UnitKey:      unit.Key(),
		ErrorCode:    code,
		ErrorMessage: message,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		d.log.Error("marshaling dead-letter entry", "unit", unit.Key(), "err", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.f.Write(append(data, '\n')); err != nil {
		d.log.Error("writing dead-letter entry", "unit", unit.Key(), "err", err)
		return
	}
	d.log.Warn("unit dead-lettered", "unit", unit.Key(), "code", code, "message", message)
}

// Path returns the file the sink writes to.
func (d *DeadLetter) Path() string { return d.path }

// Close closes the underlying file.
func (d *DeadLetter) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}
