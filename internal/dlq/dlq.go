// Package dlq implements a dead letter queue for payloads whose
// delivery to HEC was exhausted. Entries are written to daily-rotated
// NDJSON files with failure metadata so the payloads can be analysed or
// replayed later.
package dlq

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/scottbrown/hecsink/internal/metrics"
)

// Entry is one dead-lettered payload with the failure that sent it here.
type Entry struct {
	Timestamp string `json:"timestamp"` // ISO 8601 timestamp of the final failure
	Status    int    `json:"status"`    // last HTTP status observed, 0 if none
	Error     string `json:"error"`     // description of the failure
	Payload   string `json:"payload"`   // the undelivered HEC payload, verbatim
}

// Writer appends dead-lettered payloads to the queue directory.
// Files rotate daily and are named dlq-YYYY-MM-DD.ndjson.
//
// Writer is safe for concurrent use by multiple goroutines.
type Writer struct {
	baseDir string
	file    *os.File
	curDay  string
	mu      sync.Mutex
}

// New creates a Writer for the given directory, creating it if needed.
func New(baseDir string) (*Writer, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", baseDir, err)
	}
	return &Writer{baseDir: baseDir}, nil
}

// Write appends one exhausted payload with its failure metadata.
func (w *Writer) Write(status int, failure string, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	day := time.Now().UTC().Format("2006-01-02")
	if day != w.curDay {
		if w.file != nil {
			if err := w.file.Close(); err != nil {
				return err
			}
		}
		var err error
		w.file, err = w.openDayFile(day)
		if err != nil {
			return err
		}
		w.curDay = day
	}

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
		Error:     failure,
		Payload:   string(payload),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ entry: %w", err)
	}
	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return err
	}

	metrics.DLQWrites.Inc()
	slog.Debug("wrote to DLQ", "status", status, "error", failure)
	return nil
}

// Close closes the current day's file if open.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// CurrentFile returns the path to the current day's DLQ file, or an
// empty string if no file is open yet.
func (w *Writer) CurrentFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ""
	}
	return w.file.Name()
}

func (w *Writer) openDayFile(day string) (*os.File, error) {
	filename := filepath.Join(w.baseDir, fmt.Sprintf("dlq-%s.ndjson", day))
	// #nosec G304 -- baseDir is set during Writer construction from config;
	// day is generated from time.Now for daily rotation.
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	slog.Info("opened DLQ file", "path", filename)
	return file, nil
}
