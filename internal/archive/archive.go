// Package archive persists ingested log lines to local disk before
// forwarding, with daily file rotation and retention pruning. The
// archive is an audit copy; delivery failures go to the dead letter
// queue instead.
package archive

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const filePrefix = "raw"

// Writer appends raw log lines to a daily-rotated NDJSON file.
type Writer struct {
	mu     sync.Mutex
	dir    string
	file   *os.File
	curDay string
}

// New creates an archive writer rooted at dir, creating it if needed.
func New(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &Writer{dir: dir}, nil
}

// Write appends one line to the current day's file, rotating at UTC
// midnight. The source label is only used for diagnostics.
func (w *Writer) Write(source string, line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	day := time.Now().UTC().Format("2006-01-02")
	if day != w.curDay {
		if w.file != nil {
			if err := w.file.Close(); err != nil {
				return err
			}
		}

		f, err := w.openDayFile(day)
		if err != nil {
			return err
		}
		w.file = f
		w.curDay = day
	}

	// Copy before appending the newline; line may be a subslice of a
	// shared read buffer.
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	n, err := w.file.Write(buf)
	if err == nil {
		slog.Debug("archived line", "source", source, "bytes", n)
	}
	return err
}

// Close syncs and closes the current day's file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

// CurrentFile returns the path of the file currently being written,
// or "" before the first write.
func (w *Writer) CurrentFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.curDay == "" {
		return ""
	}
	return filepath.Join(w.dir, filePrefix+"-"+w.curDay+".ndjson")
}

func (w *Writer) openDayFile(day string) (*os.File, error) {
	path := filepath.Join(w.dir, filePrefix+"-"+day+".ndjson")
	// #nosec G304 -- dir comes from config at construction time and day
	// is derived from time.Now for rotation.
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}
