package dlq

import (
	"bufio"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dlq")

	w, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected directory to exist: %v", err)
	}
}

func TestWrite_EntryShape(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	payload := []byte(`{"event":"a"}` + "\n" + `{"event":"b"}` + "\n")
	if err := w.Write(http.StatusServiceUnavailable, "hec returned status 503", payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	day := time.Now().UTC().Format("2006-01-02")
	expectedFile := filepath.Join(dir, "dlq-"+day+".ndjson")
	if w.CurrentFile() != expectedFile {
		t.Errorf("expected current file %s, got %s", expectedFile, w.CurrentFile())
	}

	data, err := os.ReadFile(expectedFile)
	if err != nil {
		t.Fatalf("read DLQ file: %v", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	if entry.Status != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", entry.Status)
	}
	if entry.Error != "hec returned status 503" {
		t.Errorf("unexpected error text %q", entry.Error)
	}
	if entry.Payload != string(payload) {
		t.Errorf("payload must round-trip verbatim, got %q", entry.Payload)
	}
	if _, err := time.Parse(time.RFC3339, entry.Timestamp); err != nil {
		t.Errorf("timestamp not RFC3339: %q", entry.Timestamp)
	}
}

func TestWrite_AppendsOnePerLine(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	for i := 0; i < 3; i++ {
		if err := w.Write(0, "connection refused", []byte("{}")); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	f, err := os.Open(w.CurrentFile())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if !strings.HasPrefix(scanner.Text(), "{") {
			t.Errorf("expected NDJSON line, got %q", scanner.Text())
		}
		lines++
	}
	if lines != 3 {
		t.Errorf("expected 3 entries, got %d", lines)
	}
}
