// Package processor maps ingested newline-delimited JSON log lines onto
// HEC event records. Well-known timestamp, severity and message fields
// are searched under their common spellings; everything else becomes a
// structured property.
package processor

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/scottbrown/hecsink/internal/hec"
)

// ErrLineTooLong is returned when a line exceeds the configured limit.
var ErrLineTooLong = errors.New("line exceeds limit")

// Search paths for well-known fields, tried in order. First hit wins
// and the matched key is excluded from properties.
var (
	timePaths    = []string{"time", "timestamp", "@timestamp", "ts"}
	levelPaths   = []string{"level", "severity", "severityText", "log\\.level"}
	messagePaths = []string{"message", "msg", "body", "_raw"}
	idPaths      = []string{"id", "event_id", "trace_id"}
)

// ParseLine converts one log line into an EventRecord. Lines that are
// not valid JSON objects become plain message events so nothing is lost;
// JSON lines have their recognized fields lifted into the record and the
// remaining top-level members preserved as properties in document order.
// Metadata is left nil so the owning client's defaults apply.
func ParseLine(line []byte) *hec.EventRecord {
	rec := &hec.EventRecord{Timestamp: time.Now().UTC()}

	if !gjson.ValidBytes(line) {
		rec.Message = string(line)
		return rec
	}
	root := gjson.ParseBytes(line)
	if !root.IsObject() {
		rec.Message = string(line)
		return rec
	}

	consumed := map[string]bool{}

	if key, val := firstPath(root, timePaths); val.Exists() {
		if ts, ok := parseTimestamp(val); ok {
			rec.Timestamp = ts
			consumed[key] = true
		}
	}
	if key, val := firstPath(root, levelPaths); val.Exists() {
		rec.Level = val.String()
		consumed[key] = true
	}
	if key, val := firstPath(root, messagePaths); val.Exists() {
		rec.Message = val.String()
		consumed[key] = true
	}
	if key, val := firstPath(root, idPaths); val.Exists() {
		rec.ID = val.String()
		consumed[key] = true
	}

	root.ForEach(func(key, value gjson.Result) bool {
		if consumed[key.String()] {
			return true
		}
		rec.Properties = append(rec.Properties, hec.Property{
			Name:  key.String(),
			Value: value.Value(),
		})
		return true
	})

	return rec
}

// firstPath returns the first existing result among the given gjson
// paths, with the unescaped member name that matched.
func firstPath(root gjson.Result, paths []string) (string, gjson.Result) {
	for _, p := range paths {
		if val := root.Get(p); val.Exists() {
			return strings.ReplaceAll(p, `\.`, "."), val
		}
	}
	return "", gjson.Result{}
}

// parseTimestamp interprets a JSON value as an event time: RFC 3339
// strings, fractional epoch seconds, or epoch milliseconds (values too
// large to be seconds).
func parseTimestamp(val gjson.Result) (time.Time, bool) {
	switch val.Type {
	case gjson.String:
		if ts, err := time.Parse(time.RFC3339Nano, val.String()); err == nil {
			return ts, true
		}
	case gjson.Number:
		f := val.Float()
		if f <= 0 {
			return time.Time{}, false
		}
		if f >= 1e12 { // epoch milliseconds
			f /= 1e3
		}
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC(), true
	}
	return time.Time{}, false
}

// ReadLineLimited reads a line from the reader with a maximum byte
// limit. Oversized lines are drained through the next newline so the
// following read starts at the correct position.
func ReadLineLimited(br *bufio.Reader, limit int) ([]byte, error) {
	var buf bytes.Buffer

	for {
		b, err := br.ReadBytes('\n')
		buf.Write(b)

		if buf.Len() > limit {
			if err == nil || !errors.Is(err, io.EOF) {
				for !bytes.Contains(b, []byte{'\n'}) {
					b, err = br.ReadBytes('\n')
					if err != nil {
						break
					}
				}
			}
			return nil, ErrLineTooLong
		}

		if err != nil {
			if errors.Is(err, io.EOF) && buf.Len() > 0 {
				return bytes.TrimRight(buf.Bytes(), "\r\n"), nil
			}
			return nil, err
		}

		return bytes.TrimRight(buf.Bytes(), "\r\n"), nil
	}
}
