package processor

import (
	"bufio"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseLine_RecognizedFields(t *testing.T) {
	line := []byte(`{"timestamp":"2025-03-14T09:26:53.589Z","level":"warn","message":"disk almost full","trace_id":"abc-123","disk":"/dev/sda1","free_pct":4.2}`)

	rec := ParseLine(line)

	expected := time.Date(2025, 3, 14, 9, 26, 53, 589*1e6, time.UTC)
	if !rec.Timestamp.Equal(expected) {
		t.Errorf("expected timestamp %v, got %v", expected, rec.Timestamp)
	}
	if rec.Level != "warn" {
		t.Errorf("expected level warn, got %q", rec.Level)
	}
	if rec.Message != "disk almost full" {
		t.Errorf("expected message, got %q", rec.Message)
	}
	if rec.ID != "abc-123" {
		t.Errorf("expected id abc-123, got %q", rec.ID)
	}

	if len(rec.Properties) != 2 {
		t.Fatalf("expected 2 leftover properties, got %v", rec.Properties)
	}
	if rec.Properties[0].Name != "disk" || rec.Properties[1].Name != "free_pct" {
		t.Errorf("expected properties in document order, got %v", rec.Properties)
	}
	if rec.Properties[1].Value != 4.2 {
		t.Errorf("expected numeric property preserved, got %v", rec.Properties[1].Value)
	}
}

func TestParseLine_FieldSpellings(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		check func(t *testing.T, level, message string)
	}{
		{
			name: "severity and msg",
			line: `{"severity":"ERROR","msg":"boom"}`,
			check: func(t *testing.T, level, message string) {
				if level != "ERROR" || message != "boom" {
					t.Errorf("got level=%q message=%q", level, message)
				}
			},
		},
		{
			name: "otel severityText and body",
			line: `{"severityText":"Info","body":"hello"}`,
			check: func(t *testing.T, level, message string) {
				if level != "Info" || message != "hello" {
					t.Errorf("got level=%q message=%q", level, message)
				}
			},
		},
		{
			name: "dotted log.level key",
			line: `{"log.level":"debug","message":"m"}`,
			check: func(t *testing.T, level, message string) {
				if level != "debug" {
					t.Errorf("got level=%q", level)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ParseLine([]byte(tt.line))
			tt.check(t, rec.Level, rec.Message)
			for _, p := range rec.Properties {
				if p.Name == "severity" || p.Name == "msg" || p.Name == "severityText" || p.Name == "body" || p.Name == "log.level" {
					t.Errorf("consumed field %q leaked into properties", p.Name)
				}
			}
		})
	}
}

func TestParseLine_EpochTimestamps(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected time.Time
	}{
		{"fractional seconds", `{"time":1741944413.589}`, time.Date(2025, 3, 14, 9, 26, 53, 589*1e6, time.UTC)},
		{"milliseconds", `{"ts":1741944413589}`, time.Date(2025, 3, 14, 9, 26, 53, 589*1e6, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ParseLine([]byte(tt.line))
			if d := rec.Timestamp.Sub(tt.expected); d > time.Millisecond || d < -time.Millisecond {
				t.Errorf("expected %v, got %v", tt.expected, rec.Timestamp)
			}
		})
	}
}

func TestParseLine_NonJSONBecomesPlainMessage(t *testing.T) {
	rec := ParseLine([]byte("plain text log line"))

	if rec.Message != "plain text log line" {
		t.Errorf("expected raw text preserved, got %q", rec.Message)
	}
	if rec.Timestamp.IsZero() {
		t.Error("expected receive time stamped on non-JSON lines")
	}
	if len(rec.Properties) != 0 {
		t.Errorf("expected no properties, got %v", rec.Properties)
	}
}

func TestParseLine_JSONArrayBecomesPlainMessage(t *testing.T) {
	rec := ParseLine([]byte(`[1,2,3]`))
	if rec.Message != "[1,2,3]" {
		t.Errorf("expected array kept as plain message, got %q", rec.Message)
	}
}

func TestReadLineLimited(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		limit    int
		expected []string
		wantErr  []bool
	}{
		{
			name:     "normal lines",
			input:    "one\ntwo\r\nthree",
			limit:    100,
			expected: []string{"one", "two", "three"},
			wantErr:  []bool{false, false, false},
		},
		{
			name:     "oversized line drained",
			input:    strings.Repeat("x", 50) + "\nok\n",
			limit:    10,
			expected: []string{"", "ok"},
			wantErr:  []bool{true, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br := bufio.NewReader(strings.NewReader(tt.input))
			for i := range tt.expected {
				line, err := ReadLineLimited(br, tt.limit)
				if tt.wantErr[i] {
					if !errors.Is(err, ErrLineTooLong) {
						t.Fatalf("line %d: expected ErrLineTooLong, got %v", i, err)
					}
					continue
				}
				if err != nil {
					t.Fatalf("line %d: %v", i, err)
				}
				if string(line) != tt.expected[i] {
					t.Errorf("line %d: expected %q, got %q", i, tt.expected[i], line)
				}
			}
		})
	}
}
