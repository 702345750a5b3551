// Package hecmock provides a mock Splunk HEC collector for integration
// testing. It records every post, understands gzip payloads, and can be
// scripted to fail.
package hecmock

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

const (
	eventPath  = "/services/collector/event/1.0"
	healthPath = "/services/collector/health"
)

// RecordedRequest is one post received by the mock collector. Events
// holds the individual event objects parsed out of the body, and is
// only populated for posts the collector accepted with 200.
type RecordedRequest struct {
	Timestamp  time.Time
	Headers    http.Header
	Body       []byte
	Events     []gjson.Result
	Compressed bool
}

// Server simulates a Splunk HEC endpoint.
type Server struct {
	// URL is the base collector URL to point clients at.
	URL string
	// Token is the expected authorization token.
	Token string

	httpServer *httptest.Server

	mu       sync.Mutex
	statuses []int
	delay    time.Duration
	requests []RecordedRequest
}

// New starts a mock collector expecting the given token. Close it when
// done.
func New(token string) *Server {
	s := &Server{Token: token}
	s.httpServer = httptest.NewServer(http.HandlerFunc(s.handler))
	s.URL = s.httpServer.URL
	return s
}

// Close shuts down the underlying test server.
func (s *Server) Close() {
	s.httpServer.Close()
}

// ScriptStatuses sets the status codes returned for subsequent posts,
// in order. The last status repeats once the script is exhausted; an
// empty script means 200.
func (s *Server) ScriptStatuses(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = statuses
}

// SetDelay makes the collector sleep before answering each post.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Requests returns a copy of all recorded posts.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Events returns every event object received across all posts, in
// arrival order.
func (s *Server) Events() []gjson.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []gjson.Result
	for _, r := range s.requests {
		out = append(out, r.Events...)
	}
	return out
}

// WaitForEvents polls until at least n events have arrived or the
// timeout expires. Returns whatever has arrived either way.
func (s *Server) WaitForEvents(n int, timeout time.Duration) []gjson.Result {
	deadline := time.Now().Add(timeout)
	for {
		events := s.Events()
		if len(events) >= n || time.Now().After(deadline) {
			return events
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (s *Server) nextStatus() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return http.StatusOK
	}
	status := s.statuses[0]
	if len(s.statuses) > 1 {
		s.statuses = s.statuses[1:]
	}
	return status
}

func (s *Server) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delay := s.delay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	if r.Header.Get("Authorization") != "Splunk "+s.Token {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"text":"Invalid token","code":4}`)
		return
	}

	switch r.URL.Path {
	case healthPath:
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"text":"HEC is healthy","code":17}`)
		return
	case eventPath:
	default:
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var bodyReader io.Reader = r.Body
	compressed := r.Header.Get("Content-Encoding") == "gzip"
	if compressed {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, "Invalid gzip content", http.StatusBadRequest)
			return
		}
		defer gz.Close()
		bodyReader = gz
	}

	body, err := io.ReadAll(bodyReader)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	status := s.nextStatus()

	rec := RecordedRequest{
		Timestamp:  time.Now(),
		Headers:    r.Header.Clone(),
		Body:       body,
		Compressed: compressed,
	}
	// Only accepted posts count as ingested events; failed attempts keep
	// their raw body for attempt-level assertions.
	if status == http.StatusOK {
		rec.Events = splitEvents(body)
	}

	s.mu.Lock()
	s.requests = append(s.requests, rec)
	s.mu.Unlock()

	switch status {
	case http.StatusOK:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"text":"Success","code":0}`)
	default:
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"text":"Error","code":%d}`, status)
	}
}

// splitEvents walks the concatenated JSON values that make up a HEC
// payload.
func splitEvents(body []byte) []gjson.Result {
	var events []gjson.Result
	dec := json.NewDecoder(bytes.NewReader(body))
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return events
		}
		events = append(events, gjson.ParseBytes(raw))
	}
}
