package ingest

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/scottbrown/hecsink/internal/acl"
)

func TestReadLines(t *testing.T) {
	input := strings.NewReader("one\ntwo\n\nthree")

	var lines []string
	err := ReadLines(context.Background(), input, 1024, "test", func(line []byte) {
		lines = append(lines, string(line))
	})
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}

	if len(lines) != 3 || lines[0] != "one" || lines[1] != "two" || lines[2] != "three" {
		t.Errorf("expected [one two three], got %v", lines)
	}
}

func TestReadLines_SkipsOversized(t *testing.T) {
	input := strings.NewReader(strings.Repeat("x", 100) + "\nok\n")

	var lines []string
	err := ReadLines(context.Background(), input, 10, "test", func(line []byte) {
		lines = append(lines, string(line))
	})
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}

	if len(lines) != 1 || lines[0] != "ok" {
		t.Errorf("expected only the short line, got %v", lines)
	}
}

func TestListener_DeliversLines(t *testing.T) {
	l := NewListener("127.0.0.1:0", 1024, nil)

	var mu sync.Mutex
	var lines []string
	err := l.Start(context.Background(), func(line []byte) {
		mu.Lock()
		lines = append(lines, string(line))
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()

	conn, err := net.Dial("tcp", l.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, err := conn.Write([]byte("{\"message\":\"a\"}\n{\"message\":\"b\"}\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.Close()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(lines)
		mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected 2 lines, got %d", n)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestListener_AllowlistRejects(t *testing.T) {
	allow, err := acl.Parse([]string{"10.99.0.0/16"})
	if err != nil {
		t.Fatalf("acl.Parse: %v", err)
	}

	l := NewListener("127.0.0.1:0", 1024, allow)

	var mu sync.Mutex
	var lines []string
	if err := l.Start(context.Background(), func(line []byte) {
		mu.Lock()
		lines = append(lines, string(line))
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()

	conn, err := net.Dial("tcp", l.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The listener closes refused connections immediately. Writes may
	// succeed into the kernel buffer, so read for EOF instead.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Error("expected refused connection to be closed")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 0 {
		t.Errorf("expected no lines from refused connection, got %v", lines)
	}
}

func TestListener_StopUnblocksAccept(t *testing.T) {
	l := NewListener("127.0.0.1:0", 1024, nil)
	if err := l.Start(context.Background(), func([]byte) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = l.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
