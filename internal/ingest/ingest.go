// Package ingest feeds newline-delimited log lines into the forwarding
// pipeline from stdin or a plain TCP listener.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/scottbrown/hecsink/internal/acl"
	"github.com/scottbrown/hecsink/internal/metrics"
	"github.com/scottbrown/hecsink/internal/processor"
)

// Handler consumes one complete log line. Lines arrive without their
// trailing newline.
type Handler func(line []byte)

// ReadLines pumps size-limited lines from r until EOF or ctx ends.
// Oversized lines are counted and skipped.
func ReadLines(ctx context.Context, r io.Reader, maxLineBytes int, source string, h Handler) error {
	br := bufio.NewReader(r)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := processor.ReadLineLimited(br, maxLineBytes)
		if errors.Is(err, processor.ErrLineTooLong) {
			metrics.LinesRejected.Inc()
			slog.Warn("skipping oversized line", "source", source, "limit", maxLineBytes)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if len(line) == 0 {
			continue
		}

		metrics.LinesRead.WithLabelValues(source).Inc()
		h(line)
	}
}

// Listener accepts TCP connections carrying NDJSON log lines.
type Listener struct {
	addr         string
	maxLineBytes int
	allow        *acl.Allowlist
	listener     net.Listener
	stopChan     chan struct{}
	wg           sync.WaitGroup
}

// NewListener creates a TCP line source for the given address. A nil
// allowlist permits all remote hosts.
func NewListener(addr string, maxLineBytes int, allow *acl.Allowlist) *Listener {
	return &Listener{
		addr:         addr,
		maxLineBytes: maxLineBytes,
		allow:        allow,
		stopChan:     make(chan struct{}),
	}
}

// Start binds the listener and begins accepting connections in the
// background. Each connection is drained line by line into h.
func (l *Listener) Start(ctx context.Context, h Handler) error {
	var err error
	l.listener, err = net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}

	slog.Info("ingest listener started", "addr", l.listener.Addr().String())

	l.wg.Add(1)
	go l.acceptLoop(ctx, h)
	return nil
}

// Addr returns the bound address, useful when the configured port is 0.
func (l *Listener) Addr() string {
	if l.listener == nil {
		return ""
	}
	return l.listener.Addr().String()
}

// Stop closes the listener and waits for connection handlers to finish.
func (l *Listener) Stop() error {
	close(l.stopChan)
	var err error
	if l.listener != nil {
		err = l.listener.Close()
	}
	l.wg.Wait()
	return err
}

func (l *Listener) acceptLoop(ctx context.Context, h Handler) {
	defer l.wg.Done()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.stopChan:
				return
			default:
				if ctx.Err() != nil {
					return
				}
				slog.Debug("ingest accept error", "error", err)
				continue
			}
		}

		if l.allow != nil && !l.allow.PermitsAddr(conn.RemoteAddr()) {
			metrics.ConnsRejected.Inc()
			slog.Warn("ingest connection refused by allowlist", "remote", conn.RemoteAddr().String())
			_ = conn.Close()
			continue
		}

		l.wg.Add(1)
		go func(conn net.Conn) {
			defer l.wg.Done()
			defer func() { _ = conn.Close() }()

			remote := conn.RemoteAddr().String()
			slog.Debug("ingest connection opened", "remote", remote)

			if err := ReadLines(ctx, conn, l.maxLineBytes, "tcp", h); err != nil && ctx.Err() == nil {
				slog.Debug("ingest connection closed", "remote", remote, "error", err)
			}
		}(conn)
	}
}
