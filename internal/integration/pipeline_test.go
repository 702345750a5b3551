//go:build integration

// Package integration exercises the full ingest-to-collector pipeline
// against a mock HEC endpoint.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/scottbrown/hecsink/internal/forwarder"
	"github.com/scottbrown/hecsink/internal/hec"
	"github.com/scottbrown/hecsink/internal/processor"
	"github.com/scottbrown/hecsink/internal/testutil/hecmock"
)

const testToken = "test-token-123"

// pipeline bundles the pieces a scenario needs: a scripted collector,
// a running forwarder, and the line handler the ingest sources feed.
type pipeline struct {
	mock   *hecmock.Server
	client *hec.Client
	fwd    *forwarder.Forwarder
	ctx    context.Context
	cancel context.CancelFunc
}

func newPipeline(t *testing.T, tweak func(*hec.Config, *forwarder.Config)) *pipeline {
	t.Helper()

	mock := hecmock.New(testToken)

	clientCfg := hec.Config{
		URL:        mock.URL,
		Token:      testToken,
		SourceType: "test:integration",
	}
	fwdCfg := forwarder.DefaultConfig()
	fwdCfg.Batch.FlushInterval = 50 * time.Millisecond
	fwdCfg.Retry.InitialBackoff = 10 * time.Millisecond
	fwdCfg.Retry.MaxBackoff = 100 * time.Millisecond

	if tweak != nil {
		tweak(&clientCfg, &fwdCfg)
	}

	client, err := hec.New(clientCfg)
	if err != nil {
		t.Fatalf("hec.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	fwd := forwarder.New(client, fwdCfg, nil)
	fwd.Start(ctx)

	p := &pipeline{mock: mock, client: client, fwd: fwd, ctx: ctx, cancel: cancel}
	t.Cleanup(func() {
		p.cancel()
		p.client.Close()
		p.mock.Close()
	})
	return p
}

// handleLine mirrors the daemon's per-line path: parse, then enqueue.
func (p *pipeline) handleLine(line []byte) {
	_ = p.fwd.Enqueue(p.ctx, processor.ParseLine(line))
}

// drain flushes outstanding batches and waits for delivery.
func (p *pipeline) drain(t *testing.T) {
	t.Helper()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.fwd.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("pipeline shutdown: %v", err)
	}
}
