package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scottbrown/hecsink"
	"github.com/scottbrown/hecsink/internal/acl"
	"github.com/scottbrown/hecsink/internal/archive"
	"github.com/scottbrown/hecsink/internal/config"
	"github.com/scottbrown/hecsink/internal/dlq"
	"github.com/scottbrown/hecsink/internal/forwarder"
	"github.com/scottbrown/hecsink/internal/hec"
	"github.com/scottbrown/hecsink/internal/ingest"
	"github.com/scottbrown/hecsink/internal/metrics"
	"github.com/scottbrown/hecsink/internal/processor"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:     hecsink.AppName,
	Short:   "Forward newline-delimited JSON log lines to Splunk HEC",
	Long:    "A forwarding daemon that reads newline-delimited JSON log lines from stdin or TCP, batches them, and delivers them to the Splunk HTTP Event Collector.",
	Version: hecsink.Version(),
	Run:     handleRootCmd,
}

func handleRootCmd(cmd *cobra.Command, args []string) {
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	applyFlagOverrides(cfg, cmd)

	client, err := hec.New(buildClientConfig(cfg))
	if err != nil {
		slog.Error("hec client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	// Delivery failures surface only through this subscription; wire it
	// to the diagnostic log.
	client.OnError(func(e *hec.DeliveryError) {
		slog.Error("delivery error",
			"status", e.StatusCode,
			"reply", e.Reply,
			"error", e.Err)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Verify collector connectivity before accepting any input.
	healthCtx, healthCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := client.HealthCheck(healthCtx); err != nil {
		healthCancel()
		slog.Error("HEC health check failed", "error", err)
		os.Exit(1)
	}
	healthCancel()
	slog.Info("HEC connectivity verified", "url", cfg.Splunk.HECURL)

	if err := metrics.StartServer(cfg.MetricsAddr); err != nil {
		slog.Error("metrics server", "error", err)
		os.Exit(1)
	}

	var queue *dlq.Writer
	if cfg.DLQDir != "" {
		queue, err = dlq.New(cfg.DLQDir)
		if err != nil {
			slog.Error("dlq", "error", err)
			os.Exit(1)
		}
		defer queue.Close()
	}

	var rawCopy *archive.Writer
	if cfg.Archive.Dir != "" {
		rawCopy, err = archive.New(cfg.Archive.Dir)
		if err != nil {
			slog.Error("archive", "error", err)
			os.Exit(1)
		}
		defer rawCopy.Close()
	}

	if cfg.Archive.Retention.Enabled {
		var dirs []string
		if cfg.Archive.Dir != "" {
			dirs = append(dirs, cfg.Archive.Dir)
		}
		if cfg.DLQDir != "" {
			dirs = append(dirs, cfg.DLQDir)
		}
		if len(dirs) > 0 {
			archive.NewPruner(buildRetentionPolicy(cfg), dirs...).Start(ctx)
		}
	}

	fwd := forwarder.New(client, buildForwarderConfig(cfg), queue)
	fwd.Start(ctx)

	handleLine := func(line []byte) {
		if rawCopy != nil {
			if err := rawCopy.Write("ingest", line); err != nil {
				slog.Warn("archive write", "error", err)
			}
		}
		// Serialization failures are already logged and counted; the
		// pipeline keeps going.
		_ = fwd.Enqueue(ctx, processor.ParseLine(line))
	}

	var listener *ingest.Listener
	if cfg.Ingest.ListenAddr != "" {
		allow, aerr := acl.Parse(cfg.Ingest.Allow) // validated at load
		if aerr != nil {
			slog.Error("ingest allowlist", "error", aerr)
			os.Exit(1)
		}
		listener = ingest.NewListener(cfg.Ingest.ListenAddr, cfg.Ingest.MaxLineBytes, allow)
		if err := listener.Start(ctx, handleLine); err != nil {
			slog.Error("ingest listener", "error", err)
			os.Exit(1)
		}
	}

	stdinDone := make(chan struct{})
	if *cfg.Ingest.Stdin {
		go func() {
			defer close(stdinDone)
			if err := ingest.ReadLines(ctx, os.Stdin, cfg.Ingest.MaxLineBytes, "stdin", handleLine); err != nil && ctx.Err() == nil {
				slog.Error("stdin ingest", "error", err)
			}
		}()
	} else {
		close(stdinDone)
	}

	slog.Info("hecsink started",
		"version", hecsink.Version(),
		"send_mode", cfg.Splunk.SendMode,
		"stdin", *cfg.Ingest.Stdin,
		"listen", cfg.Ingest.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case <-stdinDone:
		if cfg.Ingest.ListenAddr == "" {
			slog.Info("stdin closed, shutting down")
		} else {
			<-sigCh
		}
	}

	if listener != nil {
		if err := listener.Stop(); err != nil {
			slog.Warn("ingest listener stop", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := fwd.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("hecsink stopped")
}

func applyFlagOverrides(cfg *config.Config, cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("hec-url") {
		cfg.Splunk.HECURL = hecURL
	}
	if flags.Changed("hec-token") {
		cfg.Splunk.HECToken = hecToken
	}
	if flags.Changed("hec-channel") {
		cfg.Splunk.Channel = hecChannel
	}
	if flags.Changed("hec-index") {
		cfg.Splunk.Index = hecIndex
	}
	if flags.Changed("hec-source") {
		cfg.Splunk.Source = hecSource
	}
	if flags.Changed("hec-sourcetype") {
		cfg.Splunk.SourceType = hecSourcetype
	}
	if flags.Changed("send-mode") {
		cfg.Splunk.SendMode = sendMode
	}
	if flags.Changed("hec-gzip") {
		cfg.Splunk.Gzip = gzipHEC
	}
	if flags.Changed("ignore-ssl-errors") {
		cfg.Splunk.IgnoreSSLErrors = ignoreSSLErrors
	}
	if flags.Changed("listen") {
		cfg.Ingest.ListenAddr = listenAddr
	}
	if flags.Changed("dlq-dir") {
		cfg.DLQDir = dlqDir
	}
	if flags.Changed("metrics") {
		cfg.MetricsAddr = metricsAddr
	}
	if flags.Changed("max-line-bytes") {
		cfg.Ingest.MaxLineBytes = maxLineBytes
	}
}

// buildClientConfig maps file configuration onto the HEC client's
// construction parameters.
func buildClientConfig(cfg *config.Config) hec.Config {
	mode, _ := hec.ParseSendMode(cfg.Splunk.SendMode) // validated at load

	return hec.Config{
		URL:               cfg.Splunk.HECURL,
		Token:             cfg.Splunk.HECToken,
		Channel:           cfg.Splunk.Channel,
		Index:             cfg.Splunk.Index,
		Source:            cfg.Splunk.Source,
		SourceType:        cfg.Splunk.SourceType,
		IgnoreSSLErrors:   cfg.Splunk.IgnoreSSLErrors,
		UseProxy:          cfg.Splunk.UseProxy,
		ProxyURL:          cfg.Splunk.ProxyURL,
		ProxyUser:         cfg.Splunk.ProxyUser,
		ProxyPassword:     cfg.Splunk.ProxyPassword,
		MaxConnsPerServer: cfg.Splunk.MaxConnsPerHost,
		UseHTTP10:         cfg.Splunk.UseHTTP10,
		SendMode:          mode,
		Gzip:              cfg.Splunk.Gzip,
		Timeout:           time.Duration(cfg.Splunk.TimeoutSeconds) * time.Second,
	}
}

// buildRetentionPolicy maps file configuration onto the pruner policy.
func buildRetentionPolicy(cfg *config.Config) archive.Policy {
	r := cfg.Archive.Retention
	return archive.Policy{
		Enabled:         r.Enabled,
		MaxAgeDays:      r.MaxAgeDays,
		CompressAgeDays: r.CompressAgeDays,
		CheckInterval:   time.Duration(r.CheckIntervalMinutes) * time.Minute,
	}
}

// buildForwarderConfig maps file configuration onto pipeline tuning,
// falling back to defaults for unset values.
func buildForwarderConfig(cfg *config.Config) forwarder.Config {
	out := forwarder.DefaultConfig()

	if cfg.Batch.MaxEvents > 0 {
		out.Batch.MaxEvents = cfg.Batch.MaxEvents
	}
	if cfg.Batch.MaxBytes > 0 {
		out.Batch.MaxBytes = cfg.Batch.MaxBytes
	}
	if cfg.Batch.FlushInterval > 0 {
		out.Batch.FlushInterval = time.Duration(cfg.Batch.FlushInterval) * time.Second
	}

	if cfg.Retry.MaxAttempts > 0 {
		out.Retry.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialBackoffMS > 0 {
		out.Retry.InitialBackoff = time.Duration(cfg.Retry.InitialBackoffMS) * time.Millisecond
	}
	if cfg.Retry.BackoffMultiplier > 0 {
		out.Retry.Multiplier = cfg.Retry.BackoffMultiplier
	}
	if cfg.Retry.MaxBackoffSeconds > 0 {
		out.Retry.MaxBackoff = time.Duration(cfg.Retry.MaxBackoffSeconds) * time.Second
	}

	if cb := cfg.CircuitBreaker; cb != nil {
		if cb.Enabled != nil && !*cb.Enabled {
			out.CircuitBreaker.FailureThreshold = 0
		}
		if cb.FailureThreshold > 0 {
			out.CircuitBreaker.FailureThreshold = cb.FailureThreshold
		}
		if cb.SuccessThreshold > 0 {
			out.CircuitBreaker.SuccessThreshold = cb.SuccessThreshold
		}
		if cb.Timeout > 0 {
			out.CircuitBreaker.Timeout = time.Duration(cb.Timeout) * time.Second
		}
		if cb.HalfOpenMaxCalls > 0 {
			out.CircuitBreaker.HalfOpenMaxCalls = cb.HalfOpenMaxCalls
		}
	}

	return out
}
