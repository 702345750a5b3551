package archive

import (
	"compress/gzip"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Policy controls pruning of dated NDJSON files. Ages are in days.
// A zero CompressAgeDays disables compression.
type Policy struct {
	Enabled         bool
	MaxAgeDays      int
	CompressAgeDays int
	CheckInterval   time.Duration
}

// Pruner periodically deletes and compresses old archive and dead
// letter files according to a Policy.
type Pruner struct {
	policy Policy
	dirs   []string
}

// NewPruner monitors the given directories for dated files named like
// raw-2025-01-15.ndjson or dlq-2025-01-15.ndjson.
func NewPruner(policy Policy, dirs ...string) *Pruner {
	return &Pruner{policy: policy, dirs: dirs}
}

// Start runs an immediate sweep, then sweeps on every CheckInterval
// tick until ctx is cancelled. Disabled policies return immediately.
func (p *Pruner) Start(ctx context.Context) {
	if !p.policy.Enabled {
		slog.Info("retention disabled")
		return
	}

	slog.Info("starting retention pruner",
		"max_age_days", p.policy.MaxAgeDays,
		"compress_age_days", p.policy.CompressAgeDays,
		"check_interval", p.policy.CheckInterval)

	p.sweep()

	ticker := time.NewTicker(p.policy.CheckInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.sweep()
			case <-ctx.Done():
				slog.Info("retention pruner stopped")
				return
			}
		}
	}()
}

func (p *Pruner) sweep() {
	deleteCutoff := time.Now().AddDate(0, 0, -p.policy.MaxAgeDays)
	var compressCutoff time.Time
	if p.policy.CompressAgeDays > 0 {
		compressCutoff = time.Now().AddDate(0, 0, -p.policy.CompressAgeDays)
	}

	var deleted, compressed int
	var bytesFreed int64
	for _, dir := range p.dirs {
		d, c, freed := p.sweepDir(dir, deleteCutoff, compressCutoff)
		deleted += d
		compressed += c
		bytesFreed += freed
	}

	slog.Info("retention sweep complete",
		"files_deleted", deleted,
		"files_compressed", compressed,
		"bytes_freed", bytesFreed)
}

func (p *Pruner) sweepDir(dir string, deleteCutoff, compressCutoff time.Time) (deleted, compressed int, bytesFreed int64) {
	patterns := []string{
		filepath.Join(dir, "*-????-??-??.ndjson"),
		filepath.Join(dir, "*-????-??-??.ndjson.gz"),
	}

	for _, pattern := range patterns {
		files, err := filepath.Glob(pattern)
		if err != nil {
			slog.Error("retention glob failed", "pattern", pattern, "error", err)
			continue
		}

		for _, file := range files {
			fileDate := dateFromFilename(file)
			if fileDate.IsZero() {
				slog.Warn("unparseable date in filename", "file", file)
				continue
			}

			if fileDate.Before(deleteCutoff) {
				size, err := removeFile(file)
				if err != nil {
					slog.Error("failed to delete expired file", "file", file, "error", err)
					continue
				}
				deleted++
				bytesFreed += size
				slog.Info("deleted expired file",
					"file", filepath.Base(file),
					"age_days", int(time.Since(fileDate).Hours()/24),
					"size_bytes", size)
				continue
			}

			if p.policy.CompressAgeDays > 0 &&
				fileDate.Before(compressCutoff) &&
				!strings.HasSuffix(file, ".gz") {
				orig, comp, err := compressFile(file)
				if err != nil {
					slog.Error("failed to compress file", "file", file, "error", err)
					continue
				}
				compressed++
				bytesFreed += orig - comp
				slog.Info("compressed old file",
					"file", filepath.Base(file),
					"original_size", orig,
					"compressed_size", comp)
			}
		}
	}

	return deleted, compressed, bytesFreed
}

// dateFromFilename pulls the YYYY-MM-DD suffix out of names like
// raw-2025-01-15.ndjson or dlq-2025-01-15.ndjson.gz.
func dateFromFilename(path string) time.Time {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".gz")
	base = strings.TrimSuffix(base, ".ndjson")

	parts := strings.Split(base, "-")
	if len(parts) < 3 {
		return time.Time{}
	}
	dateStr := strings.Join(parts[len(parts)-3:], "-")

	d, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return time.Time{}
	}
	return d
}

func removeFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if err := os.Remove(path); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// compressFile gzips the file in place, removing the original on
// success. Returns original and compressed sizes.
func compressFile(path string) (int64, int64, error) {
	// #nosec G304 -- path comes from globbing configured directories.
	input, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}

	outPath := path + ".gz"
	// #nosec G304 -- derived from the globbed path above.
	out, err := os.Create(outPath)
	if err != nil {
		return 0, 0, err
	}

	gz := gzip.NewWriter(out)
	if _, err := gz.Write(input); err != nil {
		_ = gz.Close()
		_ = out.Close()
		_ = os.Remove(outPath)
		return 0, 0, fmt.Errorf("compress %s: %w", path, err)
	}
	if err := gz.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(outPath)
		return 0, 0, fmt.Errorf("compress %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(outPath)
		return 0, 0, err
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return 0, 0, err
	}

	if err := os.Remove(path); err != nil {
		slog.Warn("compressed file but could not remove original",
			"file", path, "error", err)
	}

	return int64(len(input)), info.Size(), nil
}
