// Package pipeline wires the full playlist run together: expand the
// playlist, prefetch metadata, acquire every track, recover what failed,
// and persist the failure report.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"trackfetch/internal/acquire"
	"trackfetch/internal/backend"
	"trackfetch/internal/config"
	"trackfetch/internal/failures"
	"trackfetch/internal/infocache"
	"trackfetch/internal/logger"
	"trackfetch/internal/match"
	"trackfetch/internal/recovery"
	"trackfetch/internal/track"
)

type Hooks struct {
	OnExpanded  func(total int)
	OnTrackDone func(ok bool)
	OnWarning   func(msg string)
}

// Result is the outcome of a playlist run. Every playlist reference is
// accounted for exactly once: either in Files or in Failed.
type Result struct {
	SessionDir string
	Files      []track.AcquiredFile
	Failed     []failures.Record
	ReportPath string
}

// RunPlaylist executes the full acquisition pipeline for one playlist.
func RunPlaylist(ctx context.Context, cfg config.Config, b backend.Backend, log *logger.Logger, hooks Hooks) (*Result, error) {
	session := uuid.New().String()[:8]
	sessionDir := filepath.Join(cfg.OutputDir, "Playlist_"+session)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	log.Info("Session directory: %s", sessionDir)

	refs, err := b.ResolvePlaylist(ctx, cfg.PlaylistURL)
	if err != nil {
		return nil, fmt.Errorf("failed to expand playlist: %w", err)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("no tracks found in playlist - it may be empty or private")
	}
	if hooks.OnExpanded != nil {
		hooks.OnExpanded(len(refs))
	}

	cache := infocache.New(b, log, cfg.InfoBatchSize, cfg.InfoBatchWorkers)
	if err := cache.Prefetch(ctx, refs); err != nil {
		return nil, fmt.Errorf("metadata prefetch cancelled: %w", err)
	}

	claims := acquire.NewClaims()
	if n := claims.SeedFromDir(sessionDir); n > 0 {
		log.Info("Found %d existing tracks, they will be skipped", n)
	}

	matcher := match.New(cfg.RelevanceThreshold, time.Duration(cfg.MaxCandidateDurationSec)*time.Second)
	co := acquire.New(b, matcher, cache, claims, log, acquire.Options{
		Workers:             cfg.ParallelJobs,
		ShortTrackCutoff:    time.Duration(cfg.ShortTrackSec) * time.Second,
		MinFallbackDuration: time.Duration(cfg.MinFallbackSec) * time.Second,
		SearchLimit:         cfg.SearchResults,
		AudioFormat:         cfg.AudioFormat,
		AudioQuality:        cfg.AudioQuality,
		Album:               "Playlist " + session,
	})
	if hooks.OnTrackDone != nil {
		co.OnTrackDone = func(_ track.Reference, ok bool) { hooks.OnTrackDone(ok) }
	}

	files, failed := co.Run(ctx, refs, sessionDir)
	failed = append(failed, missingReferences(refs, files, failed)...)

	ledger := failures.NewLedger()
	if len(failed) > 0 {
		if cfg.SkipRecovery {
			for _, f := range failed {
				ledger.Add(f.Title, f.Ref.URL, f.Reason)
			}
		} else {
			rp := recovery.NewPipeline(co, cache, ledger, log, cfg.RecoveryWorkers)
			files = append(files, rp.Run(ctx, failed, sessionDir)...)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Ref.Index < files[j].Ref.Index })

	result := &Result{
		SessionDir: sessionDir,
		Files:      files,
		Failed:     ledger.Records(),
	}

	if path, err := ledger.WriteReport(sessionDir); err != nil {
		msg := fmt.Sprintf("could not write failure report: %v", err)
		log.Warn(msg)
		if hooks.OnWarning != nil {
			hooks.OnWarning(msg)
		}
	} else {
		result.ReportPath = path
	}

	logSummary(log, len(refs), result, ledger)
	return result, nil
}

// RunSingle acquires one track straight into the output directory, with
// the same fallback behavior as a playlist run but no recovery pass.
func RunSingle(ctx context.Context, cfg config.Config, b backend.Backend, log *logger.Logger, url string) (*track.AcquiredFile, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	claims := acquire.NewClaims()
	claims.SeedFromDir(cfg.OutputDir)

	matcher := match.New(cfg.RelevanceThreshold, time.Duration(cfg.MaxCandidateDurationSec)*time.Second)
	co := acquire.New(b, matcher, nil, claims, log, acquire.Options{
		ShortTrackCutoff:    time.Duration(cfg.ShortTrackSec) * time.Second,
		MinFallbackDuration: time.Duration(cfg.MinFallbackSec) * time.Second,
		SearchLimit:         cfg.SearchResults,
		AudioFormat:         cfg.AudioFormat,
		AudioQuality:        cfg.AudioQuality,
	})

	file, err := co.Acquire(ctx, track.Reference{URL: url, Index: 1}, cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to download track: %w", err)
	}
	return file, nil
}

// missingReferences cross-checks that every playlist reference settled.
// Anything the worker pool lost track of becomes a failure so the final
// accounting always covers the whole playlist.
func missingReferences(refs []track.Reference, files []track.AcquiredFile, failed []acquire.Failure) []acquire.Failure {
	settled := make(map[string]bool, len(refs))
	for _, f := range files {
		settled[f.Ref.URL] = true
	}
	for _, f := range failed {
		settled[f.Ref.URL] = true
	}

	var missing []acquire.Failure
	for _, ref := range refs {
		if !settled[ref.URL] {
			missing = append(missing, acquire.Failure{
				Ref:    ref,
				Title:  ref.URL,
				Reason: "track was never processed",
			})
		}
	}
	return missing
}

func logSummary(log *logger.Logger, total int, result *Result, ledger *failures.Ledger) {
	log.Info("")
	log.Info("=== Download complete ===")
	log.Success("Downloaded %d of %d tracks to %s", len(result.Files), total, result.SessionDir)

	if len(result.Failed) == 0 {
		return
	}

	log.Warn("%d tracks could not be downloaded", len(result.Failed))
	for _, row := range ledger.Breakdown() {
		log.Info("  %s: %d (%.1f%%)", row.Category, row.Count, row.Percent)
	}
	if result.ReportPath != "" {
		log.Info("Details written to %s", result.ReportPath)
	}
}
