package service

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"webpify/internal/core/domain"
	"webpify/internal/core/port"
)

// Optimizer runs the batch pipeline: discover candidate images, decide per
// file whether work is needed, back up, convert, and keep reference documents
// pointing at the right filenames. Files are processed strictly one at a
// time; all counters live in the returned Stats value.
type Optimizer struct {
	inspector port.ImageInspector
	converter port.ImageConverter
	rewriter  port.ReferenceRewriter
	store     port.BackupStore
	cfg       domain.Config
}

func NewOptimizer(inspector port.ImageInspector, converter port.ImageConverter,
	rewriter port.ReferenceRewriter, store port.BackupStore, cfg domain.Config) *Optimizer {
	return &Optimizer{
		inspector: inspector,
		converter: converter,
		rewriter:  rewriter,
		store:     store,
		cfg:       cfg,
	}
}

// Run walks the images root and processes every candidate to completion
// before moving to the next. Per-file failures are counted and logged, never
// propagated; the returned error is reserved for environment failures such
// as a missing images root.
func (o *Optimizer) Run(ctx context.Context) (domain.Stats, error) {
	var stats domain.Stats

	candidates, err := o.Discover()
	if err != nil {
		return stats, err
	}

	for _, path := range candidates {
		stats.Found++

		rel, err := filepath.Rel(o.cfg.ImagesDir, path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("skipping file outside images root")
			stats.Errors++
			continue
		}

		if !o.ShouldProcess(path, rel) {
			log.Debug().Str("image", rel).Msg("already optimized, skipping")
			stats.Skipped++
			continue
		}

		o.process(ctx, path, rel, &stats)
	}

	return stats, nil
}

// Discover collects regular files under the images root whose extension is
// on the allow-list, excluding the backup store subtree. WalkDir yields
// lexical order, so logs are reproducible across runs.
func (o *Optimizer) Discover() ([]string, error) {
	if info, err := os.Stat(o.cfg.ImagesDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("images directory %s does not exist", o.cfg.ImagesDir)
	}

	backupRoot := o.cfg.BackupRoot()

	var candidates []string
	err := filepath.WalkDir(o.cfg.ImagesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == backupRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !domain.IsImageFile(path) {
			return nil
		}
		candidates = append(candidates, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", o.cfg.ImagesDir, err)
	}

	return candidates, nil
}

// ShouldProcess is the decision policy, first match wins:
// force, no backup yet, source newer than its backup, or conversion mode
// with no converted output on disk. It reads filesystem metadata only.
func (o *Optimizer) ShouldProcess(path, rel string) bool {
	if o.cfg.Force {
		return true
	}

	if !o.store.Has(rel) {
		return true
	}

	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	backupTime, err := o.store.ModTime(rel)
	if err != nil {
		return true
	}
	if info.ModTime().After(backupTime) {
		// The author replaced the source image since the last run.
		return true
	}

	if !o.cfg.NoWebP {
		if _, err := os.Stat(domain.WebPPath(path)); err != nil {
			return true
		}
	}

	return false
}

func (o *Optimizer) process(ctx context.Context, path, rel string, stats *domain.Stats) {
	info, err := o.inspector.Inspect(ctx, path)
	if err != nil {
		log.Warn().Err(err).Str("image", rel).Msg("unreadable or corrupted image, skipping")
		stats.Errors++
		return
	}

	outPath := path
	if !o.cfg.NoWebP {
		outPath = domain.WebPPath(path)
	}

	if o.cfg.DryRun {
		o.reportDryRun(path, rel, outPath, info, stats)
		return
	}

	if err := o.ensureBackup(path, rel); err != nil {
		log.Warn().Err(err).Str("image", rel).Msg("could not back up original, skipping")
		stats.Errors++
		return
	}

	opts := domain.ConvertOptions{
		MaxWidth:  o.cfg.MaxWidth,
		MaxHeight: o.cfg.MaxHeight,
		Quality:   o.cfg.Quality,
	}
	if err := o.converter.Convert(ctx, path, outPath, opts); err != nil {
		log.Warn().Err(err).Str("image", rel).Msg("conversion failed")
		stats.Errors++
		o.cleanupPartialOutput(path, outPath)
		return
	}

	hadError := false

	newInfo, err := o.inspector.Inspect(ctx, outPath)
	if err != nil {
		log.Warn().Err(err).Str("image", rel).Msg("could not read converted output metadata")
		hadError = true
	} else {
		o.reportProgress(rel, info, newInfo)
	}

	if outPath != path {
		if !o.finalizeConversion(path, outPath, rel, stats) {
			hadError = true
		}
	} else if err := o.store.Touch(rel); err != nil {
		// The re-encode just made the original newer than its backup; the
		// touch keeps the next run from reprocessing an optimized file.
		log.Warn().Err(err).Str("image", rel).Msg("could not refresh backup timestamp")
	}

	// Each processed file lands in exactly one summary bucket.
	if hadError {
		stats.Errors++
	} else {
		stats.Optimized++
	}
}

// ensureBackup writes the safety copy before any destructive step. An
// existing backup is only replaced when the source was modified after it,
// meaning the author swapped in a new original.
func (o *Optimizer) ensureBackup(path, rel string) error {
	if o.store.Has(rel) {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		backupTime, err := o.store.ModTime(rel)
		if err != nil {
			return err
		}
		if !info.ModTime().After(backupTime) {
			return nil
		}
	}
	return o.store.Put(rel, path)
}

// finalizeConversion rewrites references old -> new, then deletes the
// original, but only once the converted output is confirmed on disk. It
// reports false when any step failed; the caller decides which summary
// bucket the file lands in.
func (o *Optimizer) finalizeConversion(path, outPath, rel string, stats *domain.Stats) bool {
	ok := true

	docs, err := o.rewriter.Rewrite(filepath.Base(path), filepath.Base(outPath))
	if err != nil {
		log.Warn().Err(err).Str("image", rel).Msg("reference update failed")
		ok = false
	} else {
		stats.DocsUpdated += docs
	}

	if _, err := os.Stat(outPath); err != nil {
		log.Warn().Err(err).Str("image", rel).Msg("converted output missing, keeping original")
		return false
	}

	if err := os.Remove(path); err != nil {
		log.Warn().Err(err).Str("image", rel).Msg("could not remove original after conversion")
		ok = false
	}

	return ok
}

// cleanupPartialOutput removes whatever the failed tool invocation left at a
// distinct output path, so a broken .webp never shadows a healthy original.
func (o *Optimizer) cleanupPartialOutput(path, outPath string) {
	if outPath == path {
		return
	}
	if _, err := os.Stat(outPath); err == nil {
		if err := os.Remove(outPath); err != nil {
			log.Warn().Err(err).Str("path", outPath).Msg("could not remove partial output")
		}
	}
}

func (o *Optimizer) reportDryRun(path, rel, outPath string, info domain.ImageInfo, stats *domain.Stats) {
	if !o.store.Has(rel) {
		log.Info().Str("image", rel).Msg("would back up original")
	}
	if outPath != path {
		log.Info().Str("image", rel).Msgf("would convert %dx%d %s to %s",
			info.Width, info.Height, info.PrettySize(), filepath.Base(outPath))
		// The rewriter runs in report-only mode here, mutating nothing.
		docs, err := o.rewriter.Rewrite(filepath.Base(path), filepath.Base(outPath))
		if err != nil {
			log.Warn().Err(err).Str("image", rel).Msg("could not scan reference documents")
			stats.Errors++
		} else {
			stats.DocsUpdated += docs
		}
		log.Info().Str("image", rel).Msg("would delete original after conversion")
	} else {
		log.Info().Str("image", rel).Msgf("would optimize %dx%d %s in place",
			info.Width, info.Height, info.PrettySize())
	}
	stats.Optimized++
}

func (o *Optimizer) reportProgress(rel string, before, after domain.ImageInfo) {
	event := log.Info().Str("image", rel)
	if pct, ok := domain.SavingsPercent(before.Bytes, after.Bytes); ok {
		event.Msgf("%dx%d %s -> %dx%d %s (%d%% saved)",
			before.Width, before.Height, before.PrettySize(),
			after.Width, after.Height, after.PrettySize(), pct)
		return
	}
	event.Msgf("%dx%d %s -> %dx%d %s",
		before.Width, before.Height, before.PrettySize(),
		after.Width, after.Height, after.PrettySize())
}
