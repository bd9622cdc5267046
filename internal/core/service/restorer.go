package service

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"webpify/internal/core/domain"
	"webpify/internal/core/port"
)

// Restorer reverses prior optimizations: every backup is copied back over
// its live path, converted outputs are deleted, and reference documents are
// rewritten back to the original filenames.
type Restorer struct {
	store    port.BackupStore
	rewriter port.ReferenceRewriter
	cfg      domain.Config
}

func NewRestorer(store port.BackupStore, rewriter port.ReferenceRewriter, cfg domain.Config) *Restorer {
	return &Restorer{store: store, rewriter: rewriter, cfg: cfg}
}

// Run walks the backup store and restores each file. A missing store is an
// environment error; per-file failures are logged and restoration continues.
func (r *Restorer) Run() (domain.RestoreStats, error) {
	var stats domain.RestoreStats

	if !r.store.Exists() {
		return stats, fmt.Errorf("no backup store at %s, nothing to restore", r.store.Root())
	}

	err := r.store.Walk(func(rel, backupPath string) error {
		dest := filepath.Join(r.cfg.ImagesDir, rel)
		converted := domain.WebPPath(dest)

		if r.cfg.DryRun {
			log.Info().Str("image", rel).Msg("would restore original")
			stats.Restored++
			if converted != dest {
				if _, err := os.Stat(converted); err == nil {
					log.Info().Str("path", converted).Msg("would delete converted output")
					docs, err := r.rewriter.Rewrite(filepath.Base(converted), filepath.Base(dest))
					if err != nil {
						log.Warn().Err(err).Str("image", rel).Msg("could not scan reference documents")
						return nil
					}
					stats.DocsReverted += docs
				}
			}
			return nil
		}

		if err := r.store.Restore(rel, dest); err != nil {
			log.Warn().Err(err).Str("image", rel).Msg("could not restore original")
			return nil
		}
		log.Info().Str("image", rel).Msg("restored original")
		stats.Restored++

		if converted == dest {
			return nil
		}
		if _, err := os.Stat(converted); err != nil {
			return nil
		}

		if err := os.Remove(converted); err != nil {
			log.Warn().Err(err).Str("path", converted).Msg("could not delete converted output")
		}

		docs, err := r.rewriter.Rewrite(filepath.Base(converted), filepath.Base(dest))
		if err != nil {
			log.Warn().Err(err).Str("image", rel).Msg("could not revert reference documents")
			return nil
		}
		stats.DocsReverted += docs

		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("walking backup store: %w", err)
	}

	return stats, nil
}
