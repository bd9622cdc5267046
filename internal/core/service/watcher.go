package service

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"webpify/internal/core/domain"
)

const debounceDelay = 500 * time.Millisecond

// Watcher keeps the optimizer running after the initial pass: it registers
// every directory under the images root (except the backup store) with
// fsnotify and re-runs the pipeline when image files settle. The decision
// step makes repeated passes cheap.
type Watcher struct {
	optimizer *Optimizer
	cfg       domain.Config
}

func NewWatcher(optimizer *Optimizer, cfg domain.Config) *Watcher {
	return &Watcher{optimizer: optimizer, cfg: cfg}
}

// Run blocks until ctx is cancelled, funnelling debounced file events into
// sequential optimizer passes.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsWatcher.Close()

	if err := w.addWatchDirs(fsWatcher); err != nil {
		return err
	}

	log.Info().Str("dir", w.cfg.ImagesDir).Msg("watching for new or changed images")

	deb := newDebouncer(debounceDelay)

	for {
		select {
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}

			// New subdirectories must be registered to keep the watch recursive.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.maybeWatchDir(fsWatcher, event.Name)
				}
			}

			if !w.shouldHandle(event) {
				continue
			}

			deb.bump(event.Name)

		case name := <-deb.fired:
			deb.settle(name)
			if _, err := w.optimizer.Run(ctx); err != nil {
				log.Warn().Err(err).Msg("optimization pass failed")
			}

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watch error")

		case <-ctx.Done():
			log.Info().Msg("stopping watch")
			return nil
		}
	}
}

// debouncer holds one timer per path; bump restarts the timer, and a timer
// that expires sends the path on fired. settle must be called for every
// received path so finished entries do not accumulate over a long session.
// bump and settle are only safe from the goroutine consuming fired.
type debouncer struct {
	delay  time.Duration
	timers map[string]*time.Timer
	fired  chan string
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:  delay,
		timers: make(map[string]*time.Timer),
		fired:  make(chan string),
	}
}

func (d *debouncer) bump(name string) {
	if timer, exists := d.timers[name]; exists {
		timer.Stop()
	}
	d.timers[name] = time.AfterFunc(d.delay, func() {
		d.fired <- name
	})
}

func (d *debouncer) settle(name string) {
	delete(d.timers, name)
}

func (d *debouncer) pending() int {
	return len(d.timers)
}

func (w *Watcher) addWatchDirs(fsWatcher *fsnotify.Watcher) error {
	backupRoot := w.cfg.BackupRoot()

	return filepath.WalkDir(w.cfg.ImagesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path == backupRoot {
			return filepath.SkipDir
		}
		if err := fsWatcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) maybeWatchDir(fsWatcher *fsnotify.Watcher, path string) {
	if w.underBackupStore(path) {
		return
	}
	if err := fsWatcher.Add(path); err == nil {
		log.Debug().Str("dir", path).Msg("watching new directory")
	}
}

// shouldHandle filters events down to creates and writes of candidate image
// files outside the backup store.
func (w *Watcher) shouldHandle(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return false
	}
	if !domain.IsImageFile(event.Name) {
		return false
	}
	return !w.underBackupStore(event.Name)
}

func (w *Watcher) underBackupStore(path string) bool {
	backupRoot := w.cfg.BackupRoot()
	return path == backupRoot || strings.HasPrefix(path, backupRoot+string(filepath.Separator))
}
