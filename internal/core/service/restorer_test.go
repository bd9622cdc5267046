package service

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webpify/internal/core/domain"
)

func TestRestoreMissingStoreFails(t *testing.T) {
	f := newFixture(t)
	restorer := NewRestorer(f.store, f.rewriter, f.cfg)

	_, err := restorer.Run()
	require.Error(t, err)
}

func TestRestoreRoundTrip(t *testing.T) {
	f := newFixture(t)

	// State after an optimization run: backup holds the original, the live
	// tree holds the converted output.
	src := f.writeImage(t, "sub/photo.png", "original")
	require.NoError(t, f.store.Put("sub/photo.png", src))
	require.NoError(t, os.Remove(src))
	converted := f.writeImage(t, "sub/photo.webp", "converted")

	restorer := NewRestorer(f.store, f.rewriter, f.cfg)
	stats, err := restorer.Run()
	require.NoError(t, err)

	assert.Equal(t, domain.RestoreStats{Restored: 1, DocsReverted: 1}, stats)

	content, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "original", string(content))

	assert.NoFileExists(t, converted)

	require.Len(t, f.rewriter.calls, 1)
	assert.Equal(t, [2]string{"photo.webp", "photo.png"}, f.rewriter.calls[0])
}

func TestRestoreInPlaceOnly(t *testing.T) {
	f := newFixture(t)

	// In-place optimization: the live file was re-encoded, no .webp exists.
	src := f.writeImage(t, "photo.jpg", "original")
	require.NoError(t, f.store.Put("photo.jpg", src))
	require.NoError(t, os.WriteFile(src, []byte("optimized"), 0644))

	restorer := NewRestorer(f.store, f.rewriter, f.cfg)
	stats, err := restorer.Run()
	require.NoError(t, err)

	assert.Equal(t, domain.RestoreStats{Restored: 1}, stats)

	content, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "original", string(content))
	assert.Empty(t, f.rewriter.calls)
}

func TestRestoreRecreatesDeletedDirectories(t *testing.T) {
	f := newFixture(t)

	src := f.writeImage(t, "deep/nested/photo.png", "original")
	require.NoError(t, f.store.Put("deep/nested/photo.png", src))
	require.NoError(t, os.RemoveAll(filepath.Join(f.cfg.ImagesDir, "deep")))

	restorer := NewRestorer(f.store, f.rewriter, f.cfg)
	stats, err := restorer.Run()
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Restored)
	assert.FileExists(t, src)
}

func TestRestoreDryRunHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	f.cfg.DryRun = true

	src := f.writeImage(t, "photo.png", "original")
	require.NoError(t, f.store.Put("photo.png", src))
	require.NoError(t, os.Remove(src))
	converted := f.writeImage(t, "photo.webp", "converted")

	restorer := NewRestorer(f.store, f.rewriter, f.cfg)
	stats, err := restorer.Run()
	require.NoError(t, err)

	assert.Equal(t, domain.RestoreStats{Restored: 1, DocsReverted: 1}, stats)

	// Nothing moved: original still absent, converted output untouched.
	assert.NoFileExists(t, src)
	assert.FileExists(t, converted)
}

func TestRestoreDryRunRewriterFailureContinues(t *testing.T) {
	f := newFixture(t)
	f.cfg.DryRun = true
	f.rewriter.err = errors.New("posts directory unreadable")

	src := f.writeImage(t, "photo.png", "original")
	require.NoError(t, f.store.Put("photo.png", src))
	require.NoError(t, os.Remove(src))
	f.writeImage(t, "photo.webp", "converted")

	restorer := NewRestorer(f.store, f.rewriter, f.cfg)
	stats, err := restorer.Run()
	require.NoError(t, err)

	assert.Equal(t, domain.RestoreStats{Restored: 1, DocsReverted: 0}, stats)
}

func TestRestoreWalksWholeStore(t *testing.T) {
	f := newFixture(t)

	for _, rel := range []string{"a.png", "sub/b.jpg"} {
		src := f.writeImage(t, rel, "original "+rel)
		require.NoError(t, f.store.Put(rel, src))
		require.NoError(t, os.Remove(src))
	}

	restorer := NewRestorer(f.store, f.rewriter, f.cfg)
	stats, err := restorer.Run()
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Restored)
	assert.FileExists(t, filepath.Join(f.cfg.ImagesDir, "a.png"))
	assert.FileExists(t, filepath.Join(f.cfg.ImagesDir, "sub", "b.jpg"))
}
