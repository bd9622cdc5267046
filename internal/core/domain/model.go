package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Config holds one run's effective settings, resolved from the config file
// and CLI flags before any service is constructed.
type Config struct {
	MaxWidth  int
	MaxHeight int
	Quality   int

	DryRun bool
	Force  bool
	NoWebP bool
	Watch  bool

	ImagesDir string
	BackupDir string
	PostsDir  string
	PostsExt  string
}

// BackupRoot returns the absolute location of the backup store.
func (c Config) BackupRoot() string {
	return filepath.Join(c.ImagesDir, c.BackupDir)
}

// ConvertOptions are the parameters passed to a single image conversion.
// Bounds are shrink-only: images already within them are never upscaled.
type ConvertOptions struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// ImageInfo describes an image file as reported by the inspector.
type ImageInfo struct {
	Width  int
	Height int
	Bytes  int64
}

// PrettySize renders the byte count for progress output.
func (i ImageInfo) PrettySize() string {
	const unit = 1024
	if i.Bytes < unit {
		return fmt.Sprintf("%dB", i.Bytes)
	}
	div, exp := int64(unit), 0
	for n := i.Bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(i.Bytes)/float64(div), "KMGT"[exp])
}

// Stats accumulates per-run counters across the optimization loop.
type Stats struct {
	Found       int
	Optimized   int
	Skipped     int
	Errors      int
	DocsUpdated int
}

// RestoreStats accumulates counters for a restore run.
type RestoreStats struct {
	Restored     int
	DocsReverted int
}

// SavingsPercent reports 100 - floor(100*new/old), the space saved by a
// conversion. ok is false when either size is non-positive and no savings
// figure should be printed.
func SavingsPercent(oldBytes, newBytes int64) (int, bool) {
	if oldBytes <= 0 || newBytes <= 0 {
		return 0, false
	}
	return int(100 - (100*newBytes)/oldBytes), true
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// IsImageFile reports whether the path carries one of the supported source
// image extensions, case-insensitively.
func IsImageFile(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// WebPPath returns the derived output path for format conversion: same
// directory, same base name, .webp extension.
func WebPPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".webp"
}
