package backup

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Store keeps byte-identical copies of original images under a reserved root
// directory, mirroring each original's path relative to the images root. A
// backup is written once before the original is first modified and is only
// replaced by an explicit re-processing.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) Exists() bool {
	info, err := os.Stat(s.root)
	return err == nil && info.IsDir()
}

func (s *Store) Has(rel string) bool {
	_, err := os.Stat(filepath.Join(s.root, rel))
	return err == nil
}

func (s *Store) ModTime(rel string) (time.Time, error) {
	info, err := os.Stat(filepath.Join(s.root, rel))
	if err != nil {
		return time.Time{}, fmt.Errorf("stat backup %s: %w", rel, err)
	}
	return info.ModTime(), nil
}

func (s *Store) Put(rel, srcPath string) error {
	destPath := filepath.Join(s.root, rel)

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("creating backup directory for %s: %w", rel, err)
	}

	if err := copyFile(srcPath, destPath); err != nil {
		return fmt.Errorf("backing up %s: %w", rel, err)
	}

	log.Debug().Str("rel", rel).Str("dest", destPath).Msg("backup written")
	return nil
}

func (s *Store) Touch(rel string) error {
	now := time.Now()
	if err := os.Chtimes(filepath.Join(s.root, rel), now, now); err != nil {
		return fmt.Errorf("touching backup %s: %w", rel, err)
	}
	return nil
}

func (s *Store) Restore(rel, destPath string) error {
	srcPath := filepath.Join(s.root, rel)

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", destPath, err)
	}

	if err := copyFile(srcPath, destPath); err != nil {
		return fmt.Errorf("restoring %s: %w", rel, err)
	}

	log.Debug().Str("rel", rel).Str("dest", destPath).Msg("backup restored")
	return nil
}

func (s *Store) Walk(fn func(rel, backupPath string) error) error {
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}

		return fn(rel, path)
	})
}

func copyFile(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		return err
	}

	return dest.Close()
}
