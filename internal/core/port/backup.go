package port

import "time"

type BackupStore interface {
	// Root returns the store's root directory.
	Root() string
	// Exists reports whether the store root is present on disk.
	Exists() bool
	// Has reports whether a backup exists for the given relative path.
	Has(rel string) bool
	// ModTime returns the modification time of the backup for rel.
	ModTime(rel string) (time.Time, error)
	// Put copies the file at srcPath into the store under rel, creating
	// mirrored directories as needed.
	Put(rel, srcPath string) error
	// Touch refreshes the backup's modification time without altering its
	// content, marking it at least as fresh as the live file.
	Touch(rel string) error
	// Restore copies the backup for rel over destPath, creating directories
	// as needed.
	Restore(rel, destPath string) error
	// Walk calls fn for every backed-up file with its relative path and the
	// backup file's location.
	Walk(fn func(rel, backupPath string) error) error
}
