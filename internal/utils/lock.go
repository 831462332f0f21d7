package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const (
	lockFileSuffix = ".lock"
)

// HomeLock manages a file-based lock that keeps two tfarm processes from
// farming out of the same home village at the same time.
type HomeLock struct {
	lock *flock.Flock
	path string
}

// NewHomeLock creates a lock for the given home village next to the database.
func NewHomeLock(dbPath, home string) (*HomeLock, error) {
	absPath, err := GetAbsDBPath(dbPath)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute db path: %w", err)
	}
	lockPath := fmt.Sprintf("%s.%s%s", absPath, home, lockFileSuffix)
	return &HomeLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

// TryLock acquires the lock without waiting. It reports false when another
// process already holds it.
func (l *HomeLock) TryLock() (bool, error) {
	locked, err := l.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	return locked, nil
}

// Lock acquires the lock, waiting if necessary.
// It will print a message if it has to wait.
func (l *HomeLock) Lock() error {
	locked, err := l.TryLock()
	if err != nil {
		return err
	}

	if !locked {
		fmt.Fprintf(os.Stderr, "Another tfarm process is farming from this village, waiting for it to finish...\n")
		if err := l.lock.Lock(); err != nil {
			return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
		}
	}
	return nil
}

// Unlock releases the lock.
func (l *HomeLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		// Suppress error if the lock file doesn't exist, as it means we don't hold the lock.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// GetAbsDBPath resolves the database path.
func GetAbsDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "tfarm", "tfarm.sqlite"), nil
	}
	return filepath.Abs(dbPath)
}
