package scheduler

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"github.com/openmined/replisync/internal/utils"
)

var ErrLocked = errors.New("database locked by another replisync process")

// RunLock is an advisory file lock next to a database file. Holding it keeps
// other replisync processes from running passes against the same database.
type RunLock struct {
	flock *flock.Flock
}

func NewRunLock(dbPath string) *RunLock {
	return &RunLock{flock: flock.New(dbPath + ".lock")}
}

func (l *RunLock) Path() string {
	return l.flock.Path()
}

// Lock acquires the lock without blocking, returning ErrLocked if it is held elsewhere.
func (l *RunLock) Lock() error {
	if err := utils.EnsureParent(l.flock.Path()); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", l.flock.Path(), err)
	}
	if !locked {
		return ErrLocked
	}
	return nil
}

// Unlock releases the lock and removes the lock file if this process holds it.
func (l *RunLock) Unlock() error {
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.flock.Path(), err)
	}
	return os.Remove(l.flock.Path())
}
