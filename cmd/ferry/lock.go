package main

import (
	"fmt"

	"github.com/gofrs/flock"
)

// runLock keeps two state-changing ferry commands off the same database.
type runLock struct {
	path string
	lock *flock.Flock
}

func acquireRunLock(path string) (*runLock, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("another ferry run holds %s; wait for it to finish", path)
	}
	return &runLock{path: path, lock: lock}, nil
}

// Release unlocks the file. The lock file itself is left in place.
func (l *runLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
