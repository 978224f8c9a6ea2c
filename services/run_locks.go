package services

import (
	"sync"

	"github.com/google/uuid"
)

// RunLocks serializes writers of one run. Entries are reference counted and
// removed when the last holder unlocks.
type RunLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*runLock
}

type runLock struct {
	mu   sync.Mutex
	refs int
}

func NewRunLocks() *RunLocks {
	return &RunLocks{locks: make(map[uuid.UUID]*runLock)}
}

// Lock blocks until the caller is the only writer of runID and returns the
// matching unlock function.
func (l *RunLocks) Lock(runID uuid.UUID) func() {
	l.mu.Lock()
	lock, ok := l.locks[runID]
	if !ok {
		lock = &runLock{}
		l.locks[runID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, runID)
		}
		l.mu.Unlock()
	}
}

func (l *RunLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// holders counts callers holding or waiting for the lock of runID.
func (l *RunLocks) holders(runID uuid.UUID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lock, ok := l.locks[runID]; ok {
		return lock.refs
	}
	return 0
}
