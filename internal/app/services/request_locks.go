package services

import (
	"sync"

	"github.com/google/uuid"
)

// RequestLocks serializes mutations of the same request inside this process.
// Different requests never contend. Entries are dropped once unused.
type RequestLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*requestLock
}

type requestLock struct {
	mu   sync.Mutex
	refs int
}

func NewRequestLocks() *RequestLocks {
	return &RequestLocks{locks: make(map[uuid.UUID]*requestLock)}
}

// Lock blocks until id is free and returns its unlock function.
func (l *RequestLocks) Lock(id uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &requestLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *RequestLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
