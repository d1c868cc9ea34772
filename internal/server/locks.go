package server

import (
	"strings"
	"sync"
)

// LabLocks serializes reconciliations of the same lab name so two requests
// cannot both decide to create it.
type LabLocks struct {
	mu    sync.Mutex
	locks map[string]*labLock
}

type labLock struct {
	mu   sync.Mutex
	refs int
}

// NewLabLocks creates an empty lock table.
func NewLabLocks() *LabLocks {
	return &LabLocks{locks: make(map[string]*labLock)}
}

// Lock blocks until name is free and returns the matching unlock func. Names
// are trimmed the way the reconciler trims them.
func (l *LabLocks) Lock(name string) func() {
	name = strings.TrimSpace(name)
	l.mu.Lock()
	ll, ok := l.locks[name]
	if !ok {
		ll = &labLock{}
		l.locks[name] = ll
	}
	ll.refs++
	l.mu.Unlock()

	ll.mu.Lock()
	return func() {
		ll.mu.Unlock()
		l.mu.Lock()
		ll.refs--
		if ll.refs == 0 {
			delete(l.locks, name)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of names currently locked or waited on.
func (l *LabLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
