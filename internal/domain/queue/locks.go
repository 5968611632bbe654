package queue

import "sync"

// doctorLocks serializes mutating operations per doctor. Enqueue, transition,
// remove and clear all read aggregate state (counts, FIFO order, the single
// consulting entry) and write based on it; interleaving two such operations
// for the same doctor can double-admit past capacity or leave two entries
// consulting. Locks are never removed; the doctor set is small and stable.
type doctorLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newDoctorLocks() *doctorLocks {
	return &doctorLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *doctorLocks) lock(doctorID string) func() {
	l.mu.Lock()
	m, ok := l.locks[doctorID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[doctorID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
