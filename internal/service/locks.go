package service

import (
	"sync"
)

// clubLocks hands out one mutex per club so safeguard checks and the
// credits they guard are serialized per club without stalling others.
type clubLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newClubLocks() *clubLocks {
	return &clubLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *clubLocks) get(clubID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[clubID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[clubID] = lock
	}
	return lock
}
