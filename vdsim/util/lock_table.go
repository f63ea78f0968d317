package util

import (
	"sync"

	"github.com/golang/glog"
)

// LockTable hands out one lock per key, created on first use and dropped when
// the last holder releases it. Writers take the exclusive side, readers the
// shared side.
type LockTable[T comparable] struct {
	mu    sync.Mutex
	locks map[T]*lockEntry
}

type lockEntry struct {
	sync.RWMutex
	refCount int
}

func NewLockTable[T comparable]() *LockTable[T] {
	return &LockTable[T]{
		locks: make(map[T]*lockEntry),
	}
}

func (lt *LockTable[T]) acquire(key T) *lockEntry {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	entry, found := lt.locks[key]
	if !found {
		entry = &lockEntry{}
		lt.locks[key] = entry
	}
	entry.refCount++
	return entry
}

func (lt *LockTable[T]) release(key T, entry *lockEntry) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	entry.refCount--
	if entry.refCount == 0 {
		delete(lt.locks, key)
	}
}

// WithExclusiveLock runs fn while holding the exclusive lock for key,
// releasing it on every exit path.
func (lt *LockTable[T]) WithExclusiveLock(intention string, key T, fn func() error) error {
	entry := lt.acquire(key)
	glog.V(4).Infof("%s: exclusive lock %v", intention, key)
	entry.Lock()
	defer func() {
		entry.Unlock()
		lt.release(key, entry)
	}()
	return fn()
}

// WithSharedLock runs fn while holding the shared lock for key.
func (lt *LockTable[T]) WithSharedLock(intention string, key T, fn func() error) error {
	entry := lt.acquire(key)
	glog.V(4).Infof("%s: shared lock %v", intention, key)
	entry.RLock()
	defer func() {
		entry.RUnlock()
		lt.release(key, entry)
	}()
	return fn()
}
