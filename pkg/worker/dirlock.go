package worker

import "sync"

// dirLocks serializes sync attempts per target directory. The sync engine
// holds no internal lock, so the worker guarantees the at-most-one-sync-
// per-directory precondition here. Entries are refcounted and removed once
// the last holder releases, so the map stays bounded by in-flight syncs.
type dirLocks struct {
	mu    sync.Mutex
	locks map[string]*dirLock
}

type dirLock struct {
	mu   sync.Mutex
	refs int
}

func newDirLocks() *dirLocks {
	return &dirLocks{locks: make(map[string]*dirLock)}
}

// Lock acquires the mutex for dir, creating it on first use, and returns
// the unlock function.
func (d *dirLocks) Lock(dir string) func() {
	d.mu.Lock()
	lock, ok := d.locks[dir]
	if !ok {
		lock = &dirLock{}
		d.locks[dir] = lock
	}
	lock.refs++
	d.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		d.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(d.locks, dir)
		}
		d.mu.Unlock()
	}
}

// held reports the number of directories with live lock entries.
func (d *dirLocks) held() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.locks)
}
