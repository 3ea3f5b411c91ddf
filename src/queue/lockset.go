package queue

import "sync"

// ResourceLockSet tracks which resource IDs are currently being processed.
// TryAcquire never blocks; dispatch keeps contended tasks queued instead of
// waiting on a lock.
type ResourceLockSet struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewResourceLockSet creates an empty lock set.
func NewResourceLockSet() *ResourceLockSet {
	return &ResourceLockSet{held: make(map[string]struct{})}
}

// TryAcquire claims the resource if free, reporting whether it succeeded.
func (l *ResourceLockSet) TryAcquire(resourceID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[resourceID]; taken {
		return false
	}
	l.held[resourceID] = struct{}{}
	return true
}

// Release frees the resource. Releasing an unheld resource is a no-op.
func (l *ResourceLockSet) Release(resourceID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, resourceID)
}

// Held reports whether the resource is currently claimed.
func (l *ResourceLockSet) Held(resourceID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, taken := l.held[resourceID]
	return taken
}
