package session

import "sync"

// Locker provides per-session mutual exclusion so that the load-through-save
// span of a chat turn is serialized per session identifier. Without it, two
// concurrent turns against one session could both load the same prior
// history and each independently append, losing one turn's messages.
//
// Entries are reference counted and removed when the last holder releases,
// so the map does not grow with the number of sessions ever seen.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*lockEntry)}
}

// Acquire blocks until the lock for sessionID is held and returns a release
// function. The release function must be called exactly once; calling it
// again panics via sync.Mutex, which surfaces the bug early.
func (l *Locker) Acquire(sessionID string) (release func()) {
	l.mu.Lock()
	e, ok := l.locks[sessionID]
	if !ok {
		e = &lockEntry{}
		l.locks[sessionID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, sessionID)
		}
		l.mu.Unlock()
	}
}
