// ABOUTME: Per-session keyed locks serializing message turns for a conversation.
// ABOUTME: Bounded-wait acquisition with idle-entry eviction by a background sweeper.

package sessionlock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBusy is returned when a session's lock could not be acquired within
// the configured wait window.
var ErrBusy = errors.New("session is busy")

// lockEntry tracks one session's semaphore and when it was last touched.
type lockEntry struct {
	sem      chan struct{}
	lastUsed time.Time
	waiters  int
}

// Registry hands out one lock per session key. Concurrent turns on the same
// session are serialized; a caller that cannot acquire the lock within the
// wait window gets ErrBusy instead of queueing indefinitely. Idle entries
// are evicted by a background sweeper.
type Registry struct {
	mu      sync.Mutex
	locks   map[string]*lockEntry
	maxWait time.Duration
	idleTTL time.Duration
	done    chan struct{}
	closed  bool
}

// New creates a registry. maxWait bounds how long Acquire blocks behind an
// in-flight turn; idleTTL controls how long unused entries linger before the
// sweeper removes them.
func New(maxWait, idleTTL time.Duration) *Registry {
	if maxWait <= 0 {
		maxWait = 10 * time.Second
	}
	if idleTTL <= 0 {
		idleTTL = 5 * time.Minute
	}
	r := &Registry{
		locks:   make(map[string]*lockEntry),
		maxWait: maxWait,
		idleTTL: idleTTL,
		done:    make(chan struct{}),
	}
	go r.sweep()
	return r
}

// Acquire takes the lock for the given session key, blocking up to the wait
// window. It returns a release function on success, ErrBusy if the window
// elapses, or the context error if ctx is cancelled first.
func (r *Registry) Acquire(ctx context.Context, key string) (func(), error) {
	entry := r.entryFor(key)

	timer := time.NewTimer(r.maxWait)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
		return func() { r.release(entry) }, nil
	case <-timer.C:
		r.dropWaiter(entry)
		return nil, ErrBusy
	case <-ctx.Done():
		r.dropWaiter(entry)
		return nil, ctx.Err()
	}
}

// entryFor returns the session's entry, creating it on first use.
func (r *Registry) entryFor(key string) *lockEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.locks[key]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		r.locks[key] = entry
	}
	entry.lastUsed = time.Now()
	entry.waiters++
	return entry
}

func (r *Registry) release(entry *lockEntry) {
	<-entry.sem
	r.dropWaiter(entry)
}

func (r *Registry) dropWaiter(entry *lockEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.waiters--
	entry.lastUsed = time.Now()
}

// sweep runs in a background goroutine, periodically removing entries that
// have not been touched within the idle TTL and have no holder or waiters.
func (r *Registry) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runSweep()
		case <-r.done:
			return
		}
	}
}

func (r *Registry) runSweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for key, entry := range r.locks {
		if entry.waiters == 0 && len(entry.sem) == 0 && now.Sub(entry.lastUsed) > r.idleTTL {
			delete(r.locks, key)
		}
	}
}

// Len reports how many session entries are currently tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// Close stops the background sweeper. It is safe to call multiple times.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.closed {
		close(r.done)
		r.closed = true
	}
}
