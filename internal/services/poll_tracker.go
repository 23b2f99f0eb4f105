package services

import (
	"sync"
	"time"
)

type pollState struct {
	attempts int
	lastPoll time.Time
}

// PollTracker records per-transaction polling attempts for one poller
// instance. It is not shared between instances.
type PollTracker struct {
	mu      sync.Mutex
	entries map[string]*pollState
}

// NewPollTracker creates an empty tracker
func NewPollTracker() *PollTracker {
	return &PollTracker{entries: make(map[string]*pollState)}
}

// Eligible reports whether a transaction may be polled at now: fewer than
// maxAttempts so far and no poll within the cooldown.
func (t *PollTracker) Eligible(transactionID string, now time.Time, maxAttempts int, cooldown time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.entries[transactionID]
	if !ok {
		return true
	}
	if state.attempts >= maxAttempts {
		return false
	}
	if !state.lastPoll.IsZero() && state.lastPoll.After(now.Add(-cooldown)) {
		return false
	}
	return true
}

// Record counts one attempt and stamps the poll time
func (t *PollTracker) Record(transactionID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.entries[transactionID]
	if !ok {
		state = &pollState{}
		t.entries[transactionID] = state
	}
	state.attempts++
	state.lastPoll = now
}

// Rollback undoes the attempt count of the last Record. The poll time is
// kept so the cooldown still applies.
func (t *PollTracker) Rollback(transactionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.entries[transactionID]; ok && state.attempts > 0 {
		state.attempts--
	}
}

// FastForward raises the attempt count to at least attempts
func (t *PollTracker) FastForward(transactionID string, attempts int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.entries[transactionID]
	if !ok {
		state = &pollState{}
		t.entries[transactionID] = state
	}
	if state.attempts < attempts {
		state.attempts = attempts
	}
}

// Remove drops the tracking entry
func (t *PollTracker) Remove(transactionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, transactionID)
}

// Attempts returns the current attempt count
func (t *PollTracker) Attempts(transactionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.entries[transactionID]; ok {
		return state.attempts
	}
	return 0
}

// Len returns the number of tracked transactions
func (t *PollTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Cleanup drops entries last polled before cutoff, and entries that were
// never polled. Returns the number removed.
func (t *PollTracker) Cleanup(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, state := range t.entries {
		if state.lastPoll.IsZero() || state.lastPoll.Before(cutoff) {
			delete(t.entries, id)
			removed++
		}
	}
	return removed
}
