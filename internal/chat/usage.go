package chat

import (
	"sync"
	"time"
)

// usageEntry tracks completion requests issued by one client fingerprint.
// The count only ever increases; a "reset" is the sweeper deleting the entry.
type usageEntry struct {
	count      int
	lastAccess time.Time
}

// UsageLedger counts completion requests per client fingerprint and enforces
// a hard cap. A single mutex guards the whole map: CheckAndIncrement must be
// atomic with respect to concurrent callers for the same fingerprint, and the
// critical section is a few map operations, so per-key locking buys nothing.
//
// UsageLedger is safe for concurrent use by multiple goroutines.
type UsageLedger struct {
	mu      sync.Mutex
	entries map[string]*usageEntry
}

// NewUsageLedger creates an empty ledger.
func NewUsageLedger() *UsageLedger {
	return &UsageLedger{entries: make(map[string]*usageEntry)}
}

// CheckAndIncrement atomically charges one completion request against the
// fingerprint. An entry with count 0 is created on first reference. If the
// current count has already reached maxAllowed, it returns ErrQuotaExceeded
// without incrementing or refreshing the entry; otherwise it increments the
// count, refreshes the last-access timestamp, and returns nil.
//
// For N concurrent calls with the same fingerprint and cap K, exactly
// min(N, K) succeed.
func (l *UsageLedger) CheckAndIncrement(fingerprint string, maxAllowed int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[fingerprint]
	if !ok {
		e = &usageEntry{lastAccess: time.Now()}
		l.entries[fingerprint] = e
	}

	if e.count >= maxAllowed {
		return ErrQuotaExceeded
	}

	e.count++
	e.lastAccess = time.Now()
	return nil
}

// Count returns the current request count for a fingerprint. Zero if absent.
func (l *UsageLedger) Count(fingerprint string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[fingerprint]; ok {
		return e.count
	}
	return 0
}

// Len returns the number of tracked fingerprints.
func (l *UsageLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep removes every entry idle longer than ttl at the given instant.
// Eviction is based solely on elapsed time since last access.
func (l *UsageLedger) Sweep(ttl time.Duration, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for fp, e := range l.entries {
		if now.Sub(e.lastAccess) > ttl {
			delete(l.entries, fp)
		}
	}
}
