package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// conversation holds one session's ordered message history. Owned exclusively
// by ConversationStore; callers never hold a reference past a single
// operation. The entry mutex serializes history mutation so concurrent
// operations on the same session cannot corrupt message order.
type conversation struct {
	mu         sync.Mutex
	history    []Message
	lastAccess time.Time
}

// ConversationStore maps session IDs to conversation history. The map-level
// RWMutex covers only insertion, lookup, and removal; per-entry mutexes
// serialize history operations, so traffic on different sessions does not
// contend.
//
// ConversationStore is safe for concurrent use by multiple goroutines.
type ConversationStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*conversation
}

// NewConversationStore creates an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{sessions: make(map[uuid.UUID]*conversation)}
}

// getOrCreate returns the conversation for sessionID, creating an empty one
// on first reference.
func (s *ConversationStore) getOrCreate(sessionID uuid.UUID) *conversation {
	s.mu.RLock()
	c, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check under the write lock — another goroutine may have created it.
	if c, ok = s.sessions[sessionID]; ok {
		return c
	}
	c = &conversation{lastAccess: time.Now()}
	s.sessions[sessionID] = c
	return c
}

// Append adds a message to the end of the session's history, creating the
// conversation if it does not exist yet, and refreshes last access.
func (s *ConversationStore) Append(sessionID uuid.UUID, msg Message) {
	c := s.getOrCreate(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, msg)
	c.lastAccess = time.Now()
}

// SeedIfEmpty appends msg only if the session's history is currently empty.
// Used to inject the one-time grounding preamble exactly once per
// conversation; idempotent under concurrent calls because the check and the
// append happen under the entry lock.
func (s *ConversationStore) SeedIfEmpty(sessionID uuid.UUID, msg Message) {
	c := s.getOrCreate(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) == 0 {
		c.history = append(c.history, msg)
	}
	c.lastAccess = time.Now()
}

// Prune truncates the session's history to bound prompt growth. With
// keepFirst, the result is at most 1+2*maxTurns messages: entry 0 (the seeded
// grounding context) verbatim plus the most recent 2*maxTurns messages — the
// middle of the dialogue is discarded. Without keepFirst only the most recent
// 2*maxTurns messages survive. An explicitly lossy policy: the original
// grounding and the latest turns matter more than old back-and-forth.
func (s *ConversationStore) Prune(sessionID uuid.UUID, keepFirst bool, maxTurns int) {
	c := s.getOrCreate(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()

	keep := 2 * maxTurns
	if keepFirst {
		if len(c.history) <= 1+keep {
			c.lastAccess = time.Now()
			return
		}
		pruned := make([]Message, 0, 1+keep)
		pruned = append(pruned, c.history[0])
		pruned = append(pruned, c.history[len(c.history)-keep:]...)
		c.history = pruned
	} else {
		if len(c.history) <= keep {
			c.lastAccess = time.Now()
			return
		}
		c.history = append([]Message(nil), c.history[len(c.history)-keep:]...)
	}
	c.lastAccess = time.Now()
}

// History returns a copy of the session's current history, or nil for an
// unknown session. Reading never registers a conversation; only Append,
// SeedIfEmpty, and Prune do.
func (s *ConversationStore) History(sessionID uuid.UUID) []Message {
	s.mu.RLock()
	c, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAccess = time.Now()
	out := make([]Message, len(c.history))
	copy(out, c.history)
	return out
}

// Len returns the number of live conversations.
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes every conversation idle longer than ttl at the given instant.
// The decision is based solely on elapsed time since last access, never on
// history content.
func (s *ConversationStore) Sweep(ttl time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.sessions {
		c.mu.Lock()
		idle := now.Sub(c.lastAccess) > ttl
		c.mu.Unlock()
		if idle {
			delete(s.sessions, id)
		}
	}
}
