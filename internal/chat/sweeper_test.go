package chat

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestSweeper(conversations *ConversationStore, usage *UsageLedger, interval, ttl time.Duration) *Sweeper {
	return NewSweeper(SweeperConfig{
		Conversations: conversations,
		Usage:         usage,
		Interval:      interval,
		SessionTTL:    ttl,
		UsageTTL:      ttl,
		Logger:        discardLogger(),
	})
}

func TestSweeper_EvictsExpiredEntries(t *testing.T) {
	conversations := NewConversationStore()
	usage := NewUsageLedger()

	stale := uuid.New()
	conversations.mu.Lock()
	conversations.sessions[stale] = &conversation{lastAccess: time.Now().Add(-time.Hour)}
	conversations.mu.Unlock()

	usage.mu.Lock()
	usage.entries["1.2.3.4|agent|en"] = &usageEntry{count: 3, lastAccess: time.Now().Add(-time.Hour)}
	usage.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw := newTestSweeper(conversations, usage, 10*time.Millisecond, time.Minute)
	sw.Start(ctx)

	deadline := time.After(2 * time.Second)
	for conversations.Len() > 0 || usage.Len() > 0 {
		select {
		case <-deadline:
			t.Fatalf("entries not evicted: conversations=%d usage=%d",
				conversations.Len(), usage.Len())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSweeper_RetainsFreshEntries(t *testing.T) {
	conversations := NewConversationStore()
	usage := NewUsageLedger()

	id := uuid.New()
	conversations.Append(id, UserMessage("hello"))
	if err := usage.CheckAndIncrement("1.2.3.4|agent|en", 10); err != nil {
		t.Fatalf("CheckAndIncrement() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw := newTestSweeper(conversations, usage, 10*time.Millisecond, time.Hour)
	sw.Start(ctx)

	time.Sleep(50 * time.Millisecond)

	if got := conversations.Len(); got != 1 {
		t.Errorf("conversations.Len() = %d, want 1", got)
	}
	if got := usage.Len(); got != 1 {
		t.Errorf("usage.Len() = %d, want 1", got)
	}
}

func TestSweeper_StartIsIdempotent(t *testing.T) {
	// genkit.Init (used in completion_test.go) registers a signal.NotifyContext
	// goroutine it never stops; ignore it so only sweeper goroutines are checked.
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("os/signal.NotifyContext.func1"))

	ctx, cancel := context.WithCancel(context.Background())

	sw := newTestSweeper(NewConversationStore(), NewUsageLedger(), time.Hour, time.Hour)
	sw.Start(ctx)
	sw.Start(ctx)
	sw.Start(ctx)

	// Cancellation must stop the single loop; goleak catches any extras.
	cancel()
	time.Sleep(50 * time.Millisecond)
}

func TestSweeper_SurvivesPanicInSweep(t *testing.T) {
	// A nil usage ledger makes sweepOnce panic; the recover must keep the
	// sweeper from crashing the process.
	sw := &Sweeper{
		conversations: NewConversationStore(),
		interval:      time.Hour,
		logger:        discardLogger(),
	}
	sw.sweepOnce(time.Now())
}
