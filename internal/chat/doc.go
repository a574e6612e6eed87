// Package chat implements the "ask the blog" conversation engine.
//
// The package owns the two pieces of process-wide mutable state behind the
// chat endpoint: a ConversationStore mapping session IDs to ordered message
// history, and a UsageLedger counting completion requests per client
// fingerprint. Both stores expire idle entries via a single background
// Sweeper. The Orchestrator coordinates a request: it validates input,
// charges the ledger, grounds the conversation in published posts, calls the
// completion model, and records the exchange.
//
// The stores are instantiated once per process and shared by reference
// between handlers and the sweeper. Neither store performs I/O while holding
// its lock; the outbound completion call always happens outside any store
// lock.
package chat
