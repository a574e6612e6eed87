package chat

import (
	"errors"
	"fmt"
)

// Sentinel errors for chat operations.
// These are part of the package's public API and should be checked with errors.Is().
var (
	// ErrEmptyQuestion indicates the question was empty or whitespace-only.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrQuestionTooLong indicates the question exceeds the word-count ceiling.
	ErrQuestionTooLong = errors.New("question too long")

	// ErrInvalidSession indicates the session token is missing or not a UUID.
	ErrInvalidSession = errors.New("invalid session token")

	// ErrQuotaExceeded indicates the client fingerprint has used up its
	// completion allowance. Not retriable until the usage entry expires.
	ErrQuotaExceeded = errors.New("completion quota exceeded")

	// ErrCatalogUnavailable indicates the post catalog could not be read.
	// A server-side failure, never attributed to the caller.
	ErrCatalogUnavailable = errors.New("post catalog unavailable")
)

// CompletionErrorKind classifies completion-capability failures.
type CompletionErrorKind string

// Completion failure kinds.
const (
	CompletionTimeout     CompletionErrorKind = "timeout"
	CompletionUnreachable CompletionErrorKind = "unreachable"
	CompletionRejected    CompletionErrorKind = "rejected"
	CompletionEmptyAnswer CompletionErrorKind = "empty_answer"
)

// CompletionError reports a failure of the completion capability. It is
// surfaced distinctly from input and quota errors so a client can decide to
// retry.
type CompletionError struct {
	Kind CompletionErrorKind
	Err  error // underlying cause, may be nil (e.g. empty answer)
}

func (e *CompletionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("completion failed: %s", e.Kind)
	}
	return fmt.Sprintf("completion failed (%s): %v", e.Kind, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// AsCompletionError returns the *CompletionError in err's chain, if any.
func AsCompletionError(err error) (*CompletionError, bool) {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
