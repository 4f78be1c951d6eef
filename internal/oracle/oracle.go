// Package oracle wraps the LLM provider behind a thin Client interface with
// per-call timeouts and a typed error taxonomy, per spec §2.6, §4.4.
package oracle

import (
	"context"
	"errors"
	"fmt"
)

// Message is one turn in a chat-style completion request.
type Message struct {
	Role    string // "system", "user", or "assistant".
	Content string
}

// Client is a thin wrapper over an LLM provider. Implementations enforce a
// per-call timeout internally (not relying on the caller's context alone)
// and normalize provider response envelopes to a single content string.
//
// No retry happens inside a Client; retry policy belongs to the Verifier
// (none for generator/critic calls, best-effort for judge calls), per §4.4.
type Client interface {
	Complete(ctx context.Context, model string, messages []Message, maxTokens int) (string, error)
}

// Class classifies an Oracle failure into the taxonomy named in spec §4.4/§7.
type Class string

const (
	ClassTimeout     Class = "timeout"
	ClassTransport   Class = "transport"
	ClassProvider5xx Class = "provider_5xx"
	ClassMalformed   Class = "malformed"
	ClassRateLimited Class = "rate_limited"
)

// Error is a typed Oracle failure. Details never carry raw provider text,
// stack traces, or internal identifiers (§7) — callers surface only Class.
type Error struct {
	Class   Class
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oracle: %s: %s: %v", e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("oracle: %s: %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, &Error{Class: X}) style matching on class alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Class == t.Class
	}
	return false
}

// newError constructs a classified Error.
func newError(class Class, message string, err error) *Error {
	return &Error{Class: class, Message: message, Err: err}
}
