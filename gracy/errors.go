package gracy

import (
	"errors"
	"fmt"
)

// Kind identifies one of the nine distinct, matchable failure categories a
// pipeline run can terminate with. RetryPolicy.RetryOn filters on Kind.
type Kind int

const (
	// KindTransport means the underlying send failed (connect/timeout/reset/TLS).
	KindTransport Kind = iota
	// KindBadStatus means the response status fell outside the effective success set.
	KindBadStatus
	// KindValidatorFailed means a user Validator rejected the response.
	KindValidatorFailed
	// KindParserFailed means a parser Transform callback returned an error.
	KindParserFailed
	// KindUserDefined means an error-kind-typed parser entry (Raise) matched.
	KindUserDefined
	// KindRetryExhausted means attempts were consumed without success.
	KindRetryExhausted
	// KindNoReplay means replay mode was active and no stored exchange matched.
	KindNoReplay
	// KindTimeout means the total request deadline elapsed.
	KindTimeout
	// KindCancelled means the caller cancelled execute().
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindBadStatus:
		return "bad_status"
	case KindValidatorFailed:
		return "validator_failed"
	case KindParserFailed:
		return "parser_failed"
	case KindUserDefined:
		return "user_defined"
	case KindRetryExhausted:
		return "retry_exhausted"
	case KindNoReplay:
		return "no_replay"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the single error type returned out of execute(). It always
// carries a Kind, the RequestContext it failed under, and — when one
// exists — the last Response seen and an underlying cause.
type Error struct {
	Kind     Kind
	Message  string
	Ctx      *RequestContext
	Response *Response
	Cause    error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gracy: %s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("gracy: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("gracy: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsKind reports whether err is a *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var gerr *Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Kind == kind
}

// newError builds a *Error, attaching ctx and, when present, response.
func newError(kind Kind, ctx *RequestContext, resp *Response, cause error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Ctx: ctx, Response: resp, Cause: cause}
}

// ErrorDescriptor is the "Raise" variant of a parser entry: when selected, it
// builds a typed *Error carrying the request context and response so the
// caller can template a message from both.
type ErrorDescriptor struct {
	Kind    Kind
	Factory func(ctx *RequestContext, resp *Response) error
}

// Build invokes the descriptor's factory, falling back to a generic
// user-defined error if none was supplied.
func (d ErrorDescriptor) Build(ctx *RequestContext, resp *Response) error {
	if d.Factory != nil {
		return d.Factory(ctx, resp)
	}
	return newError(KindUserDefined, ctx, resp, nil, "parser raised")
}
