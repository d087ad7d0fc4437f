package gracy

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// RequestIDHeader is the header carrying a call's correlation ID, both on
// the outgoing request and (if the caller already set one) read back from
// the caller-supplied headers instead of generating a fresh ID. It is kept in
// canonical MIME form so that http.Header lookups and literal map keys agree.
const RequestIDHeader = "X-Request-Id"

// RequestContext is the immutable per-call descriptor threaded through the
// whole pipeline and handed to hooks, validators and parsers. It is created
// once when a call enters the pipeline and never mutated afterwards — the
// retry loop produces a fresh Response per attempt, not a fresh context.
type RequestContext struct {
	// Ctx is the caller's context.Context, carrying cancellation/deadline.
	Ctx context.Context

	Method string

	// UnformattedEndpoint is the template with {NAME}-style placeholders,
	// e.g. "/pokemon/{NAME}".
	UnformattedEndpoint string

	// FormattedEndpoint is UnformattedEndpoint after substitution.
	FormattedEndpoint string

	// BaseURL is the client's base URL, joined with FormattedEndpoint to
	// build URL.
	BaseURL string

	// URL is the fully formatted request URL.
	URL string

	// UnformattedURL is BaseURL joined with UnformattedEndpoint, used for
	// the {UURL} log placeholder. Throttle rules match URL, not this field.
	UnformattedURL string

	// Args is the substitution mapping applied to UnformattedEndpoint.
	Args map[string]string

	Query   url.Values
	Headers http.Header
	Body    []byte

	// RequestID correlates this call across logs/traces/the replay store;
	// either forwarded from a caller-supplied X-Request-ID header or
	// generated fresh, grounded on the teacher's request-ID middleware.
	RequestID string

	// Config is the effective config: client defaults merged with any
	// endpoint-level override via MergeConfig.
	Config GracyConfig
}

// newRequestContext builds a RequestContext for one execute() call.
func newRequestContext(ctx context.Context, method, baseURL, endpoint string, args map[string]string, cfg GracyConfig) *RequestContext {
	formatted := substitute(endpoint, args)
	return &RequestContext{
		Ctx:                  ctx,
		Method:               method,
		UnformattedEndpoint:  endpoint,
		FormattedEndpoint:    formatted,
		BaseURL:              baseURL,
		URL:                  joinURL(baseURL, formatted),
		UnformattedURL:       joinURL(baseURL, endpoint),
		Args:                 args,
		Query:                make(url.Values),
		Headers:              make(http.Header),
		RequestID:            uuid.New().String(),
		Config:               cfg,
	}
}

// substitute replaces every {NAME} placeholder in template with its value
// from args. Unmatched placeholders are left literal, mirroring the log
// placeholder tolerance required by §6.
func substitute(template string, args map[string]string) string {
	out := template
	for k, v := range args {
		out = strings.ReplaceAll(out, "{"+k+"}", url.PathEscape(v))
	}
	return out
}

// joinURL concatenates a base URL and a path without producing a double
// slash, the same idiom the teacher's transport package uses for base-URL
// joining.
func joinURL(base, path string) string {
	if base == "" {
		return path
	}
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
