package gracy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ErrNoReplayFound is returned by a ReplayStore when no exchange matches a
// fingerprint, and surfaces to callers as a KindNoReplay *Error.
var ErrNoReplayFound = errors.New("gracy: no replay found")

// Exchange is a recorded (request, response) pair keyed by its fingerprint.
// Field set matches §6's normative replay storage wire format.
type Exchange struct {
	Fingerprint string

	Method          string
	URL             string
	RequestHeaders  http.Header
	RequestBody     []byte
	Status          int
	ResponseHeaders http.Header
	ResponseBody    []byte
	RecordedAt      time.Time

	// DiscardOnBadStatus makes the pipeline's replay dispatch treat the
	// exchange as ErrNoReplayFound when the stored status falls outside the
	// caller's effective success set (§4.6). Store Load methods do not check it.
	DiscardOnBadStatus bool
}

// ReplayStore records live exchanges and serves them back in replay mode.
// Implementations: replaystore.Memory, replaystore.Redis, replaystore.SQL.
type ReplayStore interface {
	Record(ctx context.Context, ex Exchange) error
	Load(ctx context.Context, fingerprint string) (Exchange, error)
}

// Fingerprint canonicalizes a request into a stable key: method, URL
// (scheme+host+path, no query), sorted query params, a body hash, and any
// selected header values — the same shape as the reference HTTP client
// package's request-coalescing key (coalesce.go), extended with headers
// since replay identity can depend on things like an API version header
// that coalescing doesn't care about.
func Fingerprint(method, rawURL string, body []byte, headers http.Header, selectedHeaders []string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{0})

	if u, err := url.Parse(rawURL); err == nil {
		h.Write([]byte(u.Scheme))
		h.Write([]byte(u.Host))
		h.Write([]byte(u.Path))
		h.Write([]byte{0})

		keys := make([]string, 0, len(u.Query()))
		q := u.Query()
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			vals := append([]string(nil), q[k]...)
			sort.Strings(vals)
			h.Write([]byte(k))
			for _, v := range vals {
				h.Write([]byte(v))
			}
		}
	} else {
		h.Write([]byte(rawURL))
	}
	h.Write([]byte{0})

	bodyHash := sha256.Sum256(body)
	h.Write(bodyHash[:])

	sortedHeaders := append([]string(nil), selectedHeaders...)
	sort.Strings(sortedHeaders)
	for _, name := range sortedHeaders {
		h.Write([]byte(name))
		h.Write([]byte(headers.Get(name)))
	}

	return hex.EncodeToString(h.Sum(nil))
}
