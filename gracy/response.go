package gracy

import (
	"net/http"
	"time"

	gojson "github.com/goccy/go-json"
)

// Response is the transport-agnostic result of one attempt, whether it came
// from a live dispatch or a replay load. Body is captured eagerly so it can
// be inspected by validators, parsers and the replay store without racing a
// single-read io.Reader.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
	ReceivedAt time.Time

	// Replayed marks a Response that was supplied by a ReplayStore rather
	// than a live transport dispatch; surfaces as {IS_REPLAY}/{REPLAY}.
	Replayed bool
}

// JSON decodes Body into v using goccy/go-json, the same decoder JSONParser
// uses.
func (r *Response) JSON(v any) error {
	return gojson.Unmarshal(r.Body, v)
}

// Text returns Body as a string.
func (r *Response) Text() string { return string(r.Body) }
