package gracy

import gojson "github.com/goccy/go-json"

type parserEntryKind int

const (
	parserTransform parserEntryKind = iota
	parserNull
	parserRaise
)

// ParserEntry is the sum type named in §9's design notes: a response
// transform, a null sentinel, or a typed error raise — eliminating the
// Python source's mix of callables, None and exception classes in one map.
type ParserEntry struct {
	kind      parserEntryKind
	transform func(rc *RequestContext, resp *Response) (any, error)
	raise     ErrorDescriptor
}

// Transform builds a ParserEntry that applies fn to the response. An error
// returned by fn becomes a KindParserFailed error.
func Transform(fn func(rc *RequestContext, resp *Response) (any, error)) ParserEntry {
	return ParserEntry{kind: parserTransform, transform: fn}
}

// Null builds a ParserEntry that yields a nil result without error.
func Null() ParserEntry { return ParserEntry{kind: parserNull} }

// Raise builds a ParserEntry that raises a typed user error instead of
// returning a value.
func Raise(d ErrorDescriptor) ParserEntry { return ParserEntry{kind: parserRaise, raise: d} }

// JSONParser decodes the response body as generic JSON (a map[string]any for
// an object, a []any for an array), using goccy/go-json —
// the default parser entry most endpoints register for their "default" key.
func JSONParser() ParserEntry {
	return Transform(func(_ *RequestContext, resp *Response) (any, error) {
		var v any
		if err := gojson.Unmarshal(resp.Body, &v); err != nil {
			return nil, err
		}
		return v, nil
	})
}

// ParserMap is keyed by status code plus an explicit default, per §9's
// recommendation to drop the "default" string sentinel in favor of a typed
// field.
type ParserMap struct {
	Default    ParserEntry
	HasDefault bool
	ByStatus   map[int]ParserEntry
}

// NewParserMap builds an empty ParserMap ready for WithDefault/WithStatus.
func NewParserMap() ParserMap {
	return ParserMap{ByStatus: make(map[int]ParserEntry)}
}

// WithDefault returns a copy of m with its default entry set.
func (m ParserMap) WithDefault(e ParserEntry) ParserMap {
	m.Default = e
	m.HasDefault = true
	return m
}

// WithStatus returns a copy of m with a status-specific entry set.
func (m ParserMap) WithStatus(code int, e ParserEntry) ParserMap {
	next := make(map[int]ParserEntry, len(m.ByStatus)+1)
	for k, v := range m.ByStatus {
		next[k] = v
	}
	next[code] = e
	m.ByStatus = next
	return m
}

// resolve implements the lookup in §4.5: exact status match, else default,
// else "no entry" (caller returns the raw response).
func (m ParserMap) resolve(status int) (ParserEntry, bool) {
	if e, ok := m.ByStatus[status]; ok {
		return e, true
	}
	if m.HasDefault {
		return m.Default, true
	}
	return ParserEntry{}, false
}

// apply runs entry against resp, producing the parsed value or an error.
func apply(entry ParserEntry, rc *RequestContext, resp *Response) (any, error) {
	switch entry.kind {
	case parserTransform:
		v, err := entry.transform(rc, resp)
		if err != nil {
			return nil, newError(KindParserFailed, rc, resp, err, "parser callback failed")
		}
		return v, nil
	case parserNull:
		return nil, nil
	case parserRaise:
		return nil, entry.raise.Build(rc, resp)
	default:
		return resp, nil
	}
}

// parseResponse resolves and applies the parser map for resp's status,
// returning the raw response when no entry matched.
func parseResponse(cfg GracyConfig, rc *RequestContext, resp *Response) (any, error) {
	pm, ok := cfg.Parser.Get()
	if !ok {
		return resp, nil
	}
	entry, found := pm.resolve(resp.StatusCode)
	if !found {
		return resp, nil
	}
	return apply(entry, rc, resp)
}
