package replaystore

import (
	"context"
	"errors"
	"net/http"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/guilatrova/gracy/gracy"
)

// redisExchange is Exchange's wire shape: http.Header marshals fine as-is,
// but we keep a dedicated type so the on-disk format doesn't silently follow
// whatever fields gracy.Exchange happens to add later.
type redisExchange struct {
	Fingerprint     string              `json:"fingerprint"`
	Method          string              `json:"method"`
	URL             string              `json:"url"`
	RequestHeaders  map[string][]string `json:"request_headers"`
	RequestBody     []byte              `json:"request_body"`
	Status          int                 `json:"status"`
	ResponseHeaders map[string][]string `json:"response_headers"`
	ResponseBody    []byte              `json:"response_body"`
	RecordedAt      time.Time           `json:"recorded_at"`

	DiscardOnBadStatus bool `json:"discard_on_bad_status"`
}

func toWire(ex gracy.Exchange) redisExchange {
	return redisExchange{
		Fingerprint:        ex.Fingerprint,
		Method:             ex.Method,
		URL:                ex.URL,
		RequestHeaders:     map[string][]string(ex.RequestHeaders),
		RequestBody:        ex.RequestBody,
		Status:             ex.Status,
		ResponseHeaders:    map[string][]string(ex.ResponseHeaders),
		ResponseBody:       ex.ResponseBody,
		RecordedAt:         ex.RecordedAt,
		DiscardOnBadStatus: ex.DiscardOnBadStatus,
	}
}

func (w redisExchange) toExchange() gracy.Exchange {
	return gracy.Exchange{
		Fingerprint:        w.Fingerprint,
		Method:             w.Method,
		URL:                w.URL,
		RequestHeaders:     http.Header(w.RequestHeaders),
		RequestBody:        w.RequestBody,
		Status:             w.Status,
		ResponseHeaders:    http.Header(w.ResponseHeaders),
		ResponseBody:       w.ResponseBody,
		RecordedAt:         w.RecordedAt,
		DiscardOnBadStatus: w.DiscardOnBadStatus,
	}
}

// Redis is a gracy.ReplayStore backed by a Redis key per fingerprint, keyed
// under a configurable prefix so a replay keyspace can share a database with
// unrelated keys (e.g. the same instance backing a gobreaker.SharedDataStore
// passed as gracy.BreakerConfig.Store).
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis builds a Redis store. ttl <= 0 means exchanges never expire.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "gracy:replay:"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(fingerprint string) string { return r.prefix + fingerprint }

// Record serializes ex as JSON and writes it under its fingerprint key.
func (r *Redis) Record(ctx context.Context, ex gracy.Exchange) error {
	data, err := gojson.Marshal(toWire(ex))
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(ex.Fingerprint), data, r.ttl).Err()
}

// Load fetches and deserializes the exchange stored for fingerprint.
func (r *Redis) Load(ctx context.Context, fingerprint string) (gracy.Exchange, error) {
	data, err := r.client.Get(ctx, r.key(fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return gracy.Exchange{}, gracy.ErrNoReplayFound
	}
	if err != nil {
		return gracy.Exchange{}, err
	}
	var w redisExchange
	if err := gojson.Unmarshal(data, &w); err != nil {
		return gracy.Exchange{}, err
	}
	return w.toExchange(), nil
}
