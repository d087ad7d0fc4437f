package replaystore

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/guilatrova/gracy/gracy"
	sentinelsqlx "github.com/guilatrova/gracy/sqlx"
)

// sqlExchangeRow is the row shape of the replay_exchanges table: headers are
// stored pre-encoded as JSON text since database/sql has no map type.
type sqlExchangeRow struct {
	Fingerprint     string    `db:"fingerprint"`
	Method          string    `db:"method"`
	URL             string    `db:"url"`
	RequestHeaders  string    `db:"request_headers"`
	RequestBody     []byte    `db:"request_body"`
	Status          int       `db:"status"`
	ResponseHeaders string    `db:"response_headers"`
	ResponseBody    []byte    `db:"response_body"`
	RecordedAt      time.Time `db:"recorded_at"`
	DiscardOnBad    bool      `db:"discard_on_bad_status"`
}

// SQL is a gracy.ReplayStore backed by a single "replay_exchanges" table,
// accessed through this module's own instrumented sqlx.DB wrapper so every
// replay read/write carries the same tracing and query-duration metrics as
// any other SQL call made by the host service.
type SQL struct {
	db *sentinelsqlx.DB
}

// NewSQL wraps db as a ReplayStore. Callers are responsible for creating the
// replay_exchanges table (fingerprint TEXT PRIMARY KEY, method, url,
// request_headers, request_body, status, response_headers, response_body,
// recorded_at, discard_on_bad_status).
func NewSQL(db *sentinelsqlx.DB) *SQL {
	return &SQL{db: db}
}

// Record upserts ex as a row keyed by its fingerprint.
func (s *SQL) Record(ctx context.Context, ex gracy.Exchange) error {
	reqHeaders, err := gojson.Marshal(map[string][]string(ex.RequestHeaders))
	if err != nil {
		return err
	}
	respHeaders, err := gojson.Marshal(map[string][]string(ex.ResponseHeaders))
	if err != nil {
		return err
	}

	row := sqlExchangeRow{
		Fingerprint:     ex.Fingerprint,
		Method:          ex.Method,
		URL:             ex.URL,
		RequestHeaders:  string(reqHeaders),
		RequestBody:     ex.RequestBody,
		Status:          ex.Status,
		ResponseHeaders: string(respHeaders),
		ResponseBody:    ex.ResponseBody,
		RecordedAt:      ex.RecordedAt,
		DiscardOnBad:    ex.DiscardOnBadStatus,
	}

	const upsert = `
		INSERT INTO replay_exchanges
			(fingerprint, method, url, request_headers, request_body,
			 status, response_headers, response_body, recorded_at, discard_on_bad_status)
		VALUES
			(:fingerprint, :method, :url, :request_headers, :request_body,
			 :status, :response_headers, :response_body, :recorded_at, :discard_on_bad_status)
		ON CONFLICT (fingerprint) DO UPDATE SET
			method = EXCLUDED.method,
			url = EXCLUDED.url,
			request_headers = EXCLUDED.request_headers,
			request_body = EXCLUDED.request_body,
			status = EXCLUDED.status,
			response_headers = EXCLUDED.response_headers,
			response_body = EXCLUDED.response_body,
			recorded_at = EXCLUDED.recorded_at,
			discard_on_bad_status = EXCLUDED.discard_on_bad_status`

	_, err = s.db.NamedExecContext(ctx, upsert, row)
	return err
}

// Load fetches the row stored for fingerprint.
func (s *SQL) Load(ctx context.Context, fingerprint string) (gracy.Exchange, error) {
	const query = `
		SELECT fingerprint, method, url, request_headers, request_body,
		       status, response_headers, response_body, recorded_at, discard_on_bad_status
		FROM replay_exchanges
		WHERE fingerprint = ?`

	var row sqlExchangeRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(query), fingerprint); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return gracy.Exchange{}, gracy.ErrNoReplayFound
		}
		return gracy.Exchange{}, err
	}

	var reqHeaders, respHeaders map[string][]string
	if err := gojson.Unmarshal([]byte(row.RequestHeaders), &reqHeaders); err != nil {
		return gracy.Exchange{}, err
	}
	if err := gojson.Unmarshal([]byte(row.ResponseHeaders), &respHeaders); err != nil {
		return gracy.Exchange{}, err
	}

	return gracy.Exchange{
		Fingerprint:        row.Fingerprint,
		Method:             row.Method,
		URL:                row.URL,
		RequestHeaders:     http.Header(reqHeaders),
		RequestBody:        row.RequestBody,
		Status:             row.Status,
		ResponseHeaders:    http.Header(respHeaders),
		ResponseBody:       row.ResponseBody,
		RecordedAt:         row.RecordedAt,
		DiscardOnBadStatus: row.DiscardOnBad,
	}, nil
}
