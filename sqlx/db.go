package sqlx

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DB wraps *sqlx.DB with OpenTelemetry instrumentation. It instruments only
// the slice of the sqlx API that replaystore.SQL actually drives: named
// upserts and single-row gets (plus an uninstrumented Rebind). Other methods
// promoted from the embedded *sqlx.DB run without spans or metrics.
type DB struct {
	*sqlx.DB
	cfg *config
}

// Open opens a database connection with OpenTelemetry instrumentation.
//
// Example:
//
//	db, err := sentinelsqlx.Open("postgres", dsn,
//	    sentinelsqlx.WithDBSystem("postgresql"),
//	    sentinelsqlx.WithDBName("mydb"),
//	)
func Open(driverName, dsn string, opts ...Option) (*DB, error) {
	cfg := newConfig(opts...)

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	return &DB{DB: db, cfg: cfg}, nil
}

// Connect opens and verifies a database connection.
//
// Example:
//
//	db, err := sentinelsqlx.Connect(ctx, "postgres", dsn,
//	    sentinelsqlx.WithDBSystem("postgresql"),
//	)
func Connect(ctx context.Context, driverName, dsn string, opts ...Option) (*DB, error) {
	cfg := newConfig(opts...)

	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, err
	}

	return &DB{DB: db, cfg: cfg}, nil
}

// NewDB wraps an existing *sql.DB with sqlx and instrumentation.
//
// Example:
//
//	sqlDB, _ := sql.Open("postgres", dsn)
//	db := sentinelsqlx.NewDB(sqlDB, "postgres",
//	    sentinelsqlx.WithDBSystem("postgresql"),
//	)
func NewDB(db *sql.DB, driverName string, opts ...Option) *DB {
	cfg := newConfig(opts...)
	return &DB{
		DB:  sqlx.NewDb(db, driverName),
		cfg: cfg,
	}
}

// MustConnect is like Connect but panics on error.
func MustConnect(ctx context.Context, driverName, dsn string, opts ...Option) *DB {
	db, err := Connect(ctx, driverName, dsn, opts...)
	if err != nil {
		panic(err)
	}
	return db
}

// MustOpen is like Open but panics on error.
func MustOpen(driverName, dsn string, opts ...Option) *DB {
	db, err := Open(driverName, dsn, opts...)
	if err != nil {
		panic(err)
	}
	return db
}

// GetContext executes a query that is expected to return at most one row
// and scans the result into dest.
func (db *DB) GetContext(
	ctx context.Context,
	dest interface{},
	query string,
	args ...interface{},
) error {
	start := time.Now()
	operation := extractOperation(query)

	ctx, span := db.cfg.Tracer.Start(ctx, sqlxSpanName("sqlx.Get", query),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(db.cfg.queryAttributes(query)...),
	)
	defer span.End()

	err := db.DB.GetContext(ctx, dest, query, args...)

	db.cfg.Metrics.recordQueryDuration(
		ctx,
		time.Since(start),
		operation,
		db.cfg.baseAttributes(),
		err,
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

// NamedExecContext executes a named query.
func (db *DB) NamedExecContext(
	ctx context.Context,
	query string,
	arg interface{},
) (sql.Result, error) {
	start := time.Now()
	operation := extractOperation(query)

	ctx, span := db.cfg.Tracer.Start(ctx, sqlxSpanName("sqlx.NamedExec", query),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(db.cfg.queryAttributes(query)...),
	)
	defer span.End()

	result, err := db.DB.NamedExecContext(ctx, query, arg)

	db.cfg.Metrics.recordQueryDuration(
		ctx,
		time.Since(start),
		operation,
		db.cfg.baseAttributes(),
		err,
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return result, err
}

// Rebind transforms a query from QUESTION placeholders to the driver's
// bindvar type. Not instrumented: it's a pure string rewrite, never a
// round trip.
func (db *DB) Rebind(query string) string {
	return db.DB.Rebind(query)
}
