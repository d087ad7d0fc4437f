// Package sqlx provides an instrumented wrapper around jmoiron/sqlx
// with automatic OpenTelemetry tracing and metrics.
//
// It wraps only the slice of the sqlx API that gracy's replay store
// (see replaystore.SQL) exercises: named upserts, single-row gets, and
// bindvar rewriting. Anything reaching for the full sqlx surface — Select,
// transactions, prepared statements — should depend on jmoiron/sqlx
// directly.
//
// # Quick Start
//
// Open a database connection with instrumentation:
//
//	import sentinelsqlx "github.com/guilatrova/gracy/sqlx"
//
//	db, err := sentinelsqlx.Open("postgres", dsn,
//	    sentinelsqlx.WithDBSystem("postgresql"),
//	    sentinelsqlx.WithDBName("mydb"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
// # Named Upserts and Gets
//
//	result, err := db.NamedExecContext(ctx,
//	    "INSERT INTO users (name, email) VALUES (:name, :email)",
//	    user,
//	)
//
//	var got user
//	err = db.GetContext(ctx, &got, db.Rebind("SELECT * FROM users WHERE id = ?"), 1)
//
// # Configuration Options
//
//	db, _ := sentinelsqlx.Open("postgres", dsn,
//	    sentinelsqlx.WithDBSystem("postgresql"),    // Required: database type
//	    sentinelsqlx.WithDBName("users_db"),        // Database name
//	    sentinelsqlx.WithInstanceName("replica"),   // Connection identifier
//	    sentinelsqlx.WithTracerProvider(tp),        // Custom tracer provider
//	    sentinelsqlx.WithMeterProvider(mp),         // Custom meter provider
//	)
//
// # Observability
//
// The wrapper automatically emits:
//
// Traces:
//   - Span per query: sqlx.Get, sqlx.NamedExec
//   - Attributes: db.system, db.name, db.statement, db.operation
//
// Metrics:
//   - db.client.operation.duration (histogram by operation)
package sqlx
