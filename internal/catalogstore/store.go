// Package catalogstore is the SQL-backed connection layer underneath the
// descriptor cache: it opens the catalog database and executes queries
// against the four catalog tables named in spec §6 (relation-catalog,
// column-catalog, access-method-catalog, rule-catalog).
//
// Structure adapted near line-for-line from the teacher's
// storage/dolt/store.go: a package-level OTel tracer and metric set,
// exponential-backoff retry for transient driver errors, span-wrapped
// exec/query/query-row helpers. Renamed around catalog access instead of
// issue-tracker CRUD.
package catalogstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/dolthub/driver"
	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Config describes how to open the catalog store.
type Config struct {
	// Driver is the database/sql driver name ("dolt" for embedded,
	// "mysql" for a dolt sql-server in server mode).
	Driver string
	// DSN is the driver-specific data source name.
	DSN string
	// ServerMode enables retry-on-transient-error; embedded mode relies
	// on the driver's own retry.
	ServerMode bool
}

// Store is the connection layer the descriptor cache's build-from-catalog
// step queries.
type Store struct {
	db         *sql.DB
	mu         sync.RWMutex
	serverMode bool
}

// Open opens the catalog store described by cfg.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("catalogstore: open %s: %w", cfg.Driver, err)
	}
	return &Store{db: db, serverMode: cfg.ServerMode}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const retryMaxElapsed = 30 * time.Second

func newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// isRetryableError reports whether err is a transient connection error
// worth retrying in server mode.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"database is read only",
		"lost connection",
		"gone away",
		"i/o timeout",
		"unknown database",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

func (s *Store) withRetry(ctx context.Context, op func() error) error {
	if !s.serverMode {
		return op()
	}
	attempts := 0
	bo := newRetryBackoff()
	err := backoff.Retry(func() error {
		attempts++
		err := op()
		if err != nil && isRetryableError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if attempts > 1 {
		catalogMetrics.retryCount.Add(ctx, int64(attempts-1))
	}
	return err
}

var catalogTracer = otel.Tracer("github.com/relcore/dbcore/catalogstore")

var catalogMetrics struct {
	retryCount metric.Int64Counter
	lockWaitMs metric.Float64Histogram
}

func init() {
	m := otel.Meter("github.com/relcore/dbcore/catalogstore")
	catalogMetrics.retryCount, _ = m.Int64Counter("dbcore.catalogstore.retry_count",
		metric.WithDescription("catalog SQL operations retried due to transient errors"),
		metric.WithUnit("{retry}"),
	)
	catalogMetrics.lockWaitMs, _ = m.Float64Histogram("dbcore.catalogstore.lock_wait_ms",
		metric.WithDescription("time spent waiting for the descriptor-scoped lock"),
		metric.WithUnit("ms"),
	)
}

func spanSQL(q string) string {
	if len(q) > 300 {
		return q[:300] + "…"
	}
	return q
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Store) spanAttrs() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("db.system", "dbcore-catalog"),
		attribute.Bool("db.server_mode", s.serverMode),
	}
}

// ExecContext executes a statement against the catalog store.
func (s *Store) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, span := catalogTracer.Start(ctx, "catalogstore.exec",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(s.spanAttrs(),
			attribute.String("db.operation", "exec"),
			attribute.String("db.statement", spanSQL(query)),
		)...),
	)
	var result sql.Result
	err := s.withRetry(ctx, func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	endSpan(span, err)
	return result, err
}

// QueryContext runs a query against the catalog store.
func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx, span := catalogTracer.Start(ctx, "catalogstore.query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(s.spanAttrs(),
			attribute.String("db.operation", "query"),
			attribute.String("db.statement", spanSQL(query)),
		)...),
	)
	var rows *sql.Rows
	err := s.withRetry(ctx, func() error {
		var queryErr error
		rows, queryErr = s.db.QueryContext(ctx, query, args...)
		return queryErr
	})
	endSpan(span, err)
	return rows, err
}

// QueryRowContext runs a query expected to return at most one row; scan is
// called with the resulting *sql.Row.
func (s *Store) QueryRowContext(ctx context.Context, scan func(*sql.Row) error, query string, args ...any) error {
	ctx, span := catalogTracer.Start(ctx, "catalogstore.query_row",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(s.spanAttrs(),
			attribute.String("db.operation", "query_row"),
			attribute.String("db.statement", spanSQL(query)),
		)...),
	)
	err := s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, query, args...)
		return scan(row)
	})
	endSpan(span, err)
	return err
}
