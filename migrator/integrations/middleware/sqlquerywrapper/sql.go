package sqlquerywrapper

import (
	"context"
	"database/sql"
	"time"

	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/sf-migrate/migrator/logfield"
	"github.com/rudderlabs/sf-migrate/utils/misc"
)

type Opt func(*DB)

type DB struct {
	*sql.DB

	since              func(time.Time) time.Duration
	logger             logger.Logger
	stats              stats.Stats
	statTags           stats.Tags
	logFields          []logger.Field
	slowQueryThreshold time.Duration
	secretsRegex       map[string]string
}

func WithLogger(logger logger.Logger) Opt {
	return func(s *DB) {
		s.logger = logger
	}
}

func WithStats(statsFactory stats.Stats, tags stats.Tags) Opt {
	return func(s *DB) {
		s.stats = statsFactory
		s.statTags = tags
	}
}

func WithLogFields(fields ...logger.Field) Opt {
	return func(s *DB) {
		s.logFields = fields
	}
}

func WithSlowQueryThreshold(slowQueryThreshold time.Duration) Opt {
	return func(s *DB) {
		s.slowQueryThreshold = slowQueryThreshold
	}
}

func WithSecretsRegex(secretsRegex map[string]string) Opt {
	return func(s *DB) {
		s.secretsRegex = secretsRegex
	}
}

func New(db *sql.DB, opts ...Opt) *DB {
	s := &DB{
		DB:                 db,
		since:              time.Since,
		logger:             logger.NOP,
		stats:              stats.NOP,
		slowQueryThreshold: 300 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	startedAt := time.Now()
	result, err := db.DB.ExecContext(ctx, query, args...)
	db.logQuery(query, db.since(startedAt))
	return result, err
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	startedAt := time.Now()
	rows, err := db.DB.QueryContext(ctx, query, args...)
	db.logQuery(query, db.since(startedAt))
	return rows, err
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	startedAt := time.Now()
	row := db.DB.QueryRowContext(ctx, query, args...)
	db.logQuery(query, db.since(startedAt))
	return row
}

func (db *DB) logQuery(query string, elapsed time.Duration) {
	db.stats.NewTaggedStat("sf_migrate_query_duration", stats.TimerType, db.statTags).SendTiming(elapsed)

	if elapsed < db.slowQueryThreshold {
		return
	}

	sanitizedQuery, _ := misc.ReplaceMultiRegex(query, db.secretsRegex)

	fields := []logger.Field{
		logger.NewStringField(logfield.Query, sanitizedQuery),
		logger.NewDurationField(logfield.QueryExecutionTime, elapsed),
	}
	fields = append(fields, db.logFields...)

	db.logger.Infon("executing query", fields...)
}
