// Package history keeps an optional PostgreSQL record of job outcomes.
//
// The store is disabled when no database is configured: Record and Purge do
// nothing and Recent returns ErrDisabled. Cleaned files themselves are never
// stored in the database.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultRecentLimit is the number of entries Recent returns when limit <= 0.
const DefaultRecentLimit = 50

// MaxRecentLimit caps the number of entries Recent returns.
const MaxRecentLimit = 500

// ErrDisabled is returned by Recent when no database is configured.
var ErrDisabled = errors.New("job history is not enabled")

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Entry is one finished job.
type Entry struct {
	ID                string    `json:"id"`
	JobID             string    `json:"job_id"`
	Kind              string    `json:"kind"`
	SourceURL         string    `json:"source_url"`
	Filename          string    `json:"filename"`
	Format            string    `json:"format,omitempty"`
	Outcome           string    `json:"outcome"`
	ErrorCode         string    `json:"error_code,omitempty"`
	FileID            string    `json:"file_id,omitempty"`
	RowsBefore        int       `json:"rows_before"`
	RowsAfter         int       `json:"rows_after"`
	DuplicatesRemoved int       `json:"duplicates_removed"`
	EmptyRowsRemoved  int       `json:"empty_rows_removed"`
	InputBytes        int64     `json:"input_bytes"`
	OutputBytes       int64     `json:"output_bytes"`
	DurationMS        int64     `json:"duration_ms"`
	CreatedAt         time.Time `json:"created_at"`
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS job_history (
	id                 uuid PRIMARY KEY,
	job_id             uuid,
	kind               text NOT NULL,
	source_url         text NOT NULL,
	filename           text NOT NULL,
	format             text,
	outcome            text NOT NULL,
	error_code         text,
	file_id            uuid,
	rows_before        integer NOT NULL DEFAULT 0,
	rows_after         integer NOT NULL DEFAULT 0,
	duplicates_removed integer NOT NULL DEFAULT 0,
	empty_rows_removed integer NOT NULL DEFAULT 0,
	input_bytes        bigint NOT NULL DEFAULT 0,
	output_bytes       bigint NOT NULL DEFAULT 0,
	duration_ms        bigint NOT NULL DEFAULT 0,
	created_at         timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS job_history_created_at_idx ON job_history (created_at DESC);
`

// Store records job outcomes. The zero value and a Store built from a nil
// DBTX are disabled.
type Store struct {
	db DBTX
}

// New creates a store over db. A nil db yields a disabled store.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect opens and pings a connection pool.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Enabled reports whether entries are persisted.
func (s *Store) Enabled() bool {
	return s != nil && s.db != nil
}

// EnsureSchema creates the history table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create job_history: %w", err)
	}
	return nil
}

// Record inserts an entry. ID and CreatedAt are filled in when empty.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if !s.Enabled() {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO job_history (
			id, job_id, kind, source_url, filename, format, outcome, error_code, file_id,
			rows_before, rows_after, duplicates_removed, empty_rows_removed,
			input_bytes, output_bytes, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		toPgUUID(e.ID), toPgUUID(e.JobID), e.Kind, e.SourceURL, e.Filename,
		toPgText(e.Format), e.Outcome, toPgText(e.ErrorCode), toPgUUID(e.FileID),
		e.RowsBefore, e.RowsAfter, e.DuplicatesRemoved, e.EmptyRowsRemoved,
		e.InputBytes, e.OutputBytes, e.DurationMS,
		pgtype.Timestamptz{Time: e.CreatedAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("insert job_history: %w", err)
	}
	return nil
}

// row mirrors a job_history row for pgx.RowToStructByName.
type row struct {
	ID                pgtype.UUID        `db:"id"`
	JobID             pgtype.UUID        `db:"job_id"`
	Kind              string             `db:"kind"`
	SourceURL         string             `db:"source_url"`
	Filename          string             `db:"filename"`
	Format            pgtype.Text        `db:"format"`
	Outcome           string             `db:"outcome"`
	ErrorCode         pgtype.Text        `db:"error_code"`
	FileID            pgtype.UUID        `db:"file_id"`
	RowsBefore        int32              `db:"rows_before"`
	RowsAfter         int32              `db:"rows_after"`
	DuplicatesRemoved int32              `db:"duplicates_removed"`
	EmptyRowsRemoved  int32              `db:"empty_rows_removed"`
	InputBytes        int64              `db:"input_bytes"`
	OutputBytes       int64              `db:"output_bytes"`
	DurationMS        int64              `db:"duration_ms"`
	CreatedAt         pgtype.Timestamptz `db:"created_at"`
}

func (r row) entry() Entry {
	return Entry{
		ID:                uuidToString(r.ID),
		JobID:             uuidToString(r.JobID),
		Kind:              r.Kind,
		SourceURL:         r.SourceURL,
		Filename:          r.Filename,
		Format:            r.Format.String,
		Outcome:           r.Outcome,
		ErrorCode:         r.ErrorCode.String,
		FileID:            uuidToString(r.FileID),
		RowsBefore:        int(r.RowsBefore),
		RowsAfter:         int(r.RowsAfter),
		DuplicatesRemoved: int(r.DuplicatesRemoved),
		EmptyRowsRemoved:  int(r.EmptyRowsRemoved),
		InputBytes:        r.InputBytes,
		OutputBytes:       r.OutputBytes,
		DurationMS:        r.DurationMS,
		CreatedAt:         r.CreatedAt.Time,
	}
}

// Recent returns the newest entries first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	limit = clampLimit(limit)

	rows, err := s.db.Query(ctx, `
		SELECT id, job_id, kind, source_url, filename, format, outcome, error_code, file_id,
			rows_before, rows_after, duplicates_removed, empty_rows_removed,
			input_bytes, output_bytes, duration_ms, created_at
		FROM job_history
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query job_history: %w", err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[row])
	if err != nil {
		return nil, fmt.Errorf("scan job_history: %w", err)
	}

	entries := make([]Entry, len(records))
	for i, r := range records {
		entries[i] = r.entry()
	}
	return entries, nil
}

// Purge deletes entries older than maxAge and returns how many were removed.
func (s *Store) Purge(ctx context.Context, maxAge time.Duration) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	cutoff := time.Now().Add(-maxAge)
	tag, err := s.db.Exec(ctx, "DELETE FROM job_history WHERE created_at < $1",
		pgtype.Timestamptz{Time: cutoff, Valid: true})
	if err != nil {
		return 0, fmt.Errorf("purge job_history: %w", err)
	}
	return tag.RowsAffected(), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgUUID(s string) pgtype.UUID {
	if s == "" {
		return pgtype.UUID{Valid: false}
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func uuidToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
