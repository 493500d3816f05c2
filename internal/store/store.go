// Package store persists job records in SQLite or PostgreSQL through sqlx.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/HaoJinjin/open-soda/internal/jobs"
	"github.com/HaoJinjin/open-soda/pkg/errors"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

var schemas = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			result TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS job_errors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL,
			error_message TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
	},
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			result TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS job_errors (
			id BIGSERIAL PRIMARY KEY,
			job_id TEXT NOT NULL,
			error_message TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	},
}

// Store is a job store backed by a SQL database.
type Store struct {
	db *sqlx.DB
}

// record is the row shape of the jobs table.
type record struct {
	ID        string         `db:"id"`
	Kind      string         `db:"kind"`
	Status    string         `db:"status"`
	Progress  int            `db:"progress"`
	Message   string         `db:"message"`
	Result    sql.NullString `db:"result"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// Open connects with driver (DriverSQLite or DriverPostgres) and creates
// the tables when missing.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	schema, ok := schemas[driver]
	if !ok {
		return nil, errors.NewValidationError("store.driver", "must be sqlite3 or pgx", driver)
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "connect %s", driver)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "create schema")
		}
	}
	return &Store{db: db}, nil
}

// SaveJob inserts or updates a job record.
func (s *Store) SaveJob(ctx context.Context, job jobs.Job) error {
	rec := record{
		ID:        job.ID,
		Kind:      string(job.Kind),
		Status:    string(job.Status),
		Progress:  job.Progress,
		Message:   job.Message,
		CreatedAt: job.CreatedAt.UTC(),
		UpdatedAt: job.UpdatedAt.UTC(),
	}
	if job.Result != nil {
		data, err := json.Marshal(job.Result)
		if err != nil {
			return errors.Wrapf(err, "encode result of job %s", job.ID)
		}
		rec.Result = sql.NullString{String: string(data), Valid: true}
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO jobs (id, kind, status, progress, message, result, created_at, updated_at)
		VALUES (:id, :kind, :status, :progress, :message, :result, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			message = excluded.message,
			result = excluded.result,
			updated_at = excluded.updated_at`, rec)
	if err != nil {
		return errors.Wrapf(err, "save job %s", job.ID)
	}
	return nil
}

// SaveJobError records a failure message for a job.
func (s *Store) SaveJobError(ctx context.Context, jobID, message string) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO job_errors (job_id, error_message, created_at) VALUES (?, ?, ?)`),
		jobID, message, time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "save error of job %s", jobID)
	}
	return nil
}

// GetJob loads a job. The result comes back as decoded JSON. A missing
// job yields an error wrapping errors.ErrJobNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (jobs.Job, error) {
	var rec record
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(`SELECT * FROM jobs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.Job{}, errors.Wrapf(errors.ErrJobNotFound, "task %s", id)
	}
	if err != nil {
		return jobs.Job{}, errors.Wrapf(err, "load job %s", id)
	}
	return rec.job()
}

// ListJobs returns the most recent jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]jobs.Job, error) {
	var recs []record
	err := s.db.SelectContext(ctx, &recs,
		s.db.Rebind(`SELECT * FROM jobs ORDER BY created_at DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	out := make([]jobs.Job, 0, len(recs))
	for _, rec := range recs {
		j, err := rec.job()
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// JobErrors returns the failure messages of a job, oldest first.
func (s *Store) JobErrors(ctx context.Context, jobID string) ([]string, error) {
	var msgs []string
	err := s.db.SelectContext(ctx, &msgs,
		s.db.Rebind(`SELECT error_message FROM job_errors WHERE job_id = ? ORDER BY id`), jobID)
	if err != nil {
		return nil, errors.Wrapf(err, "list errors of job %s", jobID)
	}
	return msgs, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (r record) job() (jobs.Job, error) {
	j := jobs.Job{
		ID:        r.ID,
		Kind:      jobs.Kind(r.Kind),
		Status:    jobs.Status(r.Status),
		Progress:  r.Progress,
		Message:   r.Message,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Result.Valid {
		var v any
		if err := json.Unmarshal([]byte(r.Result.String), &v); err != nil {
			return jobs.Job{}, errors.Wrapf(err, "decode result of job %s", r.ID)
		}
		j.Result = v
	}
	return j, nil
}
