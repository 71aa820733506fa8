package persistence

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/yaml-translator/internal/jobs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore backs the translation cache namespace (kv_store) and the
// delivery job queue.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

func (s *SQLiteStore) init(ctx context.Context) error {
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := s.migrate(ctx, name); err != nil {
			return fmt.Errorf("migration %s: %w", path.Base(name), err)
		}
	}
	return nil
}

// migrate applies one migration file unless its version is already recorded.
func (s *SQLiteStore) migrate(ctx context.Context, name string) (err error) {
	version := migrationVersion(path.Base(name))
	if version <= 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var applied bool
	if err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)`, version).Scan(&applied); err != nil {
		return err
	}
	if applied {
		return tx.Commit()
	}
	script, err := migrationFiles.ReadFile(name)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, string(script)); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
		return err
	}
	return tx.Commit()
}

// migrationVersion reads the numeric prefix of a file name: "001_init.sql" is 1.
func migrationVersion(name string) int {
	digits := strings.IndexFunc(name, func(r rune) bool { return r < '0' || r > '9' })
	if digits < 0 {
		digits = len(name)
	}
	n, _ := strconv.Atoi(name[:digits])
	return n
}

// Get returns the value stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			updated_at=excluded.updated_at`,
		key,
		value,
		time.Now().UTC(),
	)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key)
	return err
}

// Keys lists keys starting with prefix, sorted.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT key FROM kv_store WHERE substr(key, 1, ?) = ? ORDER BY key ASC`,
		len(prefix),
		prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		ret = append(ret, key)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.DeliveryJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT j.id, j.channel, j.dedupe_key, j.language_code, j.file_name, j.entry_count,
		        j.status, j.error, j.attempts, j.created_at, j.updated_at, COALESCE(c.content, '')
		 FROM delivery_jobs j
		 LEFT JOIN delivery_content c ON c.job_id = j.id
		 ORDER BY j.created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.DeliveryJob, 0)
	for rows.Next() {
		var item jobs.DeliveryJob
		var status string
		if err := rows.Scan(
			&item.ID,
			&item.Channel,
			&item.DedupeKey,
			&item.Payload.LanguageCode,
			&item.Payload.FileName,
			&item.Payload.EntryCount,
			&status,
			&item.Error,
			&item.Attempts,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.Payload.Content,
		); err != nil {
			return nil, err
		}
		item.Status = jobs.Status(status)
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.DeliveryJob) (err error) {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(
		ctx,
		`INSERT INTO delivery_jobs (
			id, channel, dedupe_key, language_code, file_name, entry_count, status, error, attempts, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			channel=excluded.channel,
			dedupe_key=excluded.dedupe_key,
			language_code=excluded.language_code,
			file_name=excluded.file_name,
			entry_count=excluded.entry_count,
			status=excluded.status,
			error=excluded.error,
			attempts=excluded.attempts,
			updated_at=excluded.updated_at`,
		job.ID,
		job.Channel,
		job.DedupeKey,
		job.Payload.LanguageCode,
		job.Payload.FileName,
		job.Payload.EntryCount,
		string(job.Status),
		job.Error,
		job.Attempts,
		job.CreatedAt,
		job.UpdatedAt,
	); err != nil {
		return err
	}

	if job.Payload.Content != "" {
		if _, err = tx.ExecContext(
			ctx,
			`INSERT INTO delivery_content (job_id, content) VALUES (?, ?)
			 ON CONFLICT(job_id) DO UPDATE SET content=excluded.content`,
			job.ID,
			job.Payload.Content,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM delivery_jobs WHERE id = ?`, jobID)
	return err
}

// DeleteJobData drops the stored file content of a job.
func (s *SQLiteStore) DeleteJobData(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM delivery_content WHERE job_id = ?`, jobID)
	return err
}
