package repositories

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vidsplit/client/internal/models"
)

//go:embed history_schema.sql
var historySchemaSQL string

// historySchemaVersion is bumped whenever history_schema.sql changes incompatibly.
const historySchemaVersion = 1

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const historyColumns = `job_id, file_name, method, status, split_count, error_message, submitted_at, updated_at`

// SQLiteHistory records submitted jobs in a local SQLite database so they can
// be listed and downloaded again in later runs.
type SQLiteHistory struct {
	db   *sql.DB
	path string
}

// OpenHistory opens (creating if needed) the history database at path.
func OpenHistory(path string) (*SQLiteHistory, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	history := &SQLiteHistory{db: db, path: path}
	if err := history.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return history, nil
}

// Path returns the database file location.
func (h *SQLiteHistory) Path() string {
	return h.path
}

// Close closes the underlying database connection.
func (h *SQLiteHistory) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// Record inserts an entry, or replaces the entry with the same job id.
func (h *SQLiteHistory) Record(ctx context.Context, entry models.HistoryEntry) error {
	if strings.TrimSpace(entry.JobID) == "" {
		return errors.New("history entry has no job id")
	}
	now := time.Now().UTC()
	if entry.SubmittedAt.IsZero() {
		entry.SubmittedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = now
	}

	return h.exec(ctx, `
        INSERT INTO job_history (`+historyColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (job_id) DO UPDATE SET
            file_name = excluded.file_name,
            method = excluded.method,
            status = excluded.status,
            split_count = excluded.split_count,
            error_message = excluded.error_message,
            updated_at = excluded.updated_at`,
		entry.JobID,
		entry.FileName,
		string(entry.Method),
		string(entry.Status),
		entry.SplitCount,
		nullableString(entry.Error),
		entry.SubmittedAt.UTC().Format(time.RFC3339Nano),
		entry.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
}

// UpdateStatus records the latest known state of a job.
func (h *SQLiteHistory) UpdateStatus(ctx context.Context, job models.Job) error {
	var found bool
	err := retryOnBusy(ctx, func() error {
		res, err := h.db.ExecContext(ctx, `
            UPDATE job_history
            SET status = ?, split_count = ?, error_message = ?, updated_at = ?
            WHERE job_id = ?`,
			string(job.Status),
			len(job.Splits),
			nullableString(job.ErrorMessage),
			time.Now().UTC().Format(time.RFC3339Nano),
			job.ID,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		found = affected > 0
		return err
	})
	if err != nil {
		return fmt.Errorf("update job history: %w", err)
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// Get returns the entry for jobID.
func (h *SQLiteHistory) Get(ctx context.Context, jobID string) (models.HistoryEntry, error) {
	row := h.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM job_history WHERE job_id = ?`, jobID)
	entry, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.HistoryEntry{}, ErrNotFound
	}
	if err != nil {
		return models.HistoryEntry{}, fmt.Errorf("get job history: %w", err)
	}
	return entry, nil
}

// List returns up to limit entries, most recently submitted first.
// A non-positive limit returns everything.
func (h *SQLiteHistory) List(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM job_history ORDER BY submitted_at DESC, job_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query job history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job history: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job history: %w", err)
	}
	return entries, nil
}

func (h *SQLiteHistory) initSchema(ctx context.Context) error {
	var tableExists int
	err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return h.createSchema(ctx)
	}

	var version int
	if err := h.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != historySchemaVersion {
		return fmt.Errorf("%w: %s has version %d, expected %d (delete the file to start over)",
			ErrSchemaMismatch, h.path, version, historySchemaVersion)
	}
	return nil
}

func (h *SQLiteHistory) createSchema(ctx context.Context) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, historySchemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", historySchemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (h *SQLiteHistory) exec(ctx context.Context, query string, args ...any) error {
	err := retryOnBusy(ctx, func() error {
		_, err := h.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("write job history: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistory(row rowScanner) (models.HistoryEntry, error) {
	var (
		entry       models.HistoryEntry
		method      string
		status      string
		errorMsg    sql.NullString
		submittedAt string
		updatedAt   string
	)
	if err := row.Scan(&entry.JobID, &entry.FileName, &method, &status, &entry.SplitCount, &errorMsg, &submittedAt, &updatedAt); err != nil {
		return models.HistoryEntry{}, err
	}
	entry.Method = models.SplitMethod(method)
	entry.Status = models.JobStatus(status)
	entry.Error = errorMsg.String

	var err error
	if entry.SubmittedAt, err = time.Parse(time.RFC3339Nano, submittedAt); err != nil {
		return models.HistoryEntry{}, fmt.Errorf("parse submitted_at: %w", err)
	}
	if entry.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return models.HistoryEntry{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return entry, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
