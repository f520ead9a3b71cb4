// Package history keeps a SQLite ledger of finished transfers.
package history

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is how a transfer ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusClosed    Status = "closed"
)

// ErrNotFound is returned by Get when no record has the given ID.
var ErrNotFound = errors.New("history: record not found")

// Record is one finished transfer.
type Record struct {
	ID         string
	LoaderID   string
	URL        string
	URLHash    string
	Status     Status
	Loaded     int64
	Total      int64
	HTTPStatus int
	ErrorCode  int
	Error      string
	Kind       string // detected file extension, e.g. "zip"
	MIME       string
	StartedAt  time.Time
	FinishedAt time.Time
	Elapsed    time.Duration
}

// URLHash returns a short hash of the URL used to group records.
func URLHash(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:8])
}

// Save inserts or updates rec, assigning an ID and hash when missing.
func Save(rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.URLHash = URLHash(rec.URL)
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	if rec.Elapsed == 0 && !rec.StartedAt.IsZero() {
		rec.Elapsed = rec.FinishedAt.Sub(rec.StartedAt)
	}

	return withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO transfers (
				id, loader_id, url, url_hash, status, loaded, total, http_status, error_code, error, kind, mime, started_at, finished_at, elapsed
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				loader_id=excluded.loader_id,
				url=excluded.url,
				url_hash=excluded.url_hash,
				status=excluded.status,
				loaded=excluded.loaded,
				total=excluded.total,
				http_status=excluded.http_status,
				error_code=excluded.error_code,
				error=excluded.error,
				kind=excluded.kind,
				mime=excluded.mime,
				started_at=excluded.started_at,
				finished_at=excluded.finished_at,
				elapsed=excluded.elapsed
		`, rec.ID, rec.LoaderID, rec.URL, rec.URLHash, string(rec.Status), rec.Loaded, rec.Total,
			rec.HTTPStatus, rec.ErrorCode, rec.Error, rec.Kind, rec.MIME,
			unixMilli(rec.StartedAt), unixMilli(rec.FinishedAt), rec.Elapsed.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to upsert transfer: %w", err)
		}
		return nil
	})
}

const selectColumns = `SELECT id, loader_id, url, url_hash, status, loaded, total, http_status, error_code, error, kind, mime, started_at, finished_at, elapsed FROM transfers`

// Get loads one record by ID.
func Get(id string) (*Record, error) {
	d := getDBHelper()
	if d == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	row := d.QueryRow(selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// List returns records newest first. A limit of 0 or less returns all.
func List(limit int) ([]*Record, error) {
	query := selectColumns + ` ORDER BY finished_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return queryRecords(query, args...)
}

// FindByURL returns every record for url, newest first.
func FindByURL(url string) ([]*Record, error) {
	return queryRecords(selectColumns+` WHERE url_hash = ? AND url = ? ORDER BY finished_at DESC, id`, URLHash(url), url)
}

// Remove deletes one record. Removing a missing record is not an error.
func Remove(id string) error {
	return withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM transfers WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete transfer: %w", err)
		}
		return nil
	})
}

// Clear deletes records with the given status, or every record when status
// is empty. It returns the number of rows removed.
func Clear(status Status) (int64, error) {
	var removed int64
	err := withTx(func(tx *sql.Tx) error {
		var res sql.Result
		var err error
		if status == "" {
			res, err = tx.Exec(`DELETE FROM transfers`)
		} else {
			res, err = tx.Exec(`DELETE FROM transfers WHERE status = ?`, string(status))
		}
		if err != nil {
			return fmt.Errorf("failed to clear transfers: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}

func queryRecords(query string, args ...any) ([]*Record, error) {
	d := getDBHelper()
	if d == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	rows, err := d.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var (
		rec                         Record
		loaderID, errText, kind     sql.NullString
		mime, status                sql.NullString
		loaded, total               sql.NullInt64
		httpStatus, errCode         sql.NullInt64
		startedAt, finishedAt, took sql.NullInt64
	)
	if err := s.Scan(&rec.ID, &loaderID, &rec.URL, &rec.URLHash, &status, &loaded, &total,
		&httpStatus, &errCode, &errText, &kind, &mime, &startedAt, &finishedAt, &took); err != nil {
		return nil, err
	}
	rec.LoaderID = loaderID.String
	rec.Status = Status(status.String)
	rec.Loaded = loaded.Int64
	rec.Total = total.Int64
	rec.HTTPStatus = int(httpStatus.Int64)
	rec.ErrorCode = int(errCode.Int64)
	rec.Error = errText.String
	rec.Kind = kind.String
	rec.MIME = mime.String
	rec.StartedAt = fromUnixMilli(startedAt.Int64)
	rec.FinishedAt = fromUnixMilli(finishedAt.Int64)
	rec.Elapsed = time.Duration(took.Int64) * time.Millisecond
	return &rec, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
