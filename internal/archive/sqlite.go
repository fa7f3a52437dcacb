package archive

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"cthulhu/internal/errcapture"
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS error_records (
  id TEXT PRIMARY KEY,
  record_id TEXT NOT NULL,
  status INTEGER NOT NULL,
  status_text TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL,
  raw_message TEXT NOT NULL DEFAULT '',
  url TEXT NOT NULL DEFAULT '',
  severity TEXT NOT NULL CHECK(severity IN ('info','warning','error')),
  occurrences INTEGER NOT NULL DEFAULT 1,
  first_seen DATETIME NOT NULL,
  last_seen DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_error_records_record ON error_records(record_id);
CREATE INDEX IF NOT EXISTS idx_error_records_last_seen ON error_records(last_seen DESC);
`
	_, err := db.Exec(schema)
	return err
}

// Entry is an archived error record with its occurrence count.
type Entry struct {
	ID          string    `json:"id"`
	RecordID    string    `json:"record_id"`
	Status      int       `json:"status"`
	StatusText  string    `json:"status_text"`
	Message     string    `json:"message"`
	RawMessage  string    `json:"raw_message,omitempty"`
	URL         string    `json:"url,omitempty"`
	Severity    string    `json:"severity"`
	Occurrences int       `json:"occurrences"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

type Repository interface {
	Record(ctx context.Context, rec errcapture.ErrorRecord, duplicate bool) error
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
	Purge(ctx context.Context, olderThan time.Time) (int, error)
}

type sqliteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB) Repository { return &sqliteRepo{db: db} }

// Record inserts a new record, or bumps the occurrence count of one the notifier refreshed.
func (r *sqliteRepo) Record(ctx context.Context, rec errcapture.ErrorRecord, duplicate bool) error {
	if duplicate {
		res, err := r.db.ExecContext(ctx, `
UPDATE error_records SET occurrences = occurrences + 1, last_seen = ? WHERE record_id = ?`,
			rec.Timestamp.UTC(), rec.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO error_records (id,record_id,status,status_text,message,raw_message,url,severity,occurrences,first_seen,last_seen)
VALUES (?,?,?,?,?,?,?,?,1,?,?)
ON CONFLICT(record_id) DO UPDATE SET occurrences = occurrences + 1, last_seen = excluded.last_seen
`, "err_"+uuid.NewString(), rec.ID, rec.Status, rec.StatusText, rec.Message, rec.RawMessage, rec.URL,
		string(rec.Severity), rec.Timestamp.UTC(), rec.Timestamp.UTC())
	return err
}

func (r *sqliteRepo) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id,record_id,status,status_text,message,raw_message,url,severity,occurrences,first_seen,last_seen
FROM error_records ORDER BY last_seen DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RecordID, &e.Status, &e.StatusText, &e.Message, &e.RawMessage, &e.URL,
			&e.Severity, &e.Occurrences, &e.FirstSeen, &e.LastSeen); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *sqliteRepo) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM error_records WHERE last_seen < ?`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
