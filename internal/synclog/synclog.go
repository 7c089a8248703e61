// Package synclog records run bookkeeping: one row per sync task per
// session, plus a per-request fetch log. Rows move from running to exactly
// one terminal status and are never edited after that.
package synclog

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Task status values.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_logs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id      TEXT NOT NULL,
	task            TEXT NOT NULL,
	status          TEXT NOT NULL,
	started_at      TEXT NOT NULL,
	finished_at     TEXT,
	units_total     INTEGER NOT NULL DEFAULT 0,
	units_ok        INTEGER NOT NULL DEFAULT 0,
	units_failed    INTEGER NOT NULL DEFAULT 0,
	records_written INTEGER NOT NULL DEFAULT 0,
	records_dropped INTEGER NOT NULL DEFAULT 0,
	error           TEXT,
	metadata        TEXT
);
CREATE INDEX IF NOT EXISTS idx_sync_logs_task ON sync_logs (task, started_at);
CREATE INDEX IF NOT EXISTS idx_sync_logs_status ON sync_logs (status, started_at);

CREATE TABLE IF NOT EXISTS fetch_logs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	unit_key    TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	class       TEXT NOT NULL,
	retries     INTEGER NOT NULL,
	elapsed_ms  INTEGER NOT NULL,
	fetched_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_logs_session ON fetch_logs (session_id);
`

// TaskCounts summarizes a finished task for the sync log.
type TaskCounts struct {
	UnitsTotal     int
	UnitsOK        int
	UnitsFailed    int
	RecordsWritten int
	RecordsDropped int
}

// TaskStatus is one sync_logs row as read back by the status queries.
type TaskStatus struct {
	SessionID  string
	Task       string
	Status     string
	StartedAt  string
	FinishedAt string
	Counts     TaskCounts
	Error      string
	// Metadata holds a free-form JSON document, empty when none was
	// recorded.
	Metadata string
}

// FetchRecord is one fetch_logs row.
type FetchRecord struct {
	SessionID  string
	UnitKey    string
	StatusCode int
	Class      string
	Retries    int
	ElapsedMS  int64
	FetchedAt  string
}

// SyncLog writes and reads run bookkeeping on a shared database handle.
type SyncLog struct {
	db     *sql.DB
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New prepares the bookkeeping tables on db and returns a SyncLog.
func New(db *sql.DB, logger *slog.Logger) (*SyncLog, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &SyncLog{db: db, logger: logger, now: time.Now}, nil
}

// NewSession returns a fresh session identifier that groups the task rows
// of one orchestrator run.
func NewSession() string {
	return uuid.NewString()
}

func (l *SyncLog) timestamp() string {
	return l.now().UTC().Format(time.RFC3339)
}

// StartTask inserts a running row for the task and returns its row id.
func (l *SyncLog) StartTask(ctx context.Context, sessionID, task string) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO sync_logs (session_id, task, status, started_at) VALUES (?, ?, ?, ?)`,
		sessionID, task, StatusRunning, l.timestamp())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CompleteTask moves the row to its terminal status. It never propagates a
// failure: the pipeline's work is already done at this point, so a
// bookkeeping error must not undo it. Failures are logged instead. The
// write is detached from ctx cancellation so that an interrupted run still
// gets its terminal row. metadata, when non-empty, is stored as-is and is
// expected to be a JSON document.
func (l *SyncLog) CompleteTask(ctx context.Context, id int64, status string, counts TaskCounts, errMsg, metadata string) {
	_, err := l.db.ExecContext(context.WithoutCancel(ctx),
		`UPDATE sync_logs SET
			status = ?, finished_at = ?,
			units_total = ?, units_ok = ?, units_failed = ?,
			records_written = ?, records_dropped = ?, error = ?, metadata = ?
		WHERE id = ? AND status = ?`,
		status, l.timestamp(),
		counts.UnitsTotal, counts.UnitsOK, counts.UnitsFailed,
		counts.RecordsWritten, counts.RecordsDropped, nullable(errMsg), nullable(metadata),
		id, StatusRunning)
	if err != nil {
		l.logger.Error("sync log completion write failed",
			"id", id, "status", status, "error", err)
	}
}

// MarkSkipped records a task that was never started, such as the remainder
// of a run aborted by an authentication failure. Like CompleteTask it never
// propagates a failure.
func (l *SyncLog) MarkSkipped(ctx context.Context, sessionID, task, reason string) {
	ts := l.timestamp()
	_, err := l.db.ExecContext(context.WithoutCancel(ctx),
		`INSERT INTO sync_logs (session_id, task, status, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, task, StatusSkipped, ts, ts, nullable(reason))
	if err != nil {
		l.logger.Error("sync log skip write failed", "task", task, "error", err)
	}
}

// LogFetch appends one fetch_logs row. Best effort: failures are logged.
func (l *SyncLog) LogFetch(ctx context.Context, sessionID, unitKey string, statusCode int, class string, retries int, elapsed time.Duration) {
	_, err := l.db.ExecContext(context.WithoutCancel(ctx),
		`INSERT INTO fetch_logs (session_id, unit_key, status_code, class, retries, elapsed_ms, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, unitKey, statusCode, class, retries, elapsed.Milliseconds(), l.timestamp())
	if err != nil {
		l.logger.Error("fetch log write failed", "unit", unitKey, "error", err)
	}
}

// LatestStatuses returns the most recent sync_logs row per task name.
func (l *SyncLog) LatestStatuses(ctx context.Context) ([]TaskStatus, error) {
	const q = `
		SELECT s.session_id, s.task, s.status, s.started_at,
			COALESCE(s.finished_at, ''),
			s.units_total, s.units_ok, s.units_failed,
			s.records_written, s.records_dropped,
			COALESCE(s.error, ''), COALESCE(s.metadata, '')
		FROM sync_logs s
		JOIN (
			SELECT task, MAX(id) AS max_id FROM sync_logs GROUP BY task
		) latest ON latest.max_id = s.id
		ORDER BY s.task`
	return l.queryStatuses(ctx, q)
}

// RecentFailures returns the newest failed or skipped rows, newest first.
func (l *SyncLog) RecentFailures(ctx context.Context, limit int) ([]TaskStatus, error) {
	const q = `
		SELECT session_id, task, status, started_at,
			COALESCE(finished_at, ''),
			units_total, units_ok, units_failed,
			records_written, records_dropped,
			COALESCE(error, ''), COALESCE(metadata, '')
		FROM sync_logs
		WHERE status IN ('failed', 'skipped')
		ORDER BY id DESC
		LIMIT ?`
	return l.queryStatuses(ctx, q, limit)
}

// RecentFetches returns the newest fetch_logs rows, newest first.
func (l *SyncLog) RecentFetches(ctx context.Context, limit int) ([]FetchRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT session_id, unit_key, status_code, class, retries, elapsed_ms, fetched_at
		FROM fetch_logs
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fetches []FetchRecord
	for rows.Next() {
		var f FetchRecord
		err := rows.Scan(&f.SessionID, &f.UnitKey, &f.StatusCode, &f.Class,
			&f.Retries, &f.ElapsedMS, &f.FetchedAt)
		if err != nil {
			return nil, err
		}
		fetches = append(fetches, f)
	}
	return fetches, rows.Err()
}

func (l *SyncLog) queryStatuses(ctx context.Context, query string, args ...any) ([]TaskStatus, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []TaskStatus
	for rows.Next() {
		var s TaskStatus
		err := rows.Scan(&s.SessionID, &s.Task, &s.Status, &s.StartedAt, &s.FinishedAt,
			&s.Counts.UnitsTotal, &s.Counts.UnitsOK, &s.Counts.UnitsFailed,
			&s.Counts.RecordsWritten, &s.Counts.RecordsDropped, &s.Error, &s.Metadata)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
