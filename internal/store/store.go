// Package store handles SQLite persistence of session reports.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/verte-zerg/keytrace/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when no session matches an id.
var ErrNotFound = errors.New("session not found")

// Store wraps SQLite access for session reports.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			log_path TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			total_minutes REAL NOT NULL,
			active_minutes REAL NOT NULL,
			insertions INTEGER NOT NULL,
			deletions INTEGER NOT NULL,
			bucket_width_ms INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS session_commands (
			session_id TEXT NOT NULL,
			command TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (session_id, command)
		);`,
		`CREATE TABLE IF NOT EXISTS session_buckets (
			session_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			insertions INTEGER NOT NULL,
			deletions INTEGER NOT NULL,
			actions INTEGER NOT NULL,
			rate REAL NOT NULL,
			PRIMARY KEY (session_id, idx)
		);`,
		`CREATE TABLE IF NOT EXISTS session_activity (
			session_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			events INTEGER NOT NULL,
			active INTEGER NOT NULL,
			PRIMARY KEY (session_id, idx)
		);`,
		`CREATE TABLE IF NOT EXISTS session_words (
			session_id TEXT NOT NULL,
			word TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (session_id, word)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_name ON sessions(name);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_log_path ON sessions(log_path);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertReport stores an analyzed session with its windowed tables and
// returns the session id. A report whose LogPath is already stored replaces
// that session and keeps its id; otherwise report.ID is used, or a new UUID
// when it is empty.
func (s *Store) InsertReport(ctx context.Context, report model.Report) (id string, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	id = report.ID
	if report.LogPath != "" {
		var existing string
		err = tx.QueryRowContext(ctx, `SELECT id FROM sessions WHERE log_path = ? ORDER BY created_at LIMIT 1`, report.LogPath).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			err = nil
		case err != nil:
			return "", fmt.Errorf("failed to look up session: %w", err)
		default:
			id = existing
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	if _, err = deleteSessionRows(ctx, tx, id); err != nil {
		return "", fmt.Errorf("failed to replace session: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, name, log_path, started_at, ended_at, total_minutes, active_minutes, insertions, deletions, bucket_width_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		report.Name,
		report.LogPath,
		formatTime(report.StartedAt),
		formatTime(report.EndedAt),
		report.Summary.TotalMinutes,
		report.Summary.ActiveMinutes,
		report.Summary.Insertions,
		report.Summary.Deletions,
		report.Series.Width.Milliseconds(),
		formatTime(time.Now()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}

	for command, count := range report.Summary.Commands {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO session_commands (session_id, command, count) VALUES (?, ?, ?)`,
			id, command, count); err != nil {
			return "", fmt.Errorf("failed to insert command counts: %w", err)
		}
	}
	for i, b := range report.Series.Buckets {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO session_buckets (session_id, idx, started_at, insertions, deletions, actions, rate) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, i, formatTime(b.Start), b.Insertions, b.Deletions, b.Actions, b.Rate); err != nil {
			return "", fmt.Errorf("failed to insert buckets: %w", err)
		}
	}
	for i, w := range report.Activity {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO session_activity (session_id, idx, started_at, ended_at, events, active) VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, formatTime(w.Start), formatTime(w.End), w.Events, w.Active); err != nil {
			return "", fmt.Errorf("failed to insert activity: %w", err)
		}
	}
	for _, wc := range report.Words {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO session_words (session_id, word, count) VALUES (?, ?, ?)`,
			id, wc.Word, wc.Count); err != nil {
			return "", fmt.Errorf("failed to insert words: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// ListSessions returns stored sessions ordered by start time, oldest first.
// Name matches as a prefix; Last keeps only the most recent sessions.
func (s *Store) ListSessions(ctx context.Context, filter model.HistoryFilter) ([]model.StoredSession, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Name != "" {
		clauses = append(clauses, "substr(name, 1, length(?)) = ?")
		args = append(args, filter.Name, filter.Name)
	}
	if filter.Since != nil {
		clauses = append(clauses, "started_at >= ?")
		args = append(args, formatTime(*filter.Since))
	}
	query := fmt.Sprintf(`SELECT id, name, log_path, started_at, ended_at, created_at, total_minutes, active_minutes, insertions, deletions
		FROM sessions
		WHERE %s
		ORDER BY started_at ASC, created_at ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var sessions []model.StoredSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if filter.Last > 0 && len(sessions) > filter.Last {
		sessions = sessions[len(sessions)-filter.Last:]
	}

	ids := make([]string, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.ID
	}
	commands, err := s.listCommands(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].Summary.Commands = commands[sessions[i].ID]
		if sessions[i].Summary.Commands == nil {
			sessions[i].Summary.Commands = map[string]int{}
		}
	}
	return sessions, nil
}

// ListRates returns the per-bucket typing rate of each session.
func (s *Store) ListRates(ctx context.Context, sessionIDs []string) (map[string][]float64, error) {
	result := map[string][]float64{}
	if len(sessionIDs) == 0 {
		return result, nil
	}
	placeholders, args := inClause(sessionIDs)
	query := fmt.Sprintf(`SELECT session_id, rate FROM session_buckets
		WHERE session_id IN (%s)
		ORDER BY session_id, idx`, placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	for rows.Next() {
		var id string
		var rate float64
		if err := rows.Scan(&id, &rate); err != nil {
			return nil, err
		}
		result[id] = append(result[id], rate)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetReport loads a full stored report.
func (s *Store) GetReport(ctx context.Context, id string) (model.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, log_path, started_at, ended_at, created_at, total_minutes, active_minutes, insertions, deletions, bucket_width_ms
		 FROM sessions WHERE id = ?`, id)
	var sess model.StoredSession
	var startedAt, endedAt, created string
	var widthMs int64
	err := row.Scan(&sess.ID, &sess.Name, &sess.LogPath, &startedAt, &endedAt, &created,
		&sess.Summary.TotalMinutes, &sess.Summary.ActiveMinutes, &sess.Summary.Insertions, &sess.Summary.Deletions, &widthMs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Report{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Report{}, err
	}
	report := model.Report{
		ID:      sess.ID,
		Name:    sess.Name,
		LogPath: sess.LogPath,
		Summary: sess.Summary,
		Series:  model.Series{Width: time.Duration(widthMs) * time.Millisecond},
	}
	if report.StartedAt, err = parseTime(startedAt); err != nil {
		return model.Report{}, err
	}
	if report.EndedAt, err = parseTime(endedAt); err != nil {
		return model.Report{}, err
	}

	commands, err := s.listCommands(ctx, []string{id})
	if err != nil {
		return model.Report{}, err
	}
	report.Summary.Commands = commands[id]
	if report.Summary.Commands == nil {
		report.Summary.Commands = map[string]int{}
	}
	if report.Series.Buckets, err = s.listBuckets(ctx, id); err != nil {
		return model.Report{}, err
	}
	if report.Activity, err = s.listActivity(ctx, id); err != nil {
		return model.Report{}, err
	}
	if report.Words, err = s.listWords(ctx, id); err != nil {
		return model.Report{}, err
	}
	return report, nil
}

// DeleteSession removes a session and its child rows.
func (s *Store) DeleteSession(ctx context.Context, id string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()
	var n int64
	if n, err = deleteSessionRows(ctx, tx, id); err != nil {
		return err
	}
	if n == 0 {
		err = fmt.Errorf("%s: %w", id, ErrNotFound)
		return err
	}
	return tx.Commit()
}

// deleteSessionRows removes a session and its child rows and reports how
// many sessions rows were deleted.
func deleteSessionRows(ctx context.Context, tx *sql.Tx, id string) (int64, error) {
	for _, table := range []string{"session_commands", "session_buckets", "session_activity", "session_words"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", id); err != nil {
			return 0, err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) listCommands(ctx context.Context, sessionIDs []string) (map[string]map[string]int, error) {
	result := map[string]map[string]int{}
	if len(sessionIDs) == 0 {
		return result, nil
	}
	placeholders, args := inClause(sessionIDs)
	query := fmt.Sprintf(`SELECT session_id, command, count FROM session_commands
		WHERE session_id IN (%s)`, placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	for rows.Next() {
		var id, command string
		var count int
		if err := rows.Scan(&id, &command, &count); err != nil {
			return nil, err
		}
		if _, ok := result[id]; !ok {
			result[id] = map[string]int{}
		}
		result[id][command] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) listBuckets(ctx context.Context, id string) ([]model.Bucket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT started_at, insertions, deletions, actions, rate FROM session_buckets
		 WHERE session_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	var buckets []model.Bucket
	for rows.Next() {
		var b model.Bucket
		var start string
		if err := rows.Scan(&start, &b.Insertions, &b.Deletions, &b.Actions, &b.Rate); err != nil {
			return nil, err
		}
		if b.Start, err = parseTime(start); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func (s *Store) listActivity(ctx context.Context, id string) ([]model.ActivityWindow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT started_at, ended_at, events, active FROM session_activity
		 WHERE session_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	var windows []model.ActivityWindow
	for rows.Next() {
		var w model.ActivityWindow
		var start, end string
		if err := rows.Scan(&start, &end, &w.Events, &w.Active); err != nil {
			return nil, err
		}
		if w.Start, err = parseTime(start); err != nil {
			return nil, err
		}
		if w.End, err = parseTime(end); err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

func (s *Store) listWords(ctx context.Context, id string) ([]model.WordCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT word, count FROM session_words
		 WHERE session_id = ? ORDER BY count DESC, word ASC`, id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()
	var words []model.WordCount
	for rows.Next() {
		var wc model.WordCount
		if err := rows.Scan(&wc.Word, &wc.Count); err != nil {
			return nil, err
		}
		words = append(words, wc)
	}
	return words, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (model.StoredSession, error) {
	var sess model.StoredSession
	var startedAt, endedAt, createdAt string
	if err := row.Scan(&sess.ID, &sess.Name, &sess.LogPath, &startedAt, &endedAt, &createdAt,
		&sess.Summary.TotalMinutes, &sess.Summary.ActiveMinutes, &sess.Summary.Insertions, &sess.Summary.Deletions); err != nil {
		return sess, err
	}
	var err error
	if sess.StartedAt, err = parseTime(startedAt); err != nil {
		return sess, err
	}
	if sess.EndedAt, err = parseTime(endedAt); err != nil {
		return sess, err
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return sess, err
	}
	return sess, nil
}

func inClause(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

// Fixed-width UTC timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(timeLayout, value)
}
