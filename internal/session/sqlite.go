package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"updatekit/internal/status"
)

// StaleAfter is how old a row left behind by a crashed session must be
// before it is swept on open.
const StaleAfter = 24 * time.Hour

const schema = `
CREATE TABLE IF NOT EXISTS session_status (
	session_id TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	payload    TEXT,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore is a Store backed by a SQLite database shared between
// sessions. Each store owns one row keyed by a random session id.
type SQLiteStore struct {
	db        *sql.DB
	sessionID string
	now       func() time.Time
}

// buildDSN creates a read-write WAL DSN for the given path.
func buildDSN(dbPath string) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(dbPath),
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(3000)")
	q.Add("_pragma", "journal_mode(WAL)")
	u.RawQuery = q.Encode()
	return u.String()
}

// OpenSQLite opens (creating if needed) the database at path and starts a
// new session in it.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("session database path is required")
	}
	//nolint:gosec // G301: user cache directory needs standard permissions
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping session db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create session schema: %w", err)
	}

	s := &SQLiteStore{db: db, sessionID: uuid.NewString(), now: time.Now}
	cutoff := s.now().Add(-StaleAfter).UnixMilli()
	if _, err := db.ExecContext(ctx, `DELETE FROM session_status WHERE updated_at < ?`, cutoff); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sweep stale sessions: %w", err)
	}
	return s, nil
}

// SessionID returns the id of the row this store owns.
func (s *SQLiteStore) SessionID() string {
	return s.sessionID
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now()
	}
	var payload sql.NullString
	if len(rec.Payload) > 0 {
		payload = sql.NullString{String: string(rec.Payload), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_status (session_id, status, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			status = excluded.status,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		s.sessionID, string(rec.Status), payload, rec.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save session status: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) (Record, bool, error) {
	var (
		name    string
		payload sql.NullString
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, payload, updated_at FROM session_status WHERE session_id = ?`,
		s.sessionID,
	).Scan(&name, &payload, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("load session status: %w", err)
	}
	st, err := status.Parse(name)
	if err != nil {
		return Record{}, false, fmt.Errorf("load session status: %w", err)
	}
	rec := Record{Status: st, UpdatedAt: time.UnixMilli(updated)}
	if payload.Valid {
		rec.Payload = []byte(payload.String)
	}
	return rec, true, nil
}

// Close deletes this session's row and closes the database.
func (s *SQLiteStore) Close() error {
	_, delErr := s.db.Exec(`DELETE FROM session_status WHERE session_id = ?`, s.sessionID)
	closeErr := s.db.Close()
	if delErr != nil {
		return fmt.Errorf("clear session status: %w", delErr)
	}
	return closeErr
}
