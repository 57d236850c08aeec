package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"neodiag/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id        TEXT PRIMARY KEY,
	status    TEXT NOT NULL,
	saved_at  TEXT NOT NULL,
	payload   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_saved_at ON sessions(saved_at);
`

// SQLiteSessionRepo stores the JSON snapshot of each session in one row.
type SQLiteSessionRepo struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ SessionRepo = (*SQLiteSessionRepo)(nil)

// NewSQLiteSessionRepo opens a SQLite database and runs migrations.
func NewSQLiteSessionRepo(dbPath string, opts ...Option) (*SQLiteSessionRepo, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	o := buildOptions(opts)
	return &SQLiteSessionRepo{db: db, logger: o.logger}, nil
}

// Close closes the underlying database connection.
func (r *SQLiteSessionRepo) Close() error {
	return r.db.Close()
}

// DB returns the underlying *sql.DB for health checks.
func (r *SQLiteSessionRepo) DB() *sql.DB {
	return r.db
}

func (r *SQLiteSessionRepo) Save(ctx context.Context, session *model.Session) error {
	data, err := encodeSession(session)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, status, saved_at, payload) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, saved_at = excluded.saved_at, payload = excluded.payload`,
		session.ID, string(session.Status), timeNow().UTC().Format(time.RFC3339Nano), string(data),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}

func (r *SQLiteSessionRepo) Load(ctx context.Context, id string) (*model.Session, error) {
	if err := validateID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM sessions WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return decodeSession(id, []byte(payload))
}

// ListAll orders by saved_at; RFC3339Nano in UTC sorts lexically.
func (r *SQLiteSessionRepo) ListAll(ctx context.Context) ([]*model.Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, payload FROM sessions ORDER BY saved_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*model.Session, 0)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session, err := decodeSession(id, []byte(payload))
		if err != nil {
			r.logger.Warn("skipping unreadable session", "session_id", id, "error", err)
			continue
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (r *SQLiteSessionRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
