package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mikey-austin/playsync/internal/ports"
	"github.com/mikey-austin/playsync/pkg/ps"
)

const migrationSessions = `
CREATE TABLE IF NOT EXISTS sessions (
	user TEXT PRIMARY KEY,
	state_json TEXT NOT NULL,
	queue_json TEXT NOT NULL,
	queue_version INTEGER NOT NULL DEFAULT 0,
	device_name TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);
`

// Store keeps the last session of each user in sqlite.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens or creates the database at path and runs migrations. Use
// ":memory:" for a throwaway store.
func Open(log *zap.Logger, path string) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if path == "" {
		return nil, errors.New("store path required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	// A single pooled connection keeps ":memory:" one database.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect session store: %w", err)
	}
	if _, err := db.Exec(migrationSessions); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate session store: %w", err)
	}
	log.Info("session store opened", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the stored session of user.
func (s *Store) Load(ctx context.Context, user string) (ports.StoredSession, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user, state_json, queue_json, queue_version, device_name, updated_at
		FROM sessions WHERE user = ?
	`, user)

	var stored ports.StoredSession
	var stateJSON, queueJSON string
	err := row.Scan(&stored.User, &stateJSON, &queueJSON, &stored.QueueVersion, &stored.DeviceName, &stored.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.StoredSession{}, false, nil
	}
	if err != nil {
		return ports.StoredSession{}, false, fmt.Errorf("load session %s: %w", user, err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &stored.State); err != nil {
		return ports.StoredSession{}, false, fmt.Errorf("decode state for %s: %w", user, err)
	}
	if err := json.Unmarshal([]byte(queueJSON), &stored.Queue); err != nil {
		return ports.StoredSession{}, false, fmt.Errorf("decode queue for %s: %w", user, err)
	}
	if stored.Queue == nil {
		stored.Queue = []ps.QueueItem{}
	}
	return stored, true, nil
}

// Save inserts or replaces the session of session.User.
func (s *Store) Save(ctx context.Context, session ports.StoredSession) error {
	if session.User == "" {
		return errors.New("session user required")
	}
	stateJSON, err := json.Marshal(session.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	queue := session.Queue
	if queue == nil {
		queue = []ps.QueueItem{}
	}
	queueJSON, err := json.Marshal(queue)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (user, state_json, queue_json, queue_version, device_name, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user) DO UPDATE SET
			state_json = excluded.state_json,
			queue_json = excluded.queue_json,
			queue_version = excluded.queue_version,
			device_name = excluded.device_name,
			updated_at = excluded.updated_at
	`, session.User, string(stateJSON), string(queueJSON), session.QueueVersion, session.DeviceName, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.User, err)
	}
	return nil
}

// Delete removes the session of user.
func (s *Store) Delete(ctx context.Context, user string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user = ?`, user); err != nil {
		return fmt.Errorf("delete session %s: %w", user, err)
	}
	return nil
}

var _ ports.SessionStore = (*Store)(nil)
