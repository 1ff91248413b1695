// Package session persists the logged-in identity and its opaque session
// token between runs, the way the browser client keeps them in
// localStorage. Both values are opaque to the connection and
// reconciliation layers.
package session

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"beeline/internal/domain"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed single-row session store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (and if needed creates) the session database.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create session directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open session database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("session database migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session (
		id          INTEGER PRIMARY KEY CHECK (id = 1),
		session_id  TEXT NOT NULL,
		user_name   TEXT NOT NULL,
		user_phone  TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	_, err := s.db.Exec(schema)
	return err
}

// Save stores the session, replacing any previous one.
func (s *Store) Save(sessionID string, user domain.User) error {
	_, err := s.db.Exec(`
		INSERT INTO session (id, session_id, user_name, user_phone)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			user_name  = excluded.user_name,
			user_phone = excluded.user_phone,
			created_at = CURRENT_TIMESTAMP`,
		sessionID, user.UserName, user.UserPhone)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.logger.Debug("session saved", "user_phone", user.UserPhone)
	return nil
}

// Load returns the stored session, if any.
func (s *Store) Load() (sessionID string, user domain.User, ok bool, err error) {
	row := s.db.QueryRow(`SELECT session_id, user_name, user_phone FROM session WHERE id = 1`)
	err = row.Scan(&sessionID, &user.UserName, &user.UserPhone)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.User{}, false, nil
	}
	if err != nil {
		return "", domain.User{}, false, fmt.Errorf("load session: %w", err)
	}
	return sessionID, user, true, nil
}

// Clear removes the stored session. Clearing an empty store is a no-op.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM session WHERE id = 1`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
