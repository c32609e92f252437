// Package tokenstore persists the one thing this engine keeps across
// restarts: the OAuth2 refresh token and the id of the last user who
// logged in. Mounts, repos, and all file state live only in memory
// (internal/vaultcore) and are rediscovered from the server on each
// connect — nothing about repo content is ever written to disk here.
package tokenstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// sessionRowID is the fixed primary key of the single persisted row: one
// engine instance tracks one logged-in session at a time.
const sessionRowID = 1

// Session is the persisted OAuth2 state for the last authenticated user.
type Session struct {
	ServerURL    string
	UserID       string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}

// Store is the sole writer of the token database. Like the teacher's
// BaselineManager, it holds a single connection (SetMaxOpenConns(1)) so
// writes never race each other.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the SQLite database at dbPath, runs
// migrations, and returns a ready-to-use Store. The database uses WAL
// mode with synchronous=FULL for crash-safe durability, mirroring the
// teacher's sync database DSN.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()

		return nil, err
	}

	logger.Info("token store initialized", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the current session, overwriting whatever was persisted
// before — there is only ever one logged-in session.
func (s *Store) Save(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, server_url, user_id, access_token, refresh_token, token_type, expiry_unix, updated_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			server_url      = excluded.server_url,
			user_id         = excluded.user_id,
			access_token    = excluded.access_token,
			refresh_token   = excluded.refresh_token,
			token_type      = excluded.token_type,
			expiry_unix     = excluded.expiry_unix,
			updated_at_unix = excluded.updated_at_unix
	`, sessionRowID, sess.ServerURL, sess.UserID, sess.AccessToken, sess.RefreshToken, sess.TokenType, sess.Expiry.Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("tokenstore: saving session: %w", err)
	}

	s.logger.Info("session persisted", slog.String("user_id", sess.UserID), slog.Time("expiry", sess.Expiry))

	return nil
}

// Load returns the persisted session, or (nil, nil) if no one has ever
// logged in.
func (s *Store) Load(ctx context.Context) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT server_url, user_id, access_token, refresh_token, token_type, expiry_unix
		FROM sessions WHERE id = ?
	`, sessionRowID)

	var (
		sess       Session
		expiryUnix int64
	)

	if err := row.Scan(&sess.ServerURL, &sess.UserID, &sess.AccessToken, &sess.RefreshToken, &sess.TokenType, &expiryUnix); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil //nolint:nilnil // sentinel for "no session persisted yet"
		}

		return nil, fmt.Errorf("tokenstore: loading session: %w", err)
	}

	sess.Expiry = time.Unix(expiryUnix, 0)

	return &sess, nil
}

// Clear removes the persisted session, used by logout.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionRowID); err != nil {
		return fmt.Errorf("tokenstore: clearing session: %w", err)
	}

	s.logger.Info("session cleared")

	return nil
}
