package session

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	apperrors "github.com/jrsteele09/go-oauth-login/internal/errors"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteRepo stores sessions in a SQLite database so they survive restarts
type SQLiteRepo struct {
	db *sql.DB
}

var _ Repo = (*SQLiteRepo)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies the
// embedded migrations. Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create database folder: %w", err)
			}
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrateUp(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	defer source.Close()

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	// m.Close would close db through the driver, so it is not called here.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// NewSQLiteRepo wraps a database opened with OpenSQLite
func NewSQLiteRepo(db *sql.DB) *SQLiteRepo {
	return &SQLiteRepo{db: db}
}

func (r *SQLiteRepo) Upsert(ctx context.Context, session Session) error {
	if session.Token == "" {
		return fmt.Errorf("token is required")
	}
	data, err := json.Marshal(session.Principal)
	if err != nil {
		return fmt.Errorf("encode principal: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, principal, created_at, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (token) DO UPDATE SET
		   principal = excluded.principal,
		   expires_at = excluded.expires_at`,
		session.Token, string(data), session.CreatedAt.UnixNano(), session.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) Get(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, apperrors.ErrSessionNotFound
	}

	var (
		data               string
		created, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT principal, created_at, expires_at FROM sessions WHERE token = ?`,
		token,
	).Scan(&data, &created, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}

	s := Session{
		Token:     token,
		CreatedAt: time.Unix(0, created),
		ExpiresAt: time.Unix(0, expiresAt),
	}
	if err := json.Unmarshal([]byte(data), &s.Principal); err != nil {
		return Session{}, fmt.Errorf("decode principal: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepo) Delete(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteRepo) CountActive(ctx context.Context, now time.Time) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE expires_at > ?`, now.UnixNano()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}
