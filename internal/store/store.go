package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial kv table
// 1 - Added index on kv.namespace for profile listing
const currentSchemaVersion = 1

// Store provides durable storage for SDK state.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Namespace returns the KV view of one profile.
func (s *Store) Namespace(profile string) *Namespace {
	if profile == "" {
		profile = DefaultProfile
	}
	return &Namespace{db: s.db, profile: profile}
}

// Profiles lists every profile that holds at least one key, sorted by name.
func (s *Store) Profiles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT namespace FROM kv
		ORDER BY namespace COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

// Namespace is a SQLite-backed KV scoped to one profile.
type Namespace struct {
	db      *sql.DB
	profile string
}

var _ KV = (*Namespace)(nil)

// Profile returns the profile name.
func (n *Namespace) Profile() string {
	return n.profile
}

// GetString returns the string stored under key.
func (n *Namespace) GetString(ctx context.Context, key string) (string, bool, error) {
	var kind string
	var value sql.NullString
	err := n.db.QueryRowContext(ctx, `
		SELECT kind, str_value FROM kv WHERE namespace = ? AND key = ?
	`, n.profile, key).Scan(&kind, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	if kind != kindString {
		return "", false, wrongKind(key, kindString, kind)
	}
	return value.String, true, nil
}

// SetString stores value under key, replacing any previous value.
func (n *Namespace) SetString(ctx context.Context, key, value string) error {
	_, err := n.db.ExecContext(ctx, `
		INSERT INTO kv (namespace, key, kind, str_value, int_value, updated_at)
		VALUES (?, ?, 'string', ?, NULL, strftime('%s', 'now'))
		ON CONFLICT(namespace, key) DO UPDATE SET
			kind = excluded.kind,
			str_value = excluded.str_value,
			int_value = NULL,
			updated_at = excluded.updated_at
	`, n.profile, key, value)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// GetInt64 returns the integer stored under key.
func (n *Namespace) GetInt64(ctx context.Context, key string) (int64, bool, error) {
	var kind string
	var value sql.NullInt64
	err := n.db.QueryRowContext(ctx, `
		SELECT kind, int_value FROM kv WHERE namespace = ? AND key = ?
	`, n.profile, key).Scan(&kind, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get %q: %w", key, err)
	}
	if kind != kindInt {
		return 0, false, wrongKind(key, kindInt, kind)
	}
	return value.Int64, true, nil
}

// SetInt64 stores value under key, replacing any previous value.
func (n *Namespace) SetInt64(ctx context.Context, key string, value int64) error {
	_, err := n.db.ExecContext(ctx, `
		INSERT INTO kv (namespace, key, kind, str_value, int_value, updated_at)
		VALUES (?, ?, 'int', NULL, ?, strftime('%s', 'now'))
		ON CONFLICT(namespace, key) DO UPDATE SET
			kind = excluded.kind,
			str_value = NULL,
			int_value = excluded.int_value,
			updated_at = excluded.updated_at
	`, n.profile, key, value)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Dump returns every entry of the profile ordered by key.
func (n *Namespace) Dump(ctx context.Context) ([]Entry, error) {
	rows, err := n.db.QueryContext(ctx, `
		SELECT key, kind, str_value, int_value FROM kv
		WHERE namespace = ?
		ORDER BY key COLLATE BINARY ASC
	`, n.profile)
	if err != nil {
		return nil, fmt.Errorf("dump %q: %w", n.profile, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var str sql.NullString
		var num sql.NullInt64
		if err := rows.Scan(&e.Key, &e.Kind, &str, &num); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if e.Kind == kindInt {
			e.Value = strconv.FormatInt(num.Int64, 10)
		} else {
			e.Value = str.String
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the namespace index used by Profiles.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_kv_namespace ON kv(namespace)`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
