package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// memoryPath opens a private in-memory database.
const memoryPath = ":memory:"

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	if dbPath != memoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		// Pragmas in the DSN apply to every pooled connection; several
		// processes in one terminal session share this file.
		dsn = "file:" + dbPath +
			"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if dbPath == memoryPath {
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// GetValue returns the value stored under key in scope.
func (s *SQLiteStore) GetValue(
	ctx context.Context,
	scope string,
	key string,
) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value,
		"SELECT value FROM session_values WHERE scope = ? AND key = ?",
		scope, key,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting %s/%s: %w", scope, key, err)
	}
	return value, true, nil
}

// SetValues inserts or replaces every pair in a single transaction, so
// another process reading the scope sees all of them or none.
func (s *SQLiteStore) SetValues(
	ctx context.Context,
	scope string,
	values map[string]string,
) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO session_values (scope, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (scope, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for key, value := range values {
		if _, err := stmt.ExecContext(ctx, scope, key, value, now); err != nil {
			return fmt.Errorf("setting %s/%s: %w", scope, key, err)
		}
	}

	return tx.Commit()
}

// DeleteValues removes the given keys from scope in a single transaction.
func (s *SQLiteStore) DeleteValues(
	ctx context.Context,
	scope string,
	keys ...string,
) error {
	if len(keys) == 0 {
		return nil
	}

	query, args, err := sqlx.In(
		"DELETE FROM session_values WHERE scope = ? AND key IN (?)",
		scope, keys,
	)
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("deleting keys from %s: %w", scope, err)
	}
	return nil
}

// ClearScope removes every key stored in scope.
func (s *SQLiteStore) ClearScope(ctx context.Context, scope string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM session_values WHERE scope = ?", scope,
	); err != nil {
		return fmt.Errorf("clearing scope %s: %w", scope, err)
	}
	return nil
}

// PruneScopes deletes every scope whose most recent write is older than
// before.
func (s *SQLiteStore) PruneScopes(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM session_values
		WHERE scope IN (
			SELECT scope FROM session_values
			GROUP BY scope
			HAVING MAX(updated_at) < ?
		)`,
		before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning scopes: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned rows: %w", err)
	}
	return n, nil
}

// Scope returns a view of the store bound to one scope. It satisfies
// session.Backend.
func (s *SQLiteStore) Scope(scope string) *Scoped {
	return &Scoped{store: s, scope: scope}
}

// scopedTimeout bounds each call made through a Scoped view.
const scopedTimeout = 5 * time.Second

// Scoped is a Store bound to a single scope with a context-free API.
type Scoped struct {
	store Store
	scope string
}

// Name returns the scope this view is bound to.
func (sc *Scoped) Name() string {
	return sc.scope
}

// Get returns the value for key.
func (sc *Scoped) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), scopedTimeout)
	defer cancel()
	return sc.store.GetValue(ctx, sc.scope, key)
}

// SetMany writes every pair atomically.
func (sc *Scoped) SetMany(values map[string]string) error {
	ctx, cancel := context.WithTimeout(context.Background(), scopedTimeout)
	defer cancel()
	return sc.store.SetValues(ctx, sc.scope, values)
}

// DeleteMany removes the keys atomically.
func (sc *Scoped) DeleteMany(keys ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), scopedTimeout)
	defer cancel()
	return sc.store.DeleteValues(ctx, sc.scope, keys...)
}
