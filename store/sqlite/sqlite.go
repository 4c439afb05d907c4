/*
Package sqlite provides a SQLite-backed request store and employee directory.

INTERFACES IMPLEMENTED:
  leave.Store:        Versioned request collection
  leave.Directory:    Employee lookup and roster
  leave.AdminChecker: Administrator flag per employee

KEY TABLES:
  collections: one row per collection key; payload is the JSON-encoded
               request list, version increments on every write
  employees:   roster entries with allowance, role and admin flag

COMPARE-AND-SWAP:
  Replace only writes when the stored version equals the expected one:

    UPDATE collections SET payload = ?, version = version + 1
    WHERE key = ? AND version = ?

  Zero rows affected means another writer got there first and the caller
  receives leave.ErrConcurrentModification. The very first write inserts
  the row with ON CONFLICT DO NOTHING, so two first writers cannot both win.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety within the process. The version check
  protects against other processes sharing the same database file.

USAGE:
  store, err := sqlite.New("./data/planner.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/vacation-planner/leave"
)

// DefaultKey names the request collection row.
const DefaultKey = "leave_requests"

// Store implements the leave storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	key string
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return NewWithKey(dbPath, DefaultKey)
}

// NewWithKey is New with a custom collection key.
func NewWithKey(dbPath, key string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	store := &Store{db: db, key: key}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		key TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		payload TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		greeting TEXT NOT NULL,
		allowance INTEGER NOT NULL CHECK (allowance > 0),
		role TEXT NOT NULL,
		is_admin INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_role ON employees(role);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// REQUEST STORE (leave.Store interface)
// =============================================================================

// Load returns the current collection and its version.
func (s *Store) Load(ctx context.Context) (leave.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version int64
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT version, payload FROM collections WHERE key = ?", s.key,
	).Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.Snapshot{Requests: leave.Collection{}}, nil
	}
	if err != nil {
		return leave.Snapshot{}, fmt.Errorf("failed to load collection: %w", err)
	}

	var reqs leave.Collection
	if err := json.Unmarshal([]byte(payload), &reqs); err != nil {
		return leave.Snapshot{}, fmt.Errorf("failed to decode collection: %w", err)
	}
	if reqs == nil {
		reqs = leave.Collection{}
	}
	return leave.Snapshot{Requests: reqs, Version: version}, nil
}

// Replace writes the whole collection if the stored version is expected.
func (s *Store) Replace(ctx context.Context, expected int64, reqs leave.Collection) (leave.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reqs == nil {
		reqs = leave.Collection{}
	}
	payload, err := json.Marshal(reqs)
	if err != nil {
		return leave.Snapshot{}, fmt.Errorf("failed to encode collection: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	var res sql.Result
	if expected == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO collections (key, version, payload, updated_at)
			VALUES (?, 1, ?, ?)
			ON CONFLICT(key) DO NOTHING
		`, s.key, string(payload), now)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE collections SET payload = ?, version = version + 1, updated_at = ?
			WHERE key = ? AND version = ?
		`, string(payload), now, s.key, expected)
	}
	if err != nil {
		return leave.Snapshot{}, fmt.Errorf("failed to replace collection: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return leave.Snapshot{}, fmt.Errorf("failed to replace collection: %w", err)
	}
	if n == 0 {
		return leave.Snapshot{}, leave.ErrConcurrentModification
	}
	return leave.Snapshot{Requests: reqs.Clone(), Version: expected + 1}, nil
}

// =============================================================================
// DIRECTORY (leave.Directory, leave.AdminChecker interfaces)
// =============================================================================

// SaveEmployee upserts an employee and its admin flag.
func (s *Store) SaveEmployee(ctx context.Context, emp leave.Employee, isAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (id, name, greeting, allowance, role, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			greeting = excluded.greeting,
			allowance = excluded.allowance,
			role = excluded.role,
			is_admin = excluded.is_admin
	`
	_, err := s.db.ExecContext(ctx, query,
		emp.ID, emp.Name, emp.Greeting, emp.Allowance, string(emp.Role), boolToInt(isAdmin),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee %s: %w", emp.ID, err)
	}
	return nil
}

// SyncEmployees makes the employees table match emps exactly. Rows whose id
// is not in emps are removed and admin flags are set from isAdmin, all in
// one transaction.
func (s *Store) SyncEmployees(ctx context.Context, emps []leave.Employee, isAdmin func(id string) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin sync: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "CREATE TEMP TABLE IF NOT EXISTS keep_ids (id TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("failed to sync employees: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM keep_ids"); err != nil {
		return fmt.Errorf("failed to sync employees: %w", err)
	}

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO employees (id, name, greeting, allowance, role, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			greeting = excluded.greeting,
			allowance = excluded.allowance,
			role = excluded.role,
			is_admin = excluded.is_admin
	`)
	if err != nil {
		return fmt.Errorf("failed to sync employees: %w", err)
	}
	defer upsert.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, emp := range emps {
		if _, err := upsert.ExecContext(ctx,
			emp.ID, emp.Name, emp.Greeting, emp.Allowance, string(emp.Role), boolToInt(isAdmin(emp.ID)), now,
		); err != nil {
			return fmt.Errorf("failed to save employee %s: %w", emp.ID, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO keep_ids (id) VALUES (?)", emp.ID); err != nil {
			return fmt.Errorf("failed to sync employees: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM employees WHERE id NOT IN (SELECT id FROM keep_ids)"); err != nil {
		return fmt.Errorf("failed to remove stale employees: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM keep_ids"); err != nil {
		return fmt.Errorf("failed to sync employees: %w", err)
	}
	return tx.Commit()
}

// Lookup retrieves an employee by ID.
func (s *Store) Lookup(ctx context.Context, id string) (leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var emp leave.Employee
	var role string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, greeting, allowance, role FROM employees WHERE id = ?", id,
	).Scan(&emp.ID, &emp.Name, &emp.Greeting, &emp.Allowance, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.Employee{}, fmt.Errorf("employee %q: %w", id, leave.ErrNotFound)
	}
	if err != nil {
		return leave.Employee{}, err
	}
	if emp.Role, err = leave.ParseRole(role); err != nil {
		return leave.Employee{}, err
	}
	return emp, nil
}

// Roster returns all employees.
func (s *Store) Roster(ctx context.Context) (leave.Roster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, greeting, allowance, role FROM employees ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roster := leave.Roster{}
	for rows.Next() {
		var emp leave.Employee
		var role string
		if err := rows.Scan(&emp.ID, &emp.Name, &emp.Greeting, &emp.Allowance, &role); err != nil {
			return nil, err
		}
		if emp.Role, err = leave.ParseRole(role); err != nil {
			return nil, err
		}
		roster[emp.ID] = emp
	}
	return roster, rows.Err()
}

// IsAdmin reports the employee's admin flag. Unknown ids are not admins.
func (s *Store) IsAdmin(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var flag int
	err := s.db.QueryRowContext(ctx, "SELECT is_admin FROM employees WHERE id = ?", id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return flag == 1, nil
}

// DeleteEmployee removes an employee.
func (s *Store) DeleteEmployee(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM employees WHERE id = ?", id)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"collections", "employees"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
