// Package buildinfo persists small per-rule records between build runs:
// the rule key an artifact was produced under and runtime-observed facts
// such as whether a conditional-output rule actually produced anything.
// These facts are cheap to persist and expensive to recompute.
package buildinfo

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Vishwajeet-Mishra/buck/internal/rulekey"
)

// Record is the persisted outcome of one rule build.
type Record struct {
	Target    string
	RuleKey   rulekey.Key
	BuiltAt   time.Time
	Metadata  map[string]string
	Artifacts []string
}

// Store is a SQLite-backed build-info store.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore opens (or creates) the store at dbPath. Use ":memory:" for an
// in-memory store in tests.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open buildinfo database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize buildinfo schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rule_results (
		target TEXT PRIMARY KEY,
		rule_key TEXT NOT NULL,
		built_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS rule_metadata (
		target TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (target, key)
	);
	CREATE TABLE IF NOT EXISTS rule_artifacts (
		target TEXT NOT NULL,
		position INTEGER NOT NULL,
		path TEXT NOT NULL,
		PRIMARY KEY (target, position)
	);
	CREATE INDEX IF NOT EXISTS idx_rule_key ON rule_results(rule_key);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordSuccess stores the rule key a target was built under, replacing any
// previous record, along with the metadata and artifact paths observed
// during the build. The artifact paths let a later run verify the outputs
// are still on disk before trusting a matching key.
func (s *Store) RecordSuccess(ctx context.Context, target string, key rulekey.Key, meta map[string]string, artifacts []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin buildinfo transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO rule_results (target, rule_key, built_at) VALUES (?, ?, ?)",
		target, string(key), time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("record rule result: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM rule_metadata WHERE target = ?", target); err != nil {
		return fmt.Errorf("clear rule metadata: %w", err)
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO rule_metadata (target, key, value) VALUES (?, ?, ?)",
			target, k, v,
		); err != nil {
			return fmt.Errorf("record rule metadata: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM rule_artifacts WHERE target = ?", target); err != nil {
		return fmt.Errorf("clear rule artifacts: %w", err)
	}
	for i, p := range artifacts {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO rule_artifacts (target, position, path) VALUES (?, ?, ?)",
			target, i, p,
		); err != nil {
			return fmt.Errorf("record rule artifact: %w", err)
		}
	}
	return tx.Commit()
}

// Lookup returns the persisted record for target, or nil when the target
// has never been recorded.
func (s *Store) Lookup(ctx context.Context, target string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var key string
	var builtAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT rule_key, built_at FROM rule_results WHERE target = ?", target,
	).Scan(&key, &builtAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query rule result: %w", err)
	}

	rec := &Record{
		Target:   target,
		RuleKey:  rulekey.Key(key),
		BuiltAt:  time.Unix(builtAt, 0),
		Metadata: make(map[string]string),
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM rule_metadata WHERE target = ?", target)
	if err != nil {
		return nil, fmt.Errorf("query rule metadata: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan rule metadata: %w", err)
		}
		rec.Metadata[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	arows, err := s.db.QueryContext(ctx,
		"SELECT path FROM rule_artifacts WHERE target = ? ORDER BY position", target)
	if err != nil {
		return nil, fmt.Errorf("query rule artifacts: %w", err)
	}
	defer arows.Close()
	for arows.Next() {
		var p string
		if err := arows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan rule artifact: %w", err)
		}
		rec.Artifacts = append(rec.Artifacts, p)
	}
	return rec, arows.Err()
}

// Invalidate removes the record for target, forcing a rebuild.
func (s *Store) Invalidate(ctx context.Context, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM rule_results WHERE target = ?", target); err != nil {
		return fmt.Errorf("invalidate rule result: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM rule_metadata WHERE target = ?", target); err != nil {
		return fmt.Errorf("invalidate rule metadata: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM rule_artifacts WHERE target = ?", target); err != nil {
		return fmt.Errorf("invalidate rule artifacts: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
