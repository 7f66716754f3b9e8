package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a key-value table in a sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path. ":memory:" is accepted
// for throwaway stores.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Get returns the value for key and whether it exists.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Keys returns every key in ascending order.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM kv ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Put upserts one record.
func (s *SQLiteStore) Put(ctx context.Context, key, value string) error {
	return s.PutMany(ctx, []Record{{Key: key, Value: value}}, false)
}

// PutMany upserts records in one transaction. With replace set, existing
// keys are removed first so the table mirrors records exactly.
func (s *SQLiteStore) PutMany(ctx context.Context, records []Record, replace bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.ExecContext(ctx, "DELETE FROM kv"); err != nil {
			return err
		}
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		if r.Key == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, r.Key, r.Value, now); err != nil {
			return fmt.Errorf("put %s: %w", r.Key, err)
		}
	}
	return tx.Commit()
}

// MemoryStore is a map-backed store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore returns a store seeded with records.
func NewMemoryStore(records ...Record) *MemoryStore {
	m := &MemoryStore{data: make(map[string]string, len(records))}
	for _, r := range records {
		m.data[r.Key] = r.Value
	}
	return m
}

// Get implements mcp.KeyValueStore.
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Keys implements mcp.KeyLister.
func (m *MemoryStore) Keys(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// PutMany mirrors SQLiteStore.PutMany.
func (m *MemoryStore) PutMany(_ context.Context, records []Record, replace bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if replace {
		m.data = make(map[string]string, len(records))
	}
	for _, r := range records {
		if r.Key != "" {
			m.data[r.Key] = r.Value
		}
	}
	return nil
}

// Writer is implemented by stores records can be imported into.
type Writer interface {
	PutMany(ctx context.Context, records []Record, replace bool) error
}

// Import loads path into w, replacing the store contents.
func Import(ctx context.Context, w Writer, path string, opts Options) (int, error) {
	records, err := LoadFile(path, opts)
	if err != nil {
		return 0, err
	}
	if err := w.PutMany(ctx, records, true); err != nil {
		return 0, fmt.Errorf("import %s: %w", path, err)
	}
	return len(records), nil
}
