package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"aegis/internal/domain"
)

// DefaultArchiveLimit bounds the archived history table
const DefaultArchiveLimit = 10000

// SQLiteStore persists lists, settings and archived history in one local
// database file
type SQLiteStore struct {
	db           *sql.DB
	archiveLimit int
}

// OpenSQLiteStore opens or creates the database and applies the schema
func OpenSQLiteStore(path string, archiveLimit int) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	if archiveLimit <= 0 {
		archiveLimit = DefaultArchiveLimit
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)

	st := &SQLiteStore{db: db, archiveLimit: archiveLimit}
	if err := st.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", path, err)
	}
	return st, nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS list_entries (
  kind TEXT NOT NULL,
  pattern TEXT NOT NULL,
  enabled INTEGER NOT NULL DEFAULT 1,
  PRIMARY KEY (kind, pattern)
);
CREATE TABLE IF NOT EXISTS list_tombstones (
  kind TEXT NOT NULL,
  pattern TEXT NOT NULL,
  PRIMARY KEY (kind, pattern)
);
CREATE TABLE IF NOT EXISTS settings (
  name TEXT PRIMARY KEY,
  value INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS history (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  record_id TEXT NOT NULL UNIQUE,
  severity INTEGER NOT NULL,
  threat TEXT NOT NULL,
  recorded_at TEXT NOT NULL,
  doc_json BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_severity ON history(severity);
`)
	return err
}

// LoadLists returns every persisted entry, grouped by list
func (s *SQLiteStore) LoadLists(ctx context.Context) (map[domain.ListKind][]domain.ListEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, pattern, enabled FROM list_entries ORDER BY kind, pattern`)
	if err != nil {
		return nil, fmt.Errorf("failed to query lists: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.ListKind][]domain.ListEntry)
	for rows.Next() {
		var kindName string
		var entry domain.ListEntry
		if err := rows.Scan(&kindName, &entry.Pattern, &entry.Enabled); err != nil {
			return nil, err
		}
		kind, err := domain.ParseListKind(kindName)
		if err != nil {
			continue
		}
		out[kind] = append(out[kind], entry)
	}
	return out, rows.Err()
}

// LoadRemoved returns the tombstoned patterns, grouped by list
func (s *SQLiteStore) LoadRemoved(ctx context.Context) (map[domain.ListKind][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, pattern FROM list_tombstones ORDER BY kind, pattern`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tombstones: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.ListKind][]string)
	for rows.Next() {
		var kindName, pattern string
		if err := rows.Scan(&kindName, &pattern); err != nil {
			return nil, err
		}
		kind, err := domain.ParseListKind(kindName)
		if err != nil {
			continue
		}
		out[kind] = append(out[kind], pattern)
	}
	return out, rows.Err()
}

// SaveLists replaces the stored lists and their tombstones with the snapshot
func (s *SQLiteStore) SaveLists(ctx context.Context, lists map[domain.ListKind][]domain.ListEntry, removed map[domain.ListKind][]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for kind, entries := range lists {
		if _, err := tx.ExecContext(ctx, `DELETE FROM list_entries WHERE kind = ?`, kind.String()); err != nil {
			return fmt.Errorf("failed to clear %s list: %w", kind, err)
		}
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO list_entries(kind, pattern, enabled) VALUES (?, ?, ?)`,
				kind.String(), e.Pattern, e.Enabled,
			); err != nil {
				return fmt.Errorf("failed to store %s pattern %q: %w", kind, e.Pattern, err)
			}
		}
	}
	for kind, patterns := range removed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM list_tombstones WHERE kind = ?`, kind.String()); err != nil {
			return fmt.Errorf("failed to clear %s tombstones: %w", kind, err)
		}
		for _, pattern := range patterns {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO list_tombstones(kind, pattern) VALUES (?, ?)`,
				kind.String(), pattern,
			); err != nil {
				return fmt.Errorf("failed to store %s tombstone %q: %w", kind, pattern, err)
			}
		}
	}
	return tx.Commit()
}

// LoadSettings overlays stored toggles on defaults
func (s *SQLiteStore) LoadSettings(ctx context.Context, defaults domain.Settings) (domain.Settings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM settings`)
	if err != nil {
		return defaults, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	settings := defaults
	for rows.Next() {
		var name string
		var value bool
		if err := rows.Scan(&name, &value); err != nil {
			return defaults, err
		}
		if updated, ok := settings.With(name, value); ok {
			settings = updated
		}
	}
	return settings, rows.Err()
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, settings domain.Settings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, name := range domain.SettingNames {
		value, _ := settings.Get(name)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO settings(name, value) VALUES (?, ?)
			 ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
			name, value,
		); err != nil {
			return fmt.Errorf("failed to store setting %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// Archive stores one record and trims the table to the archive limit
func (s *SQLiteStore) Archive(ctx context.Context, rec domain.HistoryRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode history record: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO history(record_id, severity, threat, recorded_at, doc_json) VALUES (?, ?, ?, ?, ?)`,
		rec.ID,
		int(rec.Verdict.Severity),
		rec.Verdict.Name,
		rec.RecordedAt.UTC().Format(time.RFC3339Nano),
		doc,
	); err != nil {
		return fmt.Errorf("failed to archive record %s: %w", rec.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM history WHERE id <= (SELECT MAX(id) FROM history) - ?`,
		s.archiveLimit,
	)
	return err
}

// ArchivedHistory returns up to limit archived records at or above min,
// oldest first. limit <= 0 returns all of them.
func (s *SQLiteStore) ArchivedHistory(ctx context.Context, min domain.Severity, limit int) ([]domain.HistoryRecord, error) {
	if limit <= 0 {
		limit = s.archiveLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_json FROM (
		   SELECT id, doc_json FROM history WHERE severity >= ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`,
		int(min), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var rec domain.HistoryRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode archived record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
