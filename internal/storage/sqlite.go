// Package storage provides the SQLite implementation of the store interfaces.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements StructuredStore and ChunkStore using SQLite.
// The connection pool is shared, read-only, across concurrent queries.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and ensures the schema
// exists. Parent directories are created if they do not exist. Schema creation
// is idempotent DDL only; row population belongs to the ingestion pipeline.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS fee_schedule (
		code TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		fee REAL NOT NULL,
		category TEXT,
		billable INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS formulary (
		id TEXT PRIMARY KEY,
		drug_name TEXT NOT NULL,
		drug_class TEXT,
		interchange_group TEXT,
		covered INTEGER NOT NULL DEFAULT 0,
		preferred INTEGER NOT NULL DEFAULT 0,
		copay REAL
	);

	CREATE INDEX IF NOT EXISTS idx_formulary_name ON formulary(drug_name COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_formulary_group ON formulary(interchange_group);

	CREATE TABLE IF NOT EXISTS device_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT,
		funded INTEGER NOT NULL DEFAULT 0,
		criteria TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_device_rules_name ON device_rules(name COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		content TEXT NOT NULL,
		section TEXT,
		page INTEGER,
		category TEXT,
		topics TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// GetFeeCodes returns fee schedule rows for the given codes, ordered by code.
func (s *SQLiteStore) GetFeeCodes(ctx context.Context, codes []string) ([]*FeeCode, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(codes))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(codes))
	for i, c := range codes {
		args[i] = strings.ToUpper(c)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT code, description, fee, COALESCE(category, ''), billable
		 FROM fee_schedule WHERE code IN (`+placeholders+`) ORDER BY code`, args...)
	if err != nil {
		return nil, fmt.Errorf("fee code lookup: %w", err)
	}
	defer rows.Close()

	var result []*FeeCode
	for rows.Next() {
		var fc FeeCode
		var billable int
		if err := rows.Scan(&fc.Code, &fc.Description, &fc.Fee, &fc.Category, &billable); err != nil {
			return nil, err
		}
		fc.Billable = billable != 0
		result = append(result, &fc)
	}
	return result, rows.Err()
}

// FindFormularyByName returns formulary rows matching the drug name, case-insensitively.
func (s *SQLiteStore) FindFormularyByName(ctx context.Context, name string) ([]*FormularyEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, drug_name, COALESCE(drug_class, ''), COALESCE(interchange_group, ''),
		        covered, preferred, COALESCE(copay, 0)
		 FROM formulary WHERE drug_name = ? COLLATE NOCASE ORDER BY id`, name)
	if err != nil {
		return nil, fmt.Errorf("formulary lookup: %w", err)
	}
	defer rows.Close()
	return scanFormulary(rows)
}

// FindFormularyByGroup returns all members of an interchange group.
func (s *SQLiteStore) FindFormularyByGroup(ctx context.Context, group string) ([]*FormularyEntry, error) {
	if group == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, drug_name, COALESCE(drug_class, ''), COALESCE(interchange_group, ''),
		        covered, preferred, COALESCE(copay, 0)
		 FROM formulary WHERE interchange_group = ? ORDER BY id`, group)
	if err != nil {
		return nil, fmt.Errorf("interchange group lookup: %w", err)
	}
	defer rows.Close()
	return scanFormulary(rows)
}

func scanFormulary(rows *sql.Rows) ([]*FormularyEntry, error) {
	var result []*FormularyEntry
	for rows.Next() {
		var fe FormularyEntry
		var covered, preferred int
		if err := rows.Scan(&fe.ID, &fe.DrugName, &fe.DrugClass, &fe.InterchangeGroup,
			&covered, &preferred, &fe.Copay); err != nil {
			return nil, err
		}
		fe.Covered = covered != 0
		fe.Preferred = preferred != 0
		result = append(result, &fe)
	}
	return result, rows.Err()
}

// FindDeviceRulesByName returns device rules matching the device name, case-insensitively.
func (s *SQLiteStore) FindDeviceRulesByName(ctx context.Context, name string) ([]*DeviceRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(category, ''), funded, COALESCE(criteria, '')
		 FROM device_rules WHERE name = ? COLLATE NOCASE ORDER BY id`, name)
	if err != nil {
		return nil, fmt.Errorf("device rule lookup: %w", err)
	}
	defer rows.Close()

	var result []*DeviceRule
	for rows.Next() {
		var dr DeviceRule
		var funded int
		if err := rows.Scan(&dr.ID, &dr.Name, &dr.Category, &funded, &dr.Criteria); err != nil {
			return nil, err
		}
		dr.Funded = funded != 0
		result = append(result, &dr)
	}
	return result, rows.Err()
}

// GetChunk returns chunk metadata and text by chunk ID.
func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	var c Chunk
	var topicsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, content, COALESCE(section, ''), COALESCE(page, 0),
		        COALESCE(category, ''), COALESCE(topics, '')
		 FROM chunks WHERE id = ?`, id,
	).Scan(&c.ID, &c.DocumentID, &c.Content, &c.Section, &c.Page, &c.Category, &topicsJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	if topicsJSON != "" {
		if err := json.Unmarshal([]byte(topicsJSON), &c.Topics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal topics: %w", err)
		}
	}
	return &c, nil
}

// DataVersion returns the ingestion data-version marker, or "0" when unset.
func (s *SQLiteStore) DataVersion(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = 'data_version'`).Scan(&v)
	if err == sql.ErrNoRows {
		return "0", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
