package storage

import (
	"encoding/json"
	"fmt"
)

// Seed helpers for tests and local fixtures. They write directly through the
// underlying handle, standing in for the ingestion pipeline.

// SeedFeeCode inserts or replaces a fee schedule row.
func (s *SQLiteStore) SeedFeeCode(fc *FeeCode) error {
	billable := 0
	if fc.Billable {
		billable = 1
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO fee_schedule (code, description, fee, category, billable)
		 VALUES (?, ?, ?, ?, ?)`,
		fc.Code, fc.Description, fc.Fee, fc.Category, billable)
	return err
}

// SeedFormulary inserts or replaces a formulary row.
func (s *SQLiteStore) SeedFormulary(fe *FormularyEntry) error {
	covered, preferred := 0, 0
	if fe.Covered {
		covered = 1
	}
	if fe.Preferred {
		preferred = 1
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO formulary (id, drug_name, drug_class, interchange_group, covered, preferred, copay)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fe.ID, fe.DrugName, fe.DrugClass, fe.InterchangeGroup, covered, preferred, fe.Copay)
	return err
}

// SeedDeviceRule inserts or replaces a device rule row.
func (s *SQLiteStore) SeedDeviceRule(dr *DeviceRule) error {
	funded := 0
	if dr.Funded {
		funded = 1
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO device_rules (id, name, category, funded, criteria)
		 VALUES (?, ?, ?, ?, ?)`,
		dr.ID, dr.Name, dr.Category, funded, dr.Criteria)
	return err
}

// SeedChunk inserts or replaces a chunk row.
func (s *SQLiteStore) SeedChunk(c *Chunk) error {
	topicsJSON := ""
	if len(c.Topics) > 0 {
		b, err := json.Marshal(c.Topics)
		if err != nil {
			return fmt.Errorf("failed to marshal topics: %w", err)
		}
		topicsJSON = string(b)
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO chunks (id, document_id, content, section, page, category, topics)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DocumentID, c.Content, c.Section, c.Page, c.Category, topicsJSON)
	return err
}

// SetDataVersion sets the data-version marker.
func (s *SQLiteStore) SetDataVersion(v string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO meta (key, value) VALUES ('data_version', ?)`, v)
	return err
}
