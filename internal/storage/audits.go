package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// AuditResult records the outcome of one label error search
type AuditResult struct {
	Dataset   string    `json:"dataset"`
	SortBy    string    `json:"sort_by"`
	Timestamp time.Time `json:"timestamp"`
	Checked   int       `json:"checked"`
	RecordIDs []string  `json:"record_ids"`
	User      string    `json:"user,omitempty"`
	Group     string    `json:"group,omitempty"` // the user's current group at audit time
}

// SaveAudit stores an audit result keyed by dataset and timestamp
func (s *Store) SaveAudit(result AuditResult) error {
	if result.Dataset == "" {
		return fmt.Errorf("dataset name is required")
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(auditsBucket))

		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal audit result: %w", err)
		}

		// Zero padded so keys sort chronologically
		key := datasetKey(result.Dataset, fmt.Sprintf("%020d", result.Timestamp.UnixNano()))
		return b.Put(key, data)
	})
}

// Audits returns the audit results of dataset, oldest first
func (s *Store) Audits(dataset string) ([]AuditResult, error) {
	var out []AuditResult

	err := s.scanDataset(auditsBucket, dataset, func(v []byte) error {
		var result AuditResult
		if err := json.Unmarshal(v, &result); err != nil {
			return fmt.Errorf("unmarshal audit result: %w", err)
		}
		out = append(out, result)
		return nil
	})

	return out, err
}

// LatestAudit returns the most recent audit result of dataset
func (s *Store) LatestAudit(dataset string) (AuditResult, error) {
	var result AuditResult

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(auditsBucket)).Cursor()
		prefix := datasetPrefix(dataset)

		// Seek past the last possible key of the dataset and step back
		end := append(datasetPrefix(dataset), 0xff)
		k, v := c.Seek(end)
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
		if k == nil || !bytes.HasPrefix(k, prefix) {
			return ErrNotFound
		}
		return json.Unmarshal(v, &result)
	})

	return result, err
}
