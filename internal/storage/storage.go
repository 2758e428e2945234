// Package storage provides persistent storage for label audits.
// It uses BoltDB as the underlying storage engine to keep datasets of
// classification records, the results of label error searches, and user
// accounts.
//
// Records and audits are keyed by dataset so a single dataset can be read back
// with a prefix scan. Record keys end in the bucket sequence, so a dataset
// reads back in the order it was stored.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"labelaudit/internal/records"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	recordsBucket = "records" // Bucket name for classification records
	auditsBucket  = "audits"  // Bucket name for label error search results
	usersBucket   = "users"   // Bucket name for user accounts
)

// ErrNotFound is returned when a looked up item does not exist.
var ErrNotFound = errors.New("not found")

// Store provides persistent storage using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New creates a new storage instance with the specified data path.
// It initializes the BoltDB database and creates necessary buckets.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "labelaudit.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{recordsBucket, auditsBucket, usersBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// PutRecords appends records to dataset, keeping their order. Records without
// an ID get a random one, which is written back into the returned slice.
func (s *Store) PutRecords(dataset string, recs []records.ClassificationRecord) ([]records.ClassificationRecord, error) {
	if dataset == "" {
		return nil, fmt.Errorf("dataset name is required")
	}

	out := make([]records.ClassificationRecord, len(recs))
	copy(out, recs)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(recordsBucket))

		for i := range out {
			if out[i].ID == "" {
				out[i].ID = uuid.NewString()
			}

			data, err := json.Marshal(out[i])
			if err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}
			seq, err := b.NextSequence()
			if err != nil {
				return fmt.Errorf("next record sequence: %w", err)
			}
			if err := b.Put(datasetKey(dataset, fmt.Sprintf("%020d", seq)), data); err != nil {
				return fmt.Errorf("put record %s: %w", out[i].ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Records returns the records of dataset in the order they were stored.
func (s *Store) Records(dataset string) ([]records.ClassificationRecord, error) {
	var out []records.ClassificationRecord

	err := s.scanDataset(recordsBucket, dataset, func(v []byte) error {
		var rec records.ClassificationRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("unmarshal record: %w", err)
		}
		out = append(out, rec)
		return nil
	})

	return out, err
}

// DeleteDataset removes all records of dataset.
func (s *Store) DeleteDataset(dataset string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(recordsBucket)).Cursor()
		prefix := datasetPrefix(dataset)

		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Seek(prefix) {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) scanDataset(bucket, dataset string, fn func([]byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()
		prefix := datasetPrefix(dataset)

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(v); err != nil {
				return err
			}
		}
		return nil
	})
}

func datasetPrefix(dataset string) []byte {
	return []byte(dataset + "\x00")
}

func datasetKey(dataset, id string) []byte {
	return append(datasetPrefix(dataset), id...)
}
