// Package bolt provides a BoltDB-backed ledger store.
//
// The whole case collection lives under a single key in one bucket, the same
// single-slot layout a browser keeps in local storage. All data sits in one
// file, so a station laptop needs no database process.
//
// Writes that would store byte-identical data are skipped. The audit log is a
// second bucket keyed by the bucket sequence, so iteration order is append
// order.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/bailaid/case-ledger/ledger"
)

const (
	casesBucket = "cases"
	auditBucket = "audit"
)

// Store wraps a BoltDB database and implements ledger.Store and ledger.AuditLog.
type Store struct {
	db *bolt.DB
}

// New opens (or creates) a BoltDB database at the given path and ensures
// both buckets exist.
func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{casesBucket, auditBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
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

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) LoadAll(_ context.Context) ([]ledger.Case, error) {
	cases := []ledger.Case{}
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(casesBucket)).Get([]byte(ledger.SnapshotSlot))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &cases)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if cases == nil {
		cases = []ledger.Case{}
	}
	return cases, nil
}

// SaveAll replaces the snapshot. Bolt transactions are atomic, so a reader
// sees either the old or the new collection.
func (s *Store) SaveAll(ctx context.Context, cases []ledger.Case) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cases == nil {
		cases = []ledger.Case{}
	}
	data, err := json.Marshal(cases)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(casesBucket))
		if bytes.Equal(b.Get([]byte(ledger.SnapshotSlot)), data) {
			return nil
		}
		return b.Put([]byte(ledger.SnapshotSlot), data)
	})
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) Append(_ context.Context, entry ledger.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(auditBucket))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
}

func (s *Store) Query(_ context.Context, filter ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	var result []ledger.AuditEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(auditBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e ledger.AuditEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if !filter.Matches(e) {
				continue
			}
			result = append(result, e)
			if filter.Limit > 0 && len(result) >= filter.Limit {
				return nil
			}
		}
		return nil
	})
	return result, err
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
