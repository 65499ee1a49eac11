package auth

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketNonces = []byte("nonces")

// BoltNonceStore persists consumed nonces in a BoltDB file.
type BoltNonceStore struct {
	db *bolt.DB
}

// NewBoltNonceStore opens (or creates) the store at path.
func NewBoltNonceStore(path string) (*BoltNonceStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("nonce store path required")
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open nonce store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketNonces)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltNonceStore{db: db}, nil
}

// Close releases the underlying Bolt database handle.
func (s *BoltNonceStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nonceKey(account [20]byte, nonce string) []byte {
	key := make([]byte, 0, len(account)+len(nonce))
	key = append(key, account[:]...)
	return append(key, nonce...)
}

// Reserve records the nonce and reports whether it was unused.
func (s *BoltNonceStore) Reserve(_ context.Context, account [20]byte, nonce string, observed time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("nonce store not configured")
	}
	fresh := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketNonces)
		key := nonceKey(account, nonce)
		if bucket.Get(key) != nil {
			return nil
		}
		value := make([]byte, 8)
		binary.BigEndian.PutUint64(value, uint64(observed.UTC().UnixNano()))
		fresh = true
		return bucket.Put(key, value)
	})
	if err != nil {
		return false, err
	}
	return fresh, nil
}

// Prune drops nonces observed before cutoff. Requests older than the
// verifier's skew window cannot be replayed, so their nonces need not be
// kept.
func (s *BoltNonceStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	threshold := uint64(cutoff.UTC().UnixNano())
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketNonces)
		var stale [][]byte
		if err := bucket.ForEach(func(k, v []byte) error {
			if len(v) == 8 && binary.BigEndian.Uint64(v) < threshold {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, key := range stale {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}
