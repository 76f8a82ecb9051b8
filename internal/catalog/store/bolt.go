package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"product-catalog/internal/catalog"

	bolt "go.etcd.io/bbolt"
)

const (
	boltBucket      = "catalog"
	boltOpenTimeout = time.Second
)

// BoltStore keeps the state blob in a single-file bbolt database. It is the
// default store: a local, embedded slot analogous to the browser storage the
// original client persisted into.
type BoltStore struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %q: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create catalog bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load(_ context.Context) (catalog.StateSnapshot, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(boltBucket)).Get([]byte(StateSlot)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return catalog.StateSnapshot{}, fmt.Errorf("read state slot: %w", err)
	}
	if data == nil {
		return catalog.StateSnapshot{}, catalog.ErrNoState
	}

	return decodeState(data)
}

func (s *BoltStore) Save(_ context.Context, snap catalog.StateSnapshot) error {
	data, err := encodeState(snap)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(boltBucket)).Put([]byte(StateSlot), data)
	})
	if err != nil {
		return fmt.Errorf("write state slot: %w", err)
	}
	return nil
}

func (s *BoltStore) Health() error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(boltBucket)) == nil {
			return errors.New("catalog bucket missing")
		}
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
