package db

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltDB is the embedded key-value alternative to sqlite. Each namespace uses
// a data bucket plus an order bucket mapping a big-endian sequence to the key,
// which preserves insertion order independently of key bytes.
type BoltDB struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltDB, error) {
	b, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	return &BoltDB{db: b}, nil
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}

func (b *BoltDB) Store(namespace string) *BoltStore {
	return &BoltStore{
		db:    b.db,
		data:  []byte(namespace),
		order: []byte(namespace + ".order"),
	}
}

type BoltStore struct {
	db    *bolt.DB
	data  []byte
	order []byte
}

func (s *BoltStore) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.data)
		if bucket == nil {
			return nil
		}
		if v := bucket.Get([]byte(key)); v != nil {
			// bolt memory is only valid inside the transaction
			value = append([]byte{}, v...)
		}
		return nil
	})
	return value, value != nil, err
}

func (s *BoltStore) Set(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := tx.CreateBucketIfNotExists(s.data)
		if err != nil {
			return err
		}
		order, err := tx.CreateBucketIfNotExists(s.order)
		if err != nil {
			return err
		}

		existed := data.Get([]byte(key)) != nil
		if err := data.Put([]byte(key), value); err != nil {
			return err
		}
		if existed {
			return nil
		}

		seq, err := order.NextSequence()
		if err != nil {
			return err
		}
		return order.Put(itob(seq), []byte(key))
	})
}

func (s *BoltStore) Has(key string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		if bucket := tx.Bucket(s.data); bucket != nil {
			found = bucket.Get([]byte(key)) != nil
		}
		return nil
	})
	return found, err
}

func (s *BoltStore) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		order := tx.Bucket(s.order)
		if order == nil {
			return nil
		}
		return order.ForEach(func(_, v []byte) error {
			keys = append(keys, string(v))
			return nil
		})
	})
	return keys, err
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
