// Package boltcache provides a BBolt-backed cache.Store so cached detail
// documents survive server restarts.
package boltcache

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shelfward/shelfward-server/cache"
	"go.etcd.io/bbolt"
)

const detailBucket = "entity_details"

var _ cache.Store = (*Store)(nil)

type Store struct {
	db *bbolt.DB
}

// NewStore returns a cache.Store backed by the given BBolt database.
func NewStore(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(detailBucket))
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "[boltcache.NewStore] creating bucket")
	}
	return &Store{db: db}, nil
}

// NewStoreFromFile opens a BBolt database at the given path.
func NewStoreFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, errors.Wrap(err, "[boltcache.NewStoreFromFile] opening bbolt db")
	}
	return NewStore(db)
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		ok = tx.Bucket([]byte(detailBucket)).Get([]byte(key)) != nil
		return nil
	})
	return ok, err
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var doc []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(detailBucket)).Get([]byte(key))
		if v != nil {
			doc = make([]byte, len(v))
			copy(doc, v)
		}
		return nil
	})
	return doc, err
}

func (s *Store) Set(_ context.Context, key string, document []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(detailBucket)).Put([]byte(key), document)
	})
}

func (s *Store) Merge(_ context.Context, key string, partial []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(detailBucket))
		doc := b.Get([]byte(key))
		if doc == nil {
			return nil
		}
		merged, err := cache.MergeDocuments(doc, partial)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), merged)
	})
}

func (s *Store) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(detailBucket)).Delete([]byte(key))
	})
}
