package memcache

import (
	"context"
	"sync"

	"github.com/shelfward/shelfward-server/cache"
)

var _ cache.Store = (*Store)(nil)

// Store is an in-memory cache.Store, used in DEV and in tests.
type Store struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func New() *Store {
	return &Store{docs: make(map[string][]byte)}
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[key]
	return ok, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := s.docs[key]
	out := make([]byte, len(doc))
	copy(out, doc)
	return out, nil
}

func (s *Store) Set(_ context.Context, key string, document []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := make([]byte, len(document))
	copy(doc, document)
	s.docs[key] = doc
	return nil
}

func (s *Store) Merge(_ context.Context, key string, partial []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key]
	if !ok {
		return nil
	}
	merged, err := cache.MergeDocuments(doc, partial)
	if err != nil {
		return err
	}
	s.docs[key] = merged
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key)
	return nil
}
