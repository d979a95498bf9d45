// Package cache implements cache-aside reads for expensive entity detail
// projections. The cache is never the source of truth: every write to the
// underlying record invalidates (or merges into) the corresponding key, and a
// miss repopulates from the loader.
//
// Known tradeoff, kept deliberately: a cache write that fails after a
// successful load still fails the whole read, so the caller is told the
// operation did not cleanly succeed even though the authoritative store is
// fine. Stale-by-failure is allowed; silently inconsistent is not.
package cache

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	errs "github.com/shelfward/shelfward-server/internal/errors"
)

// ErrCorruptEntry marks a cached document that no longer parses as JSON. This
// is a hard error rather than a miss: it indicates a corrupted write path,
// and papering over it would hide the defect.
var ErrCorruptEntry = errors.New("corrupt cache entry")

// Store is the narrow contract over the key-value document store.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, document []byte) error
	// Merge overlays partial fields onto an existing document. Absent key
	// is a no-op: the cache stays cold until the next read.
	Merge(ctx context.Context, key string, partial []byte) error
	Delete(ctx context.Context, key string) error
}

// Key builds the canonical "{namespace}:{entityId}" cache key.
func Key(namespace, entityID string) string {
	return namespace + ":" + entityID
}

// Loader produces the detail document on a cache miss. A nil document with a
// nil error means "no data"; negative results are never cached.
type Loader func(ctx context.Context) (json.RawMessage, error)

type Cache struct {
	store Store
}

func New(store Store) *Cache {
	return &Cache{store: store}
}

// Detail returns the cached document for key, or loads, caches and returns it
// on a miss. The loader is invoked at most once per call and only on a miss.
func (c *Cache) Detail(ctx context.Context, key string, loader Loader) (json.RawMessage, error) {
	hit, err := c.store.Exists(ctx, key)
	if err != nil {
		return nil, storeFailure(err, "Detail Exists")
	}

	if hit {
		doc, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, storeFailure(err, "Detail Get")
		}
		if !json.Valid(doc) {
			return nil, errors.Wrapf(ErrCorruptEntry, "key %s", key)
		}
		return doc, nil
	}

	doc, err := loader(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Cache.Detail] loader")
	}
	if len(doc) == 0 {
		return nil, nil
	}

	// Clear any stale entry before repopulating, never leave one behind.
	if err := c.store.Delete(ctx, key); err != nil {
		return nil, storeFailure(err, "Detail Delete")
	}
	if err := c.store.Set(ctx, key, doc); err != nil {
		return nil, storeFailure(err, "Detail Set")
	}
	return doc, nil
}

// Invalidate unconditionally deletes the key. Called before any write to the
// underlying record.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return storeFailure(c.store.Delete(ctx, key), "Invalidate Delete")
}

// Merge applies a partial-field update to an existing cached document after a
// partial write, so the cache need not be wholly reloaded.
func (c *Cache) Merge(ctx context.Context, key string, partial json.RawMessage) error {
	return storeFailure(c.store.Merge(ctx, key, partial), "Merge")
}

// storeFailure tags a store error so callers can match errs.ErrStoreFailure
// without depending on the concrete Store implementation's error types.
func storeFailure(err error, step string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCorruptEntry) {
		return errors.Wrapf(err, "[Cache.%s]", step)
	}
	return errors.Wrapf(errs.ErrStoreFailure, "[Cache.%s] %v", step, err)
}

// MergeDocuments overlays the top-level fields of partial onto doc. Shared by
// Store implementations.
func MergeDocuments(doc, partial []byte) ([]byte, error) {
	var base map[string]json.RawMessage
	if err := json.Unmarshal(doc, &base); err != nil {
		return nil, errors.Wrap(ErrCorruptEntry, err.Error())
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(partial, &overlay); err != nil {
		return nil, errors.Wrap(err, "parsing partial document")
	}
	for k, v := range overlay {
		base[k] = v
	}
	return json.Marshal(base)
}
