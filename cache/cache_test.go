package cache_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/shelfward/shelfward-server/cache"
	"github.com/shelfward/shelfward-server/cache/boltcache"
	"github.com/shelfward/shelfward-server/cache/memcache"
	errs "github.com/shelfward/shelfward-server/internal/errors"
	"github.com/stretchr/testify/require"
)

// brokenStore fails every operation, standing in for a cache backend outage.
type brokenStore struct{ err error }

func (s brokenStore) Exists(context.Context, string) (bool, error) { return false, s.err }
func (s brokenStore) Get(context.Context, string) ([]byte, error)  { return nil, s.err }
func (s brokenStore) Set(context.Context, string, []byte) error    { return s.err }
func (s brokenStore) Merge(context.Context, string, []byte) error  { return s.err }
func (s brokenStore) Delete(context.Context, string) error         { return s.err }

func countingLoader(doc json.RawMessage, err error) (cache.Loader, *int) {
	calls := 0
	return func(context.Context) (json.RawMessage, error) {
		calls++
		return doc, err
	}, &calls
}

func TestDetailPopulatesOncePerMiss(t *testing.T) {
	c := cache.New(memcache.New())
	key := cache.Key("client", "c1")
	loader, calls := countingLoader(json.RawMessage(`{"id":"c1","email":"a@b.c"}`), nil)

	doc, err := c.Detail(context.Background(), key, loader)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"c1","email":"a@b.c"}`, string(doc))
	require.Equal(t, 1, *calls)

	// Warm read must not invoke the loader again.
	doc, err = c.Detail(context.Background(), key, loader)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"c1","email":"a@b.c"}`, string(doc))
	require.Equal(t, 1, *calls)
}

func TestDetailDoesNotCacheNegativeResults(t *testing.T) {
	store := memcache.New()
	c := cache.New(store)
	key := cache.Key("client", "missing")
	loader, calls := countingLoader(nil, nil)

	doc, err := c.Detail(context.Background(), key, loader)
	require.NoError(t, err)
	require.Nil(t, doc)

	doc, err = c.Detail(context.Background(), key, loader)
	require.NoError(t, err)
	require.Nil(t, doc)
	require.Equal(t, 2, *calls)

	ok, err := store.Exists(context.Background(), key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreFailureIsTagged(t *testing.T) {
	c := cache.New(brokenStore{err: fmt.Errorf("disk io")})
	loader, _ := countingLoader(json.RawMessage(`{"id":"c1"}`), nil)

	_, err := c.Detail(context.Background(), "client:c1", loader)
	require.ErrorIs(t, err, errs.ErrStoreFailure)

	require.ErrorIs(t, c.Invalidate(context.Background(), "client:c1"), errs.ErrStoreFailure)
	require.ErrorIs(t, c.Merge(context.Background(), "client:c1", json.RawMessage(`{}`)), errs.ErrStoreFailure)
}

func TestDetailLoaderErrorPropagates(t *testing.T) {
	c := cache.New(memcache.New())
	loader, _ := countingLoader(nil, fmt.Errorf("db gone"))

	_, err := c.Detail(context.Background(), "client:x", loader)
	require.ErrorContains(t, err, "db gone")
}

func TestDetailCorruptEntryIsHardError(t *testing.T) {
	store := memcache.New()
	c := cache.New(store)
	key := cache.Key("client", "c1")
	require.NoError(t, store.Set(context.Background(), key, []byte(`{"id": truncated`)))

	loader, calls := countingLoader(json.RawMessage(`{"id":"c1"}`), nil)
	_, err := c.Detail(context.Background(), key, loader)
	require.ErrorIs(t, err, cache.ErrCorruptEntry)
	// Corruption is never treated as a silent miss.
	require.Equal(t, 0, *calls)
}

func TestInvalidateThenDetailReflectsUpdate(t *testing.T) {
	store := memcache.New()
	c := cache.New(store)
	key := cache.Key("client", "c1")

	loader1, _ := countingLoader(json.RawMessage(`{"id":"c1","email":"old@b.c"}`), nil)
	_, err := c.Detail(context.Background(), key, loader1)
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(context.Background(), key))

	loader2, _ := countingLoader(json.RawMessage(`{"id":"c1","email":"new@b.c"}`), nil)
	doc, err := c.Detail(context.Background(), key, loader2)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"c1","email":"new@b.c"}`, string(doc))
}

func TestMergeUpdatesExistingDocument(t *testing.T) {
	store := memcache.New()
	c := cache.New(store)
	key := cache.Key("client", "c1")
	require.NoError(t, store.Set(context.Background(), key, []byte(`{"id":"c1","email":"old@b.c","blocked":false}`)))

	require.NoError(t, c.Merge(context.Background(), key, json.RawMessage(`{"email":"new@b.c"}`)))

	doc, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"c1","email":"new@b.c","blocked":false}`, string(doc))
}

func TestMergeOnColdKeyIsNoOp(t *testing.T) {
	store := memcache.New()
	c := cache.New(store)
	key := cache.Key("client", "cold")

	require.NoError(t, c.Merge(context.Background(), key, json.RawMessage(`{"email":"new@b.c"}`)))

	ok, err := store.Exists(context.Background(), key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBoltStoreRoundTrip(t *testing.T) {
	store, err := boltcache.NewStoreFromFile(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	key := cache.Key("client", "c1")

	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, key, []byte(`{"id":"c1","email":"a@b.c"}`)))
	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Merge(ctx, key, []byte(`{"email":"z@b.c"}`)))
	doc, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"c1","email":"z@b.c"}`, string(doc))

	// Merging a key that was never set leaves the store untouched.
	require.NoError(t, store.Merge(ctx, "client:other", []byte(`{"email":"x@b.c"}`)))
	ok, err = store.Exists(ctx, "client:other")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Delete(ctx, key))
	ok, err = store.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
}
