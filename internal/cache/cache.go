package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"partsledger/internal/domain"
)

// ProductCache is a read-through cache for single product lookups. Misses
// and cache failures fall back to the repository.
//
// Set must not replace a cached product with an older version, and must not
// bring back a product removed through Invalidate. Writers store the product
// they just committed; deletes go through Invalidate.
type ProductCache interface {
	Get(ctx context.Context, id string) (*domain.Product, bool, error)
	Set(ctx context.Context, product *domain.Product, ttl time.Duration) error
	Invalidate(ctx context.Context, ids ...string) error
}

// markerTTL only has to outlive a request that read the product before it
// was deleted.
const markerTTL = time.Minute

var deletionMarker = []byte(`{"deleted":true}`)

func isDeletionMarker(val []byte) bool {
	return bytes.Equal(val, deletionMarker)
}

// Replaces reports whether a product at version may overwrite the cached
// payload current. Unreadable payloads are always replaced.
func Replaces(current []byte, version int64) bool {
	if isDeletionMarker(current) {
		return false
	}
	var cached struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(current, &cached); err != nil {
		return true
	}
	return version >= cached.Version
}

// Locker serialises writers on one entity across server instances. The
// returned release func must be called once the write is finished.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

type NoopProductCache struct{}

func (NoopProductCache) Get(_ context.Context, _ string) (*domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopProductCache) Set(_ context.Context, _ *domain.Product, _ time.Duration) error {
	return nil
}

func (NoopProductCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}

// NoopLocker is used when redis is not configured. The repositories still
// guarantee atomicity on their own.
type NoopLocker struct{}

func (NoopLocker) Lock(_ context.Context, _ string) (func(), error) {
	return func() {}, nil
}

func ProductKey(id string) string {
	return "product:" + id
}

func InvoiceKey(id string) string {
	return "invoice:" + id
}

func ReturnKey(id string) string {
	return "return:" + id
}
