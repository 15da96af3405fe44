package cache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// SpanCache keeps the values received for a key, appending on every Put.
// Eviction is based on LRU and LFU policies.
type SpanCache[ValueType interface{}] interface {
	Get(key string) ([]ValueType, error)
	Put(key string, value []ValueType) error
}

type SpanCacheImpl[ValueType interface{}] struct {
	cache *ristretto.Cache
	mu    sync.Mutex
}

// NewRistretto builds a cache bounded to maxValues values in total.
func NewRistretto(maxValues int64) (*ristretto.Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxValues * 10,
		MaxCost:            maxValues,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}
	return c, nil
}

func NewSpanCacheImpl[ValueType interface{}](cache *ristretto.Cache) *SpanCacheImpl[ValueType] {
	return &SpanCacheImpl[ValueType]{cache: cache}
}

func (sc *SpanCacheImpl[ValueType]) Get(key string) ([]ValueType, error) {
	value, found := sc.cache.Get(key)
	if !found {
		return nil, ErrKeyNotFound
	}
	typedValue, ok := value.([]ValueType)
	if !ok {
		return nil, fmt.Errorf("value not of expected type %T returned from cache when getting", value)
	}
	return typedValue, nil
}

// Put appends value to whatever is cached under key. Writes are applied before
// Put returns so a following Get observes them.
func (sc *SpanCacheImpl[ValueType]) Put(key string, value []ValueType) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	totalValue := value
	oldValue, found := sc.cache.Get(key)
	if found {
		typedOldValue, ok := oldValue.([]ValueType)
		if !ok {
			return fmt.Errorf("value not of expected type %T returned from cache when putting", oldValue)
		}
		totalValue = make([]ValueType, 0, len(typedOldValue)+len(value))
		totalValue = append(totalValue, typedOldValue...)
		totalValue = append(totalValue, value...)
	}
	if set := sc.cache.Set(key, totalValue, int64(len(totalValue))); !set {
		return ErrSetFailed
	}
	sc.cache.Wait()
	return nil
}

func (sc *SpanCacheImpl[ValueType]) Close() {
	sc.cache.Close()
}

var (
	ErrKeyNotFound = errors.New("key not found within the cache")
	ErrSetFailed   = errors.New("failed to set value in cache")
)
