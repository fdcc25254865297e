package storage

import (
	"sort"

	"github.com/dokzlo13/stripd/internal/discovery"
)

// KindAccessory is the resource kind used for cached accessories
const KindAccessory = "accessory"

// CachedAccessory is a descriptor remembered between runs
type CachedAccessory struct {
	Key        string               `json:"key"`
	Descriptor discovery.Descriptor `json:"descriptor"`
}

// AccessoryCache persists descriptors keyed by identity key, so strips that
// are offline at startup still get an accessory.
type AccessoryCache struct {
	store *TypedStore[CachedAccessory]
}

// NewAccessoryCache creates an accessory cache over store
func NewAccessoryCache(store *Store) *AccessoryCache {
	return &AccessoryCache{store: NewTypedStore[CachedAccessory](store, KindAccessory)}
}

// Restore returns every cached accessory ordered by key
func (c *AccessoryCache) Restore() ([]CachedAccessory, error) {
	all, err := c.store.All()
	if err != nil {
		return nil, err
	}

	out := make([]CachedAccessory, 0, len(all))
	for _, a := range all {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Save stores or replaces a cached accessory
func (c *AccessoryCache) Save(a CachedAccessory) error {
	return c.store.Set(a.Key, a)
}

// Forget removes a cached accessory
func (c *AccessoryCache) Forget(key string) error {
	return c.store.Delete(key)
}
