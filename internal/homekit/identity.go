package homekit

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/dokzlo13/stripd/internal/discovery"
	"github.com/dokzlo13/stripd/internal/storage"
)

// identityNamespace scopes identity keys to this bridge
var identityNamespace = uuid.MustParse("6f1d5a0c-3c8e-4f1b-9b7e-2a4d8c1e5f70")

// bridgeID is reserved for the bridge accessory
const bridgeID = 1

// IdentityKey derives the stable accessory key from a strip's mac address.
// Case and surrounding whitespace are ignored.
func IdentityKey(mac string) uuid.UUID {
	return uuid.NewSHA1(identityNamespace, []byte(strings.ToUpper(strings.TrimSpace(mac))))
}

// AccessoryID maps an identity key onto a HAP accessory id.
// Ids 0 and 1 are never returned.
func AccessoryID(key uuid.UUID) uint64 {
	id := binary.BigEndian.Uint64(key[:8])
	if id <= bridgeID {
		id += bridgeID + 1
	}
	return id
}

// Merge folds freshly discovered descriptors into the cached set.
// A rediscovered strip replaces its cached descriptor; strips that were not
// seen this time keep their cached entry. Duplicate results for one mac
// collapse, the last one winning. The result is ordered by key.
func Merge(cached []storage.CachedAccessory, found []discovery.Descriptor) (merged []storage.CachedAccessory, added int) {
	byKey := make(map[string]storage.CachedAccessory, len(cached)+len(found))
	for _, c := range cached {
		byKey[c.Key] = c
	}

	for _, d := range found {
		key := IdentityKey(d.MAC).String()
		if _, ok := byKey[key]; !ok {
			added++
		}
		byKey[key] = storage.CachedAccessory{Key: key, Descriptor: d}
	}

	merged = make([]storage.CachedAccessory, 0, len(byKey))
	for _, c := range byKey {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Key < merged[j].Key })
	return merged, added
}
