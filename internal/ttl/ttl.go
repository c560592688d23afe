// Package ttl maintains a secondary index from key to absolute
// expiration instant, kept beside the MemTable so a background sweep
// can find keys that are due to expire. Reads and compaction do not
// consult it; they check each entry's own Expiry.
package ttl

import (
	"github.com/lsmkit/stratum/internal/types"
)

// Index maps keys to their expiration instant (unix seconds) and
// maintains a reverse index from instant to the set of keys expiring
// then, so a sweep can find everything due to expire by a given time
// without scanning every key.
//
// Not safe for concurrent use; the engine serializes access the same way
// it does for the MemTable.
type Index struct {
	forward map[string]int64
	reverse map[int64]map[string]struct{}
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		forward: make(map[string]int64),
		reverse: make(map[int64]map[string]struct{}),
	}
}

// SetExpiry records that key expires at the given absolute unix-second
// instant, replacing any prior expiry for that key.
func (ix *Index) SetExpiry(key types.Key, expiresAt int64) {
	ix.RemoveExpiry(key)
	ix.forward[string(key)] = expiresAt
	if ix.reverse[expiresAt] == nil {
		ix.reverse[expiresAt] = make(map[string]struct{})
	}
	ix.reverse[expiresAt][string(key)] = struct{}{}
}

// RemoveExpiry makes key persistent again, if it carried a TTL.
func (ix *Index) RemoveExpiry(key types.Key) {
	k := string(key)
	expiresAt, ok := ix.forward[k]
	if !ok {
		return
	}
	delete(ix.forward, k)
	if set := ix.reverse[expiresAt]; set != nil {
		delete(set, k)
		if len(set) == 0 {
			delete(ix.reverse, expiresAt)
		}
	}
}

// Expiry returns key's absolute expiry instant, if it has one.
func (ix *Index) Expiry(key types.Key) (int64, bool) {
	expiresAt, ok := ix.forward[string(key)]
	return expiresAt, ok
}

// IsExpired reports whether key has a TTL and it has passed as of now.
func (ix *Index) IsExpired(key types.Key, now int64) bool {
	expiresAt, ok := ix.forward[string(key)]
	return ok && now >= expiresAt
}

// RemainingTTL returns the seconds remaining before key expires, or
// (0, false) if key has no TTL. A key already past expiry returns (0, true).
func (ix *Index) RemainingTTL(key types.Key, now int64) (int64, bool) {
	expiresAt, ok := ix.forward[string(key)]
	if !ok {
		return 0, false
	}
	if now >= expiresAt {
		return 0, true
	}
	return expiresAt - now, true
}

// CollectExpired returns every key whose TTL has passed as of now, for
// batch cleanup by a background sweep.
func (ix *Index) CollectExpired(now int64) []types.Key {
	var expired []types.Key
	for expiresAt, set := range ix.reverse {
		if expiresAt > now {
			continue
		}
		for k := range set {
			expired = append(expired, types.Key(k))
		}
	}
	return expired
}

// PurgeExpired removes every expired entry from the index and returns
// how many were purged.
func (ix *Index) PurgeExpired(now int64) int {
	expired := ix.CollectExpired(now)
	for _, k := range expired {
		ix.RemoveExpiry(k)
	}
	return len(expired)
}

// Len returns the number of keys currently carrying a TTL.
func (ix *Index) Len() int {
	return len(ix.forward)
}
