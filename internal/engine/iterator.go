package engine

import (
	"sort"
	"time"

	"github.com/lsmkit/stratum/internal/types"
)

// Scan returns an Iterator walking every live key in [start, end) in
// ascending order (a nil start or end is unbounded on that side).
// Tombstones and expired entries are resolved and dropped before the
// Iterator is returned: a reader sees a consistent snapshot of the
// MemTable and SSTable set as of the call, per the concurrency
// facade's single-get/scan-snapshot guarantee.
func (e *Engine) Scan(start, end []byte) (*Iterator, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := time.Now().Unix()
	merged := make(map[string]types.Entry)

	for _, t := range tablesOldestFirst(e.tables) {
		if !t.overlapsRange(start, end) {
			continue
		}
		it := t.reader.NewIterator()
		for it.Next() {
			entry := it.Entry()
			if !inRange(entry.Key, start, end) {
				continue
			}
			merged[string(entry.Key)] = entry
		}
		if err := it.Err(); err != nil {
			return nil, err
		}
	}

	for _, entry := range e.mt.Range(start, end) {
		merged[string(entry.Key)] = entry
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]types.Entry, 0, len(keys))
	for _, k := range keys {
		entry := merged[k]
		if entry.IsTombstone() || entry.ExpiredAt(now) {
			continue
		}
		entries = append(entries, entry)
	}

	return &Iterator{entries: entries}, nil
}

func inRange(key, start, end []byte) bool {
	if start != nil && types.CompareKeys(key, start) < 0 {
		return false
	}
	if end != nil && types.CompareKeys(key, end) >= 0 {
		return false
	}
	return true
}

// Iterator walks a Scan's result set in ascending key order.
type Iterator struct {
	entries []types.Entry
	pos     int
}

// Next advances to the next entry, returning false once exhausted.
func (it *Iterator) Next() bool {
	if it.pos >= len(it.entries) {
		return false
	}
	it.pos++
	return true
}

// Key returns the current entry's key.
func (it *Iterator) Key() []byte { return it.entries[it.pos-1].Key }

// Value returns the current entry's value.
func (it *Iterator) Value() []byte { return it.entries[it.pos-1].Value }
