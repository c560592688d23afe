// Package memtable implements an in-memory ordered buffer of recently
// written entries, backed by a skip list, sitting ahead of the SSTable
// layer on both the read and write paths.
package memtable

import (
	"github.com/lsmkit/stratum/internal/types"
)

// entryOverhead approximates the fixed per-entry cost beyond key and value
// bytes: the WriteSeq counter, the optional Expiry pointer, and skiplist
// forward-pointer slots. Used so ByteSize tracks something close to the
// memtable's real memory footprint rather than just the payload size.
const entryOverhead = 32

// Memtable is an ordered, in-memory map from key to Entry. It is not safe
// for concurrent use; callers serialize access (the engine's write lock).
type Memtable struct {
	sl       *skipList
	byteSize int
}

// New returns an empty Memtable.
func New() *Memtable {
	return &Memtable{sl: newSkipList()}
}

// Upsert inserts entry, or replaces the prior entry sharing its key. Both
// live values and tombstones are stored as first-class entries so a
// delete of a key not yet flushed is recorded, not merely removed.
func (m *Memtable) Upsert(entry types.Entry) {
	old, existed := m.sl.put(entry)
	m.byteSize += entrySize(entry)
	if existed {
		m.byteSize -= entrySize(old)
	}
}

// Get returns the raw entry stored for key, which may be a tombstone or
// an expired-but-not-yet-purged entry; callers interpret Kind and Expiry.
func (m *Memtable) Get(key types.Key) (types.Entry, bool) {
	return m.sl.get(key)
}

// DrainSorted returns every entry currently held, in ascending key order,
// for writing out as a flushed SSTable run. It does not clear the table;
// the engine replaces the whole Memtable once the flush is durable.
func (m *Memtable) DrainSorted() []types.Entry {
	return m.sl.entriesInOrder()
}

// Range returns entries with start <= key < end in ascending order. A nil
// end means unbounded. Tombstones and expired entries are included raw;
// callers filter them the same way they do for Get.
func (m *Memtable) Range(start, end types.Key) []types.Entry {
	return m.sl.rangeEntries(start, end)
}

// ByteSize approximates the memtable's memory footprint in bytes.
func (m *Memtable) ByteSize() int {
	return m.byteSize
}

// Len returns the number of distinct keys held, tombstones included.
func (m *Memtable) Len() int {
	return m.sl.size
}

// Clear discards all entries, restoring the memtable to its initial state.
func (m *Memtable) Clear() {
	m.sl.clear()
	m.byteSize = 0
}

func entrySize(e types.Entry) int {
	return len(e.Key) + len(e.Value) + entryOverhead
}
