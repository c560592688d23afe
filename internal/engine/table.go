package engine

import (
	"github.com/lsmkit/stratum/internal/sstable"
	"github.com/lsmkit/stratum/internal/types"
)

// tableHandle is one installed, immutable SSTable plus the bookkeeping
// the engine needs to order it against its siblings and feed it to the
// compactor. seq is the install sequence assigned when the table was
// added to the manifest — higher seq is newer, mirroring write_seq's
// role for MemTable entries but at table granularity.
type tableHandle struct {
	reader *sstable.Reader
	path   string
	seq    uint64
}

func (t *tableHandle) size() int64       { return t.reader.Size() }
func (t *tableHandle) minKey() types.Key { return t.reader.MinKey() }
func (t *tableHandle) maxKey() types.Key { return t.reader.MaxKey() }

// tablesNewestFirst returns a copy of tables sorted by descending seq —
// the order the read path and compactor both want: newest wins ties.
func tablesNewestFirst(tables []*tableHandle) []*tableHandle {
	out := append([]*tableHandle(nil), tables...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].seq > out[j-1].seq; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// tablesOldestFirst returns a copy of tables sorted by ascending seq —
// used by Scan to apply tables in write order before the MemTable's
// own (always-newest) entries overwrite them for shared keys.
func tablesOldestFirst(tables []*tableHandle) []*tableHandle {
	out := append([]*tableHandle(nil), tables...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].seq < out[j-1].seq; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// overlapsRange reports whether t's key span intersects [start, end).
// A nil start/end means unbounded on that side.
func (t *tableHandle) overlapsRange(start, end types.Key) bool {
	if end != nil && types.CompareKeys(t.minKey(), end) >= 0 {
		return false
	}
	if start != nil && types.CompareKeys(t.maxKey(), start) < 0 {
		return false
	}
	return true
}
