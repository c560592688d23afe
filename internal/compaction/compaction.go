// Package compaction implements size-tiered compaction: SSTables are
// grouped into tiers by size, and once a tier accumulates enough tables
// it is merged into the next tier, reclaiming tombstoned and expired
// space along the way.
package compaction

import (
	"sort"

	"github.com/lsmkit/stratum/internal/errs"
	"github.com/lsmkit/stratum/internal/sstable"
	"github.com/lsmkit/stratum/internal/types"
)

const baseTierSize int64 = 4 * 1024 * 1024 // 4MB, matching the teacher domain's T0 tier

// TableInfo describes one SSTable for tier selection and merge input.
// Rank orders tables newest-first (rank 0 is newest); ties on a key
// during merge resolve in favor of the lower rank.
type TableInfo struct {
	Path   string
	Size   int64
	MinKey types.Key
	MaxKey types.Key
	Rank   int
}

// Compactor runs size-tiered compaction over a set of SSTables.
type Compactor struct {
	sizeRatio       float64
	filesPerTier    int
	indexStride     int
	bloomFPR        float64
	expectedEntries int
}

// Config configures a Compactor, matching the knobs exposed in the
// engine's top-level configuration.
type Config struct {
	TierSizeRatio          float64
	FilesPerTier           int
	SSTableIndexStride     int
	BloomFalsePositiveRate float64
	ExpectedEntriesPerSSTable int
}

// New returns a Compactor for cfg.
func New(cfg Config) *Compactor {
	return &Compactor{
		sizeRatio:       cfg.TierSizeRatio,
		filesPerTier:    cfg.FilesPerTier,
		indexStride:     cfg.SSTableIndexStride,
		bloomFPR:        cfg.BloomFalsePositiveRate,
		expectedEntries: cfg.ExpectedEntriesPerSSTable,
	}
}

// TierForSize returns the tier index a table of the given size belongs
// to: tier n covers (baseTierSize*ratio^(n-1), baseTierSize*ratio^n].
func (c *Compactor) TierForSize(size int64) int {
	if size <= 0 {
		return 0
	}
	tier := 0
	upperBound := float64(baseTierSize)
	for float64(size) > upperBound {
		tier++
		upperBound *= c.sizeRatio
	}
	return tier
}

// SelectTier groups tables by tier and returns the lowest tier holding
// at least FilesPerTier tables, along with the tier index. ok is false
// when no tier has accumulated enough tables to compact.
func (c *Compactor) SelectTier(tables []TableInfo) (selected []TableInfo, tier int, ok bool) {
	if len(tables) == 0 {
		return nil, 0, false
	}

	byTier := make(map[int][]TableInfo)
	for _, t := range tables {
		tier := c.TierForSize(t.Size)
		byTier[tier] = append(byTier[tier], t)
	}

	var levels []int
	for lvl := range byTier {
		levels = append(levels, lvl)
	}
	sort.Ints(levels)

	for _, lvl := range levels {
		if len(byTier[lvl]) >= c.filesPerTier {
			return byTier[lvl], lvl, true
		}
	}
	return nil, 0, false
}

// Compact merges tables into a single new SSTable at outputPath. When
// isBottom is true — the merged output has no older tier beneath it —
// tombstones and entries expired as of now are dropped permanently,
// applying the "newest wins first, then expiry" rule: a key's surviving
// version is picked by rank before its expiry is even considered.
func (c *Compactor) Compact(outputPath string, tables []TableInfo, isBottom bool, now int64) (entryCount uint64, minKey, maxKey types.Key, err error) {
	readers := make([]*sstable.Reader, 0, len(tables))
	defer func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}()

	sources := make([]sstable.MergeSource, 0, len(tables))
	for _, t := range tables {
		r, openErr := sstable.Open(t.Path)
		if openErr != nil {
			return 0, nil, nil, errs.Wrap(errs.Io, t.Path, openErr)
		}
		readers = append(readers, r)
		sources = append(sources, sstable.MergeSource{Iterator: r.NewIterator(), Rank: t.Rank})
	}

	totalEntries := 0
	for _, t := range tables {
		totalEntries += estimateEntries(t.Size)
	}
	if totalEntries < c.expectedEntries {
		totalEntries = c.expectedEntries
	}

	w, werr := sstable.NewWriter(outputPath, sstable.Options{
		IndexStride:            c.indexStride,
		ExpectedEntries:        totalEntries,
		BloomFalsePositiveRate: c.bloomFPR,
	})
	if werr != nil {
		return 0, nil, nil, werr
	}

	merged := sstable.NewMergeIterator(sources)
	var count uint64
	for merged.Next() {
		entry := merged.Entry()
		if isBottom {
			if entry.IsTombstone() {
				continue
			}
			if entry.ExpiredAt(now) {
				continue
			}
		}
		if appendErr := w.Append(entry); appendErr != nil {
			_ = w.Abort()
			return 0, nil, nil, appendErr
		}
		if minKey == nil {
			minKey = append(types.Key{}, entry.Key...)
		}
		maxKey = append(types.Key{}, entry.Key...)
		count++
	}

	if finishErr := w.Finish(); finishErr != nil {
		return 0, nil, nil, finishErr
	}
	return count, minKey, maxKey, nil
}

// estimateEntries guesses an entry count from a file's byte size, used
// only to size the output Bloom filter reasonably; a rough guess is fine
// since an undersized filter merely raises the false-positive rate.
func estimateEntries(size int64) int {
	const assumedEntrySize = 64
	n := int(size / assumedEntrySize)
	if n < 1 {
		n = 1
	}
	return n
}
