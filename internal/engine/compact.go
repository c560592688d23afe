package engine

import (
	"os"
	"path/filepath"
	"time"

	"github.com/lsmkit/stratum/internal/compaction"
	"github.com/lsmkit/stratum/internal/errs"
	"github.com/lsmkit/stratum/internal/sstable"
)

// Flush forces the active MemTable to an SSTable immediately, even if
// it is below the configured threshold. A no-op on an empty MemTable.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked()
}

// Compact runs size-tiered compaction to a fixed point: it repeatedly
// compacts the lowest tier holding enough tables until no tier
// qualifies, rather than a single merge pass.
func (e *Engine) Compact() error {
	for {
		did, err := e.compactOnce()
		if err != nil {
			return err
		}
		if !did {
			return nil
		}
	}
}

// compactOnce selects and merges one tier's worth of tables. It holds
// mu only for the brief windows that read or mutate e.tables, not for
// the I/O-heavy merge itself, so readers and writers are not blocked
// for the duration of a compaction.
func (e *Engine) compactOnce() (bool, error) {
	e.mu.RLock()
	infos := make([]compaction.TableInfo, len(e.tables))
	byPath := make(map[string]*tableHandle, len(e.tables))
	for i, t := range e.tables {
		infos[i] = compaction.TableInfo{Path: t.path, Size: t.size()}
		byPath[t.path] = t
	}
	e.mu.RUnlock()

	selected, tier, ok := e.compactor.SelectTier(infos)
	if !ok {
		return false, nil
	}
	outputTier := tier + 1

	selectedSet := make(map[string]bool, len(selected))
	for _, s := range selected {
		selectedSet[s.Path] = true
	}

	e.mu.RLock()
	ranked := make([]compaction.TableInfo, len(selected))
	for i, s := range selected {
		t := byPath[s.Path]
		// Rank must order newest-first (lower rank = newer); seq grows with
		// install order, so negate it to get a rank that falls with recency.
		ranked[i] = compaction.TableInfo{Path: s.Path, Size: s.Size, Rank: -int(t.seq)}
	}
	isBottom := e.isBottomTierLocked(outputTier, selectedSet)
	e.mu.RUnlock()

	outSeq := e.nextFileSeq.Add(1) - 1
	outPath := e.sstPathForTier(outputTier, outSeq)
	tmpPath := outPath + ".tmp"
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return false, errs.Wrap(errs.Io, outPath, err)
	}

	if _, _, _, err := e.compactor.Compact(tmpPath, ranked, isBottom, time.Now().Unix()); err != nil {
		return false, err
	}
	if err := e.disk.Rename(tmpPath, outPath); err != nil {
		return false, err
	}
	if err := e.disk.SyncDir(filepath.Dir(outPath)); err != nil {
		return false, err
	}

	r, err := sstable.Open(outPath)
	if err != nil {
		return false, err
	}

	inputPaths := make([]string, len(selected))
	for i, s := range selected {
		inputPaths[i] = s.Path
	}

	e.mu.Lock()
	if err := e.manifest.InstallCompaction(outPath, int(outSeq), inputPaths); err != nil {
		e.mu.Unlock()
		_ = r.Close()
		return false, err
	}
	e.tables = replaceTablesLocked(e.tables, selectedSet, &tableHandle{reader: r, path: outPath, seq: outSeq})
	e.mu.Unlock()

	for _, s := range selected {
		t := byPath[s.Path]
		_ = t.reader.Close()
		_ = os.Remove(s.Path)
	}

	e.Metrics.RecordCompaction()
	e.logger.Printf("engine: compacted %d tables into %s (tier %d, bottom=%v)", len(selected), outPath, outputTier, isBottom)
	return true, nil
}

// isBottomTierLocked reports whether no table outside this merge sits
// at outputTier or higher. If one does, that older tier could still
// hold a shadowed copy of a key this merge is about to drop, so it
// returns false and tombstones and expired entries are preserved
// rather than dropped outright.
func (e *Engine) isBottomTierLocked(outputTier int, selected map[string]bool) bool {
	for _, t := range e.tables {
		if selected[t.path] {
			continue
		}
		if e.compactor.TierForSize(t.size()) >= outputTier {
			return false
		}
	}
	return true
}

func replaceTablesLocked(tables []*tableHandle, removed map[string]bool, added *tableHandle) []*tableHandle {
	out := make([]*tableHandle, 0, len(tables)+1)
	for _, t := range tables {
		if removed[t.path] {
			continue
		}
		out = append(out, t)
	}
	out = append(out, added)
	return out
}
