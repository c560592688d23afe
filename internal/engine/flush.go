package engine

import (
	"os"
	"path/filepath"

	"github.com/lsmkit/stratum/internal/errs"
	"github.com/lsmkit/stratum/internal/memtable"
	"github.com/lsmkit/stratum/internal/sstable"
	"github.com/lsmkit/stratum/internal/wal"
)

// triggerFlushLocked is called with mu held for writing, right after a
// write pushed the MemTable past its flush threshold. With background
// workers running it only signals flushC — the flush itself happens on
// flushWorker's goroutine, off the write path. Without background
// workers it flushes synchronously, matching spec's "simplest variant".
func (e *Engine) triggerFlushLocked() {
	if e.cfg.BackgroundCompaction {
		select {
		case e.flushC <- struct{}{}:
		default:
		}
		return
	}
	_ = e.flushLocked()
}

// flushLocked seals the active MemTable, writes it to a new SSTable
// under T0, installs the table via the manifest, rotates the WAL, and
// clears the MemTable. Callers must hold mu for writing. The sealed
// MemTable's entries remain visible (nothing else touches e.mt until
// this returns) until the new SSTable is durably installed.
func (e *Engine) flushLocked() error {
	entries := e.mt.DrainSorted()
	if len(entries) == 0 {
		return nil
	}

	seq := e.nextFileSeq.Add(1) - 1
	finalPath := e.sstPathForTier(0, seq)
	tmpPath := finalPath + ".tmp"
	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return errs.Wrap(errs.Io, finalPath, err)
	}

	w, err := sstable.NewWriter(tmpPath, sstable.Options{
		IndexStride:            e.cfg.SSTableIndexStride,
		ExpectedEntries:        len(entries),
		BloomFalsePositiveRate: e.cfg.BloomFalsePositiveRate,
	})
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := w.Append(entry); err != nil {
			_ = w.Abort()
			return err
		}
	}
	if err := w.Finish(); err != nil {
		return err
	}
	if err := e.disk.Rename(tmpPath, finalPath); err != nil {
		return err
	}
	if err := e.disk.SyncDir(filepath.Dir(finalPath)); err != nil {
		return err
	}

	if err := e.manifest.Add(finalPath, int(seq)); err != nil {
		return err
	}

	r, err := sstable.Open(finalPath)
	if err != nil {
		return err
	}
	e.tables = append(e.tables, &tableHandle{reader: r, path: finalPath, seq: seq})

	oldWAL := e.w
	newWALPath, _, err := e.nextWALPath()
	if err != nil {
		return err
	}
	newWAL, err := wal.Open(newWALPath, e.cfg.SyncOnWrite)
	if err != nil {
		return err
	}
	e.w = newWAL
	if err := oldWAL.Retire(); err != nil {
		return err
	}

	e.mt = memtable.New()
	e.Metrics.RecordFlush()
	e.logger.Printf("engine: flushed %d entries to %s", len(entries), finalPath)
	return nil
}

func (e *Engine) nextWALPath() (string, uint64, error) {
	seq := e.nextFileSeq.Add(1) - 1
	return filepath.Join(e.walDir, walFileName(seq)), seq, nil
}
