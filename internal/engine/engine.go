// Package engine orchestrates the write path (WAL append, MemTable
// update, threshold-triggered flush), the read path (MemTable, then
// SSTables newest to oldest), and recovery on open.
package engine

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lsmkit/stratum/internal/compaction"
	"github.com/lsmkit/stratum/internal/config"
	"github.com/lsmkit/stratum/internal/diskmanager"
	"github.com/lsmkit/stratum/internal/errs"
	"github.com/lsmkit/stratum/internal/manifest"
	"github.com/lsmkit/stratum/internal/memtable"
	"github.com/lsmkit/stratum/internal/metrics"
	"github.com/lsmkit/stratum/internal/sstable"
	"github.com/lsmkit/stratum/internal/ttl"
	"github.com/lsmkit/stratum/internal/types"
	"github.com/lsmkit/stratum/internal/wal"
)

const lockFileName = "LOCK"

// Engine is the storage engine's single-process core. It owns the
// active MemTable, the WAL segment backing it, the installed SSTable
// set, and the background workers that flush and compact them. It is
// safe for concurrent use; callers normally reach it through the
// single-writer/many-readers facade one level up.
type Engine struct {
	dataDir string
	walDir  string
	sstDir  string
	cfg     config.Config

	mu sync.RWMutex // guards mt, wal, tables, ttlIndex together

	mt       *memtable.Memtable
	w        *wal.WAL
	tables   []*tableHandle
	ttlIndex *ttl.Index

	manifest  *manifest.Manifest
	compactor *compaction.Compactor
	disk      diskmanager.DiskManager
	Metrics   *metrics.Metrics

	nextWriteSeq atomic.Uint64
	nextFileSeq  atomic.Uint64

	lockPath string
	logger   *log.Logger

	flushC   chan struct{}
	compactC chan struct{}
	stopc    chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// Open acquires dataDir exclusively, recovers engine state from the
// manifest, installed SSTables, and WAL, and returns a ready Engine.
// logger may be nil, in which case recovery and background-worker
// events are discarded.
func Open(dataDir string, cfg config.Config, logger *log.Logger) (*Engine, error) {
	cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errs.New(errs.InvalidArgument, err.Error())
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	walDir := filepath.Join(dataDir, "wal")
	sstDir := filepath.Join(dataDir, "sst")
	for _, d := range []string{dataDir, walDir, sstDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, errs.Wrap(errs.Io, d, err)
		}
	}

	disk := diskmanager.NewDiskManager()

	lockPath := filepath.Join(dataDir, lockFileName)
	if err := acquireLock(lockPath); err != nil {
		return nil, err
	}

	e := &Engine{
		dataDir:   dataDir,
		walDir:    walDir,
		sstDir:    sstDir,
		cfg:       cfg,
		mt:        memtable.New(),
		ttlIndex:  ttl.New(),
		disk:      disk,
		Metrics:   metrics.New(time.Now()),
		lockPath:  lockPath,
		logger:    logger,
		flushC:    make(chan struct{}, 1),
		compactC:  make(chan struct{}, 1),
		stopc:     make(chan struct{}),
		compactor: compaction.New(compaction.Config{
			TierSizeRatio:             float64(cfg.CompactionTierSizeRatio),
			FilesPerTier:              cfg.CompactionFilesPerTier,
			SSTableIndexStride:        cfg.SSTableIndexStride,
			BloomFalsePositiveRate:    cfg.BloomFalsePositiveRate,
			ExpectedEntriesPerSSTable: cfg.BloomExpectedEntriesPerSSTable,
		}),
	}

	if err := e.recover(); err != nil {
		_ = releaseLock(lockPath)
		return nil, err
	}

	if cfg.BackgroundCompaction {
		e.wg.Add(3)
		go e.flushWorker()
		go e.compactWorker()
		go e.ttlSweepWorker()
	}

	return e, nil
}

func acquireLock(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return errs.ErrAlreadyOpen
		}
		return errs.Wrap(errs.Io, path, err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s\n%d\n", uuid.New().String(), os.Getpid())
	if err != nil {
		return errs.Wrap(errs.Io, path, err)
	}
	return f.Sync()
}

func releaseLock(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.Io, path, err)
	}
	return nil
}

// recover reads the manifest, opens every live SSTable, reconciles the
// on-disk .sst tree against the manifest's live set (deleting orphans
// left by a crash between a table's rename-into-place and its manifest
// record), then replays the WAL into a fresh MemTable. write_seq is
// recovered as the highest WriteSeq seen in any installed SSTable, plus
// one per WAL record replayed after it (WAL records don't carry
// WriteSeq on disk — spec's literal WAL framing omits it — so replayed
// entries are renumbered positionally, in file order).
func (e *Engine) recover() error {
	m, liveEntries, err := manifest.Open(e.dataDir)
	if err != nil {
		return err
	}
	e.manifest = m

	live := make(map[string]uint64, len(liveEntries))
	for _, ent := range liveEntries {
		live[ent.Path] = uint64(ent.Rank)
	}

	onDisk, err := e.listSSTableFiles()
	if err != nil {
		return err
	}

	var maxFileSeq uint64
	var maxWriteSeq uint64
	for _, path := range onDisk {
		seq, ok := live[path]
		if !ok {
			e.logger.Printf("engine: removing orphaned sstable %s (not in manifest)", path)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return errs.Wrap(errs.Io, path, err)
			}
			continue
		}
		r, err := sstable.Open(path)
		if err != nil {
			return err
		}
		e.tables = append(e.tables, &tableHandle{reader: r, path: path, seq: seq})
		if seq > maxFileSeq {
			maxFileSeq = seq
		}
		if r.MaxWriteSeq() > maxWriteSeq {
			maxWriteSeq = r.MaxWriteSeq()
		}
	}
	for path, seq := range live {
		if _, err := os.Stat(path); err != nil {
			return errs.WrapCorruption(path, 0, "manifest references missing sstable", err)
		}
		if seq > maxFileSeq {
			maxFileSeq = seq
		}
	}

	walPath, walSeq, err := e.currentOrNewWALPath()
	if err != nil {
		return err
	}
	if walSeq > maxFileSeq {
		maxFileSeq = walSeq
	}

	w, err := wal.Open(walPath, e.cfg.SyncOnWrite)
	if err != nil {
		return err
	}
	e.w = w

	entries, _, err := w.Replay()
	if err != nil {
		return err
	}

	nextSeq := maxWriteSeq + 1
	for i, entry := range entries {
		entry.WriteSeq = nextSeq + uint64(i)
		e.mt.Upsert(entry)
	}
	e.nextWriteSeq.Store(nextSeq + uint64(len(entries)))
	e.nextFileSeq.Store(maxFileSeq + 1)

	return nil
}

// listSSTableFiles walks dataDir/sst/T*/ for .sst files.
func (e *Engine) listSSTableFiles() ([]string, error) {
	tierDirs, err := os.ReadDir(e.sstDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.Io, e.sstDir, err)
	}

	var out []string
	for _, td := range tierDirs {
		if !td.IsDir() {
			continue
		}
		dir := filepath.Join(e.sstDir, td.Name())
		names, err := e.disk.List(dir, ".sst")
		if err != nil {
			return nil, errs.Wrap(errs.Io, dir, err)
		}
		for _, n := range names {
			out = append(out, filepath.Join(dir, n))
		}
	}
	sort.Strings(out)
	return out, nil
}

// currentOrNewWALPath picks the highest-numbered existing WAL segment
// under dataDir/wal, or allocates 000001.log if none exists. Under
// normal operation there is at most one live segment: a prior segment
// is retired as soon as its MemTable generation is durably flushed.
func (e *Engine) currentOrNewWALPath() (path string, seq uint64, err error) {
	names, err := e.disk.List(e.walDir, ".log")
	if err != nil {
		return "", 0, errs.Wrap(errs.Io, e.walDir, err)
	}
	var best string
	var bestSeq uint64
	for _, n := range names {
		s, ok := parseFileSeq(n, ".log")
		if !ok {
			continue
		}
		if s >= bestSeq {
			bestSeq = s
			best = n
		}
	}
	if best != "" {
		return filepath.Join(e.walDir, best), bestSeq, nil
	}
	return filepath.Join(e.walDir, walFileName(1)), 1, nil
}

func walFileName(seq uint64) string  { return fmt.Sprintf("%06d.log", seq) }
func sstFileName(seq uint64) string  { return fmt.Sprintf("%06d.sst", seq) }

func parseFileSeq(name, suffix string) (uint64, bool) {
	if !strings.HasSuffix(name, suffix) {
		return 0, false
	}
	base := strings.TrimSuffix(name, suffix)
	n, err := strconv.ParseUint(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (e *Engine) sstPathForTier(tier int, seq uint64) string {
	return filepath.Join(e.sstDir, fmt.Sprintf("T%d", tier), sstFileName(seq))
}

// Put upserts key→value, optionally with an absolute expiry. An empty
// key is rejected.
func (e *Engine) Put(key, value []byte, expiry *int64) error {
	if len(key) == 0 {
		return errs.New(errs.InvalidArgument, "key must not be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return errs.New(errs.Internal, "engine is closed")
	}

	seq := e.nextWriteSeq.Add(1) - 1
	entry := types.Entry{Key: append(types.Key{}, key...), Kind: types.Put, Value: append(types.Value{}, value...), WriteSeq: seq, Expiry: expiry}

	if err := e.w.Append(entry); err != nil {
		return err
	}
	if e.cfg.SyncOnWrite {
		e.Metrics.RecordWALFsync()
	}

	e.mt.Upsert(entry)
	if expiry != nil {
		e.ttlIndex.SetExpiry(entry.Key, *expiry)
	} else {
		e.ttlIndex.RemoveExpiry(entry.Key)
	}
	e.Metrics.RecordPut(len(key) + len(value))

	if e.mt.ByteSize() >= e.cfg.MemtableFlushThresholdBytes {
		e.triggerFlushLocked()
	}
	return nil
}

// Delete tombstones key.
func (e *Engine) Delete(key []byte) error {
	if len(key) == 0 {
		return errs.New(errs.InvalidArgument, "key must not be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return errs.New(errs.Internal, "engine is closed")
	}

	seq := e.nextWriteSeq.Add(1) - 1
	entry := types.Entry{Key: append(types.Key{}, key...), Kind: types.Tombstone, WriteSeq: seq}

	if err := e.w.Append(entry); err != nil {
		return err
	}
	if e.cfg.SyncOnWrite {
		e.Metrics.RecordWALFsync()
	}

	e.mt.Upsert(entry)
	e.ttlIndex.RemoveExpiry(entry.Key)
	e.Metrics.RecordDelete(len(key))

	if e.mt.ByteSize() >= e.cfg.MemtableFlushThresholdBytes {
		e.triggerFlushLocked()
	}
	return nil
}

// Get returns the live value for key. found is false for a missing,
// tombstoned, or expired key; err is non-nil only for an underlying
// I/O or corruption failure.
func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	if len(key) == 0 {
		return nil, false, errs.New(errs.InvalidArgument, "key must not be empty")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	now := time.Now().Unix()

	if entry, ok := e.mt.Get(key); ok {
		return e.resolveLocked(entry, now)
	}

	for _, t := range tablesNewestFirst(e.tables) {
		entry, found, err := t.reader.Lookup(key)
		if err != nil {
			return nil, false, err
		}
		if found {
			return e.resolveLocked(entry, now)
		}
	}

	e.Metrics.RecordGetMiss()
	return nil, false, nil
}

func (e *Engine) resolveLocked(entry types.Entry, now int64) ([]byte, bool, error) {
	if entry.IsTombstone() || entry.ExpiredAt(now) {
		e.Metrics.RecordGetMiss()
		return nil, false, nil
	}
	e.Metrics.RecordGetHit(len(entry.Value))
	return entry.Value, true, nil
}

// TTL returns the time remaining before key expires, or (0, false) if
// key does not exist, is tombstoned, has no expiry, or has already expired.
func (e *Engine) TTL(key []byte) (time.Duration, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := time.Now().Unix()

	entry, ok := e.mt.Get(key)
	if !ok {
		for _, t := range tablesNewestFirst(e.tables) {
			if found, hit, err := t.reader.Lookup(key); err == nil && hit {
				entry, ok = found, true
				break
			}
		}
	}
	if !ok || entry.IsTombstone() || entry.Expiry == nil || entry.ExpiredAt(now) {
		return 0, false
	}
	remaining := *entry.Expiry - now
	if remaining < 0 {
		remaining = 0
	}
	return time.Duration(remaining) * time.Second, true
}

// Close stops background workers, flushes any live MemTable, syncs the
// data directory, and releases the process lock.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(e.stopc)
	e.wg.Wait()

	e.mu.Lock()
	if e.mt.Len() > 0 {
		if err := e.flushLocked(); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	if err := e.w.Close(); err != nil {
		e.mu.Unlock()
		return err
	}
	if err := e.manifest.Close(); err != nil {
		e.mu.Unlock()
		return err
	}
	for _, t := range e.tables {
		_ = t.reader.Close()
	}
	e.mu.Unlock()

	if err := e.disk.SyncDir(e.dataDir); err != nil {
		return err
	}
	return releaseLock(e.lockPath)
}
