// Package wal implements the write-ahead log: an append-only, checksummed
// record stream written ahead of every MemTable mutation, replayed on
// recovery to re-establish state lost when the process last stopped.
package wal

import (
	"bufio"
	"bytes"
	"io"
	"log"
	"os"
	"sync"

	"github.com/lsmkit/stratum/internal/errs"
	"github.com/lsmkit/stratum/internal/types"
)

// WAL is a single append-only log segment. Its methods serialize on an
// internal mutex; the engine also serializes writers through its own lock.
type WAL struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer
	size int64
	sync bool
}

// Open opens or creates the log segment at path, positioned for appending.
// When sync is true, Append fsyncs the file after every write, per the
// write-path invariant that WAL durability precedes MemTable mutation
// visibility. When false, Append only flushes to the OS page cache,
// trading that durability guarantee for write throughput.
func Open(path string, sync bool) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, errs.Wrap(errs.Io, path, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errs.Wrap(errs.Io, path, err)
	}
	return &WAL{
		path: path,
		file: file,
		buf:  bufio.NewWriter(file),
		size: info.Size(),
		sync: sync,
	}, nil
}

// Append writes entry's record, fsyncing it before returning if the
// segment was opened with sync enabled.
func (w *WAL) Append(entry types.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	record := types.EncodeRecord(entry)
	if _, err := w.buf.Write(record); err != nil {
		return errs.Wrap(errs.Io, w.path, err)
	}
	if err := w.buf.Flush(); err != nil {
		return errs.Wrap(errs.Io, w.path, err)
	}
	if w.sync {
		if err := w.file.Sync(); err != nil {
			return errs.Wrap(errs.Io, w.path, err)
		}
	}
	w.size += int64(len(record))
	return nil
}

// Synced reports whether this segment fsyncs on every Append.
func (w *WAL) Synced() bool {
	return w.sync
}

// Size returns the segment's current length in bytes.
func (w *WAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Path returns the filesystem path backing this segment.
func (w *WAL) Path() string {
	return w.path
}

// Replay reads every well-formed record from the start of the segment, in
// file order. A torn trailing record — a header or body that stops
// mid-way, or fails its checksum — is the expected outcome of a crash
// mid-write: replay stops there, physically truncates the file to the end
// of the last valid record, and returns normally. truncatedAt is the
// segment's length after truncation (equal to its original length if no
// tear was found).
func (w *WAL) Replay() (entries []types.Entry, truncatedAt int64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		return nil, 0, errs.Wrap(errs.Io, w.path, err)
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, 0, errs.Wrap(errs.Io, w.path, err)
	}

	r := bytes.NewReader(data)
	var validLen int64
	for {
		offsetBefore := int64(len(data)) - int64(r.Len())
		entry, decodeErr := types.DecodeRecord(r)
		if decodeErr != nil {
			if decodeErr == io.EOF {
				validLen = offsetBefore
				break
			}
			log.Printf("wal: torn or corrupt record at offset %d in %s, truncating", offsetBefore, w.path)
			validLen = offsetBefore
			break
		}
		entries = append(entries, entry)
		validLen = int64(len(data)) - int64(r.Len())
	}

	if validLen < int64(len(data)) {
		if err := w.file.Truncate(validLen); err != nil {
			return nil, 0, errs.Wrap(errs.Io, w.path, err)
		}
		if _, err := w.file.Seek(validLen, io.SeekStart); err != nil {
			return nil, 0, errs.Wrap(errs.Io, w.path, err)
		}
		if err := w.file.Sync(); err != nil {
			return nil, 0, errs.Wrap(errs.Io, w.path, err)
		}
	}
	w.size = validLen
	w.buf = bufio.NewWriter(w.file)

	return entries, validLen, nil
}

// Close flushes, syncs, and closes the segment file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		return errs.Wrap(errs.Io, w.path, err)
	}
	if err := w.file.Sync(); err != nil {
		return errs.Wrap(errs.Io, w.path, err)
	}
	return w.file.Close()
}

// Retire closes the segment and unlinks it, per the rotation protocol:
// once a MemTable has been durably flushed to an SSTable, its WAL segment
// is closed, fsynced, and deleted.
func (w *WAL) Retire() error {
	if err := w.Close(); err != nil {
		return err
	}
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.Io, w.path, err)
	}
	return nil
}
