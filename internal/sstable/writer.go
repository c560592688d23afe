// Package sstable implements the immutable, sorted on-disk run: a data
// block of framed entries, a sparse index, a Bloom filter, and a
// self-describing footer.
package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/lsmkit/stratum/internal/bloom"
	"github.com/lsmkit/stratum/internal/errs"
	"github.com/lsmkit/stratum/internal/types"
)

// Writer builds a single SSTable file from a strictly ascending,
// duplicate-free stream of entries.
type Writer struct {
	path        string
	file        *os.File
	buf         *bufio.Writer
	offset      int64
	indexStride int
	bloomFPR    float64
	expectedN   int

	index       []indexEntry
	sinceIndex  int
	entryCount  uint64
	maxWriteSeq uint64
	minKey      types.Key
	maxKey      types.Key
	lastKey     types.Key
	hasLastKey  bool
	filter      *bloom.Filter
}

type indexEntry struct {
	key    types.Key
	offset int64
}

// Options configures a Writer.
type Options struct {
	// IndexStride is the number of data entries between sparse index
	// records. Must be >= 1.
	IndexStride int
	// ExpectedEntries sizes the Bloom filter; it need only be
	// approximate.
	ExpectedEntries int
	// BloomFalsePositiveRate is the target false-positive rate for the
	// Bloom filter.
	BloomFalsePositiveRate float64
}

// NewWriter creates path and prepares it for a single sequential pass of
// Append calls followed by Finish.
func NewWriter(path string, opts Options) (*Writer, error) {
	if opts.IndexStride < 1 {
		opts.IndexStride = 1
	}
	if opts.ExpectedEntries < 1 {
		opts.ExpectedEntries = 1
	}
	if opts.BloomFalsePositiveRate <= 0 {
		opts.BloomFalsePositiveRate = 0.01
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errs.Wrap(errs.Io, path, err)
	}

	return &Writer{
		path:        path,
		file:        file,
		buf:         bufio.NewWriter(file),
		indexStride: opts.IndexStride,
		filter:      bloom.New(opts.ExpectedEntries, opts.BloomFalsePositiveRate),
	}, nil
}

// Append writes entry to the data block. Keys must be strictly ascending;
// an out-of-order or duplicate key is rejected rather than silently
// accepted, since a well-formed SSTable can never contain either.
func (w *Writer) Append(entry types.Entry) error {
	if w.hasLastKey {
		cmp := types.CompareKeys(entry.Key, w.lastKey)
		if cmp == 0 {
			return errs.New(errs.InvalidArgument, fmt.Sprintf("duplicate key %q in sstable append stream (%s)", entry.Key, w.path))
		}
		if cmp < 0 {
			return errs.New(errs.InvalidArgument, fmt.Sprintf("out-of-order key %q follows %q (%s)", entry.Key, w.lastKey, w.path))
		}
	}

	record := types.EncodeSSTableRecord(entry)
	entryOffset := w.offset
	if _, err := w.buf.Write(record); err != nil {
		return errs.Wrap(errs.Io, w.path, err)
	}
	w.offset += int64(len(record))

	if w.sinceIndex == 0 {
		w.index = append(w.index, indexEntry{key: append(types.Key{}, entry.Key...), offset: entryOffset})
	}
	w.sinceIndex++
	if w.sinceIndex >= w.indexStride {
		w.sinceIndex = 0
	}

	w.filter.Add(entry.Key)
	w.entryCount++
	if entry.WriteSeq > w.maxWriteSeq {
		w.maxWriteSeq = entry.WriteSeq
	}
	if w.minKey == nil {
		w.minKey = append(types.Key{}, entry.Key...)
	}
	w.maxKey = append(types.Key{}, entry.Key...)
	w.lastKey = w.maxKey
	w.hasLastKey = true

	return nil
}

// Finish writes the sparse index, Bloom filter, and footer, then syncs
// and closes the file. An empty writer (no entries) still produces a
// valid, empty SSTable.
func (w *Writer) Finish() error {
	dataOffset := int64(0)
	indexOffset := w.offset

	var indexBuf bytes.Buffer
	for _, e := range w.index {
		lenBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(e.key)))
		indexBuf.Write(lenBuf)
		indexBuf.Write(e.key)
		offBuf := make([]byte, 8)
		binary.LittleEndian.PutUint64(offBuf, uint64(e.offset))
		indexBuf.Write(offBuf)
	}
	if _, err := w.buf.Write(indexBuf.Bytes()); err != nil {
		return errs.Wrap(errs.Io, w.path, err)
	}
	w.offset += int64(indexBuf.Len())

	bloomOffset := w.offset
	encodedFilter := w.filter.Encode()
	if _, err := w.buf.Write(encodedFilter); err != nil {
		return errs.Wrap(errs.Io, w.path, err)
	}
	w.offset += int64(len(encodedFilter))

	f := footer{
		dataOffset:  uint64(dataOffset),
		indexOffset: uint64(indexOffset),
		bloomOffset: uint64(bloomOffset),
		entryCount:  w.entryCount,
		maxWriteSeq: w.maxWriteSeq,
		minKey:      w.minKey,
		maxKey:      w.maxKey,
	}
	if _, err := w.buf.Write(f.encode()); err != nil {
		return errs.Wrap(errs.Io, w.path, err)
	}

	if err := w.buf.Flush(); err != nil {
		return errs.Wrap(errs.Io, w.path, err)
	}
	if err := w.file.Sync(); err != nil {
		return errs.Wrap(errs.Io, w.path, err)
	}
	return w.file.Close()
}

// Abort closes and removes a partially written file, used when a flush
// or compaction is cancelled before Finish.
func (w *Writer) Abort() error {
	_ = w.file.Close()
	return os.Remove(w.path)
}

// EntryCount returns the number of entries appended so far.
func (w *Writer) EntryCount() uint64 { return w.entryCount }
