package sstable

import (
	"encoding/binary"
	"io"
	"os"
	"sort"

	"github.com/lsmkit/stratum/internal/bloom"
	"github.com/lsmkit/stratum/internal/errs"
	"github.com/lsmkit/stratum/internal/types"
)

// Reader provides point lookups and sequential iteration over an
// immutable SSTable file. Once installed, an SSTable is never mutated;
// Reader holds no write-side state.
type Reader struct {
	path   string
	file   *os.File
	size   int64
	footer footer
	index  []indexEntry
	filter *bloom.Filter
}

// Open opens path and parses its footer, sparse index, and Bloom filter.
// A corrupt footer or checksum failure fails loudly rather than
// returning a partially usable reader, per the propagation policy that
// corrupt data files require operator intervention.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.Io, path, err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errs.Wrap(errs.Io, path, err)
	}
	size := info.Size()

	if size < 4 {
		_ = file.Close()
		return nil, errs.WrapCorruption(path, size, "sstable file too small", nil)
	}

	lenBuf := make([]byte, 4)
	if _, err := file.ReadAt(lenBuf, size-4); err != nil {
		_ = file.Close()
		return nil, errs.Wrap(errs.Io, path, err)
	}
	footerLen := int64(binary.LittleEndian.Uint32(lenBuf))
	if footerLen <= 0 || footerLen > size {
		_ = file.Close()
		return nil, errs.WrapCorruption(path, size-4, "invalid footer length", nil)
	}

	footerBuf := make([]byte, footerLen)
	if _, err := file.ReadAt(footerBuf, size-footerLen); err != nil {
		_ = file.Close()
		return nil, errs.Wrap(errs.Io, path, err)
	}
	ft, err := decodeFooter(footerBuf[:len(footerBuf)-4])
	if err != nil {
		_ = file.Close()
		return nil, errs.WrapCorruption(path, size-footerLen, "bad footer", err)
	}

	footerStart := size - footerLen
	idx, err := readIndex(file, int64(ft.indexOffset), int64(ft.bloomOffset))
	if err != nil {
		_ = file.Close()
		return nil, errs.WrapCorruption(path, int64(ft.indexOffset), "bad sparse index", err)
	}

	bloomLen := footerStart - int64(ft.bloomOffset)
	bloomBuf := make([]byte, bloomLen)
	if _, err := file.ReadAt(bloomBuf, int64(ft.bloomOffset)); err != nil {
		_ = file.Close()
		return nil, errs.Wrap(errs.Io, path, err)
	}
	filter, err := bloom.Decode(bloomBuf)
	if err != nil {
		_ = file.Close()
		return nil, errs.WrapCorruption(path, int64(ft.bloomOffset), "bad bloom filter", err)
	}

	return &Reader{path: path, file: file, size: size, footer: ft, index: idx, filter: filter}, nil
}

func readIndex(file *os.File, start, end int64) ([]indexEntry, error) {
	var entries []indexEntry
	off := start
	for off < end {
		lenBuf := make([]byte, 4)
		if _, err := file.ReadAt(lenBuf, off); err != nil {
			return nil, err
		}
		off += 4
		keyLen := binary.LittleEndian.Uint32(lenBuf)
		key := make([]byte, keyLen)
		if keyLen > 0 {
			if _, err := file.ReadAt(key, off); err != nil {
				return nil, err
			}
		}
		off += int64(keyLen)
		offBuf := make([]byte, 8)
		if _, err := file.ReadAt(offBuf, off); err != nil {
			return nil, err
		}
		off += 8
		entries = append(entries, indexEntry{key: key, offset: int64(binary.LittleEndian.Uint64(offBuf))})
	}
	return entries, nil
}

// Lookup returns the entry stored for key, consulting the Bloom filter
// first to short-circuit a definite miss, then binary-searching the
// sparse index to find a starting offset, then linear-scanning the data
// block from there.
func (r *Reader) Lookup(key types.Key) (types.Entry, bool, error) {
	if !r.filter.MayContain(key) {
		return types.Entry{}, false, nil
	}
	if types.CompareKeys(key, r.footer.minKey) < 0 || types.CompareKeys(key, r.footer.maxKey) > 0 {
		return types.Entry{}, false, nil
	}

	pos := sort.Search(len(r.index), func(i int) bool {
		return types.CompareKeys(r.index[i].key, key) > 0
	})
	// pos is the first index entry strictly greater than key; the span
	// we must scan starts at pos-1 (or the start of the data block).
	startOffset := int64(r.footer.dataOffset)
	if pos > 0 {
		startOffset = r.index[pos-1].offset
	}

	sr := io.NewSectionReader(r.file, startOffset, int64(r.footer.indexOffset)-startOffset)
	for {
		entry, err := types.DecodeSSTableRecord(sr)
		if err != nil {
			if err == io.EOF {
				return types.Entry{}, false, nil
			}
			return types.Entry{}, false, errs.WrapCorruption(r.path, startOffset, "bad data record", err)
		}
		cmp := types.CompareKeys(entry.Key, key)
		if cmp == 0 {
			return entry, true, nil
		}
		if cmp > 0 {
			return types.Entry{}, false, nil
		}
	}
}

// MinKey returns the smallest key in the table.
func (r *Reader) MinKey() types.Key { return r.footer.minKey }

// MaxKey returns the largest key in the table.
func (r *Reader) MaxKey() types.Key { return r.footer.maxKey }

// EntryCount returns the number of entries stored, tombstones included.
func (r *Reader) EntryCount() uint64 { return r.footer.entryCount }

// MaxWriteSeq returns the highest WriteSeq among entries in the table,
// letting recovery determine the next write_seq to hand out without
// re-scanning every installed table's data block.
func (r *Reader) MaxWriteSeq() uint64 { return r.footer.maxWriteSeq }

// Size returns the file size in bytes.
func (r *Reader) Size() int64 { return r.size }

// Path returns the backing file path.
func (r *Reader) Path() string { return r.path }

// NewIterator returns an Iterator positioned before the first entry.
func (r *Reader) NewIterator() *Iterator {
	return &Iterator{
		r:  io.NewSectionReader(r.file, int64(r.footer.dataOffset), int64(r.footer.indexOffset)-int64(r.footer.dataOffset)),
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Iterator walks an SSTable's data block in ascending key order.
type Iterator struct {
	r     *io.SectionReader
	entry types.Entry
	err   error
	done  bool
}

// Next advances to the next entry, returning false at end of data or on
// error (check Err to distinguish the two).
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	entry, err := types.DecodeSSTableRecord(it.r)
	if err != nil {
		it.done = true
		if err != io.EOF {
			it.err = err
		}
		return false
	}
	it.entry = entry
	return true
}

// Entry returns the entry at the iterator's current position.
func (it *Iterator) Entry() types.Entry { return it.entry }

// Err returns any error encountered during iteration, excluding a clean
// end of stream.
func (it *Iterator) Err() error { return it.err }
