package sstable

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/lsmkit/stratum/internal/types"
)

const (
	magic   uint32 = 0x53535442 // "SSTB"
	version uint16 = 1
)

// footer is written once at the end of every SSTable file. Because
// minKey/maxKey are variable length, the footer is itself variable
// length; it is located from end-of-file via the trailing 4-byte
// footerLen field, which every reader seeks to first.
type footer struct {
	dataOffset  uint64
	indexOffset uint64
	bloomOffset uint64
	entryCount  uint64
	maxWriteSeq uint64
	minKey      types.Key
	maxKey      types.Key
}

func (f footer) encode() []byte {
	fixed := 4 + 2 + 8 + 8 + 8 + 8 + 8 + 4 + len(f.minKey) + 4 + len(f.maxKey)
	buf := make([]byte, fixed+4+4) // + crc32 + footerLen

	off := 0
	binary.LittleEndian.PutUint32(buf[off:], magic)
	off += 4
	binary.LittleEndian.PutUint16(buf[off:], version)
	off += 2
	binary.LittleEndian.PutUint64(buf[off:], f.dataOffset)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], f.indexOffset)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], f.bloomOffset)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], f.entryCount)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], f.maxWriteSeq)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(f.minKey)))
	off += 4
	copy(buf[off:], f.minKey)
	off += len(f.minKey)
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(f.maxKey)))
	off += 4
	copy(buf[off:], f.maxKey)
	off += len(f.maxKey)

	crc := crc32.ChecksumIEEE(buf[:off])
	binary.LittleEndian.PutUint32(buf[off:], crc)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(off+4))
	off += 4

	return buf[:off]
}

func decodeFooter(data []byte) (footer, error) {
	if len(data) < 4+2+8+8+8+8+8+4+4+4 {
		return footer{}, fmt.Errorf("sstable: footer too short: %d bytes", len(data))
	}

	off := 0
	gotMagic := binary.LittleEndian.Uint32(data[off:])
	off += 4
	if gotMagic != magic {
		return footer{}, fmt.Errorf("sstable: bad magic %#x", gotMagic)
	}
	gotVersion := binary.LittleEndian.Uint16(data[off:])
	off += 2
	if gotVersion != version {
		return footer{}, fmt.Errorf("sstable: unsupported version %d", gotVersion)
	}

	var f footer
	f.dataOffset = binary.LittleEndian.Uint64(data[off:])
	off += 8
	f.indexOffset = binary.LittleEndian.Uint64(data[off:])
	off += 8
	f.bloomOffset = binary.LittleEndian.Uint64(data[off:])
	off += 8
	f.entryCount = binary.LittleEndian.Uint64(data[off:])
	off += 8
	f.maxWriteSeq = binary.LittleEndian.Uint64(data[off:])
	off += 8

	minLen := binary.LittleEndian.Uint32(data[off:])
	off += 4
	if off+int(minLen) > len(data) {
		return footer{}, fmt.Errorf("sstable: footer minKey overruns buffer")
	}
	f.minKey = append(types.Key{}, data[off:off+int(minLen)]...)
	off += int(minLen)

	maxLen := binary.LittleEndian.Uint32(data[off:])
	off += 4
	if off+int(maxLen) > len(data) {
		return footer{}, fmt.Errorf("sstable: footer maxKey overruns buffer")
	}
	f.maxKey = append(types.Key{}, data[off:off+int(maxLen)]...)
	off += int(maxLen)

	wantCRC := binary.LittleEndian.Uint32(data[off:])
	gotCRC := crc32.ChecksumIEEE(data[:off])
	if gotCRC != wantCRC {
		return footer{}, fmt.Errorf("sstable: footer checksum mismatch: got %#x want %#x", gotCRC, wantCRC)
	}

	return f, nil
}
