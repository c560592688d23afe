package wal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lsmkit/stratum/internal/types"
	"github.com/lsmkit/stratum/internal/wal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putEntry(key, value string) types.Entry {
	return types.Entry{Key: []byte(key), Kind: types.Put, Value: []byte(value)}
}

func deleteEntry(key string) types.Entry {
	return types.Entry{Key: []byte(key), Kind: types.Tombstone}
}

func TestWAL_AppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.log")

	w, err := wal.Open(path, true)
	require.NoError(t, err)

	require.NoError(t, w.Append(putEntry("key1", "value1")))
	require.NoError(t, w.Append(putEntry("key2", "value2")))
	require.NoError(t, w.Append(deleteEntry("key1")))
	require.NoError(t, w.Close())

	w, err = wal.Open(path, true)
	require.NoError(t, err)
	defer w.Close()

	entries, truncatedAt, err := w.Replay()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "key1", string(entries[0].Key))
	assert.Equal(t, types.Put, entries[0].Kind)
	assert.Equal(t, "key2", string(entries[1].Key))
	assert.Equal(t, types.Tombstone, entries[2].Kind)

	info, statErr := os.Stat(path)
	require.NoError(t, statErr)
	assert.Equal(t, info.Size(), truncatedAt)
}

func TestWAL_EmptyReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.log")

	w, err := wal.Open(path, true)
	require.NoError(t, err)
	defer w.Close()

	entries, truncatedAt, err := w.Replay()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, int64(0), truncatedAt)
}

// TestWAL_TornTailTruncation covers P6: a valid prefix followed by garbage
// bytes must replay to exactly the valid prefix and the file must be
// truncated to that prefix's length.
func TestWAL_TornTailTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "torn.log")

	w, err := wal.Open(path, true)
	require.NoError(t, err)
	require.NoError(t, w.Append(putEntry("key1", "value1")))
	require.NoError(t, w.Close())

	validLen, statErr := os.Stat(path)
	require.NoError(t, statErr)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xde, 0xad, 0xbe})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w, err = wal.Open(path, true)
	require.NoError(t, err)
	defer w.Close()

	entries, truncatedAt, err := w.Replay()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "key1", string(entries[0].Key))
	assert.Equal(t, validLen.Size(), truncatedAt)

	info, statErr := os.Stat(path)
	require.NoError(t, statErr)
	assert.Equal(t, validLen.Size(), info.Size(), "file must be truncated back to the valid prefix")
}

// TestWAL_CorruptedRecordTruncates covers the CRC-mismatch half of P6: a
// bit flip inside an otherwise well-framed record is treated the same as
// a torn tail.
func TestWAL_CorruptedRecordTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.log")

	w, err := wal.Open(path, true)
	require.NoError(t, err)
	require.NoError(t, w.Append(putEntry("key1", "value1")))
	require.NoError(t, w.Close())

	firstLen, statErr := os.Stat(path)
	require.NoError(t, statErr)

	w, err = wal.Open(path, true)
	require.NoError(t, err)
	require.NoError(t, w.Append(putEntry("key2", "value2")))
	require.NoError(t, w.Close())

	// Flip a byte inside the second record's key, which should trip its
	// CRC without disturbing the record framing.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[firstLen.Size()+9] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0644))

	w, err = wal.Open(path, true)
	require.NoError(t, err)
	defer w.Close()

	entries, truncatedAt, err := w.Replay()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "key1", string(entries[0].Key))
	assert.Equal(t, firstLen.Size(), truncatedAt)
}

func TestWAL_Retire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retire.log")

	w, err := wal.Open(path, true)
	require.NoError(t, err)
	require.NoError(t, w.Append(putEntry("key1", "value1")))

	require.NoError(t, w.Retire())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestWAL_SyncDisabledStillPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unsynced.log")

	w, err := wal.Open(path, false)
	require.NoError(t, err)
	assert.False(t, w.Synced())
	require.NoError(t, w.Append(putEntry("key1", "value1")))
	require.NoError(t, w.Close())

	w, err = wal.Open(path, false)
	require.NoError(t, err)
	defer w.Close()

	entries, _, err := w.Replay()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "key1", string(entries[0].Key))
}

func TestWAL_ReopeningAppendsRatherThanOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.log")

	w, err := wal.Open(path, true)
	require.NoError(t, err)
	require.NoError(t, w.Append(putEntry("key1", "value1")))
	require.NoError(t, w.Close())

	w, err = wal.Open(path, true)
	require.NoError(t, err)
	require.NoError(t, w.Append(putEntry("key2", "value2")))
	require.NoError(t, w.Close())

	w, err = wal.Open(path, true)
	require.NoError(t, err)
	defer w.Close()

	entries, _, err := w.Replay()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "key1", string(entries[0].Key))
	assert.Equal(t, "key2", string(entries[1].Key))
}
