package memtable_test

import (
	"testing"

	"github.com/lsmkit/stratum/internal/memtable"
	"github.com/lsmkit/stratum/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putEntry(mt *memtable.Memtable, key, value string, seq uint64) {
	mt.Upsert(types.Entry{
		Key:      []byte(key),
		Kind:     types.Put,
		Value:    []byte(value),
		WriteSeq: seq,
	})
}

func deleteEntry(mt *memtable.Memtable, key string, seq uint64) {
	mt.Upsert(types.Entry{
		Key:      []byte(key),
		Kind:     types.Tombstone,
		WriteSeq: seq,
	})
}

func TestMemtable_PutAndGet(t *testing.T) {
	mt := memtable.New()

	putEntry(mt, "key1", "value1", 1)

	entry, ok := mt.Get([]byte("key1"))
	require.True(t, ok, "expected key1 to exist")
	assert.Equal(t, types.Put, entry.Kind)
	assert.Equal(t, "value1", string(entry.Value))
}

func TestMemtable_Delete(t *testing.T) {
	mt := memtable.New()

	putEntry(mt, "key1", "value1", 1)
	deleteEntry(mt, "key1", 2)

	entry, ok := mt.Get([]byte("key1"))
	require.True(t, ok, "tombstones remain visible until flushed")
	assert.True(t, entry.IsTombstone())
}

func TestMemtable_Len(t *testing.T) {
	mt := memtable.New()

	putEntry(mt, "a", "1", 1)
	putEntry(mt, "b", "2", 2)
	putEntry(mt, "c", "3", 3)

	assert.Equal(t, 3, mt.Len())

	deleteEntry(mt, "b", 4)
	assert.Equal(t, 3, mt.Len(), "tombstone replaces the entry, key count unchanged")

	entry, ok := mt.Get([]byte("b"))
	require.True(t, ok)
	assert.True(t, entry.IsTombstone())
}

func TestMemtable_ByteSize(t *testing.T) {
	mt := memtable.New()
	assert.Equal(t, 0, mt.ByteSize())

	putEntry(mt, "a", "1", 1)
	first := mt.ByteSize()
	assert.Greater(t, first, 0)

	putEntry(mt, "b", "22", 2)
	assert.Greater(t, mt.ByteSize(), first)

	// Overwriting a key replaces its contribution rather than adding to it.
	before := mt.ByteSize()
	putEntry(mt, "a", "1", 3)
	assert.Equal(t, before, mt.ByteSize())
}

func TestMemtable_Upsert_NewerSeqWins(t *testing.T) {
	mt := memtable.New()

	putEntry(mt, "key1", "old", 1)
	putEntry(mt, "key1", "new", 2)

	entry, ok := mt.Get([]byte("key1"))
	require.True(t, ok)
	assert.Equal(t, "new", string(entry.Value))
	assert.Equal(t, uint64(2), entry.WriteSeq)
}

func TestMemtable_DrainSorted(t *testing.T) {
	mt := memtable.New()

	putEntry(mt, "delta", "4", 4)
	putEntry(mt, "alpha", "1", 1)
	putEntry(mt, "charlie", "3", 3)
	putEntry(mt, "bravo", "2", 2)

	entries := mt.DrainSorted()
	require.Len(t, entries, 4)

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = string(e.Key)
	}
	assert.Equal(t, []string{"alpha", "bravo", "charlie", "delta"}, keys)
}

func TestMemtable_Range(t *testing.T) {
	mt := memtable.New()

	for i, k := range []string{"a", "b", "c", "d", "e"} {
		putEntry(mt, k, k, uint64(i+1))
	}

	entries := mt.Range([]byte("b"), []byte("d"))
	require.Len(t, entries, 2)
	assert.Equal(t, "b", string(entries[0].Key))
	assert.Equal(t, "c", string(entries[1].Key))
}

func TestMemtable_Clear(t *testing.T) {
	mt := memtable.New()
	putEntry(mt, "key1", "value1", 1)
	require.Equal(t, 1, mt.Len())

	mt.Clear()
	assert.Equal(t, 0, mt.Len())
	assert.Equal(t, 0, mt.ByteSize())

	_, ok := mt.Get([]byte("key1"))
	assert.False(t, ok)
}

func TestMemtable_ExpiredEntryStillVisibleToCaller(t *testing.T) {
	mt := memtable.New()
	expiry := int64(100)
	mt.Upsert(types.Entry{
		Key:      []byte("key1"),
		Kind:     types.Put,
		Value:    []byte("value1"),
		WriteSeq: 1,
		Expiry:   &expiry,
	})

	entry, ok := mt.Get([]byte("key1"))
	require.True(t, ok, "the memtable itself stores expiry metadata; expiry is interpreted by callers")
	assert.True(t, entry.ExpiredAt(200))
	assert.False(t, entry.ExpiredAt(50))
}
