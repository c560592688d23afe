package sstable

import (
	"container/heap"

	"github.com/lsmkit/stratum/internal/types"
)

// MergeSource pairs an Iterator with its rank among the tables being
// merged. Rank order is newest-first: rank 0 is the newest table, so
// when two sources disagree on a key, the lower rank wins.
type MergeSource struct {
	Iterator *Iterator
	Rank     int
}

type mergeItem struct {
	entry  types.Entry
	source *MergeSource
}

type mergeHeap []*mergeItem

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	cmp := types.CompareKeys(h[i].entry.Key, h[j].entry.Key)
	if cmp != 0 {
		return cmp < 0
	}
	return h[i].source.Rank < h[j].source.Rank
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(*mergeItem)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MergeIterator performs a k-way merge across sources in ascending key
// order, resolving duplicate keys by rank (newest wins) and discarding
// the losing versions. It does not itself drop tombstones or expired
// entries — callers (the compactor) decide that based on level.
type MergeIterator struct {
	h       mergeHeap
	entry   types.Entry
	lastKey types.Key
	hasLast bool
}

// NewMergeIterator builds a merge over sources, each already positioned
// before its first entry (Next has not yet been called).
func NewMergeIterator(sources []MergeSource) *MergeIterator {
	m := &MergeIterator{}
	for i := range sources {
		s := &sources[i]
		if s.Iterator.Next() {
			heap.Push(&m.h, &mergeItem{entry: s.Iterator.Entry(), source: s})
		}
	}
	heap.Init(&m.h)
	return m
}

// Next advances to the next distinct key in ascending order, returning
// false once every source is exhausted.
func (m *MergeIterator) Next() bool {
	for m.h.Len() > 0 {
		item := heap.Pop(&m.h).(*mergeItem)

		if item.source.Iterator.Next() {
			heap.Push(&m.h, &mergeItem{entry: item.source.Iterator.Entry(), source: item.source})
		}

		if m.hasLast && types.CompareKeys(item.entry.Key, m.lastKey) == 0 {
			// A lower-ranked (older) duplicate of the key just emitted;
			// its heap position already reflected losing the rank tie,
			// so it is simply dropped.
			continue
		}

		m.entry = item.entry
		m.lastKey = append(types.Key{}, item.entry.Key...)
		m.hasLast = true
		return true
	}
	return false
}

// Entry returns the entry at the iterator's current position.
func (m *MergeIterator) Entry() types.Entry { return m.entry }
