package memtable

import (
	"bytes"
	"math/rand"
	"time"

	"github.com/lsmkit/stratum/internal/types"
)

const (
	maxLevel    = 16
	probability = 0.5
)

// skipListNode is a node in the skip list, holding one entry and the
// forward pointers reachable from it at each of its levels.
type skipListNode struct {
	entry types.Entry
	next  []*skipListNode
}

func newSkipListNode(entry types.Entry, level int) *skipListNode {
	return &skipListNode{entry: entry, next: make([]*skipListNode, level)}
}

// skipList is a probabilistic ordered map from key to Entry, giving
// expected O(log n) search, insertion, and replacement.
type skipList struct {
	head  *skipListNode
	level int
	size  int
	rng   *rand.Rand
}

func newSkipList() *skipList {
	return &skipList{
		head:  newSkipListNode(types.Entry{}, maxLevel),
		level: 1,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (sl *skipList) randomLevel() int {
	level := 1
	for sl.rng.Float64() < probability && level < maxLevel {
		level++
	}
	return level
}

// put inserts entry, or overwrites the existing entry for entry.Key.
// It returns the entry that was replaced, if any, so the caller can
// adjust byte-size accounting.
func (sl *skipList) put(entry types.Entry) (types.Entry, bool) {
	update := make([]*skipListNode, maxLevel)
	current := sl.head

	for i := sl.level - 1; i >= 0; i-- {
		for current.next[i] != nil && bytes.Compare(current.next[i].entry.Key, entry.Key) < 0 {
			current = current.next[i]
		}
		update[i] = current
	}

	existing := current.next[0]
	if existing != nil && bytes.Equal(existing.entry.Key, entry.Key) {
		old := existing.entry
		existing.entry = entry
		return old, true
	}

	newLevel := sl.randomLevel()
	if newLevel > sl.level {
		for i := sl.level; i < newLevel; i++ {
			update[i] = sl.head
		}
		sl.level = newLevel
	}

	node := newSkipListNode(entry, newLevel)
	for i := range newLevel {
		node.next[i] = update[i].next[i]
		update[i].next[i] = node
	}

	sl.size++
	return types.Entry{}, false
}

func (sl *skipList) get(key types.Key) (types.Entry, bool) {
	current := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for current.next[i] != nil && bytes.Compare(current.next[i].entry.Key, key) < 0 {
			current = current.next[i]
		}
	}
	current = current.next[0]
	if current != nil && bytes.Equal(current.entry.Key, key) {
		return current.entry, true
	}
	return types.Entry{}, false
}

// entriesInOrder returns every entry, including tombstones, in ascending
// key order. Used by the memtable to drain a sorted run for flushing.
func (sl *skipList) entriesInOrder() []types.Entry {
	entries := make([]types.Entry, 0, sl.size)
	for n := sl.head.next[0]; n != nil; n = n.next[0] {
		entries = append(entries, n.entry)
	}
	return entries
}

// rangeEntries returns entries with start <= key < end in ascending
// order. A nil end means unbounded.
func (sl *skipList) rangeEntries(start, end types.Key) []types.Entry {
	current := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for current.next[i] != nil && bytes.Compare(current.next[i].entry.Key, start) < 0 {
			current = current.next[i]
		}
	}
	current = current.next[0]

	var out []types.Entry
	for current != nil {
		if end != nil && bytes.Compare(current.entry.Key, end) >= 0 {
			break
		}
		out = append(out, current.entry)
		current = current.next[0]
	}
	return out
}

func (sl *skipList) clear() {
	sl.head = newSkipListNode(types.Entry{}, maxLevel)
	sl.level = 1
	sl.size = 0
}
