package crossfilter

import (
	"github.com/google/btree"
)

// entry is one record's position in a dimension's sorted index
type entry struct {
	key float64
	id  uint32
}

func lessEntry(a, b entry) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	return a.id < b.id
}

// index keeps a dimension's records ordered by (key, id)
type index struct {
	tree *btree.BTreeG[entry]
}

func newIndex(keys []float64) *index {
	idx := &index{tree: btree.NewG[entry](32, lessEntry)}
	for id, k := range keys {
		idx.tree.ReplaceOrInsert(entry{key: k, id: uint32(id)})
	}
	return idx
}

// ascendRange calls fn for every record with lo <= key < hi, in key order
func (idx *index) ascendRange(lo, hi float64, fn func(id uint32, key float64)) {
	if !(lo < hi) {
		return
	}
	idx.tree.AscendRange(entry{key: lo}, entry{key: hi}, func(e entry) bool {
		fn(e.id, e.key)
		return true
	})
}

// descend walks records from the largest key down until fn returns false
func (idx *index) descend(fn func(id uint32) bool) {
	idx.tree.Descend(func(e entry) bool {
		return fn(e.id)
	})
}

// ascend walks records from the smallest key up until fn returns false
func (idx *index) ascend(fn func(id uint32) bool) {
	idx.tree.Ascend(func(e entry) bool {
		return fn(e.id)
	})
}
