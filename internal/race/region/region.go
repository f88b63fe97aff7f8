// Package region implements the address-region filter consulted by every
// memory and synchronization callback.
//
// The filter is a set of disjoint [start, start+size) intervals covering the
// heap blocks and image data/bss segments the engine has been told about.
// Accesses outside any known region are ignored so that stray addresses
// never allocate analyzer state.
package region

import (
	"sync"

	"github.com/google/btree"

	"github.com/kolkov/raceverify/internal/race/event"
)

// btreeDegree is the B-tree fan-out; region counts are small, lookup cost
// is dominated by the lock.
const btreeDegree = 8

type interval struct {
	start event.Addr
	size  uint64
}

// Less orders intervals by start address, which keeps one interval per
// start in the tree and makes "greatest start <= addr" a single descend.
func (iv *interval) Less(than btree.Item) bool {
	return iv.start < than.(*interval).start
}

// Filter is a thread-safe disjoint-interval set keyed by start address.
type Filter struct {
	mu   sync.Mutex
	tree *btree.BTree
}

// NewFilter creates an empty region filter.
func NewFilter() *Filter {
	return &Filter{tree: btree.New(btreeDegree)}
}

// Add registers the region [addr, addr+size). Re-adding the same start
// address replaces the stale interval; the allocator has reused the block.
func (f *Filter) Add(addr event.Addr, size uint64) {
	if size == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tree.ReplaceOrInsert(&interval{start: addr, size: size})
}

// Remove deletes the region starting exactly at addr and returns its size.
// Returns 0 when no region starts there; frees of unknown addresses are
// tolerated because the filter may have been attached mid-run.
func (f *Filter) Remove(addr event.Addr) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.tree.Delete(&interval{start: addr})
	if item == nil {
		return 0
	}
	return item.(*interval).size
}

// Contains reports whether addr falls inside any registered region.
// Lookup is O(log n) over the interval count.
func (f *Filter) Contains(addr event.Addr) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := false
	f.tree.DescendLessOrEqual(&interval{start: addr}, func(item btree.Item) bool {
		iv := item.(*interval)
		found = addr >= iv.start && uint64(addr-iv.start) < iv.size
		return false // only the greatest start <= addr can cover addr
	})
	return found
}

// Len returns the number of registered regions.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tree.Len()
}
