// Package lockset implements sets of held lock identifiers.
//
// A lock is identified by its address. The set a thread carries reflects
// exactly the nesting of lock acquisitions it has performed minus releases;
// the analyzers snapshot it into per-address summaries and compare snapshots
// by subset and intersection.
package lockset

import (
	"sort"
	"strconv"
	"strings"

	"github.com/kolkov/raceverify/internal/race/event"
)

// LockSet is an unordered set of lock identifiers. The zero value is not
// usable; construct with New.
type LockSet struct {
	locks map[event.Addr]struct{}
}

// New creates an empty lock set.
func New() *LockSet {
	return &LockSet{locks: make(map[event.Addr]struct{})}
}

// Add inserts lock l. Adding a lock already present is a no-op.
func (ls *LockSet) Add(l event.Addr) {
	ls.locks[l] = struct{}{}
}

// Remove deletes lock l. Removing an absent lock is a no-op; the caller
// asserts presence where the protocol requires it.
func (ls *LockSet) Remove(l event.Addr) {
	delete(ls.locks, l)
}

// Contains reports whether lock l is in the set.
func (ls *LockSet) Contains(l event.Addr) bool {
	_, ok := ls.locks[l]
	return ok
}

// Len returns the number of locks in the set.
func (ls *LockSet) Len() int {
	return len(ls.locks)
}

// Empty reports whether the set holds no locks.
func (ls *LockSet) Empty() bool {
	return len(ls.locks) == 0
}

// Join adds every lock of other into ls (set union in place).
func (ls *LockSet) Join(other *LockSet) {
	for l := range other.locks {
		ls.locks[l] = struct{}{}
	}
}

// Intersect keeps only the locks present in both sets (in place).
func (ls *LockSet) Intersect(other *LockSet) {
	for l := range ls.locks {
		if !other.Contains(l) {
			delete(ls.locks, l)
		}
	}
}

// SubsetOf reports whether every lock of ls is also in other. The empty set
// is a subset of everything, including itself.
func (ls *LockSet) SubsetOf(other *LockSet) bool {
	if len(ls.locks) > len(other.locks) {
		return false
	}
	for l := range ls.locks {
		if !other.Contains(l) {
			return false
		}
	}
	return true
}

// Disjoint reports whether the two sets share no lock. Two empty sets are
// disjoint: no lock is held by either side, which is exactly the racing
// condition for unsynchronized accesses.
func (ls *LockSet) Disjoint(other *LockSet) bool {
	small, large := ls, other
	if len(large.locks) < len(small.locks) {
		small, large = large, small
	}
	for l := range small.locks {
		if large.Contains(l) {
			return false
		}
	}
	return true
}

// Equal reports whether both sets hold exactly the same locks, regardless
// of insertion order.
func (ls *LockSet) Equal(other *LockSet) bool {
	return len(ls.locks) == len(other.locks) && ls.SubsetOf(other)
}

// Clone creates an independent copy of the set. Analyzers clone the current
// lock set into summaries so later acquisitions do not mutate history.
func (ls *LockSet) Clone() *LockSet {
	clone := &LockSet{locks: make(map[event.Addr]struct{}, len(ls.locks))}
	for l := range ls.locks {
		clone.locks[l] = struct{}{}
	}
	return clone
}

// String returns "[0xaddr 0xaddr ...]" with addresses in ascending order.
func (ls *LockSet) String() string {
	addrs := make([]event.Addr, 0, len(ls.locks))
	for l := range ls.locks {
		addrs = append(addrs, l)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	var sb strings.Builder
	sb.WriteByte('[')
	for i, l := range addrs {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("0x" + strconv.FormatUint(uint64(l), 16))
	}
	sb.WriteByte(']')
	return sb.String()
}
