// Package vectorclock implements vector clocks for tracking happens-before
// relations across application threads.
//
// A vector clock maps every thread to the latest logical time of that thread
// its owner has observed. The mapping is total: a thread that never
// synchronized with the owner reads as 0. Thread ids are assigned once per
// program run and most clocks only ever observe a handful of them, so the
// representation is a sparse map rather than a dense array.
//
// Key operations:
//   - Join: synchronization (point-wise maximum), applied on lock acquire,
//     thread join, barrier exit and semaphore wait
//   - HappensBefore: strict partial-order comparison used by the analyzers
package vectorclock

import (
	"sort"
	"strconv"
	"strings"

	"github.com/kolkov/raceverify/internal/race/event"
)

// VectorClock represents logical time across all application threads.
//
// Absent entries read as zero, so every operation is total. The zero value
// of the struct is not usable; construct with New.
type VectorClock struct {
	clocks map[event.ThreadID]event.Clock
}

// New creates an empty vector clock: every thread at time 0.
func New() *VectorClock {
	return &VectorClock{clocks: make(map[event.ThreadID]event.Clock)}
}

// Get returns the clock value observed for thread t. Threads never seen
// read as 0.
func (vc *VectorClock) Get(t event.ThreadID) event.Clock {
	return vc.clocks[t]
}

// Set records clock value c for thread t. A zero value removes the entry so
// that Equal and String do not distinguish "never seen" from "seen at 0".
func (vc *VectorClock) Set(t event.ThreadID, c event.Clock) {
	if c == 0 {
		delete(vc.clocks, t)
		return
	}
	vc.clocks[t] = c
}

// Increment advances the clock component of thread t by one.
//
// Invariant: a thread's own component of its own clock never decreases;
// Increment is the only way the owning thread advances it.
func (vc *VectorClock) Increment(t event.ThreadID) {
	vc.clocks[t]++
}

// Join merges other into vc by point-wise maximum: vc = vc ⊔ other.
//
// This is the synchronization operation: after the join the owner has
// observed everything the releasing thread had observed.
func (vc *VectorClock) Join(other *VectorClock) {
	for t, c := range other.clocks {
		if c > vc.clocks[t] {
			vc.clocks[t] = c
		}
	}
}

// HappensBefore reports whether vc strictly precedes other: every component
// of vc is <= the corresponding component of other and at least one is
// strictly smaller. Equal clocks are not ordered.
func (vc *VectorClock) HappensBefore(other *VectorClock) bool {
	strict := false
	for t, c := range vc.clocks {
		oc := other.clocks[t]
		if c > oc {
			return false
		}
		if c < oc {
			strict = true
		}
	}
	// Components present only in other are 0 in vc, hence strictly smaller.
	for t, oc := range other.clocks {
		if _, ok := vc.clocks[t]; !ok && oc > 0 {
			strict = true
		}
	}
	return strict
}

// Equal reports whether both clocks observe identical times for every
// thread.
func (vc *VectorClock) Equal(other *VectorClock) bool {
	if len(vc.clocks) != len(other.clocks) {
		return false
	}
	for t, c := range vc.clocks {
		if other.clocks[t] != c {
			return false
		}
	}
	return true
}

// Clone creates a deep copy of the vector clock. Used when a thread's clock
// is published into a sync object's meta on release.
func (vc *VectorClock) Clone() *VectorClock {
	clone := &VectorClock{clocks: make(map[event.ThreadID]event.Clock, len(vc.clocks))}
	for t, c := range vc.clocks {
		clone.clocks[t] = c
	}
	return clone
}

// Assign overwrites vc with the contents of other.
func (vc *VectorClock) Assign(other *VectorClock) {
	vc.clocks = make(map[event.ThreadID]event.Clock, len(other.clocks))
	for t, c := range other.clocks {
		vc.clocks[t] = c
	}
}

// Clear resets every component to zero.
func (vc *VectorClock) Clear() {
	vc.clocks = make(map[event.ThreadID]event.Clock)
}

// Threads returns the ids with a non-zero component, in ascending order.
// Iteration order of the underlying map is randomized, so reporting and
// tie-break paths use this instead.
func (vc *VectorClock) Threads() []event.ThreadID {
	ids := make([]event.ThreadID, 0, len(vc.clocks))
	for t := range vc.clocks {
		ids = append(ids, t)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// String returns a debug representation of the vector clock.
//
// Format: "{tid:clock, ...}" with entries in ascending thread id order so
// the output is stable for logging and tests.
func (vc *VectorClock) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, t := range vc.Threads() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatUint(uint64(t), 10))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(uint64(vc.clocks[t]), 10))
	}
	sb.WriteByte('}')
	return sb.String()
}
