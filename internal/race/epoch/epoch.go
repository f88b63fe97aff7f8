// Package epoch implements compact logical timestamps for the analyzers.
//
// An epoch is a (thread, own-clock) pair packed into 64 bits. Analyzers keep
// one epoch per thread in their per-address summaries instead of a full
// vector clock: the thread is known from the summary slot, the clock is the
// thread's own component at access time, and the happens-before comparison
// against an observer's vector clock is a single lookup.
package epoch

import (
	"strconv"

	"github.com/kolkov/raceverify/internal/race/event"
	"github.com/kolkov/raceverify/internal/race/vectorclock"
)

// Epoch is a 64-bit logical timestamp encoding a thread id and that
// thread's own clock value.
//
// Layout: [TID:16][Clock:48]. Clock values are truncated to 48 bits, far
// beyond any clock a real run produces.
type Epoch uint64

const (
	// ClockBits is the number of bits allocated for the clock value.
	ClockBits = 48

	// ClockMask extracts the clock value from a packed epoch.
	ClockMask = (1 << ClockBits) - 1
)

// New creates an epoch from a thread id and that thread's clock value.
func New(t event.ThreadID, c event.Clock) Epoch {
	return Epoch(uint64(t)<<ClockBits | uint64(c)&ClockMask)
}

// Decode extracts the thread id and clock value from an epoch.
func (e Epoch) Decode() (event.ThreadID, event.Clock) {
	return event.ThreadID(e >> ClockBits), event.Clock(e & ClockMask)
}

// Thread returns the thread id of the epoch.
func (e Epoch) Thread() event.ThreadID {
	return event.ThreadID(e >> ClockBits)
}

// Clock returns the clock value of the epoch.
func (e Epoch) Clock() event.Clock {
	return event.Clock(e & ClockMask)
}

// HappensBefore reports whether the access stamped with e is ordered before
// an observer whose vector clock is vc: the observer has already seen the
// epoch's thread advance to at least the epoch's clock.
func (e Epoch) HappensBefore(vc *vectorclock.VectorClock) bool {
	t, c := e.Decode()
	return c <= vc.Get(t)
}

// String returns "clock@tid", the conventional epoch notation used in
// reports and logs.
func (e Epoch) String() string {
	t, c := e.Decode()
	return strconv.FormatUint(uint64(c), 10) + "@" + strconv.FormatUint(uint64(t), 10)
}
