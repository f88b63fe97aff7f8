package detector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kolkov/raceverify/internal/race/event"
)

func TestEraserConsistentLockNoRace(t *testing.T) {
	a, h := setupEraser(t)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x2, 2), 2)

	for _, tid := range []event.ThreadID{1, 2} {
		a.AfterPthreadMutexLock(tid, 0, h.inst(0x3, 3), addrM1)
		a.BeforeMemWrite(tid, 0, h.inst(0x4, 4), addrData, 4)
		a.BeforePthreadMutexUnlock(tid, 0, h.inst(0x5, 5), addrM1)
	}

	require.Equal(t, 0, h.db.RaceCount())
}

func TestEraserWrongLockRace(t *testing.T) {
	a, h := setupEraser(t)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x2, 2), 2)

	a.AfterPthreadMutexLock(1, 0, h.inst(0x3, 3), addrM1)
	a.BeforeMemWrite(1, 0, h.inst(0x4, 4), addrData, 4)
	a.BeforePthreadMutexUnlock(1, 0, h.inst(0x5, 5), addrM1)

	a.AfterPthreadMutexLock(2, 0, h.inst(0x6, 6), addrM2)
	a.BeforeMemWrite(2, 0, h.inst(0x7, 7), addrData, 4)
	a.BeforePthreadMutexUnlock(2, 0, h.inst(0x8, 8), addrM2)

	require.Equal(t, 1, h.db.RaceCount())
}

// Eraser ignores happens-before: even ordered unprotected writes by two
// threads empty the candidate set. This is the analyzer's known source of
// false positives and the reason the hybrid exists.
func TestEraserFlagsOrderedUnlockedWrites(t *testing.T) {
	a, h := setupEraser(t)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.BeforeMemWrite(1, 0, h.inst(0x2, 2), addrData, 4)

	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x3, 3), 2)
	a.BeforeMemWrite(2, 0, h.inst(0x4, 4), addrData, 4)

	require.Equal(t, 1, h.db.RaceCount())
}

// Exclusive state: a single thread never trips the state machine, with or
// without locks.
func TestEraserSingleThreadSilent(t *testing.T) {
	a, h := setupEraser(t)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.BeforeMemWrite(1, 0, h.inst(0x2, 2), addrData, 4)
	a.BeforeMemRead(1, 0, h.inst(0x3, 3), addrData, 4)
	a.BeforeMemWrite(1, 0, h.inst(0x4, 4), addrData, 4)

	require.Equal(t, 0, h.db.RaceCount())
}

// Read sharing under a common reader lock stays quiet; the race is
// reported only once the unit is write-shared with an empty candidate set,
// and only once per unit.
func TestEraserReadSharedThenRacyWrite(t *testing.T) {
	a, h := setupEraser(t)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x2, 2), 2)
	a.ThreadStart(3, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x3, 3), 3)

	for _, tid := range []event.ThreadID{1, 2} {
		a.AfterPthreadRwlockRdlock(tid, 0, h.inst(0x4, 4), addrRW)
		a.BeforeMemRead(tid, 0, h.inst(0x5, 5), addrData, 4)
		a.BeforePthreadRwlockUnlock(tid, 0, h.inst(0x6, 6), addrRW)
	}
	require.Equal(t, 0, h.db.RaceCount())

	// Unprotected write by a third thread: candidate set empties.
	a.BeforeMemWrite(3, 0, h.inst(0x7, 7), addrData, 4)
	require.Equal(t, 1, h.db.RaceCount())

	// The racy flag is sticky; no second report for the same unit.
	a.BeforeMemWrite(1, 0, h.inst(0x8, 8), addrData, 4)
	require.Equal(t, 1, h.db.RaceCount())
}
