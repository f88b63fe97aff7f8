package detector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kolkov/raceverify/internal/race/event"
)

func TestDjitConcurrentWritesRace(t *testing.T) {
	a, h := setupDjit(t)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x2, 2), 2)

	a.BeforeMemWrite(1, 0, h.inst(0x3, 3), addrData, 4)
	a.BeforeMemWrite(2, 0, h.inst(0x4, 4), addrData, 4)

	require.Equal(t, 1, h.db.RaceCount())
}

// Djit is pure happens-before: a common lock orders the accesses through
// the release/acquire edge, so no race. Locks held without an edge do
// not help (see TestRaceTrackCommonLockConcurrentNoRace for the contrast
// with the lockset-aware hybrid).
func TestDjitLockHandoffNoRace(t *testing.T) {
	a, h := setupDjit(t)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x2, 2), 2)

	a.AfterPthreadMutexLock(1, 0, h.inst(0x3, 3), addrM1)
	a.BeforeMemWrite(1, 0, h.inst(0x4, 4), addrData, 4)
	a.BeforePthreadMutexUnlock(1, 0, h.inst(0x5, 5), addrM1)

	a.AfterPthreadMutexLock(2, 0, h.inst(0x6, 6), addrM1)
	a.BeforeMemWrite(2, 0, h.inst(0x7, 7), addrData, 4)
	a.BeforePthreadMutexUnlock(2, 0, h.inst(0x8, 8), addrM1)

	require.Equal(t, 0, h.db.RaceCount())
}

func TestDjitSequentialThreadsNoRace(t *testing.T) {
	a, h := setupDjit(t)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.BeforeMemWrite(1, 0, h.inst(0x2, 2), addrData, 4)

	// The child starts after the write and inherits the parent's clock.
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x3, 3), 2)
	a.BeforeMemWrite(2, 0, h.inst(0x4, 4), addrData, 4)
	a.BeforeMemRead(2, 0, h.inst(0x5, 5), addrData, 4)

	require.Equal(t, 0, h.db.RaceCount())
}

func TestDjitJoinOrdersChildWrites(t *testing.T) {
	a, h := setupDjit(t)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x2, 2), 2)

	a.BeforeMemWrite(2, 0, h.inst(0x3, 3), addrData, 4)
	a.ThreadExit(2, 0)
	a.AfterPthreadJoin(1, 0, h.inst(0x4, 4), 2)
	a.BeforeMemWrite(1, 0, h.inst(0x5, 5), addrData, 4)

	require.Equal(t, 0, h.db.RaceCount())
}

func TestDjitWriteReadRace(t *testing.T) {
	a, h := setupDjit(t)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x2, 2), 2)

	a.BeforeMemWrite(1, 0, h.inst(0x3, 3), addrData, 4)
	a.BeforeMemRead(2, 0, h.inst(0x4, 4), addrData, 4)

	require.Equal(t, 1, h.db.RaceCount())
	r := h.db.Races()[0]
	kinds := []string{r.First.Kind, r.Second.Kind}
	require.Contains(t, kinds, "read")
	require.Contains(t, kinds, "write")
}
