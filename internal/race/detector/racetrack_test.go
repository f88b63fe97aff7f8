package detector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kolkov/raceverify/internal/race/event"
)

func TestRaceTrackWrongLockRace(t *testing.T) {
	a, h := setupRaceTrack(t)

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

// Unlike Eraser, the hybrid stays quiet when the accesses are ordered even
// though no lock protects them.
func TestRaceTrackOrderedUnlockedNoRace(t *testing.T) {
	a, h := setupRaceTrack(t)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.BeforeMemWrite(1, 0, h.inst(0x2, 2), addrData, 4)

	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x3, 3), 2)
	a.BeforeMemWrite(2, 0, h.inst(0x4, 4), addrData, 4)

	require.Equal(t, 0, h.db.RaceCount())
}

// Unlike pure happens-before, the hybrid stays quiet when concurrent
// accesses share a lock even if no ordering edge exists between them.
func TestRaceTrackCommonLockConcurrentNoRace(t *testing.T) {
	a, h := setupRaceTrack(t)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x2, 2), 2)

	// No unlock is observed between the two lock acquisitions, so no
	// release/acquire edge orders the writes, but both locksets contain
	// m1 and the intersection is non-empty.
	a.AfterPthreadMutexLock(1, 0, h.inst(0x3, 3), addrM1)
	a.BeforeMemWrite(1, 0, h.inst(0x4, 4), addrData, 4)
	a.AfterPthreadMutexLock(2, 0, h.inst(0x5, 5), addrM1)
	a.BeforeMemWrite(2, 0, h.inst(0x6, 6), addrData, 4)

	require.Equal(t, 0, h.db.RaceCount())
}

func TestRaceTrackConcurrentUnlockedRace(t *testing.T) {
	a, h := setupRaceTrack(t)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x2, 2), 2)

	a.BeforeMemWrite(1, 0, h.inst(0x3, 3), addrData, 4)
	a.BeforeMemRead(2, 0, h.inst(0x4, 4), addrData, 4)

	require.Equal(t, 1, h.db.RaceCount())
}
