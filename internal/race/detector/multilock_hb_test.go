package detector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kolkov/raceverify/internal/race/event"
	"github.com/kolkov/raceverify/internal/race/lockset"
)

// Scenario: both threads write under the same lock and the second thread
// only starts after the first joined the critical section order. No race.
func TestMultiLockHBSameLockNoRace(t *testing.T) {
	a, h := setupMultiLockHB(t, nil)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)

	a.AfterPthreadMutexLock(1, 0, h.inst(0x2, 2), addrM1)
	a.BeforeMemWrite(1, 0, h.inst(0x3, 3), addrData, 4)
	a.BeforePthreadMutexUnlock(1, 0, h.inst(0x4, 4), addrM1)

	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x5, 5), 2)

	a.AfterPthreadMutexLock(2, 0, h.inst(0x6, 6), addrM1)
	a.BeforeMemWrite(2, 0, h.inst(0x7, 7), addrData, 4)
	a.BeforePthreadMutexUnlock(2, 0, h.inst(0x8, 8), addrM1)

	require.Equal(t, 0, h.db.RaceCount())
}

// Scenario: parent creates the child first and writes afterwards, so the
// two unprotected writes are concurrent. One write/write race.
func TestMultiLockHBClassicHBRace(t *testing.T) {
	a, h := setupMultiLockHB(t, nil)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x2, 2), 2)

	a.BeforeMemWrite(1, 0, h.inst(0x3, 3), addrData, 4)
	a.BeforeMemWrite(2, 0, h.inst(0x4, 4), addrData, 4)

	require.Equal(t, 1, h.db.RaceCount())
	races := h.db.Races()
	require.Equal(t, "write", races[0].First.Kind)
	require.Equal(t, "write", races[0].Second.Kind)
}

// Scenario: both writes are locked, but by different locks. The locksets
// are disjoint, so the pair races.
func TestMultiLockHBWrongLockRace(t *testing.T) {
	a, h := setupMultiLockHB(t, nil)

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

// Scenario: reader under the rwlock, writer takes the same rwlock after
// the reader released it: the writer joins the released clock, the pair
// is ordered, no race.
func TestMultiLockHBRwlockOrderedNoRace(t *testing.T) {
	a, h := setupMultiLockHB(t, nil)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x2, 2), 2)

	a.AfterPthreadRwlockRdlock(1, 0, h.inst(0x3, 3), addrRW)
	a.BeforeMemRead(1, 0, h.inst(0x4, 4), addrData, 4)
	a.BeforePthreadRwlockUnlock(1, 0, h.inst(0x5, 5), addrRW)

	a.AfterPthreadRwlockWrlock(2, 0, h.inst(0x6, 6), addrRW)
	a.BeforeMemWrite(2, 0, h.inst(0x7, 7), addrData, 4)
	a.BeforePthreadRwlockUnlock(2, 0, h.inst(0x8, 8), addrRW)

	require.Equal(t, 0, h.db.RaceCount())
}

// Scenario: the reader reads under the rwlock and releases it; the writer's
// try-wrlock fails and it writes anyway, holding no lock. The accesses are
// concurrent and the locksets disjoint: one read/write race. The failed try
// must not join the rwlock's clock.
func TestMultiLockHBRwlockConcurrentRace(t *testing.T) {
	a, h := setupMultiLockHB(t, nil)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x2, 2), 2)

	a.AfterPthreadRwlockRdlock(1, 0, h.inst(0x3, 3), addrRW)
	a.BeforeMemRead(1, 0, h.inst(0x4, 4), addrData, 4)
	a.BeforePthreadRwlockUnlock(1, 0, h.inst(0x5, 5), addrRW)

	const ebusy = 16
	a.AfterPthreadRwlockTryWrlock(2, 0, h.inst(0x6, 6), addrRW, ebusy)
	a.BeforeMemWrite(2, 0, h.inst(0x7, 7), addrData, 4)

	require.Equal(t, 1, h.db.RaceCount())
	races := h.db.Races()
	kinds := []string{races[0].First.Kind, races[0].Second.Kind}
	require.Contains(t, kinds, "read")
	require.Contains(t, kinds, "write")
}

// Scenario: a single thread writes under {a,b} and later under {a} alone.
// The newer summary dominates (higher epoch, subset lockset), so only it
// survives in the history.
func TestMultiLockHBPruneDominance(t *testing.T) {
	a, h := setupMultiLockHB(t, nil)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)

	a.AfterPthreadMutexLock(1, 0, h.inst(0x2, 2), addrM1)
	a.AfterPthreadMutexLock(1, 0, h.inst(0x3, 3), addrM2)
	a.BeforeMemWrite(1, 0, h.inst(0x4, 4), addrData, 4)
	// Unlocking m2 advances the epoch; the second write happens under {m1}.
	a.BeforePthreadMutexUnlock(1, 0, h.inst(0x5, 5), addrM2)
	a.BeforeMemWrite(1, 0, h.inst(0x6, 6), addrData, 4)

	a.mu.Lock()
	m := a.metas[addrData].(*mlMeta)
	require.Len(t, m.writers[1], 1)
	surviving := m.writers[1][0]
	want := lockset.New()
	want.Add(addrM1)
	require.True(t, surviving.ls.Equal(want))
	a.mu.Unlock()

	require.Equal(t, 0, h.db.RaceCount())
}

// Running the prune step twice after a single insertion leaves the history
// unchanged.
func TestMultiLockHBPruneIdempotent(t *testing.T) {
	ls := lockset.New()
	ls.Add(addrM1)
	big := lockset.New()
	big.Add(addrM1)
	big.Add(addrM2)

	entries := []elsEntry{
		{clk: 3, ls: big},
		{clk: 5, ls: ls.Clone()}, // the freshly appended summary
	}
	once := prune(append([]elsEntry(nil), entries...), 5, ls)
	twice := prune(append([]elsEntry(nil), once...), 5, ls)

	require.Len(t, once, 1)
	require.Equal(t, event.Clock(5), once[0].clk)
	require.Equal(t, len(once), len(twice))
	for i := range once {
		require.Equal(t, once[i].clk, twice[i].clk)
		require.True(t, once[i].ls.Equal(twice[i].ls))
	}
}

// A redundant read (same epoch, dominating summary present) must not grow
// the history.
func TestMultiLockHBSkipDominatedRead(t *testing.T) {
	a, h := setupMultiLockHB(t, nil)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)

	a.BeforeMemRead(1, 0, h.inst(0x2, 2), addrData, 4)
	a.BeforeMemRead(1, 0, h.inst(0x3, 3), addrData, 4)

	a.mu.Lock()
	m := a.metas[addrData].(*mlMeta)
	require.Len(t, m.readers[1], 1)
	a.mu.Unlock()
	require.Equal(t, 0, h.db.RaceCount())
}

// Both sides completely unlocked: empty locksets are disjoint, the pair
// must race.
func TestMultiLockHBEmptyLocksetsRace(t *testing.T) {
	a, h := setupMultiLockHB(t, nil)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x2, 2), 2)

	a.BeforeMemWrite(1, 0, h.inst(0x3, 3), addrData, 4)
	a.BeforeMemRead(2, 0, h.inst(0x4, 4), addrData, 4)
	a.BeforeMemWrite(2, 0, h.inst(0x5, 5), addrData, 4)

	// T1's write races with both of T2's accesses: two static pairs.
	require.Equal(t, 2, h.db.RaceCount())
}

// An access that happened-before the observer must never be reported,
// whatever the locksets.
func TestMultiLockHBOrderedNeverRaces(t *testing.T) {
	a, h := setupMultiLockHB(t, nil)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.BeforeMemWrite(1, 0, h.inst(0x2, 2), addrData, 4)

	// Create the child after the write: the child's start joins the
	// parent's clock, ordering the accesses.
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x3, 3), 2)
	a.BeforeMemWrite(2, 0, h.inst(0x4, 4), addrData, 4)

	require.Equal(t, 0, h.db.RaceCount())
}

// Accesses outside any registered region are ignored entirely.
func TestMultiLockHBRegionFilter(t *testing.T) {
	a, h := setupMultiLockHB(t, nil)

	a.ThreadStart(1, event.InvalidThreadID)
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x1, 1), 2)

	a.BeforeMemWrite(1, 0, h.inst(0x2, 2), addrData, 4)
	a.BeforeMemWrite(2, 0, h.inst(0x3, 3), addrData, 4)

	require.Equal(t, 0, h.db.RaceCount())
	a.mu.Lock()
	require.Empty(t, a.metas)
	a.mu.Unlock()
}

// track_racy_inst: freeing a racy block flushes every instruction that
// touched it into the race database.
func TestMultiLockHBRacyInstFlushOnFree(t *testing.T) {
	a, h := setupMultiLockHB(t, map[string]string{"track_racy_inst": "true"})

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 4, addrData)
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x2, 2), 2)

	w1 := h.inst(0x3, 3)
	w2 := h.inst(0x4, 4)
	a.BeforeMemWrite(1, 0, w1, addrData, 4)
	a.BeforeMemWrite(2, 0, w2, addrData, 4)
	require.Equal(t, 1, h.db.RaceCount())

	require.False(t, h.db.IsRacyInst(w1))
	a.BeforeFree(1, 0, h.inst(0x5, 5), addrData)
	require.True(t, h.db.IsRacyInst(w1))
	require.True(t, h.db.IsRacyInst(w2))

	a.mu.Lock()
	require.Empty(t, a.metas)
	a.mu.Unlock()
}

// An access spanning two units creates and updates a meta per unit.
func TestMultiLockHBUnitExpansion(t *testing.T) {
	a, h := setupMultiLockHB(t, nil)

	a.ThreadStart(1, event.InvalidThreadID)
	a.AfterMalloc(1, 0, h.inst(0x1, 1), 16, addrData)
	a.ThreadStart(2, 1)
	a.AfterPthreadCreate(1, 0, h.inst(0x2, 2), 2)

	a.BeforeMemWrite(1, 0, h.inst(0x3, 3), addrData, 8)
	a.mu.Lock()
	require.Len(t, a.metas, 2)
	a.mu.Unlock()

	// The overlapping second write races on both units; the race database
	// still records one static pair.
	a.BeforeMemWrite(2, 0, h.inst(0x4, 4), addrData, 8)
	require.Equal(t, 1, h.db.RaceCount())
}
