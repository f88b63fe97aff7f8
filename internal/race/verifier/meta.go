package verifier

import (
	"github.com/kolkov/raceverify/internal/race/event"
	"github.com/kolkov/raceverify/internal/race/sinfo"
	"github.com/kolkov/raceverify/internal/race/vectorclock"
)

// snapshot is one recorded access by one thread to a unit inside a
// candidate statement window: the thread's own clock, the access kind and
// the instruction.
type snapshot struct {
	clk  event.Clock
	kind event.AccessKind
	inst *sinfo.Inst
}

// instPair identifies a pair of static instructions that already raced on
// a meta; the pair is reported once per meta.
type instPair struct {
	first, second *sinfo.Inst
}

// meta is the verifier's per-unit state: the history of snapshots per
// thread and the instruction pairs already reported for the unit.
//
// Snapshots accumulate while the unit is held open by a candidate
// statement and are dropped wholesale when the unit's block is freed.
type meta struct {
	addr      event.Addr
	snapshots map[event.ThreadID][]snapshot
	raced     map[instPair]struct{}
}

func newMeta(addr event.Addr) *meta {
	return &meta{
		addr:      addr,
		snapshots: make(map[event.ThreadID][]snapshot),
		raced:     make(map[instPair]struct{}),
	}
}

func (m *meta) addSnapshot(t event.ThreadID, ss snapshot) {
	m.snapshots[t] = append(m.snapshots[t], ss)
}

// lastSnapshot returns the most recent snapshot of thread t, or nil.
func (m *meta) lastSnapshot(t event.ThreadID) *snapshot {
	v := m.snapshots[t]
	if len(v) == 0 {
		return nil
	}
	return &v[len(v)-1]
}

func (m *meta) racedInstPair(first, second *sinfo.Inst) bool {
	_, ok := m.raced[instPair{first, second}]
	return ok
}

func (m *meta) addRacedInstPair(first, second *sinfo.Inst) {
	m.raced[instPair{first, second}] = struct{}{}
}

// metaSet is a set of unit metas, used for the per-statement and
// per-thread bookkeeping.
type metaSet map[*meta]struct{}

// vMutexMeta is the verifier's mutex state: the released clock and the
// current owner, which the scheduler consults to decide who to wake when
// the runnable set drains.
type vMutexMeta struct {
	vc    *vectorclock.VectorClock
	owner event.ThreadID
}

func newVMutexMeta() *vMutexMeta {
	return &vMutexMeta{vc: vectorclock.New()}
}

// vRwlockMeta is the verifier's rwlock state.
type vRwlockMeta struct {
	vc       *vectorclock.VectorClock
	waitVC   *vectorclock.VectorClock
	ref      int
	wrOwner  event.ThreadID
	rdOwners map[event.ThreadID]struct{}
}

func newVRwlockMeta() *vRwlockMeta {
	return &vRwlockMeta{
		vc:       vectorclock.New(),
		waitVC:   vectorclock.New(),
		rdOwners: make(map[event.ThreadID]struct{}),
	}
}
