package detector

import (
	"github.com/kolkov/raceverify/internal/race/event"
	"github.com/kolkov/raceverify/internal/race/sinfo"
	"github.com/kolkov/raceverify/internal/race/vectorclock"
)

// Meta is the per-address access metadata handed to an analyzer for every
// access. Each analyzer attaches its own state by embedding accessMeta in a
// concrete meta type; the framework only sees this interface.
type Meta interface {
	Addr() event.Addr
	Racy() bool
	SetRacy()
	AddRaceInst(inst *sinfo.Inst)
	RaceInsts() []*sinfo.Inst
}

// accessMeta is the common part of every analyzer's per-address state.
//
// The racy flag is sticky: once an address has raced it stays racy until
// the meta is destroyed on free. raceInsts collects every instruction that
// touched the address, in first-seen order, for the racy-instruction flush.
type accessMeta struct {
	addr      event.Addr
	racy      bool
	raceInsts []*sinfo.Inst
	instSeen  map[*sinfo.Inst]struct{}
}

func newAccessMeta(addr event.Addr) accessMeta {
	return accessMeta{addr: addr}
}

func (m *accessMeta) Addr() event.Addr { return m.addr }
func (m *accessMeta) Racy() bool       { return m.racy }
func (m *accessMeta) SetRacy()         { m.racy = true }

// AddRaceInst records an instruction touching this address, once.
func (m *accessMeta) AddRaceInst(inst *sinfo.Inst) {
	if m.instSeen == nil {
		m.instSeen = make(map[*sinfo.Inst]struct{})
	}
	if _, ok := m.instSeen[inst]; ok {
		return
	}
	m.instSeen[inst] = struct{}{}
	m.raceInsts = append(m.raceInsts, inst)
}

// RaceInsts returns the recorded instructions in first-seen order.
func (m *accessMeta) RaceInsts() []*sinfo.Inst { return m.raceInsts }

// mutexMeta carries the vector-clock state of one mutex: the clock released
// by the last unlock and the current owner.
type mutexMeta struct {
	vc    *vectorclock.VectorClock
	owner event.ThreadID
}

func newMutexMeta() *mutexMeta {
	return &mutexMeta{vc: vectorclock.New()}
}

// rwlockMeta carries the vector-clock state of one reader-writer lock.
//
// vc is the clock published when the lock last went fully free; waitVC
// accumulates the contributions of every unlock between the first unlock
// and the one that drops the hold count to zero, at which point it is
// drained into vc.
type rwlockMeta struct {
	vc     *vectorclock.VectorClock
	waitVC *vectorclock.VectorClock
	ref    int
	// wrOwner and rdOwners track current holders for the verifier-style
	// owner queries; the detector itself only needs ref.
	wrOwner  event.ThreadID
	rdOwners map[event.ThreadID]struct{}
}

func newRwlockMeta() *rwlockMeta {
	return &rwlockMeta{
		vc:       vectorclock.New(),
		waitVC:   vectorclock.New(),
		rdOwners: make(map[event.ThreadID]struct{}),
	}
}

// barrierMeta carries the state of one barrier: the participant count from
// init, the number arrived in the current round, the clock accumulated by
// the arrivals and the clock released to the leavers.
type barrierMeta struct {
	count     int
	arrived   int
	waitVC    *vectorclock.VectorClock
	releaseVC *vectorclock.VectorClock
}

func newBarrierMeta() *barrierMeta {
	return &barrierMeta{
		waitVC:    vectorclock.New(),
		releaseVC: vectorclock.New(),
	}
}

// condMeta carries the clock published by signal/broadcast on one condition
// variable.
type condMeta struct {
	vc *vectorclock.VectorClock
}

func newCondMeta() *condMeta {
	return &condMeta{vc: vectorclock.New()}
}

// semMeta carries the clock published by post on one semaphore.
type semMeta struct {
	vc *vectorclock.VectorClock
}

func newSemMeta() *semMeta {
	return &semMeta{vc: vectorclock.New()}
}
