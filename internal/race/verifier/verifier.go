// Package verifier implements the active race verifier: an online
// scheduler that perturbs the thread schedule so that the two sides of a
// candidate statement pair become simultaneously pending, proving the race
// instead of merely predicting it.
//
// The verifier owns a coarse verify lock serializing application progress
// around suspect accesses, a per-thread binary semaphore used to postpone
// and wake threads, and a seeded random chooser that biases execution
// toward one thread at a time. Its one hard obligation is liveness: it must
// never leave every live, unblocked thread postponed: whenever the
// runnable set drains, a random postponed thread is woken.
package verifier

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/kolkov/raceverify/internal/race/analyzer"
	"github.com/kolkov/raceverify/internal/race/event"
	"github.com/kolkov/raceverify/internal/race/knob"
	"github.com/kolkov/raceverify/internal/race/racedb"
	"github.com/kolkov/raceverify/internal/race/region"
	"github.com/kolkov/raceverify/internal/race/sinfo"
	"github.com/kolkov/raceverify/internal/race/vectorclock"
)

// defaultSpin is how long a thread backs off when the random chooser picked
// somebody else.
const defaultSpin = time.Millisecond

// Verifier drives the schedule toward confirming candidate statement
// pairs. It consumes the same event stream as the detectors.
type Verifier struct {
	analyzer.Base

	mu       sync.Mutex // internal lock: every field below
	verifyMu sync.Mutex // coarse gate around suspect accesses

	log     *logrus.Logger
	praceDB *racedb.PRaceDB
	raceDB  *racedb.DB

	unitSize uint64
	spin     time.Duration
	filter   *region.Filter
	rng      *rand.Rand

	currVC map[event.ThreadID]*vectorclock.VectorClock
	thdSem map[event.ThreadID]*semaphore.Weighted

	avail     map[event.ThreadID]struct{}
	postponed map[event.ThreadID]struct{}

	pstmtMetas map[*racedb.PStmt]metaSet
	thdMetas   map[event.ThreadID]metaSet

	metas       map[event.Addr]*meta
	mutexMetas  map[event.Addr]*vMutexMeta
	rwlockMetas map[event.Addr]*vRwlockMeta
}

// New creates the verifier; Setup must still be called.
func New() *Verifier {
	return &Verifier{}
}

// Register declares the verifier's options.
func (v *Verifier) Register(k *knob.Knob) {
	k.RegisterBool("race_verify", "whether enable the race verify", false)
	k.RegisterInt("unit_size_", "the monitoring granularity in bytes", 4)
}

// Enabled reports whether the race_verify option is set.
func (v *Verifier) Enabled(k *knob.Knob) bool {
	return k.ValueBool("race_verify")
}

// Setup wires the verifier to its collaborators. seed fixes the random
// chooser so a run can be replayed.
func (v *Verifier) Setup(log *logrus.Logger, k *knob.Knob, praceDB *racedb.PRaceDB, raceDB *racedb.DB, seed int64) {
	v.log = log
	v.praceDB = praceDB
	v.raceDB = raceDB
	v.unitSize = uint64(k.ValueInt("unit_size_"))
	if v.unitSize == 0 {
		v.unitSize = 4
	}
	v.spin = defaultSpin
	v.filter = region.NewFilter()
	v.rng = rand.New(rand.NewSource(seed))
	v.currVC = make(map[event.ThreadID]*vectorclock.VectorClock)
	v.thdSem = make(map[event.ThreadID]*semaphore.Weighted)
	v.avail = make(map[event.ThreadID]struct{})
	v.postponed = make(map[event.ThreadID]struct{})
	v.pstmtMetas = make(map[*racedb.PStmt]metaSet)
	v.thdMetas = make(map[event.ThreadID]metaSet)
	v.metas = make(map[event.Addr]*meta)
	v.mutexMetas = make(map[event.Addr]*vMutexMeta)
	v.rwlockMetas = make(map[event.Addr]*vRwlockMeta)
}

// AvailCount returns the size of the runnable set. Exposed for status
// reporting and the liveness assertions in tests.
func (v *Verifier) AvailCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.avail)
}

// PostponedCount returns the number of threads parked on their semaphore.
func (v *Verifier) PostponedCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.postponed)
}

// --- thread lifecycle ---

// ThreadStart creates the thread's clock and semaphore and makes the
// thread runnable.
func (v *Verifier) ThreadStart(curr, parent event.ThreadID) {
	sem := semaphore.NewWeighted(1)
	// Drain to zero so the first wait blocks until a post, while a post
	// delivered before the wait is remembered.
	sem.TryAcquire(1)

	v.mu.Lock()
	defer v.mu.Unlock()
	vc := vectorclock.New()
	vc.Increment(curr)
	if parent.Valid() {
		parentVC, ok := v.currVC[parent]
		if !ok {
			v.log.Fatalf("verifier: no vector clock for parent thread %d", parent)
		}
		vc.Join(parentVC)
	}
	v.currVC[curr] = vc
	if _, ok := v.thdSem[curr]; !ok {
		v.thdSem[curr] = sem
	}
	v.avail[curr] = struct{}{}
}

// ThreadExit retires the thread from both scheduler sets; if the runnable
// set drains, a random postponed thread is chosen to keep the program
// moving.
func (v *Verifier) ThreadExit(curr event.ThreadID, clk event.Clock) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.thdSem, curr)
	delete(v.avail, curr)
	delete(v.postponed, curr)
	if len(v.avail) == 0 {
		v.wakeRandomPostponedLocked()
	}
}

// BeforePthreadJoin blocks the joiner on a native sync object.
func (v *Verifier) BeforePthreadJoin(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, child event.ThreadID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.avail, curr)
	if len(v.avail) == 0 {
		v.wakeRandomPostponedLocked()
	}
}

// AfterPthreadJoin merges the child's clock and unblocks the joiner.
func (v *Verifier) AfterPthreadJoin(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, child event.ThreadID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	vc := v.vcOfLocked(curr)
	if childVC, ok := v.currVC[child]; ok {
		vc.Join(childVC)
	}
	vc.Increment(curr)
	v.avail[curr] = struct{}{}
}

// AfterPthreadCreate advances the parent past the creation point.
func (v *Verifier) AfterPthreadCreate(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, child event.ThreadID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vcOfLocked(curr).Increment(curr)
}

func (v *Verifier) vcOfLocked(t event.ThreadID) *vectorclock.VectorClock {
	vc, ok := v.currVC[t]
	if !ok {
		v.log.Fatalf("verifier: no vector clock for thread %d; thread_start was never observed", t)
	}
	return vc
}

// --- mutex ---

func (v *Verifier) mutexMetaLocked(addr event.Addr) *vMutexMeta {
	m, ok := v.mutexMetas[addr]
	if !ok {
		m = newVMutexMeta()
		v.mutexMetas[addr] = m
	}
	return m
}

func (v *Verifier) rwlockMetaLocked(addr event.Addr) *vRwlockMeta {
	m, ok := v.rwlockMetas[addr]
	if !ok {
		m = newVRwlockMeta()
		v.rwlockMetas[addr] = m
	}
	return m
}

// BeforePthreadMutexLock blocks the acquirer; if that drained the runnable
// set and the current holder is postponed, the holder is woken so it can
// eventually release.
func (v *Verifier) BeforePthreadMutexLock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m := v.mutexMetaLocked(addr)
	holder := m.owner
	delete(v.avail, curr)
	if holder.Valid() && holder != curr {
		if len(v.avail) == 0 {
			if _, ok := v.postponed[holder]; ok {
				v.wakeLocked(holder)
			}
		}
	} else if len(v.avail) == 0 {
		v.wakeRandomPostponedLocked()
	}
}

// AfterPthreadMutexLock records ownership, joins the released clock and
// unblocks the acquirer.
func (v *Verifier) AfterPthreadMutexLock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m := v.mutexMetaLocked(addr)
	v.vcOfLocked(curr).Join(m.vc)
	m.owner = curr
	v.avail[curr] = struct{}{}
}

// BeforePthreadMutexUnlock publishes the holder's clock.
func (v *Verifier) BeforePthreadMutexUnlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m := v.mutexMetaLocked(addr)
	vc := v.vcOfLocked(curr)
	m.vc.Assign(vc)
	vc.Increment(curr)
}

// AfterPthreadMutexUnlock clears ownership.
func (v *Verifier) AfterPthreadMutexUnlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mutexMetaLocked(addr).owner = event.InvalidThreadID
}

// BeforePthreadMutexTryLock behaves like a blocking lock attempt.
func (v *Verifier) BeforePthreadMutexTryLock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	v.BeforePthreadMutexLock(curr, clk, inst, addr)
}

// AfterPthreadMutexTryLock joins and takes ownership only on success; a
// failed try still returns the thread to the runnable set.
func (v *Verifier) AfterPthreadMutexTryLock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, ret int) {
	if ret == 0 {
		v.AfterPthreadMutexLock(curr, clk, inst, addr)
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.avail[curr] = struct{}{}
}

// --- rwlock ---

// BeforePthreadRwlockRdlock blocks the acquirer and, when the runnable set
// drains, wakes a postponed writer holder.
func (v *Verifier) BeforePthreadRwlockRdlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m := v.rwlockMetaLocked(addr)
	holder := m.wrOwner
	delete(v.avail, curr)
	if holder.Valid() && holder != curr {
		if len(v.avail) == 0 {
			if _, ok := v.postponed[holder]; ok {
				v.wakeLocked(holder)
			}
		}
	} else if len(v.avail) == 0 {
		v.wakeRandomPostponedLocked()
	}
}

// AfterPthreadRwlockRdlock joins the released clock and registers the
// reader.
func (v *Verifier) AfterPthreadRwlockRdlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m := v.rwlockMetaLocked(addr)
	v.vcOfLocked(curr).Join(m.vc)
	m.rdOwners[curr] = struct{}{}
	m.ref++
	v.avail[curr] = struct{}{}
}

// BeforePthreadRwlockWrlock blocks the acquirer; when the runnable set
// drains and readers hold the lock, every postponed reader is woken.
func (v *Verifier) BeforePthreadRwlockWrlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m := v.rwlockMetaLocked(addr)
	delete(v.avail, curr)
	if len(m.rdOwners) > 0 {
		if len(v.avail) == 0 {
			for rd := range m.rdOwners {
				if _, ok := v.postponed[rd]; ok {
					v.wakeLocked(rd)
				}
			}
		}
	} else if len(v.avail) == 0 {
		v.wakeRandomPostponedLocked()
	}
}

// AfterPthreadRwlockWrlock joins the released clock and registers the
// writer.
func (v *Verifier) AfterPthreadRwlockWrlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m := v.rwlockMetaLocked(addr)
	vc := v.vcOfLocked(curr)
	vc.Join(m.vc)
	vc.Join(m.waitVC)
	m.wrOwner = curr
	m.ref++
	v.avail[curr] = struct{}{}
}

// BeforePthreadRwlockUnlock merges into the wait clock and drains it when
// the last holder leaves.
func (v *Verifier) BeforePthreadRwlockUnlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m := v.rwlockMetaLocked(addr)
	vc := v.vcOfLocked(curr)
	if m.ref > 0 {
		m.ref--
	}
	m.waitVC.Join(vc)
	if m.ref == 0 {
		m.vc.Assign(m.waitVC)
		m.waitVC.Clear()
	}
	vc.Increment(curr)
}

// AfterPthreadRwlockUnlock clears whichever ownership the thread held.
func (v *Verifier) AfterPthreadRwlockUnlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m := v.rwlockMetaLocked(addr)
	if m.wrOwner == curr {
		m.wrOwner = event.InvalidThreadID
	}
	delete(m.rdOwners, curr)
}

// Try variants behave like the blocking forms with the after-effects gated
// on the return value.

func (v *Verifier) BeforePthreadRwlockTryRdlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	v.BeforePthreadRwlockRdlock(curr, clk, inst, addr)
}

func (v *Verifier) AfterPthreadRwlockTryRdlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, ret int) {
	if ret == 0 {
		v.AfterPthreadRwlockRdlock(curr, clk, inst, addr)
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.avail[curr] = struct{}{}
}

func (v *Verifier) BeforePthreadRwlockTryWrlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	v.BeforePthreadRwlockWrlock(curr, clk, inst, addr)
}

func (v *Verifier) AfterPthreadRwlockTryWrlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, ret int) {
	if ret == 0 {
		v.AfterPthreadRwlockWrlock(curr, clk, inst, addr)
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.avail[curr] = struct{}{}
}

// --- allocation and regions ---

func (v *Verifier) AfterMalloc(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, size uint64, addr event.Addr) {
	v.allocAddrRegion(addr, size)
}

func (v *Verifier) AfterCalloc(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, nmemb, size uint64, addr event.Addr) {
	v.allocAddrRegion(addr, nmemb*size)
}

func (v *Verifier) BeforeRealloc(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, origAddr event.Addr, size uint64) {
	v.freeAddrRegion(origAddr)
}

func (v *Verifier) AfterRealloc(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, origAddr event.Addr, size uint64, newAddr event.Addr) {
	v.allocAddrRegion(newAddr, size)
}

func (v *Verifier) BeforeFree(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	v.freeAddrRegion(addr)
}

func (v *Verifier) ImageLoad(img *sinfo.Image, low, high, dataStart event.Addr, dataSize uint64, bssStart event.Addr, bssSize uint64) {
	if dataStart != 0 {
		v.allocAddrRegion(dataStart, dataSize)
	}
	if bssStart != 0 {
		v.allocAddrRegion(bssStart, bssSize)
	}
}

func (v *Verifier) ImageUnload(img *sinfo.Image, low, high, dataStart event.Addr, dataSize uint64, bssStart event.Addr, bssSize uint64) {
	if dataStart != 0 {
		v.freeAddrRegion(dataStart)
	}
	if bssStart != 0 {
		v.freeAddrRegion(bssStart)
	}
}

func (v *Verifier) allocAddrRegion(addr event.Addr, size uint64) {
	if addr == 0 || size == 0 {
		return
	}
	v.filter.Add(addr, size)
}

// freeAddrRegion drops the region and drains every covered meta,
// snapshots included.
func (v *Verifier) freeAddrRegion(addr event.Addr) {
	if addr == 0 {
		return
	}
	size := v.filter.Remove(addr)
	if size == 0 {
		return
	}
	start := addr.AlignDown(v.unitSize)
	end := (addr + event.Addr(size)).AlignUp(v.unitSize)

	v.mu.Lock()
	defer v.mu.Unlock()
	for unit := start; unit < end; unit += event.Addr(v.unitSize) {
		m, ok := v.metas[unit]
		if !ok {
			continue
		}
		delete(v.metas, unit)
		for _, set := range v.pstmtMetas {
			delete(set, m)
		}
		for _, set := range v.thdMetas {
			delete(set, m)
		}
	}
}

// --- memory accesses ---

// BeforeMemRead runs the scheduler protocol for a read access.
func (v *Verifier) BeforeMemRead(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, size uint64) {
	if !v.chooseRandomThreadBeforeExecute(addr, curr) {
		return
	}
	v.processReadOrWrite(curr, inst, addr, size, event.Read)
}

// BeforeMemWrite runs the scheduler protocol for a write access.
func (v *Verifier) BeforeMemWrite(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, size uint64) {
	if !v.chooseRandomThreadBeforeExecute(addr, curr) {
		return
	}
	v.processReadOrWrite(curr, inst, addr, size, event.Write)
}

// chooseRandomThreadBeforeExecute is the multi-threaded region of the
// protocol: addresses outside any known allocation are ignored; otherwise
// the caller spins until the random chooser favors it, and returns holding
// the verify lock.
func (v *Verifier) chooseRandomThreadBeforeExecute(addr event.Addr, curr event.ThreadID) bool {
	if !v.filter.Contains(addr) {
		return false
	}
	v.verifyMu.Lock()
	for {
		v.mu.Lock()
		chosen := v.randomAvailLocked()
		v.mu.Unlock()
		if chosen == event.InvalidThreadID || chosen == curr {
			return true
		}
		v.verifyMu.Unlock()
		time.Sleep(v.spin)
		v.verifyMu.Lock()
	}
}

// randomAvailLocked picks a random runnable thread, or invalid when the
// set is empty. Ids are sorted first so the seeded chooser is replayable.
func (v *Verifier) randomAvailLocked() event.ThreadID {
	if len(v.avail) == 0 {
		return event.InvalidThreadID
	}
	ids := make([]event.ThreadID, 0, len(v.avail))
	for t := range v.avail {
		ids = append(ids, t)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids[v.rng.Intn(len(ids))]
}

func (v *Verifier) randomPostponedLocked() event.ThreadID {
	if len(v.postponed) == 0 {
		return event.InvalidThreadID
	}
	ids := make([]event.ThreadID, 0, len(v.postponed))
	for t := range v.postponed {
		ids = append(ids, t)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids[v.rng.Intn(len(ids))]
}

// processReadOrWrite is the single-threaded region: the caller holds the
// verify lock. Every exit path must release it, directly or through
// postponeThread.
func (v *Verifier) processReadOrWrite(curr event.ThreadID, inst *sinfo.Inst, addr event.Addr, size uint64, kind event.AccessKind) {
	pstmt := v.praceDB.PStmtOf(inst)
	// Statements outside every open pair carry no verification interest;
	// postponing on them would throttle the whole program under full
	// instrumentation.
	if !v.praceDB.InPair(pstmt) {
		v.verifyMu.Unlock()
		return
	}

	start := addr.AlignDown(v.unitSize)
	end := (addr + event.Addr(size)).AlignUp(v.unitSize)

	v.mu.Lock()

	// All open pairs this statement completes, against statements already
	// holding metas open.
	var firstPstmts []*racedb.PStmt
	for p := range v.pstmtMetas {
		if v.praceDB.SecondPotentialStatement(p, pstmt) {
			firstPstmts = append(firstPstmts, p)
		}
	}
	sort.Slice(firstPstmts, func(i, j int) bool {
		return firstPstmts[i].String() < firstPstmts[j].String()
	})

	if len(firstPstmts) == 0 {
		// First side of a potential pair: snapshot every covered unit,
		// hold the metas open under this statement, postpone.
		clk := v.vcOfLocked(curr).Get(curr)
		for unit := start; unit < end; unit += event.Addr(v.unitSize) {
			m := v.metaLocked(unit)
			m.addSnapshot(curr, snapshot{clk: clk, kind: kind, inst: inst})
			v.pstmtMetasLocked(pstmt)[m] = struct{}{}
			v.thdMetasLocked(curr)[m] = struct{}{}
		}
		v.mu.Unlock()
		v.postponeThread(curr)
		return
	}

	ppThds := make(map[event.ThreadID]struct{})
	for _, p := range firstPstmts {
		v.racedMetaLocked(p, start, end, pstmt, inst, curr, kind, ppThds)
	}
	v.mu.Unlock()

	if len(ppThds) > 0 {
		v.handleRace(ppThds, curr)
	} else {
		v.handleNoRace(curr)
	}
}

func (v *Verifier) metaLocked(addr event.Addr) *meta {
	m, ok := v.metas[addr]
	if !ok {
		m = newMeta(addr)
		v.metas[addr] = m
	}
	return m
}

func (v *Verifier) pstmtMetasLocked(p *racedb.PStmt) metaSet {
	set, ok := v.pstmtMetas[p]
	if !ok {
		set = make(metaSet)
		v.pstmtMetas[p] = set
	}
	return set
}

func (v *Verifier) thdMetasLocked(t event.ThreadID) metaSet {
	set, ok := v.thdMetas[t]
	if !ok {
		set = make(metaSet)
		v.thdMetas[t] = set
	}
	return set
}

func sortedThreadIDs(m map[event.ThreadID]metaSet) []event.ThreadID {
	ids := make([]event.ThreadID, 0, len(m))
	for t := range m {
		ids = append(ids, t)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// racedMetaLocked decides, for every covered unit still held open by
// firstPstmt, whether the current access overlaps a pending or historical
// access of another thread in a racing way. Racing postponed threads are
// collected into ppThds; the pair is closed on the first confirmation.
func (v *Verifier) racedMetaLocked(firstPstmt *racedb.PStmt, start, end event.Addr,
	pstmt *racedb.PStmt, inst *sinfo.Inst, curr event.ThreadID, kind event.AccessKind,
	ppThds map[event.ThreadID]struct{}) {

	firstMetas, ok := v.pstmtMetas[firstPstmt]
	if !ok || len(firstMetas) == 0 {
		return
	}
	secondMetas := v.pstmtMetasLocked(pstmt)
	currMetas := v.thdMetasLocked(curr)

	raced := false
	clk := v.vcOfLocked(curr).Get(curr)

	for unit := start; unit < end; unit += event.Addr(v.unitSize) {
		m := v.metaLocked(unit)
		if _, held := firstMetas[m]; held {
			for _, u := range sortedThreadIDs(v.thdMetas) {
				uMetas := v.thdMetas[u]
				if _, touches := uMetas[m]; !touches {
					continue
				}

				// Pending overlap: the other thread is postponed on this
				// meta right now; compare against its latest snapshot.
				if _, pp := v.postponed[u]; pp {
					if ss := m.lastSnapshot(u); ss != nil && !m.racedInstPair(ss.inst, inst) {
						if kind == event.Write || ss.kind == event.Write {
							raced = true
							ppThds[u] = struct{}{}
							m.addRacedInstPair(ss.inst, inst)
							v.reportConfirmed(m, u, ss, curr, inst, kind)
						}
					}
				}

				// Historical overlap: the other thread already resumed;
				// scan the snapshots it left behind that this thread has
				// not ordered behind itself.
				if u != curr {
					seen := v.vcOfLocked(curr).Get(u)
					for i := range m.snapshots[u] {
						ss := &m.snapshots[u][i]
						if ss.clk <= seen || m.racedInstPair(ss.inst, inst) {
							continue
						}
						if kind == event.Write || ss.kind == event.Write {
							raced = true
							m.addRacedInstPair(ss.inst, inst)
							v.reportConfirmed(m, u, ss, curr, inst, kind)
						}
					}
				}
			}
		}

		m.addSnapshot(curr, snapshot{clk: clk, kind: kind, inst: inst})
		secondMetas[m] = struct{}{}
		currMetas[m] = struct{}{}
	}

	if raced {
		v.praceDB.RemoveRelationMapping(firstPstmt, pstmt)
	}
}

func (v *Verifier) reportConfirmed(m *meta, u event.ThreadID, ss *snapshot,
	curr event.ThreadID, inst *sinfo.Inst, kind event.AccessKind) {
	v.raceDB.ReportRace(u, ss.inst, ss.kind, curr, inst, kind)
	v.log.WithFields(logrus.Fields{
		"addr":   m.addr,
		"first":  ss.inst.String(),
		"second": inst.String(),
	}).Debugf("%s race confirmed", raceTypeName(ss.kind, kind))
}

func raceTypeName(first, second event.AccessKind) string {
	switch {
	case first == event.Write && second == event.Write:
		return "WAW"
	case first == event.Write:
		return "WAR"
	default:
		return "RAW"
	}
}

// handleNoRace postpones the thread: its statement window stays open for a
// partner to arrive.
func (v *Verifier) handleNoRace(curr event.ThreadID) {
	v.postponeThread(curr)
}

// handleRace flips a fair coin: either wake every raced postponed thread
// and postpone the current one, or keep the current one running. Either
// way the verify lock is released.
func (v *Verifier) handleRace(ppThds map[event.ThreadID]struct{}, curr event.ThreadID) {
	v.mu.Lock()
	flip := v.rng.Intn(2) == 0
	if flip {
		for t := range ppThds {
			v.wakeLocked(t)
		}
		v.mu.Unlock()
		v.postponeThread(curr)
		return
	}
	v.mu.Unlock()
	v.verifyMu.Unlock()
}

// postponeThread parks the current thread on its semaphore. Both the
// internal and the verify lock are released before the wait; every branch
// releases the verify lock exactly once.
func (v *Verifier) postponeThread(curr event.ThreadID) {
	v.mu.Lock()
	// The only runnable thread must not be parked: everyone else is
	// blocked on native sync, and parking curr would deadlock the program.
	if len(v.avail) == 1 && len(v.postponed) == 0 {
		if _, only := v.avail[curr]; only {
			v.mu.Unlock()
			v.verifyMu.Unlock()
			return
		}
	}

	v.postponed[curr] = struct{}{}
	delete(v.avail, curr)
	if len(v.avail) == 0 {
		v.wakeRandomPostponedLocked()
	}
	sem := v.thdSem[curr]
	v.mu.Unlock()
	v.verifyMu.Unlock()

	if sem == nil {
		return
	}
	if err := sem.Acquire(context.Background(), 1); err != nil {
		v.log.Fatalf("verifier: semaphore wait for thread %d: %v", curr, err)
	}
}

// wakeRandomPostponedLocked implements the liveness rule: whenever the
// runnable set drains, some postponed thread must be chosen to continue.
func (v *Verifier) wakeRandomPostponedLocked() {
	t := v.randomPostponedLocked()
	if t == event.InvalidThreadID {
		return
	}
	v.wakeLocked(t)
}

// wakeLocked posts the thread's semaphore and returns it to the runnable
// set. Waking a thread that is not postponed is a no-op, which keeps a
// racing waker from over-posting the binary semaphore.
func (v *Verifier) wakeLocked(t event.ThreadID) {
	if _, ok := v.postponed[t]; !ok {
		return
	}
	sem := v.thdSem[t]
	if sem == nil {
		return
	}
	sem.Release(1)
	delete(v.postponed, t)
	v.avail[t] = struct{}{}
}
