package detector

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kolkov/raceverify/internal/race/analyzer"
	"github.com/kolkov/raceverify/internal/race/event"
	"github.com/kolkov/raceverify/internal/race/knob"
	"github.com/kolkov/raceverify/internal/race/lockset"
	"github.com/kolkov/raceverify/internal/race/racedb"
	"github.com/kolkov/raceverify/internal/race/region"
	"github.com/kolkov/raceverify/internal/race/sinfo"
	"github.com/kolkov/raceverify/internal/race/vectorclock"
)

// DefaultUnitSize is the monitoring granularity in bytes when the
// unit_size_ option is left alone. Every access is expanded to the aligned
// units it covers.
const DefaultUnitSize = 4

// impl is the subset of behavior each concrete analyzer plugs into the
// shared framework: the shape of its per-address state and what it does on
// each access. All four methods run with the internal lock held.
type impl interface {
	newMeta(addr event.Addr) Meta
	processRead(curr event.ThreadID, m Meta, inst *sinfo.Inst)
	processWrite(curr event.ThreadID, m Meta, inst *sinfo.Inst)
	processFree(m Meta)
}

// Detector is the analyzer framework: per-thread vector clocks and lock
// sets, synchronization object metadata, per-address access metadata, and
// the handlers that keep them all consistent with the event stream.
//
// One internal lock serializes every handler, so vector-clock updates for
// synchronization events are linearized with respect to every memory event
// between them. The happens-before comparisons rely on this.
type Detector struct {
	analyzer.Base

	mu     sync.Mutex
	log    *logrus.Logger
	knobs  *knob.Knob
	raceDB *racedb.DB

	unitSize      uint64
	trackRacyInst bool

	filter *region.Filter

	currVC   map[event.ThreadID]*vectorclock.VectorClock
	writerLS map[event.ThreadID]*lockset.LockSet
	readerLS map[event.ThreadID]*lockset.LockSet

	metas        map[event.Addr]Meta
	mutexMetas   map[event.Addr]*mutexMeta
	rwlockMetas  map[event.Addr]*rwlockMeta
	barrierMetas map[event.Addr]*barrierMeta
	condMetas    map[event.Addr]*condMeta
	semMetas     map[event.Addr]*semMeta

	impl impl
}

// Register declares the options shared by every detector.
func (d *Detector) Register(k *knob.Knob) {
	k.RegisterInt("unit_size_", "the monitoring granularity in bytes", DefaultUnitSize)
	k.RegisterBool("track_racy_inst", "whether track potential racy instructions", false)
}

// Setup wires the detector to its collaborators and reads back the parsed
// options. Must be called once before the first event.
func (d *Detector) Setup(log *logrus.Logger, k *knob.Knob, db *racedb.DB) {
	d.log = log
	d.knobs = k
	d.raceDB = db
	d.unitSize = uint64(k.ValueInt("unit_size_"))
	if d.unitSize == 0 {
		d.unitSize = DefaultUnitSize
	}
	d.trackRacyInst = k.ValueBool("track_racy_inst")
	d.filter = region.NewFilter()
	d.currVC = make(map[event.ThreadID]*vectorclock.VectorClock)
	d.writerLS = make(map[event.ThreadID]*lockset.LockSet)
	d.readerLS = make(map[event.ThreadID]*lockset.LockSet)
	d.metas = make(map[event.Addr]Meta)
	d.mutexMetas = make(map[event.Addr]*mutexMeta)
	d.rwlockMetas = make(map[event.Addr]*rwlockMeta)
	d.barrierMetas = make(map[event.Addr]*barrierMeta)
	d.condMetas = make(map[event.Addr]*condMeta)
	d.semMetas = make(map[event.Addr]*semMeta)
}

// setImpl attaches the concrete analyzer. Called by the concrete
// constructors only.
func (d *Detector) setImpl(i impl) { d.impl = i }

// RaceDB exposes the report sink to the embedding analyzers.
func (d *Detector) RaceDB() *racedb.DB { return d.raceDB }

// vcOfLocked returns thread t's clock. A missing clock on an observed event
// is an invariant violation: subsequent ordering reasoning would be
// garbage, so the engine logs and aborts.
func (d *Detector) vcOfLocked(t event.ThreadID) *vectorclock.VectorClock {
	vc, ok := d.currVC[t]
	if !ok {
		d.log.Fatalf("detector: no vector clock for thread %d; thread_start was never observed", t)
	}
	return vc
}

func (d *Detector) writerLSLocked(t event.ThreadID) *lockset.LockSet {
	ls, ok := d.writerLS[t]
	if !ok {
		ls = lockset.New()
		d.writerLS[t] = ls
	}
	return ls
}

func (d *Detector) readerLSLocked(t event.ThreadID) *lockset.LockSet {
	ls, ok := d.readerLS[t]
	if !ok {
		ls = lockset.New()
		d.readerLS[t] = ls
	}
	return ls
}

// fullLockSetLocked snapshots the lock set relevant to an access: writes
// are protected only by writer locks, reads by reader and writer locks
// alike.
func (d *Detector) fullLockSetLocked(t event.ThreadID, kind event.AccessKind) *lockset.LockSet {
	ls := d.writerLSLocked(t).Clone()
	if !kind.IsWrite() {
		ls.Join(d.readerLSLocked(t))
	}
	return ls
}

// Lazy sync-meta constructors. Programs sometimes hold locks before any
// observed init, so a missing meta on unlock is tolerated by creation.

func (d *Detector) mutexMetaLocked(addr event.Addr) *mutexMeta {
	m, ok := d.mutexMetas[addr]
	if !ok {
		m = newMutexMeta()
		d.mutexMetas[addr] = m
	}
	return m
}

func (d *Detector) rwlockMetaLocked(addr event.Addr) *rwlockMeta {
	m, ok := d.rwlockMetas[addr]
	if !ok {
		m = newRwlockMeta()
		d.rwlockMetas[addr] = m
	}
	return m
}

func (d *Detector) barrierMetaLocked(addr event.Addr) *barrierMeta {
	m, ok := d.barrierMetas[addr]
	if !ok {
		m = newBarrierMeta()
		d.barrierMetas[addr] = m
	}
	return m
}

func (d *Detector) condMetaLocked(addr event.Addr) *condMeta {
	m, ok := d.condMetas[addr]
	if !ok {
		m = newCondMeta()
		d.condMetas[addr] = m
	}
	return m
}

func (d *Detector) semMetaLocked(addr event.Addr) *semMeta {
	m, ok := d.semMetas[addr]
	if !ok {
		m = newSemMeta()
		d.semMetas[addr] = m
	}
	return m
}

func (d *Detector) metaLocked(addr event.Addr) Meta {
	m, ok := d.metas[addr]
	if !ok {
		m = d.impl.newMeta(addr)
		d.metas[addr] = m
	}
	return m
}

// reportRace forwards a discovered pair to the race database sink and
// flags the meta. The sink deduplicates; the analyzer reports exactly once
// per discovery.
func (d *Detector) reportRace(m Meta, t1 event.ThreadID, i1 *sinfo.Inst, k1 event.AccessKind,
	t2 event.ThreadID, i2 *sinfo.Inst, k2 event.AccessKind) {
	m.SetRacy()
	d.raceDB.ReportRace(t1, i1, k1, t2, i2, k2)
}

// flushRacyInsts pushes the meta's instruction set into the race database
// when the address turned out racy. Called by processFree implementations.
func (d *Detector) flushRacyInsts(m Meta) {
	if !d.trackRacyInst || !m.Racy() {
		return
	}
	for _, inst := range m.RaceInsts() {
		d.raceDB.SetRacyInst(inst, true)
	}
}

// --- thread lifecycle ---

// ThreadStart creates the thread's clock: its own component advanced to 1,
// joined with the parent's clock when the thread was created by one.
func (d *Detector) ThreadStart(curr, parent event.ThreadID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vc := vectorclock.New()
	vc.Increment(curr)
	if parent.Valid() {
		vc.Join(d.vcOfLocked(parent))
	}
	d.currVC[curr] = vc
	d.writerLS[curr] = lockset.New()
	d.readerLS[curr] = lockset.New()
}

// ThreadExit publishes nothing: the exiting thread's clock becomes visible
// to others only through a join.
func (d *Detector) ThreadExit(curr event.ThreadID, clk event.Clock) {}

// AfterPthreadCreate advances the parent past the creation point; the
// child's start handler performs the join from the parent.
func (d *Detector) AfterPthreadCreate(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, child event.ThreadID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vcOfLocked(curr).Increment(curr)
}

// AfterPthreadJoin merges the joined child's clock into the joiner.
func (d *Detector) AfterPthreadJoin(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, child event.ThreadID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vc := d.vcOfLocked(curr)
	vc.Join(d.vcOfLocked(child))
	vc.Increment(curr)
}

// --- mutex ---

// AfterPthreadMutexLock joins the clock released by the previous unlock and
// extends the holder's writer lock set.
func (d *Detector) AfterPthreadMutexLock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.mutexMetaLocked(addr)
	d.vcOfLocked(curr).Join(m.vc)
	m.owner = curr
	d.writerLSLocked(curr).Add(addr)
}

// BeforePthreadMutexUnlock publishes the holder's clock into the mutex meta
// and advances the holder past the release point.
func (d *Detector) BeforePthreadMutexUnlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.mutexMetaLocked(addr)
	vc := d.vcOfLocked(curr)
	m.vc.Assign(vc)
	m.owner = event.InvalidThreadID
	vc.Increment(curr)
	d.writerLSLocked(curr).Remove(addr)
}

// AfterPthreadMutexTryLock applies the lock effects only when the try
// succeeded; joining the clock on a failed try would fabricate an ordering
// edge that never happened.
func (d *Detector) AfterPthreadMutexTryLock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, ret int) {
	if ret != 0 {
		return
	}
	d.AfterPthreadMutexLock(curr, clk, inst, addr)
}

// --- rwlock ---

// AfterPthreadRwlockRdlock joins the writer-released clock and extends the
// reader lock set.
func (d *Detector) AfterPthreadRwlockRdlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.rwlockMetaLocked(addr)
	d.vcOfLocked(curr).Join(m.vc)
	m.rdOwners[curr] = struct{}{}
	m.ref++
	d.readerLSLocked(curr).Add(addr)
}

// AfterPthreadRwlockWrlock joins both the released clock and the pending
// reader contributions, and extends the writer lock set.
func (d *Detector) AfterPthreadRwlockWrlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.rwlockMetaLocked(addr)
	vc := d.vcOfLocked(curr)
	vc.Join(m.vc)
	vc.Join(m.waitVC)
	m.wrOwner = curr
	m.ref++
	d.writerLSLocked(curr).Add(addr)
}

// BeforePthreadRwlockUnlock merges the unlocker into the wait clock and,
// when the hold count drops to zero, drains the accumulated contributions
// into the released clock. The lock is removed from whichever of the
// thread's lock sets holds it.
func (d *Detector) BeforePthreadRwlockUnlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.rwlockMetaLocked(addr)
	vc := d.vcOfLocked(curr)
	if m.ref > 0 {
		m.ref--
	}
	m.waitVC.Join(vc)
	if m.ref == 0 {
		m.vc.Assign(m.waitVC)
		m.waitVC.Clear()
	}
	vc.Increment(curr)

	if rls := d.readerLSLocked(curr); rls.Contains(addr) {
		rls.Remove(addr)
		delete(m.rdOwners, curr)
	} else {
		d.writerLSLocked(curr).Remove(addr)
		if m.wrOwner == curr {
			m.wrOwner = event.InvalidThreadID
		}
	}
}

// AfterPthreadRwlockTryRdlock applies the rdlock effects only on success.
func (d *Detector) AfterPthreadRwlockTryRdlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, ret int) {
	if ret != 0 {
		return
	}
	d.AfterPthreadRwlockRdlock(curr, clk, inst, addr)
}

// AfterPthreadRwlockTryWrlock applies the wrlock effects only on success.
func (d *Detector) AfterPthreadRwlockTryWrlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, ret int) {
	if ret != 0 {
		return
	}
	d.AfterPthreadRwlockWrlock(curr, clk, inst, addr)
}

// --- condition variables ---

// BeforePthreadCondSignal publishes the signaller's clock into the condvar
// meta so the woken waiter can join it.
func (d *Detector) BeforePthreadCondSignal(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vc := d.vcOfLocked(curr)
	d.condMetaLocked(addr).vc.Join(vc)
	vc.Increment(curr)
}

// BeforePthreadCondBroadcast behaves like signal; every waiter joins the
// same published clock.
func (d *Detector) BeforePthreadCondBroadcast(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	d.BeforePthreadCondSignal(curr, clk, inst, addr)
}

// BeforePthreadCondWait releases the associated mutex: publish the clock
// into the mutex meta, advance, and drop the lock from the lock set.
func (d *Detector) BeforePthreadCondWait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, condAddr, mutexAddr event.Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.mutexMetaLocked(mutexAddr)
	vc := d.vcOfLocked(curr)
	m.vc.Assign(vc)
	m.owner = event.InvalidThreadID
	vc.Increment(curr)
	d.writerLSLocked(curr).Remove(mutexAddr)
}

// AfterPthreadCondWait re-locks the mutex and joins the signaller's
// published clock.
func (d *Detector) AfterPthreadCondWait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, condAddr, mutexAddr event.Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vc := d.vcOfLocked(curr)
	vc.Join(d.condMetaLocked(condAddr).vc)
	m := d.mutexMetaLocked(mutexAddr)
	vc.Join(m.vc)
	m.owner = curr
	d.writerLSLocked(curr).Add(mutexAddr)
}

// BeforePthreadCondTimedwait releases the mutex exactly like a plain wait.
func (d *Detector) BeforePthreadCondTimedwait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, condAddr, mutexAddr event.Addr) {
	d.BeforePthreadCondWait(curr, clk, inst, condAddr, mutexAddr)
}

// AfterPthreadCondTimedwait behaves like a plain wait when the wait was
// signalled. On a non-zero return (timeout) it applies no effect at all:
// neither the signaller's clock nor the mutex clock is joined, and the
// mutex is not added back to the lock set.
func (d *Detector) AfterPthreadCondTimedwait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, condAddr, mutexAddr event.Addr, ret int) {
	if ret != 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	vc := d.vcOfLocked(curr)
	vc.Join(d.condMetaLocked(condAddr).vc)
	m := d.mutexMetaLocked(mutexAddr)
	vc.Join(m.vc)
	m.owner = curr
	d.writerLSLocked(curr).Add(mutexAddr)
}

// --- barrier ---

// AfterPthreadBarrierInit records the participant count and resets the
// round state.
func (d *Detector) AfterPthreadBarrierInit(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, count int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.barrierMetaLocked(addr)
	m.count = count
	m.arrived = 0
	m.waitVC.Clear()
}

// BeforePthreadBarrierWait accumulates the arriving thread's clock; the Nth
// arrival closes the round and publishes the pair-wise join for everyone
// leaving.
func (d *Detector) BeforePthreadBarrierWait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.barrierMetaLocked(addr)
	m.waitVC.Join(d.vcOfLocked(curr))
	m.arrived++
	if m.count > 0 && m.arrived >= m.count {
		m.releaseVC.Assign(m.waitVC)
		m.waitVC.Clear()
		m.arrived = 0
	}
}

// AfterPthreadBarrierWait joins the published round clock and advances the
// leaver's own component.
func (d *Detector) AfterPthreadBarrierWait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vc := d.vcOfLocked(curr)
	vc.Join(d.barrierMetaLocked(addr).releaseVC)
	vc.Increment(curr)
}

// --- semaphore ---

// AfterSemInit resets the semaphore meta; a reinitialized semaphore
// carries no ordering from its previous life.
func (d *Detector) AfterSemInit(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, value int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.semMetaLocked(addr).vc.Clear()
}

// BeforeSemPost publishes the poster's clock into the semaphore meta.
func (d *Detector) BeforeSemPost(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vc := d.vcOfLocked(curr)
	d.semMetaLocked(addr).vc.Join(vc)
	vc.Increment(curr)
}

// AfterSemWait joins the clock published by the post that satisfied the
// wait.
func (d *Detector) AfterSemWait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vcOfLocked(curr).Join(d.semMetaLocked(addr).vc)
}

// --- allocation and regions ---

// AfterMalloc registers the fresh block with the region filter.
func (d *Detector) AfterMalloc(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, size uint64, addr event.Addr) {
	d.allocRegion(addr, size)
}

// AfterCalloc registers the zeroed block.
func (d *Detector) AfterCalloc(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, nmemb, size uint64, addr event.Addr) {
	d.allocRegion(addr, nmemb*size)
}

// BeforeRealloc releases the original block; the new one is registered by
// AfterRealloc once its address is known.
func (d *Detector) BeforeRealloc(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, origAddr event.Addr, size uint64) {
	d.freeRegion(origAddr)
}

// AfterRealloc registers the moved block.
func (d *Detector) AfterRealloc(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, origAddr event.Addr, size uint64, newAddr event.Addr) {
	d.allocRegion(newAddr, size)
}

// BeforeFree drops the block and destroys every covered access meta.
func (d *Detector) BeforeFree(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	d.freeRegion(addr)
}

// ImageLoad registers the image's statically allocated data and bss as
// monitorable regions.
func (d *Detector) ImageLoad(img *sinfo.Image, low, high, dataStart event.Addr, dataSize uint64, bssStart event.Addr, bssSize uint64) {
	if dataStart != 0 {
		d.allocRegion(dataStart, dataSize)
	}
	if bssStart != 0 {
		d.allocRegion(bssStart, bssSize)
	}
}

// ImageUnload releases the image's data and bss regions.
func (d *Detector) ImageUnload(img *sinfo.Image, low, high, dataStart event.Addr, dataSize uint64, bssStart event.Addr, bssSize uint64) {
	if dataStart != 0 {
		d.freeRegion(dataStart)
	}
	if bssStart != 0 {
		d.freeRegion(bssStart)
	}
}

func (d *Detector) allocRegion(addr event.Addr, size uint64) {
	if addr == 0 || size == 0 {
		return
	}
	d.filter.Add(addr, size)
}

func (d *Detector) freeRegion(addr event.Addr) {
	if addr == 0 {
		return
	}
	size := d.filter.Remove(addr)
	if size == 0 {
		return
	}
	start := addr.AlignDown(d.unitSize)
	end := (addr + event.Addr(size)).AlignUp(d.unitSize)

	d.mu.Lock()
	defer d.mu.Unlock()
	for unit := start; unit < end; unit += event.Addr(d.unitSize) {
		if m, ok := d.metas[unit]; ok {
			d.impl.processFree(m)
			delete(d.metas, unit)
		}
	}
}

// --- memory accesses ---

// BeforeMemRead expands the access to its covered units and hands each
// unit's meta to the concrete analyzer.
func (d *Detector) BeforeMemRead(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, size uint64) {
	d.processAccess(curr, inst, addr, size, false)
}

// BeforeMemWrite is the write counterpart of BeforeMemRead.
func (d *Detector) BeforeMemWrite(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, size uint64) {
	d.processAccess(curr, inst, addr, size, true)
}

func (d *Detector) processAccess(curr event.ThreadID, inst *sinfo.Inst, addr event.Addr, size uint64, write bool) {
	if !d.filter.Contains(addr) {
		return
	}
	start := addr.AlignDown(d.unitSize)
	end := (addr + event.Addr(size)).AlignUp(d.unitSize)

	d.mu.Lock()
	defer d.mu.Unlock()
	for unit := start; unit < end; unit += event.Addr(d.unitSize) {
		m := d.metaLocked(unit)
		if write {
			d.impl.processWrite(curr, m, inst)
		} else {
			d.impl.processRead(curr, m, inst)
		}
	}
}
