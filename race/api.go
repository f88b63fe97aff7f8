// Package race is the public event-stream surface of the race detection
// and verification runtime.
//
// The instrumentation runtime attaches a configured control instance once
// at startup and then reports every observed operation through the package
// functions. See doc.go for the contract the stream must honor.
package race

import (
	"sync"

	"github.com/kolkov/raceverify/internal/race/control"
	"github.com/kolkov/raceverify/internal/race/event"
	"github.com/kolkov/raceverify/internal/race/sinfo"
)

// ThreadID identifies an application thread; see NewThreadID.
type ThreadID = event.ThreadID

// InvalidThreadID denotes "no thread", used as the main thread's parent.
const InvalidThreadID = event.InvalidThreadID

// Clock is a thread-local logical timestamp carried on every record.
type Clock = event.Clock

// Addr is an application memory address.
type Addr = event.Addr

// Inst identifies a static instruction; intern through StaticInfo.
type Inst = sinfo.Inst

var (
	attachOnce sync.Once
	ctrl       *control.Control
)

// Attach installs the process-wide control instance. The first call wins;
// later calls are no-ops so that a library user and the generated startup
// hook cannot fight over it.
func Attach(c *control.Control) {
	attachOnce.Do(func() { ctrl = c })
}

// Attached reports whether a control instance is installed.
func Attached() bool { return ctrl != nil }

// Fini flushes the runtime: worker deques are drained, analyzers are
// notified and the static info database is persisted.
func Fini() error {
	if ctrl == nil {
		return nil
	}
	return ctrl.ProgramExit()
}

// NewThreadID allocates the id for a newly observed application thread.
func NewThreadID() ThreadID { return ctrl.NewThreadID() }

// StaticInfo exposes the instruction interning tables so wrappers can
// resolve instruction handles before reporting accesses.
func StaticInfo() *sinfo.StaticInfo { return ctrl.StaticInfo() }

// ThreadStart reports that a thread began executing. The record must be
// delivered before the parent's AfterPthreadCreate so the child inherits
// the pre-creation clock.
func ThreadStart(curr, parent ThreadID) { ctrl.ThreadStart(curr, parent) }

// ThreadExit reports that a thread finished, carrying its final clock.
func ThreadExit(curr ThreadID, clk Clock) { ctrl.ThreadExit(curr, clk) }

// ImageLoad reports a loaded image with its data and bss segments.
func ImageLoad(img *sinfo.Image, low, high, dataStart Addr, dataSize uint64, bssStart Addr, bssSize uint64) {
	ctrl.ImageLoad(img, low, high, dataStart, dataSize, bssStart, bssSize)
}

// ImageUnload reports an unloaded image.
func ImageUnload(img *sinfo.Image, low, high, dataStart Addr, dataSize uint64, bssStart Addr, bssSize uint64) {
	ctrl.ImageUnload(img, low, high, dataStart, dataSize, bssStart, bssSize)
}

// MemRead reports a memory read about to execute.
func MemRead(curr ThreadID, clk Clock, inst *Inst, addr Addr, size uint64) {
	ctrl.BeforeMemRead(curr, clk, inst, addr, size)
}

// MemRead2 reports the second read operand of a two-read instruction.
func MemRead2(curr ThreadID, clk Clock, inst *Inst, addr Addr, size uint64) {
	ctrl.BeforeMemRead2(curr, clk, inst, addr, size)
}

// MemWrite reports a memory write about to execute.
func MemWrite(curr ThreadID, clk Clock, inst *Inst, addr Addr, size uint64) {
	ctrl.BeforeMemWrite(curr, clk, inst, addr, size)
}

// AtomicInstBefore reports an atomic read-modify-write about to execute.
func AtomicInstBefore(curr ThreadID, clk Clock, inst *Inst, opcode string, addr Addr) {
	ctrl.BeforeAtomicInst(curr, clk, inst, opcode, addr)
}

// AtomicInstAfter reports a completed atomic read-modify-write.
func AtomicInstAfter(curr ThreadID, clk Clock, inst *Inst, opcode string) {
	ctrl.AfterAtomicInst(curr, clk, inst, opcode)
}

// PthreadCreate reports a completed pthread_create in the parent.
func PthreadCreate(curr ThreadID, clk Clock, inst *Inst, child ThreadID) {
	ctrl.AfterPthreadCreate(curr, clk, inst, child)
}

// PthreadJoinBefore reports a join about to block.
func PthreadJoinBefore(curr ThreadID, clk Clock, inst *Inst, child ThreadID) {
	ctrl.BeforePthreadJoin(curr, clk, inst, child)
}

// PthreadJoinAfter reports a completed join.
func PthreadJoinAfter(curr ThreadID, clk Clock, inst *Inst, child ThreadID) {
	ctrl.AfterPthreadJoin(curr, clk, inst, child)
}

// MutexLockBefore reports a mutex acquisition about to block.
func MutexLockBefore(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.BeforePthreadMutexLock(curr, clk, inst, addr)
}

// MutexLockAfter reports a completed mutex acquisition.
func MutexLockAfter(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.AfterPthreadMutexLock(curr, clk, inst, addr)
}

// MutexUnlockBefore reports a mutex release about to execute.
func MutexUnlockBefore(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.BeforePthreadMutexUnlock(curr, clk, inst, addr)
}

// MutexUnlockAfter reports a completed mutex release.
func MutexUnlockAfter(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.AfterPthreadMutexUnlock(curr, clk, inst, addr)
}

// MutexTryLockBefore reports a try-lock attempt.
func MutexTryLockBefore(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.BeforePthreadMutexTryLock(curr, clk, inst, addr)
}

// MutexTryLockAfter reports a completed try-lock with its return value;
// non-zero means the acquisition did not happen.
func MutexTryLockAfter(curr ThreadID, clk Clock, inst *Inst, addr Addr, ret int) {
	ctrl.AfterPthreadMutexTryLock(curr, clk, inst, addr, ret)
}

// RwlockRdlockBefore reports a reader acquisition about to block.
func RwlockRdlockBefore(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.BeforePthreadRwlockRdlock(curr, clk, inst, addr)
}

// RwlockRdlockAfter reports a completed reader acquisition.
func RwlockRdlockAfter(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.AfterPthreadRwlockRdlock(curr, clk, inst, addr)
}

// RwlockWrlockBefore reports a writer acquisition about to block.
func RwlockWrlockBefore(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.BeforePthreadRwlockWrlock(curr, clk, inst, addr)
}

// RwlockWrlockAfter reports a completed writer acquisition.
func RwlockWrlockAfter(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.AfterPthreadRwlockWrlock(curr, clk, inst, addr)
}

// RwlockUnlockBefore reports an rwlock release about to execute.
func RwlockUnlockBefore(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.BeforePthreadRwlockUnlock(curr, clk, inst, addr)
}

// RwlockUnlockAfter reports a completed rwlock release.
func RwlockUnlockAfter(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.AfterPthreadRwlockUnlock(curr, clk, inst, addr)
}

// RwlockTryRdlockBefore reports a reader try-lock attempt.
func RwlockTryRdlockBefore(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.BeforePthreadRwlockTryRdlock(curr, clk, inst, addr)
}

// RwlockTryRdlockAfter reports a completed reader try-lock.
func RwlockTryRdlockAfter(curr ThreadID, clk Clock, inst *Inst, addr Addr, ret int) {
	ctrl.AfterPthreadRwlockTryRdlock(curr, clk, inst, addr, ret)
}

// RwlockTryWrlockBefore reports a writer try-lock attempt.
func RwlockTryWrlockBefore(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.BeforePthreadRwlockTryWrlock(curr, clk, inst, addr)
}

// RwlockTryWrlockAfter reports a completed writer try-lock.
func RwlockTryWrlockAfter(curr ThreadID, clk Clock, inst *Inst, addr Addr, ret int) {
	ctrl.AfterPthreadRwlockTryWrlock(curr, clk, inst, addr, ret)
}

// CondSignal reports a condition signal about to execute.
func CondSignal(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.BeforePthreadCondSignal(curr, clk, inst, addr)
}

// CondBroadcast reports a condition broadcast about to execute.
func CondBroadcast(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.BeforePthreadCondBroadcast(curr, clk, inst, addr)
}

// CondWaitBefore reports a condition wait about to release its mutex.
func CondWaitBefore(curr ThreadID, clk Clock, inst *Inst, condAddr, mutexAddr Addr) {
	ctrl.BeforePthreadCondWait(curr, clk, inst, condAddr, mutexAddr)
}

// CondWaitAfter reports a condition wait that returned.
func CondWaitAfter(curr ThreadID, clk Clock, inst *Inst, condAddr, mutexAddr Addr) {
	ctrl.AfterPthreadCondWait(curr, clk, inst, condAddr, mutexAddr)
}

// CondTimedwaitBefore reports a timed condition wait about to release its
// mutex.
func CondTimedwaitBefore(curr ThreadID, clk Clock, inst *Inst, condAddr, mutexAddr Addr) {
	ctrl.BeforePthreadCondTimedwait(curr, clk, inst, condAddr, mutexAddr)
}

// CondTimedwaitAfter reports a timed condition wait that returned; a
// non-zero ret means timeout.
func CondTimedwaitAfter(curr ThreadID, clk Clock, inst *Inst, condAddr, mutexAddr Addr, ret int) {
	ctrl.AfterPthreadCondTimedwait(curr, clk, inst, condAddr, mutexAddr, ret)
}

// BarrierInit reports a completed barrier init with its participant count.
func BarrierInit(curr ThreadID, clk Clock, inst *Inst, addr Addr, count int) {
	ctrl.AfterPthreadBarrierInit(curr, clk, inst, addr, count)
}

// BarrierWaitBefore reports a barrier arrival.
func BarrierWaitBefore(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.BeforePthreadBarrierWait(curr, clk, inst, addr)
}

// BarrierWaitAfter reports a barrier departure.
func BarrierWaitAfter(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.AfterPthreadBarrierWait(curr, clk, inst, addr)
}

// SemInit reports a completed semaphore init with its starting value.
func SemInit(curr ThreadID, clk Clock, inst *Inst, addr Addr, value int) {
	ctrl.AfterSemInit(curr, clk, inst, addr, value)
}

// SemPost reports a semaphore post about to execute.
func SemPost(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.BeforeSemPost(curr, clk, inst, addr)
}

// SemWait reports a completed semaphore wait.
func SemWait(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.AfterSemWait(curr, clk, inst, addr)
}

// Malloc reports a completed allocation.
func Malloc(curr ThreadID, clk Clock, inst *Inst, size uint64, addr Addr) {
	ctrl.AfterMalloc(curr, clk, inst, size, addr)
}

// Calloc reports a completed zeroed allocation.
func Calloc(curr ThreadID, clk Clock, inst *Inst, nmemb, size uint64, addr Addr) {
	ctrl.AfterCalloc(curr, clk, inst, nmemb, size, addr)
}

// ReallocBefore reports a reallocation about to release the old block.
func ReallocBefore(curr ThreadID, clk Clock, inst *Inst, origAddr Addr, size uint64) {
	ctrl.BeforeRealloc(curr, clk, inst, origAddr, size)
}

// ReallocAfter reports a completed reallocation.
func ReallocAfter(curr ThreadID, clk Clock, inst *Inst, origAddr Addr, size uint64, newAddr Addr) {
	ctrl.AfterRealloc(curr, clk, inst, origAddr, size, newAddr)
}

// Free reports a block about to be released.
func Free(curr ThreadID, clk Clock, inst *Inst, addr Addr) {
	ctrl.BeforeFree(curr, clk, inst, addr)
}
