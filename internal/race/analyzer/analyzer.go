// Package analyzer defines the handler surface shared by every component
// that consumes the event stream: the race detectors and the active
// verifier.
//
// The surface is wide because the instrumentation hooks are wide. Concrete
// analyzers embed Base, which implements every handler as a no-op, and
// override only the subset they care about; the control layer calls every
// registered analyzer for every event without knowing which handlers are
// real.
package analyzer

import (
	"github.com/kolkov/raceverify/internal/race/event"
	"github.com/kolkov/raceverify/internal/race/knob"
	"github.com/kolkov/raceverify/internal/race/sinfo"
)

// Analyzer consumes the ordered event stream. Handlers carrying a "Before"
// prefix run before the application performs the operation, "After"
// handlers run once it returned. Try-lock and timed-wait After handlers
// receive the call's return value; implementations must skip their
// synchronization effects on non-zero returns.
type Analyzer interface {
	// Register declares the options the analyzer understands.
	Register(k *knob.Knob)
	// Enabled reports whether the analyzer should be attached, given the
	// parsed options.
	Enabled(k *knob.Knob) bool

	ProgramExit()

	ImageLoad(img *sinfo.Image, low, high, dataStart event.Addr, dataSize uint64, bssStart event.Addr, bssSize uint64)
	ImageUnload(img *sinfo.Image, low, high, dataStart event.Addr, dataSize uint64, bssStart event.Addr, bssSize uint64)

	ThreadStart(curr, parent event.ThreadID)
	ThreadExit(curr event.ThreadID, clk event.Clock)

	BeforeMemRead(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, size uint64)
	BeforeMemWrite(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, size uint64)
	BeforeAtomicInst(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, opcode string, addr event.Addr)
	AfterAtomicInst(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, opcode string)

	AfterPthreadCreate(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, child event.ThreadID)
	BeforePthreadJoin(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, child event.ThreadID)
	AfterPthreadJoin(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, child event.ThreadID)

	BeforePthreadMutexLock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
	AfterPthreadMutexLock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
	BeforePthreadMutexUnlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
	AfterPthreadMutexUnlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
	BeforePthreadMutexTryLock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
	AfterPthreadMutexTryLock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, ret int)

	BeforePthreadRwlockRdlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
	AfterPthreadRwlockRdlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
	BeforePthreadRwlockWrlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
	AfterPthreadRwlockWrlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
	BeforePthreadRwlockUnlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
	AfterPthreadRwlockUnlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
	BeforePthreadRwlockTryRdlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
	AfterPthreadRwlockTryRdlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, ret int)
	BeforePthreadRwlockTryWrlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
	AfterPthreadRwlockTryWrlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, ret int)

	BeforePthreadCondSignal(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
	BeforePthreadCondBroadcast(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
	BeforePthreadCondWait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, condAddr, mutexAddr event.Addr)
	AfterPthreadCondWait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, condAddr, mutexAddr event.Addr)
	BeforePthreadCondTimedwait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, condAddr, mutexAddr event.Addr)
	AfterPthreadCondTimedwait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, condAddr, mutexAddr event.Addr, ret int)

	AfterPthreadBarrierInit(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, count int)
	BeforePthreadBarrierWait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
	AfterPthreadBarrierWait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)

	AfterSemInit(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, value int)
	BeforeSemPost(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
	AfterSemWait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)

	AfterMalloc(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, size uint64, addr event.Addr)
	AfterCalloc(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, nmemb, size uint64, addr event.Addr)
	BeforeRealloc(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, origAddr event.Addr, size uint64)
	AfterRealloc(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, origAddr event.Addr, size uint64, newAddr event.Addr)
	BeforeFree(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr)
}

// Base implements Analyzer with a no-op for every handler. Concrete
// analyzers embed it and override the handlers they consume.
type Base struct{}

var _ Analyzer = (*Base)(nil)

// Register declares no options.
func (*Base) Register(*knob.Knob) {}

// Enabled reports false: an analyzer is attached only when its own option
// says so.
func (*Base) Enabled(*knob.Knob) bool { return false }

func (*Base) ProgramExit() {}

func (*Base) ImageLoad(*sinfo.Image, event.Addr, event.Addr, event.Addr, uint64, event.Addr, uint64) {
}
func (*Base) ImageUnload(*sinfo.Image, event.Addr, event.Addr, event.Addr, uint64, event.Addr, uint64) {
}

func (*Base) ThreadStart(event.ThreadID, event.ThreadID) {}
func (*Base) ThreadExit(event.ThreadID, event.Clock)     {}

func (*Base) BeforeMemRead(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr, uint64)  {}
func (*Base) BeforeMemWrite(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr, uint64) {}
func (*Base) BeforeAtomicInst(event.ThreadID, event.Clock, *sinfo.Inst, string, event.Addr) {
}
func (*Base) AfterAtomicInst(event.ThreadID, event.Clock, *sinfo.Inst, string) {}

func (*Base) AfterPthreadCreate(event.ThreadID, event.Clock, *sinfo.Inst, event.ThreadID) {}
func (*Base) BeforePthreadJoin(event.ThreadID, event.Clock, *sinfo.Inst, event.ThreadID)  {}
func (*Base) AfterPthreadJoin(event.ThreadID, event.Clock, *sinfo.Inst, event.ThreadID)   {}

func (*Base) BeforePthreadMutexLock(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr)   {}
func (*Base) AfterPthreadMutexLock(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr)    {}
func (*Base) BeforePthreadMutexUnlock(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr) {}
func (*Base) AfterPthreadMutexUnlock(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr)  {}
func (*Base) BeforePthreadMutexTryLock(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr) {
}
func (*Base) AfterPthreadMutexTryLock(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr, int) {
}

func (*Base) BeforePthreadRwlockRdlock(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr) {}
func (*Base) AfterPthreadRwlockRdlock(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr)  {}
func (*Base) BeforePthreadRwlockWrlock(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr) {}
func (*Base) AfterPthreadRwlockWrlock(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr)  {}
func (*Base) BeforePthreadRwlockUnlock(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr) {}
func (*Base) AfterPthreadRwlockUnlock(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr)  {}
func (*Base) BeforePthreadRwlockTryRdlock(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr) {
}
func (*Base) AfterPthreadRwlockTryRdlock(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr, int) {
}
func (*Base) BeforePthreadRwlockTryWrlock(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr) {
}
func (*Base) AfterPthreadRwlockTryWrlock(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr, int) {
}

func (*Base) BeforePthreadCondSignal(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr) {}
func (*Base) BeforePthreadCondBroadcast(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr) {
}
func (*Base) BeforePthreadCondWait(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr, event.Addr) {
}
func (*Base) AfterPthreadCondWait(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr, event.Addr) {
}
func (*Base) BeforePthreadCondTimedwait(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr, event.Addr) {
}
func (*Base) AfterPthreadCondTimedwait(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr, event.Addr, int) {
}

func (*Base) AfterPthreadBarrierInit(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr, int) {}
func (*Base) BeforePthreadBarrierWait(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr)     {}
func (*Base) AfterPthreadBarrierWait(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr)      {}

func (*Base) AfterSemInit(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr, int) {}
func (*Base) BeforeSemPost(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr)    {}
func (*Base) AfterSemWait(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr)  {}

func (*Base) AfterMalloc(event.ThreadID, event.Clock, *sinfo.Inst, uint64, event.Addr) {}
func (*Base) AfterCalloc(event.ThreadID, event.Clock, *sinfo.Inst, uint64, uint64, event.Addr) {
}
func (*Base) BeforeRealloc(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr, uint64) {}
func (*Base) AfterRealloc(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr, uint64, event.Addr) {
}
func (*Base) BeforeFree(event.ThreadID, event.Clock, *sinfo.Inst, event.Addr) {}
