package control

import (
	"github.com/kolkov/raceverify/internal/race/analyzer"
	"github.com/kolkov/raceverify/internal/race/event"
	"github.com/kolkov/raceverify/internal/race/sinfo"
)

// Event intake. Each method forwards one instrumentation record to every
// attached analyzer. Memory accesses go through the address-hashed worker
// path; synchronization and lifecycle events drain the workers first so
// the analyzers observe them in stream order.

func (c *Control) ThreadStart(curr, parent event.ThreadID) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.ThreadStart(curr, parent) })
}

func (c *Control) ThreadExit(curr event.ThreadID, clk event.Clock) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.ThreadExit(curr, clk) })
}

func (c *Control) ImageLoad(img *sinfo.Image, low, high, dataStart event.Addr, dataSize uint64, bssStart event.Addr, bssSize uint64) {
	c.dispatchSync(func(a analyzer.Analyzer) {
		a.ImageLoad(img, low, high, dataStart, dataSize, bssStart, bssSize)
	})
}

func (c *Control) ImageUnload(img *sinfo.Image, low, high, dataStart event.Addr, dataSize uint64, bssStart event.Addr, bssSize uint64) {
	c.dispatchSync(func(a analyzer.Analyzer) {
		a.ImageUnload(img, low, high, dataStart, dataSize, bssStart, bssSize)
	})
}

func (c *Control) BeforeMemRead(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, size uint64) {
	c.dispatchAccess(addr, func(a analyzer.Analyzer) { a.BeforeMemRead(curr, clk, inst, addr, size) })
}

func (c *Control) BeforeMemWrite(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, size uint64) {
	c.dispatchAccess(addr, func(a analyzer.Analyzer) { a.BeforeMemWrite(curr, clk, inst, addr, size) })
}

// BeforeMemRead2 covers instructions with a second memory read operand; it
// is delivered as a plain read of the second location.
func (c *Control) BeforeMemRead2(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, size uint64) {
	c.BeforeMemRead(curr, clk, inst, addr, size)
}

func (c *Control) BeforeAtomicInst(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, opcode string, addr event.Addr) {
	c.dispatchAccess(addr, func(a analyzer.Analyzer) { a.BeforeAtomicInst(curr, clk, inst, opcode, addr) })
}

func (c *Control) AfterAtomicInst(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, opcode string) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterAtomicInst(curr, clk, inst, opcode) })
}

func (c *Control) AfterPthreadCreate(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, child event.ThreadID) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterPthreadCreate(curr, clk, inst, child) })
}

func (c *Control) BeforePthreadJoin(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, child event.ThreadID) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.BeforePthreadJoin(curr, clk, inst, child) })
}

func (c *Control) AfterPthreadJoin(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, child event.ThreadID) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterPthreadJoin(curr, clk, inst, child) })
}

func (c *Control) BeforePthreadMutexLock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.BeforePthreadMutexLock(curr, clk, inst, addr) })
}

func (c *Control) AfterPthreadMutexLock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterPthreadMutexLock(curr, clk, inst, addr) })
}

func (c *Control) BeforePthreadMutexUnlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.BeforePthreadMutexUnlock(curr, clk, inst, addr) })
}

func (c *Control) AfterPthreadMutexUnlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterPthreadMutexUnlock(curr, clk, inst, addr) })
}

func (c *Control) BeforePthreadMutexTryLock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.BeforePthreadMutexTryLock(curr, clk, inst, addr) })
}

func (c *Control) AfterPthreadMutexTryLock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, ret int) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterPthreadMutexTryLock(curr, clk, inst, addr, ret) })
}

func (c *Control) BeforePthreadRwlockRdlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.BeforePthreadRwlockRdlock(curr, clk, inst, addr) })
}

func (c *Control) AfterPthreadRwlockRdlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterPthreadRwlockRdlock(curr, clk, inst, addr) })
}

func (c *Control) BeforePthreadRwlockWrlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.BeforePthreadRwlockWrlock(curr, clk, inst, addr) })
}

func (c *Control) AfterPthreadRwlockWrlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterPthreadRwlockWrlock(curr, clk, inst, addr) })
}

func (c *Control) BeforePthreadRwlockUnlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.BeforePthreadRwlockUnlock(curr, clk, inst, addr) })
}

func (c *Control) AfterPthreadRwlockUnlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterPthreadRwlockUnlock(curr, clk, inst, addr) })
}

func (c *Control) BeforePthreadRwlockTryRdlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.BeforePthreadRwlockTryRdlock(curr, clk, inst, addr) })
}

func (c *Control) AfterPthreadRwlockTryRdlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, ret int) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterPthreadRwlockTryRdlock(curr, clk, inst, addr, ret) })
}

func (c *Control) BeforePthreadRwlockTryWrlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.BeforePthreadRwlockTryWrlock(curr, clk, inst, addr) })
}

func (c *Control) AfterPthreadRwlockTryWrlock(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, ret int) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterPthreadRwlockTryWrlock(curr, clk, inst, addr, ret) })
}

func (c *Control) BeforePthreadCondSignal(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.BeforePthreadCondSignal(curr, clk, inst, addr) })
}

func (c *Control) BeforePthreadCondBroadcast(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.BeforePthreadCondBroadcast(curr, clk, inst, addr) })
}

func (c *Control) BeforePthreadCondWait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, condAddr, mutexAddr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.BeforePthreadCondWait(curr, clk, inst, condAddr, mutexAddr) })
}

func (c *Control) AfterPthreadCondWait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, condAddr, mutexAddr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterPthreadCondWait(curr, clk, inst, condAddr, mutexAddr) })
}

func (c *Control) BeforePthreadCondTimedwait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, condAddr, mutexAddr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.BeforePthreadCondTimedwait(curr, clk, inst, condAddr, mutexAddr) })
}

func (c *Control) AfterPthreadCondTimedwait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, condAddr, mutexAddr event.Addr, ret int) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterPthreadCondTimedwait(curr, clk, inst, condAddr, mutexAddr, ret) })
}

func (c *Control) AfterPthreadBarrierInit(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, count int) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterPthreadBarrierInit(curr, clk, inst, addr, count) })
}

func (c *Control) BeforePthreadBarrierWait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.BeforePthreadBarrierWait(curr, clk, inst, addr) })
}

func (c *Control) AfterPthreadBarrierWait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterPthreadBarrierWait(curr, clk, inst, addr) })
}

func (c *Control) AfterSemInit(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr, value int) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterSemInit(curr, clk, inst, addr, value) })
}

func (c *Control) BeforeSemPost(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.BeforeSemPost(curr, clk, inst, addr) })
}

func (c *Control) AfterSemWait(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterSemWait(curr, clk, inst, addr) })
}

func (c *Control) AfterMalloc(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, size uint64, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterMalloc(curr, clk, inst, size, addr) })
}

func (c *Control) AfterCalloc(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, nmemb, size uint64, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterCalloc(curr, clk, inst, nmemb, size, addr) })
}

func (c *Control) BeforeRealloc(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, origAddr event.Addr, size uint64) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.BeforeRealloc(curr, clk, inst, origAddr, size) })
}

func (c *Control) AfterRealloc(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, origAddr event.Addr, size uint64, newAddr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.AfterRealloc(curr, clk, inst, origAddr, size, newAddr) })
}

func (c *Control) BeforeFree(curr event.ThreadID, clk event.Clock, inst *sinfo.Inst, addr event.Addr) {
	c.dispatchSync(func(a analyzer.Analyzer) { a.BeforeFree(curr, clk, inst, addr) })
}
