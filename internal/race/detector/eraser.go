package detector

import (
	"github.com/kolkov/raceverify/internal/race/event"
	"github.com/kolkov/raceverify/internal/race/knob"
	"github.com/kolkov/raceverify/internal/race/lockset"
	"github.com/kolkov/raceverify/internal/race/sinfo"
)

// eraserState is the per-unit sharing state of the Eraser state machine.
type eraserState int

const (
	// stateVirgin: never accessed.
	stateVirgin eraserState = iota
	// stateExclusive: accessed by one thread only; no candidate set yet.
	stateExclusive
	// stateShared: read by several threads, never written concurrently.
	stateShared
	// stateSharedModified: written by several threads; an empty candidate
	// set here is a race.
	stateSharedModified
)

// eraserMeta carries the state machine and the candidate lock set for one
// unit, plus the last access of each side for reporting.
type eraserMeta struct {
	accessMeta
	state eraserState
	owner event.ThreadID
	// exclLS is the lock set of the owner's latest access while the unit
	// is still exclusive; it seeds the candidate set when a second thread
	// shows up, so a wrong-lock pair is caught at the transition itself.
	exclLS     *lockset.LockSet
	candidates *lockset.LockSet
	lastThread event.ThreadID
	lastInst   *sinfo.Inst
	lastKind   event.AccessKind
}

func newEraserMeta(addr event.Addr) *eraserMeta {
	return &eraserMeta{accessMeta: newAccessMeta(addr)}
}

// Eraser is the lockset analyzer: every unit must be consistently protected
// by some lock. The candidate set starts as the exclusive owner's latest lock
// set intersected with the first sharing access's lock set, and shrinks by
// intersection on every later access; when it empties while the unit is
// write-shared, no single lock protected the unit and a race is reported.
// Happens-before plays no role, so Eraser flags ordered-but-unlocked idioms
// (such as a handoff through thread creation) the HB analyzers stay quiet on.
//
// Reads may safely share a reader lock, so the candidate intersection uses
// the reader-and-writer union for reads but the writer set alone for
// writes.
type Eraser struct {
	Detector
}

// NewEraser creates the analyzer; Setup must still be called.
func NewEraser() *Eraser {
	a := &Eraser{}
	a.setImpl(a)
	return a
}

// Register declares the analyzer's options.
func (a *Eraser) Register(k *knob.Knob) {
	a.Detector.Register(k)
	k.RegisterBool("enable_eraser", "whether enable the eraser data race detector", false)
}

// Enabled reports whether the enable_eraser option is set.
func (a *Eraser) Enabled(k *knob.Knob) bool {
	return k.ValueBool("enable_eraser")
}

func (a *Eraser) newMeta(addr event.Addr) Meta {
	return newEraserMeta(addr)
}

func (a *Eraser) processRead(curr event.ThreadID, meta Meta, inst *sinfo.Inst) {
	m := meta.(*eraserMeta)
	ls := a.fullLockSetLocked(curr, event.Read)

	switch m.state {
	case stateVirgin:
		m.state = stateExclusive
		m.owner = curr
		m.exclLS = ls
	case stateExclusive:
		if m.owner == curr {
			m.exclLS = ls
		} else {
			m.state = stateShared
			m.candidates = m.exclLS.Clone()
			m.candidates.Intersect(ls)
		}
	case stateShared, stateSharedModified:
		m.candidates.Intersect(ls)
		if m.state == stateSharedModified {
			a.checkEmpty(m, curr, inst, event.Read)
		}
	}

	a.witness(m, curr, inst, event.Read)
}

func (a *Eraser) processWrite(curr event.ThreadID, meta Meta, inst *sinfo.Inst) {
	m := meta.(*eraserMeta)
	ws := a.fullLockSetLocked(curr, event.Write)

	switch m.state {
	case stateVirgin:
		m.state = stateExclusive
		m.owner = curr
		m.exclLS = ws
	case stateExclusive:
		if m.owner == curr {
			m.exclLS = ws
		} else {
			m.state = stateSharedModified
			m.candidates = m.exclLS.Clone()
			m.candidates.Intersect(ws)
			a.checkEmpty(m, curr, inst, event.Write)
		}
	case stateShared, stateSharedModified:
		m.state = stateSharedModified
		m.candidates.Intersect(ws)
		a.checkEmpty(m, curr, inst, event.Write)
	}

	a.witness(m, curr, inst, event.Write)
}

// checkEmpty reports a race once per unit when the candidate set has
// emptied in the write-shared state.
func (a *Eraser) checkEmpty(m *eraserMeta, curr event.ThreadID, inst *sinfo.Inst, kind event.AccessKind) {
	if m.Racy() || !m.candidates.Empty() {
		return
	}
	prevInst, prevThread, prevKind := m.lastInst, m.lastThread, m.lastKind
	if prevInst == nil {
		prevInst, prevThread, prevKind = inst, curr, kind
	}
	a.reportRace(m, prevThread, prevInst, prevKind, curr, inst, kind)
}

func (a *Eraser) witness(m *eraserMeta, curr event.ThreadID, inst *sinfo.Inst, kind event.AccessKind) {
	m.lastThread = curr
	m.lastInst = inst
	m.lastKind = kind
	if a.trackRacyInst {
		m.AddRaceInst(inst)
	}
}

func (a *Eraser) processFree(meta Meta) {
	a.flushRacyInsts(meta)
}
