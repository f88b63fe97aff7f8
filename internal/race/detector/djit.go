package detector

import (
	"sort"

	"github.com/kolkov/raceverify/internal/race/epoch"
	"github.com/kolkov/raceverify/internal/race/event"
	"github.com/kolkov/raceverify/internal/race/knob"
	"github.com/kolkov/raceverify/internal/race/sinfo"
)

// djitMeta keeps, per thread, the epoch of the last write and the last read
// to the unit, plus the witnessing instructions.
type djitMeta struct {
	accessMeta
	writes     map[event.ThreadID]epoch.Epoch
	reads      map[event.ThreadID]epoch.Epoch
	writerInst map[event.ThreadID]*sinfo.Inst
	readerInst map[event.ThreadID]*sinfo.Inst
}

func newDjitMeta(addr event.Addr) *djitMeta {
	return &djitMeta{
		accessMeta: newAccessMeta(addr),
		writes:     make(map[event.ThreadID]epoch.Epoch),
		reads:      make(map[event.ThreadID]epoch.Epoch),
		writerInst: make(map[event.ThreadID]*sinfo.Inst),
		readerInst: make(map[event.ThreadID]*sinfo.Inst),
	}
}

// Djit is the pure happens-before analyzer: two accesses race exactly when
// they touch the same unit, at least one writes, and neither is ordered
// before the other by the synchronization observed so far. Locks only
// matter through the ordering edges they induce.
type Djit struct {
	Detector
}

// NewDjit creates the analyzer; Setup must still be called.
func NewDjit() *Djit {
	a := &Djit{}
	a.setImpl(a)
	return a
}

// Register declares the analyzer's options.
func (a *Djit) Register(k *knob.Knob) {
	a.Detector.Register(k)
	k.RegisterBool("enable_djit", "whether enable the djit data race detector", false)
}

// Enabled reports whether the enable_djit option is set.
func (a *Djit) Enabled(k *knob.Knob) bool {
	return k.ValueBool("enable_djit")
}

func (a *Djit) newMeta(addr event.Addr) Meta {
	return newDjitMeta(addr)
}

func sortedEpochThreads(m map[event.ThreadID]epoch.Epoch) []event.ThreadID {
	ids := make([]event.ThreadID, 0, len(m))
	for t := range m {
		ids = append(ids, t)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (a *Djit) processRead(curr event.ThreadID, meta Meta, inst *sinfo.Inst) {
	m := meta.(*djitMeta)
	vc := a.vcOfLocked(curr)

	for _, u := range sortedEpochThreads(m.writes) {
		if u == curr {
			continue
		}
		if !m.writes[u].HappensBefore(vc) {
			a.reportRace(m, u, m.writerInst[u], event.Write, curr, inst, event.Read)
		}
	}

	m.reads[curr] = epoch.New(curr, vc.Get(curr))
	m.readerInst[curr] = inst
	if a.trackRacyInst {
		m.AddRaceInst(inst)
	}
}

func (a *Djit) processWrite(curr event.ThreadID, meta Meta, inst *sinfo.Inst) {
	m := meta.(*djitMeta)
	vc := a.vcOfLocked(curr)

	for _, u := range sortedEpochThreads(m.writes) {
		if u == curr {
			continue
		}
		if !m.writes[u].HappensBefore(vc) {
			a.reportRace(m, u, m.writerInst[u], event.Write, curr, inst, event.Write)
		}
	}
	for _, u := range sortedEpochThreads(m.reads) {
		if u == curr {
			continue
		}
		if !m.reads[u].HappensBefore(vc) {
			a.reportRace(m, u, m.readerInst[u], event.Read, curr, inst, event.Write)
		}
	}

	m.writes[curr] = epoch.New(curr, vc.Get(curr))
	m.writerInst[curr] = inst
	if a.trackRacyInst {
		m.AddRaceInst(inst)
	}
}

func (a *Djit) processFree(meta Meta) {
	a.flushRacyInsts(meta)
}
