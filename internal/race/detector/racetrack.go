package detector

import (
	"sort"

	"github.com/kolkov/raceverify/internal/race/epoch"
	"github.com/kolkov/raceverify/internal/race/event"
	"github.com/kolkov/raceverify/internal/race/knob"
	"github.com/kolkov/raceverify/internal/race/lockset"
	"github.com/kolkov/raceverify/internal/race/sinfo"
)

// trackEntry is the last access of one thread to a unit: its epoch, the
// lock set it held, and the instruction.
type trackEntry struct {
	e    epoch.Epoch
	ls   *lockset.LockSet
	inst *sinfo.Inst
}

// trackMeta keeps the last write and last read entry per thread.
type trackMeta struct {
	accessMeta
	writers map[event.ThreadID]trackEntry
	readers map[event.ThreadID]trackEntry
}

func newTrackMeta(addr event.Addr) *trackMeta {
	return &trackMeta{
		accessMeta: newAccessMeta(addr),
		writers:    make(map[event.ThreadID]trackEntry),
		readers:    make(map[event.ThreadID]trackEntry),
	}
}

// RaceTrack is the hybrid analyzer: happens-before pruning first, lockset
// discrimination second. A pair is reported only when the accesses are
// concurrent (no HB edge) and additionally share no lock. This is quieter than
// Eraser on ordered lock-free handoffs and quieter than pure HB on
// consistently locked but unordered accesses.
//
// Unlike MultiLockHB it keeps only the most recent access per thread and
// side, trading the bounded history precision for constant per-unit state.
type RaceTrack struct {
	Detector
}

// NewRaceTrack creates the analyzer; Setup must still be called.
func NewRaceTrack() *RaceTrack {
	a := &RaceTrack{}
	a.setImpl(a)
	return a
}

// Register declares the analyzer's options.
func (a *RaceTrack) Register(k *knob.Knob) {
	a.Detector.Register(k)
	k.RegisterBool("enable_race_track",
		"whether enable the race_track data race detector", false)
}

// Enabled reports whether the enable_race_track option is set.
func (a *RaceTrack) Enabled(k *knob.Knob) bool {
	return k.ValueBool("enable_race_track")
}

func (a *RaceTrack) newMeta(addr event.Addr) Meta {
	return newTrackMeta(addr)
}

func sortedTrackThreads(m map[event.ThreadID]trackEntry) []event.ThreadID {
	ids := make([]event.ThreadID, 0, len(m))
	for t := range m {
		ids = append(ids, t)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (a *RaceTrack) processRead(curr event.ThreadID, meta Meta, inst *sinfo.Inst) {
	m := meta.(*trackMeta)
	vc := a.vcOfLocked(curr)
	ls := a.fullLockSetLocked(curr, event.Read)

	for _, u := range sortedTrackThreads(m.writers) {
		if u == curr {
			continue
		}
		e := m.writers[u]
		if !e.e.HappensBefore(vc) && e.ls.Disjoint(ls) {
			a.reportRace(m, u, e.inst, event.Write, curr, inst, event.Read)
		}
	}

	m.readers[curr] = trackEntry{e: epoch.New(curr, vc.Get(curr)), ls: ls, inst: inst}
	if a.trackRacyInst {
		m.AddRaceInst(inst)
	}
}

func (a *RaceTrack) processWrite(curr event.ThreadID, meta Meta, inst *sinfo.Inst) {
	m := meta.(*trackMeta)
	vc := a.vcOfLocked(curr)
	ws := a.fullLockSetLocked(curr, event.Write)

	for _, u := range sortedTrackThreads(m.writers) {
		if u == curr {
			continue
		}
		e := m.writers[u]
		if !e.e.HappensBefore(vc) && e.ls.Disjoint(ws) {
			a.reportRace(m, u, e.inst, event.Write, curr, inst, event.Write)
		}
	}
	for _, u := range sortedTrackThreads(m.readers) {
		if u == curr {
			continue
		}
		e := m.readers[u]
		if !e.e.HappensBefore(vc) && e.ls.Disjoint(ws) {
			a.reportRace(m, u, e.inst, event.Read, curr, inst, event.Write)
		}
	}

	m.writers[curr] = trackEntry{e: epoch.New(curr, vc.Get(curr)), ls: ws, inst: inst}
	if a.trackRacyInst {
		m.AddRaceInst(inst)
	}
}

func (a *RaceTrack) processFree(meta Meta) {
	a.flushRacyInsts(meta)
}
