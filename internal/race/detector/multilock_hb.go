package detector

import (
	"sort"

	"github.com/kolkov/raceverify/internal/race/event"
	"github.com/kolkov/raceverify/internal/race/knob"
	"github.com/kolkov/raceverify/internal/race/lockset"
	"github.com/kolkov/raceverify/internal/race/sinfo"
)

// elsEntry is one (epoch, lockset) summary in an access history. The thread
// is implied by the history slot the entry lives in; the epoch is the
// thread's own clock at access time.
type elsEntry struct {
	clk event.Clock
	ls  *lockset.LockSet
}

// mlMeta is the MultiLockHB per-address state: the non-dominated reads and
// writes of every thread, plus the last witnessing instruction per thread
// for reporting.
type mlMeta struct {
	accessMeta
	writers    map[event.ThreadID][]elsEntry
	readers    map[event.ThreadID][]elsEntry
	writerInst map[event.ThreadID]*sinfo.Inst
	readerInst map[event.ThreadID]*sinfo.Inst
}

func newMlMeta(addr event.Addr) *mlMeta {
	return &mlMeta{
		accessMeta: newAccessMeta(addr),
		writers:    make(map[event.ThreadID][]elsEntry),
		readers:    make(map[event.ThreadID][]elsEntry),
		writerInst: make(map[event.ThreadID]*sinfo.Inst),
		readerInst: make(map[event.ThreadID]*sinfo.Inst),
	}
}

// MultiLockHB is the multi-lockset happens-before analyzer.
//
// It keeps, per address unit and per thread, the sequence of non-dominated
// (epoch, lockset) access summaries. An access summary dominates an older
// one from the same thread when its epoch is >= and its lockset is a
// subset; dominated summaries are pruned so the history stays bounded. Two
// accesses from different threads race when the earlier one's epoch is not
// covered by the later thread's vector clock and their locksets are
// disjoint, including the empty-vs-empty case, which is how races on
// completely unsynchronized memory surface.
type MultiLockHB struct {
	Detector
}

// NewMultiLockHB creates the analyzer; Setup must still be called.
func NewMultiLockHB() *MultiLockHB {
	a := &MultiLockHB{}
	a.setImpl(a)
	return a
}

// Register declares the analyzer's options.
func (a *MultiLockHB) Register(k *knob.Knob) {
	a.Detector.Register(k)
	k.RegisterBool("enable_multilock_hb",
		"whether enable the multilock_hb data race detector", false)
}

// Enabled reports whether the enable_multilock_hb option is set.
func (a *MultiLockHB) Enabled(k *knob.Knob) bool {
	return k.ValueBool("enable_multilock_hb")
}

func (a *MultiLockHB) newMeta(addr event.Addr) Meta {
	return newMlMeta(addr)
}

// sortedThreads returns the history's thread ids in ascending order so that
// the first race reported for a given meta is deterministic across runs of
// the same execution.
func sortedThreads(histories map[event.ThreadID][]elsEntry) []event.ThreadID {
	ids := make([]event.ThreadID, 0, len(histories))
	for t := range histories {
		ids = append(ids, t)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// dominated reports whether an existing entry already covers a new access
// at epoch clk with lockset ls: same epoch, existing lockset a subset of
// the new one. The existing entry flags every race the new one would.
func dominated(entries []elsEntry, clk event.Clock, ls *lockset.LockSet) bool {
	for i := range entries {
		if entries[i].clk == clk && entries[i].ls.SubsetOf(ls) {
			return true
		}
	}
	return false
}

// prune removes the entries the freshly appended summary (clk, ls)
// dominates: older epoch, lockset a superset of ls. The appended entry is
// the last element and is never examined. Pruning is idempotent.
func prune(entries []elsEntry, clk event.Clock, ls *lockset.LockSet) []elsEntry {
	out := entries[:0]
	last := len(entries) - 1
	for i, e := range entries {
		if i != last && e.clk <= clk && ls.SubsetOf(e.ls) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// pruneAll applies the write-prune rule to a whole history (used against
// the reader history, where no entry was just appended).
func pruneAll(entries []elsEntry, clk event.Clock, ls *lockset.LockSet) []elsEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.clk <= clk && ls.SubsetOf(e.ls) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (a *MultiLockHB) processRead(curr event.ThreadID, meta Meta, inst *sinfo.Inst) {
	m := meta.(*mlMeta)
	vc := a.vcOfLocked(curr)
	clk := vc.Get(curr)
	ls := a.fullLockSetLocked(curr, event.Read)

	// Skip redundant reads: an existing summary of this thread at the same
	// epoch with a smaller-or-equal lockset already covers this access.
	if dominated(m.readers[curr], clk, ls) || dominated(m.writers[curr], clk, ls) {
		a.witnessRead(m, curr, inst)
		return
	}

	m.readers[curr] = append(m.readers[curr], elsEntry{clk: clk, ls: ls})
	m.readers[curr] = prune(m.readers[curr], clk, ls)

	// write -> read races against every other thread's write history.
	for _, u := range sortedThreads(m.writers) {
		if u == curr {
			continue
		}
		seen := vc.Get(u)
		for _, e := range m.writers[u] {
			if e.clk > seen && e.ls.Disjoint(ls) {
				a.reportRace(m, u, m.writerInst[u], event.Write, curr, inst, event.Read)
			}
		}
	}

	a.witnessRead(m, curr, inst)
}

func (a *MultiLockHB) processWrite(curr event.ThreadID, meta Meta, inst *sinfo.Inst) {
	m := meta.(*mlMeta)
	vc := a.vcOfLocked(curr)
	clk := vc.Get(curr)
	ws := a.fullLockSetLocked(curr, event.Write)

	if dominated(m.writers[curr], clk, ws) {
		a.witnessWrite(m, curr, inst)
		return
	}

	m.writers[curr] = append(m.writers[curr], elsEntry{clk: clk, ls: ws})
	m.readers[curr] = pruneAll(m.readers[curr], clk, ws)
	m.writers[curr] = prune(m.writers[curr], clk, ws)

	// write -> write races.
	for _, u := range sortedThreads(m.writers) {
		if u == curr {
			continue
		}
		seen := vc.Get(u)
		for _, e := range m.writers[u] {
			if e.clk > seen && e.ls.Disjoint(ws) {
				a.reportRace(m, u, m.writerInst[u], event.Write, curr, inst, event.Write)
			}
		}
	}
	// read -> write races.
	for _, u := range sortedThreads(m.readers) {
		if u == curr {
			continue
		}
		seen := vc.Get(u)
		for _, e := range m.readers[u] {
			if e.clk > seen && e.ls.Disjoint(ws) {
				a.reportRace(m, u, m.readerInst[u], event.Read, curr, inst, event.Write)
			}
		}
	}

	a.witnessWrite(m, curr, inst)
}

func (a *MultiLockHB) witnessRead(m *mlMeta, curr event.ThreadID, inst *sinfo.Inst) {
	m.readerInst[curr] = inst
	if a.trackRacyInst {
		m.AddRaceInst(inst)
	}
}

func (a *MultiLockHB) witnessWrite(m *mlMeta, curr event.ThreadID, inst *sinfo.Inst) {
	m.writerInst[curr] = inst
	if a.trackRacyInst {
		m.AddRaceInst(inst)
	}
}

// processFree flushes the racy instruction set when the address turned out
// racy; the history vectors are released with the meta.
func (a *MultiLockHB) processFree(meta Meta) {
	a.flushRacyInsts(meta)
}
