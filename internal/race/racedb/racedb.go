// Package racedb persists what the engine learns about races.
//
// Three artifacts live here:
//
//   - RaceDB: the deduplicated set of racing instruction pairs observed
//     across runs, plus the per-instruction racy flags, saved as YAML.
//   - Report: the human-readable dump of the current run.
//   - PRaceDB: the potential-statement pairs loaded from a static profile,
//     consumed by the verifier.
//
// The analyzers use RaceDB purely as a sink: ReportRace may be called many
// times for the same static pair, the database keeps one record and counts.
package racedb

import (
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/kolkov/raceverify/internal/race/event"
	"github.com/kolkov/raceverify/internal/race/sinfo"
)

// Access is one side of a recorded race.
type Access struct {
	Image  string     `yaml:"image"`
	Offset event.Addr `yaml:"offset"`
	Kind   string     `yaml:"kind"`
}

// Race is a deduplicated racing instruction pair.
type Race struct {
	First  Access `yaml:"first"`
	Second Access `yaml:"second"`
	Count  int    `yaml:"count"`
}

// RacyInst marks an instruction that participated in some racy address's
// access set.
type RacyInst struct {
	Image  string     `yaml:"image"`
	Offset event.Addr `yaml:"offset"`
}

type raceKey struct {
	a, b Access
}

// canonical orders the two sides so that (a,b) and (b,a) collapse to one
// record regardless of which thread reported first.
func canonical(a, b Access) raceKey {
	if b.Image < a.Image || (b.Image == a.Image && b.Offset < a.Offset) {
		return raceKey{b, a}
	}
	return raceKey{a, b}
}

// DB is the race database.
type DB struct {
	mu    sync.Mutex
	races map[raceKey]*Race
	racy  map[RacyInst]bool
	log   *logrus.Logger
}

// NewDB creates an empty race database logging through log.
func NewDB(log *logrus.Logger) *DB {
	return &DB{
		races: make(map[raceKey]*Race),
		racy:  make(map[RacyInst]bool),
		log:   log,
	}
}

// ReportRace records a race between (t1, i1, k1) and (t2, i2, k2).
// Returns true when the instruction pair was not in the database yet.
func (db *DB) ReportRace(t1 event.ThreadID, i1 *sinfo.Inst, k1 event.AccessKind,
	t2 event.ThreadID, i2 *sinfo.Inst, k2 event.AccessKind) bool {
	a := Access{Image: i1.Image, Offset: i1.Offset, Kind: k1.String()}
	b := Access{Image: i2.Image, Offset: i2.Offset, Kind: k2.String()}

	db.mu.Lock()
	defer db.mu.Unlock()

	key := canonical(a, b)
	if r, ok := db.races[key]; ok {
		r.Count++
		return false
	}
	db.races[key] = &Race{First: key.a, Second: key.b, Count: 1}
	db.log.WithFields(logrus.Fields{
		"thread1": t1, "inst1": i1.String(), "kind1": k1.String(),
		"thread2": t2, "inst2": i2.String(), "kind2": k2.String(),
	}).Debug("race recorded")
	return true
}

// SetRacyInst flags an instruction as having touched a racy address.
func (db *DB) SetRacyInst(inst *sinfo.Inst, racy bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.racy[RacyInst{Image: inst.Image, Offset: inst.Offset}] = racy
}

// IsRacyInst reports whether an instruction was ever flagged racy.
func (db *DB) IsRacyInst(inst *sinfo.Inst) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.racy[RacyInst{Image: inst.Image, Offset: inst.Offset}]
}

// RaceCount returns the number of distinct racing instruction pairs.
func (db *DB) RaceCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.races)
}

// Races returns a snapshot of every recorded race.
func (db *DB) Races() []*Race {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]*Race, 0, len(db.races))
	for _, r := range db.races {
		copied := *r
		out = append(out, &copied)
	}
	return out
}

type dbFile struct {
	Races []*Race    `yaml:"races"`
	Racy  []RacyInst `yaml:"racy_insts"`
}

// Load merges a previously saved database. Missing files are tolerated:
// the first profiling run starts empty.
func (db *DB) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "racedb: read %s", path)
	}
	var file dbFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return errors.Wrapf(err, "racedb: parse %s", path)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	for _, r := range file.Races {
		db.races[canonical(r.First, r.Second)] = r
	}
	for _, ri := range file.Racy {
		db.racy[ri] = true
	}
	return nil
}

// Save writes the database to path.
func (db *DB) Save(path string) error {
	db.mu.Lock()
	file := dbFile{Races: make([]*Race, 0, len(db.races))}
	for _, r := range db.races {
		file.Races = append(file.Races, r)
	}
	for ri, flag := range db.racy {
		if flag {
			file.Racy = append(file.Racy, ri)
		}
	}
	db.mu.Unlock()

	data, err := yaml.Marshal(&file)
	if err != nil {
		return errors.Wrap(err, "racedb: marshal")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "racedb: write %s", path)
	}
	return nil
}
