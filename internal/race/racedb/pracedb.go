package racedb

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/kolkov/raceverify/internal/race/sinfo"
)

// PStmt is a potential racing statement: a source location identified by
// file basename and line. Instances are interned by PRaceDB so statement
// identity is pointer identity.
type PStmt struct {
	File string
	Line int
}

// String returns "file:line".
func (p *PStmt) String() string {
	return p.File + ":" + strconv.Itoa(p.Line)
}

type pstmtKey struct {
	file string
	line int
}

type pairKey struct {
	a, b pstmtKey
}

func orderedPair(a, b pstmtKey) pairKey {
	if b.file < a.file || (b.file == a.file && b.line < a.line) {
		return pairKey{b, a}
	}
	return pairKey{a, b}
}

// PRaceDB holds the potential-statement pairs produced by a prior profile.
// A pair is open until the verifier confirms a race on it, after which it
// is removed and no longer monitored.
type PRaceDB struct {
	mu     sync.Mutex
	pstmts map[pstmtKey]*PStmt
	pairs  map[pairKey]bool
}

// NewPRaceDB creates an empty potential-race database.
func NewPRaceDB() *PRaceDB {
	return &PRaceDB{
		pstmts: make(map[pstmtKey]*PStmt),
		pairs:  make(map[pairKey]bool),
	}
}

// GetPStmt interns the statement for (file basename, line).
func (db *PRaceDB) GetPStmt(file string, line int) *PStmt {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.getLocked(pstmtKey{file, line})
}

func (db *PRaceDB) getLocked(key pstmtKey) *PStmt {
	if p, ok := db.pstmts[key]; ok {
		return p
	}
	p := &PStmt{File: key.file, Line: key.line}
	db.pstmts[key] = p
	return p
}

// PStmtOf resolves the statement an instruction lies on.
func (db *PRaceDB) PStmtOf(inst *sinfo.Inst) *PStmt {
	return db.GetPStmt(inst.FileBase(), inst.Line)
}

// AddPair registers (a, b) as an open potential pair. Pairs are unordered.
func (db *PRaceDB) AddPair(a, b *PStmt) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.pairs[orderedPair(pstmtKey{a.File, a.Line}, pstmtKey{b.File, b.Line})] = true
}

// SecondPotentialStatement reports whether (first, second) is an open pair:
// second completes a pair whose other side is first.
func (db *PRaceDB) SecondPotentialStatement(first, second *PStmt) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.pairs[orderedPair(pstmtKey{first.File, first.Line}, pstmtKey{second.File, second.Line})]
}

// InPair reports whether p appears in some open pair. Accesses on
// statements outside every pair are of no interest to the verifier.
func (db *PRaceDB) InPair(p *PStmt) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	k := pstmtKey{p.File, p.Line}
	for pk := range db.pairs {
		if pk.a == k || pk.b == k {
			return true
		}
	}
	return false
}

// RemoveRelationMapping closes the pair (a, b) after a confirmed race so it
// is no longer monitored.
func (db *PRaceDB) RemoveRelationMapping(a, b *PStmt) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.pairs, orderedPair(pstmtKey{a.File, a.Line}, pstmtKey{b.File, b.Line}))
}

// OpenPairs returns the number of pairs still monitored.
func (db *PRaceDB) OpenPairs() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.pairs)
}

// LoadProfile reads a static profile: one potential statement pair per
// line, whitespace-delimited "file line file line" tokens. Lines whose
// first character is not alphabetic are skipped, matching the format the
// static detector emits (headers, separators, blank lines).
func (db *PRaceDB) LoadProfile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "profile: open %s", path)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || !isAlpha(line[0]) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return errors.Newf("profile: malformed line %q in %s", line, path)
		}
		l1, err := strconv.Atoi(fields[1])
		if err != nil {
			return errors.Wrapf(err, "profile: line number %q in %s", fields[1], path)
		}
		l2, err := strconv.Atoi(fields[3])
		if err != nil {
			return errors.Wrapf(err, "profile: line number %q in %s", fields[3], path)
		}

		db.mu.Lock()
		a := db.getLocked(pstmtKey{fields[0], l1})
		b := db.getLocked(pstmtKey{fields[2], l2})
		db.pairs[orderedPair(pstmtKey{a.File, a.Line}, pstmtKey{b.File, b.Line})] = true
		db.mu.Unlock()
	}
	return errors.Wrapf(sc.Err(), "profile: read %s", path)
}

// SaveInstrumentedLines writes the "file line" sidecar enumerating every
// statement that appears in some pair, the list a partial instrumentation
// pass restricts itself to.
func (db *PRaceDB) SaveInstrumentedLines(path string) error {
	db.mu.Lock()
	keys := make([]pstmtKey, 0, len(db.pstmts))
	seen := make(map[pstmtKey]bool)
	for pk := range db.pairs {
		for _, k := range []pstmtKey{pk.a, pk.b} {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	db.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].file != keys[j].file {
			return keys[i].file < keys[j].file
		}
		return keys[i].line < keys[j].line
	})

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k.file, k.line)
	}
	return errors.Wrapf(os.WriteFile(path, []byte(sb.String()), 0o644),
		"profile: write %s", path)
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
