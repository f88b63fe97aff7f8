package racedb

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"

	"github.com/kolkov/raceverify/internal/race/sinfo"
)

// Report renders the current run's race database into a human-readable
// dump. Instructions are resolved back to source locations through the
// static info database.
type Report struct {
	sinfo *sinfo.StaticInfo
}

// NewReport creates a report writer over the given static info.
func NewReport(si *sinfo.StaticInfo) *Report {
	return &Report{sinfo: si}
}

// Save writes the report for db to path.
func (rp *Report) Save(path string, db *DB) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "report: create %s", path)
	}
	defer f.Close()
	if err := rp.Write(f, db); err != nil {
		return err
	}
	return errors.Wrapf(f.Sync(), "report: sync %s", path)
}

// Write renders the report for db to w.
func (rp *Report) Write(w io.Writer, db *DB) error {
	races := db.Races()
	sort.Slice(races, func(i, j int) bool {
		a, b := races[i], races[j]
		if a.First.Image != b.First.Image {
			return a.First.Image < b.First.Image
		}
		if a.First.Offset != b.First.Offset {
			return a.First.Offset < b.First.Offset
		}
		return a.Second.Offset < b.Second.Offset
	})

	warn := color.New(color.FgRed, color.Bold).SprintFunc()
	loc := color.New(color.FgCyan).SprintFunc()

	if _, err := fmt.Fprintf(w, "%d data race(s)\n", len(races)); err != nil {
		return errors.Wrap(err, "report: write")
	}
	for n, r := range races {
		fmt.Fprintf(w, "==================\n")
		fmt.Fprintf(w, "%s #%d (seen %d time(s))\n", warn("DATA RACE"), n+1, r.Count)
		rp.writeAccess(w, loc, "first ", r.First)
		rp.writeAccess(w, loc, "second", r.Second)
	}
	if len(races) > 0 {
		fmt.Fprintf(w, "==================\n")
	}
	return nil
}

func (rp *Report) writeAccess(w io.Writer, loc func(...interface{}) string, side string, a Access) {
	inst := rp.sinfo.FindInst(a.Image, a.Offset)
	where := fmt.Sprintf("%s+0x%x", a.Image, uint64(a.Offset))
	if inst != nil && inst.File != "" {
		where = loc(fmt.Sprintf("%s:%d", inst.File, inst.Line))
	}
	fmt.Fprintf(w, "  %s: %-6s at %s\n", side, a.Kind, where)
}
