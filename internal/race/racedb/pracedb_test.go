package racedb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kolkov/raceverify/internal/race/sinfo"
)

func TestPStmtInterning(t *testing.T) {
	db := NewPRaceDB()
	p1 := db.GetPStmt("file9.cpp", 17)
	p2 := db.GetPStmt("file9.cpp", 17)
	require.Same(t, p1, p2)
	require.Equal(t, "file9.cpp:17", p1.String())

	inst := sinfo.New().GetInst("app", 0x10, "/src/file9.cpp", 17, 0, "mov")
	require.Same(t, p1, db.PStmtOf(inst))
}

func TestPairLifecycle(t *testing.T) {
	db := NewPRaceDB()
	a := db.GetPStmt("file9.cpp", 17)
	b := db.GetPStmt("file9.cpp", 25)
	c := db.GetPStmt("file9.cpp", 40)

	db.AddPair(a, b)
	require.True(t, db.SecondPotentialStatement(a, b))
	require.True(t, db.SecondPotentialStatement(b, a), "pairs are unordered")
	require.False(t, db.SecondPotentialStatement(a, c))

	db.RemoveRelationMapping(b, a)
	require.False(t, db.SecondPotentialStatement(a, b))
	require.Equal(t, 0, db.OpenPairs())
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "g0.out")
	content := "" +
		"# header produced by the grouper\n" +
		"file9.cpp 17 file9.cpp 25\n" +
		"\n" +
		"1 bogus line skipped because it is not alphabetic\n" +
		"main.cpp 8 util.cpp 91\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	db := NewPRaceDB()
	require.NoError(t, db.LoadProfile(path))
	require.Equal(t, 2, db.OpenPairs())
	require.True(t, db.SecondPotentialStatement(db.GetPStmt("file9.cpp", 17), db.GetPStmt("file9.cpp", 25)))
	require.True(t, db.SecondPotentialStatement(db.GetPStmt("util.cpp", 91), db.GetPStmt("main.cpp", 8)))
}

func TestLoadProfileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.out")
	require.NoError(t, os.WriteFile(path, []byte("file9.cpp 17 file9.cpp\n"), 0o644))
	require.Error(t, NewPRaceDB().LoadProfile(path))
}

func TestSaveInstrumentedLines(t *testing.T) {
	db := NewPRaceDB()
	db.AddPair(db.GetPStmt("b.cpp", 9), db.GetPStmt("a.cpp", 3))
	db.AddPair(db.GetPStmt("a.cpp", 3), db.GetPStmt("a.cpp", 1))

	path := filepath.Join(t.TempDir(), "lines.out")
	require.NoError(t, db.SaveInstrumentedLines(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "a.cpp 1\na.cpp 3\nb.cpp 9\n", string(data))
}
