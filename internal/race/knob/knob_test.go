package knob

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndDefaults(t *testing.T) {
	k := New()
	k.RegisterBool("race_verify", "enable the race verify", false)
	k.RegisterStr("race_in", "input race database path", "race.db")
	k.RegisterInt("unit_size_", "monitoring granularity in bytes", 4)

	require.False(t, k.ValueBool("race_verify"))
	require.Equal(t, "race.db", k.ValueStr("race_in"))
	require.Equal(t, 4, k.ValueInt("unit_size_"))
}

func TestDoubleRegisterKeepsFirst(t *testing.T) {
	k := New()
	k.RegisterInt("unit_size_", "granularity", 4)
	k.RegisterInt("unit_size_", "granularity", 8)
	require.Equal(t, 4, k.ValueInt("unit_size_"))
}

func TestSet(t *testing.T) {
	k := New()
	k.RegisterBool("ignore_lib", "ignore common libraries", false)
	require.NoError(t, k.Set("ignore_lib", "true"))
	require.True(t, k.ValueBool("ignore_lib"))
	require.Error(t, k.Set("nope", "1"))
}

func TestAddTo(t *testing.T) {
	k := New()
	k.RegisterStr("race_report", "race report path", "race.rp")

	fs := pflag.NewFlagSet("cli", pflag.ContinueOnError)
	k.AddTo(fs)
	require.NoError(t, fs.Parse([]string{"--race_report=out.rp"}))
	require.Equal(t, "out.rp", k.ValueStr("race_report"))
}

func TestLoadFileOverlay(t *testing.T) {
	k := New()
	k.RegisterInt("parallel_detector_number", "detector workers", 0)
	k.RegisterStr("static_profile", "profile path", "0")
	k.RegisterBool("track_racy_inst", "track racy instructions", false)

	path := filepath.Join(t.TempDir(), "conf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"parallel_detector_number: 2\nstatic_profile: groups/g0.out\ntrack_racy_inst: true\n"), 0o644))

	require.NoError(t, k.LoadFile(path))
	require.Equal(t, 2, k.ValueInt("parallel_detector_number"))
	require.Equal(t, "groups/g0.out", k.ValueStr("static_profile"))
	require.True(t, k.ValueBool("track_racy_inst"))
}

func TestLoadFileCommandLineWins(t *testing.T) {
	k := New()
	k.RegisterInt("unit_size_", "granularity", 4)
	require.NoError(t, k.Set("unit_size_", "8"))

	path := filepath.Join(t.TempDir(), "conf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("unit_size_: 16\n"), 0o644))
	require.NoError(t, k.LoadFile(path))
	require.Equal(t, 8, k.ValueInt("unit_size_"))
}

func TestLoadFileUnknownOption(t *testing.T) {
	k := New()
	path := filepath.Join(t.TempDir(), "conf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mystery: 1\n"), 0o644))
	require.Error(t, k.LoadFile(path))
}

func TestLoadFileMissingIsNoop(t *testing.T) {
	k := New()
	require.NoError(t, k.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")))
}
