package detector

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/raceverify/internal/race/event"
	"github.com/kolkov/raceverify/internal/race/knob"
	"github.com/kolkov/raceverify/internal/race/racedb"
	"github.com/kolkov/raceverify/internal/race/sinfo"
)

// harness bundles an analyzer with the collaborators a test scenario needs
// and provides shorthand for the event sequences the scenarios replay.
type harness struct {
	t     *testing.T
	si    *sinfo.StaticInfo
	db    *racedb.DB
	knobs *knob.Knob
	clk   event.Clock
}

func newHarness(t *testing.T, reg interface{ Register(*knob.Knob) }, opts map[string]string) *harness {
	log := logrus.New()
	log.SetOutput(io.Discard)

	k := knob.New()
	reg.Register(k)
	for name, value := range opts {
		require.NoError(t, k.Set(name, value))
	}
	return &harness{
		t:     t,
		si:    sinfo.New(),
		db:    racedb.NewDB(log),
		knobs: k,
	}
}

func (h *harness) logger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// inst interns a fresh instruction at the given source line.
func (h *harness) inst(offset event.Addr, line int) *sinfo.Inst {
	return h.si.GetInst("app", offset, "test.cpp", line, 0, "mov")
}

// Addresses shared by the scenarios.
const (
	addrData = event.Addr(0x1000)
	addrM1   = event.Addr(0x2000)
	addrM2   = event.Addr(0x2010)
	addrRW   = event.Addr(0x2020)
	addrSem  = event.Addr(0x2030)
	addrBar  = event.Addr(0x2040)
	addrCond = event.Addr(0x2050)
)

func setupMultiLockHB(t *testing.T, opts map[string]string) (*MultiLockHB, *harness) {
	if opts == nil {
		opts = map[string]string{}
	}
	opts["enable_multilock_hb"] = "true"
	a := NewMultiLockHB()
	h := newHarness(t, a, opts)
	a.Setup(h.logger(), h.knobs, h.db)
	require.True(t, a.Enabled(h.knobs))
	return a, h
}

func setupDjit(t *testing.T) (*Djit, *harness) {
	a := NewDjit()
	h := newHarness(t, a, map[string]string{"enable_djit": "true"})
	a.Setup(h.logger(), h.knobs, h.db)
	require.True(t, a.Enabled(h.knobs))
	return a, h
}

func setupEraser(t *testing.T) (*Eraser, *harness) {
	a := NewEraser()
	h := newHarness(t, a, map[string]string{"enable_eraser": "true"})
	a.Setup(h.logger(), h.knobs, h.db)
	require.True(t, a.Enabled(h.knobs))
	return a, h
}

func setupRaceTrack(t *testing.T) (*RaceTrack, *harness) {
	a := NewRaceTrack()
	h := newHarness(t, a, map[string]string{"enable_race_track": "true"})
	a.Setup(h.logger(), h.knobs, h.db)
	require.True(t, a.Enabled(h.knobs))
	return a, h
}
