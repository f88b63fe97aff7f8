package main

import (
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kolkov/raceverify/internal/race/analyzer"
	"github.com/kolkov/raceverify/internal/race/control"
	"github.com/kolkov/raceverify/internal/race/detector"
	"github.com/kolkov/raceverify/internal/race/knob"
	"github.com/kolkov/raceverify/internal/race/racedb"
	"github.com/kolkov/raceverify/internal/race/verifier"
)

// session bundles everything a hosted run needs: the control instance, the
// databases and the analyzers that made the cut.
type session struct {
	knobs   *knob.Knob
	ctrl    *control.Control
	raceDB  *racedb.DB
	praceDB *racedb.PRaceDB
	report  *racedb.Report

	detectors []string
	verifying bool
}

// detectorAnalyzer is what every concrete detector offers the session: the
// full handler surface plus setup against the shared collaborators.
type detectorAnalyzer interface {
	analyzer.Analyzer
	Setup(log *logrus.Logger, k *knob.Knob, db *racedb.DB)
}

// newSession creates the registry and registers every component's options;
// call bind before parsing and build after.
func newSession(log *logrus.Logger) (*session, map[string]detectorAnalyzer, *verifier.Verifier) {
	s := &session{knobs: knob.New()}
	s.ctrl = control.New(log, s.knobs)
	s.ctrl.Register()
	s.knobs.RegisterStr("race_in", "the input race database path", "race.db")
	s.knobs.RegisterStr("race_out", "the output race database path", "race.db")
	s.knobs.RegisterStr("race_report", "the output race report path", "race.rp")
	s.knobs.RegisterStr("config", "optional YAML config overlay", "")

	detectors := map[string]detectorAnalyzer{
		"djit":         detector.NewDjit(),
		"eraser":       detector.NewEraser(),
		"race_track":   detector.NewRaceTrack(),
		"multilock_hb": detector.NewMultiLockHB(),
	}
	for _, d := range detectors {
		d.Register(s.knobs)
	}

	v := verifier.New()
	v.Register(s.knobs)
	return s, detectors, v
}

// bind exposes the whole registry on the command's flag set.
func (s *session) bind(cmd *cobra.Command) {
	s.knobs.AddTo(cmd.Flags())
}

// build applies the parsed options: config overlay, control setup, the
// databases, the static profile and the analyzers that enabled themselves.
func (s *session) build(log *logrus.Logger, detectors map[string]detectorAnalyzer, v *verifier.Verifier) error {
	if path := s.knobs.ValueStr("config"); path != "" {
		if err := s.knobs.LoadFile(path); err != nil {
			return err
		}
	}
	if err := s.ctrl.Setup(); err != nil {
		return err
	}

	s.raceDB = racedb.NewDB(log)
	if err := s.raceDB.Load(s.knobs.ValueStr("race_in")); err != nil {
		log.WithError(err).Warn("race database not loaded; starting empty")
	}
	s.report = racedb.NewReport(s.ctrl.StaticInfo())

	s.praceDB = racedb.NewPRaceDB()
	if path := s.knobs.ValueStr("static_profile"); path != "0" && path != "" {
		if err := s.praceDB.LoadProfile(path); err != nil {
			log.WithError(err).Warn("static profile not loaded; no candidate pairs")
		}
	}

	for name, d := range detectors {
		if !d.Enabled(s.knobs) {
			continue
		}
		d.Setup(log, s.knobs, s.raceDB)
		s.ctrl.AddAnalyzer(d)
		s.detectors = append(s.detectors, name)
	}
	sort.Strings(s.detectors)

	if v != nil && v.Enabled(s.knobs) {
		v.Setup(log, s.knobs, s.praceDB, s.raceDB, rand.Int63())
		s.ctrl.AddAnalyzer(v)
		s.verifying = true
	}
	return nil
}

// finish persists the run's artifacts: sinfo, race database, race report.
func (s *session) finish() error {
	if err := s.ctrl.ProgramExit(); err != nil {
		return err
	}
	if err := s.raceDB.Save(s.knobs.ValueStr("race_out")); err != nil {
		return err
	}
	return s.report.Save(s.knobs.ValueStr("race_report"), s.raceDB)
}
