package main

import (
	"path"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kolkov/raceverify/internal/race/control"
	"github.com/kolkov/raceverify/race"
)

// newVerifyCmd builds an active verification session: the static profile
// supplies the candidate pairs, the verifier is attached, and the stack is
// handed to the race facade.
func newVerifyCmd(log *logrus.Logger) *cobra.Command {
	s, detectors, v := newSession(log)
	var targetDir string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "run an active verification session over the instrumented program",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.knobs.Set("race_verify", "true"); err != nil {
				return err
			}
			if err := s.build(log, detectors, v); err != nil {
				return err
			}
			if s.praceDB.OpenPairs() == 0 {
				return errors.New("no potential statement pairs; pass --static_profile")
			}
			if targetDir != "" {
				module, err := control.TargetModule(targetDir)
				if err != nil {
					return err
				}
				log.WithFields(logrus.Fields{
					"module": module,
					"image":  path.Base(module),
				}).Info("resolved target module")
			}
			race.Attach(s.ctrl)
			log.WithField("pairs", s.praceDB.OpenPairs()).Info("verification session ready")

			if err := hostRun(cmd, log); err != nil {
				return err
			}

			if err := s.finish(); err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"confirmed": s.raceDB.RaceCount(),
				"open":      s.praceDB.OpenPairs(),
			}).Info("verification session finished")
			return nil
		},
	}
	s.bind(cmd)
	cmd.Flags().StringVar(&targetDir, "target-dir", "",
		"source directory of the program under test; its go.mod module path is resolved and logged")
	return cmd
}
