package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kolkov/raceverify/internal/race/racedb"
	"github.com/kolkov/raceverify/internal/race/sinfo"
)

// newReportCmd regenerates the human-readable race report from a persisted
// race database and static info database.
func newReportCmd(log *logrus.Logger) *cobra.Command {
	var (
		sinfoIn string
		raceIn  string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "render the race report from a saved race database",
		RunE: func(cmd *cobra.Command, args []string) error {
			si := sinfo.New()
			if err := si.Load(sinfoIn); err != nil {
				return err
			}
			db := racedb.NewDB(log)
			if err := db.Load(raceIn); err != nil {
				return err
			}

			rp := racedb.NewReport(si)
			if out == "-" {
				return rp.Write(os.Stdout, db)
			}
			if err := rp.Save(out, db); err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"races": db.RaceCount(), "path": out}).Info("report written")
			return nil
		},
	}
	cmd.Flags().StringVar(&sinfoIn, "sinfo_in", "sinfo.db", "the input static info database path")
	cmd.Flags().StringVar(&raceIn, "race_in", "race.db", "the input race database path")
	cmd.Flags().StringVar(&out, "race_report", "race.rp", "the output race report path, - for stdout")
	return cmd
}

// newLinesCmd derives the instrumented-lines sidecar from a static
// profile, the file a partial instrumentation pass feeds on.
func newLinesCmd(log *logrus.Logger) *cobra.Command {
	var (
		profile string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "lines",
		Short: "derive the instrumented_lines sidecar from a static profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			pdb := racedb.NewPRaceDB()
			if err := pdb.LoadProfile(profile); err != nil {
				return err
			}
			if err := pdb.SaveInstrumentedLines(out); err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"pairs": pdb.OpenPairs(), "path": out}).Info("sidecar written")
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "static_profile", "",
		"the potential race statement pairs generated by static race detector")
	cmd.Flags().StringVar(&out, "instrumented_lines", "instrumented_lines.out",
		"the output sidecar path")
	cobra.CheckErr(cmd.MarkFlagRequired("static_profile"))
	return cmd
}
