// Command raceverify configures and hosts the race detection and
// verification runtime.
//
// The binary owns the operator surface: option parsing, the static info
// database, the race databases, the static profile and the analyzer
// selection. The event stream itself is produced
// by an instrumentation runtime embedding the race package; the
// subcommands here build sessions, massage the persisted artifacts and
// render reports.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	root := &cobra.Command{
		Use:           "raceverify",
		Short:         "dynamic data-race detection and active verification",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newProfileCmd(log))
	root.AddCommand(newVerifyCmd(log))
	root.AddCommand(newReportCmd(log))
	root.AddCommand(newLinesCmd(log))
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
