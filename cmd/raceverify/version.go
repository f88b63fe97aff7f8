package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kolkov/raceverify/race"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print runtime version and available analyzers",
		Run: func(cmd *cobra.Command, args []string) {
			info := race.GetInfo()
			fmt.Printf("raceverify %s\n", info.Version)
			fmt.Printf("analyzers: %s\n", strings.Join(info.Analyzers, ", "))
			if info.Verifier {
				fmt.Println("verifier: available")
			}
		},
	}
}
