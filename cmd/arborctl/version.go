package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arbor-protocol/arbor-go/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("arborctl %s\n", version.Library)
		fmt.Printf("  protocol: %s\n", version.Current)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
