package main

import (
	"context"
	"sort"

	"github.com/spf13/cobra"

	"github.com/arbor-protocol/arbor-go/pkg/schema"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <path>",
		Short: "Show a node's metadata",
		Long: `The info command shows the metadata of a leaf node: type, unit,
access, and for enumerated nodes the defined options.

Example:
  arborctl info osc/0/freq
  arborctl info sigin/0/ac`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(args)
		},
	}
}

func runInfo(args []string) error {
	ctx := context.Background()
	conn, cleanup, err := connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	info, err := conn.NodeInfo(ctx, args[0])
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(info)
	}
	printNodeInfo(info)
	return nil
}

func printNodeInfo(info schema.NodeInfo) {
	printInfo("Path:        %s\n", info.Path)
	if info.Description != "" {
		printInfo("Description: %s\n", info.Description)
	}
	printInfo("Type:        %s\n", info.Type)
	if info.Unit != "" {
		printInfo("Unit:        %s\n", info.Unit)
	}
	printInfo("Access:      %s\n", accessString(info))
	printInfo("Setting:     %v\n", info.Setting)
	printInfo("Streaming:   %v\n", info.Streaming)
	if info.Vector {
		printInfo("Vector:      true\n")
	}
	if len(info.Options) > 0 {
		values := make([]int64, 0, len(info.Options))
		for v := range info.Options {
			values = append(values, v)
		}
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
		printInfo("Options:\n")
		for _, v := range values {
			printInfo("  %d = %s\n", v, info.Options[v])
		}
	}
}

func accessString(info schema.NodeInfo) string {
	switch {
	case info.Readable && info.Writable:
		return "read-write"
	case info.Readable:
		return "read-only"
	case info.Writable:
		return "write-only"
	default:
		return "none"
	}
}
