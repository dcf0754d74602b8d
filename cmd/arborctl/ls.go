package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

var (
	lsRecursive bool
	lsLeaves    bool
	lsSettings  bool
	lsStreaming bool
)

func init() {
	cmd := newLsCmd()
	cmd.Flags().BoolVarP(&lsRecursive, "recursive", "r", false, "Descend into subtrees")
	cmd.Flags().BoolVar(&lsLeaves, "leaves", false, "List only leaf nodes")
	cmd.Flags().BoolVar(&lsSettings, "settings", false, "List only setting nodes")
	cmd.Flags().BoolVar(&lsStreaming, "streaming", false, "List only streaming nodes")
	rootCmd.AddCommand(cmd)
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [prefix]",
		Short: "List nodes below a prefix",
		Long: `The ls command lists the tree below a prefix, one level at a time by
default. Without a prefix it lists the top-level branches.

Example:
  arborctl ls
  arborctl ls osc/0
  arborctl ls -r demod
  arborctl ls -r --settings ""
  arborctl ls -r --streaming demod`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLs(args)
		},
	}
}

// lsFlags maps the ls command's flags onto wire listing flags. The
// content filters imply a leaf listing.
func lsFlags() wire.ListFlags {
	var flags wire.ListFlags
	if lsRecursive {
		flags |= wire.ListRecursive
	}
	if lsLeaves {
		flags |= wire.ListLeavesOnly
	}
	if lsSettings {
		flags |= wire.ListSettingsOnly
	}
	if lsStreaming {
		flags |= wire.ListStreamingOnly
	}
	return flags
}

func runLs(args []string) error {
	ctx := context.Background()
	conn, cleanup, err := connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}

	paths, err := conn.ListNodes(ctx, prefix, lsFlags())
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(paths)
	}
	for _, p := range paths {
		printInfo("%s\n", p)
	}
	return nil
}
