package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/arbor-protocol/arbor-go/pkg/node"
)

var (
	getDeep bool
	getRaw  bool
)

func init() {
	cmd := newGetCmd()
	cmd.Flags().BoolVar(&getDeep, "deep", false, "Read from the device instead of the data server cache")
	cmd.Flags().BoolVar(&getRaw, "raw", false, "Skip value parsers and enum label mapping")
	rootCmd.AddCommand(cmd)
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Read one or more nodes",
		Long: `The get command reads node values. The path may contain wildcards;
a pattern prints one "path = value" line per matching node.

Example:
  arborctl get osc/0/freq
  arborctl get "osc/*/freq"
  arborctl get --deep demod/0/rate
  arborctl get --raw sigin/0/ac`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(args)
		},
	}
}

func runGet(args []string) error {
	ctx := context.Background()
	conn, cleanup, err := connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var opts []node.CallOption
	if getDeep {
		opts = append(opts, node.Deep())
	}
	if getRaw {
		opts = append(opts, node.Raw())
	}

	v, err := conn.Node(args[0]).Get(ctx, opts...)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(v)
	}
	printValues(v)
	return nil
}
