package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/arbor-protocol/arbor-go/pkg/node"
)

var (
	setBroadcast bool
	setDeep      bool
)

func init() {
	cmd := newSetCmd()
	cmd.Flags().BoolVar(&setBroadcast, "broadcast", false, "Allow a wildcard pattern to write every matching node")
	cmd.Flags().BoolVar(&setDeep, "deep", false, "Write synchronously and print the value the device acknowledged")
	rootCmd.AddCommand(cmd)
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <path> <value>",
		Short: "Write a node",
		Long: `The set command writes a node value. Integers and floats are sent
typed; anything else is sent as a string, so enumerated nodes accept
their option labels. Writing a wildcard pattern requires --broadcast
and writes the same value to every matching writable node.

Example:
  arborctl set osc/0/freq 10.5e6
  arborctl set sigin/0/ac on
  arborctl set --broadcast "osc/*/freq" 10e6
  arborctl set --deep demod/0/rate 1842.0`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(args)
		},
	}
}

func runSet(args []string) error {
	ctx := context.Background()
	conn, cleanup, err := connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	path := args[0]
	value := parseValue(args[1])

	var opts []node.CallOption
	if setBroadcast {
		opts = append(opts, node.Broadcast())
	}
	if setDeep {
		opts = append(opts, node.Deep())
	}

	if err := conn.Node(path).Set(ctx, value, opts...); err != nil {
		return err
	}

	if setDeep {
		// Deep writes confirm against the device; read back what it
		// settled on, which may differ from the submitted value when
		// the device rounds.
		v, err := conn.Node(path).Get(ctx, node.Deep())
		if err != nil {
			return err
		}
		printInfo("%s = %s\n", path, formatValue(v))
		return nil
	}

	printVerbose("ok\n")
	return nil
}
