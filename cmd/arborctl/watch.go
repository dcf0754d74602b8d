package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/arbor-protocol/arbor-go/pkg/node"
)

var (
	watchUntil    string
	watchInvert   bool
	watchFor      time.Duration
	watchInterval time.Duration
)

func init() {
	cmd := newWatchCmd()
	cmd.Flags().StringVar(&watchUntil, "until", "", "Target value to wait for")
	cmd.Flags().BoolVar(&watchInvert, "invert", false, "Wait until the value differs from the target")
	cmd.Flags().DurationVar(&watchFor, "for", 30*time.Second, "Give up after this long")
	cmd.Flags().DurationVar(&watchInterval, "interval", 100*time.Millisecond, "Poll interval")
	cmd.MarkFlagRequired("until")
	rootCmd.AddCommand(cmd)
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <path>",
		Short: "Wait for a node to reach a value",
		Long: `The watch command polls a node until it equals the target value, then
exits. With --invert it waits until the node moves away from the
target instead. A timeout makes the command fail.

Example:
  arborctl watch demod/0/enable --until on
  arborctl watch system/calibrating --until 0 --for 2m
  arborctl watch osc/0/freq --until 10e6 --invert`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(args)
		},
	}
}

func runWatch(args []string) error {
	ctx := context.Background()
	conn, cleanup, err := connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	path := args[0]
	target := parseValue(watchUntil)

	opts := []node.WaitOption{
		node.WithTimeout(watchFor),
		node.WithPollInterval(watchInterval),
	}
	if watchInvert {
		opts = append(opts, node.Invert())
	}

	start := time.Now()
	if err := conn.Node(path).WaitForStateChange(ctx, target, opts...); err != nil {
		return err
	}

	if watchInvert {
		printInfo("%s left %v after %s\n", path, target, time.Since(start).Round(time.Millisecond))
	} else {
		printInfo("%s reached %v after %s\n", path, target, time.Since(start).Round(time.Millisecond))
	}
	return nil
}
