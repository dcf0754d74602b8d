package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arbor-protocol/arbor-go/pkg/rpc"
	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

var (
	subPoll    time.Duration
	subGaps    bool
	subCount   int
	subTimeout time.Duration
)

func init() {
	cmd := newSubscribeCmd()
	cmd.Flags().DurationVar(&subPoll, "poll", time.Second, "Recording time per poll round")
	cmd.Flags().BoolVar(&subGaps, "detect-gaps", false, "Ask the device to flag sample gaps")
	cmd.Flags().IntVar(&subCount, "count", 0, "Stop after this many poll rounds (0 = until interrupted)")
	cmd.Flags().DurationVar(&subTimeout, "wait", 5*time.Second, "Extra device-side wait when a round has no data")
	rootCmd.AddCommand(cmd)
}

func newSubscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <path>...",
		Short: "Subscribe to nodes and stream their updates",
		Long: `The subscribe command subscribes to one or more nodes, then polls the
device in a loop and prints every buffered update until interrupted.
Paths may contain wildcards. Timestamps are printed in seconds of
device time.

Example:
  arborctl subscribe demod/0/sample
  arborctl subscribe "demod/*/sample" --poll 500ms
  arborctl subscribe osc/0/freq --count 3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(args)
		},
	}
}

func runSubscribe(args []string) error {
	ctx := context.Background()
	conn, cleanup, err := connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	for _, pattern := range args {
		if err := conn.Node(pattern).Subscribe(ctx); err != nil {
			return err
		}
	}
	defer func() {
		for _, pattern := range args {
			conn.Node(pattern).Unsubscribe(context.Background())
		}
	}()

	subscribed := conn.Subscriptions()
	sort.Strings(subscribed)
	printVerbose("Subscribed to %d node(s):\n", len(subscribed))
	for _, p := range subscribed {
		printVerbose("  %s\n", p)
	}

	var flags wire.PollFlags
	if subGaps {
		flags |= wire.PollDetectGaps
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	clockRate := conn.ClockRate()
	rounds := 0
	for {
		select {
		case <-sigCh:
			printVerbose("Interrupted\n")
			return nil
		default:
		}

		updates, err := conn.Poll(ctx, subPoll, subTimeout, flags)
		if err != nil {
			if errors.Is(err, rpc.ErrClientClosed) {
				return nil
			}
			return err
		}
		printUpdates(updates, clockRate)

		rounds++
		if subCount > 0 && rounds >= subCount {
			return nil
		}
	}
}

// printUpdates prints one line per sample, grouped by path in path
// order. Timestamps convert from clock ticks to seconds.
func printUpdates(updates map[string][]wire.Sample, clockRate float64) {
	paths := make([]string, 0, len(updates))
	for p := range updates {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		for _, s := range updates[p] {
			if clockRate > 0 {
				printInfo("%-30s %14.6f  %s\n", p, float64(s.Timestamp)/clockRate, formatValue(s.Value))
			} else {
				printInfo("%-30s %14d  %s\n", p, s.Timestamp, formatValue(s.Value))
			}
		}
	}
}
