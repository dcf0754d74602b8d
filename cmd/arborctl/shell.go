package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/arbor-protocol/arbor-go/pkg/node"
	"github.com/arbor-protocol/arbor-go/pkg/session"
	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

func init() {
	rootCmd.AddCommand(newShellCmd())
}

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Open an interactive session with a device",
		Long: `The shell command connects to a device and reads commands from an
interactive prompt. Writes can be grouped into a transaction with
"tx begin" and flushed as one batch with "tx end".

Example:
  arborctl shell
  arborctl --addr 10.0.0.17:8614 shell`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell()
		},
	}
}

func runShell() error {
	ctx := context.Background()
	conn, cleanup, err := connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          conn.DeviceID() + "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	sh := &shell{conn: conn, out: rl.Stdout()}
	sh.printHelp()

	for {
		line, err := rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			return nil
		}

		if sh.dispatch(ctx, line) {
			return nil
		}
	}
}

// shell holds the state of one interactive session.
type shell struct {
	conn *session.Conn
	out  io.Writer
	tx   *session.Transaction
}

// dispatch runs one input line. It returns true when the session
// should end.
func (s *shell) dispatch(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()

	case "get", "g":
		s.cmdGet(ctx, args)

	case "set", "s":
		s.cmdSet(ctx, args)

	case "ls", "l":
		s.cmdLs(ctx, args)

	case "info", "i":
		s.cmdInfo(ctx, args)

	case "sub":
		s.cmdSub(ctx, args)

	case "unsub":
		s.cmdUnsub(ctx, args)

	case "poll", "p":
		s.cmdPoll(ctx, args)

	case "tx", "t":
		s.cmdTx(ctx, args)

	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return true

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out, `
Arbor Shell Commands:
  Nodes:
    get <path>           - Read a node (wildcards allowed)
    set <path> <value>   - Write a node
    ls [-r] [prefix]     - List nodes below a prefix
    info <path>          - Show a node's metadata

  Streaming:
    sub <path>           - Subscribe to a node
    unsub <path>         - Unsubscribe from a node
    poll [duration]      - Drain buffered updates (default 1s)

  Transactions:
    tx begin             - Start buffering writes
    tx end               - Flush buffered writes as one batch
    tx status            - Show buffered write count

  General:
    help                 - Show this help
    quit                 - Exit shell

  Path Format:
    slash or dot separated, * matches one level
    e.g. osc/0/freq or osc/*/freq or dev.serial`)
}

func (s *shell) cmdGet(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: get <path>")
		return
	}
	v, err := s.conn.Node(args[0]).Get(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	if m, ok := v.(map[string]any); ok {
		paths := make([]string, 0, len(m))
		for p := range m {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			fmt.Fprintf(s.out, "%s = %s\n", p, formatValue(m[p]))
		}
		return
	}
	fmt.Fprintf(s.out, "%s = %s\n", args[0], formatValue(v))
}

func (s *shell) cmdSet(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.out, "Usage: set <path> <value>")
		return
	}
	err := s.conn.Node(args[0]).Set(ctx, parseValue(args[1]), node.Broadcast())
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	if s.tx != nil {
		fmt.Fprintf(s.out, "buffered (%d pending)\n", s.tx.Pending())
	} else {
		fmt.Fprintln(s.out, "ok")
	}
}

func (s *shell) cmdLs(ctx context.Context, args []string) {
	var flags wire.ListFlags
	prefix := ""
	for _, a := range args {
		if a == "-r" {
			flags |= wire.ListRecursive
		} else {
			prefix = a
		}
	}
	paths, err := s.conn.ListNodes(ctx, prefix, flags)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	for _, p := range paths {
		mark := ""
		if s.conn.IsSubscribed(p) {
			mark = " *"
		}
		fmt.Fprintf(s.out, "%s%s\n", p, mark)
	}
}

func (s *shell) cmdInfo(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: info <path>")
		return
	}
	info, err := s.conn.NodeInfo(ctx, args[0])
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "%s  type=%s access=%s setting=%v streaming=%v",
		info.Path, info.Type, accessString(info), info.Setting, info.Streaming)
	if info.Unit != "" {
		fmt.Fprintf(s.out, " unit=%s", info.Unit)
	}
	fmt.Fprintln(s.out)
	if info.Description != "" {
		fmt.Fprintf(s.out, "  %s\n", info.Description)
	}
	if len(info.Options) > 0 {
		values := make([]int64, 0, len(info.Options))
		for v := range info.Options {
			values = append(values, v)
		}
		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
		for _, v := range values {
			fmt.Fprintf(s.out, "  %d = %s\n", v, info.Options[v])
		}
	}
}

func (s *shell) cmdSub(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: sub <path>")
		return
	}
	if err := s.conn.Node(args[0]).Subscribe(ctx); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "subscribed (%d total)\n", len(s.conn.Subscriptions()))
}

func (s *shell) cmdUnsub(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: unsub <path>")
		return
	}
	if err := s.conn.Node(args[0]).Unsubscribe(ctx); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "unsubscribed (%d left)\n", len(s.conn.Subscriptions()))
}

func (s *shell) cmdPoll(ctx context.Context, args []string) {
	recording := time.Second
	if len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			fmt.Fprintf(s.out, "Bad duration %q: %v\n", args[0], err)
			return
		}
		recording = d
	}
	updates, err := s.conn.Poll(ctx, recording, recording, 0)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	if len(updates) == 0 {
		fmt.Fprintln(s.out, "no updates")
		return
	}
	clockRate := s.conn.ClockRate()
	paths := make([]string, 0, len(updates))
	for p := range updates {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		for _, sample := range updates[p] {
			if clockRate > 0 {
				fmt.Fprintf(s.out, "%-30s %14.6f  %s\n", p, float64(sample.Timestamp)/clockRate, formatValue(sample.Value))
			} else {
				fmt.Fprintf(s.out, "%-30s %14d  %s\n", p, sample.Timestamp, formatValue(sample.Value))
			}
		}
	}
}

func (s *shell) cmdTx(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: tx begin|end|status")
		return
	}
	switch args[0] {
	case "begin":
		if s.tx != nil {
			fmt.Fprintln(s.out, "transaction already open")
			return
		}
		s.tx = s.conn.BeginTransaction()
		fmt.Fprintln(s.out, "transaction open; writes are buffered until 'tx end'")

	case "end":
		if s.tx == nil {
			fmt.Fprintln(s.out, "no open transaction")
			return
		}
		pending := s.tx.Pending()
		err := s.tx.End(ctx)
		s.tx = nil
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return
		}
		fmt.Fprintf(s.out, "flushed %d write(s)\n", pending)

	case "status":
		if s.tx == nil {
			fmt.Fprintln(s.out, "no open transaction")
			return
		}
		fmt.Fprintf(s.out, "%d write(s) pending\n", s.tx.Pending())

	default:
		fmt.Fprintln(s.out, "Usage: tx begin|end|status")
	}
}
