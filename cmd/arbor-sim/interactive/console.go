// Package interactive provides the operator console for arbor-sim.
package interactive

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/arbor-protocol/arbor-go/pkg/nodepath"
	"github.com/arbor-protocol/arbor-go/pkg/schema"
	"github.com/arbor-protocol/arbor-go/pkg/sim"
)

// Console drives a served instrument from an interactive prompt:
// reading and writing nodes locally, emitting samples to subscribers,
// and running sample generators.
type Console struct {
	server *sim.Server
	inst   *sim.Instrument
	rl     *readline.Instance
	out    io.Writer

	// gens maps node paths to generator stop functions.
	gens map[string]func()
}

// New creates a console for a running server.
func New(server *sim.Server) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "sim> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{
		server: server,
		inst:   server.Instrument(),
		rl:     rl,
		out:    rl.Stdout(),
		gens:   make(map[string]func()),
	}, nil
}

// Stdout returns a writer that coordinates with the readline prompt.
// Use this for log output to avoid clobbering the input line.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that coordinates with the readline prompt.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			c.stopGenerators()
			cancel()
			return
		}

		if c.dispatch(line) {
			cancel()
			return
		}
	}
}

// dispatch runs one input line. It returns true when the console
// should end.
func (c *Console) dispatch(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "ls", "l":
		c.cmdLs(args)

	case "get", "g":
		c.cmdGet(args)

	case "set", "s":
		c.cmdSet(args)

	case "emit", "e":
		c.cmdEmit(args)

	case "gen":
		c.cmdGen(args)

	case "stats":
		c.cmdStats()

	case "status":
		c.cmdStatus()

	case "quit", "exit", "q":
		c.stopGenerators()
		fmt.Fprintln(c.out, "Exiting...")
		return true

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Arbor Simulator Commands:
  Nodes:
    ls [prefix]          - List node paths
    get <path>           - Read a node value
    set <path> <value>   - Write a node value (device write rules apply)

  Streaming:
    emit <path> <value>  - Push one sample, ignoring writability
    gen start <path> <interval> - Start a sine generator (e.g. 100ms)
    gen stop <path>      - Stop a generator
    gen                  - List running generators

  Status:
    status               - Show instrument status
    stats                - Show operation counters

  General:
    help                 - Show this help
    quit                 - Exit simulator

  Path Format:
    slash or dot separated - e.g. demod/0/sample or demod.0.sample`)
}

func (c *Console) cmdLs(args []string) {
	prefix := ""
	if len(args) > 0 {
		prefix = nodepath.Parse(args[0]).String()
	}
	for _, p := range c.inst.Paths() {
		if prefix != "" && p != prefix && !strings.HasPrefix(p, prefix+"/") {
			continue
		}
		fmt.Fprintln(c.out, p)
	}
}

func (c *Console) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: get <path>")
		return
	}
	value, err := c.inst.Get(context.Background(), args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s = %s\n", args[0], c.display(args[0], value))
}

func (c *Console) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: set <path> <value>")
		return
	}
	value := c.resolve(args[0], strings.Join(args[1:], " "))
	if err := c.inst.Set(context.Background(), args[0], value); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "OK")
}

func (c *Console) cmdEmit(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: emit <path> <value>")
		return
	}
	value := c.resolve(args[0], strings.Join(args[1:], " "))
	if err := c.inst.Emit(args[0], value); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "Sample emitted")
}

func (c *Console) cmdGen(args []string) {
	if len(args) == 0 {
		if len(c.gens) == 0 {
			fmt.Fprintln(c.out, "No generators running")
			return
		}
		paths := make([]string, 0, len(c.gens))
		for p := range c.gens {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			fmt.Fprintln(c.out, p)
		}
		return
	}

	switch args[0] {
	case "start":
		if len(args) != 3 {
			fmt.Fprintln(c.out, "Usage: gen start <path> <interval>")
			return
		}
		path := nodepath.Parse(args[1]).String()
		interval, err := time.ParseDuration(args[2])
		if err != nil {
			fmt.Fprintf(c.out, "Bad interval %q: %v\n", args[2], err)
			return
		}
		if _, running := c.gens[path]; running {
			fmt.Fprintf(c.out, "Generator already running on %s\n", path)
			return
		}
		stop, err := c.inst.StartGenerator(path, interval, sineWave)
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		c.gens[path] = stop
		fmt.Fprintf(c.out, "Generator started on %s (every %s)\n", path, interval)

	case "stop":
		if len(args) != 2 {
			fmt.Fprintln(c.out, "Usage: gen stop <path>")
			return
		}
		path := nodepath.Parse(args[1]).String()
		stop, running := c.gens[path]
		if !running {
			fmt.Fprintf(c.out, "No generator on %s\n", path)
			return
		}
		stop()
		delete(c.gens, path)
		fmt.Fprintf(c.out, "Generator stopped on %s\n", path)

	default:
		fmt.Fprintln(c.out, "Usage: gen [start <path> <interval> | stop <path>]")
	}
}

func (c *Console) cmdStats() {
	stats := c.inst.Stats()
	fmt.Fprintln(c.out, "\nOperation Counters")
	fmt.Fprintln(c.out, "-------------------------------------------")
	fmt.Fprintf(c.out, "  get:         %d\n", stats.Gets)
	fmt.Fprintf(c.out, "  getDeep:     %d\n", stats.GetDeeps)
	fmt.Fprintf(c.out, "  set:         %d\n", stats.Sets)
	fmt.Fprintf(c.out, "  setDeep:     %d\n", stats.SetDeeps)
	fmt.Fprintf(c.out, "  setBatch:    %d\n", stats.Batches)
	fmt.Fprintf(c.out, "  listNodes:   %d\n", stats.Lists)
	fmt.Fprintf(c.out, "  nodeInfo:    %d\n", stats.Infos)
	fmt.Fprintf(c.out, "  subscribe:   %d\n", stats.Subscribes)
	fmt.Fprintf(c.out, "  poll:        %d\n", stats.Polls)
	fmt.Fprintln(c.out)
}

func (c *Console) cmdStatus() {
	fmt.Fprintln(c.out, "\nInstrument Status")
	fmt.Fprintln(c.out, "-------------------------------------------")
	fmt.Fprintf(c.out, "  Device ID:    %s\n", c.inst.DeviceID())
	fmt.Fprintf(c.out, "  Clock rate:   %g ticks/s\n", c.inst.ClockRate())
	fmt.Fprintf(c.out, "  Nodes:        %d\n", len(c.inst.Paths()))
	fmt.Fprintf(c.out, "  Listening:    %s\n", c.server.Addr())
	fmt.Fprintf(c.out, "  Connections:  %d\n", c.server.ConnectionCount())
	fmt.Fprintf(c.out, "  Generators:   %d\n", len(c.gens))
	fmt.Fprintln(c.out)
}

// stopGenerators stops every running generator.
func (c *Console) stopGenerators() {
	for path, stop := range c.gens {
		stop()
		delete(c.gens, path)
	}
}

// display formats a value for the console, labeling enumerations and
// appending the node's unit.
func (c *Console) display(path string, value any) string {
	info, err := c.inst.NodeInfo(context.Background(), path)
	if err != nil {
		return fmt.Sprint(value)
	}
	if info.Type == schema.TypeEnumerated {
		if raw, ok := schema.ToInt64(value); ok {
			if label, found := info.OptionLabel(raw); found {
				return fmt.Sprintf("%s (%d)", label, raw)
			}
		}
	}
	if info.Unit != "" {
		return fmt.Sprintf("%v %s", value, info.Unit)
	}
	return fmt.Sprint(value)
}

// resolve parses a value argument: integer, then float, then string
// with quotes stripped. Enumerated targets accept option labels.
func (c *Console) resolve(path, raw string) any {
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	label := strings.Trim(raw, "\"'")
	info, err := c.inst.NodeInfo(context.Background(), path)
	if err == nil && info.Type == schema.TypeEnumerated {
		if n, ok := info.OptionValue(label); ok {
			return n
		}
	}
	return label
}

// sineWave produces one full cycle every 64 samples.
func sineWave(n uint64) any {
	return math.Sin(2 * math.Pi * float64(n%64) / 64)
}
