package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arbor-protocol/arbor-go/pkg/log"
)

var (
	logLayer     string
	logDirection string
	logCategory  string
	logConnID    string
	logDevice    string
)

func init() {
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect protocol log files",
		Long: `The log command inspects protocol log files written with --log-file
(or any log.FileLogger).`,
	}

	viewCmd := &cobra.Command{
		Use:   "view <file>",
		Short: "Print log events in human-readable form",
		Long: `Print each event of a protocol log file as one line.

Example:
  arborctl log view session.alog
  arborctl log view --layer wire session.alog
  arborctl log view --direction out --category message session.alog`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogView(args)
		},
	}
	viewCmd.Flags().StringVar(&logLayer, "layer", "", "Filter by layer (transport, wire, session, tree)")
	viewCmd.Flags().StringVar(&logDirection, "direction", "", "Filter by direction (in, out)")
	viewCmd.Flags().
		StringVar(&logCategory, "category", "", "Filter by category (message, control, state, resolve, error)")
	viewCmd.Flags().StringVar(&logConnID, "conn", "", "Filter by connection ID")
	viewCmd.Flags().StringVar(&logDevice, "device", "", "Filter by device ID")

	statsCmd := &cobra.Command{
		Use:   "stats <file>",
		Short: "Summarize a log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogStats(args)
		},
	}

	logCmd.AddCommand(viewCmd)
	logCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(logCmd)
}

// logFilter builds the reader filter from the view flags.
func logFilter() (log.Filter, error) {
	filter := log.Filter{
		ConnectionID: logConnID,
		DeviceID:     logDevice,
	}
	if logLayer != "" {
		l, err := parseLayer(logLayer)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Layer = &l
	}
	if logDirection != "" {
		d, err := parseDirection(logDirection)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Direction = &d
	}
	if logCategory != "" {
		c, err := parseCategory(logCategory)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &c
	}
	return filter, nil
}

func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "session":
		return log.LayerSession, nil
	case "tree":
		return log.LayerTree, nil
	default:
		return 0, fmt.Errorf("unknown layer %q (transport, wire, session, tree)", s)
	}
}

func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("unknown direction %q (in, out)", s)
	}
}

func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "control":
		return log.CategoryControl, nil
	case "state":
		return log.CategoryState, nil
	case "resolve":
		return log.CategoryResolve, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("unknown category %q (message, control, state, resolve, error)", s)
	}
}

func runLogView(args []string) error {
	filter, err := logFilter()
	if err != nil {
		return err
	}

	reader, err := log.NewFilteredReader(args[0], filter)
	if err != nil {
		return err
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		printInfo("%s\n", formatEvent(event))
	}
}

// formatEvent renders one event as a single line.
func formatEvent(e log.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-3s %-9s %-8s",
		e.Timestamp.Format("15:04:05.000000"),
		directionMark(e),
		e.Layer, e.Category)
	if e.ConnectionID != "" {
		fmt.Fprintf(&b, " [%.8s]", e.ConnectionID)
	}
	b.WriteString(" ")
	b.WriteString(eventSummary(e))
	return b.String()
}

func directionMark(e log.Event) string {
	if e.Category == log.CategoryState || e.Category == log.CategoryResolve {
		return "-"
	}
	return e.Direction.String()
}

// eventSummary renders the type-specific part of an event line.
func eventSummary(e log.Event) string {
	switch {
	case e.Message != nil:
		m := e.Message
		switch m.Type {
		case log.MessageTypeRequest:
			op := ""
			if m.Operation != nil {
				op = m.Operation.String()
			}
			return strings.TrimSpace(fmt.Sprintf("req #%d %s %s", m.MessageID, op, m.Path))
		case log.MessageTypeResponse:
			status := ""
			if m.Status != nil {
				status = m.Status.String()
			}
			s := fmt.Sprintf("resp #%d %s", m.MessageID, status)
			if m.ProcessingTime != nil {
				s += fmt.Sprintf(" (%s)", m.ProcessingTime.Round(time.Microsecond))
			}
			return s
		default:
			return strings.TrimSpace("notify " + m.Path)
		}

	case e.StateChange != nil:
		sc := e.StateChange
		s := fmt.Sprintf("%s %s -> %s", sc.Entity, sc.OldState, sc.NewState)
		if sc.OldState == "" {
			s = fmt.Sprintf("%s -> %s", sc.Entity, sc.NewState)
		}
		if sc.Reason != "" {
			s += " (" + sc.Reason + ")"
		}
		return s

	case e.ControlMsg != nil:
		return fmt.Sprintf("%s seq=%d", e.ControlMsg.Type, e.ControlMsg.Sequence)

	case e.Resolve != nil:
		return fmt.Sprintf("%q -> %d match(es)", e.Resolve.Pattern, e.Resolve.Matches)

	case e.Error != nil:
		s := e.Error.Message
		if e.Error.Context != "" {
			s = e.Error.Context + ": " + s
		}
		return s

	case e.Frame != nil:
		return fmt.Sprintf("frame %d bytes", e.Frame.Size)

	default:
		return ""
	}
}

func runLogStats(args []string) error {
	reader, err := log.NewReader(args[0])
	if err != nil {
		return err
	}
	defer reader.Close()

	var (
		total      int
		first      time.Time
		last       time.Time
		byLayer    = map[string]int{}
		byCategory = map[string]int{}
		conns      = map[string]struct{}{}
	)

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		total++
		if first.IsZero() || event.Timestamp.Before(first) {
			first = event.Timestamp
		}
		if event.Timestamp.After(last) {
			last = event.Timestamp
		}
		byLayer[event.Layer.String()]++
		byCategory[event.Category.String()]++
		if event.ConnectionID != "" {
			conns[event.ConnectionID] = struct{}{}
		}
	}

	printInfo("Events:      %d\n", total)
	printInfo("Connections: %d\n", len(conns))
	if total > 0 {
		printInfo("Time span:   %s\n", last.Sub(first).Round(time.Millisecond))
	}
	printInfo("By layer:\n")
	printCounts(byLayer)
	printInfo("By category:\n")
	printCounts(byCategory)
	return nil
}

func printCounts(counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		printInfo("  %-12s %d\n", k, counts[k])
	}
}
