package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arbor-protocol/arbor-go/pkg/discovery"
	"github.com/arbor-protocol/arbor-go/pkg/log"
	"github.com/arbor-protocol/arbor-go/pkg/node"
	"github.com/arbor-protocol/arbor-go/pkg/session"
	"github.com/arbor-protocol/arbor-go/pkg/transport"
	"github.com/arbor-protocol/arbor-go/pkg/version"
)

var (
	// Global flags
	addr     string
	deviceID string
	timeout  time.Duration
	useTLS   bool
	insecure bool
	logFile  string
	verbose  bool
	quiet    bool
	jsonOut  bool
	tolerant bool
)

var rootCmd = &cobra.Command{
	Use:   "arborctl",
	Short: "Read and write settings on Arbor devices",
	Long: `arborctl talks to Arbor instruments over the network. It reads and
writes nodes of the device settings tree, resolves wildcard patterns,
lists and inspects nodes, subscribes to streaming data, and discovers
devices on the local network.

The target device is selected with --addr (host:port) or --device
(device ID, resolved via mDNS). With neither, localhost:8614 is used.`,
	Version: version.Library,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&addr, "addr", "a", "", "Device address as host:port")
	rootCmd.PersistentFlags().StringVarP(&deviceID, "device", "d", "", "Device ID, resolved via mDNS discovery")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Per-request timeout")
	rootCmd.PersistentFlags().BoolVar(&useTLS, "tls", false, "Connect with TLS")
	rootCmd.PersistentFlags().
		BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write a protocol log to this file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().
		BoolVar(&tolerant, "tolerant", false, "Treat wildcard patterns that match nothing as empty instead of failing")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// connect dials the device selected by the global flags and completes
// the hello exchange. The returned cleanup closes the connection and
// any protocol log.
func connect(ctx context.Context) (*session.Conn, func(), error) {
	logger, closeLog, err := openLogger()
	if err != nil {
		return nil, nil, err
	}

	target := addr
	if target == "" && deviceID != "" {
		printVerbose("Discovering device %s...\n", deviceID)
		browser := discovery.NewBrowser(discovery.BrowserConfig{})
		found, err := browser.Find(ctx, deviceID, discovery.DefaultBrowseTimeout)
		if err != nil {
			closeLog()
			return nil, nil, fmt.Errorf("discovering device %s: %w", deviceID, err)
		}
		target = found.Addr()
		printVerbose("Found %s at %s\n", deviceID, target)
	}
	if target == "" {
		target = fmt.Sprintf("localhost:%d", transport.DefaultPort)
	}

	config := session.Config{
		Addr:           target,
		ClientName:     "arborctl/" + version.Library,
		RequestTimeout: timeout,
		Logger:         logger,
	}
	if useTLS {
		config.TLS = &transport.TLSConfig{
			InsecureSkipVerify: insecure,
		}
	}
	if tolerant {
		config.ResolvePolicy = node.ResolveTolerant
	}

	printVerbose("Connecting to %s...\n", target)
	conn, err := session.Connect(ctx, config)
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	printVerbose("Connected to %s\n", conn.DeviceID())

	cleanup := func() {
		conn.Close()
		closeLog()
	}
	return conn, cleanup, nil
}

// openLogger opens the protocol log file if --log-file was given.
func openLogger() (log.Logger, func(), error) {
	if logFile == "" {
		return nil, func() {}, nil
	}
	fl, err := log.NewFileLogger(logFile)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return fl, func() { fl.Close() }, nil
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printError prints an error message
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// checkMinArgs validates that at least the minimum number of arguments were provided
func checkMinArgs(args []string, min int, usage string) error {
	if len(args) < min {
		return fmt.Errorf(
			"expected at least %d argument(s), got %d\nUsage: %s",
			min,
			len(args),
			usage,
		)
	}
	return nil
}
