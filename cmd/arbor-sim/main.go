// Command arbor-sim serves a simulated Arbor instrument.
//
// The simulator speaks the full wire protocol over TCP, so any client
// built on this library can connect to it: reads, writes, batched
// transactions, subscriptions, and polling all behave like a real
// device. The settings tree is defined by a YAML fixture; without one
// a small demo instrument is served.
//
// Usage:
//
//	arbor-sim [flags]
//
// Flags:
//
//	-listen string     Listen address (default ":8614")
//	-fixture string    Fixture YAML defining the settings tree
//	-device-id string  Device ID (overrides the fixture)
//	-advertise         Announce the device via mDNS
//	-log-file string   Write protocol events to a CBOR log file
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-interactive       Open an operator console on stdin
//
// Examples:
//
//	# Serve the built-in demo instrument
//	arbor-sim
//
//	# Serve a custom tree and announce it on the local network
//	arbor-sim -fixture lockin.yaml -device-id lab-7 -advertise
//
//	# Drive measurement data by hand from the console
//	arbor-sim -interactive
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/arbor-protocol/arbor-go/cmd/arbor-sim/interactive"
	"github.com/arbor-protocol/arbor-go/pkg/discovery"
	"github.com/arbor-protocol/arbor-go/pkg/log"
	"github.com/arbor-protocol/arbor-go/pkg/sim"
	"github.com/arbor-protocol/arbor-go/pkg/transport"
)

// Config holds the simulator configuration.
type Config struct {
	Listen      string
	Fixture     string
	DeviceID    string
	Advertise   bool
	LogFile     string
	LogLevel    string
	Interactive bool
}

var config Config

func init() {
	flag.StringVar(&config.Listen, "listen", "", "Listen address (default \":8614\")")
	flag.StringVar(&config.Fixture, "fixture", "", "Fixture YAML defining the settings tree")
	flag.StringVar(&config.DeviceID, "device-id", "", "Device ID (overrides the fixture)")
	flag.BoolVar(&config.Advertise, "advertise", false, "Announce the device via mDNS")
	flag.StringVar(&config.LogFile, "log-file", "", "Write protocol events to a CBOR log file")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&config.Interactive, "interactive", false, "Open an operator console on stdin")
}

func main() {
	flag.Parse()

	setupLogging(config.LogLevel)
	applyDefaults()

	stdlog.Println("Arbor Instrument Simulator")
	stdlog.Println("==========================")

	fixture, err := loadFixture()
	if err != nil {
		stdlog.Fatalf("Invalid fixture: %v", err)
	}

	inst, err := sim.FromFixture(fixture, sim.Config{
		DeviceID:  config.DeviceID,
		WallClock: true,
	})
	if err != nil {
		stdlog.Fatalf("Failed to build instrument: %v", err)
	}
	stdlog.Printf("Device ID: %s", inst.DeviceID())
	stdlog.Printf("Nodes: %d", len(inst.Paths()))

	logger, closeLogger, err := openLogger()
	if err != nil {
		stdlog.Fatalf("Failed to open log file: %v", err)
	}
	defer closeLogger()

	server, err := sim.NewServer(inst, sim.ServerConfig{
		Address: config.Listen,
		Logger:  logger,
	})
	if err != nil {
		stdlog.Fatalf("Failed to create server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
	stdlog.Printf("Listening on %s", server.Addr())

	if config.Advertise {
		adv, err := announce(server.Addr(), inst.DeviceID())
		if err != nil {
			stdlog.Printf("Warning: mDNS advertisement failed: %v", err)
		} else {
			stdlog.Printf("Advertising as %q (%s)", adv.Instance(), discovery.ServiceType)
			defer adv.Close()
		}
	}

	// Run the operator console or wait for a signal.
	if config.Interactive {
		console, err := interactive.New(server)
		if err != nil {
			stdlog.Fatalf("Failed to create console: %v", err)
		}
		// Route log output through readline so it does not clobber
		// the prompt.
		stdlog.SetOutput(console.Stdout())
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		stdlog.Printf("Received signal: %v", sig)
	case <-ctx.Done():
		// Cancelled by the console's quit command.
	}

	stdlog.Println("Shutting down...")
	cancel()

	if err := server.Stop(); err != nil {
		stdlog.Printf("Error stopping server: %v", err)
	}

	stdlog.Println("Goodbye!")
}

func setupLogging(level string) {
	stdlog.SetFlags(stdlog.Ltime | stdlog.Lmicroseconds)

	switch level {
	case "debug":
		stdlog.SetFlags(stdlog.Ltime | stdlog.Lmicroseconds | stdlog.Lshortfile)
	case "warn", "error":
		stdlog.SetFlags(stdlog.Ltime)
	}
}

func applyDefaults() {
	if config.Listen == "" {
		config.Listen = fmt.Sprintf(":%d", transport.DefaultPort)
	}
}

// loadFixture reads the configured fixture file, or falls back to the
// built-in demo instrument.
func loadFixture() (*sim.Fixture, error) {
	if config.Fixture == "" {
		stdlog.Println("No fixture given, serving the demo instrument")
		return sim.DefaultFixture(), nil
	}
	stdlog.Printf("Fixture: %s", config.Fixture)
	return sim.LoadFixture(config.Fixture)
}

func openLogger() (log.Logger, func(), error) {
	if config.LogFile == "" {
		return nil, func() {}, nil
	}
	fl, err := log.NewFileLogger(config.LogFile)
	if err != nil {
		return nil, nil, err
	}
	stdlog.Printf("Protocol log: %s", config.LogFile)
	return fl, func() { fl.Close() }, nil
}

// announce advertises the device on the port the listener actually
// bound, so ephemeral ports resolve correctly.
func announce(addr net.Addr, deviceID string) (*discovery.Advertiser, error) {
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
		DeviceID: deviceID,
		Port:     port,
	})
	if err != nil {
		return nil, err
	}
	if err := adv.Announce(); err != nil {
		return nil, err
	}
	return adv, nil
}
