package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/arbor-protocol/arbor-go/pkg/sim"
)

// startTestDevice serves the default simulated instrument on an
// ephemeral loopback port and points the global --addr flag at it.
func startTestDevice(t *testing.T) *sim.Instrument {
	t.Helper()

	inst, err := sim.FromFixture(sim.DefaultFixture(), sim.Config{})
	if err != nil {
		t.Fatalf("building instrument: %v", err)
	}
	server, err := sim.NewServer(inst, sim.ServerConfig{Address: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("starting server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	resetFlags()
	addr = server.Addr().String()
	return inst
}

// resetFlags restores the global flags to their defaults between
// table-driven test cases.
func resetFlags() {
	addr = ""
	deviceID = ""
	timeout = 5 * time.Second
	useTLS = false
	insecure = false
	logFile = ""
	verbose = false
	quiet = false
	jsonOut = false
	tolerant = false
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	// Save original stdout
	origStdout := os.Stdout

	// Create a pipe to capture output
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}

	// Redirect stdout to pipe
	os.Stdout = w

	// Run function
	fnErr := fn()

	// Close write end and restore stdout
	w.Close()
	os.Stdout = origStdout

	// Read captured output
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("failed to read output: %v", err)
	}

	return buf.String(), fnErr
}

// assertJSON checks that output is valid JSON
func assertJSON(t *testing.T, output string) {
	t.Helper()
	var result interface{}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Errorf("invalid JSON output: %v\nOutput: %s", err, output)
	}
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("output missing expected string %q\nGot: %s", want, output)
		}
	}
}

// assertNotContains checks that output doesn't contain unwanted strings
func assertNotContains(t *testing.T, output string, unwanted []string) {
	t.Helper()
	for _, dont := range unwanted {
		if strings.Contains(output, dont) {
			t.Errorf("output contains unwanted string %q\nGot: %s", dont, output)
		}
	}
}
