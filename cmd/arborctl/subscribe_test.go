package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arbor-protocol/arbor-go/pkg/node"
)

func TestSubscribeCommand(t *testing.T) {
	inst := startTestDevice(t)
	stop, err := inst.StartGenerator("demod/0/sample", 10*time.Millisecond, func(n uint64) any {
		return float64(n) * 0.5
	})
	if err != nil {
		t.Fatalf("starting generator: %v", err)
	}
	defer stop()

	subPoll = 100 * time.Millisecond
	subTimeout = 2 * time.Second
	subGaps = false
	subCount = 2

	output, err := captureOutput(t, func() error {
		return runSubscribe([]string{"demod/0/sample"})
	})
	if err != nil {
		t.Fatalf("runSubscribe() failed: %v\nOutput: %s", err, output)
	}
	assertContains(t, output, []string{"demod/0/sample"})
}

func TestSubscribeWildcard(t *testing.T) {
	inst := startTestDevice(t)

	// One long round: the poll blocks until the write below arrives.
	subPoll = 2 * time.Second
	subTimeout = 2 * time.Second
	subGaps = false
	subCount = 1

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Give the subscription time to land, then produce one update.
		time.Sleep(150 * time.Millisecond)
		inst.Set(context.Background(), "osc/0/freq", 14e6)
	}()

	output, err := captureOutput(t, func() error {
		return runSubscribe([]string{"osc/*/freq"})
	})
	<-done
	if err != nil {
		t.Fatalf("runSubscribe() failed: %v\nOutput: %s", err, output)
	}
	assertContains(t, output, []string{"osc/0/freq", "1.4e+07"})
}

func TestWatchCommandImmediate(t *testing.T) {
	startTestDevice(t)
	watchUntil = "off"
	watchInvert = false
	watchFor = 2 * time.Second
	watchInterval = 20 * time.Millisecond

	output, err := captureOutput(t, func() error {
		return runWatch([]string{"sigin/0/ac"})
	})
	if err != nil {
		t.Fatalf("runWatch() failed: %v\nOutput: %s", err, output)
	}
	assertContains(t, output, []string{"sigin/0/ac reached off"})
}

func TestWatchCommandObservesChange(t *testing.T) {
	inst := startTestDevice(t)
	watchUntil = "on"
	watchInvert = false
	watchFor = 5 * time.Second
	watchInterval = 10 * time.Millisecond

	go func() {
		time.Sleep(50 * time.Millisecond)
		inst.Set(context.Background(), "sigin/0/ac", int64(1))
	}()

	if _, err := captureOutput(t, func() error {
		return runWatch([]string{"sigin/0/ac"})
	}); err != nil {
		t.Fatalf("runWatch() failed: %v", err)
	}
}

func TestWatchCommandTimeout(t *testing.T) {
	startTestDevice(t)
	watchUntil = "on"
	watchInvert = false
	watchFor = 150 * time.Millisecond
	watchInterval = 20 * time.Millisecond

	_, err := captureOutput(t, func() error {
		return runWatch([]string{"sigin/0/ac"})
	})
	if !errors.Is(err, node.ErrTimeout) {
		t.Fatalf("runWatch() error = %v, want ErrTimeout", err)
	}
}
