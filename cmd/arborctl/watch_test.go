package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arbor-protocol/arbor-go/pkg/node"
)

func TestWatchReachesTarget(t *testing.T) {
	inst := startTestDevice(t)
	watchUntil = "5e6"
	watchInvert = false
	watchFor = 5 * time.Second
	watchInterval = 10 * time.Millisecond

	go func() {
		time.Sleep(50 * time.Millisecond)
		inst.Set(context.Background(), "osc/0/freq", 5e6)
	}()

	output, err := captureOutput(t, func() error {
		return runWatch([]string{"osc/0/freq"})
	})
	if err != nil {
		t.Fatalf("runWatch() failed: %v\nOutput: %s", err, output)
	}
	assertContains(t, output, []string{"osc/0/freq reached 5e+06"})
}

func TestWatchInvert(t *testing.T) {
	inst := startTestDevice(t)
	watchUntil = "1e7"
	watchInvert = true
	watchFor = 5 * time.Second
	watchInterval = 10 * time.Millisecond

	go func() {
		time.Sleep(50 * time.Millisecond)
		inst.Set(context.Background(), "osc/0/freq", 9e6)
	}()

	output, err := captureOutput(t, func() error {
		return runWatch([]string{"osc/0/freq"})
	})
	if err != nil {
		t.Fatalf("runWatch() --invert failed: %v\nOutput: %s", err, output)
	}
	assertContains(t, output, []string{"osc/0/freq left 1e+07"})
}

func TestWatchTimeout(t *testing.T) {
	startTestDevice(t)
	watchUntil = "123"
	watchInvert = false
	watchFor = 80 * time.Millisecond
	watchInterval = 10 * time.Millisecond

	_, err := captureOutput(t, func() error {
		return runWatch([]string{"osc/0/freq"})
	})
	if !errors.Is(err, node.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
