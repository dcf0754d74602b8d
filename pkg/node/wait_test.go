package node

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestWaitImmediateMatch(t *testing.T) {
	tree, f := fixtureTree()

	err := tree.Node("demod/0/rate").WaitForStateChange(context.Background(), 1000.0,
		WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("wait: %v", err)
	}

	gets, _, _, _, _ := f.counters()
	if gets != 1 {
		t.Errorf("immediate match needs exactly one read, got %d", gets)
	}
}

func TestWaitEventualMatch(t *testing.T) {
	tree, f := fixtureTree()

	go func() {
		time.Sleep(80 * time.Millisecond)
		f.setValue("osc/0/enable", int64(1))
	}()

	err := tree.Node("osc/0/enable").WaitForStateChange(context.Background(), "on",
		WithTimeout(2*time.Second), WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestWaitInvert(t *testing.T) {
	tree, f := fixtureTree()

	go func() {
		time.Sleep(80 * time.Millisecond)
		f.setValue("demod/0/rate", 2000.0)
	}()

	err := tree.Node("demod/0/rate").WaitForStateChange(context.Background(), 1000.0,
		Invert(), WithTimeout(2*time.Second), WithPollInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("inverted wait: %v", err)
	}
}

func TestWaitTimeout(t *testing.T) {
	tree, _ := fixtureTree()

	start := time.Now()
	err := tree.Node("demod/0/rate").WaitForStateChange(context.Background(), 9999.0,
		WithTimeout(120*time.Millisecond), WithPollInterval(10*time.Millisecond))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 120*time.Millisecond {
		t.Errorf("returned before the timeout: %v", elapsed)
	}
	if !strings.Contains(err.Error(), "demod/0/rate") {
		t.Errorf("timeout must carry the path: %v", err)
	}
	if !strings.Contains(err.Error(), "1000") {
		t.Errorf("timeout must carry the last observed value: %v", err)
	}
}

func TestWaitContextCancel(t *testing.T) {
	tree, _ := fixtureTree()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := tree.Node("demod/0/rate").WaitForStateChange(ctx, 9999.0,
		WithTimeout(5*time.Second), WithPollInterval(10*time.Millisecond))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWaitNumericTargetAgainstInt(t *testing.T) {
	tree, _ := fixtureTree()

	// Stored value is float64(1000); target given as plain int
	err := tree.Node("demod/0/rate").WaitForStateChange(context.Background(), 1000,
		WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"Int64VsInt", int64(5), 5, true},
		{"IntVsFloat", int64(5), 5.0, true},
		{"FloatMismatch", 5.0, 5.5, false},
		{"Strings", "on", "on", true},
		{"StringMismatch", "on", "off", false},
		{"StringVsNumber", "5", 5, false},
		{"FloatSlices", []float64{1, 2}, []float64{1, 2}, true},
		{"FloatSliceMismatch", []float64{1, 2}, []float64{1, 3}, false},
		{"Uint64VsInt", uint64(7), 7, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := valuesEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("valuesEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
