package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/arbor-protocol/arbor-go/pkg/log"
	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

// writeTestLog writes a small log file with one event per category and
// returns its path.
func writeTestLog(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "session.alog")
	fl, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("creating log file: %v", err)
	}

	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	op := wire.OpGet
	status := wire.StatusSuccess
	rtt := 1200 * time.Microsecond

	fl.Log(log.Event{
		Timestamp:    base,
		ConnectionID: "conn-aaaa",
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		DeviceID:     "dev8047",
		Message: &log.MessageEvent{
			Type:      log.MessageTypeRequest,
			MessageID: 64,
			Operation: &op,
			Path:      "osc/0/freq",
		},
	})
	fl.Log(log.Event{
		Timestamp:    base.Add(time.Millisecond),
		ConnectionID: "conn-aaaa",
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		DeviceID:     "dev8047",
		Message: &log.MessageEvent{
			Type:           log.MessageTypeResponse,
			MessageID:      64,
			Status:         &status,
			ProcessingTime: &rtt,
		},
	})
	fl.Log(log.Event{
		Timestamp:    base.Add(2 * time.Millisecond),
		ConnectionID: "conn-bbbb",
		Layer:        log.LayerTree,
		Category:     log.CategoryResolve,
		Resolve: &log.ResolveEvent{
			Pattern: "osc/*/freq",
			Matches: 2,
		},
	})
	fl.Log(log.Event{
		Timestamp:    base.Add(3 * time.Millisecond),
		ConnectionID: "conn-aaaa",
		Layer:        log.LayerSession,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityTransaction,
			OldState: "BUFFERING",
			NewState: "FLUSHED",
			Reason:   "3 writes",
		},
	})

	if err := fl.Close(); err != nil {
		t.Fatalf("closing log file: %v", err)
	}
	return path
}

func TestLogViewCommand(t *testing.T) {
	tests := []struct {
		name           string
		layer          string
		direction      string
		category       string
		connID         string
		wantErr        bool
		wantContain    []string
		wantNotContain []string
	}{
		{
			name: "all events",
			wantContain: []string{
				"req #64 Get osc/0/freq",
				"resp #64 SUCCESS",
				`"osc/*/freq" -> 2 match(es)`,
				"TRANSACTION BUFFERING -> FLUSHED (3 writes)",
			},
		},
		{
			name:           "wire layer only",
			layer:          "wire",
			wantContain:    []string{"req #64"},
			wantNotContain: []string{"TRANSACTION", "match(es)"},
		},
		{
			name:           "outgoing only",
			direction:      "out",
			category:       "message",
			wantContain:    []string{"req #64"},
			wantNotContain: []string{"resp #64"},
		},
		{
			name:           "by connection",
			connID:         "conn-bbbb",
			wantContain:    []string{"match(es)"},
			wantNotContain: []string{"req #64"},
		},
		{
			name:    "bad layer name",
			layer:   "socket",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			path := writeTestLog(t)
			logLayer = tt.layer
			logDirection = tt.direction
			logCategory = tt.category
			logConnID = tt.connID
			logDevice = ""

			output, err := captureOutput(t, func() error {
				return runLogView([]string{path})
			})

			if (err != nil) != tt.wantErr {
				t.Errorf("runLogView() error = %v, wantErr %v\nOutput: %s", err, tt.wantErr, output)
				return
			}
			assertContains(t, output, tt.wantContain)
			assertNotContains(t, output, tt.wantNotContain)
		})
	}
}

func TestLogStatsCommand(t *testing.T) {
	resetFlags()
	path := writeTestLog(t)

	output, err := captureOutput(t, func() error {
		return runLogStats([]string{path})
	})
	if err != nil {
		t.Fatalf("runLogStats() failed: %v\nOutput: %s", err, output)
	}
	assertContains(t, output, []string{
		"Events:      4",
		"Connections: 2",
		"WIRE",
		"MESSAGE",
		"RESOLVE",
		"STATE",
	})
}

func TestLogViewMissingFile(t *testing.T) {
	resetFlags()
	logLayer = ""
	logDirection = ""
	logCategory = ""
	logConnID = ""

	_, err := captureOutput(t, func() error {
		return runLogView([]string{filepath.Join(t.TempDir(), "absent.alog")})
	})
	if err == nil {
		t.Fatal("runLogView() on a missing file should fail")
	}
}
