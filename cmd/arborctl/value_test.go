package main

import (
	"testing"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"10.5", 10.5},
		{"10e6", 10e6},
		{"1.674e3", 1674.0},
		{"on", "on"},
		{"SIM-8614", "SIM-8614"},
		{"", ""},
	}

	for _, tt := range tests {
		got := parseValue(tt.in)
		if got != tt.want {
			t.Errorf("parseValue(%q) = %v (%T), want %v (%T)", tt.in, got, got, tt.want, tt.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "<nil>"},
		{"string", "off", "off"},
		{"int64", int64(4), "4"},
		{"float", 10e6, "1e+07"},
		{"float fraction", 1674.0, "1674"},
		{"float slice", []float64{1, 2.5}, "[1 2.5]"},
		{"bytes", []byte{1, 2, 3}, "3 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(tt.in); got != tt.want {
				t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
