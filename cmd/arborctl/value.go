package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// parseValue converts a command-line argument into a typed node value.
// Integers and floats are recognized; everything else stays a string,
// which the connection's codec maps onto enum option labels where the
// node defines them.
func parseValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// formatValue renders a node value for terminal output.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []float64:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case []complex128:
		parts := make([]string, len(x))
		for i, c := range x {
			parts[i] = strconv.FormatComplex(c, 'g', -1, 128)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case []byte:
		return fmt.Sprintf("%d bytes", len(x))
	default:
		return fmt.Sprint(v)
	}
}

// printValues prints a single value, or a wildcard result map with one
// "path = value" line per match in path order.
func printValues(v any) {
	if m, ok := v.(map[string]any); ok {
		paths := make([]string, 0, len(m))
		for p := range m {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			printInfo("%s = %s\n", p, formatValue(m[p]))
		}
		return
	}
	printInfo("%s\n", formatValue(v))
}
