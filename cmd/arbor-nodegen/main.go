// Command arbor-nodegen generates Go path constants from a device
// fixture, so driver code can reference nodes without string literals.
//
// Usage:
//
//	arbor-nodegen -in lockin.yaml -out device/paths_gen.go -package device
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/tools/imports"

	"github.com/arbor-protocol/arbor-go/pkg/sim"
)

func main() {
	in := flag.String("in", "", "Fixture YAML defining the settings tree")
	out := flag.String("out", "", "Output path for the generated Go file")
	pkg := flag.String("package", "device", "Package name for the generated file")
	flag.Parse()

	if *in == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "Usage: arbor-nodegen -in <fixture.yaml> -out <file.go> [-package <name>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := run(*in, *out, *pkg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(in, out, pkg string) error {
	fixture, err := sim.LoadFixture(in)
	if err != nil {
		return fmt.Errorf("loading fixture: %w", err)
	}

	code, err := Generate(fixture, pkg)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}
	if err := writeFormatted(out, code); err != nil {
		return err
	}
	fmt.Printf("  generated %s\n", out)
	return nil
}

// writeFormatted formats Go source code with goimports and writes it to a file.
func writeFormatted(path string, code string) error {
	formatted, err := imports.Process(path, []byte(code), nil)
	if err != nil {
		// Write unformatted so you can debug the generator output
		_ = os.WriteFile(path+".broken", []byte(code), 0o644)
		return fmt.Errorf("goimports %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, formatted, 0o644)
}
