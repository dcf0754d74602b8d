package main

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/arbor-protocol/arbor-go/pkg/nodepath"
	"github.com/arbor-protocol/arbor-go/pkg/schema"
	"github.com/arbor-protocol/arbor-go/pkg/sim"
)

// Generate renders the Go source for a fixture's settings tree: one
// string constant per node path, int64 constants for every enumerated
// option, and a lookup table from path to option labels. Output is
// unformatted; writeFormatted runs it through goimports.
func Generate(f *sim.Fixture, pkg string) (string, error) {
	data := fileData{Package: pkg, DeviceID: f.DeviceID}

	seen := make(map[string]string)
	for _, n := range f.Nodes {
		info := n.Info()
		name := constName(info.Path)
		if prev, dup := seen[name]; dup {
			return "", fmt.Errorf("nodes %s and %s map to the same constant %s", prev, info.Path, name)
		}
		seen[name] = info.Path

		data.Nodes = append(data.Nodes, nodeData{
			ConstName: name,
			Path:      info.Path,
			Comment:   describe(info),
		})

		if info.Type == schema.TypeEnumerated {
			e, err := enumValues(name, info)
			if err != nil {
				return "", err
			}
			data.Enums = append(data.Enums, e)
		}
	}

	sort.Slice(data.Nodes, func(i, j int) bool { return data.Nodes[i].Path < data.Nodes[j].Path })
	sort.Slice(data.Enums, func(i, j int) bool { return data.Enums[i].Path < data.Enums[j].Path })

	var b strings.Builder
	renderTemplate(&b, "header", data)
	renderTemplate(&b, "paths", data)
	renderTemplate(&b, "enums", data)
	renderTemplate(&b, "options", data)
	return b.String(), nil
}

// describe summarizes a node for its constant's doc comment.
func describe(info schema.NodeInfo) string {
	attrs := info.Type.String()
	if info.Unit != "" {
		attrs += ", " + info.Unit
	}
	if info.Streaming {
		attrs += ", streaming"
	}
	if info.Description != "" {
		return fmt.Sprintf("%s (%s)", info.Description, attrs)
	}
	return attrs
}

// enumValues builds the option constants for one enumerated node,
// sorted by raw value.
func enumValues(prefix string, info schema.NodeInfo) (enumData, error) {
	raws := make([]int64, 0, len(info.Options))
	for raw := range info.Options {
		raws = append(raws, raw)
	}
	sort.Slice(raws, func(i, j int) bool { return raws[i] < raws[j] })

	e := enumData{ConstPrefix: prefix, Path: info.Path}
	seen := make(map[string]int64)
	for _, raw := range raws {
		label := info.Options[raw]
		suffix := goName(label)
		if suffix == "" {
			suffix = fmt.Sprintf("Value%d", raw)
		}
		name := prefix + suffix
		if prev, dup := seen[name]; dup {
			return e, fmt.Errorf("options %d and %d of %s map to the same constant %s", prev, raw, info.Path, name)
		}
		seen[name] = raw
		e.Values = append(e.Values, enumValue{ConstName: name, Raw: raw, Label: label})
	}
	return e, nil
}

// constName converts a node path to an exported Go identifier:
// "osc/0/freq" becomes Osc0Freq. A leading digit gets a "Node" prefix
// to stay a valid identifier.
func constName(path string) string {
	var b strings.Builder
	for _, seg := range nodepath.Parse(path) {
		b.WriteString(goName(seg))
	}
	name := b.String()
	if name == "" || unicode.IsDigit(rune(name[0])) {
		name = "Node" + name
	}
	return name
}

// goName title-cases a segment or label, dropping punctuation: "freq"
// becomes Freq, "shutting_down" becomes ShuttingDown, "0" stays 0.
func goName(s string) string {
	var b strings.Builder
	up := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			if up {
				b.WriteRune(unicode.ToUpper(r))
				up = false
			} else {
				b.WriteRune(r)
			}
		case unicode.IsDigit(r):
			b.WriteRune(r)
			up = true
		default:
			up = true
		}
	}
	return b.String()
}
