package main

import (
	"fmt"
	"strings"
	"text/template"
)

// funcMap provides helper functions available to all templates.
var funcMap = template.FuncMap{
	"quote": func(s string) string { return fmt.Sprintf("%q", s) },
}

// templates holds all parsed code generation templates.
var templates = template.Must(template.New("").Funcs(funcMap).Parse(
	headerTmpl + pathsTmpl + enumsTmpl + optionsTmpl,
))

// renderTemplate executes a named template into the builder.
func renderTemplate(b *strings.Builder, name string, data any) {
	if err := templates.ExecuteTemplate(b, name, data); err != nil {
		panic(fmt.Sprintf("template %s: %v", name, err))
	}
}

// --- Template data types ---

// fileData is the root data for one generated file.
type fileData struct {
	Package  string
	DeviceID string
	Nodes    []nodeData
	Enums    []enumData
}

// nodeData describes one path constant.
type nodeData struct {
	ConstName string
	Path      string
	Comment   string
}

// enumData describes the option constants of one enumerated node.
type enumData struct {
	ConstPrefix string
	Path        string
	Values      []enumValue
}

type enumValue struct {
	ConstName string
	Raw       int64
	Label     string
}

// --- Template definitions ---

const headerTmpl = `{{define "header"}}// Code generated by arbor-nodegen. DO NOT EDIT.

// Package {{.Package}} holds node path constants{{if .DeviceID}} for device {{quote .DeviceID}}{{end}}.
package {{.Package}}
{{end}}`

const pathsTmpl = `{{define "paths"}}
{{- if .Nodes}}
// Node paths.
const (
{{- range .Nodes}}
// {{.ConstName}} is {{quote .Path}}: {{.Comment}}.
{{.ConstName}} = {{quote .Path}}
{{- end}}
)
{{end}}
{{- end}}`

const enumsTmpl = `{{define "enums"}}
{{- range .Enums}}
// Options for {{.Path}}.
const (
{{- range .Values}}
{{.ConstName}} int64 = {{.Raw}}
{{- end}}
)

{{end}}
{{- end}}`

const optionsTmpl = `{{define "options"}}
{{- if .Enums}}
// Options maps enumerated node paths to their label tables.
var Options = map[string]map[int64]string{
{{- range .Enums}}
{{.ConstPrefix}}: {
{{- range .Values}}
{{.Raw}}: {{quote .Label}},
{{- end}}
},
{{- end}}
}
{{end}}
{{- end}}`
