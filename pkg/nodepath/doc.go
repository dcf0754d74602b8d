// Package nodepath provides parsing, normalization, and wildcard
// resolution for Arbor node paths.
//
// An Arbor path addresses one node (or, with wildcards, a set of nodes)
// in a device's settings tree. Paths are written with "/" or "."
// separators and are case-insensitive; the canonical form is
// lower-case and "/"-joined:
//
//	osc/2/freq
//	OSC.2.FREQ      (same path)
//	osc[2].freq     (same path, bracket index syntax)
//
// # Wildcards
//
// A "*" segment expands to every existing child segment at that depth
// at resolution time:
//
//	osc/*/freq      (the freq node of every oscillator)
//
// Resolution is lazy: a concrete (wildcard-free) path resolves to
// itself without touching the enumerator, so addressing a single node
// never costs a schema query. Only wildcard segments trigger child
// enumeration, and only for the prefixes that actually contain one.
//
// # Value Semantics
//
// Path is a value type. Paths with equal segment sequences are equal;
// use String for map keys. Join and friends always copy, so derived
// paths never alias their parent's backing array.
package nodepath
