package nodepath

import (
	"strconv"
	"strings"
)

// Wildcard is the path segment that matches every existing child
// segment at its depth.
const Wildcard = "*"

// Separator joins segments in the canonical string form.
const Separator = "/"

// Path is an ordered sequence of lower-cased segments. The zero value
// is the root path.
type Path []string

// Parse splits a path string into canonical segments. Both "/" and "."
// are accepted as separators, bracket indices ("osc[2]", `ch["a"]`)
// fold into their own segment, and all segments are lower-cased. Empty
// segments (leading, trailing, or doubled separators) are dropped.
func Parse(s string) Path {
	if s == "" {
		return nil
	}

	var p Path
	var seg strings.Builder

	flush := func() {
		if seg.Len() > 0 {
			p = append(p, strings.ToLower(seg.String()))
			seg.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '/', '.':
			flush()
		case '[':
			flush()
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				// Unterminated bracket: treat the rest as a literal segment.
				seg.WriteString(s[i:])
				i = len(s)
				break
			}
			idx := s[i+1 : i+end]
			idx = strings.Trim(idx, `"'`)
			if idx != "" {
				p = append(p, strings.ToLower(idx))
			}
			i += end
		default:
			seg.WriteByte(c)
		}
	}
	flush()

	return p
}

// String returns the canonical "/"-joined lower-case form.
func (p Path) String() string {
	return strings.Join(p, Separator)
}

// IsEmpty reports whether the path has no segments (the root).
func (p Path) IsEmpty() bool {
	return len(p) == 0
}

// HasWildcard reports whether any segment is the wildcard marker.
func (p Path) HasWildcard() bool {
	for _, seg := range p {
		if seg == Wildcard {
			return true
		}
	}
	return false
}

// Join returns a new path extended by the given segments. Each segment
// is parsed, so "a/b", "A.B", and bracket forms all work. The receiver
// is never modified and the result never shares backing storage.
func (p Path) Join(segments ...string) Path {
	out := make(Path, len(p), len(p)+len(segments))
	copy(out, p)
	for _, s := range segments {
		out = append(out, Parse(s)...)
	}
	return out
}

// JoinIndex returns a new path extended by a numeric index segment.
func (p Path) JoinIndex(i int) Path {
	return p.Join(strconv.Itoa(i))
}

// Parent returns the path with the last segment removed, or the root
// path if the receiver is the root.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	out := make(Path, len(p)-1)
	copy(out, p[:len(p)-1])
	return out
}

// Leaf returns the last segment, or "" for the root path.
func (p Path) Leaf() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Clone returns a copy that shares no storage with the receiver.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Equal reports whether both paths have identical segment sequences.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// IsPrefixOf reports whether p is a (non-strict) prefix of other.
func (p Path) IsPrefixOf(other Path) bool {
	if len(p) > len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Match reports whether a concrete path matches this pattern. Both
// must have the same number of segments; a Wildcard segment in the
// pattern matches any single segment of the candidate.
func (p Path) Match(concrete Path) bool {
	if len(p) != len(concrete) {
		return false
	}
	for i := range p {
		if p[i] != Wildcard && p[i] != concrete[i] {
			return false
		}
	}
	return true
}
