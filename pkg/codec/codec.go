package codec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/arbor-protocol/arbor-go/pkg/nodepath"
	"github.com/arbor-protocol/arbor-go/pkg/schema"
	"github.com/arbor-protocol/arbor-go/pkg/wire"
)

// ErrInvalidValue indicates a value could not be converted for its
// node: a parser failed, or an enumerated label names no option.
var ErrInvalidValue = errors.New("invalid value")

// GetParser converts a raw device value into an application value
// after a read.
type GetParser func(value any) (any, error)

// SetParser converts an application value into a raw device value
// before a write.
type SetParser func(value any) (any, error)

// Options control which codec layers run for one operation.
type Options struct {
	// Parse applies a registered user parser when one matches.
	Parse bool

	// Enum translates enumerated node values between wire integers
	// and option labels.
	Enum bool
}

// DefaultOptions enables every layer.
func DefaultOptions() Options {
	return Options{Parse: true, Enum: true}
}

type entry struct {
	get GetParser
	set SetParser
}

type patternEntry struct {
	pattern nodepath.Path
	entry
}

// Registry maps node paths to parser pairs. It is scoped to one
// connection; registrations on one device never leak to another.
//
// An exact path always beats a pattern. Among patterns the most
// recently registered match wins, and re-registering an exact path
// replaces the previous pair.
type Registry struct {
	mu       sync.RWMutex
	exact    map[string]entry
	patterns []patternEntry
}

// NewRegistry returns an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{
		exact: make(map[string]entry),
	}
}

// Register installs a parser pair for a concrete path or a wildcard
// pattern. Either parser may be nil; the missing direction passes
// values through unchanged.
func (r *Registry) Register(pathOrPattern string, get GetParser, set SetParser) {
	p := nodepath.Parse(pathOrPattern)
	e := entry{get: get, set: set}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p.HasWildcard() {
		r.patterns = append(r.patterns, patternEntry{pattern: p, entry: e})
		return
	}
	r.exact[p.String()] = e
}

// Unregister removes the parsers for a concrete path, or every
// registered occurrence of a pattern. It returns true if anything was
// removed.
func (r *Registry) Unregister(pathOrPattern string) bool {
	p := nodepath.Parse(pathOrPattern)

	r.mu.Lock()
	defer r.mu.Unlock()

	if !p.HasWildcard() {
		key := p.String()
		if _, ok := r.exact[key]; ok {
			delete(r.exact, key)
			return true
		}
		return false
	}

	removed := false
	kept := r.patterns[:0]
	for _, pe := range r.patterns {
		if pe.pattern.Equal(p) {
			removed = true
			continue
		}
		kept = append(kept, pe)
	}
	r.patterns = kept
	return removed
}

// lookup finds the parser pair for a concrete path.
func (r *Registry) lookup(path nodepath.Path) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.exact[path.String()]; ok {
		return e, true
	}
	for i := len(r.patterns) - 1; i >= 0; i-- {
		if r.patterns[i].pattern.Match(path) {
			return r.patterns[i].entry, true
		}
	}
	return entry{}, false
}

// ApplyGet runs the decode pipeline on a value read from the device:
// normalize the CBOR shape, rebuild complex vectors, translate
// enumerated integers to labels, then hand the result to the user get
// parser. Complex vector decoding always runs; Options gate only the
// enum and parser layers.
func (r *Registry) ApplyGet(path nodepath.Path, info schema.NodeInfo, raw any, opts Options) (any, error) {
	v := wire.NormalizeValue(raw)

	if info.Type == schema.TypeComplexVector {
		if fs, ok := v.([]float64); ok {
			v = wire.DeinterleaveComplex(fs)
		}
	}

	if opts.Enum && info.Type == schema.TypeEnumerated {
		if n, ok := schema.ToInt64(v); ok {
			if label, found := info.OptionLabel(n); found {
				v = label
			}
		}
	}

	if opts.Parse {
		if e, ok := r.lookup(path); ok && e.get != nil {
			parsed, err := e.get(v)
			if err != nil {
				return nil, fmt.Errorf("%w: get parser for %s: %s", ErrInvalidValue, path, err)
			}
			v = parsed
		}
	}

	return v, nil
}

// ApplySet runs the encode pipeline on a value bound for the device:
// user set parser first, then enumerated label translation, then
// complex vector flattening and shape normalization. The returned
// value is what goes on the wire.
func (r *Registry) ApplySet(path nodepath.Path, info schema.NodeInfo, value any, opts Options) (any, error) {
	v := value

	if opts.Parse {
		if e, ok := r.lookup(path); ok && e.set != nil {
			parsed, err := e.set(v)
			if err != nil {
				return nil, fmt.Errorf("%w: set parser for %s: %s", ErrInvalidValue, path, err)
			}
			v = parsed
		}
	}

	if opts.Enum && info.Type == schema.TypeEnumerated {
		encoded, err := encodeEnum(path, info, v)
		if err != nil {
			return nil, err
		}
		v = encoded
	}

	if info.Type == schema.TypeComplexVector {
		if cs, ok := v.([]complex128); ok {
			v = wire.InterleaveComplex(cs)
		}
	}

	return wire.NormalizeValue(v), nil
}

// encodeEnum maps an enumerated value to its wire integer. String
// labels are translated through the node's options; integers pass
// through when they name a defined option. Nodes without declared
// options accept any integer.
func encodeEnum(path nodepath.Path, info schema.NodeInfo, v any) (any, error) {
	if label, ok := v.(string); ok {
		n, found := info.OptionValue(label)
		if !found {
			return nil, fmt.Errorf("%w: %q is not an option of %s", ErrInvalidValue, label, path)
		}
		return n, nil
	}

	n, ok := schema.ToInt64(v)
	if !ok {
		return nil, fmt.Errorf("%w: enumerated node %s takes an integer or label, got %T", ErrInvalidValue, path, v)
	}
	if len(info.Options) > 0 {
		if _, found := info.OptionLabel(n); !found {
			return nil, fmt.Errorf("%w: %d is not an option of %s", ErrInvalidValue, n, path)
		}
	}
	return n, nil
}
