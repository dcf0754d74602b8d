package wire

// Sample is one buffered update for a subscribed path.
type Sample struct {
	// Timestamp is in device clock ticks.
	Timestamp uint64 `cbor:"1,keyasint"`

	// Value is the node value at that instant.
	Value any `cbor:"2,keyasint"`
}

// NormalizeValue maps a CBOR-decoded value onto the canonical Go types
// used throughout the library: int64, float64, string, []byte,
// []float64, bool. CBOR decodes unsigned integers as uint64 and
// heterogeneous arrays as []any; callers of the raw codec should not
// have to care.
func NormalizeValue(v any) any {
	switch n := v.(type) {
	case uint64:
		if n <= 1<<63-1 {
			return int64(n)
		}
		return n
	case uint32:
		return int64(n)
	case uint16:
		return int64(n)
	case uint8:
		return int64(n)
	case uint:
		return int64(n)
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int8:
		return int64(n)
	case float32:
		return float64(n)
	case []any:
		if fs, ok := toFloatSlice(n); ok {
			return fs
		}
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = NormalizeValue(e)
		}
		return out
	default:
		return v
	}
}

func toFloatSlice(arr []any) ([]float64, bool) {
	if len(arr) == 0 {
		return nil, false
	}
	out := make([]float64, len(arr))
	for i, e := range arr {
		switch n := e.(type) {
		case float64:
			out[i] = n
		case float32:
			out[i] = float64(n)
		case uint64:
			out[i] = float64(n)
		case int64:
			out[i] = float64(n)
		default:
			return nil, false
		}
	}
	return out, true
}

// InterleaveComplex flattens a complex vector into interleaved
// (re, im) pairs, the form complex vectors take on the wire.
func InterleaveComplex(v []complex128) []float64 {
	out := make([]float64, 0, 2*len(v))
	for _, c := range v {
		out = append(out, real(c), imag(c))
	}
	return out
}

// DeinterleaveComplex rebuilds a complex vector from interleaved
// (re, im) pairs. A trailing unpaired element is dropped.
func DeinterleaveComplex(v []float64) []complex128 {
	out := make([]complex128, 0, len(v)/2)
	for i := 0; i+1 < len(v); i += 2 {
		out = append(out, complex(v[i], v[i+1]))
	}
	return out
}
