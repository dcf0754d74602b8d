package wire

import (
	"math"
	"reflect"
	"testing"
)

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int64 passthrough", int64(42), int64(42)},
		{"int", int(7), int64(7)},
		{"int8", int8(-3), int64(-3)},
		{"int16", int16(300), int64(300)},
		{"int32", int32(-70000), int64(-70000)},
		{"uint8", uint8(255), int64(255)},
		{"uint16", uint16(65535), int64(65535)},
		{"uint32", uint32(4000000000), int64(4000000000)},
		{"uint small", uint(12), int64(12)},
		{"uint64 small", uint64(12), int64(12)},
		{"uint64 above int64 range", uint64(math.MaxInt64) + 1, uint64(math.MaxInt64) + 1},
		{"float64 passthrough", 1.5, 1.5},
		{"float32", float32(2.5), 2.5},
		{"string passthrough", "hello", "hello"},
		{"bytes passthrough", []byte{1, 2}, []byte{1, 2}},
		{"nil passthrough", nil, nil},
		{"numeric any slice", []any{uint64(1), 2.5, int64(-3)}, []float64{1, 2.5, -3}},
		{"float any slice", []any{1.0, 2.0}, []float64{1, 2}},
		{"mixed any slice", []any{uint64(1), "x"}, []any{int64(1), "x"}},
		{"empty any slice", []any{}, []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeValue(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeValue(%v) = %v (%T), want %v (%T)",
					tt.in, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestNormalizeValue_AfterDecode(t *testing.T) {
	// Values round-tripped through CBOR come back as uint64/int64/float64;
	// normalization must make them comparable with what was sent.
	data, err := Marshal(SetRequest{Value: 42})
	if err != nil {
		t.Fatal(err)
	}
	var decoded SetRequest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if NormalizeValue(decoded.Value) != int64(42) {
		t.Errorf("decoded value normalizes to %v (%T)", decoded.Value, decoded.Value)
	}
}

func TestComplexInterleave(t *testing.T) {
	in := []complex128{complex(1, 2), complex(3, 4), complex(-0.5, 0)}

	flat := InterleaveComplex(in)
	want := []float64{1, 2, 3, 4, -0.5, 0}
	if !reflect.DeepEqual(flat, want) {
		t.Fatalf("InterleaveComplex = %v, want %v", flat, want)
	}

	back := DeinterleaveComplex(flat)
	if !reflect.DeepEqual(back, in) {
		t.Errorf("DeinterleaveComplex = %v, want %v", back, in)
	}
}

func TestDeinterleaveComplex_OddLength(t *testing.T) {
	got := DeinterleaveComplex([]float64{1, 2, 3})
	want := []complex128{complex(1, 2)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeinterleaveComplex = %v, want %v", got, want)
	}
}

func TestInterleaveComplex_Empty(t *testing.T) {
	if got := InterleaveComplex(nil); len(got) != 0 {
		t.Errorf("InterleaveComplex(nil) = %v", got)
	}
	if got := DeinterleaveComplex(nil); len(got) != 0 {
		t.Errorf("DeinterleaveComplex(nil) = %v", got)
	}
}
