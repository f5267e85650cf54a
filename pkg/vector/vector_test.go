package vector

import (
	"math"
	"testing"
)

func TestQuantizeBitExact(t *testing.T) {
	got := Quantize([]float32{1.0, -1.0, 0.5, -0.5})
	if len(got) != 1 || got[0] != 0xA0 {
		t.Fatalf("Quantize([1,-1,0.5,-0.5]) = %08b, want %08b", got[0], 0xA0)
	}
}

func TestQuantizeSignBoundary(t *testing.T) {
	for _, f := range []float32{-1.0, -0.0001, 0.0, 0.0001, 1.0} {
		bits := Quantize([]float32{f})
		want := f > 0
		got := bits[0]&0x80 != 0
		if got != want {
			t.Errorf("Quantize([%v]) MSB = %v, want %v", f, got, want)
		}
	}
}

func TestQuantizeTrailingBitsZeroFilled(t *testing.T) {
	// 3 floats -> 1 byte, only the top 3 bits may be set.
	got := Quantize([]float32{1, 1, 1})
	if got[0]&0x1F != 0 {
		t.Fatalf("trailing bits not zero-filled: %08b", got[0])
	}
}

func TestHammingIdentical(t *testing.T) {
	a := Quantize([]float32{1, -1, 1, -1, 1, -1, 1, -1})
	if d := Hamming(a, a); d != 0 {
		t.Fatalf("Hamming(a, a) = %d, want 0", d)
	}
}

func TestHammingFullFlip(t *testing.T) {
	a := Quantize([]float32{1, 1, 1, 1, 1, 1, 1, 1})
	b := Quantize([]float32{-1, -1, -1, -1, -1, -1, -1, -1})
	if d := Hamming(a, b); d != 8 {
		t.Fatalf("Hamming(all-1, all-0) = %d, want 8", d)
	}
}

func TestNormalizeUnitLength(t *testing.T) {
	v, err := Normalize([]float32{3, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	if math.Abs(sumSq-1.0) > 1e-5 {
		t.Fatalf("||v|| = %v, want 1", sumSq)
	}
}

func TestNormalizeDegenerate(t *testing.T) {
	if _, err := Normalize([]float32{0, 0, 0}); err != ErrDegenerateVector {
		t.Fatalf("Normalize(zero) err = %v, want ErrDegenerateVector", err)
	}
}

func TestSliceTruncatesAndRenormalizes(t *testing.T) {
	full := []float32{0.5, 0.5, 0.5, 0.5}
	sliced, err := Slice(full, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sliced) != 2 {
		t.Fatalf("len(sliced) = %d, want 2", len(sliced))
	}
	var sumSq float64
	for _, f := range sliced {
		sumSq += float64(f) * float64(f)
	}
	if math.Abs(sumSq-1.0) > 1e-5 {
		t.Fatalf("sliced norm^2 = %v, want 1", sumSq)
	}
}

func TestSliceDegenerate(t *testing.T) {
	full := []float32{0, 0, 0.7, 0.7}
	if _, err := Slice(full, 2); err != ErrDegenerateVector {
		t.Fatalf("Slice err = %v, want ErrDegenerateVector", err)
	}
}

func TestCosineUnitVectors(t *testing.T) {
	a, _ := Normalize([]float32{1, 0, 0})
	b, _ := Normalize([]float32{1, 0, 0})
	if got := Cosine(a, b); math.Abs(float64(got)-1.0) > 1e-5 {
		t.Fatalf("Cosine(a, a) = %v, want 1", got)
	}
}

func TestCosineOrthogonal(t *testing.T) {
	a, _ := Normalize([]float32{1, 0})
	b, _ := Normalize([]float32{0, 1})
	if got := Cosine(a, b); math.Abs(float64(got)) > 1e-5 {
		t.Fatalf("Cosine(orthogonal) = %v, want 0", got)
	}
}

func TestCosineLengthMismatchIsNaN(t *testing.T) {
	got := Cosine([]float32{1, 2}, []float32{1})
	if !isNaN(got) {
		t.Fatalf("Cosine(mismatched lengths) = %v, want NaN", got)
	}
}

func TestLessNaNSortsLowest(t *testing.T) {
	nan := Cosine([]float32{1}, []float32{1, 2})
	if !Less(nan, -1.0) {
		t.Fatal("Less(NaN, -1.0) = false, want true")
	}
	if Less(-1.0, nan) {
		t.Fatal("Less(-1.0, NaN) = true, want false")
	}
}

func isNaN(f float32) bool { return f != f }
