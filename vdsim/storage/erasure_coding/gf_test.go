package erasure_coding

import "testing"

func TestGfMulDivRoundTrip(t *testing.T) {
	for a := 1; a < 256; a++ {
		for b := 1; b < 256; b++ {
			p := gfMul(byte(a), byte(b))
			if p == 0 {
				t.Fatalf("%d * %d = 0 in GF(256)", a, b)
			}
			if q := gfDiv(p, byte(b)); q != byte(a) {
				t.Fatalf("(%d*%d)/%d = %d, want %d", a, b, b, q, a)
			}
		}
	}
}

func TestGfMulByZero(t *testing.T) {
	for a := 0; a < 256; a++ {
		if gfMul(byte(a), 0) != 0 || gfMul(0, byte(a)) != 0 {
			t.Fatalf("multiplication by zero not zero for %d", a)
		}
	}
}

func TestGfInverse(t *testing.T) {
	for a := 1; a < 256; a++ {
		if gfMul(byte(a), gfInv(byte(a))) != 1 {
			t.Fatalf("a * a^-1 != 1 for a=%d", a)
		}
	}
}

func TestCoefficientsDistinctNonzero(t *testing.T) {
	seen := map[byte]int{}
	for i := 0; i < 255; i++ {
		c := Coefficient(i)
		if c == 0 {
			t.Fatalf("coefficient %d is zero", i)
		}
		if prev, dup := seen[c]; dup {
			t.Fatalf("coefficient %d equals coefficient %d", i, prev)
		}
		seen[c] = i
	}
}

func TestMulSliceXor(t *testing.T) {
	src := []byte{0, 1, 2, 0x80, 0xFF}
	dst := make([]byte, len(src))
	mulSliceXor(3, src, dst)
	for i := range src {
		if dst[i] != gfMul(3, src[i]) {
			t.Errorf("index %d: %d, want %d", i, dst[i], gfMul(3, src[i]))
		}
	}
	// xor-accumulate with itself cancels
	mulSliceXor(3, src, dst)
	for i := range dst {
		if dst[i] != 0 {
			t.Errorf("index %d did not cancel", i)
		}
	}
}
