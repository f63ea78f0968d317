package erasure_coding

// GF(256) arithmetic over the AES polynomial 0x11d. Addition is XOR, so the
// parity combination is closed over the byte range and is its own inverse;
// multiplication by a distinct per-drive coefficient makes the weighted
// parity equation linearly independent of the XOR equation, which is what
// lets two erasures in one group be solved.

const gfPolynomial = 0x11d

var (
	gfExpTable [512]byte
	gfLogTable [256]byte
)

func init() {
	x := 1
	for i := 0; i < 255; i++ {
		gfExpTable[i] = byte(x)
		gfLogTable[x] = byte(i)
		x <<= 1
		if x&0x100 != 0 {
			x ^= gfPolynomial
		}
	}
	// double length avoids a mod in gfMul
	for i := 255; i < 512; i++ {
		gfExpTable[i] = gfExpTable[i-255]
	}
}

func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExpTable[int(gfLogTable[a])+int(gfLogTable[b])]
}

func gfDiv(a, b byte) byte {
	if b == 0 {
		panic("gf division by zero")
	}
	if a == 0 {
		return 0
	}
	return gfExpTable[int(gfLogTable[a])+255-int(gfLogTable[b])]
}

func gfInv(a byte) byte {
	return gfDiv(1, a)
}

// Coefficient returns the weighting for the data drive at position i of its
// parity domain: alpha^i, nonzero and pairwise distinct for i < 255.
func Coefficient(i int) byte {
	return gfExpTable[i%255]
}

// mulSlice computes dst[i] ^= c * src[i].
func mulSliceXor(c byte, src, dst []byte) {
	if c == 1 {
		for i := range dst {
			dst[i] ^= src[i]
		}
		return
	}
	logC := int(gfLogTable[c])
	for i, s := range src {
		if s != 0 {
			dst[i] ^= gfExpTable[logC+int(gfLogTable[s])]
		}
	}
}

// mulSliceConst computes dst[i] = c * src[i].
func mulSliceConst(c byte, src, dst []byte) {
	logC := int(gfLogTable[c])
	for i, s := range src {
		if s == 0 {
			dst[i] = 0
		} else {
			dst[i] = gfExpTable[logC+int(gfLogTable[s])]
		}
	}
}

// divSliceConst computes dst[i] = src[i] / c.
func divSliceConst(c byte, src, dst []byte) {
	mulSliceConst(gfInv(c), src, dst)
}

func xorSlice(src, dst []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}
