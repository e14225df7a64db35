// Package gf256 implements arithmetic over GF(2^8) with the AES
// irreducible polynomial x^8 + x^4 + x^3 + x + 1 (0x11B).
package gf256

var (
	expTable [256]byte
	logTable [256]byte
)

func init() {
	// Generator 0x03 cycles through every nonzero field element, so the
	// log table is total over 1..255.
	var x byte = 1
	for i := 0; i < 255; i++ {
		expTable[i] = x
		logTable[x] = byte(i)
		x = slowMul(x, 0x03)
	}
	expTable[255] = expTable[0]
}

// slowMul is peasant multiplication with 0x1B reduction, used only to
// seed the tables.
func slowMul(a, b byte) byte {
	var p byte
	for i := 0; i < 8; i++ {
		if b&1 != 0 {
			p ^= a
		}
		high := a & 0x80
		a <<= 1
		if high != 0 {
			a ^= 0x1B
		}
		b >>= 1
	}
	return p
}

// Add returns a + b. Addition and subtraction are both XOR.
func Add(a, b byte) byte {
	return a ^ b
}

// Mul returns a * b via the exp/log tables.
func Mul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return expTable[(int(logTable[a])+int(logTable[b]))%255]
}

// Inv returns the multiplicative inverse of a. Panics on zero; callers
// guarantee nonzero operands.
func Inv(a byte) byte {
	if a == 0 {
		panic("gf256: inverse of zero")
	}
	return expTable[255-logTable[a]]
}

// Div returns a / b. Panics when b is zero.
func Div(a, b byte) byte {
	if b == 0 {
		panic("gf256: division by zero")
	}
	if a == 0 {
		return 0
	}
	return Mul(a, Inv(b))
}

// Eval evaluates the polynomial with the given coefficients (constant
// term first) at x, using Horner's method.
func Eval(coeffs []byte, x byte) byte {
	if len(coeffs) == 0 {
		return 0
	}
	result := coeffs[len(coeffs)-1]
	for i := len(coeffs) - 2; i >= 0; i-- {
		result = Add(Mul(result, x), coeffs[i])
	}
	return result
}
