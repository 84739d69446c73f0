// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	errPointNotOnCurve  = errors.New("point is not on curve")
	errPointAtInfinity  = errors.New("point at infinity")
	errInvalidPointForm = errors.New("unsupported point encoding")
	errUnsupportedField = fmt.Errorf("%w: field prime is not congruent to 3 mod 4", ErrUnsupported)
)

// ECParameters are the domain parameters of an elliptic curve
// y² = x³ + ax + b over a prime field.
//
// Unlike crypto/elliptic, arbitrary a is supported as required by the
// Brainpool curves and the curves derived by the PACE nonce mappings.
type ECParameters struct {
	Name     string
	P        *big.Int // Field prime
	A, B     *big.Int // Curve coefficients
	Gx, Gy   *big.Int // Generator
	N        *big.Int // Order of the generator
	Cofactor *big.Int
}

func (*ECParameters) isDomainParameters() {}

func (e *ECParameters) String() string {
	if e.Name != "" {
		return e.Name
	}

	return fmt.Sprintf("EC(%d bit)", e.P.BitLen())
}

// FieldSize returns the length of a field element in bytes.
func (e *ECParameters) FieldSize() int {
	return (e.P.BitLen() + 7) / 8
}

// OrderSize returns the length of a scalar in bytes.
func (e *ECParameters) OrderSize() int {
	return (e.N.BitLen() + 7) / 8
}

// Equal reports whether both parameter sets describe the same group.
func (e *ECParameters) Equal(o *ECParameters) bool {
	return e.P.Cmp(o.P) == 0 &&
		e.A.Cmp(o.A) == 0 &&
		e.B.Cmp(o.B) == 0 &&
		e.Gx.Cmp(o.Gx) == 0 &&
		e.Gy.Cmp(o.Gy) == 0 &&
		e.N.Cmp(o.N) == 0
}

// withGenerator returns a copy of the parameters with a different generator.
func (e *ECParameters) withGenerator(x, y *big.Int) *ECParameters {
	f := *e
	f.Name = ""
	f.Gx, f.Gy = x, y

	return &f
}

// IsOnCurve reports whether (x, y) is an affine point on the curve.
func (e *ECParameters) IsOnCurve(x, y *big.Int) bool {
	if x == nil || y == nil ||
		x.Sign() < 0 || x.Cmp(e.P) >= 0 ||
		y.Sign() < 0 || y.Cmp(e.P) >= 0 {
		return false
	}

	return e.rhs(x).Cmp(new(big.Int).Mod(new(big.Int).Mul(y, y), e.P)) == 0
}

// rhs computes x³ + ax + b mod p.
func (e *ECParameters) rhs(x *big.Int) *big.Int {
	r := new(big.Int).Mul(x, x)
	r.Mul(r, x)

	ax := new(big.Int).Mul(e.A, x)
	r.Add(r, ax)
	r.Add(r, e.B)

	return r.Mod(r, e.P)
}

// Add returns the sum of two affine points.
// The point at infinity is represented by nil coordinates.
func (e *ECParameters) Add(x1, y1, x2, y2 *big.Int) (*big.Int, *big.Int) {
	if x1 == nil {
		return x2, y2
	} else if x2 == nil {
		return x1, y1
	}

	var l *big.Int

	if x1.Cmp(x2) == 0 {
		if sum := new(big.Int).Add(y1, y2); sum.Mod(sum, e.P).Sign() == 0 {
			return nil, nil
		}

		// λ = (3x² + a) / 2y
		num := new(big.Int).Mul(x1, x1)
		num.Mul(num, big.NewInt(3))
		num.Add(num, e.A)

		den := new(big.Int).Lsh(y1, 1)
		den.ModInverse(den.Mod(den, e.P), e.P)

		l = num.Mul(num, den)
	} else {
		// λ = (y2 - y1) / (x2 - x1)
		num := new(big.Int).Sub(y2, y1)

		den := new(big.Int).Sub(x2, x1)
		den.ModInverse(den.Mod(den, e.P), e.P)

		l = num.Mul(num, den)
	}

	l.Mod(l, e.P)

	x3 := new(big.Int).Mul(l, l)
	x3.Sub(x3, x1)
	x3.Sub(x3, x2)
	x3.Mod(x3, e.P)

	y3 := new(big.Int).Sub(x1, x3)
	y3.Mul(y3, l)
	y3.Sub(y3, y1)
	y3.Mod(y3, e.P)

	return x3, y3
}

// ScalarMult returns k·(x, y).
func (e *ECParameters) ScalarMult(x, y *big.Int, k []byte) (*big.Int, *big.Int) {
	var rx, ry *big.Int

	for _, b := range k {
		for i := 7; i >= 0; i-- {
			rx, ry = e.Add(rx, ry, rx, ry)
			if b>>i&1 == 1 {
				rx, ry = e.Add(rx, ry, x, y)
			}
		}
	}

	return rx, ry
}

// ScalarBaseMult returns k·G.
func (e *ECParameters) ScalarBaseMult(k []byte) (*big.Int, *big.Int) {
	return e.ScalarMult(e.Gx, e.Gy, k)
}

// Marshal encodes a point in the uncompressed form of SEC 1, Section 2.3.3.
func (e *ECParameters) Marshal(x, y *big.Int) []byte {
	n := e.FieldSize()
	buf := make([]byte, 1+2*n)
	buf[0] = 0x04
	x.FillBytes(buf[1 : 1+n])
	y.FillBytes(buf[1+n:])

	return buf
}

// Unmarshal decodes an uncompressed point and checks that it is on the curve.
func (e *ECParameters) Unmarshal(buf []byte) (*big.Int, *big.Int, error) {
	n := e.FieldSize()

	if len(buf) == 0 || buf[0] != 0x04 {
		return nil, nil, errInvalidPointForm
	} else if len(buf) != 1+2*n {
		return nil, nil, fmt.Errorf("%w of point: got=%dB, want=%dB", errUnexpectedLength, len(buf), 1+2*n)
	}

	x := new(big.Int).SetBytes(buf[1 : 1+n])
	y := new(big.Int).SetBytes(buf[1+n:])

	if !e.IsOnCurve(x, y) {
		return nil, nil, errPointNotOnCurve
	}

	return x, y, nil
}

// canMapToPoint reports whether mapToPoint supports the curve.
func (e *ECParameters) canMapToPoint() bool {
	return e.P.Bit(0) == 1 && e.P.Bit(1) == 1 && e.A.Sign() != 0
}

// mapToPoint deterministically encodes the field element t as a point on
// the curve with the simplified SWU/Icart encoding for p ≡ 3 mod 4.
//
// See: ICAO Doc 9303 Part 11, Section 4.4.3.3.2
func (e *ECParameters) mapToPoint(t *big.Int) (*big.Int, *big.Int, error) {
	p := e.P

	if !e.canMapToPoint() {
		return nil, nil, errUnsupportedField
	}

	// α = -t² mod p
	alpha := new(big.Int).Mul(t, t)
	alpha.Neg(alpha)
	alpha.Mod(alpha, p)

	// X2 = -b · a⁻¹ · (1 + (α + α²)⁻¹) mod p
	inv := new(big.Int).Mul(alpha, alpha)
	inv.Add(inv, alpha)
	inv.Mod(inv, p)
	if inv.ModInverse(inv, p) == nil {
		return nil, nil, errPointAtInfinity
	}
	inv.Add(inv, big.NewInt(1))

	aInv := new(big.Int).ModInverse(e.A, p)
	if aInv == nil {
		return nil, nil, errUnsupportedField
	}

	x2 := new(big.Int).Neg(e.B)
	x2.Mul(x2, aInv)
	x2.Mul(x2, inv)
	x2.Mod(x2, p)

	// X3 = α · X2 mod p
	x3 := new(big.Int).Mul(alpha, x2)
	x3.Mod(x3, p)

	h2 := e.rhs(x2)

	// U = t³ · h2 mod p
	u := new(big.Int).Exp(t, big.NewInt(3), p)
	u.Mul(u, h2)
	u.Mod(u, p)

	// A = h2^(p - 1 - (p + 1) / 4) mod p
	exp := new(big.Int).Add(p, big.NewInt(1))
	exp.Rsh(exp, 2)
	exp.Sub(new(big.Int).Sub(p, big.NewInt(1)), exp)
	a := new(big.Int).Exp(h2, exp, p)

	// If A² · h2 = 1, X2 is a square root candidate
	check := new(big.Int).Mul(a, a)
	check.Mul(check, h2)
	check.Mod(check, p)

	var x, y *big.Int
	if check.Cmp(big.NewInt(1)) == 0 {
		x, y = x2, new(big.Int).Mul(a, h2)
	} else {
		x, y = x3, new(big.Int).Mul(a, u)
	}
	y.Mod(y, p)

	if !e.IsOnCurve(x, y) {
		return nil, nil, errPointNotOnCurve
	}

	return x, y, nil
}
