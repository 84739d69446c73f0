// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"fmt"
	"math/big"
)

var errMissingSubgroupOrder = fmt.Errorf("%w: missing subgroup order", ErrUnsupported)

// DHParameters are the domain parameters of a Diffie-Hellman group:
// a prime modulus P, a generator G and the order Q of the subgroup
// generated by G.
type DHParameters struct {
	P, G, Q *big.Int
}

func (*DHParameters) isDomainParameters() {}

func (d *DHParameters) String() string {
	return fmt.Sprintf("DH(%d bit)", d.P.BitLen())
}

// Size returns the length of a group element in bytes.
func (d *DHParameters) Size() int {
	return (d.P.BitLen() + 7) / 8
}

// order returns the order used for private keys. Without a known
// subgroup order, exponents are chosen modulo p - 1.
func (d *DHParameters) order() *big.Int {
	if d.Q != nil && d.Q.Sign() > 0 {
		return d.Q
	}

	return new(big.Int).Sub(d.P, big.NewInt(1))
}

// Equal reports whether both parameter sets describe the same group.
func (d *DHParameters) Equal(o *DHParameters) bool {
	if d.P.Cmp(o.P) != 0 || d.G.Cmp(o.G) != 0 {
		return false
	}

	if d.Q == nil || o.Q == nil {
		return d.Q == o.Q
	}

	return d.Q.Cmp(o.Q) == 0
}

// withGenerator returns a copy of the parameters with a different generator.
func (d *DHParameters) withGenerator(g *big.Int) *DHParameters {
	return &DHParameters{
		P: d.P,
		G: g,
		Q: d.Q,
	}
}

// exp computes b^e mod p.
func (d *DHParameters) exp(b, e *big.Int) *big.Int {
	return new(big.Int).Exp(b, e, d.P)
}

// IsValid checks that y is an element of the subgroup: 1 < y < p - 1
// and, if the subgroup order is known, y^q = 1 mod p.
func (d *DHParameters) IsValid(y *big.Int) bool {
	pMinusOne := new(big.Int).Sub(d.P, big.NewInt(1))
	if y.Cmp(big.NewInt(1)) <= 0 || y.Cmp(pMinusOne) >= 0 {
		return false
	}

	if d.Q != nil && d.Q.Sign() > 0 {
		return d.exp(y, d.Q).Cmp(big.NewInt(1)) == 0
	}

	return true
}

// Marshal encodes a group element padded to the length of p.
func (d *DHParameters) Marshal(y *big.Int) []byte {
	return y.FillBytes(make([]byte, d.Size()))
}

// Unmarshal decodes and validates a group element.
func (d *DHParameters) Unmarshal(buf []byte) (*big.Int, error) {
	if len(buf) == 0 || len(buf) > d.Size() {
		return nil, fmt.Errorf("%w of group element: got=%dB, want=%dB", errUnexpectedLength, len(buf), d.Size())
	}

	y := new(big.Int).SetBytes(buf)
	if !d.IsValid(y) {
		return nil, fmt.Errorf("%w: not a member of the group", errInvalidPublicKey)
	}

	return y, nil
}

// canMapToGroup reports whether the subgroup order required by mapToGroup is known.
func (d *DHParameters) canMapToGroup() bool {
	return d.Q != nil && d.Q.Sign() > 0
}

// mapToGroup maps a field element into the subgroup: x^((p-1)/q) mod p.
func (d *DHParameters) mapToGroup(x *big.Int) (*big.Int, error) {
	if !d.canMapToGroup() {
		return nil, errMissingSubgroupOrder
	}

	e := new(big.Int).Sub(d.P, big.NewInt(1))
	e.Div(e, d.Q)

	g := d.exp(x, e)
	if g.Cmp(big.NewInt(1)) <= 0 {
		return nil, fmt.Errorf("%w: mapped generator is trivial", ErrSecurityViolation)
	}

	return g, nil
}
