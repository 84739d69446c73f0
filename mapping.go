// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"errors"
	"fmt"
	"math/big"

	"cunicu.li/go-eac/sm"
)

var errInvalidNonce = errors.New("invalid nonce")

// NonceMapping is the result of the PACE mapping step. It is one of
// *GenericMappingECDH, *GenericMappingDH or *IntegratedMapping.
type NonceMapping interface {
	// Nonce returns the decrypted nonce s sent by the chip.
	Nonce() []byte

	// StaticParameters returns the domain parameters D announced by the chip.
	StaticParameters() DomainParameters

	// EphemeralParameters returns the mapped domain parameters D~.
	EphemeralParameters() DomainParameters

	isNonceMapping()
}

// GenericMappingECDH maps the nonce to a new generator G~ = [s]G + H
// where H is the result of an ECDH key agreement.
type GenericMappingECDH struct {
	S         []byte
	Static    *ECParameters
	Ephemeral *ECParameters

	PCDKey  *KeyPair
	PICCKey *ECPublicKey
}

func (m *GenericMappingECDH) Nonce() []byte                         { return m.S }
func (m *GenericMappingECDH) StaticParameters() DomainParameters    { return m.Static }
func (m *GenericMappingECDH) EphemeralParameters() DomainParameters { return m.Ephemeral }
func (*GenericMappingECDH) isNonceMapping()                         {}

// GenericMappingDH maps the nonce to a new generator g~ = g^s · h
// where h is the result of a DH key agreement.
type GenericMappingDH struct {
	S         []byte
	Static    *DHParameters
	Ephemeral *DHParameters

	PCDKey  *KeyPair
	PICCKey *DHPublicKey
}

func (m *GenericMappingDH) Nonce() []byte                         { return m.S }
func (m *GenericMappingDH) StaticParameters() DomainParameters    { return m.Static }
func (m *GenericMappingDH) EphemeralParameters() DomainParameters { return m.Ephemeral }
func (*GenericMappingDH) isNonceMapping()                         {}

// IntegratedMapping derives the new generator from the pseudo-random
// field element R_p(s, t) of both nonces.
type IntegratedMapping struct {
	S         []byte
	T         []byte
	Static    DomainParameters
	Ephemeral DomainParameters
}

func (m *IntegratedMapping) Nonce() []byte                         { return m.S }
func (m *IntegratedMapping) StaticParameters() DomainParameters    { return m.Static }
func (m *IntegratedMapping) EphemeralParameters() DomainParameters { return m.Ephemeral }
func (*IntegratedMapping) isNonceMapping()                         {}

// mapNonceGMWithECDH computes G~ = [s]G + H.
func mapNonceGMWithECDH(s []byte, params *ECParameters, h *ECPublicKey) (*ECParameters, error) {
	sx, sy := params.ScalarBaseMult(s)
	x, y := params.Add(sx, sy, h.X, h.Y)
	if x == nil {
		return nil, fmt.Errorf("%w: mapped generator", errPointAtInfinity)
	}

	return params.withGenerator(x, y), nil
}

// mapNonceGMWithDH computes g~ = g^s · h mod p.
func mapNonceGMWithDH(s []byte, params *DHParameters, h *DHPublicKey) (*DHParameters, error) {
	g := params.exp(params.G, new(big.Int).SetBytes(s))
	g.Mul(g, h.Y)
	g.Mod(g, params.P)

	if g.Cmp(big.NewInt(1)) <= 0 {
		return nil, fmt.Errorf("%w: mapped generator is trivial", ErrSecurityViolation)
	}

	return params.withGenerator(g), nil
}

// mapNonceIM maps the nonces s and t with the integrated mapping.
func mapNonceIM(s, t []byte, params DomainParameters, c sm.Cipher, keyLen int) (DomainParameters, error) {
	switch p := params.(type) {
	case *ECParameters:
		r, err := pseudoRandom(s, t, p.P, c, keyLen)
		if err != nil {
			return nil, err
		}

		x, y, err := p.mapToPoint(r)
		if err != nil {
			return nil, err
		}

		return p.withGenerator(x, y), nil

	case *DHParameters:
		r, err := pseudoRandom(s, t, p.P, c, keyLen)
		if err != nil {
			return nil, err
		}

		g, err := p.mapToGroup(r)
		if err != nil {
			return nil, err
		}

		return p.withGenerator(g), nil

	default:
		return nil, fmt.Errorf("%w domain parameters: %T", ErrUnsupported, params)
	}
}

// Constants of the pseudo-random function
//
// See: ICAO Doc 9303 Part 11, Section 4.4.3.3.1
//
//nolint:gochecknoglobals
var (
	prfC0L128 = []byte{
		0xa6, 0x68, 0x89, 0x2a, 0x7c, 0x41, 0xe3, 0xca,
		0x73, 0x9f, 0x40, 0xb0, 0x57, 0xd8, 0x59, 0x04,
	}
	prfC1L128 = []byte{
		0xa4, 0xe1, 0x36, 0xac, 0x72, 0x5f, 0x73, 0x8b,
		0x01, 0xc1, 0xf6, 0x02, 0x17, 0xc1, 0x88, 0xad,
	}
	prfC0L256 = []byte{
		0xd4, 0x63, 0xd6, 0x52, 0x34, 0x12, 0x4e, 0xf7,
		0x89, 0x70, 0x54, 0x98, 0x6d, 0xca, 0x0a, 0x17,
		0x4e, 0x28, 0xdf, 0x75, 0x8c, 0xba, 0xa0, 0x3f,
		0x24, 0x06, 0x16, 0x41, 0x4d, 0x5a, 0x16, 0x76,
	}
	prfC1L256 = []byte{
		0x54, 0xbd, 0x72, 0x55, 0xf0, 0xaa, 0xf8, 0x31,
		0xbe, 0xc3, 0x42, 0x3f, 0xcf, 0x39, 0xd6, 0x9b,
		0x6c, 0xbf, 0x06, 0x66, 0x77, 0xd0, 0xfa, 0xae,
		0x5a, 0xad, 0xd9, 0x9d, 0xf8, 0xe5, 0x35, 0x17,
	}
)

// pseudoRandom computes the field element R_p(s, t) of the integrated
// mapping. The nonce t keys a chain of block cipher invocations in CBC mode
// with a zero IV, whose outputs are concatenated until they are at least 64
// bits longer than p, and reduced modulo p.
func pseudoRandom(s, t []byte, p *big.Int, c sm.Cipher, keyLen int) (*big.Int, error) {
	l := len(s) * 8

	var c0, c1 []byte
	switch l {
	case 128:
		c0, c1 = prfC0L128, prfC1L128
	case 192, 256:
		c0, c1 = prfC0L256, prfC1L256
	default:
		return nil, fmt.Errorf("%w: length of %d bits", errInvalidNonce, l)
	}

	if len(t) < keyLen || len(s) < keyLen {
		return nil, fmt.Errorf("%w: shorter than key", errInvalidNonce)
	}

	k, err := sm.Encrypt(c, t[:keyLen], nil, s)
	if err != nil {
		return nil, err
	}

	var x []byte
	for n := 0; n*l < p.BitLen()+64; n++ {
		xi, err := sm.Encrypt(c, k[:keyLen], nil, c1)
		if err != nil {
			return nil, err
		}

		if k, err = sm.Encrypt(c, k[:keyLen], nil, c0); err != nil {
			return nil, err
		}

		x = append(x, xi...)
	}

	r := new(big.Int).SetBytes(x)

	return r.Mod(r, p), nil
}
