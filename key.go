// SPDX-FileCopyrightText: 2020 Google LLC
// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"crypto/sha1" //nolint:gosec
	"encoding/asn1"
	"errors"
	"fmt"
	"io"
	"math/big"

	"cunicu.li/go-iso7816/encoding/tlv"
)

var errMismatchingParameters = errors.New("mismatching domain parameters")

// PublicKey is either an *ECPublicKey or a *DHPublicKey.
type PublicKey interface {
	// Parameters returns the domain parameters of the key.
	Parameters() DomainParameters

	// Bytes returns the encoding of the public key as exchanged with the
	// card: an uncompressed point or a group element padded to the
	// length of the modulus.
	Bytes() []byte

	// Equal reports whether both keys are the same.
	Equal(PublicKey) bool
}

// ECPublicKey is a point on a curve.
type ECPublicKey struct {
	Params *ECParameters
	X, Y   *big.Int
}

func (k *ECPublicKey) Parameters() DomainParameters {
	return k.Params
}

func (k *ECPublicKey) Bytes() []byte {
	return k.Params.Marshal(k.X, k.Y)
}

func (k *ECPublicKey) Equal(o PublicKey) bool {
	p, ok := o.(*ECPublicKey)
	return ok && k.X.Cmp(p.X) == 0 && k.Y.Cmp(p.Y) == 0
}

// DHPublicKey is an element of a Diffie-Hellman group.
type DHPublicKey struct {
	Params *DHParameters
	Y      *big.Int
}

func (k *DHPublicKey) Parameters() DomainParameters {
	return k.Params
}

func (k *DHPublicKey) Bytes() []byte {
	return k.Params.Marshal(k.Y)
}

func (k *DHPublicKey) Equal(o PublicKey) bool {
	p, ok := o.(*DHPublicKey)
	return ok && k.Y.Cmp(p.Y) == 0
}

// KeyPair is an ephemeral key pair used for a key agreement.
type KeyPair struct {
	Private *big.Int
	Public  PublicKey
}

// GenerateKey generates a key pair for the domain parameters. The private
// key is read from rand as a big-endian integer as long as the group order
// and rejected unless it lies in [1, order - 1].
func GenerateKey(params DomainParameters, rand io.Reader) (*KeyPair, error) {
	var order *big.Int
	switch p := params.(type) {
	case *ECParameters:
		order = p.N
	case *DHParameters:
		order = p.order()
	default:
		return nil, fmt.Errorf("%w domain parameters: %T", ErrUnsupported, params)
	}

	buf := make([]byte, (order.BitLen()+7)/8)
	priv := new(big.Int)

	for {
		if _, err := io.ReadFull(rand, buf); err != nil {
			return nil, fmt.Errorf("failed to read random data: %w", err)
		}

		// Mask excess bits to keep the rejection rate low
		if excess := len(buf)*8 - order.BitLen(); excess > 0 {
			buf[0] &= 0xff >> excess
		}

		if priv.SetBytes(buf); priv.Sign() > 0 && priv.Cmp(order) < 0 {
			break
		}
	}

	return newKeyPair(params, priv)
}

func newKeyPair(params DomainParameters, priv *big.Int) (*KeyPair, error) {
	switch p := params.(type) {
	case *ECParameters:
		x, y := p.ScalarBaseMult(priv.Bytes())
		if x == nil {
			return nil, errPointAtInfinity
		}

		return &KeyPair{
			Private: priv,
			Public:  &ECPublicKey{p, x, y},
		}, nil

	case *DHParameters:
		return &KeyPair{
			Private: priv,
			Public:  &DHPublicKey{p, p.exp(p.G, priv)},
		}, nil

	default:
		return nil, fmt.Errorf("%w domain parameters: %T", ErrUnsupported, params)
	}
}

// ParsePublicKey decodes and validates a public key received from the card.
func ParsePublicKey(params DomainParameters, buf []byte) (PublicKey, error) {
	switch p := params.(type) {
	case *ECParameters:
		x, y, err := p.Unmarshal(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errInvalidPublicKey, err)
		}

		return &ECPublicKey{p, x, y}, nil

	case *DHParameters:
		y, err := p.Unmarshal(buf)
		if err != nil {
			return nil, err
		}

		return &DHPublicKey{p, y}, nil

	default:
		return nil, fmt.Errorf("%w domain parameters: %T", ErrUnsupported, params)
	}
}

// sharedPoint computes the raw result of the key agreement: a point for
// ECDH and a group element for DH.
func (kp *KeyPair) sharedPoint(peer PublicKey) (PublicKey, error) {
	switch pub := kp.Public.(type) {
	case *ECPublicKey:
		p, ok := peer.(*ECPublicKey)
		if !ok {
			return nil, errMismatchingParameters
		} else if !pub.Params.IsOnCurve(p.X, p.Y) {
			return nil, fmt.Errorf("%w: %w", errInvalidPublicKey, errPointNotOnCurve)
		}

		x, y := pub.Params.ScalarMult(p.X, p.Y, kp.Private.Bytes())
		if x == nil {
			return nil, errPointAtInfinity
		}

		return &ECPublicKey{pub.Params, x, y}, nil

	case *DHPublicKey:
		p, ok := peer.(*DHPublicKey)
		if !ok {
			return nil, errMismatchingParameters
		} else if !pub.Params.IsValid(p.Y) {
			return nil, errInvalidPublicKey
		}

		return &DHPublicKey{pub.Params, pub.Params.exp(p.Y, kp.Private)}, nil

	default:
		return nil, fmt.Errorf("%w key: %T", ErrUnsupported, kp.Public)
	}
}

// SharedSecret computes the shared secret K with the public key of the peer:
// the x-coordinate of the shared point for ECDH or the shared group element
// for DH, both padded to the length of a field element.
func (kp *KeyPair) SharedSecret(peer PublicKey) ([]byte, error) {
	s, err := kp.sharedPoint(peer)
	if err != nil {
		return nil, err
	}

	switch s := s.(type) {
	case *ECPublicKey:
		return s.X.FillBytes(make([]byte, s.Params.FieldSize())), nil
	case *DHPublicKey:
		return s.Bytes(), nil
	}

	return nil, ErrUnsupported
}

// KeyHash compresses a public key: SHA-1 over the padded group element for
// DH and the padded x-coordinate for ECDH.
//
// It is used for the chip identifier derived from PACE and the ephemeral
// key of Chip Authentication signed during Terminal Authentication.
func KeyHash(pub PublicKey) []byte {
	switch k := pub.(type) {
	case *ECPublicKey:
		return k.X.FillBytes(make([]byte, k.Params.FieldSize()))

	case *DHPublicKey:
		h := sha1.Sum(k.Bytes()) //nolint:gosec
		return h[:]

	default:
		return nil
	}
}

// Public key data object tags
//
// See: BSI TR-03110 Part 3, Appendix D.3
const (
	tagPublicKey        = 0x7f49
	tagPublicKeyOID     = 0x06
	tagPublicKeyDHY     = 0x84
	tagPublicKeyECPoint = 0x86
)

// publicKeyDataObject encodes a public key with the protocol OID in the
// format which is authenticated by the PACE tokens.
func publicKeyDataObject(oid asn1.ObjectIdentifier, pub PublicKey) ([]byte, error) {
	oidBytes, err := marshalOID(oid)
	if err != nil {
		return nil, err
	}

	var key tlv.TagValue
	switch k := pub.(type) {
	case *ECPublicKey:
		key = tlv.New(tagPublicKeyECPoint, k.Bytes())
	case *DHPublicKey:
		key = tlv.New(tagPublicKeyDHY, k.Bytes())
	default:
		return nil, fmt.Errorf("%w key: %T", ErrUnsupported, pub)
	}

	return tlv.New(tagPublicKey,
		tlv.New(tagPublicKeyOID, oidBytes),
		key,
	).MarshalBER()
}
