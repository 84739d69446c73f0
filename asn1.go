// SPDX-FileCopyrightText: 2020 Google LLC
// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"encoding/asn1"
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// marshalOID encodes the content octets of an object identifier
// as carried by the data objects of MSE:Set AT and public keys.
func marshalOID(oid asn1.ObjectIdentifier) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1ObjectIdentifier(oid)

	der, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode OID: %w", err)
	}

	var content cryptobyte.String
	if s := cryptobyte.String(der); !s.ReadASN1(&content, cbasn1.OBJECT_IDENTIFIER) {
		return nil, fmt.Errorf("%w: OID", errUnmarshal)
	}

	return content, nil
}

// unmarshalOID decodes the content octets of an object identifier.
func unmarshalOID(content []byte) (asn1.ObjectIdentifier, error) {
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.OBJECT_IDENTIFIER, func(b *cryptobyte.Builder) {
		b.AddBytes(content)
	})

	der, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	var oid asn1.ObjectIdentifier
	if s := cryptobyte.String(der); !s.ReadASN1ObjectIdentifier(&oid) {
		return nil, fmt.Errorf("%w: OID", errUnmarshal)
	}

	return oid, nil
}

// ecdsaSignatureToPlain converts an ASN.1 DER encoded ECDSA signature into
// the plain format of BSI TR-03111: r and s each padded to size bytes.
func ecdsaSignatureToPlain(der []byte, size int) ([]byte, error) {
	var (
		seq  cryptobyte.String
		r, s big.Int
	)

	input := cryptobyte.String(der)
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() ||
		!seq.ReadASN1Integer(&r) || !seq.ReadASN1Integer(&s) || !seq.Empty() {
		return nil, fmt.Errorf("%w: ECDSA signature", errUnmarshal)
	}

	if r.Sign() < 0 || s.Sign() < 0 || (r.BitLen()+7)/8 > size || (s.BitLen()+7)/8 > size {
		return nil, fmt.Errorf("%w: ECDSA signature", errUnexpectedLength)
	}

	plain := make([]byte, 2*size)
	r.FillBytes(plain[:size])
	s.FillBytes(plain[size:])

	return plain, nil
}

// ecdsaPlainToIntegers splits a plain ECDSA signature into r and s.
func ecdsaPlainToIntegers(plain []byte) (r, s *big.Int, err error) {
	if len(plain) == 0 || len(plain)%2 != 0 {
		return nil, nil, fmt.Errorf("%w: ECDSA signature", errUnexpectedLength)
	}

	size := len(plain) / 2

	return new(big.Int).SetBytes(plain[:size]), new(big.Int).SetBytes(plain[size:]), nil
}

// readOptionalInteger reads an INTEGER if one follows in s.
func readOptionalInteger(s *cryptobyte.String) (*big.Int, bool) {
	if !s.PeekASN1Tag(cbasn1.INTEGER) {
		return nil, false
	}

	i := new(big.Int)
	if !s.ReadASN1Integer(i) {
		return nil, false
	}

	return i, true
}
