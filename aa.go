// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"

	iso "cunicu.li/go-iso7816"
)

var errInvalidSignature = errors.New("invalid signature")

// ISO/IEC 9796-2 message representative
const (
	iso9796HeaderPartialRecovery = 0x6a
	iso9796TrailerImplicit       = 0xbc
	iso9796TrailerExplicit       = 0xcc
)

// AAResult is the outcome of a successful Active Authentication.
type AAResult struct {
	PublicKey crypto.PublicKey
	Digest    crypto.Hash
	Challenge []byte
	Signature []byte
}

// DoAA performs Active Authentication with the public key of DG15.
//
// RSA keys must produce ISO/IEC 9796-2 scheme 1 signatures whose hash
// function is taken from the trailer. ECDSA keys must produce plain
// signatures over the challenge hashed with digest.
// A random challenge is generated if challenge is nil.
//
// See: ICAO Doc 9303 Part 11, Section 6.1
func (c *Card) DoAA(pub crypto.PublicKey, digest crypto.Hash, challenge []byte) (*AAResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch pub.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
	default:
		return nil, fmt.Errorf("%w key: %T", ErrUnsupported, pub)
	}

	if challenge == nil {
		challenge = make([]byte, lenChallenge)
		if _, err := io.ReadFull(c.Rand, challenge); err != nil {
			return nil, fmt.Errorf("failed to read random data: %w", err)
		}
	}

	sig, err := c.send(&iso.CAPDU{
		Ins:  iso.InsInternalAuthenticate,
		Data: challenge,
		Ne:   iso.MaxLenResponseDataStandard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	switch pub := pub.(type) {
	case *rsa.PublicKey:
		digest, err = verifyISO9796(pub, challenge, sig)

	case *ecdsa.PublicKey:
		err = verifyECDSAPlain(pub, digest, challenge, sig)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSecurityViolation, err)
	}

	c.log.Info("Chip passed active authentication")

	return &AAResult{
		PublicKey: pub,
		Digest:    digest,
		Challenge: challenge,
		Signature: sig,
	}, nil
}

func verifyECDSAPlain(pub *ecdsa.PublicKey, digest crypto.Hash, msg, sig []byte) error {
	if !digest.Available() {
		return fmt.Errorf("%w digest: %s", ErrUnsupported, digest)
	}

	r, s, err := ecdsaPlainToIntegers(sig)
	if err != nil {
		return err
	}

	h := digest.New()
	h.Write(msg)

	if !ecdsa.Verify(pub, h.Sum(nil), r, s) {
		return errInvalidSignature
	}

	return nil
}

// iso9796Hash resolves the hash identifier of an explicit trailer.
//
// See: ISO/IEC 10118-3
func iso9796Hash(id byte) (crypto.Hash, bool) {
	switch id {
	case 0x33:
		return crypto.SHA1, true
	case 0x34:
		return crypto.SHA256, true
	case 0x35:
		return crypto.SHA512, true
	case 0x36:
		return crypto.SHA384, true
	case 0x38:
		return crypto.SHA224, true
	default:
		return 0, false
	}
}

// verifyISO9796 verifies an ISO/IEC 9796-2 digital signature scheme 1
// signature with partial message recovery. The recovered message M1
// is followed by the non-recoverable challenge M2.
func verifyISO9796(pub *rsa.PublicKey, m2, sig []byte) (crypto.Hash, error) {
	k := pub.Size()

	s := new(big.Int).SetBytes(sig)
	if len(sig) > k || s.Cmp(pub.N) >= 0 {
		return 0, fmt.Errorf("%w: out of range", errInvalidSignature)
	}

	m := new(big.Int).Exp(s, big.NewInt(int64(pub.E)), pub.N).FillBytes(make([]byte, k))

	if m[0] != iso9796HeaderPartialRecovery {
		return 0, fmt.Errorf("%w: unsupported header %#x", errInvalidSignature, m[0])
	}

	var (
		digest crypto.Hash
		lenT   int
	)

	switch m[k-1] {
	case iso9796TrailerImplicit:
		digest, lenT = crypto.SHA1, 1

	case iso9796TrailerExplicit:
		var ok bool
		if digest, ok = iso9796Hash(m[k-2]); !ok {
			return 0, fmt.Errorf("%w hash identifier: %#x", ErrUnsupported, m[k-2])
		}
		lenT = 2

	default:
		return 0, fmt.Errorf("%w: unsupported trailer %#x", errInvalidSignature, m[k-1])
	}

	lenH := digest.Size()
	if k < 1+lenH+lenT {
		return 0, fmt.Errorf("%w: key too short", errInvalidSignature)
	}

	m1 := m[1 : k-lenT-lenH]
	d := m[k-lenT-lenH : k-lenT]

	h := digest.New()
	h.Write(m1)
	h.Write(m2)

	if subtle.ConstantTimeCompare(h.Sum(nil), d) != 1 {
		return 0, errInvalidSignature
	}

	return digest, nil
}
