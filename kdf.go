// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"crypto/sha1" //nolint:gosec
	"crypto/sha256"
	"encoding/binary"
	"math/bits"

	"cunicu.li/go-eac/sm"
)

// Counters of the key derivation function
const (
	kdfEnc      = 1
	kdfMAC      = 2
	kdfPassword = 3
)

// kdf derives a key of keyLen bytes from the shared secret.
// 3DES and AES-128 keys are derived with SHA-1, longer keys with SHA-256.
//
// See: BSI TR-03110 Part 3, Appendix A.2.3
func kdf(secret []byte, counter uint32, keyLen int) []byte {
	in := binary.BigEndian.AppendUint32(append([]byte{}, secret...), counter)

	if keyLen <= 16 {
		h := sha1.Sum(in) //nolint:gosec
		return h[:keyLen]
	}

	h := sha256.Sum256(in)
	return h[:keyLen]
}

// deriveKey derives a key for cipher c.
// The parity bits of DESede keys are adjusted.
func deriveKey(secret []byte, counter uint32, c sm.Cipher, keyLen int) []byte {
	k := kdf(secret, counter, keyLen)
	if c == sm.DESede {
		adjustParity(k)
	}

	return k
}

// adjustParity sets the least significant bit of each byte to odd parity.
func adjustParity(k []byte) {
	for i, b := range k {
		b &= 0xfe
		if bits.OnesCount8(b)%2 == 0 {
			b |= 1
		}
		k[i] = b
	}
}

// SessionKeys are the keys of a secure messaging session.
type SessionKeys struct {
	Cipher sm.Cipher
	Enc    []byte
	MAC    []byte
}

func deriveSessionKeys(secret []byte, c sm.Cipher, keyLen int) SessionKeys {
	return SessionKeys{
		Cipher: c,
		Enc:    deriveKey(secret, kdfEnc, c, keyLen),
		MAC:    deriveKey(secret, kdfMAC, c, keyLen),
	}
}

// newWrapper creates a secure messaging wrapper. A nil ssc starts at zero.
func (k SessionKeys) newWrapper(cfg *Config, ssc []byte) (w *sm.Wrapper, err error) {
	if ssc == nil {
		w, err = sm.New(k.Cipher, k.Enc, k.MAC, 0)
	} else {
		w, err = sm.NewWithSSC(k.Cipher, k.Enc, k.MAC, ssc)
	}
	if err != nil {
		return nil, err
	}

	w.MaxTransceiveLength = cfg.MaxTransceiveLength
	w.SkipMACCheck = cfg.SkipMACCheck

	return w, nil
}
