// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cunicu.li/go-eac/sm"
)

func TestKDF(t *testing.T) {
	// ICAO Doc 9303 Part 11, Appendix D.2
	seed := unhex(t, "239ab9cb282daf66231dc5a4df6bfbae")
	assert.Equal(t, unhex(t, "ab94fcedf2664edfb9b291f85d7f77f2"), kdf(seed, kdfEnc, 16))
	assert.Equal(t, unhex(t, "7862d9ece03c1bcd4d77089dcf131442"), kdf(seed, kdfMAC, 16))

	keys := deriveSessionKeys(seed, sm.DESede, 16)
	assert.Equal(t, unhex(t, "ab94fdecf2674fdfb9b391f85d7f76f2"), keys.Enc)
	assert.Equal(t, unhex(t, "7962d9ece03d1acd4c76089dce131543"), keys.MAC)

	// BSI TR-03110 Worked Example
	k := unhex(t, "28768d20701247dae81804c9e780ede582a9996db4a315020b2733197db84925")
	keys = deriveSessionKeys(k, sm.AES, 16)
	assert.Equal(t, sm.AES, keys.Cipher)
	assert.Equal(t, unhex(t, "f5f0e35c0d7161ee6724ee513a0d9a7f"), keys.Enc)
	assert.Equal(t, unhex(t, "fe251c7858b356b24514b3bd5f4297d1"), keys.MAC)
}

func TestKDFKeyLength(t *testing.T) {
	secret := []byte("secret")

	for _, keyLen := range []int{16, 24, 32} {
		assert.Len(t, kdf(secret, kdfEnc, keyLen), keyLen)
	}

	// AES-192 and AES-256 keys share the SHA-256 output
	assert.Equal(t, kdf(secret, kdfEnc, 32)[:24], kdf(secret, kdfEnc, 24))
	assert.NotEqual(t, kdf(secret, kdfEnc, 32)[:16], kdf(secret, kdfEnc, 16))
	assert.NotEqual(t, kdf(secret, kdfEnc, 16), kdf(secret, kdfMAC, 16))
}

func TestAdjustParity(t *testing.T) {
	k := []byte{0x00, 0x01, 0xfe, 0xff, 0x96, 0x9e}
	adjustParity(k)
	assert.Equal(t, []byte{0x01, 0x01, 0xfe, 0xfe, 0x97, 0x9e}, k)

	// AES keys are taken as they are
	assert.Equal(t, kdf([]byte("secret"), kdfEnc, 16), deriveKey([]byte("secret"), kdfEnc, sm.AES, 16))
}

func TestSessionKeysWrapper(t *testing.T) {
	keys := deriveSessionKeys([]byte("secret"), sm.AES, 32)

	w, err := keys.newWrapper(new(Config).withDefaults(), nil)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), w.SSC())
	assert.Equal(t, sm.AES, w.Cipher())

	keys = deriveSessionKeys([]byte("secret"), sm.DESede, 16)

	w, err = keys.newWrapper(new(Config).withDefaults(), unhex(t, "887022120c06c226"))
	assert.NoError(t, err)
	assert.Equal(t, uint64(0x887022120c06c226), w.SSC())
}
