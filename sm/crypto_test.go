// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package sm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPad(t *testing.T) {
	tests := []struct {
		data      string
		blockSize int
		padded    string
	}{
		{"", 8, "8000000000000000"},
		{"01", 8, "0180000000000000"},
		{"01020304050607", 8, "0102030405060780"},
		{"0102030405060708", 8, "01020304050607088000000000000000"},
		{"0102030405060708", 16, "01020304050607088000000000000000"},
		{"0c", 16, "0c800000000000000000000000000000"},
	}

	for _, test := range tests {
		padded := Pad(unhex(t, test.data), test.blockSize)
		assert.Equal(t, unhex(t, test.padded), padded)

		data, err := Unpad(padded)
		require.NoError(t, err)
		assert.Equal(t, unhex(t, test.data), data)
	}
}

func TestUnpadInvalid(t *testing.T) {
	for _, data := range []string{
		"",
		"0000000000000000",
		"0102030405060708",
		"0180000000000001",
	} {
		_, err := Unpad(unhex(t, data))
		assert.ErrorIs(t, err, errInvalidPadding, data)
	}
}

func TestChecksum(t *testing.T) {
	t.Run("retail MAC", func(t *testing.T) {
		// ICAO Doc 9303 Part 11, Appendix D.3: MAC over E_IFD with K_MAC
		mac, err := Checksum(DESede,
			unhex(t, "7862d9ece03c1bcd4d77089dcf131442"),
			unhex(t, "72c29c2371cc9bdb65b779b8e8d37b29ecc154aa56a8799fae2f498f76ed92f2"))
		require.NoError(t, err)
		assert.Equal(t, unhex(t, "5f1448eea8ad90a7"), mac)
	})

	t.Run("AES-CMAC", func(t *testing.T) {
		// RFC 4493, Section 4, truncated to 8 bytes
		key := unhex(t, "2b7e151628aed2a6abf7158809cf4f3c")

		mac, err := Checksum(AES, key, nil)
		require.NoError(t, err)
		assert.Equal(t, unhex(t, "bb1d6929e9593728"), mac)

		mac, err = Checksum(AES, key, unhex(t, "6bc1bee22e409f96e93d7e117393172a"))
		require.NoError(t, err)
		assert.Equal(t, unhex(t, "070a16b46b4d4144"), mac)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := Checksum(Cipher(0), make([]byte, 16), nil)
		assert.ErrorIs(t, err, errUnsupportedCipher)

		_, err = Checksum(DESede, make([]byte, 8), nil)
		assert.ErrorIs(t, err, errInvalidKeyLength)
	})
}

func TestEncryptDecrypt(t *testing.T) {
	for _, v := range testVariants {
		t.Run(v.cipher.String(), func(t *testing.T) {
			key := make([]byte, v.keyLen)
			for i := range key {
				key[i] = byte(i)
			}

			plain := Pad([]byte("secure messaging"), v.cipher.BlockSize())

			ct, err := Encrypt(v.cipher, key, nil, plain)
			require.NoError(t, err)
			assert.NotEqual(t, plain, ct)

			pt, err := Decrypt(v.cipher, key, nil, ct)
			require.NoError(t, err)
			assert.Equal(t, plain, pt)

			_, err = Encrypt(v.cipher, key, nil, plain[1:])
			assert.ErrorIs(t, err, errUnexpectedLength)
		})
	}
}

func TestNewInvalidKeys(t *testing.T) {
	_, err := New(DESede, make([]byte, 15), make([]byte, 16), 0)
	assert.ErrorIs(t, err, errInvalidKeyLength)

	_, err = New(AES, make([]byte, 16), make([]byte, 17), 0)
	assert.Error(t, err)

	_, err = New(Cipher(3), make([]byte, 16), make([]byte, 16), 0)
	assert.ErrorIs(t, err, errUnsupportedCipher)
}
