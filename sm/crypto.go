// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package sm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des" //nolint:gosec
	"errors"
	"fmt"

	"github.com/aead/cmac"
)

var errInvalidPadding = errors.New("invalid padding")

// Pad applies ISO/IEC 7816-4 padding (ISO/IEC 9797-1 method 2):
// a mandatory 0x80 byte followed by zero bytes up to a multiple of blockSize.
func Pad(data []byte, blockSize int) []byte {
	n := len(data) + 1
	if r := n % blockSize; r != 0 {
		n += blockSize - r
	}

	out := make([]byte, n)
	copy(out, data)
	out[len(data)] = 0x80

	return out
}

// Unpad removes ISO/IEC 7816-4 padding.
func Unpad(data []byte) ([]byte, error) {
	i := len(data) - 1
	for i >= 0 && data[i] == 0x00 {
		i--
	}

	if i < 0 || data[i] != 0x80 {
		return nil, errInvalidPadding
	}

	return data[:i], nil
}

// macFunc computes an 8 byte MAC over already padded data.
type macFunc func(data []byte) []byte

// newRetailMAC returns the ISO/IEC 9797-1 MAC algorithm 3 with DES
// for the two-key 3DES key K1 ‖ K2.
func newRetailMAC(key []byte) (macFunc, error) {
	if len(key) != 16 && len(key) != 24 {
		return nil, fmt.Errorf("%w: %d", errInvalidKeyLength, len(key))
	}

	k1, err := des.NewCipher(key[:8]) //nolint:gosec
	if err != nil {
		return nil, err
	}

	k2, err := des.NewCipher(key[8:16]) //nolint:gosec
	if err != nil {
		return nil, err
	}

	return func(data []byte) []byte {
		h := make([]byte, des.BlockSize)
		for i := 0; i+des.BlockSize <= len(data); i += des.BlockSize {
			for j := range h {
				h[j] ^= data[i+j]
			}
			k1.Encrypt(h, h)
		}

		k2.Decrypt(h, h)
		k1.Encrypt(h, h)

		return h
	}, nil
}

func newCMAC(key []byte) (macFunc, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	if _, err := cmac.NewWithTagSize(block, lenMAC); err != nil {
		return nil, err
	}

	return func(data []byte) []byte {
		// Tag size has been checked above
		sum, _ := cmac.Sum(data, block, lenMAC)
		return sum
	}, nil
}

// Checksum computes the 8 byte message authentication code used by PACE
// authentication tokens and BAC: ISO/IEC 9797-1 MAC algorithm 3 over the
// padded data for DESede, and AES-CMAC over the unpadded data for AES.
func Checksum(c Cipher, key, data []byte) ([]byte, error) {
	switch c {
	case DESede:
		mac, err := newRetailMAC(key)
		if err != nil {
			return nil, err
		}

		return mac(Pad(data, des.BlockSize)), nil

	case AES:
		mac, err := newCMAC(key)
		if err != nil {
			return nil, err
		}

		return mac(data), nil

	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedCipher, c)
	}
}

// NewBlock creates the block cipher of the secure messaging variant c.
// Two-key 3DES keys are expanded to K1 ‖ K2 ‖ K1.
func NewBlock(c Cipher, key []byte) (cipher.Block, error) {
	switch c {
	case DESede:
		return newTripleDESCipher(key)

	case AES:
		return aes.NewCipher(key)

	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedCipher, c)
	}
}

// Encrypt encrypts block aligned data with c in CBC mode.
func Encrypt(c Cipher, key, iv, data []byte) ([]byte, error) {
	block, err := NewBlock(c, key)
	if err != nil {
		return nil, err
	}

	if iv == nil {
		iv = make([]byte, block.BlockSize())
	}

	if len(data)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("%w of plaintext: %d", errUnexpectedLength, len(data))
	}

	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)

	return out, nil
}

// Decrypt decrypts block aligned data with c in CBC mode.
// A nil iv is a zero block.
func Decrypt(c Cipher, key, iv, data []byte) ([]byte, error) {
	block, err := NewBlock(c, key)
	if err != nil {
		return nil, err
	}

	if iv == nil {
		iv = make([]byte, block.BlockSize())
	}

	if len(data)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("%w of ciphertext: %d", errUnexpectedLength, len(data))
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)

	return out, nil
}
