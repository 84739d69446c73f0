// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

// Package sm implements ISO/IEC 7816-4 secure messaging as used by
// ePassports and eID cards after BAC, PACE or Chip Authentication.
//
// A Wrapper holds the session keys and the send sequence counter (SSC) of one
// secure channel. The terminal side uses Wrap and Unwrap, the chip side
// (emulators and tests) uses UnwrapCommand and WrapResponse.
//
// See: BSI TR-03110 Part 3, Appendix F and ICAO Doc 9303 Part 11, Section 9.8
package sm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des" //nolint:gosec
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	iso "cunicu.li/go-iso7816"
)

var (
	errInvalidKeyLength  = errors.New("invalid key length")
	errUnsupportedCipher = errors.New("unsupported cipher")
)

// Cipher selects the secure messaging variant.
type Cipher int

const (
	// DESede uses two-key 3DES in CBC mode with a zero IV and the
	// ISO/IEC 9797-1 MAC algorithm 3 (retail MAC).
	DESede Cipher = iota + 1

	// AES uses AES in CBC mode with the encrypted SSC as IV and
	// AES-CMAC truncated to 8 bytes.
	AES
)

func (c Cipher) String() string {
	switch c {
	case DESede:
		return "DESede"
	case AES:
		return "AES"
	default:
		return fmt.Sprintf("Cipher(%d)", int(c))
	}
}

// BlockSize returns the block size of the cipher in bytes which
// is also the padding length used for secure messaging.
func (c Cipher) BlockSize() int {
	switch c {
	case DESede:
		return des.BlockSize
	case AES:
		return aes.BlockSize
	default:
		return 0
	}
}

const (
	// DefaultMaxTransceiveLength is the maximum number of response bytes
	// requested by a single wrapped command unless configured otherwise.
	DefaultMaxTransceiveLength = iso.MaxLenResponseDataStandard

	lenMAC = 8
)

// Wrapper protects APDUs of one secure messaging session.
//
// All methods are safe for concurrent use, but a card expects commands and
// responses strictly alternating, so a Wrapper is meant to be owned by a
// single card session.
type Wrapper struct {
	// MaxTransceiveLength limits the amount of data requested per command.
	MaxTransceiveLength int

	// SkipMACCheck disables the verification of response MACs.
	SkipMACCheck bool

	cipher Cipher
	enc    cipher.Block
	mac    macFunc

	mu  sync.Mutex
	ssc uint64
}

// New creates a wrapper for the session keys ksEnc and ksMAC
// with an initial send sequence counter ssc.
//
// For DESede, keys are 16 byte two-key 3DES keys (K1 ‖ K2) or full 24 byte
// keys. For AES, keys are 16, 24 or 32 bytes long.
func New(c Cipher, ksEnc, ksMAC []byte, ssc uint64) (*Wrapper, error) {
	w := &Wrapper{
		MaxTransceiveLength: DefaultMaxTransceiveLength,
		cipher:              c,
		ssc:                 ssc,
	}

	var err error
	switch c {
	case DESede:
		if w.enc, err = newTripleDESCipher(ksEnc); err != nil {
			return nil, fmt.Errorf("failed to create encryption cipher: %w", err)
		}

		if w.mac, err = newRetailMAC(ksMAC); err != nil {
			return nil, fmt.Errorf("failed to create MAC: %w", err)
		}

	case AES:
		if w.enc, err = aes.NewCipher(ksEnc); err != nil {
			return nil, fmt.Errorf("failed to create encryption cipher: %w", err)
		}

		if w.mac, err = newCMAC(ksMAC); err != nil {
			return nil, fmt.Errorf("failed to create MAC: %w", err)
		}

	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedCipher, c)
	}

	return w, nil
}

// NewWithSSC creates a wrapper whose counter starts at the big-endian
// value of ssc, as derived by Basic Access Control.
func NewWithSSC(c Cipher, ksEnc, ksMAC, ssc []byte) (*Wrapper, error) {
	if len(ssc) > 8 {
		ssc = ssc[len(ssc)-8:]
	}

	buf := make([]byte, 8)
	copy(buf[8-len(ssc):], ssc)

	return New(c, ksEnc, ksMAC, binary.BigEndian.Uint64(buf))
}

// Cipher returns the secure messaging variant of the wrapper.
func (w *Wrapper) Cipher() Cipher {
	return w.cipher
}

// PadLength returns the length to which data is padded before
// encryption and MAC computation.
func (w *Wrapper) PadLength() int {
	return w.cipher.BlockSize()
}

// SSC returns the current value of the send sequence counter.
func (w *Wrapper) SSC() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.ssc
}

// incrementSSC advances the counter and returns its encoding.
// The caller must hold w.mu.
func (w *Wrapper) incrementSSC() []byte {
	w.ssc++

	buf := make([]byte, w.cipher.BlockSize())
	binary.BigEndian.PutUint64(buf[len(buf)-8:], w.ssc)

	return buf
}

// iv returns the initialization vector for the given encoded counter.
func (w *Wrapper) iv(ssc []byte) []byte {
	iv := make([]byte, w.enc.BlockSize())
	if w.cipher == AES {
		w.enc.Encrypt(iv, ssc)
	}

	return iv
}

func (w *Wrapper) encrypt(ssc, data []byte) []byte {
	padded := Pad(data, w.cipher.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(w.enc, w.iv(ssc)).CryptBlocks(out, padded)

	return out
}

func (w *Wrapper) decrypt(ssc, data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%w.cipher.BlockSize() != 0 {
		return nil, fmt.Errorf("%w: %w of ciphertext: %d", ErrSecurityViolation, errUnexpectedLength, len(data))
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(w.enc, w.iv(ssc)).CryptBlocks(out, data)

	plain, err := Unpad(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSecurityViolation, err)
	}

	return plain, nil
}

func newTripleDESCipher(key []byte) (cipher.Block, error) {
	switch len(key) {
	case 16:
		k := make([]byte, 0, 24)
		k = append(k, key...)
		k = append(k, key[:8]...)

		return des.NewTripleDESCipher(k) //nolint:gosec

	case 24:
		return des.NewTripleDESCipher(key) //nolint:gosec

	default:
		return nil, fmt.Errorf("%w: %d", errInvalidKeyLength, len(key))
	}
}
