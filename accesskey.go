// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"crypto/sha1" //nolint:gosec
	"errors"
	"fmt"
	"strings"
)

var errInvalidCharacter = errors.New("invalid character")

// KeyReference identifies the password used by PACE.
type KeyReference byte

const (
	KeyReferenceMRZ KeyReference = 0x01
	KeyReferenceCAN KeyReference = 0x02
	KeyReferencePIN KeyReference = 0x03
	KeyReferencePUK KeyReference = 0x04
)

func (r KeyReference) String() string {
	switch r {
	case KeyReferenceMRZ:
		return "MRZ"
	case KeyReferenceCAN:
		return "CAN"
	case KeyReferencePIN:
		return "PIN"
	case KeyReferencePUK:
		return "PUK"
	default:
		return fmt.Sprintf("KeyReference(%#x)", byte(r))
	}
}

// AccessKey is a password used to establish secure messaging.
// It is either a *BACKey or a *PACEKey.
type AccessKey interface {
	// Reference returns the key reference used in MSE:Set AT.
	Reference() KeyReference

	// KeySeed returns the shared secret π from which the static PACE key is derived.
	KeySeed() ([]byte, error)
}

// BACKey is an access key derived from the machine readable zone
// printed on a travel document.
type BACKey struct {
	DocumentNumber string
	DateOfBirth    string // YYMMDD
	DateOfExpiry   string // YYMMDD
}

func (*BACKey) Reference() KeyReference {
	return KeyReferenceMRZ
}

// KeySeed returns the SHA-1 hash of the MRZ information.
func (k *BACKey) KeySeed() ([]byte, error) {
	info, err := k.mrzInformation()
	if err != nil {
		return nil, err
	}

	h := sha1.Sum([]byte(info)) //nolint:gosec

	return h[:], nil
}

// mrzInformation concatenates the document number, date of birth and date
// of expiry each followed by its check digit.
func (k *BACKey) mrzInformation() (string, error) {
	if len(k.DateOfBirth) != 6 || len(k.DateOfExpiry) != 6 {
		return "", fmt.Errorf("%w of date: must be YYMMDD", errUnexpectedLength)
	}

	var sb strings.Builder

	for _, f := range []string{
		padMRZ(k.DocumentNumber, 9),
		k.DateOfBirth,
		k.DateOfExpiry,
	} {
		cd, err := CheckDigit(f)
		if err != nil {
			return "", err
		}

		sb.WriteString(f)
		sb.WriteByte('0' + cd)
	}

	return sb.String(), nil
}

// PACEKey is a card access number, PIN or PUK.
type PACEKey struct {
	Ref    KeyReference
	Secret string
}

// NewCAN returns an access key for a card access number.
func NewCAN(can string) *PACEKey {
	return &PACEKey{KeyReferenceCAN, can}
}

// NewPIN returns an access key for an eID PIN.
func NewPIN(pin string) *PACEKey {
	return &PACEKey{KeyReferencePIN, pin}
}

// NewPUK returns an access key for an eID PUK.
func NewPUK(puk string) *PACEKey {
	return &PACEKey{KeyReferencePUK, puk}
}

func (k *PACEKey) Reference() KeyReference {
	return k.Ref
}

// KeySeed returns the ISO 8859-1 encoding of the secret.
func (k *PACEKey) KeySeed() ([]byte, error) {
	seed := make([]byte, 0, len(k.Secret))
	for _, r := range k.Secret {
		if r > 0xff {
			return nil, fmt.Errorf("%w: %q", errInvalidCharacter, r)
		}
		seed = append(seed, byte(r))
	}

	return seed, nil
}

// CheckDigit computes the check digit of a field of the machine readable zone.
//
// See: ICAO Doc 9303 Part 3, Section 4.9
func CheckDigit(field string) (byte, error) {
	weights := [3]int{7, 3, 1}
	sum := 0

	for i, c := range []byte(field) {
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c >= 'A' && c <= 'Z':
			v = int(c-'A') + 10
		case c >= 'a' && c <= 'z':
			v = int(c-'a') + 10
		case c == '<':
			v = 0
		default:
			return 0, fmt.Errorf("%w: %q", errInvalidCharacter, c)
		}

		sum += v * weights[i%3]
	}

	return byte(sum % 10), nil
}

func padMRZ(s string, n int) string {
	s = strings.ToUpper(strings.ReplaceAll(s, " ", ""))
	if len(s) < n {
		s += strings.Repeat("<", n-len(s))
	}

	return s
}
