// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDigit(t *testing.T) {
	tests := []struct {
		field string
		digit byte
	}{
		{"L898902C<", 3},
		{"L898902C3", 6},
		{"690806", 1},
		{"940623", 6},
		{"740812", 2},
		{"120415", 9},
		{"l898902c<", 3},
	}

	for _, test := range tests {
		t.Run(test.field, func(t *testing.T) {
			d, err := CheckDigit(test.field)
			require.NoError(t, err)
			assert.Equal(t, test.digit, d)
		})
	}

	_, err := CheckDigit("L8989#2C<")
	assert.ErrorIs(t, err, errInvalidCharacter)
}

func TestBACKey(t *testing.T) {
	key := &BACKey{
		DocumentNumber: "L898902C",
		DateOfBirth:    "690806",
		DateOfExpiry:   "940623",
	}

	assert.Equal(t, KeyReferenceMRZ, key.Reference())

	info, err := key.mrzInformation()
	require.NoError(t, err)
	assert.Equal(t, "L898902C<369080619406236", info)

	seed, err := key.KeySeed()
	require.NoError(t, err)
	assert.Len(t, seed, 20)
	assert.Equal(t, unhex(t, "239ab9cb282daf66231dc5a4df6bfbae"), seed[:16])

	_, err = (&BACKey{DocumentNumber: "L898902C", DateOfBirth: "6908", DateOfExpiry: "940623"}).KeySeed()
	assert.ErrorIs(t, err, errUnexpectedLength)
}

func TestPACEKey(t *testing.T) {
	assert.Equal(t, KeyReferenceCAN, NewCAN("123456").Reference())
	assert.Equal(t, KeyReferencePIN, NewPIN("123456").Reference())
	assert.Equal(t, KeyReferencePUK, NewPUK("1234567890").Reference())

	seed, err := NewCAN("500540").KeySeed()
	require.NoError(t, err)
	assert.Equal(t, []byte("500540"), seed)

	seed, err = NewPIN("ä1").KeySeed()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xe4, '1'}, seed)

	_, err = NewPIN("€").KeySeed()
	assert.ErrorIs(t, err, errInvalidCharacter)
}

func TestKeyReferenceString(t *testing.T) {
	assert.Equal(t, "MRZ", KeyReferenceMRZ.String())
	assert.Equal(t, "CAN", KeyReferenceCAN.String())
	assert.Equal(t, "KeyReference(0x7)", KeyReference(7).String())
}

func TestChipIDFromDocumentNumber(t *testing.T) {
	id, err := ChipIDFromDocumentNumber("L898902C")
	require.NoError(t, err)
	assert.Equal(t, []byte("L898902C<3"), id)

	_, err = ChipIDFromDocumentNumber("L89#")
	assert.ErrorIs(t, err, errInvalidCharacter)
}
