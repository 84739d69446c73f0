// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cunicu.li/go-eac/sm"
)

func icaoBACKey() *BACKey {
	return &BACKey{
		DocumentNumber: "L898902C",
		DateOfBirth:    "690806",
		DateOfExpiry:   "940623",
	}
}

// ICAO Doc 9303 Part 11, Appendix D.3 and D.4
func TestBACWorkedExample(t *testing.T) {
	key := icaoBACKey()

	rndIC := unhex(t, "4608f91988702212")
	rndIFD := unhex(t, "781723860c06c226")
	kIC := unhex(t, "0b4f80323eb3191cb04970cb4052790b")
	kIFD := unhex(t, "0b795240cb7049b01c19b33e32804f0b")

	chip := &testChip{
		bacKey: key,
		rand:   bytes.NewReader(concat(rndIC, kIC)),
		files: map[FileID][]byte{
			FileCOM: newLDSFile(t, 0x60, 20),
		},
	}

	cfg := &Config{
		Rand: bytes.NewReader(concat(rndIFD, kIFD)),
	}

	withCardConfig(t, chip, cfg, func(t *testing.T, c *Card) {
		res, err := c.DoBAC(key)
		require.NoError(t, err)

		assert.True(t, c.IsSecure())
		assert.Equal(t, rndIC, res.RndIC)
		assert.Equal(t, rndIFD, res.RndIFD)
		assert.Equal(t, kIC, res.KIC)
		assert.Equal(t, kIFD, res.KIFD)

		// GET CHALLENGE and EXTERNAL AUTHENTICATE
		require.Len(t, chip.commands, 2)
		assert.Equal(t, unhex(t,
			"72c29c2371cc9bdb65b779b8e8d37b29ecc154aa56a8799fae2f498f76ed92f2"+
				"5f1448eea8ad90a7"), chip.commands[1].Data)
		assert.Equal(t, lenBACResponse, chip.commands[1].Ne)

		assert.Equal(t, sm.DESede, res.SessionKeys.Cipher)
		assert.Equal(t, unhex(t, "979ec13b1cbfe9dcd01ab0fed307eae5"), res.SessionKeys.Enc)
		assert.Equal(t, unhex(t, "f1cb1f1fb5adf208806b89dc579dc1f8"), res.SessionKeys.MAC)
		assert.Equal(t, unhex(t, "887022120c06c226"), res.SSC())
		assert.Equal(t, uint64(0x887022120c06c226), c.Wrapper().SSC())

		err = c.SelectFile(FileCOM)
		require.NoError(t, err)

		assert.Equal(t, unhex(t, "0ca4020c158709016375432908c044f68e08bf8b92d635ff24f800"), chip.raw[len(chip.raw)-1])
		assert.Equal(t, uint64(0x887022120c06c228), c.Wrapper().SSC())

		buf, err := c.ReadFile(FileCOM)
		require.NoError(t, err)
		assert.Equal(t, chip.files[FileCOM], buf)
	})
}

func TestBACWrongKey(t *testing.T) {
	key := icaoBACKey()

	other := icaoBACKey()
	other.DateOfBirth = "690807"

	chip := &testChip{
		bacKey: key,
	}

	withCard(t, chip, func(t *testing.T, c *Card) {
		_, err := c.DoBAC(other)
		assert.ErrorIs(t, err, ErrAccessDenied)
		assert.False(t, c.IsSecure())
	})
}

func TestBACInvalidKey(t *testing.T) {
	chip := &testChip{}

	withCard(t, chip, func(t *testing.T, c *Card) {
		_, err := c.DoBAC(&BACKey{DocumentNumber: "L898902C", DateOfBirth: "6908", DateOfExpiry: "940623"})
		assert.ErrorIs(t, err, errUnexpectedLength)
		assert.Empty(t, chip.commands)
	})
}
