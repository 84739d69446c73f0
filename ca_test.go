// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"crypto/rand"
	"encoding/asn1"
	"math/big"
	"testing"

	iso "cunicu.li/go-iso7816"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cunicu.li/go-eac/sm"
)

// newCAChip returns a chip which accepts PACE with a CAN on brainpoolP256r1
// and holds a static key pair for Chip Authentication.
func newCAChip(t *testing.T, caParameterID int) (*testChip, *PACEKey) {
	t.Helper()

	key := NewCAN("123456")
	chip := newPACEChip(key, bp256(t))
	chip.files = map[FileID][]byte{
		FileDG1: newLDSFile(t, 0x61, 93),
	}

	params, err := StandardizedDomainParameters(caParameterID)
	require.NoError(t, err)

	chip.caKey, err = GenerateKey(params, rand.Reader)
	require.NoError(t, err)

	return chip, key
}

func doPACE(t *testing.T, c *Card, key AccessKey) *PACEResult {
	t.Helper()

	res, err := c.DoPACE(key, OIDPACEECDHGMAES128, bp256(t), ParameterIDBP256)
	require.NoError(t, err)

	return res
}

func TestCA(t *testing.T) {
	tests := []struct {
		name              string
		oid               asn1.ObjectIdentifier
		publicKeyOID      asn1.ObjectIdentifier
		parameterID       int
		rejectUnchainedCA bool
		cipher            sm.Cipher
	}{
		{"ECDH-3DES", OIDCAECDH3DES, OIDPKECDH, ParameterIDP256, false, sm.DESede},
		{"ECDH-AES128", OIDCAECDHAES128, OIDPKECDH, ParameterIDBP256, false, sm.AES},
		{"ECDH-AES256", OIDCAECDHAES256, OIDPKECDH, ParameterIDBP384, false, sm.AES},
		{"DH-3DES", OIDCADH3DES, OIDPKDH, ParameterIDModP1024, false, sm.DESede},
		{"DH-AES128-Chained", OIDCADHAES128, OIDPKDH, ParameterIDModP2048256, true, sm.AES},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			chip, key := newCAChip(t, test.parameterID)
			chip.rejectUnchainedCA = test.rejectUnchainedCA

			withCard(t, chip, func(t *testing.T, c *Card) {
				doPACE(t, c, key)

				res, err := c.DoCA(big.NewInt(1), test.oid, test.publicKeyOID, chip.caKey.Public)
				require.NoError(t, err)

				assert.True(t, c.IsSecure())
				assert.Equal(t, test.cipher, c.Wrapper().Cipher())
				assert.Equal(t, chip.caHash, res.PCDKeyHash)
				assert.Equal(t, test.cipher, res.SessionKeys.Cipher)

				if test.rejectUnchainedCA {
					assert.True(t, chip.caRejected)
					assert.Positive(t, chip.chunks)
				}

				// Secure messaging continues with the new session keys
				buf, err := c.ReadFile(FileDG1)
				require.NoError(t, err)
				assert.Equal(t, chip.files[FileDG1], buf)
			})
		})
	}
}

func TestCAWithInfo(t *testing.T) {
	chip, key := newCAChip(t, ParameterIDBP256)

	infos := SecurityInfos{
		&ChipAuthenticationInfo{
			Protocol: OIDCAECDHAES128,
			Version:  1,
			KeyID:    big.NewInt(7),
		},
		&ChipAuthenticationPublicKeyInfo{
			Protocol:  OIDPKECDH,
			PublicKey: chip.caKey.Public,
			KeyID:     big.NewInt(7),
		},
	}

	pk := infos.ChipAuthenticationPublicKeyInfos()
	require.Len(t, pk, 1)

	info := infos.ChipAuthenticationInfoFor(pk[0])
	require.NotNil(t, info)

	withCard(t, chip, func(t *testing.T, c *Card) {
		doPACE(t, c, key)

		res, err := c.DoCAWithInfo(info, pk[0])
		require.NoError(t, err)
		assert.Equal(t, sm.AES, res.Algorithm.Cipher)
		assert.Equal(t, big.NewInt(7), res.KeyID)
	})
}

func TestCAInferProtocol(t *testing.T) {
	chip, key := newCAChip(t, ParameterIDBP256)

	withCard(t, chip, func(t *testing.T, c *Card) {
		doPACE(t, c, key)

		res, err := c.DoCAWithInfo(nil, &ChipAuthenticationPublicKeyInfo{
			Protocol:  OIDPKECDH,
			PublicKey: chip.caKey.Public,
		})
		require.NoError(t, err)
		assert.Equal(t, OIDCAECDH3DES, res.Algorithm.OID)
		assert.Equal(t, sm.DESede, c.Wrapper().Cipher())
	})
}

func TestCARequiresSecureMessaging(t *testing.T) {
	chip, _ := newCAChip(t, ParameterIDBP256)

	withCard(t, chip, func(t *testing.T, c *Card) {
		_, err := c.DoCA(nil, OIDCAECDHAES128, OIDPKECDH, chip.caKey.Public)
		assert.ErrorIs(t, err, errNoSecureChannel)
		assert.Empty(t, chip.commands)
	})
}

func TestCAUnsupported(t *testing.T) {
	chip, key := newCAChip(t, ParameterIDBP256)

	withCard(t, chip, func(t *testing.T, c *Card) {
		doPACE(t, c, key)
		n := len(chip.commands)

		_, err := c.DoCA(nil, OIDPACEECDHGMAES128, OIDPKECDH, chip.caKey.Public)
		assert.ErrorIs(t, err, ErrUnsupported)

		_, err = c.DoCA(nil, OIDCADHAES128, OIDPKDH, chip.caKey.Public)
		assert.ErrorIs(t, err, ErrUnsupported)

		_, err = c.DoCA(nil, OIDCAECDHAES128, OIDPKECDH, nil)
		assert.ErrorIs(t, err, ErrUnsupported)

		assert.Len(t, chip.commands, n)
		assert.True(t, c.IsSecure())
	})
}

func TestCAAfterBAC(t *testing.T) {
	key := &BACKey{
		DocumentNumber: "L898902C",
		DateOfBirth:    "690806",
		DateOfExpiry:   "940623",
	}

	chip, _ := newCAChip(t, ParameterIDP256)
	chip.bacKey = key

	withCard(t, chip, func(t *testing.T, c *Card) {
		_, err := c.DoBAC(key)
		require.NoError(t, err)

		_, err = c.DoCA(nil, OIDCAECDH3DES, OIDPKECDH, chip.caKey.Public)
		require.NoError(t, err)

		_, err = c.Transmit(&iso.CAPDU{Ins: iso.InsSelect, P1: 0x02, P2: 0x0c, Data: FileDG1.Bytes()})
		require.NoError(t, err)
	})
}
