// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"crypto/rand"
	"encoding/asn1"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

//nolint:gochecknoglobals
var (
	oidBrainpoolP256r1  = asn1.ObjectIdentifier{1, 3, 36, 3, 3, 2, 8, 1, 1, 7}
	oidUnknownProtocol  = asn1.ObjectIdentifier{1, 2, 3, 4}
	oidECDSAPlainSHA256 = append(append(asn1.ObjectIdentifier{}, oidECDSAPlain...), 3)
)

func marshalSecurityInfos(t *testing.T, dg14 bool, infos ...cryptobyte.BuilderContinuation) []byte {
	t.Helper()

	set := func(b *cryptobyte.Builder) {
		b.AddASN1(cbasn1.SET, func(b *cryptobyte.Builder) {
			for _, info := range infos {
				b.AddASN1(cbasn1.SEQUENCE, info)
			}
		})
	}

	var b cryptobyte.Builder
	if dg14 {
		b.AddASN1(tagDG14, set)
	} else {
		set(&b)
	}

	buf, err := b.Bytes()
	require.NoError(t, err)

	return buf
}

func paceInfo(oid asn1.ObjectIdentifier, paramID int) cryptobyte.BuilderContinuation {
	return func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(oid)
		b.AddASN1Int64(2)
		if paramID >= 0 {
			b.AddASN1Int64(int64(paramID))
		}
	}
}

func caPublicKeyInfo(oid asn1.ObjectIdentifier, algID cryptobyte.BuilderContinuation, key []byte, keyID int64) cryptobyte.BuilderContinuation {
	return func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(oid)
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1(cbasn1.SEQUENCE, algID)
			b.AddASN1BitString(key)
		})
		if keyID > 0 {
			b.AddASN1Int64(keyID)
		}
	}
}

func TestParseSecurityInfos(t *testing.T) {
	params := bp256(t)

	kp, err := GenerateKey(params, rand.Reader)
	require.NoError(t, err)

	buf := marshalSecurityInfos(t, false,
		paceInfo(OIDPACEECDHGMAES128, ParameterIDBP256),
		paceInfo(OIDPACEDHIMAES128, -1),
		func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(OIDCAECDHAES128)
			b.AddASN1Int64(1)
			b.AddASN1Int64(1)
		},
		caPublicKeyInfo(OIDPKECDH, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(OIDStandardizedDomainParameters)
			b.AddASN1Int64(ParameterIDBP256)
		}, kp.Public.Bytes(), 1),
		func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(OIDTA)
			b.AddASN1Int64(2)
		},
		func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidUnknownProtocol)
			b.AddASN1Int64(7)
		},
	)

	infos, err := ParseSecurityInfos(buf)
	require.NoError(t, err)
	require.Len(t, infos, 6)

	pace := infos.PACEInfos()
	require.Len(t, pace, 2)
	assert.Equal(t, &PACEInfo{Protocol: OIDPACEECDHGMAES128, Version: 2, ParameterID: ParameterIDBP256}, pace[0])
	assert.Equal(t, &PACEInfo{Protocol: OIDPACEDHIMAES128, Version: 2, ParameterID: -1}, pace[1])

	ca := infos.ChipAuthenticationInfos()
	require.Len(t, ca, 1)
	assert.True(t, ca[0].Protocol.Equal(OIDCAECDHAES128))
	assert.Equal(t, 1, ca[0].Version)
	assert.Equal(t, big.NewInt(1), ca[0].KeyID)

	pk := infos.ChipAuthenticationPublicKeyInfos()
	require.Len(t, pk, 1)
	assert.True(t, pk[0].Protocol.Equal(OIDPKECDH))
	assert.True(t, pk[0].PublicKey.Equal(kp.Public))
	assert.Same(t, params, pk[0].PublicKey.Parameters())
	assert.Equal(t, big.NewInt(1), pk[0].KeyID)

	assert.Same(t, ca[0], infos.ChipAuthenticationInfoFor(pk[0]))

	ta, ok := infos[4].(*TerminalAuthenticationInfo)
	require.True(t, ok)
	assert.Equal(t, 2, ta.Version)

	unknown, ok := infos[5].(*UnknownSecurityInfo)
	require.True(t, ok)
	assert.True(t, unknown.ProtocolOID().Equal(oidUnknownProtocol))
	assert.NotEmpty(t, unknown.Raw)
}

func TestParseSecurityInfosDG14(t *testing.T) {
	buf := marshalSecurityInfos(t, true,
		func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(OIDAA)
			b.AddASN1Int64(1)
			b.AddASN1ObjectIdentifier(oidECDSAPlainSHA256)
		},
	)

	assert.Equal(t, byte(0x6e), buf[0])

	infos, err := ParseSecurityInfos(buf)
	require.NoError(t, err)
	require.Len(t, infos, 1)

	aa, ok := infos[0].(*ActiveAuthenticationInfo)
	require.True(t, ok)
	assert.Equal(t, 1, aa.Version)
	assert.True(t, aa.SignatureAlgorithm.Equal(oidECDSAPlainSHA256))
}

func TestParseChipAuthenticationPublicKey(t *testing.T) {
	bp := bp256(t)

	dhParams, err := StandardizedDomainParameters(ParameterIDModP1024)
	require.NoError(t, err)

	dh := dhParams.(*DHParameters) //nolint:forcetypeassert

	ecKey, err := GenerateKey(bp, rand.Reader)
	require.NoError(t, err)

	dhKey, err := GenerateKey(dh, rand.Reader)
	require.NoError(t, err)

	dhY := dhKey.Public.(*DHPublicKey).Y //nolint:forcetypeassert

	var yBuilder cryptobyte.Builder
	yBuilder.AddASN1BigInt(dhY)
	yDER, err := yBuilder.Bytes()
	require.NoError(t, err)

	tests := []struct {
		name   string
		oid    asn1.ObjectIdentifier
		algID  cryptobyte.BuilderContinuation
		key    []byte
		params DomainParameters
		public PublicKey
	}{
		{
			name: "NamedCurve",
			oid:  OIDPKECDH,
			algID: func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(oidECPublicKey)
				b.AddASN1ObjectIdentifier(oidBrainpoolP256r1)
			},
			key:    ecKey.Public.Bytes(),
			params: bp,
			public: ecKey.Public,
		},
		{
			name: "ExplicitCurve",
			oid:  OIDPKECDH,
			algID: func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(oidECPublicKey)
				b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
					b.AddASN1Int64(1)
					b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
						b.AddASN1ObjectIdentifier(oidPrimeField)
						b.AddASN1BigInt(bp.P)
					})
					b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
						b.AddASN1OctetString(bp.A.FillBytes(make([]byte, bp.FieldSize())))
						b.AddASN1OctetString(bp.B.FillBytes(make([]byte, bp.FieldSize())))
					})
					b.AddASN1OctetString(bp.Marshal(bp.Gx, bp.Gy))
					b.AddASN1BigInt(bp.N)
					b.AddASN1Int64(1)
				})
			},
			key:    ecKey.Public.Bytes(),
			params: bp,
			public: ecKey.Public,
		},
		{
			name: "DH",
			oid:  OIDPKDH,
			algID: func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(oidDHPublicNumber)
				b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
					b.AddASN1BigInt(dh.P)
					b.AddASN1BigInt(dh.G)
					if dh.Q != nil {
						b.AddASN1BigInt(dh.Q)
					}
				})
			},
			key:    yDER,
			params: dh,
			public: dhKey.Public,
		},
		{
			name: "StandardizedDH",
			oid:  OIDPKDH,
			algID: func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(OIDStandardizedDomainParameters)
				b.AddASN1Int64(ParameterIDModP1024)
			},
			key:    yDER,
			params: dh,
			public: dhKey.Public,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			buf := marshalSecurityInfos(t, false, caPublicKeyInfo(test.oid, test.algID, test.key, 0))

			infos, err := ParseSecurityInfos(buf)
			require.NoError(t, err)

			pk := infos.ChipAuthenticationPublicKeyInfos()
			require.Len(t, pk, 1)
			assert.Nil(t, pk[0].KeyID)
			assert.Same(t, test.params, pk[0].PublicKey.Parameters())
			assert.True(t, pk[0].PublicKey.Equal(test.public))
		})
	}
}

func TestParseSecurityInfosInvalid(t *testing.T) {
	bp := bp256(t)

	tests := []struct {
		name  string
		infos []cryptobyte.BuilderContinuation
		raw   []byte
	}{
		{
			name: "NotASet",
			raw:  []byte{0x30, 0x00},
		},
		{
			name: "TrailingData",
			raw:  []byte{0x31, 0x00, 0x00},
		},
		{
			name: "MissingVersion",
			infos: []cryptobyte.BuilderContinuation{
				func(b *cryptobyte.Builder) {
					b.AddASN1ObjectIdentifier(OIDPACEECDHGMAES128)
				},
			},
		},
		{
			name: "MissingSignatureAlgorithm",
			infos: []cryptobyte.BuilderContinuation{
				func(b *cryptobyte.Builder) {
					b.AddASN1ObjectIdentifier(OIDAA)
					b.AddASN1Int64(1)
				},
			},
		},
		{
			name: "UnknownParameterID",
			infos: []cryptobyte.BuilderContinuation{
				caPublicKeyInfo(OIDPKECDH, func(b *cryptobyte.Builder) {
					b.AddASN1ObjectIdentifier(OIDStandardizedDomainParameters)
					b.AddASN1Int64(31)
				}, bp.Marshal(bp.Gx, bp.Gy), 0),
			},
		},
		{
			name: "PointNotOnCurve",
			infos: []cryptobyte.BuilderContinuation{
				caPublicKeyInfo(OIDPKECDH, func(b *cryptobyte.Builder) {
					b.AddASN1ObjectIdentifier(OIDStandardizedDomainParameters)
					b.AddASN1Int64(ParameterIDBP256)
				}, bp.Marshal(bp.Gx, new(big.Int).Add(bp.Gy, big.NewInt(1))), 0),
			},
		},
		{
			name: "UnsupportedAlgorithm",
			infos: []cryptobyte.BuilderContinuation{
				caPublicKeyInfo(OIDPKECDH, func(b *cryptobyte.Builder) {
					b.AddASN1ObjectIdentifier(oidUnknownProtocol)
				}, bp.Marshal(bp.Gx, bp.Gy), 0),
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			buf := test.raw
			if buf == nil {
				buf = marshalSecurityInfos(t, false, test.infos...)
			}

			_, err := ParseSecurityInfos(buf)
			assert.Error(t, err)
		})
	}
}

func TestChipAuthenticationInfoFor(t *testing.T) {
	infos := SecurityInfos{
		&ChipAuthenticationInfo{Protocol: OIDCAECDH3DES, Version: 1, KeyID: big.NewInt(1)},
		&ChipAuthenticationInfo{Protocol: OIDCAECDHAES256, Version: 1, KeyID: big.NewInt(2)},
	}

	assert.Same(t, infos[1], infos.ChipAuthenticationInfoFor(&ChipAuthenticationPublicKeyInfo{KeyID: big.NewInt(2)}))
	assert.Same(t, infos[0], infos.ChipAuthenticationInfoFor(&ChipAuthenticationPublicKeyInfo{}))
	assert.Nil(t, infos.ChipAuthenticationInfoFor(&ChipAuthenticationPublicKeyInfo{KeyID: big.NewInt(3)}))
	assert.Nil(t, SecurityInfos{}.ChipAuthenticationInfoFor(&ChipAuthenticationPublicKeyInfo{}))
}
