// SPDX-FileCopyrightText: 2020 Google LLC
// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"crypto"
	_ "crypto/sha512" // Register SHA-384 and SHA-512
	"encoding/asn1"
	"fmt"

	"cunicu.li/go-eac/sm"
)

// Agreement is the key agreement algorithm of a protocol.
type Agreement int

const (
	AgreementDH Agreement = iota + 1
	AgreementECDH
)

func (a Agreement) String() string {
	switch a {
	case AgreementDH:
		return "DH"
	case AgreementECDH:
		return "ECDH"
	default:
		return fmt.Sprintf("Agreement(%d)", int(a))
	}
}

// Mapping is the nonce mapping of a PACE protocol.
type Mapping int

const (
	MappingGeneric Mapping = iota + 1
	MappingIntegrated
	MappingChipAuthentication
)

func (m Mapping) String() string {
	switch m {
	case MappingGeneric:
		return "GM"
	case MappingIntegrated:
		return "IM"
	case MappingChipAuthentication:
		return "CAM"
	default:
		return fmt.Sprintf("Mapping(%d)", int(m))
	}
}

// Algorithm describes the cryptographic suite identified by a PACE or
// Chip Authentication protocol OID.
type Algorithm struct {
	OID       asn1.ObjectIdentifier
	Agreement Agreement
	Mapping   Mapping // Only for PACE
	Cipher    sm.Cipher
	KeyLength int // In bytes
}

// Digest returns the hash function used by the key derivation function.
func (a Algorithm) Digest() crypto.Hash {
	if a.KeyLength > 16 {
		return crypto.SHA256
	}

	return crypto.SHA1
}

func (a Algorithm) String() string {
	s := a.Agreement.String()
	if a.Mapping != 0 {
		s += "-" + a.Mapping.String()
	}

	if a.Cipher == sm.DESede {
		return s + "-3DES-CBC-CBC"
	}

	return fmt.Sprintf("%s-AES-CBC-CMAC-%d", s, a.KeyLength*8)
}

// Object identifiers of BSI TR-03110 Part 3, Appendix A.
//
//nolint:gochecknoglobals
var (
	OIDStandardizedDomainParameters = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 1, 2}

	OIDPK     = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 1}
	OIDPKDH   = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 1, 1}
	OIDPKECDH = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 1, 2}

	OIDTA      = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 2}
	OIDTARSA   = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 2, 1}
	OIDTAECDSA = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 2, 2}

	OIDCA     = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 3}
	OIDCADH   = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 3, 1}
	OIDCAECDH = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 3, 2}

	OIDPACE = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 2, 2, 4}

	// ICAO Doc 9303 Part 11, Section 9.2.6
	OIDAA = asn1.ObjectIdentifier{2, 23, 136, 1, 1, 5}

	// BSI TR-03111, Section 5.2.1
	oidECDSAPlain = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 1, 1, 4, 1}

	// Roles of certificate holder authorization templates
	OIDRoleIS = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 3, 1, 2, 1}
	OIDRoleAT = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 3, 1, 2, 2}
	OIDRoleST = asn1.ObjectIdentifier{0, 4, 0, 127, 0, 7, 3, 1, 2, 3}
)

// Suffixes shared by the PACE and CA protocol identifiers.
const (
	suffix3DES = iota + 1
	suffixAES128
	suffixAES192
	suffixAES256
)

// PACE protocol identifiers.
//
//nolint:gochecknoglobals
var (
	OIDPACEDHGM3DES      = oidPACE(1, suffix3DES)
	OIDPACEDHGMAES128    = oidPACE(1, suffixAES128)
	OIDPACEDHGMAES192    = oidPACE(1, suffixAES192)
	OIDPACEDHGMAES256    = oidPACE(1, suffixAES256)
	OIDPACEECDHGM3DES    = oidPACE(2, suffix3DES)
	OIDPACEECDHGMAES128  = oidPACE(2, suffixAES128)
	OIDPACEECDHGMAES192  = oidPACE(2, suffixAES192)
	OIDPACEECDHGMAES256  = oidPACE(2, suffixAES256)
	OIDPACEDHIM3DES      = oidPACE(3, suffix3DES)
	OIDPACEDHIMAES128    = oidPACE(3, suffixAES128)
	OIDPACEDHIMAES192    = oidPACE(3, suffixAES192)
	OIDPACEDHIMAES256    = oidPACE(3, suffixAES256)
	OIDPACEECDHIM3DES    = oidPACE(4, suffix3DES)
	OIDPACEECDHIMAES128  = oidPACE(4, suffixAES128)
	OIDPACEECDHIMAES192  = oidPACE(4, suffixAES192)
	OIDPACEECDHIMAES256  = oidPACE(4, suffixAES256)
	OIDPACEECDHCAMAES128 = oidPACE(6, suffixAES128)
	OIDPACEECDHCAMAES192 = oidPACE(6, suffixAES192)
	OIDPACEECDHCAMAES256 = oidPACE(6, suffixAES256)
)

// Chip Authentication protocol identifiers.
//
//nolint:gochecknoglobals
var (
	OIDCADH3DES     = oidCA(1, suffix3DES)
	OIDCADHAES128   = oidCA(1, suffixAES128)
	OIDCADHAES192   = oidCA(1, suffixAES192)
	OIDCADHAES256   = oidCA(1, suffixAES256)
	OIDCAECDH3DES   = oidCA(2, suffix3DES)
	OIDCAECDHAES128 = oidCA(2, suffixAES128)
	OIDCAECDHAES192 = oidCA(2, suffixAES192)
	OIDCAECDHAES256 = oidCA(2, suffixAES256)
)

// Terminal Authentication signature algorithms.
//
//nolint:gochecknoglobals
var (
	OIDTARSAv15SHA1   = oidTA(1, 1)
	OIDTARSAv15SHA256 = oidTA(1, 2)
	OIDTARSAPSSSHA1   = oidTA(1, 3)
	OIDTARSAPSSSHA256 = oidTA(1, 4)
	OIDTARSAv15SHA512 = oidTA(1, 5)
	OIDTARSAPSSSHA512 = oidTA(1, 6)
	OIDTAECDSASHA1    = oidTA(2, 1)
	OIDTAECDSASHA224  = oidTA(2, 2)
	OIDTAECDSASHA256  = oidTA(2, 3)
	OIDTAECDSASHA384  = oidTA(2, 4)
	OIDTAECDSASHA512  = oidTA(2, 5)
)

func oidPACE(mapping, suffix int) asn1.ObjectIdentifier {
	return append(append(asn1.ObjectIdentifier{}, OIDPACE...), mapping, suffix)
}

func oidCA(agreement, suffix int) asn1.ObjectIdentifier {
	return append(append(asn1.ObjectIdentifier{}, OIDCA...), agreement, suffix)
}

func oidTA(kind, hash int) asn1.ObjectIdentifier {
	return append(append(asn1.ObjectIdentifier{}, OIDTA...), kind, hash)
}

// hasPrefix reports whether oid starts with prefix and has
// exactly n more components.
func hasPrefix(oid, prefix asn1.ObjectIdentifier, n int) bool {
	return len(oid) == len(prefix)+n && oid[:len(prefix)].Equal(prefix)
}

func algorithmsByOID(algs ...Algorithm) map[string]Algorithm {
	m := map[string]Algorithm{}
	for _, alg := range algs {
		m[alg.OID.String()] = alg
	}

	return m
}

//nolint:gochecknoglobals
var (
	paceAlgorithmsMap = algorithmsByOID(
		Algorithm{OIDPACEDHGM3DES, AgreementDH, MappingGeneric, sm.DESede, 16},
		Algorithm{OIDPACEDHGMAES128, AgreementDH, MappingGeneric, sm.AES, 16},
		Algorithm{OIDPACEDHGMAES192, AgreementDH, MappingGeneric, sm.AES, 24},
		Algorithm{OIDPACEDHGMAES256, AgreementDH, MappingGeneric, sm.AES, 32},
		Algorithm{OIDPACEECDHGM3DES, AgreementECDH, MappingGeneric, sm.DESede, 16},
		Algorithm{OIDPACEECDHGMAES128, AgreementECDH, MappingGeneric, sm.AES, 16},
		Algorithm{OIDPACEECDHGMAES192, AgreementECDH, MappingGeneric, sm.AES, 24},
		Algorithm{OIDPACEECDHGMAES256, AgreementECDH, MappingGeneric, sm.AES, 32},
		Algorithm{OIDPACEDHIM3DES, AgreementDH, MappingIntegrated, sm.DESede, 16},
		Algorithm{OIDPACEDHIMAES128, AgreementDH, MappingIntegrated, sm.AES, 16},
		Algorithm{OIDPACEDHIMAES192, AgreementDH, MappingIntegrated, sm.AES, 24},
		Algorithm{OIDPACEDHIMAES256, AgreementDH, MappingIntegrated, sm.AES, 32},
		Algorithm{OIDPACEECDHIM3DES, AgreementECDH, MappingIntegrated, sm.DESede, 16},
		Algorithm{OIDPACEECDHIMAES128, AgreementECDH, MappingIntegrated, sm.AES, 16},
		Algorithm{OIDPACEECDHIMAES192, AgreementECDH, MappingIntegrated, sm.AES, 24},
		Algorithm{OIDPACEECDHIMAES256, AgreementECDH, MappingIntegrated, sm.AES, 32},
		// Chip Authentication Mapping is only defined for AES
		Algorithm{OIDPACEECDHCAMAES128, AgreementECDH, MappingChipAuthentication, sm.AES, 16},
		Algorithm{OIDPACEECDHCAMAES192, AgreementECDH, MappingChipAuthentication, sm.AES, 24},
		Algorithm{OIDPACEECDHCAMAES256, AgreementECDH, MappingChipAuthentication, sm.AES, 32},
	)

	caAlgorithmsMap = algorithmsByOID(
		Algorithm{OIDCADH3DES, AgreementDH, 0, sm.DESede, 16},
		Algorithm{OIDCADHAES128, AgreementDH, 0, sm.AES, 16},
		Algorithm{OIDCADHAES192, AgreementDH, 0, sm.AES, 24},
		Algorithm{OIDCADHAES256, AgreementDH, 0, sm.AES, 32},
		Algorithm{OIDCAECDH3DES, AgreementECDH, 0, sm.DESede, 16},
		Algorithm{OIDCAECDHAES128, AgreementECDH, 0, sm.AES, 16},
		Algorithm{OIDCAECDHAES192, AgreementECDH, 0, sm.AES, 24},
		Algorithm{OIDCAECDHAES256, AgreementECDH, 0, sm.AES, 32},
	)

	signatureAlgorithmsMap = map[string]signatureAlgorithm{
		OIDTARSAv15SHA1.String():   {Hash: crypto.SHA1},
		OIDTARSAv15SHA256.String(): {Hash: crypto.SHA256},
		OIDTARSAPSSSHA1.String():   {Hash: crypto.SHA1, PSS: true},
		OIDTARSAPSSSHA256.String(): {Hash: crypto.SHA256, PSS: true},
		OIDTARSAv15SHA512.String(): {Hash: crypto.SHA512},
		OIDTARSAPSSSHA512.String(): {Hash: crypto.SHA512, PSS: true},
		OIDTAECDSASHA1.String():    {Hash: crypto.SHA1, ECDSA: true},
		OIDTAECDSASHA224.String():  {Hash: crypto.SHA224, ECDSA: true},
		OIDTAECDSASHA256.String():  {Hash: crypto.SHA256, ECDSA: true},
		OIDTAECDSASHA384.String():  {Hash: crypto.SHA384, ECDSA: true},
		OIDTAECDSASHA512.String():  {Hash: crypto.SHA512, ECDSA: true},
	}

	// BSI TR-03111, Section 5.2.1
	ecdsaPlainHashesMap = map[string]crypto.Hash{
		oidECDSAPlainHash(1).String(): crypto.SHA1,
		oidECDSAPlainHash(2).String(): crypto.SHA224,
		oidECDSAPlainHash(3).String(): crypto.SHA256,
		oidECDSAPlainHash(4).String(): crypto.SHA384,
		oidECDSAPlainHash(5).String(): crypto.SHA512,
	}
)

func oidECDSAPlainHash(hash int) asn1.ObjectIdentifier {
	return append(append(asn1.ObjectIdentifier{}, oidECDSAPlain...), hash)
}

// PACEAlgorithm resolves a PACE protocol identifier.
func PACEAlgorithm(oid asn1.ObjectIdentifier) (Algorithm, error) {
	alg, ok := paceAlgorithmsMap[oid.String()]
	if !ok {
		return Algorithm{}, fmt.Errorf("%w PACE protocol: %s", ErrUnsupported, oid)
	}

	return alg, nil
}

// CAAlgorithm resolves a Chip Authentication protocol identifier.
func CAAlgorithm(oid asn1.ObjectIdentifier) (Algorithm, error) {
	alg, ok := caAlgorithmsMap[oid.String()]
	if !ok {
		return Algorithm{}, fmt.Errorf("%w CA protocol: %s", ErrUnsupported, oid)
	}

	return alg, nil
}

// signatureAlgorithm describes a Terminal Authentication or
// Active Authentication signature scheme.
type signatureAlgorithm struct {
	Hash  crypto.Hash
	ECDSA bool
	PSS   bool
}

// lookupSignatureAlgorithm resolves a Terminal Authentication
// algorithm identifier.
func lookupSignatureAlgorithm(oid asn1.ObjectIdentifier) (signatureAlgorithm, error) {
	alg, ok := signatureAlgorithmsMap[oid.String()]
	if !ok {
		return signatureAlgorithm{}, fmt.Errorf("%w signature algorithm: %s", ErrUnsupported, oid)
	}

	return alg, nil
}

// ECDSAPlainHash returns the hash function of a plain ECDSA signature
// algorithm as announced for Active Authentication.
func ECDSAPlainHash(oid asn1.ObjectIdentifier) (crypto.Hash, error) {
	h, ok := ecdsaPlainHashesMap[oid.String()]
	if !ok {
		return 0, fmt.Errorf("%w signature algorithm: %s", ErrUnsupported, oid)
	}

	return h, nil
}
