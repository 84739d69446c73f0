// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var errInvalidSecurityInfo = errors.New("invalid security info")

// Algorithm identifiers of public keys
//
//nolint:gochecknoglobals
var (
	oidECPublicKey    = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidPrimeField     = asn1.ObjectIdentifier{1, 2, 840, 10045, 1, 1}
	oidDHPublicNumber = asn1.ObjectIdentifier{1, 2, 840, 10046, 2, 1}
)

// tagDG14 is the application tag wrapping the SecurityInfos in DG14.
const tagDG14 = cbasn1.Tag(0x6e)

// SecurityInfo is a single entry of the SecurityInfos found in
// EF.CardAccess, EF.CardSecurity and DG14.
type SecurityInfo interface {
	ProtocolOID() asn1.ObjectIdentifier
}

// PACEInfo announces a supported PACE protocol.
type PACEInfo struct {
	Protocol    asn1.ObjectIdentifier
	Version     int
	ParameterID int // -1 if absent
}

func (i *PACEInfo) ProtocolOID() asn1.ObjectIdentifier { return i.Protocol }

// PACEDomainParameterInfo carries proprietary domain parameters for PACE.
type PACEDomainParameterInfo struct {
	Protocol    asn1.ObjectIdentifier
	Parameters  DomainParameters
	ParameterID int // -1 if absent
}

func (i *PACEDomainParameterInfo) ProtocolOID() asn1.ObjectIdentifier { return i.Protocol }

// ChipAuthenticationInfo announces a supported Chip Authentication protocol.
type ChipAuthenticationInfo struct {
	Protocol asn1.ObjectIdentifier
	Version  int
	KeyID    *big.Int // nil if absent
}

func (i *ChipAuthenticationInfo) ProtocolOID() asn1.ObjectIdentifier { return i.Protocol }

// ChipAuthenticationPublicKeyInfo carries a static public key of the chip.
type ChipAuthenticationPublicKeyInfo struct {
	Protocol  asn1.ObjectIdentifier // id-PK-DH or id-PK-ECDH
	PublicKey PublicKey
	KeyID     *big.Int // nil if absent
}

func (i *ChipAuthenticationPublicKeyInfo) ProtocolOID() asn1.ObjectIdentifier { return i.Protocol }

// TerminalAuthenticationInfo announces support for Terminal Authentication.
type TerminalAuthenticationInfo struct {
	Protocol asn1.ObjectIdentifier
	Version  int
}

func (i *TerminalAuthenticationInfo) ProtocolOID() asn1.ObjectIdentifier { return i.Protocol }

// ActiveAuthenticationInfo announces the signature algorithm of
// Active Authentication with ECDSA keys.
type ActiveAuthenticationInfo struct {
	Protocol           asn1.ObjectIdentifier
	Version            int
	SignatureAlgorithm asn1.ObjectIdentifier
}

func (i *ActiveAuthenticationInfo) ProtocolOID() asn1.ObjectIdentifier { return i.Protocol }

// UnknownSecurityInfo is a SecurityInfo of an unsupported protocol.
type UnknownSecurityInfo struct {
	Protocol asn1.ObjectIdentifier
	Raw      []byte
}

func (i *UnknownSecurityInfo) ProtocolOID() asn1.ObjectIdentifier { return i.Protocol }

// SecurityInfos is the set of SecurityInfo announced by a chip.
type SecurityInfos []SecurityInfo

// PACEInfos returns all PACEInfos.
func (s SecurityInfos) PACEInfos() (infos []*PACEInfo) {
	for _, si := range s {
		if i, ok := si.(*PACEInfo); ok {
			infos = append(infos, i)
		}
	}

	return infos
}

// ChipAuthenticationInfos returns all ChipAuthenticationInfos.
func (s SecurityInfos) ChipAuthenticationInfos() (infos []*ChipAuthenticationInfo) {
	for _, si := range s {
		if i, ok := si.(*ChipAuthenticationInfo); ok {
			infos = append(infos, i)
		}
	}

	return infos
}

// ChipAuthenticationPublicKeyInfos returns all ChipAuthenticationPublicKeyInfos.
func (s SecurityInfos) ChipAuthenticationPublicKeyInfos() (infos []*ChipAuthenticationPublicKeyInfo) {
	for _, si := range s {
		if i, ok := si.(*ChipAuthenticationPublicKeyInfo); ok {
			infos = append(infos, i)
		}
	}

	return infos
}

// ChipAuthenticationInfoFor returns the ChipAuthenticationInfo matching the
// key identifier of a public key, or nil if there is none.
func (s SecurityInfos) ChipAuthenticationInfoFor(key *ChipAuthenticationPublicKeyInfo) *ChipAuthenticationInfo {
	for _, i := range s.ChipAuthenticationInfos() {
		if key.KeyID == nil || i.KeyID == nil || key.KeyID.Cmp(i.KeyID) == 0 {
			return i
		}
	}

	return nil
}

// ParseSecurityInfos parses the DER encoded SecurityInfos of EF.CardAccess
// or DG14. Entries of unknown protocols are returned as UnknownSecurityInfo.
//
// See: BSI TR-03110 Part 3, Appendix A.1 and ICAO Doc 9303 Part 11, Section 9.2
func ParseSecurityInfos(buf []byte) (SecurityInfos, error) {
	input := cryptobyte.String(buf)

	if input.PeekASN1Tag(tagDG14) {
		var dg14 cryptobyte.String
		if !input.ReadASN1(&dg14, tagDG14) || !input.Empty() {
			return nil, fmt.Errorf("%w: DG14", errInvalidSecurityInfo)
		}

		input = dg14
	}

	var set cryptobyte.String
	if !input.ReadASN1(&set, cbasn1.SET) || !input.Empty() {
		return nil, fmt.Errorf("%w: expected SET", errInvalidSecurityInfo)
	}

	var infos SecurityInfos

	for !set.Empty() {
		var raw cryptobyte.String
		if !set.ReadASN1Element(&raw, cbasn1.SEQUENCE) {
			return nil, fmt.Errorf("%w: expected SEQUENCE", errInvalidSecurityInfo)
		}

		info, err := parseSecurityInfo(raw)
		if err != nil {
			return nil, err
		}

		infos = append(infos, info)
	}

	return infos, nil
}

func parseSecurityInfo(raw cryptobyte.String) (SecurityInfo, error) {
	var (
		seq cryptobyte.String
		oid asn1.ObjectIdentifier
	)

	elem := raw
	if !elem.ReadASN1(&seq, cbasn1.SEQUENCE) || !seq.ReadASN1ObjectIdentifier(&oid) {
		return nil, fmt.Errorf("%w: missing protocol", errInvalidSecurityInfo)
	}

	var (
		info SecurityInfo
		err  error
	)

	switch {
	case hasPrefix(oid, OIDPACE, 2):
		info, err = parsePACEInfo(oid, seq)

	case hasPrefix(oid, OIDPACE, 1):
		info, err = parsePACEDomainParameterInfo(oid, seq)

	case hasPrefix(oid, OIDCA, 2):
		info, err = parseChipAuthenticationInfo(oid, seq)

	case hasPrefix(oid, OIDPK, 1):
		info, err = parseChipAuthenticationPublicKeyInfo(oid, seq)

	case oid.Equal(OIDTA):
		info, err = parseTerminalAuthenticationInfo(oid, seq)

	case oid.Equal(OIDAA):
		info, err = parseActiveAuthenticationInfo(oid, seq)

	default:
		return &UnknownSecurityInfo{
			Protocol: oid,
			Raw:      raw,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errInvalidSecurityInfo, oid, err)
	}

	return info, nil
}

func readVersion(s *cryptobyte.String) (int, error) {
	var v int
	if !s.ReadASN1Integer(&v) {
		return 0, fmt.Errorf("%w: version", errMissingTag)
	}

	return v, nil
}

func parsePACEInfo(oid asn1.ObjectIdentifier, s cryptobyte.String) (*PACEInfo, error) {
	info := &PACEInfo{
		Protocol:    oid,
		ParameterID: -1,
	}

	var err error
	if info.Version, err = readVersion(&s); err != nil {
		return nil, err
	}

	if id, ok := readOptionalInteger(&s); ok {
		info.ParameterID = int(id.Int64())
	}

	return info, nil
}

func parsePACEDomainParameterInfo(oid asn1.ObjectIdentifier, s cryptobyte.String) (*PACEDomainParameterInfo, error) {
	info := &PACEDomainParameterInfo{
		Protocol:    oid,
		ParameterID: -1,
	}

	var algID cryptobyte.String
	if !s.ReadASN1(&algID, cbasn1.SEQUENCE) {
		return nil, fmt.Errorf("%w: domain parameters", errMissingTag)
	}

	var err error
	if info.Parameters, err = parseAlgorithmIdentifier(algID); err != nil {
		return nil, err
	}

	if id, ok := readOptionalInteger(&s); ok {
		info.ParameterID = int(id.Int64())
	}

	return info, nil
}

func parseChipAuthenticationInfo(oid asn1.ObjectIdentifier, s cryptobyte.String) (*ChipAuthenticationInfo, error) {
	info := &ChipAuthenticationInfo{
		Protocol: oid,
	}

	var err error
	if info.Version, err = readVersion(&s); err != nil {
		return nil, err
	}

	info.KeyID, _ = readOptionalInteger(&s)

	return info, nil
}

func parseChipAuthenticationPublicKeyInfo(oid asn1.ObjectIdentifier, s cryptobyte.String) (*ChipAuthenticationPublicKeyInfo, error) {
	info := &ChipAuthenticationPublicKeyInfo{
		Protocol: oid,
	}

	var spki cryptobyte.String
	if !s.ReadASN1(&spki, cbasn1.SEQUENCE) {
		return nil, fmt.Errorf("%w: public key", errMissingTag)
	}

	var err error
	if info.PublicKey, err = parseSubjectPublicKeyInfo(spki); err != nil {
		return nil, err
	}

	info.KeyID, _ = readOptionalInteger(&s)

	return info, nil
}

func parseTerminalAuthenticationInfo(oid asn1.ObjectIdentifier, s cryptobyte.String) (*TerminalAuthenticationInfo, error) {
	v, err := readVersion(&s)
	if err != nil {
		return nil, err
	}

	return &TerminalAuthenticationInfo{
		Protocol: oid,
		Version:  v,
	}, nil
}

func parseActiveAuthenticationInfo(oid asn1.ObjectIdentifier, s cryptobyte.String) (*ActiveAuthenticationInfo, error) {
	info := &ActiveAuthenticationInfo{
		Protocol: oid,
	}

	var err error
	if info.Version, err = readVersion(&s); err != nil {
		return nil, err
	}

	if !s.ReadASN1ObjectIdentifier(&info.SignatureAlgorithm) {
		return nil, fmt.Errorf("%w: signature algorithm", errMissingTag)
	}

	return info, nil
}

// parseSubjectPublicKeyInfo parses a public key with its domain parameters.
func parseSubjectPublicKeyInfo(spki cryptobyte.String) (PublicKey, error) {
	var (
		algID cryptobyte.String
		bits  asn1.BitString
	)

	if !spki.ReadASN1(&algID, cbasn1.SEQUENCE) || !spki.ReadASN1BitString(&bits) {
		return nil, fmt.Errorf("%w: SubjectPublicKeyInfo", errUnmarshal)
	}

	params, err := parseAlgorithmIdentifier(algID)
	if err != nil {
		return nil, err
	}

	switch p := params.(type) {
	case *ECParameters:
		return ParsePublicKey(p, bits.RightAlign())

	case *DHParameters:
		y := new(big.Int)
		if s := cryptobyte.String(bits.RightAlign()); !s.ReadASN1Integer(y) {
			return nil, fmt.Errorf("%w: DH public key", errUnmarshal)
		}

		return ParsePublicKey(p, y.Bytes())
	}

	return nil, fmt.Errorf("%w domain parameters: %T", ErrUnsupported, params)
}

// parseAlgorithmIdentifier parses the domain parameters of an
// AlgorithmIdentifier.
func parseAlgorithmIdentifier(algID cryptobyte.String) (DomainParameters, error) {
	var oid asn1.ObjectIdentifier
	if !algID.ReadASN1ObjectIdentifier(&oid) {
		return nil, fmt.Errorf("%w: algorithm", errMissingTag)
	}

	switch {
	case oid.Equal(OIDStandardizedDomainParameters):
		var id int
		if !algID.ReadASN1Integer(&id) {
			return nil, fmt.Errorf("%w: parameter ID", errMissingTag)
		}

		return StandardizedDomainParameters(id)

	case oid.Equal(oidECPublicKey):
		if algID.PeekASN1Tag(cbasn1.OBJECT_IDENTIFIER) {
			var curve asn1.ObjectIdentifier
			if !algID.ReadASN1ObjectIdentifier(&curve) {
				return nil, fmt.Errorf("%w: named curve", errUnmarshal)
			}

			return namedCurve(curve)
		}

		var ecParams cryptobyte.String
		if !algID.ReadASN1(&ecParams, cbasn1.SEQUENCE) {
			return nil, fmt.Errorf("%w: implicit curve parameters", ErrUnsupported)
		}

		return parseECParameters(ecParams)

	case oid.Equal(oidDHPublicNumber):
		var dhParams cryptobyte.String
		if !algID.ReadASN1(&dhParams, cbasn1.SEQUENCE) {
			return nil, fmt.Errorf("%w: DH parameters", errMissingTag)
		}

		return parseDHParameters(dhParams)
	}

	return nil, fmt.Errorf("%w algorithm: %s", ErrUnsupported, oid)
}

// parseECParameters parses explicit curve parameters.
//
// See: BSI TR-03111, Section 5.1.1
func parseECParameters(s cryptobyte.String) (DomainParameters, error) {
	var (
		version        int
		fieldType      asn1.ObjectIdentifier
		fieldID, curve cryptobyte.String
		a, b, base     cryptobyte.String
	)

	p, n := new(big.Int), new(big.Int)

	if !s.ReadASN1Integer(&version) ||
		!s.ReadASN1(&fieldID, cbasn1.SEQUENCE) ||
		!fieldID.ReadASN1ObjectIdentifier(&fieldType) {
		return nil, fmt.Errorf("%w: curve parameters", errUnmarshal)
	}

	if !fieldType.Equal(oidPrimeField) {
		return nil, fmt.Errorf("%w field: %s", ErrUnsupported, fieldType)
	}

	if !fieldID.ReadASN1Integer(p) ||
		!s.ReadASN1(&curve, cbasn1.SEQUENCE) ||
		!curve.ReadASN1(&a, cbasn1.OCTET_STRING) ||
		!curve.ReadASN1(&b, cbasn1.OCTET_STRING) ||
		!s.ReadASN1(&base, cbasn1.OCTET_STRING) ||
		!s.ReadASN1Integer(n) {
		return nil, fmt.Errorf("%w: curve parameters", errUnmarshal)
	}

	params := &ECParameters{
		P:        p,
		A:        new(big.Int).SetBytes(a),
		B:        new(big.Int).SetBytes(b),
		N:        n,
		Cofactor: big.NewInt(1),
	}

	if h, ok := readOptionalInteger(&s); ok {
		params.Cofactor = h
	}

	// The generator is decoded once the curve is known
	params.Gx, params.Gy = big.NewInt(0), big.NewInt(0)

	gx, gy, err := params.Unmarshal(base)
	if err != nil {
		return nil, fmt.Errorf("invalid generator: %w", err)
	}

	params.Gx, params.Gy = gx, gy

	// Prefer the named instance of well-known curves
	if id := StandardizedParameterID(params); id >= 0 {
		return standardizedParameters[id], nil
	}

	return params, nil
}

// parseDHParameters parses the domain parameters of X9.42.
func parseDHParameters(s cryptobyte.String) (DomainParameters, error) {
	p, g := new(big.Int), new(big.Int)

	if !s.ReadASN1Integer(p) || !s.ReadASN1Integer(g) {
		return nil, fmt.Errorf("%w: DH parameters", errUnmarshal)
	}

	params := &DHParameters{
		P: p,
		G: g,
	}

	params.Q, _ = readOptionalInteger(&s)

	if id := StandardizedParameterID(params); id >= 0 {
		return standardizedParameters[id], nil
	}

	return params, nil
}
