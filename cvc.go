// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"encoding/asn1"
	"errors"
	"fmt"
	"time"

	"cunicu.li/go-iso7816/encoding/tlv"
)

var errParseCert = errors.New("failed to parse certificate")

// Role is the role of a certificate holder as encoded in the
// certificate holder authorization template.
type Role byte

const (
	RoleTerminal Role = iota
	RoleDVNonOfficial
	RoleDVOfficial
	RoleCVCA
)

func (r Role) String() string {
	switch r {
	case RoleTerminal:
		return "Terminal"
	case RoleDVNonOfficial:
		return "DV (non-official/foreign)"
	case RoleDVOfficial:
		return "DV (official domestic)"
	case RoleCVCA:
		return "CVCA"
	default:
		return fmt.Sprintf("Role(%d)", byte(r))
	}
}

// CVCertificate is a card verifiable certificate used for Terminal Authentication.
//
// See: BSI TR-03110 Part 3, Appendix C.1
type CVCertificate struct {
	// Raw is the complete encoded certificate.
	Raw []byte

	// Body and Signature are the encoded data objects sent to the chip by
	// PSO:Verify Certificate.
	Body      []byte
	Signature []byte

	ProfileIdentifier byte
	CAR               string // Certification authority reference
	CHR               string // Certificate holder reference

	PublicKeyOID asn1.ObjectIdentifier
	PublicKey    tlv.TagValues

	// Certificate holder authorization template
	RoleOID       asn1.ObjectIdentifier
	Role          Role
	Authorization []byte

	EffectiveDate  time.Time
	ExpirationDate time.Time
}

// IsTerminal reports whether the holder is an inspection system.
func (c *CVCertificate) IsTerminal() bool {
	return c.Role == RoleTerminal && c.RoleOID.Equal(OIDRoleIS)
}

// ParseCVCertificate parses a single card verifiable certificate.
func ParseCVCertificate(buf []byte) (*CVCertificate, error) {
	tvs, err := tlv.DecodeBER(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errParseCert, err)
	}

	_, cert, ok := tvs.Get(tagCVCertificate)
	if !ok || len(tvs) != 1 {
		return nil, fmt.Errorf("%w: %w: certificate", errParseCert, errMissingTag)
	}

	bodyValue, body, ok := cert.Get(tagCertificateBody)
	if !ok {
		return nil, fmt.Errorf("%w: %w: certificate body", errParseCert, errMissingTag)
	}

	sig, _, ok := cert.Get(tagSignature)
	if !ok {
		return nil, fmt.Errorf("%w: %w: signature", errParseCert, errMissingTag)
	}

	c := &CVCertificate{
		Raw: buf,
	}

	if c.Body, err = tlv.New(tagCertificateBody, bodyValue).MarshalBER(); err != nil {
		return nil, err
	}

	if c.Signature, err = tlv.New(tagSignature, sig).MarshalBER(); err != nil {
		return nil, err
	}

	if v, _, ok := body.Get(tagProfileIdentifier); ok && len(v) == 1 {
		c.ProfileIdentifier = v[0]
	}

	car, _, ok := body.Get(tagCAR)
	if !ok {
		return nil, fmt.Errorf("%w: %w: authority reference", errParseCert, errMissingTag)
	}
	c.CAR = string(car)

	chr, _, ok := body.Get(tagCHR)
	if !ok {
		return nil, fmt.Errorf("%w: %w: holder reference", errParseCert, errMissingTag)
	}
	c.CHR = string(chr)

	_, pk, ok := body.Get(tagPublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %w: public key", errParseCert, errMissingTag)
	}

	if c.PublicKeyOID, err = childOID(pk); err != nil {
		return nil, fmt.Errorf("%w: public key: %w", errParseCert, err)
	}
	c.PublicKey = pk[1:]

	_, chat, ok := body.Get(tagCHAT)
	if !ok {
		return nil, fmt.Errorf("%w: %w: holder authorization", errParseCert, errMissingTag)
	}

	if c.RoleOID, err = childOID(chat); err != nil {
		return nil, fmt.Errorf("%w: holder authorization: %w", errParseCert, err)
	}

	auth, _, ok := chat.Get(tagDiscretionaryData)
	if !ok || len(auth) == 0 {
		return nil, fmt.Errorf("%w: %w: holder authorization", errParseCert, errMissingTag)
	}
	c.Authorization = auth
	c.Role = Role(auth[0] >> 6)

	if v, _, ok := body.Get(tagEffectiveDate); ok {
		if c.EffectiveDate, err = parseCVCDate(v); err != nil {
			return nil, err
		}
	}

	if v, _, ok := body.Get(tagExpirationDate); ok {
		if c.ExpirationDate, err = parseCVCDate(v); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// childOID returns the object identifier which leads a template.
func childOID(tvs tlv.TagValues) (asn1.ObjectIdentifier, error) {
	if len(tvs) == 0 || tvs[0].Tag != tagPublicKeyOID {
		return nil, fmt.Errorf("%w: OID", errMissingTag)
	}

	return unmarshalOID(tvs[0].Value)
}

// parseCVCDate decodes a date of six unpacked BCD digits YYMMDD.
func parseCVCDate(v []byte) (time.Time, error) {
	if len(v) != 6 {
		return time.Time{}, fmt.Errorf("%w: %w of date", errParseCert, errUnexpectedLength)
	}

	var d [3]int
	for i, b := range v {
		if b > 9 {
			return time.Time{}, fmt.Errorf("%w: invalid digit in date", errParseCert)
		}
		d[i/2] = d[i/2]*10 + int(b)
	}

	return time.Date(2000+d[0], time.Month(d[1]), d[2], 0, 0, 0, 0, time.UTC), nil
}
