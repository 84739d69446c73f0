// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"crypto/subtle"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"
	"math/big"

	iso "cunicu.li/go-iso7816"
	"cunicu.li/go-iso7816/encoding/tlv"

	"cunicu.li/go-eac/sm"
)

var (
	errUnexpectedMappingData = errors.New("unexpected mapping data")
	errNoChipAuthentication  = errors.New("no chip authentication data")
)

// PACEResult is the outcome of a successful PACE run.
type PACEResult struct {
	Key       AccessKey
	Algorithm Algorithm
	Mapping   NonceMapping

	// PCDKey is the ephemeral key pair of the terminal.
	PCDKey *KeyPair

	// PICCPublicKey is the ephemeral public key of the chip.
	PICCPublicKey PublicKey

	SessionKeys SessionKeys

	// Certification authority references for Terminal Authentication
	// as optionally returned by the chip.
	CARecent   string
	CAPrevious string

	// ChipAuthenticationData is the decrypted CA_IC of the
	// chip authentication mapping.
	ChipAuthenticationData []byte
}

// VerifyChipAuthenticationMapping checks the chip authentication data of
// the chip authentication mapping against the static public key of the
// chip as read from the card security object: [CA_IC]·PK_IC = PK_Map,IC.
func (r *PACEResult) VerifyChipAuthenticationMapping(pub PublicKey) error {
	if r.Algorithm.Mapping != MappingChipAuthentication || r.ChipAuthenticationData == nil {
		return errNoChipAuthentication
	}

	m, ok := r.Mapping.(*GenericMappingECDH)
	if !ok {
		return fmt.Errorf("%w mapping: %T", ErrUnsupported, r.Mapping)
	}

	pk, ok := pub.(*ECPublicKey)
	if !ok || !pk.Params.Equal(m.Static) {
		return fmt.Errorf("%w: %w", ErrSecurityViolation, errMismatchingParameters)
	}

	x, y := m.Static.ScalarMult(pk.X, pk.Y, r.ChipAuthenticationData)
	if x == nil || x.Cmp(m.PICCKey.X) != 0 || y.Cmp(m.PICCKey.Y) != 0 {
		return fmt.Errorf("%w: chip authentication mapping failed", ErrSecurityViolation)
	}

	return nil
}

// DoPACEWithInfo performs PACE with the protocol and standardized domain
// parameters announced by a PACEInfo of EF.CardAccess.
func (c *Card) DoPACEWithInfo(key AccessKey, info *PACEInfo) (*PACEResult, error) {
	if info.ParameterID < 0 {
		return nil, fmt.Errorf("%w: PACEInfo without standardized domain parameters", ErrUnsupported)
	}

	params, err := StandardizedDomainParameters(info.ParameterID)
	if err != nil {
		return nil, err
	}

	return c.DoPACE(key, info.Protocol, params, info.ParameterID)
}

// DoPACE performs the Password Authenticated Connection Establishment
// protocol and restarts secure messaging with the negotiated session keys.
//
// The parameterID is announced to the chip if it is not negative.
//
// See: BSI TR-03110 Part 2, Section 3.2 and ICAO Doc 9303 Part 11, Section 4.4
func (c *Card) DoPACE(key AccessKey, oid asn1.ObjectIdentifier, params DomainParameters, parameterID int) (*PACEResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	alg, err := PACEAlgorithm(oid)
	if err != nil {
		return nil, err
	}

	if err := checkAgreement(alg.Agreement, params); err != nil {
		return nil, err
	}

	if err := checkMapping(alg.Mapping, params); err != nil {
		return nil, err
	}

	seed, err := key.KeySeed()
	if err != nil {
		return nil, fmt.Errorf("failed to derive key seed: %w", err)
	}

	c.log.Debugf("Performing PACE with %s using %s and %s", key.Reference(), alg, params)

	kPi := deriveKey(seed, kdfPassword, alg.Cipher, alg.KeyLength)

	if err := c.setAuthenticationTemplatePACE(oid, key.Reference(), parameterID); err != nil {
		return nil, err
	}

	// Step 1: Encrypted nonce
	s, err := c.paceNonce(alg, kPi)
	if err != nil {
		return nil, err
	}

	// Step 2: Map nonce
	mapping, err := c.paceMapNonce(alg, params, s)
	if err != nil {
		return nil, err
	}

	// Step 3: Key agreement
	pcdKey, piccKey, secret, err := c.paceKeyAgreement(mapping.EphemeralParameters())
	if err != nil {
		return nil, err
	}

	keys := deriveSessionKeys(secret, alg.Cipher, alg.KeyLength)

	res := &PACEResult{
		Key:           key,
		Algorithm:     alg,
		Mapping:       mapping,
		PCDKey:        pcdKey,
		PICCPublicKey: piccKey,
		SessionKeys:   keys,
	}

	// Step 4: Mutual authentication
	if err := c.paceMutualAuthenticate(res); err != nil {
		return nil, err
	}

	if err := c.setSecureMessaging(keys); err != nil {
		return nil, err
	}

	c.log.Infof("Established secure messaging with PACE using %s", alg)

	return res, nil
}

func checkAgreement(a Agreement, params DomainParameters) error {
	switch params.(type) {
	case *ECParameters:
		if a == AgreementECDH {
			return nil
		}

	case *DHParameters:
		if a == AgreementDH {
			return nil
		}
	}

	return fmt.Errorf("%w: %s domain parameters for %s", ErrUnsupported, params, a)
}

// checkMapping rejects domain parameters the integrated mapping can not handle.
func checkMapping(m Mapping, params DomainParameters) error {
	if m != MappingIntegrated {
		return nil
	}

	switch p := params.(type) {
	case *ECParameters:
		if !p.canMapToPoint() {
			return errUnsupportedField
		}

	case *DHParameters:
		if !p.canMapToGroup() {
			return errMissingSubgroupOrder
		}
	}

	return nil
}

// setAuthenticationTemplatePACE selects the protocol and password with MSE:Set AT.
func (c *Card) setAuthenticationTemplatePACE(oid asn1.ObjectIdentifier, ref KeyReference, parameterID int) error {
	oidBytes, err := marshalOID(oid)
	if err != nil {
		return err
	}

	tvs := []tlv.TagValue{
		tlv.New(tagCryptographicMechanism, oidBytes),
		tlv.New(tagPublicKeyReference, byte(ref)),
	}

	if parameterID >= 0 {
		tvs = append(tvs, tlv.New(tagPrivateKeyReference, byte(parameterID)))
	}

	data, err := tlv.EncodeBER(tvs...)
	if err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	resp, err := c.transceive(&iso.CAPDU{
		Ins:  iso.InsManageSecurityEnvironment,
		P1:   0xc1,
		P2:   0xa4,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("failed to set authentication template: %w", err)
	}

	code := resp.Code()
	switch {
	case code.IsSuccess():
		return nil

	// A PIN with remaining retries can still be used
	case code[0] == 0x63 && code[1]&0xf0 == 0xc0 && code[1]&0x0f > 0:
		c.log.Warnf("%s has %d retries remaining", ref, code[1]&0x0f)
		return nil
	}

	return fmt.Errorf("failed to set authentication template: %w", accessDenied(wrapCode(code)))
}

func (c *Card) paceNonce(alg Algorithm, kPi []byte) ([]byte, error) {
	resp, err := c.generalAuthenticate(false)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", accessDenied(err))
	}

	z, _, ok := resp.Get(tagEncryptedNonce)
	if !ok {
		return nil, fmt.Errorf("%w: encrypted nonce", errMissingTag)
	}

	s, err := sm.Decrypt(alg.Cipher, kPi, nil, z)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt nonce: %w", err)
	}

	return s, nil
}

func (c *Card) paceMapNonce(alg Algorithm, params DomainParameters, s []byte) (NonceMapping, error) {
	switch alg.Mapping {
	case MappingGeneric, MappingChipAuthentication:
		pcdKey, err := GenerateKey(params, c.Rand)
		if err != nil {
			return nil, fmt.Errorf("failed to generate mapping key: %w", err)
		}

		piccKey, err := c.exchangePublicKeys(tagMappingDataPCD, tagMappingDataPICC, pcdKey, params)
		if err != nil {
			return nil, fmt.Errorf("failed to map nonce: %w", err)
		}

		h, err := pcdKey.sharedPoint(piccKey)
		if err != nil {
			return nil, err
		}

		switch p := params.(type) {
		case *ECParameters:
			eph, err := mapNonceGMWithECDH(s, p, h.(*ECPublicKey)) //nolint:forcetypeassert
			if err != nil {
				return nil, err
			}

			return &GenericMappingECDH{
				S:         s,
				Static:    p,
				Ephemeral: eph,
				PCDKey:    pcdKey,
				PICCKey:   piccKey.(*ECPublicKey), //nolint:forcetypeassert
			}, nil

		case *DHParameters:
			eph, err := mapNonceGMWithDH(s, p, h.(*DHPublicKey)) //nolint:forcetypeassert
			if err != nil {
				return nil, err
			}

			return &GenericMappingDH{
				S:         s,
				Static:    p,
				Ephemeral: eph,
				PCDKey:    pcdKey,
				PICCKey:   piccKey.(*DHPublicKey), //nolint:forcetypeassert
			}, nil
		}

	case MappingIntegrated:
		t := make([]byte, len(s))
		if _, err := io.ReadFull(c.Rand, t); err != nil {
			return nil, fmt.Errorf("failed to generate nonce: %w", err)
		}

		resp, err := c.generalAuthenticate(false, tlv.New(tagMappingDataPCD, t))
		if err != nil {
			return nil, fmt.Errorf("failed to map nonce: %w", err)
		}

		if v, _, ok := resp.Get(tagMappingDataPICC); ok && len(v) > 0 {
			return nil, fmt.Errorf("%w: %w", ErrSecurityViolation, errUnexpectedMappingData)
		}

		eph, err := mapNonceIM(s, t, params, alg.Cipher, alg.KeyLength)
		if err != nil {
			return nil, err
		}

		return &IntegratedMapping{
			S:         s,
			T:         t,
			Static:    params,
			Ephemeral: eph,
		}, nil
	}

	return nil, fmt.Errorf("%w mapping: %s", ErrUnsupported, alg.Mapping)
}

// exchangePublicKeys sends the public key of the terminal and parses the
// public key of the chip with the given domain parameters.
func (c *Card) exchangePublicKeys(tagPCD, tagPICC tlv.Tag, kp *KeyPair, params DomainParameters) (PublicKey, error) {
	resp, err := c.generalAuthenticate(false, tlv.New(tagPCD, kp.Public.Bytes()))
	if err != nil {
		return nil, err
	}

	buf, _, ok := resp.Get(tagPICC)
	if !ok {
		return nil, fmt.Errorf("%w: public key of chip", errMissingTag)
	}

	pub, err := ParsePublicKey(params, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSecurityViolation, err)
	}

	if pub.Equal(kp.Public) {
		return nil, fmt.Errorf("%w: %w", ErrSecurityViolation, errEqualKeys)
	}

	return pub, nil
}

func (c *Card) paceKeyAgreement(params DomainParameters) (*KeyPair, PublicKey, []byte, error) {
	pcdKey, err := GenerateKey(params, c.Rand)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	// The key of the chip is parsed with our own ephemeral parameters
	piccKey, err := c.exchangePublicKeys(tagEphemeralKeyPCD, tagEphemeralKeyPICC, pcdKey, params)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to perform key agreement: %w", err)
	}

	secret, err := pcdKey.SharedSecret(piccKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %w", ErrSecurityViolation, err)
	}

	return pcdKey, piccKey, secret, nil
}

// authenticationToken computes the token over the ephemeral public key of the peer.
func authenticationToken(alg Algorithm, kMAC []byte, pub PublicKey) ([]byte, error) {
	pkdo, err := publicKeyDataObject(alg.OID, pub)
	if err != nil {
		return nil, err
	}

	return sm.Checksum(alg.Cipher, kMAC, pkdo)
}

func (c *Card) paceMutualAuthenticate(res *PACEResult) error {
	alg, keys := res.Algorithm, res.SessionKeys

	tPCD, err := authenticationToken(alg, keys.MAC, res.PICCPublicKey)
	if err != nil {
		return err
	}

	tPICCExpected, err := authenticationToken(alg, keys.MAC, res.PCDKey.Public)
	if err != nil {
		return err
	}

	resp, err := c.generalAuthenticate(true, tlv.New(tagTokenPCD, tPCD))
	if err != nil {
		return fmt.Errorf("failed to authenticate: %w", accessDenied(err))
	}

	tPICC, _, ok := resp.Get(tagTokenPICC)
	if !ok {
		return fmt.Errorf("%w: authentication token", errMissingTag)
	}

	if subtle.ConstantTimeCompare(tPICC, tPICCExpected) != 1 {
		return fmt.Errorf("%w: %w", ErrAccessDenied, errTokenMismatch)
	}

	if car, _, ok := resp.Get(tagCARecent); ok {
		res.CARecent = string(car)
	}

	if car, _, ok := resp.Get(tagCAPrevious); ok {
		res.CAPrevious = string(car)
	}

	if alg.Mapping == MappingChipAuthentication {
		enc, _, ok := resp.Get(tagEncryptedChipData)
		if !ok {
			return fmt.Errorf("%w: encrypted chip authentication data", errMissingTag)
		}

		if res.ChipAuthenticationData, err = decryptChipAuthenticationData(keys, enc); err != nil {
			return fmt.Errorf("%w: %w", ErrSecurityViolation, err)
		}
	}

	return nil
}

// decryptChipAuthenticationData decrypts CA_IC with K_enc and an IV of all ones.
func decryptChipAuthenticationData(keys SessionKeys, enc []byte) ([]byte, error) {
	iv := make([]byte, keys.Cipher.BlockSize())
	for i := range iv {
		iv[i] = 0xff
	}

	padded, err := sm.Decrypt(keys.Cipher, keys.Enc, iv, enc)
	if err != nil {
		return nil, err
	}

	data, err := sm.Unpad(padded)
	if err != nil {
		return nil, err
	}

	if new(big.Int).SetBytes(data).Sign() == 0 {
		return nil, errNoChipAuthentication
	}

	return data, nil
}
