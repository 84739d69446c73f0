// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"encoding/asn1"
	"fmt"
	"math/big"

	iso "cunicu.li/go-iso7816"
	"cunicu.li/go-iso7816/encoding/tlv"

	"cunicu.li/go-eac/sm"
)

// caChunkSize is the size of the command data fragments if the chip
// rejects the public key in a single General Authenticate command.
const caChunkSize = 224

// CAResult is the outcome of a successful Chip Authentication.
type CAResult struct {
	KeyID         *big.Int
	Algorithm     Algorithm
	PublicKeyOID  asn1.ObjectIdentifier
	PICCPublicKey PublicKey

	// PCDKey is the ephemeral key pair of the terminal.
	PCDKey *KeyPair

	// PCDKeyHash is the compressed ephemeral public key of the
	// terminal which is signed during Terminal Authentication.
	PCDKeyHash []byte

	SessionKeys SessionKeys
}

// DoCAWithInfo performs Chip Authentication with a key announced in DG14.
// The info may be nil in which case the protocol is inferred from the key.
func (c *Card) DoCAWithInfo(info *ChipAuthenticationInfo, key *ChipAuthenticationPublicKeyInfo) (*CAResult, error) {
	var oid asn1.ObjectIdentifier
	if info != nil {
		oid = info.Protocol
	}

	return c.DoCA(key.KeyID, oid, key.Protocol, key.PublicKey)
}

// DoCA performs Chip Authentication version 1 with the static public key of
// the chip and restarts secure messaging with the new session keys.
//
// It requires an established secure channel from BAC or PACE.
//
// See: BSI TR-03110 Part 3, Section 3.4 and ICAO Doc 9303 Part 11, Section 6.2
func (c *Card) DoCA(keyID *big.Int, oid, publicKeyOID asn1.ObjectIdentifier, piccPublicKey PublicKey) (*CAResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if piccPublicKey == nil {
		return nil, fmt.Errorf("%w: missing public key of chip", ErrUnsupported)
	}

	if oid == nil {
		oid = c.inferCAProtocol(publicKeyOID, piccPublicKey)
	}

	alg, err := CAAlgorithm(oid)
	if err != nil {
		return nil, err
	}

	params := piccPublicKey.Parameters()
	if err := checkAgreement(alg.Agreement, params); err != nil {
		return nil, err
	}

	if c.wrapper == nil {
		return nil, errNoSecureChannel
	}

	c.log.Debugf("Performing chip authentication with %s using %s", alg, params)

	pcdKey, err := GenerateKey(params, c.Rand)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	if alg.Cipher == sm.DESede {
		err = c.setKeyAgreementTemplate(keyID, pcdKey.Public)
	} else {
		err = c.chipAuthenticate(oid, keyID, pcdKey.Public)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to send ephemeral public key: %w", err)
	}

	secret, err := pcdKey.SharedSecret(piccPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSecurityViolation, err)
	}

	keys := deriveSessionKeys(secret, alg.Cipher, alg.KeyLength)
	if err := c.setSecureMessaging(keys); err != nil {
		return nil, err
	}

	c.log.Infof("Restarted secure messaging with chip authentication using %s", alg)

	return &CAResult{
		KeyID:         keyID,
		Algorithm:     alg,
		PublicKeyOID:  publicKeyOID,
		PICCPublicKey: piccPublicKey,
		PCDKey:        pcdKey,
		PCDKeyHash:    KeyHash(pcdKey.Public),
		SessionKeys:   keys,
	}, nil
}

// inferCAProtocol guesses the protocol of a chip which did not announce a
// ChipAuthenticationInfo. This heuristic is not defined by any standard.
func (c *Card) inferCAProtocol(publicKeyOID asn1.ObjectIdentifier, pub PublicKey) asn1.ObjectIdentifier {
	var oid asn1.ObjectIdentifier

	switch {
	case publicKeyOID.Equal(OIDPKECDH):
		oid = OIDCAECDH3DES
	case publicKeyOID.Equal(OIDPKDH):
		oid = OIDCADH3DES
	default:
		if _, ok := pub.(*ECPublicKey); ok {
			oid = OIDCAECDH3DES
		} else {
			oid = OIDCADH3DES
		}
	}

	c.log.Warnf("Missing chip authentication protocol. Assuming %s", oid)

	return oid
}

func keyIDTagValue(keyID *big.Int) []tlv.TagValue {
	if keyID == nil {
		return nil
	}

	return []tlv.TagValue{
		tlv.New(tagPrivateKeyReference, keyID.Bytes()),
	}
}

// setKeyAgreementTemplate sends the ephemeral public key with MSE:Set KAT.
func (c *Card) setKeyAgreementTemplate(keyID *big.Int, pub PublicKey) error {
	tvs := append([]tlv.TagValue{
		tlv.New(tagEphemeralPublicKey, pub.Bytes()),
	}, keyIDTagValue(keyID)...)

	_, err := c.sendTLV(0x00, iso.InsManageSecurityEnvironment, 0x41, 0xa6, tvs...)

	return err
}

// chipAuthenticate selects the protocol with MSE:Set AT and sends the
// ephemeral public key with General Authenticate.
func (c *Card) chipAuthenticate(oid asn1.ObjectIdentifier, keyID *big.Int, pub PublicKey) error {
	oidBytes, err := marshalOID(oid)
	if err != nil {
		return err
	}

	tvs := append([]tlv.TagValue{
		tlv.New(tagCryptographicMechanism, oidBytes),
	}, keyIDTagValue(keyID)...)

	if _, err := c.sendTLV(0x00, iso.InsManageSecurityEnvironment, 0x41, 0xa4, tvs...); err != nil {
		return err
	}

	data, err := tlv.New(tagDynamicAuthenticationData,
		tlv.New(tagCAEphemeralKey, pub.Bytes()),
	).MarshalBER()
	if err != nil {
		return err
	}

	resp, err := c.transceive(&iso.CAPDU{
		Ins:  insGeneralAuthenticate,
		Data: data,
		Ne:   iso.MaxLenResponseDataStandard,
	})
	if err != nil {
		return err
	}

	if resp.Code().IsSuccess() {
		return nil
	}

	c.log.Debugf("Chip rejected single command with %s. Retrying with command chaining", resp.Code())

	for len(data) > 0 {
		n := min(len(data), caChunkSize)

		cmd := &iso.CAPDU{
			Ins:  insGeneralAuthenticate,
			Data: data[:n],
		}

		if n < len(data) {
			cmd.Cla = claChaining
		} else {
			cmd.Ne = iso.MaxLenResponseDataStandard
		}

		if _, err := c.send(cmd); err != nil {
			return err
		}

		data = data[n:]
	}

	return nil
}
