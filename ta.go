// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/asn1"
	"errors"
	"fmt"

	iso "cunicu.li/go-iso7816"
	"cunicu.li/go-iso7816/encoding/tlv"
)

var (
	errEmptyChain     = errors.New("empty certificate chain")
	errWrongAuthority = errors.New("certificate issued by wrong authority")
	errNoTerminal     = errors.New("last certificate is not held by a terminal")
	errNoChipID       = errors.New("missing chip identifier")
	errNoCAResult     = errors.New("missing chip authentication result")
)

const lenChallenge = 8

// TAResult is the outcome of a successful Terminal Authentication.
type TAResult struct {
	CAResult    *CAResult
	CAReference string
	Chain       []*CVCertificate
	Algorithm   asn1.ObjectIdentifier
	ChipID      []byte
	Challenge   []byte
}

// ChipIDFromDocumentNumber derives the chip identifier after BAC:
// the document number followed by its check digit.
func ChipIDFromDocumentNumber(docNumber string) ([]byte, error) {
	docNumber = padMRZ(docNumber, 9)

	cd, err := CheckDigit(docNumber)
	if err != nil {
		return nil, err
	}

	return append([]byte(docNumber), '0'+cd), nil
}

// ChipIDFromPACE derives the chip identifier after PACE from the ephemeral
// public key of the terminal with the same compression used by KeyHash.
func ChipIDFromPACE(res *PACEResult) []byte {
	return KeyHash(res.PCDKey.Public)
}

// checkChain validates the order and roles of a certificate chain.
// A leading CVCA certificate is stripped and its holder becomes
// the expected authority of the next certificate.
func checkChain(caReference string, chain []*CVCertificate) (string, []*CVCertificate, error) {
	if len(chain) == 0 {
		return "", nil, fmt.Errorf("%w: %w", ErrSecurityViolation, errEmptyChain)
	}

	if first := chain[0]; first.Role == RoleCVCA {
		if caReference != "" && caReference != first.CHR {
			return "", nil, fmt.Errorf("%w: %w: got=%s, want=%s", ErrSecurityViolation, errWrongAuthority, first.CHR, caReference)
		}

		caReference = first.CHR
		chain = chain[1:]

		if len(chain) == 0 {
			return "", nil, fmt.Errorf("%w: %w", ErrSecurityViolation, errNoTerminal)
		}
	}

	if car := chain[0].CAR; car != caReference {
		return "", nil, fmt.Errorf("%w: %w: got=%s, want=%s", ErrSecurityViolation, errWrongAuthority, car, caReference)
	}

	if !chain[len(chain)-1].IsTerminal() {
		return "", nil, fmt.Errorf("%w: %w", ErrSecurityViolation, errNoTerminal)
	}

	return caReference, chain, nil
}

// DoTA performs Terminal Authentication version 1. The chain is verified
// by the chip certificate by certificate before the terminal signs the
// challenge of the chip bound to the chip identifier and the ephemeral
// key of the preceding Chip Authentication.
//
// The chain is validated before any command is sent to the card. If
// algorithm is nil, the algorithm of the terminal certificate is used.
//
// See: BSI TR-03110 Part 3, Section 3.3 and ICAO Doc 9303 Part 11, Section 7.1
func (c *Card) DoTA(caReference string, chain []*CVCertificate, key crypto.Signer, algorithm asn1.ObjectIdentifier, caResult *CAResult, chipID []byte) (*TAResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	caReference, chain, err := checkChain(caReference, chain)
	if err != nil {
		return nil, err
	}

	if caResult == nil {
		return nil, errNoCAResult
	} else if len(chipID) == 0 {
		return nil, errNoChipID
	}

	terminal := chain[len(chain)-1]

	if algorithm == nil {
		algorithm = terminal.PublicKeyOID
	}

	sigAlg, err := lookupSignatureAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}

	c.log.Debugf("Performing terminal authentication as %s", terminal.CHR)

	for _, cert := range chain {
		if err := c.verifyCertificate(cert); err != nil {
			return nil, err
		}
	}

	if _, err := c.sendTLV(0x00, iso.InsManageSecurityEnvironment, 0x81, 0xa4,
		tlv.New(tagPublicKeyReference, []byte(terminal.CHR)),
	); err != nil {
		return nil, fmt.Errorf("failed to set authentication template: %w", err)
	}

	challenge, err := c.getChallenge(lenChallenge)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, len(chipID)+len(challenge)+len(caResult.PCDKeyHash))
	data = append(data, chipID...)
	data = append(data, challenge...)
	data = append(data, caResult.PCDKeyHash...)

	sig, err := c.signChallenge(key, sigAlg, data)
	if err != nil {
		return nil, err
	}

	if _, err := c.send(&iso.CAPDU{
		Ins:  iso.InsExternalOrMutualAuthenticate,
		Data: sig,
	}); err != nil {
		return nil, fmt.Errorf("terminal rejected: %w", err)
	}

	c.log.Infof("Authenticated terminal %s", terminal.CHR)

	return &TAResult{
		CAResult:    caResult,
		CAReference: caReference,
		Chain:       chain,
		Algorithm:   algorithm,
		ChipID:      chipID,
		Challenge:   challenge,
	}, nil
}

// verifyCertificate sends a certificate to the chip to be verified
// with the public key of its issuer.
func (c *Card) verifyCertificate(cert *CVCertificate) error {
	if _, err := c.sendTLV(0x00, iso.InsManageSecurityEnvironment, 0x81, 0xb6,
		tlv.New(tagPublicKeyReference, []byte(cert.CAR)),
	); err != nil {
		return fmt.Errorf("failed to select authority %s: %w", cert.CAR, err)
	}

	data := append(append([]byte{}, cert.Body...), cert.Signature...)

	if _, err := c.send(&iso.CAPDU{
		Ins:  iso.InsPerformSecurityOperation,
		P1:   0x00,
		P2:   0xbe,
		Data: data,
	}); err != nil {
		return fmt.Errorf("failed to verify certificate %s: %w", cert.CHR, err)
	}

	c.log.Debugf("Chip accepted certificate %s issued by %s", cert.CHR, cert.CAR)

	return nil
}

// getChallenge requests random bytes from the chip.
func (c *Card) getChallenge(n int) ([]byte, error) {
	challenge, err := c.send(&iso.CAPDU{
		Ins: iso.InsGetChallenge,
		Ne:  n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	if len(challenge) != n {
		return nil, fmt.Errorf("%w of challenge: got=%dB, want=%dB", errUnexpectedLength, len(challenge), n)
	}

	return challenge, nil
}

// signChallenge signs data with the terminal key. ECDSA signatures are
// converted to the plain format.
func (c *Card) signChallenge(key crypto.Signer, alg signatureAlgorithm, data []byte) ([]byte, error) {
	h := alg.Hash.New()
	h.Write(data)
	digest := h.Sum(nil)

	var opts crypto.SignerOpts = alg.Hash
	if alg.PSS {
		opts = &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
			Hash:       alg.Hash,
		}
	}

	sig, err := key.Sign(c.Rand, digest, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to sign challenge: %w", err)
	}

	if !alg.ECDSA {
		return sig, nil
	}

	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w key for ECDSA: %T", ErrUnsupported, key.Public())
	}

	return ecdsaSignatureToPlain(sig, (pub.Params().N.BitLen()+7)/8)
}
