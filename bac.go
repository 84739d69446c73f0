// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"crypto/subtle"
	"fmt"
	"io"

	iso "cunicu.li/go-iso7816"

	"cunicu.li/go-eac/sm"
)

const (
	lenBACKey      = 16
	lenBACNonce    = 8
	lenBACCrypto   = 2*lenBACNonce + lenBACKey
	lenBACResponse = lenBACCrypto + 8
)

// BACResult is the outcome of a successful Basic Access Control.
type BACResult struct {
	Key         *BACKey
	SessionKeys SessionKeys

	RndIC, RndIFD []byte
	KIC, KIFD     []byte
}

// SSC returns the initial send sequence counter derived from both nonces.
func (r *BACResult) SSC() []byte {
	return append(append([]byte{}, r.RndIC[4:]...), r.RndIFD[4:]...)
}

// DoBAC performs Basic Access Control with a key derived from the machine
// readable zone and starts secure messaging with 3DES session keys.
//
// See: ICAO Doc 9303 Part 11, Section 4.3
func (c *Card) DoBAC(key *BACKey) (*BACResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seed, err := key.KeySeed()
	if err != nil {
		return nil, fmt.Errorf("failed to derive key seed: %w", err)
	}

	keys := deriveSessionKeys(seed[:lenBACKey], sm.DESede, lenBACKey)

	c.log.Debug("Performing basic access control")

	// Request a challenge
	rndIC, err := c.getChallenge(lenBACNonce)
	if err != nil {
		return nil, err
	}

	res := &BACResult{
		Key:    key,
		RndIC:  rndIC,
		RndIFD: make([]byte, lenBACNonce),
		KIFD:   make([]byte, lenBACKey),
	}

	if _, err := io.ReadFull(c.Rand, res.RndIFD); err != nil {
		return nil, fmt.Errorf("failed to read random data: %w", err)
	}

	if _, err := io.ReadFull(c.Rand, res.KIFD); err != nil {
		return nil, fmt.Errorf("failed to read random data: %w", err)
	}

	s := make([]byte, 0, lenBACCrypto)
	s = append(s, res.RndIFD...)
	s = append(s, rndIC...)
	s = append(s, res.KIFD...)

	eIFD, err := sm.Encrypt(sm.DESede, keys.Enc, nil, s)
	if err != nil {
		return nil, err
	}

	mIFD, err := sm.Checksum(sm.DESede, keys.MAC, eIFD)
	if err != nil {
		return nil, err
	}

	resp, err := c.externalAuthenticate(append(eIFD, mIFD...))
	if err != nil {
		return nil, err
	}

	eIC, mIC := resp[:lenBACCrypto], resp[lenBACCrypto:]

	if mac, err := sm.Checksum(sm.DESede, keys.MAC, eIC); err != nil {
		return nil, err
	} else if subtle.ConstantTimeCompare(mac, mIC) != 1 {
		return nil, fmt.Errorf("%w: invalid MAC of chip response", ErrSecurityViolation)
	}

	r, err := sm.Decrypt(sm.DESede, keys.Enc, nil, eIC)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare(r[:lenBACNonce], rndIC) != 1 ||
		subtle.ConstantTimeCompare(r[lenBACNonce:2*lenBACNonce], res.RndIFD) != 1 {
		return nil, fmt.Errorf("%w: %w", ErrSecurityViolation, errChallengeMismatch)
	}

	res.KIC = r[2*lenBACNonce:]

	kSeed := make([]byte, lenBACKey)
	subtle.XORBytes(kSeed, res.KIFD, res.KIC)

	res.SessionKeys = deriveSessionKeys(kSeed, sm.DESede, lenBACKey)

	w, err := res.SessionKeys.newWrapper(c.config, res.SSC())
	if err != nil {
		return nil, fmt.Errorf("failed to start secure messaging: %w", err)
	}

	c.wrapper = w

	c.log.Info("Established secure messaging with basic access control")

	return res, nil
}

// externalAuthenticate sends the cryptogram of the terminal. Chips which
// reject the expected length of 40 bytes are asked again with Le 0.
func (c *Card) externalAuthenticate(data []byte) ([]byte, error) {
	cmd := &iso.CAPDU{
		Ins:  iso.InsExternalOrMutualAuthenticate,
		Data: data,
		Ne:   lenBACResponse,
	}

	resp, err := c.transceive(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	if code := resp.Code(); code == iso.ErrWrongLength || code[0] == 0x6c {
		c.log.Debugf("Chip rejected expected length with %s. Retrying with Le 0", code)

		cmd.Ne = iso.MaxLenResponseDataStandard
		if resp, err = c.transceive(cmd); err != nil {
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if code := resp.Code(); !code.IsSuccess() {
		return nil, fmt.Errorf("failed to authenticate: %w", accessDenied(wrapCode(code)))
	}

	if len(resp.Data) != lenBACResponse {
		return nil, fmt.Errorf("%w of chip response: got=%dB, want=%dB", errUnexpectedLength, len(resp.Data), lenBACResponse)
	}

	return resp.Data, nil
}
