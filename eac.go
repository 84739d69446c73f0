// SPDX-FileCopyrightText: 2020 Google LLC
// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

// Package eac implements the access control protocols of electronic travel
// documents and identity cards: Password Authenticated Connection
// Establishment (PACE), Basic Access Control (BAC), Chip Authentication (CA),
// Terminal Authentication (TA) and Active Authentication (AA).
//
// After a successful PACE, BAC or CA, all commands are protected by secure
// messaging as implemented by the sm package.
//
// See: BSI TR-03110 and ICAO Doc 9303 Part 11
package eac

import (
	"errors"
	"fmt"
	"io"
	"sync"

	iso "cunicu.li/go-iso7816"
	"cunicu.li/go-iso7816/encoding/tlv"
	"github.com/pion/logging"

	"cunicu.li/go-eac/sm"
)

const (
	claChaining = 0x10

	insGeneralAuthenticate iso.Instruction = 0x86

	// Dynamic authentication data
	tagDynamicAuthenticationData = 0x7c
)

// Card is an exclusive open connection to an electronic travel document
// or identity card. While open, no other process can query the given card.
//
// All operations of a Card are serialized. To release the connection,
// call the Close method.
type Card struct {
	*iso.Card

	Rand io.Reader

	config *Config
	log    logging.LeveledLogger
	tx     *iso.Transaction

	mu      sync.Mutex
	wrapper *sm.Wrapper
}

// NewCard begins a transaction with the card. No application is selected
// and no command is sent to the card.
func NewCard(card *iso.Card, cfg *Config) (eacCard *Card, err error) {
	cfg = cfg.withDefaults()

	eacCard = &Card{
		Card:   card,
		Rand:   cfg.Rand,
		config: cfg,
		log:    cfg.LoggerFactory.NewLogger("eac"),
	}

	if eacCard.tx, err = card.NewTransaction(); err != nil {
		return nil, fmt.Errorf("failed to begin smart card transaction: %w", err)
	}

	return eacCard, nil
}

// Close releases the connection to the smart card.
func (c *Card) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.wrapper = nil

	if c.tx != nil {
		if err := c.tx.Close(); err != nil {
			return err
		}
	}

	return nil
}

// IsSecure reports whether commands are protected by secure messaging.
func (c *Card) IsSecure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.wrapper != nil
}

// Wrapper returns the secure messaging wrapper of the current session
// or nil if there is none.
func (c *Card) Wrapper() *sm.Wrapper {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.wrapper
}

// ResetSecureMessaging discards the current secure messaging session.
// Subsequent commands are sent in plain.
func (c *Card) ResetSecureMessaging() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.wrapper = nil
}

// Transmit sends a command to the card, protecting it with secure
// messaging if a secure channel is established. Status words other than
// success are returned as part of the response.
func (c *Card) Transmit(cmd *iso.CAPDU) (*iso.RAPDU, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.transceive(cmd)
}

// transceive exchanges a command with the card, fetching remaining response
// data with GET RESPONSE. The caller must hold c.mu.
func (c *Card) transceive(cmd *iso.CAPDU) (*iso.RAPDU, error) {
	w := c.wrapper
	if w != nil {
		var err error
		if cmd, err = w.Wrap(cmd); err != nil {
			return nil, fmt.Errorf("failed to wrap command: %w", err)
		}
	}

	cmdBuf, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize CAPDU: %w", err)
	}

	var data []byte
	var resp *iso.RAPDU

	for {
		respBuf, err := c.tx.Transmit(cmdBuf)
		if err != nil {
			if errors.Is(err, ErrConnectionLost) {
				c.wrapper = nil
			}

			return nil, fmt.Errorf("failed to transmit CAPDU: %w", err)
		}

		if resp, err = iso.ParseRAPDU(respBuf); err != nil {
			return nil, fmt.Errorf("failed to parse RAPDU: %w", err)
		}

		data = append(data, resp.Data...)

		if !resp.Code().HasMore() {
			break
		}

		cmdBuf = []byte{0x00, byte(iso.InsGetResponse), 0x00, 0x00, resp.SW2}
	}

	resp.Data = data

	if w != nil {
		if resp, err = w.Unwrap(resp); err != nil {
			// The card aborts the secure channel after any error
			c.wrapper = nil

			return nil, fmt.Errorf("failed to unwrap response: %w", err)
		}
	}

	return resp, nil
}

// send exchanges a command and returns the response data. Status words other
// than success are returned as errors. The caller must hold c.mu.
func (c *Card) send(cmd *iso.CAPDU) ([]byte, error) {
	resp, err := c.transceive(cmd)
	if err != nil {
		return nil, err
	}

	if code := resp.Code(); !code.IsSuccess() {
		return nil, wrapCode(code)
	}

	return resp.Data, nil
}

// sendTLV exchanges a command with BER-TLV encoded data.
func (c *Card) sendTLV(cla byte, ins iso.Instruction, p1, p2 byte, vs ...tlv.TagValue) (tlv.TagValues, error) {
	data, err := tlv.EncodeBER(vs...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}

	cmd := &iso.CAPDU{
		Cla:  cla,
		Ins:  ins,
		P1:   p1,
		P2:   p2,
		Data: data,
	}

	// Commands carrying dynamic authentication data expect a response
	if ins == insGeneralAuthenticate {
		cmd.Ne = iso.MaxLenResponseDataStandard
	}

	resp, err := c.send(cmd)
	if err != nil {
		return nil, err
	}

	tvs, err := tlv.DecodeBER(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUnmarshal, err)
	}

	return tvs, nil
}

// generalAuthenticate performs one step of a GENERAL AUTHENTICATE exchange
// and returns the dynamic authentication data of the response.
// All steps but the last are sent with command chaining.
func (c *Card) generalAuthenticate(last bool, vs ...tlv.TagValue) (tlv.TagValues, error) {
	var cla byte
	if !last {
		cla = claChaining
	}

	resp, err := c.sendTLV(cla, insGeneralAuthenticate, 0x00, 0x00,
		tlv.New(tagDynamicAuthenticationData, tlv.TagValues(vs)),
	)
	if err != nil {
		return nil, err
	}

	_, children, ok := resp.Get(tagDynamicAuthenticationData)
	if !ok {
		return nil, fmt.Errorf("%w: dynamic authentication data", errMissingTag)
	}

	return children, nil
}

// setSecureMessaging replaces the current secure messaging session.
// The caller must hold c.mu.
func (c *Card) setSecureMessaging(keys SessionKeys) error {
	w, err := keys.newWrapper(c.config, nil)
	if err != nil {
		return fmt.Errorf("failed to start secure messaging: %w", err)
	}

	c.wrapper = w

	return nil
}
