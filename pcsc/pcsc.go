// SPDX-FileCopyrightText: 2020 Google LLC
// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

// Package pcsc connects eac cards through PC/SC readers.
package pcsc

import (
	"errors"
	"fmt"

	iso "cunicu.li/go-iso7816"
	isopcsc "cunicu.li/go-iso7816/drivers/pcsc"
	"cunicu.li/go-iso7816/filter"
	"github.com/ebfe/scard"

	"cunicu.li/go-eac"
)

// Card is an eac.Card connected through a PC/SC reader.
type Card struct {
	*eac.Card

	ctx  *scard.Context
	base iso.PCSCCard
}

// Readers lists the names of all PC/SC readers attached to the system.
func Readers() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish context: %w", err)
	}

	defer ctx.Release() //nolint:errcheck

	readers, err := ctx.ListReaders()
	if err != nil && !errors.Is(err, scard.ErrNoReadersAvailable) {
		return nil, fmt.Errorf("failed to list readers: %w", err)
	}

	return readers, nil
}

// Open connects exclusively to the card in the named reader.
func Open(reader string, cfg *eac.Config) (*Card, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish context: %w", err)
	}

	isoCard, err := isopcsc.NewCard(ctx, reader, false)
	if err != nil {
		ctx.Release() //nolint:errcheck
		return nil, classify(err)
	}

	return newCard(ctx, isoCard.PCSCCard, cfg)
}

// OpenFirst connects exclusively to the first card matching flt.
// eac.IsEMRTD or eac.HasCardAccess select travel documents.
func OpenFirst(flt filter.Filter, cfg *eac.Config) (*Card, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("failed to establish context: %w", err)
	}

	pcscCard, err := isopcsc.OpenFirstCard(ctx, flt, false)
	if err != nil {
		ctx.Release() //nolint:errcheck
		return nil, classify(err)
	}

	if isoCard, ok := pcscCard.(*iso.Card); ok {
		pcscCard = isoCard.PCSCCard
	}

	return newCard(ctx, pcscCard, cfg)
}

func newCard(ctx *scard.Context, base iso.PCSCCard, cfg *eac.Config) (*Card, error) {
	eacCard, err := eac.NewCard(iso.NewCard(&card{base}), cfg)
	if err != nil {
		base.Close()  //nolint:errcheck
		ctx.Release() //nolint:errcheck
		return nil, err
	}

	return &Card{
		Card: eacCard,
		ctx:  ctx,
		base: base,
	}, nil
}

// Close ends the transaction, resets the card and releases the context.
func (c *Card) Close() error {
	return errors.Join(
		c.Card.Close(),
		c.base.Close(),
		c.ctx.Release(),
	)
}

// card forwards to a PC/SC card and reports the loss of the card
// as eac.ErrConnectionLost.
type card struct {
	iso.PCSCCard
}

func (c *card) Transmit(cmd []byte) ([]byte, error) {
	resp, err := c.PCSCCard.Transmit(cmd)
	return resp, classify(err)
}

func (c *card) BeginTransaction() error {
	return classify(c.PCSCCard.BeginTransaction())
}

func (c *card) EndTransaction() error {
	return classify(c.PCSCCard.EndTransaction())
}

func (c *card) Base() iso.PCSCCard {
	return c.PCSCCard
}

// classify maps PC/SC return codes which indicate that the card
// is gone to eac.ErrConnectionLost.
func classify(err error) error {
	var rc scard.Error
	if !errors.As(err, &rc) {
		return err
	}

	switch rc { //nolint:exhaustive
	case scard.ErrRemovedCard,
		scard.ErrResetCard,
		scard.ErrUnpoweredCard,
		scard.ErrNoSmartcard,
		scard.ErrReaderUnavailable,
		scard.ErrCommError,
		scard.ErrNoService:
		return fmt.Errorf("%w: %w", eac.ErrConnectionLost, err)

	default:
		return err
	}
}
