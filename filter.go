// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"fmt"

	iso "cunicu.li/go-iso7816"
	"cunicu.li/go-iso7816/filter"
)

//nolint:gochecknoglobals
var (
	// HasEMRTDApplet matches cards which can select the eMRTD application.
	HasEMRTDApplet = filter.HasApplet(AidEMRTD)

	// IsEMRTD matches travel documents supporting PACE or BAC.
	IsEMRTD = filter.Or(HasCardAccess, HasEMRTDApplet)
)

// HasCardAccess matches cards which can select EF.CardAccess
// in their master file. Those cards support PACE.
func HasCardAccess(card iso.PCSCCard) (bool, error) {
	if card == nil {
		return false, filter.ErrOpen
	}

	isoCard := iso.NewCard(card)

	tx, err := isoCard.NewTransaction()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Close()

	if _, err := tx.Send(&iso.CAPDU{
		Ins:  iso.InsSelect,
		P1:   0x02,
		P2:   0x0c,
		Data: FileCardAccess.Bytes(),
	}); err != nil {
		return false, nil //nolint:nilerr
	}

	return true, nil
}
