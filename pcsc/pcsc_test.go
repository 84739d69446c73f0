// SPDX-FileCopyrightText: 2020 Google LLC
// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package pcsc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ebfe/scard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cunicu.li/go-eac"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		lost bool
	}{
		{nil, false},
		{scard.ErrRemovedCard, true},
		{scard.ErrResetCard, true},
		{fmt.Errorf("failed to transmit: %w", scard.ErrUnpoweredCard), true},
		{scard.ErrSharingViolation, false},
		{errors.New("other"), false},
	}

	for _, test := range tests {
		err := classify(test.err)
		assert.Equal(t, test.lost, errors.Is(err, eac.ErrConnectionLost), "%v", test.err)

		if test.err != nil {
			assert.ErrorIs(t, err, test.err)
		}
	}
}

func TestOpenFirst(t *testing.T) {
	readers, err := Readers()
	if err != nil || len(readers) == 0 {
		t.Skip("no PC/SC readers available, skipping")
	}

	c, err := OpenFirst(eac.HasCardAccess, nil)
	if err != nil {
		t.Skipf("no travel document detected, skipping: %v", err)
	}

	defer func() {
		assert.NoError(t, c.Close())
	}()

	buf, err := c.ReadCardAccess()
	require.NoError(t, err)

	infos, err := eac.ParseSecurityInfos(buf)
	require.NoError(t, err)
	assert.NotEmpty(t, infos)
}
