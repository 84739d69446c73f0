// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"crypto/rand"
	"io"

	"github.com/pion/logging"

	"cunicu.li/go-eac/sm"
)

// Config configures a card session. The zero value is usable.
type Config struct {
	// LoggerFactory creates the logger of the session.
	// Defaults to logging.NewDefaultLoggerFactory which is controlled
	// by the PION_LOG_* environment variables.
	LoggerFactory logging.LoggerFactory

	// Rand is the source of randomness for nonces and ephemeral keys.
	// Defaults to crypto/rand.Reader.
	Rand io.Reader

	// MaxTransceiveLength limits the expected length of a single protected
	// response. Defaults to sm.DefaultMaxTransceiveLength.
	MaxTransceiveLength int

	// SkipMACCheck disables the verification of response MACs
	// for diagnostics of faulty cards.
	SkipMACCheck bool
}

func (c *Config) withDefaults() *Config {
	d := Config{}
	if c != nil {
		d = *c
	}

	if d.LoggerFactory == nil {
		d.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	if d.Rand == nil {
		d.Rand = rand.Reader
	}

	if d.MaxTransceiveLength <= 0 {
		d.MaxTransceiveLength = sm.DefaultMaxTransceiveLength
	}

	return &d
}
