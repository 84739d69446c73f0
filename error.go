// SPDX-FileCopyrightText: 2020 Google LLC
// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"errors"
	"fmt"

	iso "cunicu.li/go-iso7816"

	"cunicu.li/go-eac/sm"
)

var (
	// ErrAccessDenied is returned if the card rejects the access key
	// during PACE or BAC, for example because of a wrong CAN or PIN.
	ErrAccessDenied = errors.New("access denied")

	// ErrSecurityViolation is returned if protected data fails verification,
	// the peer misbehaves during a key agreement or a certificate chain is
	// malformed. The secure channel is torn down afterwards.
	ErrSecurityViolation = sm.ErrSecurityViolation

	// ErrConnectionLost is returned if the transport lost the card.
	// The session must be re-established from scratch.
	ErrConnectionLost = errors.New("connection to card lost")

	// ErrUnsupported is returned for unknown protocol identifiers or
	// domain parameters before any command is sent to the card.
	ErrUnsupported = errors.New("unsupported")

	// ErrNotFound is returned when the requested file or application is not found.
	ErrNotFound = errors.New("file or application not found")
)

var (
	errUnexpectedLength  = errors.New("unexpected length")
	errUnmarshal         = errors.New("failed to unmarshal")
	errMissingTag        = errors.New("missing tag")
	errTokenMismatch     = errors.New("authentication token mismatch")
	errEqualKeys         = errors.New("ephemeral public keys are equal")
	errInvalidPublicKey  = errors.New("invalid public key")
	errChallengeMismatch = errors.New("challenge mismatch")
	errNoSecureChannel   = errors.New("no secure channel established")
)

func wrapCode(err error) error {
	c, ok := err.(iso.Code) //nolint:errorlint
	if !ok {
		return err
	}

	switch {
	case c == iso.ErrFileOrAppNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, c)

	case c == iso.ErrAuthenticationMethodBlocked:
		return AuthError{0}

	case c[0] == 0x63 && c[1]&0xf0 == 0xc0:
		return AuthError{int(c[1] & 0xf)}

	default:
		return err
	}
}

// AuthError is an error indicating that the password used for PACE was
// rejected or is blocked. It matches ErrAccessDenied.
type AuthError struct {
	// Retries is the number of retries remaining. If the password is
	// blocked or suspended, this will be 0.
	Retries int
}

func (v AuthError) Error() string {
	r := "retries"
	if v.Retries == 1 {
		r = "retry"
	}
	return fmt.Sprintf("verification failed (%d %s remaining)", v.Retries, r)
}

func (v AuthError) Is(target error) bool {
	return target == ErrAccessDenied //nolint:errorlint
}

// accessDenied classifies status words returned by the card in reply to
// a credential dependent step.
func accessDenied(err error) error {
	var c iso.Code
	if errors.As(err, &c) && !errors.Is(err, ErrAccessDenied) {
		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}

	return err
}
