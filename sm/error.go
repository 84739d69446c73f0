// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package sm

import (
	"errors"
	"fmt"

	iso "cunicu.li/go-iso7816"
)

// ErrSecurityViolation is returned when protected data fails verification
// or is malformed. The channel is unusable afterwards and a new key
// agreement is required.
var ErrSecurityViolation = errors.New("security violation")

var (
	errInvalidMAC         = errors.New("invalid MAC")
	errMissingDataObject  = errors.New("missing data object")
	errUnexpectedLength   = errors.New("unexpected length")
	errUnexpectedTag      = errors.New("unexpected tag")
	errNotWrapped         = errors.New("command is not protected by secure messaging")
	errMissingPadding     = errors.New("missing padding-content indicator")
	errInvalidStatusWord  = errors.New("invalid status word data object")
	errInvalidLengthField = errors.New("invalid expected length data object")
)

// Error is returned by Wrapper.Unwrap if the card answered with a plain
// status word instead of secure messaging data objects. Cards do so when
// they abort the secure channel, for example after a wrong MAC.
type Error struct {
	Code iso.Code
}

func (e Error) Error() string {
	return fmt.Sprintf("secure messaging aborted by card: %s", e.Code)
}

func (e Error) Unwrap() error {
	return e.Code
}
