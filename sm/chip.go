// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package sm

import (
	"fmt"

	iso "cunicu.li/go-iso7816"
	"cunicu.li/go-iso7816/encoding/tlv"
)

// UnwrapCommand verifies and decrypts a protected command APDU.
// It is the chip side counterpart of Wrap.
func (w *Wrapper) UnwrapCommand(cmd *iso.CAPDU) (*iso.CAPDU, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ssc := w.incrementSSC()

	if cmd.Cla&claSecureMessaging != claSecureMessaging {
		return nil, errNotWrapped
	}

	dos, err := parseDataObjects(cmd.Data, tagCryptogram, tagCryptogramOdd, tagExpectedLength, tagMAC)
	if err != nil {
		return nil, err
	}

	if err := w.verify(ssc, dos, w.header(cmd.Cla, cmd), dos.raw(tagCryptogram, tagCryptogramOdd), dos.raw(tagExpectedLength)); err != nil {
		return nil, err
	}

	data, err := w.decryptDataObject(ssc, dos)
	if err != nil {
		return nil, err
	}

	var ne int
	if le, ok := dos.value(tagExpectedLength); ok {
		if ne, err = decodeLe(le); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSecurityViolation, err)
		}
	}

	return &iso.CAPDU{
		Cla:  cmd.Cla &^ claSecureMessaging,
		Ins:  cmd.Ins,
		P1:   cmd.P1,
		P2:   cmd.P2,
		Data: data,
		Ne:   ne,
	}, nil
}

// WrapResponse protects a plain response APDU.
// It is the chip side counterpart of Unwrap.
func (w *Wrapper) WrapResponse(resp *iso.RAPDU) (*iso.RAPDU, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ssc := w.incrementSSC()

	var doData []byte
	if len(resp.Data) > 0 {
		var err error
		if doData, err = tlv.New(tagCryptogram, byte(paddingIndicator), w.encrypt(ssc, resp.Data)).MarshalBER(); err != nil {
			return nil, fmt.Errorf("failed to encode cryptogram: %w", err)
		}
	}

	doSW, err := tlv.New(tagStatusWord, resp.SW1, resp.SW2).MarshalBER()
	if err != nil {
		return nil, fmt.Errorf("failed to encode status word: %w", err)
	}

	doMAC, err := tlv.New(tagMAC, w.checksum(ssc, doData, doSW)).MarshalBER()
	if err != nil {
		return nil, fmt.Errorf("failed to encode checksum: %w", err)
	}

	data := make([]byte, 0, len(doData)+len(doSW)+len(doMAC))
	data = append(data, doData...)
	data = append(data, doSW...)
	data = append(data, doMAC...)

	return &iso.RAPDU{
		Data: data,
		SW1:  resp.SW1,
		SW2:  resp.SW2,
	}, nil
}
