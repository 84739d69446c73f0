// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package sm

import (
	"crypto/subtle"
	"fmt"

	iso "cunicu.li/go-iso7816"
	"cunicu.li/go-iso7816/encoding/tlv"
)

// Secure messaging data objects
//
// See: ISO/IEC 7816-4 Section 10.2
const (
	tagCryptogramOdd  = 0x85 // Cryptogram, BER-TLV plaintext
	tagCryptogram     = 0x87 // Padding-content indicator ‖ cryptogram
	tagExpectedLength = 0x97 // Le
	tagStatusWord     = 0x99 // Processing status
	tagMAC            = 0x8e // Cryptographic checksum

	claSecureMessaging = 0x0c
	paddingIndicator   = 0x01
)

// Wrap protects a plain command APDU.
//
// The counter is incremented before the command is protected.
func (w *Wrapper) Wrap(cmd *iso.CAPDU) (*iso.CAPDU, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ssc := w.incrementSSC()
	cla := cmd.Cla | claSecureMessaging

	var doData, doLe []byte
	if len(cmd.Data) > 0 {
		ct := w.encrypt(ssc, cmd.Data)

		// Odd instructions carry BER-TLV encoded plaintext which is protected
		// without padding-content indicator.
		tv := tlv.New(tagCryptogram, byte(paddingIndicator), ct)
		if cmd.Ins&1 == 1 {
			tv = tlv.New(tagCryptogramOdd, ct)
		}

		var err error
		if doData, err = tv.MarshalBER(); err != nil {
			return nil, fmt.Errorf("failed to encode cryptogram: %w", err)
		}
	}

	if cmd.Ne > 0 {
		var err error
		if doLe, err = tlv.New(tagExpectedLength, encodeLe(cmd.Ne)).MarshalBER(); err != nil {
			return nil, fmt.Errorf("failed to encode expected length: %w", err)
		}
	}

	mac := w.checksum(ssc, w.header(cla, cmd), doData, doLe)

	doMAC, err := tlv.New(tagMAC, mac).MarshalBER()
	if err != nil {
		return nil, fmt.Errorf("failed to encode checksum: %w", err)
	}

	data := make([]byte, 0, len(doData)+len(doLe)+len(doMAC))
	data = append(data, doData...)
	data = append(data, doLe...)
	data = append(data, doMAC...)

	return &iso.CAPDU{
		Cla:  cla,
		Ins:  cmd.Ins,
		P1:   cmd.P1,
		P2:   cmd.P2,
		Data: data,
		Ne:   ExpectedLength(len(data), cmd.Ne),
	}, nil
}

// Unwrap verifies and decrypts a protected response APDU.
//
// The counter is incremented before the response is verified. A response
// without data objects results in an Error carrying the status word.
func (w *Wrapper) Unwrap(resp *iso.RAPDU) (*iso.RAPDU, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ssc := w.incrementSSC()

	if len(resp.Data) == 0 {
		return nil, Error{Code: resp.Code()}
	}

	dos, err := parseDataObjects(resp.Data, tagCryptogram, tagCryptogramOdd, tagStatusWord, tagMAC)
	if err != nil {
		return nil, err
	}

	if err := w.verify(ssc, dos, dos.raw(tagCryptogram, tagCryptogramOdd), dos.raw(tagStatusWord)); err != nil {
		return nil, err
	}

	data, err := w.decryptDataObject(ssc, dos)
	if err != nil {
		return nil, err
	}

	sw1, sw2 := resp.SW1, resp.SW2
	if sw, ok := dos.value(tagStatusWord); ok {
		if len(sw) != 2 {
			return nil, fmt.Errorf("%w: %w", ErrSecurityViolation, errInvalidStatusWord)
		}

		sw1, sw2 = sw[0], sw[1]
	}

	return &iso.RAPDU{
		Data: data,
		SW1:  sw1,
		SW2:  sw2,
	}, nil
}

// ExpectedLength returns the Ne of a wrapped command carrying dataLen bytes
// of data objects for an original command expecting ne bytes.
func ExpectedLength(dataLen, ne int) int {
	if dataLen > iso.MaxLenCommandDataStandard || ne > iso.MaxLenResponseDataStandard {
		return iso.MaxLenResponseDataExtended
	}

	return iso.MaxLenResponseDataStandard
}

// header returns the padded command header with a masked class byte.
func (w *Wrapper) header(cla byte, cmd *iso.CAPDU) []byte {
	return Pad([]byte{cla, byte(cmd.Ins), cmd.P1, cmd.P2}, w.cipher.BlockSize())
}

// checksum computes the MAC over the padded concatenation
// of the SSC and the given fields.
func (w *Wrapper) checksum(ssc []byte, fields ...[]byte) []byte {
	n := len(ssc)
	for _, f := range fields {
		n += len(f)
	}

	buf := make([]byte, 0, n)
	buf = append(buf, ssc...)
	for _, f := range fields {
		buf = append(buf, f...)
	}

	return w.mac(Pad(buf, w.cipher.BlockSize()))
}

// verify checks the MAC data object against the given fields
// unless checks are disabled.
func (w *Wrapper) verify(ssc []byte, dos dataObjects, fields ...[]byte) error {
	if w.SkipMACCheck {
		return nil
	}

	mac, ok := dos.value(tagMAC)
	if !ok {
		return fmt.Errorf("%w: %w: MAC", ErrSecurityViolation, errMissingDataObject)
	}

	if subtle.ConstantTimeCompare(mac, w.checksum(ssc, fields...)) != 1 {
		return fmt.Errorf("%w: %w", ErrSecurityViolation, errInvalidMAC)
	}

	return nil
}

func (w *Wrapper) decryptDataObject(ssc []byte, dos dataObjects) ([]byte, error) {
	if ct, ok := dos.value(tagCryptogram); ok {
		if len(ct) < 1 || ct[0] != paddingIndicator {
			return nil, fmt.Errorf("%w: %w", ErrSecurityViolation, errMissingPadding)
		}

		return w.decrypt(ssc, ct[1:])
	} else if ct, ok := dos.value(tagCryptogramOdd); ok {
		return w.decrypt(ssc, ct)
	}

	return nil, nil
}

func encodeLe(ne int) []byte {
	switch {
	case ne == iso.MaxLenResponseDataExtended:
		return []byte{0x00, 0x00}
	case ne > iso.MaxLenResponseDataStandard:
		return []byte{byte(ne >> 8), byte(ne)}
	case ne == iso.MaxLenResponseDataStandard:
		return []byte{0x00}
	default:
		return []byte{byte(ne)}
	}
}

func decodeLe(le []byte) (int, error) {
	switch len(le) {
	case 1:
		if le[0] == 0 {
			return iso.MaxLenResponseDataStandard, nil
		}

		return int(le[0]), nil

	case 2:
		if ne := int(le[0])<<8 | int(le[1]); ne != 0 {
			return ne, nil
		}

		return iso.MaxLenResponseDataExtended, nil

	default:
		return 0, errInvalidLengthField
	}
}

// dataObject is a decoded secure messaging data object
// together with its original encoding.
type dataObject struct {
	tag   tlv.Tag
	value []byte
	raw   []byte
}

type dataObjects []dataObject

// parseDataObjects splits buf into data objects. Only the given tags
// are accepted and every tag may occur once.
func parseDataObjects(buf []byte, tags ...tlv.Tag) (dos dataObjects, err error) {
	for len(buf) > 0 {
		var tv tlv.TagValue

		rest, err := tv.UnmarshalBER(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode data objects: %w", ErrSecurityViolation, err)
		}

		known := false
		for _, t := range tags {
			if t == tv.Tag {
				known = true
				break
			}
		}

		if !known {
			return nil, fmt.Errorf("%w: %w: %#x", ErrSecurityViolation, errUnexpectedTag, tv.Tag)
		} else if _, ok := dos.value(tv.Tag); ok {
			return nil, fmt.Errorf("%w: %w: duplicate %#x", ErrSecurityViolation, errUnexpectedTag, tv.Tag)
		}

		dos = append(dos, dataObject{
			tag:   tv.Tag,
			value: tv.Value,
			raw:   buf[:len(buf)-len(rest)],
		})

		buf = rest
	}

	return dos, nil
}

func (dos dataObjects) value(tag tlv.Tag) ([]byte, bool) {
	for _, do := range dos {
		if do.tag == tag {
			return do.value, true
		}
	}

	return nil, false
}

// raw returns the original encoding of the first data object
// matching one of the tags.
func (dos dataObjects) raw(tags ...tlv.Tag) []byte {
	for _, do := range dos {
		for _, t := range tags {
			if do.tag == t {
				return do.raw
			}
		}
	}

	return nil
}
