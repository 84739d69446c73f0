// SPDX-FileCopyrightText: 2023 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"encoding/binary"
	"errors"
	"fmt"

	iso "cunicu.li/go-iso7816"
	"cunicu.li/go-iso7816/encoding/tlv"
)

var errInvalidFileHeader = errors.New("invalid file header")

// AidEMRTD is the application identifier of the ICAO eMRTD application.
//
//nolint:gochecknoglobals
var AidEMRTD = []byte{0xa0, 0x00, 0x00, 0x02, 0x47, 0x10, 0x01}

// FileID is a short elementary file identifier.
type FileID uint16

// ICAO Doc 9303 Part 10, Section 4 and BSI TR-03110 Part 3, Appendix A.1.2
const (
	// Master file
	FileCardAccess   FileID = 0x011c // EF.CardAccess
	FileCardSecurity FileID = 0x011d // EF.CardSecurity
	FileChipSecurity FileID = 0x011b // EF.ChipSecurity

	// eMRTD application
	FileCOM FileID = 0x011e // EF.COM
	FileSOD FileID = 0x011d // EF.SOD
	FileDG1 FileID = 0x0101 // Machine readable zone
	FileDG2 FileID = 0x0102 // Encoded face
	// DG3 to DG13 hold further biometrics and optional details
	FileDG14 FileID = 0x010e // Security options (SecurityInfos)
	FileDG15 FileID = 0x010f // Active Authentication public key
	FileDG16 FileID = 0x0110 // Persons to notify
)

// FileDG returns the identifier of data group n.
func FileDG(n int) FileID {
	return FileID(0x0100 + n)
}

func (f FileID) Bytes() []byte {
	return binary.BigEndian.AppendUint16(nil, uint16(f))
}

func (f FileID) String() string {
	return fmt.Sprintf("%04X", uint16(f))
}

// maxOffsetShort is the largest offset encoded in P1-P2 of READ BINARY.
const maxOffsetShort = 0x7fff

// lenFileHeader is enough to hold the tag and length of any LDS file.
const lenFileHeader = 8

// SelectApplet selects the eMRTD application.
func (c *Card) SelectApplet() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.selectApplet(AidEMRTD)
}

func (c *Card) selectApplet(aid []byte) error {
	if _, err := c.send(&iso.CAPDU{
		Ins:  iso.InsSelect,
		P1:   0x04,
		P2:   0x0c,
		Data: aid,
	}); err != nil {
		return fmt.Errorf("failed to select applet: %w", err)
	}

	return nil
}

// SelectMasterFile selects the master file which contains
// EF.CardAccess and EF.CardSecurity.
func (c *Card) SelectMasterFile() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.selectMasterFile()
}

func (c *Card) selectMasterFile() error {
	if _, err := c.send(&iso.CAPDU{
		Ins: iso.InsSelect,
		P1:  0x00,
		P2:  0x0c,
	}); err != nil {
		return fmt.Errorf("failed to select master file: %w", err)
	}

	return nil
}

// SelectFile selects an elementary file of the current application.
func (c *Card) SelectFile(fid FileID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.selectFile(fid)
}

func (c *Card) selectFile(fid FileID) error {
	if _, err := c.send(&iso.CAPDU{
		Ins:  iso.InsSelect,
		P1:   0x02,
		P2:   0x0c,
		Data: fid.Bytes(),
	}); err != nil {
		return fmt.Errorf("failed to select file %s: %w", fid, err)
	}

	return nil
}

// ReadBinary reads up to length bytes from the selected file. Offsets
// beyond 0x7FFF are read with the odd instruction.
// Fewer bytes are returned if the end of the file is reached.
func (c *Card) ReadBinary(offset, length int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.readBinary(offset, length)
}

func (c *Card) readBinary(offset, length int) ([]byte, error) {
	cmd := &iso.CAPDU{
		Ne: length,
	}

	odd := offset > maxOffsetShort
	if odd {
		data, err := tlv.New(tagOffset, minimalBytes(offset)).MarshalBER()
		if err != nil {
			return nil, err
		}

		cmd.Ins = iso.InsReadBinaryOdd
		cmd.Data = data
	} else {
		cmd.Ins = iso.InsReadBinary
		cmd.P1 = byte(offset >> 8)
		cmd.P2 = byte(offset)
	}

	resp, err := c.transceive(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to read binary: %w", err)
	}

	// Wrong length: the exact number of available bytes is indicated
	if code := resp.Code(); code[0] == 0x6c {
		c.log.Debugf("Retrying read with Le %d", code[1])

		if cmd.Ne = int(code[1]); cmd.Ne == 0 {
			cmd.Ne = iso.MaxLenResponseDataStandard
		}

		if resp, err = c.transceive(cmd); err != nil {
			return nil, fmt.Errorf("failed to read binary: %w", err)
		}
	}

	if code := resp.Code(); !code.IsSuccess() && code != iso.ErrEOF {
		return nil, fmt.Errorf("failed to read binary: %w", wrapCode(code))
	}

	if !odd {
		return resp.Data, nil
	}

	tvs, err := tlv.DecodeBER(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUnmarshal, err)
	}

	data, _, ok := tvs.Get(tagDiscretionaryData)
	if !ok {
		return nil, fmt.Errorf("%w: discretionary data", errMissingTag)
	}

	return data, nil
}

// ReadFile selects and reads a complete elementary file. The length of the
// file is taken from the BER-TLV header of its content.
func (c *Card) ReadFile(fid FileID) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.readFile(fid)
}

// ReadCardAccess reads EF.CardAccess from the master file. The
// SecurityInfos it contains can be parsed with ParseSecurityInfos.
func (c *Card) ReadCardAccess() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.selectMasterFile(); err != nil {
		return nil, err
	}

	return c.readFile(FileCardAccess)
}

func (c *Card) readFile(fid FileID) ([]byte, error) {
	if err := c.selectFile(fid); err != nil {
		return nil, err
	}

	header, err := c.readBinary(0, lenFileHeader)
	if err != nil {
		return nil, err
	}

	total, err := fileLength(header)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, total)
	buf = append(buf, header[:min(len(header), total)]...)

	chunk := c.maxReadLength()

	for len(buf) < total {
		data, err := c.readBinary(len(buf), min(chunk, total-len(buf)))
		if err != nil {
			return nil, err
		}

		if len(data) == 0 {
			return nil, fmt.Errorf("%w of file %s: got=%dB, want=%dB", errUnexpectedLength, fid, len(buf), total)
		}

		buf = append(buf, data...)
	}

	c.log.Debugf("Read %d bytes from file %s", len(buf), fid)

	return buf[:total], nil
}

// maxReadLength returns the largest plain response which fits into a single
// protected response of the configured maximum transceive length.
func (c *Card) maxReadLength() int {
	if c.wrapper == nil {
		return iso.MaxLenResponseDataStandard
	}

	// DO87 header, padding indicator, DO99, DO8E and status word
	const overhead = 4 + 1 + 4 + 10

	bs := c.wrapper.PadLength()
	n := (c.wrapper.MaxTransceiveLength - overhead) / bs * bs

	return n - 1
}

// fileLength decodes the total length of a file from its BER-TLV header.
func fileLength(header []byte) (int, error) {
	var tag tlv.Tag

	rest, err := tag.UnmarshalBER(header)
	if err != nil || len(rest) == 0 {
		return 0, errInvalidFileHeader
	}

	lenTag := len(header) - len(rest)

	switch l := rest[0]; {
	case l < 0x80:
		return lenTag + 1 + int(l), nil

	case l > 0x80 && l <= 0x84 && len(rest) > int(l&0x7f):
		n := int(l & 0x7f)
		v := 0
		for _, b := range rest[1 : 1+n] {
			v = v<<8 | int(b)
		}

		return lenTag + 1 + n + v, nil

	default:
		return 0, errInvalidFileHeader
	}
}

// minimalBytes encodes a non-negative integer big-endian without leading zeros.
func minimalBytes(v int) []byte {
	var b []byte
	for ; v > 0; v >>= 8 {
		b = append([]byte{byte(v)}, b...)
	}

	if len(b) == 0 {
		return []byte{0}
	}

	return b
}
