// SPDX-FileCopyrightText: 2023-2024 Steffen Vogel <post@steffenvogel.de>
// SPDX-License-Identifier: Apache-2.0

package eac

import (
	"testing"

	iso "cunicu.li/go-iso7816"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileChip(t *testing.T) *testChip {
	t.Helper()

	return &testChip{
		files: map[FileID][]byte{
			FileCOM: newLDSFile(t, 0x60, 22),
			FileDG1: newLDSFile(t, 0x61, 93),
			FileDG2: newLDSFile(t, 0x75, 2000),
		},
	}
}

func TestReadFile(t *testing.T) {
	for _, chunk := range []int{0, 100} {
		chip := newFileChip(t)
		chip.responseChunk = chunk

		withCard(t, chip, func(t *testing.T, c *Card) {
			require.NoError(t, c.SelectApplet())

			for _, fid := range []FileID{FileCOM, FileDG1, FileDG2} {
				buf, err := c.ReadFile(fid)
				require.NoError(t, err, "Failed to read file %s", fid)
				assert.Equal(t, chip.files[fid], buf)
			}

			for _, cmd := range chip.commands {
				assert.NotEqual(t, iso.InsReadBinaryOdd, cmd.Ins)
				assert.LessOrEqual(t, cmd.Ne, iso.MaxLenResponseDataStandard)
			}
		})
	}
}

func TestReadFileSecureMessaging(t *testing.T) {
	for _, chunk := range []int{0, 64} {
		key := NewCAN("123456")

		chip := newPACEChip(key, bp256(t))
		chip.files = newFileChip(t).files
		chip.responseChunk = chunk

		withCard(t, chip, func(t *testing.T, c *Card) {
			doPACE(t, c, key)

			buf, err := c.ReadFile(FileDG2)
			require.NoError(t, err)
			assert.Equal(t, chip.files[FileDG2], buf)
			assert.True(t, c.IsSecure())

			for _, cmd := range chip.commands {
				if cmd.Ins == iso.InsReadBinary {
					assert.LessOrEqual(t, cmd.Ne, c.maxReadLength())
				}
			}
		})
	}
}

func TestReadFileMaxTransceiveLength(t *testing.T) {
	key := NewCAN("123456")

	chip := newPACEChip(key, bp256(t))
	chip.files = newFileChip(t).files

	withCardConfig(t, chip, &Config{MaxTransceiveLength: 1024}, func(t *testing.T, c *Card) {
		doPACE(t, c, key)

		assert.Equal(t, 1024, c.Wrapper().MaxTransceiveLength)
		assert.Equal(t, 991, c.maxReadLength())

		n := len(chip.commands)

		buf, err := c.ReadFile(FileDG2)
		require.NoError(t, err)
		assert.Equal(t, chip.files[FileDG2], buf)

		// Select, header and three chunks
		assert.Len(t, chip.commands[n:], 5)
	})
}

func TestReadFileOddOffset(t *testing.T) {
	chip := &testChip{
		files: map[FileID][]byte{
			FileDG2: newLDSFile(t, 0x75, 0x8100),
		},
	}

	withCard(t, chip, func(t *testing.T, c *Card) {
		buf, err := c.ReadFile(FileDG2)
		require.NoError(t, err)
		assert.Equal(t, chip.files[FileDG2], buf)

		odd := 0
		for _, cmd := range chip.commands {
			if cmd.Ins == iso.InsReadBinaryOdd {
				odd++
			}
		}

		assert.Positive(t, odd)

		data, err := c.ReadBinary(0x8000, 16)
		require.NoError(t, err)
		assert.Equal(t, chip.files[FileDG2][0x8000:0x8010], data)

		last := chip.commands[len(chip.commands)-1]
		assert.Equal(t, iso.InsReadBinaryOdd, last.Ins)
		assert.Equal(t, []byte{0x54, 0x02, 0x80, 0x00}, last.Data)
	})
}

func TestReadBinary(t *testing.T) {
	chip := newFileChip(t)

	withCard(t, chip, func(t *testing.T, c *Card) {
		require.NoError(t, c.SelectFile(FileDG1))

		data, err := c.ReadBinary(2, 4)
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 1, 2, 3}, data)

		// Reads beyond the end of the file return what is available
		data, err = c.ReadBinary(90, 16)
		require.NoError(t, err)
		assert.Equal(t, chip.files[FileDG1][90:], data)

		_, err = c.ReadBinary(200, 4)
		assert.ErrorIs(t, err, iso.ErrWrongParams)
	})
}

func TestReadFileNotFound(t *testing.T) {
	chip := newFileChip(t)

	withCard(t, chip, func(t *testing.T, c *Card) {
		_, err := c.ReadFile(FileDG15)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestReadCardAccess(t *testing.T) {
	cardAccess := marshalSecurityInfos(t, false,
		paceInfo(OIDPACEECDHGMAES128, ParameterIDBP256),
		paceInfo(OIDPACEECDHIMAES128, ParameterIDBP256),
	)

	chip := &testChip{
		files: map[FileID][]byte{
			FileCardAccess: cardAccess,
		},
	}

	withCard(t, chip, func(t *testing.T, c *Card) {
		buf, err := c.ReadCardAccess()
		require.NoError(t, err)
		assert.Equal(t, cardAccess, buf)

		require.NotEmpty(t, chip.commands)
		assert.Equal(t, iso.InsSelect, chip.commands[0].Ins)
		assert.Equal(t, byte(0x00), chip.commands[0].P1)

		infos, err := ParseSecurityInfos(buf)
		require.NoError(t, err)

		pace := infos.PACEInfos()
		require.Len(t, pace, 2)
		assert.True(t, pace[1].Protocol.Equal(OIDPACEECDHIMAES128))
	})
}

func TestHasCardAccess(t *testing.T) {
	chip := &testChip{
		t: t,
		files: map[FileID][]byte{
			FileCardAccess: {0x31, 0x00},
		},
	}

	ok, err := HasCardAccess(chip)
	require.NoError(t, err)
	assert.True(t, ok)

	chip = newFileChip(t)
	chip.t = t

	ok, err = HasCardAccess(chip)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = IsEMRTD(chip)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = HasCardAccess(nil)
	assert.Error(t, err)
}

func TestFileLength(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		length int
		err    bool
	}{
		{"Short", []byte{0x61, 0x05}, 7, false},
		{"OneByte", []byte{0x61, 0x81, 0xc8, 0x5f}, 203, false},
		{"TwoBytes", []byte{0x75, 0x82, 0x07, 0xd0}, 2004, false},
		{"TwoByteTag", []byte{0x7f, 0x61, 0x82, 0x01, 0x00}, 261, false},
		{"TooLong", []byte{0x61, 0x85, 0x01, 0x02, 0x03, 0x04, 0x05}, 0, true},
		{"Indefinite", []byte{0x61, 0x80}, 0, true},
		{"Truncated", []byte{0x61, 0x82, 0x01}, 0, true},
		{"MissingLength", []byte{0x61}, 0, true},
		{"Empty", nil, 0, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			length, err := fileLength(test.header)
			if test.err {
				assert.ErrorIs(t, err, errInvalidFileHeader)
			} else {
				require.NoError(t, err)
				assert.Equal(t, test.length, length)
			}
		})
	}
}

func TestMinimalBytes(t *testing.T) {
	assert.Equal(t, []byte{0x00}, minimalBytes(0))
	assert.Equal(t, []byte{0x7f}, minimalBytes(0x7f))
	assert.Equal(t, []byte{0x80, 0x00}, minimalBytes(0x8000))
	assert.Equal(t, []byte{0x01, 0x00, 0x00}, minimalBytes(0x10000))
}

func TestFileID(t *testing.T) {
	assert.Equal(t, FileDG14, FileDG(14))
	assert.Equal(t, FileDG1, FileDG(1))
	assert.Equal(t, "011E", FileCOM.String())
	assert.Equal(t, []byte{0x01, 0x1c}, FileCardAccess.Bytes())
}
