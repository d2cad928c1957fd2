package bitstream

import (
	"bytes"
	"encoding/binary"
)

// Magic is the 4 byte preamble ("BC" 0xC0DE) of a raw bitcode stream.
var Magic = []byte{'B', 'C', 0xC0, 0xDE}

// WrapperMagic starts the optional bitcode wrapper header, which is five
// little-endian 32-bit fields: magic, version, offset, size and cputype.
const WrapperMagic = uint32(0x0B17C0DE)

const wrapperHeaderSize = 20

// Unwrap strips the bitcode wrapper when present and checks the magic. The
// returned slice still starts with the magic.
func Unwrap(data []byte) ([]byte, error) {
	if len(data) >= 4 && binary.LittleEndian.Uint32(data) == WrapperMagic {
		if len(data) < wrapperHeaderSize {
			return nil, &FormatError{BlockID: TopLevel, Err: ErrTruncated}
		}
		offset := uint64(binary.LittleEndian.Uint32(data[8:]))
		size := uint64(binary.LittleEndian.Uint32(data[12:]))
		if offset+size > uint64(len(data)) {
			return nil, &FormatError{Offset: 8 * 8, BlockID: TopLevel, Err: ErrTruncated}
		}
		data = data[offset : offset+size]
	}
	if len(data) < len(Magic) || !bytes.Equal(data[:len(Magic)], Magic) {
		return nil, &FormatError{BlockID: TopLevel, Err: ErrInvalidMagicNumber}
	}
	return data, nil
}
