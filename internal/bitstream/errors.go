package bitstream

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMagicNumber is returned when the stream starts with neither the
	// bitcode magic nor the bitcode wrapper magic.
	ErrInvalidMagicNumber = errors.New("invalid magic number")
	// ErrTruncated is returned when the stream ends inside a block or field.
	ErrTruncated = errors.New("unexpected end of stream")
	// ErrUnknownAbbreviation is returned for an abbreviation id that the
	// current block never defined.
	ErrUnknownAbbreviation = errors.New("unknown abbreviation")
	// ErrInvalidAbbreviationEncoding is returned for a malformed DEFINE_ABBREV.
	ErrInvalidAbbreviationEncoding = errors.New("invalid abbreviation encoding")
	ErrInvalidWidth                = errors.New("invalid field width")
	ErrVBROverflow                 = errors.New("variable-width integer overflows 64 bits")
	ErrUnexpectedEndBlock          = errors.New("end block outside of any block")
	ErrUnexpectedControlCode       = errors.New("unexpected control code at top level")
)

// FormatError reports a malformed stream. Decoding does not recover from it.
type FormatError struct {
	// Offset is the bit offset in the stream where the problem was detected.
	Offset uint64
	// BlockID is the innermost open block, or TopLevel.
	BlockID uint32
	Err     error
}

// TopLevel is the BlockID of a FormatError raised outside of any block.
const TopLevel = ^uint32(0)

func (e *FormatError) Error() string {
	if e.BlockID == TopLevel {
		return fmt.Sprintf("malformed bitstream at bit %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("malformed bitstream at bit %d in block %d: %v", e.Offset, e.BlockID, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}
