package bitstream

import (
	"fmt"
	"strings"
)

// UnabbreviatedID is Record.AbbrevID of a record read with UNABBREV_RECORD.
const UnabbreviatedID = -1

// Record is one decoded record.
//
// Records handed to a BlockParser alias the decoder's staging buffer and are
// only valid for the duration of the callback. Use Clone to keep one.
type Record struct {
	Code uint32
	Ops  []uint64
	// Blob is set when the abbreviation ends with a blob operand.
	Blob []byte
	// AbbrevID is the abbreviation index (code - 4) or UnabbreviatedID.
	AbbrevID int
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	ret := &Record{Code: r.Code, AbbrevID: r.AbbrevID}
	if len(r.Ops) > 0 {
		ret.Ops = append([]uint64(nil), r.Ops...)
	}
	if r.Blob != nil {
		ret.Blob = append([]byte(nil), r.Blob...)
	}
	return ret
}

// String returns the operands as text, e.g. "<2> [1, 5]".
func (r *Record) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%d>", r.Code)
	if len(r.Ops) > 0 {
		b.WriteString(" [")
		for i, op := range r.Ops {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%d", op)
		}
		b.WriteByte(']')
	}
	if r.Blob != nil {
		fmt.Fprintf(&b, " blob=%d bytes", len(r.Blob))
	}
	return b.String()
}

// Op returns operand i or an error naming the record when it is missing.
func (r *Record) Op(i int) (uint64, error) {
	if i < 0 || i >= len(r.Ops) {
		return 0, fmt.Errorf("record <%d> has %d operands, want at least %d", r.Code, len(r.Ops), i+1)
	}
	return r.Ops[i], nil
}

// Chars decodes operands [from, to) as one byte per operand.
func (r *Record) Chars(from, to int) (string, error) {
	if from < 0 || to > len(r.Ops) || from > to {
		return "", fmt.Errorf("record <%d> has %d operands, want range [%d, %d)", r.Code, len(r.Ops), from, to)
	}
	b := make([]byte, to-from)
	for i := range b {
		b[i] = byte(r.Ops[from+i])
	}
	return string(b), nil
}
