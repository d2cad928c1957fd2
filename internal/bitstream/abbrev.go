package bitstream

import "fmt"

// Encoding is how one abbreviation operand is encoded.
type Encoding byte

const (
	// EncodingLiteral is not part of the wire encoding: literal operands are
	// flagged by a separate bit.
	EncodingLiteral Encoding = 0
	EncodingFixed   Encoding = 1
	EncodingVBR     Encoding = 2
	EncodingArray   Encoding = 3
	EncodingChar6   Encoding = 4
	EncodingBlob    Encoding = 5
)

func (e Encoding) String() (ret string) {
	switch e {
	case EncodingLiteral:
		ret = "literal"
	case EncodingFixed:
		ret = "fixed"
	case EncodingVBR:
		ret = "vbr"
	case EncodingArray:
		ret = "array"
	case EncodingChar6:
		ret = "char6"
	case EncodingBlob:
		ret = "blob"
	default:
		ret = fmt.Sprintf("<unknown=%d>", e)
	}
	return
}

// AbbrevOp is one operand of an abbreviation. Value is the literal value for
// EncodingLiteral and the bit width for EncodingFixed and EncodingVBR.
type AbbrevOp struct {
	Encoding Encoding
	Value    uint64
}

// Abbrev is a record template defined by DEFINE_ABBREV. An array operand is
// always followed by its element operand, which is the last one.
type Abbrev struct {
	Ops []AbbrevOp
}

// readAbbrev decodes the body of a DEFINE_ABBREV.
func readAbbrev(r *Reader) (*Abbrev, error) {
	n, err := r.ReadVBR(5)
	if err != nil {
		return nil, err
	}
	if n == 0 || n > r.Remaining() {
		return nil, ErrInvalidAbbreviationEncoding
	}
	a := &Abbrev{Ops: make([]AbbrevOp, 0, n)}
	for i := uint64(0); i < n; i++ {
		literal, err := r.ReadFixed(1)
		if err != nil {
			return nil, err
		}
		if literal == 1 {
			v, err := r.ReadVBR(8)
			if err != nil {
				return nil, err
			}
			a.Ops = append(a.Ops, AbbrevOp{Encoding: EncodingLiteral, Value: v})
			continue
		}

		enc, err := r.ReadFixed(3)
		if err != nil {
			return nil, err
		}
		op := AbbrevOp{Encoding: Encoding(enc)}
		switch op.Encoding {
		case EncodingFixed, EncodingVBR:
			if op.Value, err = r.ReadVBR(5); err != nil {
				return nil, err
			}
			if op.Value == 0 {
				// A zero-width field always reads zero.
				op = AbbrevOp{Encoding: EncodingLiteral}
			} else if op.Value > 64 || (op.Encoding == EncodingVBR && op.Value < 2) {
				return nil, ErrInvalidAbbreviationEncoding
			}
		case EncodingArray, EncodingChar6, EncodingBlob:
		default:
			return nil, ErrInvalidAbbreviationEncoding
		}
		a.Ops = append(a.Ops, op)
	}
	if err = a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Abbrev) validate() error {
	last := len(a.Ops) - 1
	switch a.Ops[0].Encoding {
	case EncodingArray, EncodingBlob:
		// The first operand is the record code and must be a scalar.
		return ErrInvalidAbbreviationEncoding
	}
	for i, op := range a.Ops {
		switch op.Encoding {
		case EncodingArray:
			if i != last-1 {
				return ErrInvalidAbbreviationEncoding
			}
			switch a.Ops[last].Encoding {
			case EncodingArray, EncodingBlob:
				return ErrInvalidAbbreviationEncoding
			}
		case EncodingBlob:
			if i != last {
				return ErrInvalidAbbreviationEncoding
			}
		}
	}
	return nil
}

func readScalar(r *Reader, op AbbrevOp) (uint64, error) {
	switch op.Encoding {
	case EncodingLiteral:
		return op.Value, nil
	case EncodingFixed:
		return r.ReadFixed(int(op.Value))
	case EncodingVBR:
		return r.ReadVBR(int(op.Value))
	case EncodingChar6:
		c, err := r.ReadChar6()
		return uint64(c), err
	}
	return 0, ErrInvalidAbbreviationEncoding
}

// readRecord decodes one abbreviated record into rec, reusing rec.Ops.
func (a *Abbrev) readRecord(r *Reader, rec *Record) error {
	code, err := readScalar(r, a.Ops[0])
	if err != nil {
		return err
	}
	rec.Code = uint32(code)
	for i := 1; i < len(a.Ops); i++ {
		op := a.Ops[i]
		switch op.Encoding {
		case EncodingArray:
			n, err := r.ReadVBR(6)
			if err != nil {
				return err
			}
			if n > r.Remaining() {
				return ErrTruncated
			}
			elt := a.Ops[i+1]
			for j := uint64(0); j < n; j++ {
				v, err := readScalar(r, elt)
				if err != nil {
					return err
				}
				rec.Ops = append(rec.Ops, v)
			}
			return nil
		case EncodingBlob:
			n, err := r.ReadVBR(6)
			if err != nil {
				return err
			}
			if err = r.AlignWord32(); err != nil {
				return err
			}
			if rec.Blob, err = r.ReadBytes(n); err != nil {
				return err
			}
			return r.AlignWord32()
		default:
			v, err := readScalar(r, op)
			if err != nil {
				return err
			}
			rec.Ops = append(rec.Ops, v)
		}
	}
	return nil
}
