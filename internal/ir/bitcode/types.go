package bitcode

import (
	"fmt"

	"github.com/tetratelabs/bitzero/internal/bitstream"
	"github.com/tetratelabs/bitzero/internal/ir"
)

// Type table record codes.
const (
	typeCodeNumEntry      = 1
	typeCodeVoid          = 2
	typeCodeFloat         = 3
	typeCodeDouble        = 4
	typeCodeLabel         = 5
	typeCodeOpaque        = 6
	typeCodeInteger       = 7
	typeCodePointer       = 8
	typeCodeFunctionOld   = 9
	typeCodeHalf          = 10
	typeCodeArray         = 11
	typeCodeVector        = 12
	typeCodeX86FP80       = 13
	typeCodeFP128         = 14
	typeCodePPCFP128      = 15
	typeCodeMetadata      = 16
	typeCodeX86MMX        = 17
	typeCodeStructAnon    = 18
	typeCodeStructName    = 19
	typeCodeStructNamed   = 20
	typeCodeFunction      = 21
	typeCodeToken         = 22
	typeCodeOpaquePointer = 25
)

// maxIntegerBits is the widest integer type LLVM accepts.
const maxIntegerBits = 1<<23 - 1

// maxTypeEntries bounds the placeholders a NUMENTRY record may allocate.
const maxTypeEntries = 1 << 20

// typeParser fills the type table. NUMENTRY pre-allocates placeholders so a
// record can reference a type defined later; each definition overwrites its
// placeholder in place.
type typeParser struct {
	blockState
	d          *decoder
	next       int
	structName string
}

func (p *typeParser) Subblock(uint32) (bitstream.BlockParser, error) { return nil, nil }

func (p *typeParser) Record(rec *bitstream.Record) error {
	defer p.advance()
	return p.check(p.record(rec))
}

func (p *typeParser) record(rec *bitstream.Record) error {
	o := &ops{rec: rec}
	var t ir.Type
	switch rec.Code {
	case typeCodeNumEntry:
		n, err := o.next()
		if err != nil {
			return err
		}
		if n > maxTypeEntries {
			return fmt.Errorf("%w: %d type entries", ErrOperandOutOfRange, n)
		}
		for uint64(len(p.d.types)) < n {
			p.d.types = append(p.d.types, &ir.Type{})
		}
		return nil
	case typeCodeStructName:
		p.structName = o.chars()
		return nil
	case typeCodeVoid:
		t.Kind = ir.TypeVoid
	case typeCodeHalf:
		t.Kind = ir.TypeHalf
	case typeCodeFloat:
		t.Kind = ir.TypeFloat
	case typeCodeDouble:
		t.Kind = ir.TypeDouble
	case typeCodeX86FP80:
		t.Kind = ir.TypeX86FP80
	case typeCodeFP128:
		t.Kind = ir.TypeFP128
	case typeCodePPCFP128:
		t.Kind = ir.TypePPCFP128
	case typeCodeLabel:
		t.Kind = ir.TypeLabel
	case typeCodeMetadata:
		t.Kind = ir.TypeMetadata
	case typeCodeToken:
		t.Kind = ir.TypeToken
	case typeCodeX86MMX:
		t.Kind = ir.TypeX86MMX
	case typeCodeOpaque:
		t.Kind, t.Name, p.structName = ir.TypeOpaque, p.structName, ""
	case typeCodeInteger:
		bits, err := o.next()
		if err != nil {
			return err
		}
		if bits == 0 || bits > maxIntegerBits {
			return fmt.Errorf("%w: i%d", ErrInvalidType, bits)
		}
		t.Kind, t.Bits = ir.TypeInteger, uint32(bits)
	case typeCodePointer:
		elem, err := p.operand(o)
		if err != nil {
			return err
		}
		t.Kind, t.Elem = ir.TypePointer, elem
		if o.remaining() > 0 {
			t.AddrSpace, _ = o.next()
		}
	case typeCodeOpaquePointer:
		t.Kind = ir.TypePointer
		if o.remaining() > 0 {
			t.AddrSpace, _ = o.next()
		}
	case typeCodeArray, typeCodeVector:
		n, err := o.next()
		if err != nil {
			return err
		}
		elem, err := p.operand(o)
		if err != nil {
			return err
		}
		t.Kind, t.Len, t.Elem = ir.TypeArray, n, elem
		if rec.Code == typeCodeVector {
			if n == 0 {
				return fmt.Errorf("%w: zero length vector", ErrInvalidType)
			}
			t.Kind = ir.TypeVector
		}
	case typeCodeStructAnon, typeCodeStructNamed:
		packed, err := o.next()
		if err != nil {
			return err
		}
		t.Kind, t.Packed = ir.TypeStruct, packed != 0
		for o.remaining() > 0 {
			f, err := p.operand(o)
			if err != nil {
				return err
			}
			t.Fields = append(t.Fields, f)
		}
		if rec.Code == typeCodeStructNamed {
			t.Name, p.structName = p.structName, ""
		}
	case typeCodeFunction, typeCodeFunctionOld:
		vararg, err := o.next()
		if err != nil {
			return err
		}
		if rec.Code == typeCodeFunctionOld {
			// Attribute id, unused.
			if _, err = o.next(); err != nil {
				return err
			}
		}
		if t.Ret, err = p.operand(o); err != nil {
			return err
		}
		t.Kind, t.VarArg = ir.TypeFunction, vararg != 0
		for o.remaining() > 0 {
			param, err := p.operand(o)
			if err != nil {
				return err
			}
			t.Params = append(t.Params, param)
		}
	default:
		return fmt.Errorf("%w: type record <%d>", ErrUnknownRecord, rec.Code)
	}
	return p.define(&t)
}

func (p *typeParser) operand(o *ops) (*ir.Type, error) {
	id, err := o.next()
	if err != nil {
		return nil, err
	}
	return p.d.typeAt(id)
}

func (p *typeParser) define(t *ir.Type) error {
	if p.next < len(p.d.types) {
		*p.d.types[p.next] = *t
	} else {
		p.d.types = append(p.d.types, t)
	}
	p.next++
	return nil
}

func (p *typeParser) Exit() error {
	for i, t := range p.d.types {
		if !t.Resolved() {
			return p.check(fmt.Errorf("%w: type %d", ErrUnresolved, i))
		}
	}
	p.d.m.Types = p.d.types
	return nil
}
