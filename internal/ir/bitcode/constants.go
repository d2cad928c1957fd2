package bitcode

import (
	"fmt"

	"github.com/tetratelabs/bitzero/internal/bitstream"
	"github.com/tetratelabs/bitzero/internal/ir"
)

// Constants block record codes.
const (
	constCodeSetType       = 1
	constCodeNull          = 2
	constCodeUndef         = 3
	constCodeInteger       = 4
	constCodeWideInteger   = 5
	constCodeFloat         = 6
	constCodeAggregate     = 7
	constCodeString        = 8
	constCodeCString       = 9
	constCodeCEBinop       = 10
	constCodeCECast        = 11
	constCodeCEGEPOld      = 12
	constCodeCESelect      = 13
	constCodeCECmp         = 17
	constCodeCEInboundsGEP = 20
	constCodeData          = 22
	constCodePoison        = 26
	constCodeCEGEP         = 32
)

// constantsParser defines one value per record, in the current value table:
// module level or function local.
type constantsParser struct {
	blockState
	d   *decoder
	cur *ir.Type
}

func newConstantsParser(d *decoder) *constantsParser {
	return &constantsParser{blockState: blockState{id: BlockConstants}, d: d, cur: ir.I32}
}

func (p *constantsParser) Subblock(uint32) (bitstream.BlockParser, error) { return nil, nil }
func (p *constantsParser) Exit() error                                    { return nil }

func (p *constantsParser) Record(rec *bitstream.Record) error {
	defer p.advance()
	return p.check(p.record(rec))
}

func (p *constantsParser) record(rec *bitstream.Record) error {
	o := &ops{rec: rec}
	if rec.Code == constCodeSetType {
		id, err := o.next()
		if err != nil {
			return err
		}
		p.cur, err = p.d.typeAt(id)
		return err
	}

	c, err := p.constant(rec.Code, o)
	if err != nil {
		return err
	}
	p.d.values.Define(c)
	return nil
}

func (p *constantsParser) constant(code uint32, o *ops) (ir.Value, error) {
	cur := p.cur
	switch code {
	case constCodeNull:
		return &ir.NullConst{Typ: cur}, nil
	case constCodeUndef:
		return &ir.UndefConst{Typ: cur}, nil
	case constCodePoison:
		return &ir.UndefConst{Typ: cur, Poison: true}, nil
	case constCodeInteger:
		v, err := o.next()
		if err != nil {
			return nil, err
		}
		return p.intConst(uint64(bitstream.DecodeSignRotated(v)))
	case constCodeWideInteger:
		// Only the low word is kept; wider arithmetic is not interpreted.
		v, err := o.next()
		if err != nil {
			return nil, err
		}
		return p.intConst(uint64(bitstream.DecodeSignRotated(v)))
	case constCodeFloat:
		if !cur.IsFloat() {
			return nil, fmt.Errorf("%w: float constant of type %s", ErrInvalidType, cur)
		}
		v, err := o.next()
		if err != nil {
			return nil, err
		}
		return &ir.FloatConst{Typ: cur, Bits: v}, nil
	case constCodeAggregate:
		return p.aggregate(o)
	case constCodeString, constCodeCString, constCodeData:
		elems := o.rest()
		if code == constCodeCString {
			elems = append(elems, 0)
		}
		if (cur.Kind != ir.TypeArray && cur.Kind != ir.TypeVector) || uint64(len(elems)) != cur.Len {
			return nil, fmt.Errorf("%w: %d elements for %s", ErrInvalidType, len(elems), cur)
		}
		return &ir.DataConst{Typ: cur, Elems: elems}, nil
	case constCodeCEBinop:
		return p.binop(o)
	case constCodeCECast:
		return p.cast(o)
	case constCodeCEGEPOld, constCodeCEInboundsGEP, constCodeCEGEP:
		return p.gep(code, o)
	case constCodeCESelect:
		c := &ir.ExprConst{Typ: cur, Op: ir.ExprSelect, Operands: make([]ir.Value, 3)}
		condType := ir.I1
		if cur.IsVector() {
			condType = ir.VectorOf(ir.I1, cur.Len)
		}
		for i, typ := range []*ir.Type{condType, cur, cur} {
			if err := p.ref(o, typ, &c.Operands[i]); err != nil {
				return nil, err
			}
		}
		return c, nil
	case constCodeCECmp:
		return p.cmp(o)
	}
	return nil, fmt.Errorf("%w: constant record <%d>", ErrUnknownRecord, code)
}

func (p *constantsParser) intConst(bits uint64) (ir.Value, error) {
	t := p.cur.Scalar()
	if !t.IsInteger() {
		return nil, fmt.Errorf("%w: integer constant of type %s", ErrInvalidType, p.cur)
	}
	if t.Bits < 64 {
		bits &= 1<<t.Bits - 1
	}
	return &ir.IntConst{Typ: p.cur, Bits: bits}, nil
}

// ref reads an absolute value id and resolves it, possibly to a placeholder.
func (p *constantsParser) ref(o *ops, typ *ir.Type, dst *ir.Value) error {
	id, err := o.next()
	if err != nil {
		return err
	}
	return p.d.values.Ref(uint32(id), typ, dst)
}

func (p *constantsParser) aggregate(o *ops) (ir.Value, error) {
	cur := p.cur
	n := o.remaining()
	c := &ir.AggregateConst{Typ: cur, Elems: make([]ir.Value, n)}
	for i := 0; i < n; i++ {
		var elem *ir.Type
		switch cur.Kind {
		case ir.TypeStruct:
			if i >= len(cur.Fields) {
				return nil, fmt.Errorf("%w: %d elements for %s", ErrInvalidType, n, cur)
			}
			elem = cur.Fields[i]
		case ir.TypeArray, ir.TypeVector:
			elem = cur.Elem
		default:
			return nil, fmt.Errorf("%w: aggregate constant of type %s", ErrInvalidType, cur)
		}
		if err := p.ref(o, elem, &c.Elems[i]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// binop decodes [opcode, lhs, rhs, flags?].
func (p *constantsParser) binop(o *ops) (ir.Value, error) {
	opcode, err := o.next()
	if err != nil {
		return nil, err
	}
	op, err := ir.ParseArithmeticOperator(opcode, p.cur.Scalar().IsFloat())
	if err != nil {
		return nil, err
	}
	c := &ir.ExprConst{Typ: p.cur, Op: ir.ExprBinary, Binary: op, Operands: make([]ir.Value, 2)}
	for i := range c.Operands {
		if err = p.ref(o, p.cur, &c.Operands[i]); err != nil {
			return nil, err
		}
	}
	if o.remaining() > 0 {
		raw, _ := o.next()
		c.Flags = ir.DecodeFlags(op, raw)
	}
	return c, nil
}

// cast decodes [opcode, opty, opval].
func (p *constantsParser) cast(o *ops) (ir.Value, error) {
	opcode, err := o.next()
	if err != nil {
		return nil, err
	}
	op, ok := ir.ParseCastOperator(opcode)
	if !ok {
		return nil, fmt.Errorf("%w: cast opcode %d", ir.ErrNoSuchOperator, opcode)
	}
	tid, err := o.next()
	if err != nil {
		return nil, err
	}
	from, err := p.d.typeAt(tid)
	if err != nil {
		return nil, err
	}
	c := &ir.ExprConst{Typ: p.cur, Op: ir.ExprCast, Cast: op, Operands: make([]ir.Value, 1)}
	return c, p.ref(o, from, &c.Operands[0])
}

// gep decodes [pointee type?, (type, value)...] in the old forms, where an odd
// operand count means the pointee type comes first, and
// [pointee type, flags, (type, value)...] in the current one.
func (p *constantsParser) gep(code uint32, o *ops) (ir.Value, error) {
	c := &ir.ExprConst{Op: ir.ExprGEP, InBounds: code == constCodeCEInboundsGEP}
	if code == constCodeCEGEP || o.remaining()%2 == 1 {
		tid, err := o.next()
		if err != nil {
			return nil, err
		}
		if c.SourceElem, err = p.d.typeAt(tid); err != nil {
			return nil, err
		}
	}
	if code == constCodeCEGEP {
		flags, err := o.next()
		if err != nil {
			return nil, err
		}
		c.InBounds = flags&1 != 0
	}
	n := o.remaining() / 2
	if n == 0 {
		return nil, fmt.Errorf("%w: getelementptr without base", ErrOperandOutOfRange)
	}
	c.Operands = make([]ir.Value, n)
	for i := 0; i < n; i++ {
		tid, err := o.next()
		if err != nil {
			return nil, err
		}
		typ, err := p.d.typeAt(tid)
		if err != nil {
			return nil, err
		}
		if err = p.ref(o, typ, &c.Operands[i]); err != nil {
			return nil, err
		}
	}
	c.Typ = c.Operands[0].Type()
	if c.SourceElem == nil {
		if c.Typ.Elem == nil {
			return nil, fmt.Errorf("%w: getelementptr on %s without source type", ErrInvalidType, c.Typ)
		}
		c.SourceElem = c.Typ.Elem
	}
	return c, nil
}

// cmp decodes [opty, lhs, rhs, predicate].
func (p *constantsParser) cmp(o *ops) (ir.Value, error) {
	tid, err := o.next()
	if err != nil {
		return nil, err
	}
	typ, err := p.d.typeAt(tid)
	if err != nil {
		return nil, err
	}
	res := ir.I1
	if typ.IsVector() {
		res = ir.VectorOf(ir.I1, typ.Len)
	}
	c := &ir.ExprConst{Typ: res, Op: ir.ExprCompare, Operands: make([]ir.Value, 2)}
	for i := range c.Operands {
		if err = p.ref(o, typ, &c.Operands[i]); err != nil {
			return nil, err
		}
	}
	code, err := o.next()
	if err != nil {
		return nil, err
	}
	pred, ok := ir.ParsePredicate(code)
	if !ok || pred.IsFloat() != typ.Scalar().IsFloat() {
		return nil, fmt.Errorf("%w: predicate %d on %s", ir.ErrNoSuchOperator, code, typ)
	}
	c.Pred = pred
	return c, nil
}
