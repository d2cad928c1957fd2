package bitcode

import (
	"fmt"

	"github.com/tetratelabs/bitzero/internal/bitstream"
	"github.com/tetratelabs/bitzero/internal/ir"
)

// Function block record codes.
const (
	funcCodeDeclareBlocks   = 1
	funcCodeBinop           = 2
	funcCodeCast            = 3
	funcCodeSelect          = 5
	funcCodeExtractElt      = 6
	funcCodeInsertElt       = 7
	funcCodeCmp             = 9
	funcCodeRet             = 10
	funcCodeBr              = 11
	funcCodeSwitch          = 12
	funcCodeUnreachable     = 15
	funcCodePhi             = 16
	funcCodeAlloca          = 19
	funcCodeLoad            = 20
	funcCodeExtractVal      = 26
	funcCodeInsertVal       = 27
	funcCodeCmp2            = 28
	funcCodeVSelect         = 29
	funcCodeDebugLocAgain   = 33
	funcCodeCall            = 34
	funcCodeDebugLoc        = 35
	funcCodeGEP             = 43
	funcCodeStore           = 44
	funcCodeOperandBundle   = 55
	funcCodeUnop            = 56
	funcCodeBlockAddrUsers  = 60
	funcCodeDebugRecordLow  = 61
	funcCodeDebugRecordHigh = 65
)

const (
	unopFNeg = 0

	callExplicitType = 1 << 15
	callFMF          = 1 << 17

	allocaAlignMask    = 0x1f
	allocaExplicitType = 1 << 6

	maxBlocks = 1 << 20
)

// functionParser decodes one function body. Parameters, function-local
// constants and instruction results extend the module value table while the
// block is open and are dropped when it ends.
type functionParser struct {
	blockState
	d    *decoder
	f    *ir.Function
	base uint32
	cur  int
}

func newFunctionParser(d *decoder, f *ir.Function) *functionParser {
	p := &functionParser{blockState: blockState{id: BlockFunction}, d: d, f: f, base: d.values.Len()}
	for _, param := range f.Params {
		d.values.Define(param)
	}
	return p
}

func (p *functionParser) Subblock(id uint32) (bitstream.BlockParser, error) {
	switch id {
	case BlockConstants:
		return newConstantsParser(p.d), nil
	case BlockValueSymtab:
		return &symtabParser{blockState: blockState{id: id}, d: p.d, fn: p}, nil
	}
	return nil, nil
}

func (p *functionParser) Exit() error {
	if slots := p.d.values.Unresolved(); len(slots) > 0 {
		return p.check(fmt.Errorf("%w: value slots %v in %s", ErrUnresolved, slots, p.f.Ident()))
	}
	if p.cur != len(p.f.Blocks) || len(p.f.Blocks) == 0 {
		return p.check(fmt.Errorf("%w: %s terminates %d of %d blocks", ErrOperandOutOfRange, p.f.Ident(), p.cur, len(p.f.Blocks)))
	}
	p.d.values.Truncate(p.base)
	return nil
}

func (p *functionParser) Record(rec *bitstream.Record) error {
	defer p.advance()
	return p.check(p.record(rec))
}

// absolute converts an encoded operand to a value slot. Relative ids count
// back from the next slot; forward references wrap around.
func (p *functionParser) absolute(enc uint64) uint32 {
	if p.d.relativeIDs {
		return p.d.values.Len() - uint32(enc)
	}
	return uint32(enc)
}

// valueTypePair reads an operand that carries an explicit type only when it
// is a forward reference.
func (p *functionParser) valueTypePair(o *ops) (ir.Value, error) {
	enc, err := o.next()
	if err != nil {
		return nil, err
	}
	slot := p.absolute(enc)
	if v, ok := p.d.values.At(slot); ok {
		return v, nil
	}
	tid, err := o.next()
	if err != nil {
		return nil, err
	}
	typ, err := p.d.typeAt(tid)
	if err != nil {
		return nil, err
	}
	return p.d.values.Get(slot, typ)
}

// value reads an operand whose type is implied by the instruction.
func (p *functionParser) value(o *ops, typ *ir.Type) (ir.Value, error) {
	enc, err := o.next()
	if err != nil {
		return nil, err
	}
	return p.d.values.Get(p.absolute(enc), typ)
}

func (p *functionParser) block(o *ops) (int, error) {
	id, err := o.next()
	if err != nil {
		return 0, err
	}
	if id >= uint64(len(p.f.Blocks)) {
		return 0, fmt.Errorf("%w: block %d of %d", ErrOperandOutOfRange, id, len(p.f.Blocks))
	}
	return int(id), nil
}

func (p *functionParser) typ(o *ops) (*ir.Type, error) {
	id, err := o.next()
	if err != nil {
		return nil, err
	}
	return p.d.typeAt(id)
}

// emit appends inst to the current block. Operands are tracked before the
// result is defined so a phi may refer to itself.
func (p *functionParser) emit(inst ir.Instruction) error {
	if p.cur >= len(p.f.Blocks) {
		return fmt.Errorf("%w: instruction after the last block", ErrOperandOutOfRange)
	}
	b := p.f.Blocks[p.cur]
	b.Insts = append(b.Insts, inst)
	for _, op := range inst.Operands() {
		p.d.values.Track(op)
	}
	if inst.Type().Kind != ir.TypeVoid {
		inst.SetID(int(p.d.values.Define(inst) - p.base))
	}
	if inst.IsTerminator() {
		p.cur++
	}
	return nil
}

func (p *functionParser) record(rec *bitstream.Record) error {
	o := &ops{rec: rec}
	switch rec.Code {
	case funcCodeDeclareBlocks:
		n, err := o.next()
		if err != nil {
			return err
		}
		if n == 0 || n > maxBlocks {
			return fmt.Errorf("%w: %d blocks", ErrOperandOutOfRange, n)
		}
		p.f.Blocks = make([]*ir.Block, n)
		for i := range p.f.Blocks {
			p.f.Blocks[i] = &ir.Block{Index: i}
		}
		return nil
	case funcCodeDebugLoc, funcCodeDebugLocAgain, funcCodeOperandBundle, funcCodeBlockAddrUsers:
		return nil
	}
	if rec.Code >= funcCodeDebugRecordLow && rec.Code <= funcCodeDebugRecordHigh {
		return nil
	}

	inst, err := p.instruction(rec.Code, o)
	if err != nil {
		return err
	}
	return p.emit(inst)
}

func (p *functionParser) instruction(code uint32, o *ops) (ir.Instruction, error) {
	switch code {
	case funcCodeBinop:
		return p.binop(o)
	case funcCodeUnop:
		x, err := p.valueTypePair(o)
		if err != nil {
			return nil, err
		}
		opcode, err := o.next()
		if err != nil {
			return nil, err
		}
		if opcode != unopFNeg {
			return nil, fmt.Errorf("%w: unop opcode %d", ir.ErrNoSuchOperator, opcode)
		}
		var flags ir.Flags
		if o.remaining() > 0 {
			raw, _ := o.next()
			flags = ir.DecodeFastMathFlags(raw)
		}
		return ir.NewFNeg(x, flags)
	case funcCodeCast:
		x, err := p.valueTypePair(o)
		if err != nil {
			return nil, err
		}
		to, err := p.typ(o)
		if err != nil {
			return nil, err
		}
		opcode, err := o.next()
		if err != nil {
			return nil, err
		}
		op, ok := ir.ParseCastOperator(opcode)
		if !ok {
			return nil, fmt.Errorf("%w: cast opcode %d", ir.ErrNoSuchOperator, opcode)
		}
		return ir.NewCast(op, x, to), nil
	case funcCodeSelect, funcCodeVSelect:
		x, err := p.valueTypePair(o)
		if err != nil {
			return nil, err
		}
		y, err := p.value(o, x.Type())
		if err != nil {
			return nil, err
		}
		var cond ir.Value
		if code == funcCodeVSelect {
			cond, err = p.valueTypePair(o)
		} else {
			cond, err = p.value(o, ir.I1)
		}
		if err != nil {
			return nil, err
		}
		return ir.NewSelect(cond, x, y), nil
	case funcCodeExtractElt:
		vec, err := p.valueTypePair(o)
		if err != nil {
			return nil, err
		}
		idx, err := p.valueTypePair(o)
		if err != nil {
			return nil, err
		}
		if !vec.Type().IsVector() {
			return nil, fmt.Errorf("%w: extractelement on %s", ir.ErrOperandType, vec.Type())
		}
		return ir.NewExtractElement(vec, idx), nil
	case funcCodeInsertElt:
		vec, err := p.valueTypePair(o)
		if err != nil {
			return nil, err
		}
		if !vec.Type().IsVector() {
			return nil, fmt.Errorf("%w: insertelement on %s", ir.ErrOperandType, vec.Type())
		}
		elem, err := p.value(o, vec.Type().Elem)
		if err != nil {
			return nil, err
		}
		idx, err := p.valueTypePair(o)
		if err != nil {
			return nil, err
		}
		return ir.NewInsertElement(vec, elem, idx), nil
	case funcCodeCmp, funcCodeCmp2:
		x, err := p.valueTypePair(o)
		if err != nil {
			return nil, err
		}
		y, err := p.value(o, x.Type())
		if err != nil {
			return nil, err
		}
		raw, err := o.next()
		if err != nil {
			return nil, err
		}
		pred, ok := ir.ParsePredicate(raw)
		if !ok || pred.IsFloat() != x.Type().Scalar().IsFloat() {
			return nil, fmt.Errorf("%w: predicate %d on %s", ir.ErrNoSuchOperator, raw, x.Type())
		}
		return ir.NewCmp(pred, x, y), nil
	case funcCodeRet:
		if o.remaining() == 0 {
			return ir.NewRet(nil), nil
		}
		x, err := p.valueTypePair(o)
		if err != nil {
			return nil, err
		}
		return ir.NewRet(x), nil
	case funcCodeBr:
		t, err := p.block(o)
		if err != nil {
			return nil, err
		}
		if o.remaining() == 0 {
			return ir.NewBr(t), nil
		}
		f, err := p.block(o)
		if err != nil {
			return nil, err
		}
		cond, err := p.value(o, ir.I1)
		if err != nil {
			return nil, err
		}
		return ir.NewCondBr(cond, t, f), nil
	case funcCodeSwitch:
		return p.switchInst(o)
	case funcCodeUnreachable:
		return ir.NewUnreachable(), nil
	case funcCodePhi:
		return p.phi(o)
	case funcCodeAlloca:
		return p.alloca(o)
	case funcCodeLoad:
		addr, err := p.valueTypePair(o)
		if err != nil {
			return nil, err
		}
		var typ *ir.Type
		if o.remaining() == 3 {
			if typ, err = p.typ(o); err != nil {
				return nil, err
			}
		} else if typ = addr.Type().Elem; typ == nil || !addr.Type().IsPointer() {
			return nil, fmt.Errorf("%w: load from %s without type", ir.ErrOperandType, addr.Type())
		}
		align, err := o.next()
		if err != nil {
			return nil, err
		}
		inst := ir.NewLoad(typ, addr, decodeAlign(align))
		if o.remaining() > 0 {
			vol, _ := o.next()
			inst.Volatile = vol != 0
		}
		return inst, nil
	case funcCodeStore:
		addr, err := p.valueTypePair(o)
		if err != nil {
			return nil, err
		}
		val, err := p.valueTypePair(o)
		if err != nil {
			return nil, err
		}
		align, err := o.next()
		if err != nil {
			return nil, err
		}
		inst := ir.NewStore(addr, val, decodeAlign(align))
		if o.remaining() > 0 {
			vol, _ := o.next()
			inst.Volatile = vol != 0
		}
		return inst, nil
	case funcCodeGEP:
		return p.gep(o)
	case funcCodeExtractVal:
		agg, err := p.valueTypePair(o)
		if err != nil {
			return nil, err
		}
		return ir.NewExtractValue(agg, o.rest())
	case funcCodeInsertVal:
		agg, err := p.valueTypePair(o)
		if err != nil {
			return nil, err
		}
		elem, err := p.valueTypePair(o)
		if err != nil {
			return nil, err
		}
		return ir.NewInsertValue(agg, elem, o.rest())
	case funcCodeCall:
		return p.call(o)
	}
	return nil, fmt.Errorf("%w: function record <%d>", ErrUnknownRecord, code)
}

// binop decodes [opval, opval, opcode, flags?].
func (p *functionParser) binop(o *ops) (ir.Instruction, error) {
	x, err := p.valueTypePair(o)
	if err != nil {
		return nil, err
	}
	y, err := p.value(o, x.Type())
	if err != nil {
		return nil, err
	}
	opcode, err := o.next()
	if err != nil {
		return nil, err
	}
	op, err := ir.ParseArithmeticOperator(opcode, x.Type().Scalar().IsFloat())
	if err != nil {
		return nil, err
	}
	var flags ir.Flags
	if o.remaining() > 0 {
		raw, _ := o.next()
		flags = ir.DecodeFlags(op, raw)
	}
	return ir.NewBinaryOperation(op, flags, x, y)
}

// switchInst decodes [opty, cond, default, (value, block)...]. Case values
// are absolute value ids.
func (p *functionParser) switchInst(o *ops) (ir.Instruction, error) {
	typ, err := p.typ(o)
	if err != nil {
		return nil, err
	}
	cond, err := p.value(o, typ)
	if err != nil {
		return nil, err
	}
	def, err := p.block(o)
	if err != nil {
		return nil, err
	}
	cases := make([]ir.SwitchCase, o.remaining()/2)
	for i := range cases {
		id, err := o.next()
		if err != nil {
			return nil, err
		}
		if cases[i].Value, err = p.d.values.Get(uint32(id), typ); err != nil {
			return nil, err
		}
		if cases[i].Block, err = p.block(o); err != nil {
			return nil, err
		}
	}
	return ir.NewSwitch(cond, def, cases), nil
}

// phi decodes [ty, (value, block)..., flags?]. Values are signed relative ids.
func (p *functionParser) phi(o *ops) (ir.Instruction, error) {
	typ, err := p.typ(o)
	if err != nil {
		return nil, err
	}
	incoming := make([]ir.PhiIncoming, o.remaining()/2)
	for i := range incoming {
		raw, err := o.next()
		if err != nil {
			return nil, err
		}
		rel := bitstream.DecodeSignRotated(raw)
		slot := uint32(rel)
		if p.d.relativeIDs {
			slot = uint32(int64(p.d.values.Len()) - rel)
		}
		if incoming[i].Value, err = p.d.values.Get(slot, typ); err != nil {
			return nil, err
		}
		if incoming[i].Block, err = p.block(o); err != nil {
			return nil, err
		}
	}
	return ir.NewPhi(typ, incoming), nil
}

// alloca decodes [instty, opty, op, align]. The count operand is an absolute
// value id.
func (p *functionParser) alloca(o *ops) (ir.Instruction, error) {
	elem, err := p.typ(o)
	if err != nil {
		return nil, err
	}
	countType, err := p.typ(o)
	if err != nil {
		return nil, err
	}
	id, err := o.next()
	if err != nil {
		return nil, err
	}
	count, err := p.d.values.Get(uint32(id), countType)
	if err != nil {
		return nil, err
	}
	rawAlign, err := o.next()
	if err != nil {
		return nil, err
	}
	if rawAlign&allocaExplicitType == 0 {
		if !elem.IsPointer() || elem.Elem == nil {
			return nil, fmt.Errorf("%w: alloca of %s without explicit type", ir.ErrOperandType, elem)
		}
		elem = elem.Elem
	}
	return ir.NewAlloca(elem, count, decodeAlign(rawAlign&allocaAlignMask)), nil
}

// gep decodes [inbounds, ty, base, indices...].
func (p *functionParser) gep(o *ops) (ir.Instruction, error) {
	flags, err := o.next()
	if err != nil {
		return nil, err
	}
	source, err := p.typ(o)
	if err != nil {
		return nil, err
	}
	base, err := p.valueTypePair(o)
	if err != nil {
		return nil, err
	}
	var indices []ir.Value
	for o.remaining() > 0 {
		idx, err := p.valueTypePair(o)
		if err != nil {
			return nil, err
		}
		indices = append(indices, idx)
	}
	return ir.NewGEP(source, base, indices, flags&1 != 0), nil
}

// call decodes [paramattrs, cc, fmf?, fnty?, callee, args...].
func (p *functionParser) call(o *ops) (ir.Instruction, error) {
	if _, err := o.next(); err != nil {
		return nil, err
	}
	cc, err := o.next()
	if err != nil {
		return nil, err
	}
	if cc&callFMF != 0 {
		if _, err = o.next(); err != nil {
			return nil, err
		}
	}
	var sig *ir.Type
	if cc&callExplicitType != 0 {
		if sig, err = p.typ(o); err != nil {
			return nil, err
		}
	}
	callee, err := p.valueTypePair(o)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		sig = callee.Type().Elem
	}
	if sig == nil || sig.Kind != ir.TypeFunction {
		return nil, fmt.Errorf("%w: call through %s", ir.ErrOperandType, callee.Type())
	}

	args := make([]ir.Value, 0, len(sig.Params))
	for _, pt := range sig.Params {
		if pt.Kind == ir.TypeLabel {
			return nil, fmt.Errorf("%w: label argument", ir.ErrOperandType)
		}
		arg, err := p.value(o, pt)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if o.remaining() > 0 && !sig.VarArg {
		return nil, fmt.Errorf("%w: %d extra arguments to %s", ErrOperandOutOfRange, o.remaining(), sig)
	}
	for o.remaining() > 0 {
		arg, err := p.valueTypePair(o)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return ir.NewCall(sig, callee, args), nil
}
