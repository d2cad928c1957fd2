package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOperandType is returned when an operator is applied to operands of the
// wrong type class.
var ErrOperandType = errors.New("operand type mismatch")

// Instruction is one instruction of a basic block. Instructions that produce
// a value are also operands of later instructions; the others have type void.
type Instruction interface {
	Value

	// Operands returns the value operands in order. The pointers alias the
	// instruction so operands can be patched in place. Block references are
	// not operands.
	Operands() []*Value

	// Opcode is the textual IR opcode, e.g. "add".
	Opcode() string

	// IsTerminator is true for instructions that end a block.
	IsTerminator() bool

	// ID is the function-local value number, or -1 for void instructions.
	ID() int
	SetID(id int)
	SetName(name string)

	String() string
}

type result struct {
	typ  *Type
	id   int
	Name string
}

func newResult(typ *Type) result { return result{typ: typ, id: -1} }

func (r *result) Type() *Type { return r.typ }

func (r *result) ID() int { return r.id }

// SetID numbers the result of an instruction.
func (r *result) SetID(id int) { r.id = id }

func (r *result) SetName(name string) { r.Name = name }

func (r *result) Ident() string {
	if r.Name != "" {
		return "%" + r.Name
	}
	return fmt.Sprintf("%%%d", r.id)
}

func (r *result) IsTerminator() bool { return false }

func (r *result) format(body string) string {
	if r.typ == nil || r.typ.Kind == TypeVoid {
		return body
	}
	return r.Ident() + " = " + body
}

func joinOperands(ops []*Value) string {
	s := make([]string, len(ops))
	for i, o := range ops {
		if *o == nil {
			s[i] = "<nil>"
			continue
		}
		s[i] = (*o).Type().String() + " " + (*o).Ident()
	}
	return strings.Join(s, ", ")
}

// BinaryInst applies an arithmetic operator to two operands of the same type.
type BinaryInst struct {
	result
	Op    ArithmeticOperator
	Flags Flags
	X, Y  Value
}

// NewBinaryOperation returns a binary instruction after checking that flags
// is allowed for op and that op matches the operand type class.
func NewBinaryOperation(op ArithmeticOperator, flags Flags, x, y Value) (*BinaryInst, error) {
	if err := op.CheckFlags(flags); err != nil {
		return nil, err
	}
	typ := x.Type()
	if s := typ.Scalar(); s.IsFloat() != op.IsFloat() || (!s.IsFloat() && !s.IsInteger()) {
		return nil, fmt.Errorf("%w: %s on %s", ErrOperandType, op, typ)
	}
	return &BinaryInst{result: newResult(typ), Op: op, Flags: flags, X: x, Y: y}, nil
}

func (i *BinaryInst) Operands() []*Value { return []*Value{&i.X, &i.Y} }
func (i *BinaryInst) Opcode() string     { return i.Op.String() }

// Display returns the operator with its flags, e.g. "add nuw".
func (i *BinaryInst) Display() string {
	if i.Flags == 0 {
		return i.Op.String()
	}
	return i.Op.String() + " " + i.Flags.String()
}

func (i *BinaryInst) String() string {
	return i.format(i.Display() + " " + joinOperands(i.Operands()))
}

// UnaryInst is fneg.
type UnaryInst struct {
	result
	Flags Flags
	X     Value
}

func NewFNeg(x Value, flags Flags) (*UnaryInst, error) {
	if !x.Type().Scalar().IsFloat() {
		return nil, fmt.Errorf("%w: fneg on %s", ErrOperandType, x.Type())
	}
	if illegal := flags &^ fastMathFlags; illegal != 0 {
		return nil, fmt.Errorf("%w: fneg does not allow %s", ErrIllegalFlag, illegal)
	}
	return &UnaryInst{result: newResult(x.Type()), Flags: flags, X: x}, nil
}

func (i *UnaryInst) Operands() []*Value { return []*Value{&i.X} }
func (i *UnaryInst) Opcode() string     { return "fneg" }
func (i *UnaryInst) String() string     { return i.format("fneg " + joinOperands(i.Operands())) }

type CastInst struct {
	result
	Op CastOperator
	X  Value
}

func NewCast(op CastOperator, x Value, to *Type) *CastInst {
	return &CastInst{result: newResult(to), Op: op, X: x}
}

func (i *CastInst) Operands() []*Value { return []*Value{&i.X} }
func (i *CastInst) Opcode() string     { return i.Op.String() }

func (i *CastInst) String() string {
	return i.format(fmt.Sprintf("%s %s to %s", i.Op, joinOperands(i.Operands()), i.typ))
}

type CmpInst struct {
	result
	Pred Predicate
	X, Y Value
}

// NewCmp returns a comparison. The result is i1, or a vector of i1 for vector
// operands.
func NewCmp(pred Predicate, x, y Value) *CmpInst {
	typ := I1
	if t := x.Type(); t.IsVector() {
		typ = VectorOf(I1, t.Len)
	}
	return &CmpInst{result: newResult(typ), Pred: pred, X: x, Y: y}
}

func (i *CmpInst) Operands() []*Value { return []*Value{&i.X, &i.Y} }

func (i *CmpInst) Opcode() string {
	if i.Pred.IsFloat() {
		return "fcmp"
	}
	return "icmp"
}

func (i *CmpInst) String() string {
	return i.format(fmt.Sprintf("%s %s %s", i.Opcode(), i.Pred, joinOperands(i.Operands())))
}

type SelectInst struct {
	result
	Cond, X, Y Value
}

func NewSelect(cond, x, y Value) *SelectInst {
	return &SelectInst{result: newResult(x.Type()), Cond: cond, X: x, Y: y}
}

func (i *SelectInst) Operands() []*Value { return []*Value{&i.Cond, &i.X, &i.Y} }
func (i *SelectInst) Opcode() string     { return "select" }
func (i *SelectInst) String() string     { return i.format("select " + joinOperands(i.Operands())) }

type ExtractElementInst struct {
	result
	Vec, Index Value
}

func NewExtractElement(vec, index Value) *ExtractElementInst {
	return &ExtractElementInst{result: newResult(vec.Type().Elem), Vec: vec, Index: index}
}

func (i *ExtractElementInst) Operands() []*Value { return []*Value{&i.Vec, &i.Index} }
func (i *ExtractElementInst) Opcode() string     { return "extractelement" }

func (i *ExtractElementInst) String() string {
	return i.format("extractelement " + joinOperands(i.Operands()))
}

type InsertElementInst struct {
	result
	Vec, Elem, Index Value
}

func NewInsertElement(vec, elem, index Value) *InsertElementInst {
	return &InsertElementInst{result: newResult(vec.Type()), Vec: vec, Elem: elem, Index: index}
}

func (i *InsertElementInst) Operands() []*Value { return []*Value{&i.Vec, &i.Elem, &i.Index} }
func (i *InsertElementInst) Opcode() string     { return "insertelement" }

func (i *InsertElementInst) String() string {
	return i.format("insertelement " + joinOperands(i.Operands()))
}

type ExtractValueInst struct {
	result
	Agg     Value
	Indices []uint64
}

// NewExtractValue walks indices through the aggregate type of agg.
func NewExtractValue(agg Value, indices []uint64) (*ExtractValueInst, error) {
	typ, err := IndexedType(agg.Type(), indices)
	if err != nil {
		return nil, err
	}
	return &ExtractValueInst{result: newResult(typ), Agg: agg, Indices: indices}, nil
}

func (i *ExtractValueInst) Operands() []*Value { return []*Value{&i.Agg} }
func (i *ExtractValueInst) Opcode() string     { return "extractvalue" }

func (i *ExtractValueInst) String() string {
	return i.format(fmt.Sprintf("extractvalue %s, %v", joinOperands(i.Operands()), i.Indices))
}

type InsertValueInst struct {
	result
	Agg, Elem Value
	Indices   []uint64
}

func NewInsertValue(agg, elem Value, indices []uint64) (*InsertValueInst, error) {
	if _, err := IndexedType(agg.Type(), indices); err != nil {
		return nil, err
	}
	return &InsertValueInst{result: newResult(agg.Type()), Agg: agg, Elem: elem, Indices: indices}, nil
}

func (i *InsertValueInst) Operands() []*Value { return []*Value{&i.Agg, &i.Elem} }
func (i *InsertValueInst) Opcode() string     { return "insertvalue" }

func (i *InsertValueInst) String() string {
	return i.format(fmt.Sprintf("insertvalue %s, %v", joinOperands(i.Operands()), i.Indices))
}

// IndexedType returns the type reached by indexing into an aggregate.
func IndexedType(t *Type, indices []uint64) (*Type, error) {
	for _, idx := range indices {
		switch t.Kind {
		case TypeStruct:
			if idx >= uint64(len(t.Fields)) {
				return nil, fmt.Errorf("%w: index %d into %s", ErrOperandType, idx, t)
			}
			t = t.Fields[idx]
		case TypeArray, TypeVector:
			if idx >= t.Len {
				return nil, fmt.Errorf("%w: index %d into %s", ErrOperandType, idx, t)
			}
			t = t.Elem
		default:
			return nil, fmt.Errorf("%w: index %d into %s", ErrOperandType, idx, t)
		}
	}
	return t, nil
}

type AllocaInst struct {
	result
	Elem  *Type
	Count Value
	Align uint64
}

func NewAlloca(elem *Type, count Value, align uint64) *AllocaInst {
	return &AllocaInst{result: newResult(Ptr), Elem: elem, Count: count, Align: align}
}

func (i *AllocaInst) Operands() []*Value { return []*Value{&i.Count} }
func (i *AllocaInst) Opcode() string     { return "alloca" }

func (i *AllocaInst) String() string {
	return i.format(fmt.Sprintf("alloca %s, %s", i.Elem, joinOperands(i.Operands())))
}

type LoadInst struct {
	result
	Addr     Value
	Align    uint64
	Volatile bool
}

func NewLoad(typ *Type, addr Value, align uint64) *LoadInst {
	return &LoadInst{result: newResult(typ), Addr: addr, Align: align}
}

func (i *LoadInst) Operands() []*Value { return []*Value{&i.Addr} }
func (i *LoadInst) Opcode() string     { return "load" }

func (i *LoadInst) String() string {
	return i.format(fmt.Sprintf("load %s, %s", i.typ, joinOperands(i.Operands())))
}

type StoreInst struct {
	result
	Addr, Val Value
	Align     uint64
	Volatile  bool
}

func NewStore(addr, val Value, align uint64) *StoreInst {
	return &StoreInst{result: newResult(Void), Addr: addr, Val: val, Align: align}
}

func (i *StoreInst) Operands() []*Value { return []*Value{&i.Val, &i.Addr} }
func (i *StoreInst) Opcode() string     { return "store" }
func (i *StoreInst) String() string     { return "store " + joinOperands(i.Operands()) }

type GEPInst struct {
	result
	SourceElem *Type
	Base       Value
	Indices    []Value
	InBounds   bool
}

// NewGEP returns a getelementptr. The result is a pointer, or a vector of
// pointers when the base or an index is a vector.
func NewGEP(source *Type, base Value, indices []Value, inBounds bool) *GEPInst {
	typ := Ptr
	if t := base.Type(); t.IsVector() {
		typ = VectorOf(Ptr, t.Len)
	}
	for _, idx := range indices {
		if t := idx.Type(); t.IsVector() {
			typ = VectorOf(Ptr, t.Len)
		}
	}
	return &GEPInst{result: newResult(typ), SourceElem: source, Base: base, Indices: indices, InBounds: inBounds}
}

func (i *GEPInst) Operands() []*Value {
	ret := make([]*Value, 0, len(i.Indices)+1)
	ret = append(ret, &i.Base)
	for j := range i.Indices {
		ret = append(ret, &i.Indices[j])
	}
	return ret
}

func (i *GEPInst) Opcode() string { return "getelementptr" }

func (i *GEPInst) String() string {
	op := "getelementptr"
	if i.InBounds {
		op += " inbounds"
	}
	return i.format(fmt.Sprintf("%s %s, %s", op, i.SourceElem, joinOperands(i.Operands())))
}

// PhiIncoming is the value a phi takes when control arrives from Block.
type PhiIncoming struct {
	Value Value
	Block int
}

type PhiInst struct {
	result
	Incoming []PhiIncoming
}

func NewPhi(typ *Type, incoming []PhiIncoming) *PhiInst {
	return &PhiInst{result: newResult(typ), Incoming: incoming}
}

func (i *PhiInst) Operands() []*Value {
	ret := make([]*Value, len(i.Incoming))
	for j := range i.Incoming {
		ret[j] = &i.Incoming[j].Value
	}
	return ret
}

func (i *PhiInst) Opcode() string { return "phi" }

func (i *PhiInst) String() string {
	s := make([]string, len(i.Incoming))
	for j, in := range i.Incoming {
		s[j] = fmt.Sprintf("[ %s, %%bb%d ]", in.Value.Ident(), in.Block)
	}
	return i.format(fmt.Sprintf("phi %s %s", i.typ, strings.Join(s, ", ")))
}

type CallInst struct {
	result
	Callee Value
	// Sig is the function type of the callee.
	Sig  *Type
	Args []Value
}

func NewCall(sig *Type, callee Value, args []Value) *CallInst {
	return &CallInst{result: newResult(sig.Ret), Callee: callee, Sig: sig, Args: args}
}

func (i *CallInst) Operands() []*Value {
	ret := make([]*Value, 0, len(i.Args)+1)
	ret = append(ret, &i.Callee)
	for j := range i.Args {
		ret = append(ret, &i.Args[j])
	}
	return ret
}

func (i *CallInst) Opcode() string { return "call" }

func (i *CallInst) String() string {
	ops := i.Operands()
	return i.format(fmt.Sprintf("call %s %s(%s)", i.Sig.Ret, (*ops[0]).Ident(), joinOperands(ops[1:])))
}

// RetInst returns X, or nothing when X is nil.
type RetInst struct {
	result
	X Value
}

func NewRet(x Value) *RetInst { return &RetInst{result: newResult(Void), X: x} }

func (i *RetInst) Operands() []*Value {
	if i.X == nil {
		return nil
	}
	return []*Value{&i.X}
}

func (i *RetInst) Opcode() string     { return "ret" }
func (i *RetInst) IsTerminator() bool { return true }

func (i *RetInst) String() string {
	if i.X == nil {
		return "ret void"
	}
	return "ret " + joinOperands(i.Operands())
}

// BrInst jumps to True, or to True or False depending on Cond when Cond is
// set.
type BrInst struct {
	result
	Cond        Value
	True, False int
}

func NewBr(target int) *BrInst { return &BrInst{result: newResult(Void), True: target} }

func NewCondBr(cond Value, t, f int) *BrInst {
	return &BrInst{result: newResult(Void), Cond: cond, True: t, False: f}
}

func (i *BrInst) Operands() []*Value {
	if i.Cond == nil {
		return nil
	}
	return []*Value{&i.Cond}
}

func (i *BrInst) Opcode() string     { return "br" }
func (i *BrInst) IsTerminator() bool { return true }

func (i *BrInst) String() string {
	if i.Cond == nil {
		return fmt.Sprintf("br label %%bb%d", i.True)
	}
	return fmt.Sprintf("br %s, label %%bb%d, label %%bb%d", joinOperands(i.Operands()), i.True, i.False)
}

type SwitchCase struct {
	Value Value
	Block int
}

type SwitchInst struct {
	result
	Cond    Value
	Default int
	Cases   []SwitchCase
}

func NewSwitch(cond Value, def int, cases []SwitchCase) *SwitchInst {
	return &SwitchInst{result: newResult(Void), Cond: cond, Default: def, Cases: cases}
}

func (i *SwitchInst) Operands() []*Value {
	ret := make([]*Value, 0, len(i.Cases)+1)
	ret = append(ret, &i.Cond)
	for j := range i.Cases {
		ret = append(ret, &i.Cases[j].Value)
	}
	return ret
}

func (i *SwitchInst) Opcode() string     { return "switch" }
func (i *SwitchInst) IsTerminator() bool { return true }

func (i *SwitchInst) String() string {
	s := make([]string, len(i.Cases))
	for j, c := range i.Cases {
		s[j] = fmt.Sprintf("%s, label %%bb%d", c.Value.Ident(), c.Block)
	}
	return fmt.Sprintf("switch %s %s, label %%bb%d [%s]", i.Cond.Type(), i.Cond.Ident(), i.Default, strings.Join(s, "; "))
}

type UnreachableInst struct {
	result
}

func NewUnreachable() *UnreachableInst { return &UnreachableInst{result: newResult(Void)} }

func (i *UnreachableInst) Operands() []*Value { return nil }
func (i *UnreachableInst) Opcode() string     { return "unreachable" }
func (i *UnreachableInst) IsTerminator() bool { return true }
func (i *UnreachableInst) String() string     { return "unreachable" }

// Block is a basic block. Blocks are referenced by index within their
// function.
type Block struct {
	Index int
	Name  string
	Insts []Instruction
}

// Terminator returns the last instruction if it ends the block.
func (b *Block) Terminator() Instruction {
	if n := len(b.Insts); n > 0 && b.Insts[n-1].IsTerminator() {
		return b.Insts[n-1]
	}
	return nil
}
