package ir

import (
	"fmt"
	"strings"
)

// Value is an operand: a constant, a global, a function, a parameter or the
// result of an instruction.
type Value interface {
	// Type returns the type of the value. Globals and functions are pointers.
	Type() *Type
	// Ident returns a short reference to the value, e.g. "%3" or "@main".
	Ident() string
}

// IntConst is an integer constant. Bits is truncated to the type width;
// wider integers keep the low 64 bits.
type IntConst struct {
	Typ  *Type
	Bits uint64
}

func (c *IntConst) Type() *Type { return c.Typ }

func (c *IntConst) Ident() string {
	if c.Typ.Bits == 1 {
		return fmt.Sprintf("%t", c.Bits&1 == 1)
	}
	if c.Typ.Bits > 0 && c.Typ.Bits < 64 {
		shift := 64 - c.Typ.Bits
		return fmt.Sprintf("%d", int64(c.Bits<<shift)>>shift)
	}
	return fmt.Sprintf("%d", int64(c.Bits))
}

// FloatConst is a float constant, kept as its IEEE-754 bit pattern at the
// width of Typ.
type FloatConst struct {
	Typ  *Type
	Bits uint64
}

func (c *FloatConst) Type() *Type   { return c.Typ }
func (c *FloatConst) Ident() string { return fmt.Sprintf("0x%X", c.Bits) }

// NullConst is null or zeroinitializer.
type NullConst struct {
	Typ *Type
}

func (c *NullConst) Type() *Type { return c.Typ }

func (c *NullConst) Ident() string {
	if c.Typ.IsPointer() {
		return "null"
	}
	return "zeroinitializer"
}

// UndefConst is undef, or poison when Poison is set.
type UndefConst struct {
	Typ    *Type
	Poison bool
}

func (c *UndefConst) Type() *Type { return c.Typ }

func (c *UndefConst) Ident() string {
	if c.Poison {
		return "poison"
	}
	return "undef"
}

// AggregateConst is a struct, array or vector constant with arbitrary
// elements.
type AggregateConst struct {
	Typ   *Type
	Elems []Value
}

func (c *AggregateConst) Type() *Type { return c.Typ }

func (c *AggregateConst) Ident() string {
	elems := make([]string, len(c.Elems))
	for i, e := range c.Elems {
		elems[i] = e.Type().String() + " " + e.Ident()
	}
	return "{ " + strings.Join(elems, ", ") + " }"
}

// DataConst is an array or vector of integer or float elements given by their
// bit patterns, as produced by string and data records.
type DataConst struct {
	Typ   *Type
	Elems []uint64
}

func (c *DataConst) Type() *Type { return c.Typ }

func (c *DataConst) Ident() string {
	if c.Typ.Kind == TypeArray && c.Typ.Elem.IsInteger() && c.Typ.Elem.Bits == 8 {
		b := make([]byte, len(c.Elems))
		for i, e := range c.Elems {
			b[i] = byte(e)
		}
		return fmt.Sprintf("c%q", b)
	}
	return fmt.Sprintf("%v", c.Elems)
}

// ExprOp is the operation of a constant expression.
type ExprOp byte

const (
	ExprBinary ExprOp = iota
	ExprCast
	ExprGEP
	ExprSelect
	ExprCompare
)

// ExprConst is a constant expression. Only the fields of Op are set.
type ExprConst struct {
	Typ      *Type
	Op       ExprOp
	Binary   ArithmeticOperator
	Flags    Flags
	Cast     CastOperator
	Pred     Predicate
	InBounds bool
	// SourceElem is the element type a GEP indexes into.
	SourceElem *Type
	Operands   []Value
}

func (c *ExprConst) Type() *Type { return c.Typ }

func (c *ExprConst) Ident() string {
	var op string
	switch c.Op {
	case ExprBinary:
		op = c.Binary.String()
	case ExprCast:
		op = c.Cast.String()
	case ExprGEP:
		op = "getelementptr"
	case ExprSelect:
		op = "select"
	case ExprCompare:
		op = "cmp " + c.Pred.String()
	}
	ops := make([]string, len(c.Operands))
	for i, o := range c.Operands {
		ops[i] = o.Ident()
	}
	return fmt.Sprintf("%s (%s)", op, strings.Join(ops, ", "))
}

// Linkage is the bitcode linkage code of a global value.
type Linkage uint64

// LinkageExternal is the only linkage the loader distinguishes: it marks
// declarations that must be supplied by the embedder.
const LinkageExternal Linkage = 0

// Global is a module-level variable. Its value is the address of the
// storage, so Type is a pointer and ValueType is the stored type.
type Global struct {
	Name      string
	ValueType *Type
	Init      Value
	Constant  bool
	Linkage   Linkage
	Align     uint64
	// Index is the position in Module.Globals.
	Index int
	ptr   *Type
}

func (g *Global) Type() *Type {
	if g.ptr == nil {
		g.ptr = PointerTo(g.ValueType)
	}
	return g.ptr
}

func (g *Global) Ident() string { return "@" + g.Name }

// Alias names another global value.
type Alias struct {
	Name    string
	Typ     *Type
	Aliasee Value
}

func (a *Alias) Type() *Type   { return a.Typ }
func (a *Alias) Ident() string { return "@" + a.Name }

// Param is a formal parameter of a function.
type Param struct {
	Name  string
	Typ   *Type
	Index int
}

func (p *Param) Type() *Type { return p.Typ }

func (p *Param) Ident() string {
	if p.Name != "" {
		return "%" + p.Name
	}
	return fmt.Sprintf("%%arg%d", p.Index)
}

// placeholder stands for a value slot referenced before its definition. It
// never escapes a successful decode.
type placeholder struct {
	typ  *Type
	slot uint32
}

func (p *placeholder) Type() *Type   { return p.typ }
func (p *placeholder) Ident() string { return fmt.Sprintf("<forward %d>", p.slot) }
