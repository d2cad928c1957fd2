package ir

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/bitzero/internal/value"
)

// TypeKind classifies a Type.
type TypeKind byte

const (
	// typeUnresolved marks a type table slot referenced before its definition.
	typeUnresolved TypeKind = iota
	TypeVoid
	TypeHalf
	TypeFloat
	TypeDouble
	TypeX86FP80
	TypeFP128
	TypePPCFP128
	TypeLabel
	TypeMetadata
	TypeToken
	TypeX86MMX
	TypeOpaque
	TypeInteger
	TypePointer
	TypeArray
	TypeVector
	TypeStruct
	TypeFunction
)

// Type is an LLVM type. Types are shared by pointer; a forward reference is a
// placeholder that is overwritten in place when its definition is decoded.
type Type struct {
	Kind TypeKind
	// Bits is the width of an integer type.
	Bits uint32
	// Elem is the element of an array or vector, or the pointee of a typed
	// pointer. Opaque pointers have no Elem.
	Elem *Type
	// Len is the element count of an array or vector.
	Len       uint64
	Fields    []*Type
	Packed    bool
	Name      string
	Ret       *Type
	Params    []*Type
	VarArg    bool
	AddrSpace uint64
}

var (
	Void   = &Type{Kind: TypeVoid}
	I1     = &Type{Kind: TypeInteger, Bits: 1}
	I8     = &Type{Kind: TypeInteger, Bits: 8}
	I16    = &Type{Kind: TypeInteger, Bits: 16}
	I32    = &Type{Kind: TypeInteger, Bits: 32}
	I64    = &Type{Kind: TypeInteger, Bits: 64}
	Float  = &Type{Kind: TypeFloat}
	Double = &Type{Kind: TypeDouble}
	Ptr    = &Type{Kind: TypePointer}
	Label  = &Type{Kind: TypeLabel}
)

// IntType returns the integer type of the given width.
func IntType(bits uint32) *Type {
	switch bits {
	case 1:
		return I1
	case 8:
		return I8
	case 16:
		return I16
	case 32:
		return I32
	case 64:
		return I64
	}
	return &Type{Kind: TypeInteger, Bits: bits}
}

func ArrayOf(elem *Type, n uint64) *Type { return &Type{Kind: TypeArray, Elem: elem, Len: n} }

func VectorOf(elem *Type, n uint64) *Type { return &Type{Kind: TypeVector, Elem: elem, Len: n} }

func StructOf(fields ...*Type) *Type { return &Type{Kind: TypeStruct, Fields: fields} }

func FuncOf(ret *Type, params ...*Type) *Type {
	return &Type{Kind: TypeFunction, Ret: ret, Params: params}
}

func PointerTo(elem *Type) *Type { return &Type{Kind: TypePointer, Elem: elem} }

func (t *Type) IsInteger() bool { return t.Kind == TypeInteger }

func (t *Type) IsFloat() bool {
	switch t.Kind {
	case TypeHalf, TypeFloat, TypeDouble, TypeX86FP80, TypeFP128, TypePPCFP128:
		return true
	}
	return false
}

func (t *Type) IsPointer() bool { return t.Kind == TypePointer }

func (t *Type) IsVector() bool { return t.Kind == TypeVector }

func (t *Type) IsAggregate() bool { return t.Kind == TypeArray || t.Kind == TypeStruct }

// Scalar returns the element type of a vector, or t itself.
func (t *Type) Scalar() *Type {
	if t.Kind == TypeVector {
		return t.Elem
	}
	return t
}

// ValueKind maps t to the kind of the runtime values it holds. ok is false
// for types that have no first-class runtime representation in the
// interpreter, like aggregates, labels or exotic widths.
func (t *Type) ValueKind() (kind value.Kind, ok bool) {
	switch t.Kind {
	case TypeVoid:
		return value.KindVoid, true
	case TypeInteger:
		switch t.Bits {
		case 1:
			return value.KindI1, true
		case 8:
			return value.KindI8, true
		case 16:
			return value.KindI16, true
		case 32:
			return value.KindI32, true
		case 64:
			return value.KindI64, true
		}
	case TypeFloat:
		return value.KindFloat, true
	case TypeDouble:
		return value.KindDouble, true
	case TypePointer:
		return value.KindNativePointer, true
	case TypeVector:
		if _, ok := t.Elem.ValueKind(); ok {
			return value.KindVector, true
		}
	}
	return value.KindVoid, false
}

// StoreSize returns the allocation size of t under the default data layout:
// little endian, 64-bit pointers, natural alignment.
func (t *Type) StoreSize() uint64 {
	switch t.Kind {
	case TypeInteger:
		return nextPow2((uint64(t.Bits) + 7) / 8)
	case TypeHalf:
		return 2
	case TypeFloat:
		return 4
	case TypeDouble, TypePointer, TypeX86MMX:
		return 8
	case TypeX86FP80, TypeFP128, TypePPCFP128:
		return 16
	case TypeArray:
		return t.Elem.StoreSize() * t.Len
	case TypeVector:
		return nextPow2(t.Elem.StoreSize() * t.Len)
	case TypeStruct:
		if len(t.Fields) == 0 {
			return 0
		}
		last := len(t.Fields) - 1
		return alignTo(t.FieldOffset(last)+t.Fields[last].StoreSize(), t.Align())
	}
	return 0
}

// Align returns the ABI alignment of t.
func (t *Type) Align() uint64 {
	switch t.Kind {
	case TypeArray:
		return t.Elem.Align()
	case TypeStruct:
		if t.Packed {
			return 1
		}
		var ret uint64 = 1
		for _, f := range t.Fields {
			if a := f.Align(); a > ret {
				ret = a
			}
		}
		return ret
	case TypeVector:
		if s := t.StoreSize(); s > 0 {
			return s
		}
		return 1
	}
	s := t.StoreSize()
	if s == 0 {
		return 1
	}
	if s > 16 {
		return 16
	}
	return s
}

// FieldOffset returns the byte offset of field i of a struct.
func (t *Type) FieldOffset(i int) uint64 {
	var off uint64
	for j := 0; j <= i; j++ {
		f := t.Fields[j]
		if !t.Packed {
			off = alignTo(off, f.Align())
		}
		if j == i {
			break
		}
		off += f.StoreSize()
	}
	return off
}

func alignTo(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

func nextPow2(v uint64) uint64 {
	if v <= 1 {
		return v
	}
	ret := uint64(1)
	for ret < v {
		ret <<= 1
	}
	return ret
}

func (t *Type) String() string {
	switch t.Kind {
	case typeUnresolved:
		return "<unresolved>"
	case TypeVoid:
		return "void"
	case TypeHalf:
		return "half"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeX86FP80:
		return "x86_fp80"
	case TypeFP128:
		return "fp128"
	case TypePPCFP128:
		return "ppc_fp128"
	case TypeLabel:
		return "label"
	case TypeMetadata:
		return "metadata"
	case TypeToken:
		return "token"
	case TypeX86MMX:
		return "x86_mmx"
	case TypeOpaque:
		if t.Name != "" {
			return "%" + t.Name
		}
		return "opaque"
	case TypeInteger:
		return fmt.Sprintf("i%d", t.Bits)
	case TypePointer:
		if t.Elem != nil {
			return t.Elem.String() + "*"
		}
		return "ptr"
	case TypeArray:
		return fmt.Sprintf("[%d x %s]", t.Len, t.Elem)
	case TypeVector:
		return fmt.Sprintf("<%d x %s>", t.Len, t.Elem)
	case TypeStruct:
		if t.Name != "" {
			return "%" + t.Name
		}
		fields := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = f.String()
		}
		if t.Packed {
			return "<{ " + strings.Join(fields, ", ") + " }>"
		}
		return "{ " + strings.Join(fields, ", ") + " }"
	case TypeFunction:
		params := make([]string, len(t.Params), len(t.Params)+1)
		for i, p := range t.Params {
			params[i] = p.String()
		}
		if t.VarArg {
			params = append(params, "...")
		}
		return fmt.Sprintf("%s (%s)", t.Ret, strings.Join(params, ", "))
	}
	return fmt.Sprintf("<unknown=%d>", t.Kind)
}

// Resolved is false for a type table placeholder that was never defined.
func (t *Type) Resolved() bool { return t.Kind != typeUnresolved }
