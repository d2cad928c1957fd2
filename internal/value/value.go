// Package value is the value model shared by the memory model and the
// interpreter: a tagged union over the primitive kinds, vectors and the two
// pointer kinds.
package value

import (
	"fmt"
	"math"
	"strings"
)

// Kind is the tag of a Value. The set is closed: every operation in the
// interpreter is specialized per Kind.
type Kind byte

const (
	KindVoid Kind = iota
	KindI1
	KindI8
	KindI16
	KindI32
	KindI64
	KindFloat
	KindDouble
	KindNativePointer
	KindManagedPointer
	KindVector
)

func (k Kind) String() (ret string) {
	switch k {
	case KindVoid:
		ret = "void"
	case KindI1:
		ret = "i1"
	case KindI8:
		ret = "i8"
	case KindI16:
		ret = "i16"
	case KindI32:
		ret = "i32"
	case KindI64:
		ret = "i64"
	case KindFloat:
		ret = "float"
	case KindDouble:
		ret = "double"
	case KindNativePointer:
		ret = "ptr"
	case KindManagedPointer:
		ret = "managed ptr"
	case KindVector:
		ret = "vector"
	default:
		ret = fmt.Sprintf("<unknown=%d>", k)
	}
	return
}

// BitWidth returns the number of significant bits of a scalar kind, or zero
// for void and vectors. Pointers are 64 bits wide.
func (k Kind) BitWidth() int {
	switch k {
	case KindI1:
		return 1
	case KindI8:
		return 8
	case KindI16:
		return 16
	case KindI32, KindFloat:
		return 32
	case KindI64, KindDouble, KindNativePointer, KindManagedPointer:
		return 64
	}
	return 0
}

// ByteSize is the store size of a scalar kind. i1 occupies a full byte.
func (k Kind) ByteSize() int {
	switch k {
	case KindI1, KindI8:
		return 1
	case KindI16:
		return 2
	case KindI32, KindFloat:
		return 4
	case KindI64, KindDouble, KindNativePointer, KindManagedPointer:
		return 8
	}
	return 0
}

func (k Kind) IsInteger() bool {
	return k >= KindI1 && k <= KindI64
}

func (k Kind) IsFloat() bool {
	return k == KindFloat || k == KindDouble
}

func (k Kind) IsPointer() bool {
	return k == KindNativePointer || k == KindManagedPointer
}

// Mask truncates bits to the width of k.
func (k Kind) Mask(bits uint64) uint64 {
	switch w := k.BitWidth(); w {
	case 0, 64:
		return bits
	default:
		return bits & (1<<uint(w) - 1)
	}
}

// Value is exactly one of: an integer of 1, 8, 16, 32 or 64 bits, a float, a
// double, a vector, a native pointer, a managed pointer or void.
//
// Scalars are kept zero-extended in bits. Floats are kept as their IEEE-754
// bit pattern. A native pointer keeps its address in bits; a managed pointer
// keeps its offset in bits and its owner in owner.
type Value struct {
	kind  Kind
	bits  uint64
	owner Owner
	vec   *Vector
}

// Void is the result of statements and void calls.
var Void = Value{}

func I1(v bool) Value {
	if v {
		return Value{kind: KindI1, bits: 1}
	}
	return Value{kind: KindI1}
}

func I8(v int8) Value {
	return Value{kind: KindI8, bits: uint64(uint8(v))}
}

func I16(v int16) Value {
	return Value{kind: KindI16, bits: uint64(uint16(v))}
}

func I32(v int32) Value {
	return Value{kind: KindI32, bits: uint64(uint32(v))}
}

func I64(v int64) Value {
	return Value{kind: KindI64, bits: uint64(v)}
}

func Float(v float32) Value {
	return Value{kind: KindFloat, bits: uint64(math.Float32bits(v))}
}

func Double(v float64) Value {
	return Value{kind: KindDouble, bits: math.Float64bits(v)}
}

// FromBits builds a scalar of the given kind from its raw bit pattern,
// truncating to the kind's width.
func FromBits(kind Kind, bits uint64) Value {
	return Value{kind: kind, bits: kind.Mask(bits)}
}

func Native(p NativePointer) Value {
	return Value{kind: KindNativePointer, bits: uint64(p)}
}

func Managed(p ManagedPointer) Value {
	return Value{kind: KindManagedPointer, bits: uint64(p.Offset), owner: p.Owner}
}

func Vec(v *Vector) Value {
	return Value{kind: KindVector, vec: v}
}

// Zero returns the zero value of a scalar kind. The zero pointer is the
// native null pointer.
func Zero(kind Kind) Value {
	if kind == KindManagedPointer {
		kind = KindNativePointer
	}
	return Value{kind: kind}
}

func (v Value) Kind() Kind { return v.kind }

// Bits returns the raw zero-extended payload of a scalar or a pointer.
func (v Value) Bits() uint64 { return v.bits }

func (v Value) I1() bool { return v.bits&1 == 1 }

func (v Value) I8() int8 { return int8(v.bits) }

func (v Value) I16() int16 { return int16(v.bits) }

func (v Value) I32() int32 { return int32(v.bits) }

func (v Value) I64() int64 { return int64(v.bits) }

func (v Value) Float() float32 { return math.Float32frombits(uint32(v.bits)) }

func (v Value) Double() float64 { return math.Float64frombits(v.bits) }

// SignExtended returns an integer value sign-extended to 64 bits.
func (v Value) SignExtended() int64 {
	w := v.kind.BitWidth()
	if w == 0 || w == 64 {
		return int64(v.bits)
	}
	shift := uint(64 - w)
	return int64(v.bits<<shift) >> shift
}

func (v Value) Native() NativePointer { return NativePointer(v.bits) }

func (v Value) Managed() ManagedPointer {
	return ManagedPointer{Owner: v.owner, Offset: int64(v.bits)}
}

func (v Value) Vector() *Vector { return v.vec }

func (v Value) IsPointer() bool { return v.kind.IsPointer() }

// IsNull is true for the native null pointer.
func (v Value) IsNull() bool { return v.kind == KindNativePointer && v.bits == 0 }

// Equal is structural equality. Floats compare by bit pattern so NaN equals
// an identical NaN.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.bits != o.bits || v.owner != o.owner {
		return false
	}
	if v.kind == KindVector {
		return v.vec.Equal(o.vec)
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case KindVoid:
		return "void"
	case KindI1:
		if v.I1() {
			return "i1 true"
		}
		return "i1 false"
	case KindI8, KindI16, KindI32, KindI64:
		return fmt.Sprintf("%s %d", v.kind, v.SignExtended())
	case KindFloat:
		return fmt.Sprintf("float %v", v.Float())
	case KindDouble:
		return fmt.Sprintf("double %v", v.Double())
	case KindNativePointer:
		return fmt.Sprintf("ptr 0x%x", v.bits)
	case KindManagedPointer:
		return fmt.Sprintf("ptr <%T>+%d", v.owner, int64(v.bits))
	case KindVector:
		return v.vec.String()
	}
	return v.kind.String()
}

// Vector is a fixed-length homogeneous vector. Scalar lanes are kept as bit
// patterns; pointer lanes are kept as values so native and managed lanes can
// be mixed.
type Vector struct {
	elem  Kind
	lanes []uint64
	ptrs  []Value
}

// NewVector returns a vector of scalar lanes, each truncated to elem.
func NewVector(elem Kind, lanes ...uint64) *Vector {
	v := &Vector{elem: elem, lanes: make([]uint64, len(lanes))}
	for i, l := range lanes {
		v.lanes[i] = elem.Mask(l)
	}
	return v
}

// NewPointerVector returns a vector whose lanes are pointers.
func NewPointerVector(ptrs ...Value) *Vector {
	v := &Vector{elem: KindNativePointer, ptrs: make([]Value, len(ptrs))}
	copy(v.ptrs, ptrs)
	return v
}

// Elem returns the lane kind. Pointer vectors report KindNativePointer.
func (v *Vector) Elem() Kind { return v.elem }

func (v *Vector) IsPointerVector() bool { return v.ptrs != nil }

func (v *Vector) Len() int {
	if v.ptrs != nil {
		return len(v.ptrs)
	}
	return len(v.lanes)
}

// Lane returns lane i. The caller checks bounds.
func (v *Vector) Lane(i int) Value {
	if v.ptrs != nil {
		return v.ptrs[i]
	}
	return Value{kind: v.elem, bits: v.lanes[i]}
}

// LaneBits returns the raw bits of scalar lane i.
func (v *Vector) LaneBits(i int) uint64 { return v.lanes[i] }

// With returns a copy of v with lane i replaced.
func (v *Vector) With(i int, lane Value) *Vector {
	ret := &Vector{elem: v.elem}
	if v.ptrs != nil {
		ret.ptrs = append([]Value(nil), v.ptrs...)
		ret.ptrs[i] = lane
	} else {
		ret.lanes = append([]uint64(nil), v.lanes...)
		ret.lanes[i] = v.elem.Mask(lane.bits)
	}
	return ret
}

func (v *Vector) Equal(o *Vector) bool {
	if v == o {
		return true
	}
	if v == nil || o == nil || v.elem != o.elem || v.Len() != o.Len() {
		return false
	}
	for i := 0; i < v.Len(); i++ {
		if !v.Lane(i).Equal(o.Lane(i)) {
			return false
		}
	}
	return true
}

func (v *Vector) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%d x %s> [", v.Len(), v.elem)
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		l := v.Lane(i)
		switch l.kind {
		case KindFloat:
			fmt.Fprintf(&b, "%v", l.Float())
		case KindDouble:
			fmt.Fprintf(&b, "%v", l.Double())
		case KindI1, KindI8, KindI16, KindI32, KindI64:
			fmt.Fprintf(&b, "%d", l.SignExtended())
		default:
			b.WriteString(l.String())
		}
	}
	b.WriteByte(']')
	return b.String()
}
