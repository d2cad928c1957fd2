package interpreter

import (
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/bitzero/internal/ir"
	"github.com/tetratelabs/bitzero/internal/memory"
	"github.com/tetratelabs/bitzero/internal/moremath"
	"github.com/tetratelabs/bitzero/internal/value"
)

// castFunc converts one scalar. The model is needed by ptrtoint, which may
// materialize a managed object or export it as a handle.
type castFunc func(m *memory.Model, v value.Value) value.Value

type castKey struct {
	op       ir.CastOperator
	from, to value.Kind
}

// castTable holds one specialization per operator and kind pair.
var castTable = map[castKey]castFunc{}

var (
	intKinds     = []value.Kind{value.KindI1, value.KindI8, value.KindI16, value.KindI32, value.KindI64}
	floatKinds   = []value.Kind{value.KindFloat, value.KindDouble}
	pointerKinds = []value.Kind{value.KindNativePointer, value.KindManagedPointer}
)

func init() {
	identity := func(_ *memory.Model, v value.Value) value.Value { return v }

	for _, from := range intKinds {
		from := from
		castTable[castKey{ir.CastBitcast, from, from}] = identity
		for _, to := range intKinds {
			to := to
			switch {
			case to.BitWidth() < from.BitWidth():
				castTable[castKey{ir.CastTrunc, from, to}] = func(_ *memory.Model, v value.Value) value.Value {
					return value.FromBits(to, v.Bits())
				}
			case to.BitWidth() > from.BitWidth():
				castTable[castKey{ir.CastZExt, from, to}] = func(_ *memory.Model, v value.Value) value.Value {
					return value.FromBits(to, v.Bits())
				}
				castTable[castKey{ir.CastSExt, from, to}] = func(_ *memory.Model, v value.Value) value.Value {
					return value.FromBits(to, uint64(v.SignExtended()))
				}
			}
		}

		w := from.BitWidth()
		castTable[castKey{ir.CastFPToUI, value.KindFloat, from}] = func(_ *memory.Model, v value.Value) value.Value {
			return value.FromBits(from, moremath.FloatToUnsigned(float64(v.Float()), w))
		}
		castTable[castKey{ir.CastFPToUI, value.KindDouble, from}] = func(_ *memory.Model, v value.Value) value.Value {
			return value.FromBits(from, moremath.FloatToUnsigned(v.Double(), w))
		}
		castTable[castKey{ir.CastFPToSI, value.KindFloat, from}] = func(_ *memory.Model, v value.Value) value.Value {
			return value.FromBits(from, uint64(moremath.FloatToSigned(float64(v.Float()), w)))
		}
		castTable[castKey{ir.CastFPToSI, value.KindDouble, from}] = func(_ *memory.Model, v value.Value) value.Value {
			return value.FromBits(from, uint64(moremath.FloatToSigned(v.Double(), w)))
		}
		castTable[castKey{ir.CastUIToFP, from, value.KindFloat}] = func(_ *memory.Model, v value.Value) value.Value {
			return value.Float(float32(v.Bits()))
		}
		castTable[castKey{ir.CastUIToFP, from, value.KindDouble}] = func(_ *memory.Model, v value.Value) value.Value {
			return value.Double(float64(v.Bits()))
		}
		castTable[castKey{ir.CastSIToFP, from, value.KindFloat}] = func(_ *memory.Model, v value.Value) value.Value {
			return value.Float(float32(v.SignExtended()))
		}
		castTable[castKey{ir.CastSIToFP, from, value.KindDouble}] = func(_ *memory.Model, v value.Value) value.Value {
			return value.Double(float64(v.SignExtended()))
		}

		castTable[castKey{ir.CastIntToPtr, from, value.KindNativePointer}] = func(_ *memory.Model, v value.Value) value.Value {
			return value.Native(value.NativePointer(v.Bits()))
		}
		for _, p := range pointerKinds {
			castTable[castKey{ir.CastPtrToInt, p, from}] = func(m *memory.Model, v value.Value) value.Value {
				p, err := m.ToNative(v)
				if err != nil {
					panic(err)
				}
				return value.FromBits(from, uint64(p))
			}
		}
	}

	for _, k := range floatKinds {
		castTable[castKey{ir.CastBitcast, k, k}] = identity
	}
	castTable[castKey{ir.CastFPTrunc, value.KindDouble, value.KindFloat}] = func(_ *memory.Model, v value.Value) value.Value {
		return value.Float(float32(v.Double()))
	}
	castTable[castKey{ir.CastFPExt, value.KindFloat, value.KindDouble}] = func(_ *memory.Model, v value.Value) value.Value {
		return value.Double(float64(v.Float()))
	}
	for _, pair := range [][2]value.Kind{
		{value.KindI32, value.KindFloat}, {value.KindFloat, value.KindI32},
		{value.KindI64, value.KindDouble}, {value.KindDouble, value.KindI64},
	} {
		to := pair[1]
		castTable[castKey{ir.CastBitcast, pair[0], to}] = func(_ *memory.Model, v value.Value) value.Value {
			return value.FromBits(to, v.Bits())
		}
	}

	for _, from := range pointerKinds {
		for _, to := range pointerKinds {
			castTable[castKey{ir.CastBitcast, from, to}] = identity
			castTable[castKey{ir.CastAddrSpaceCast, from, to}] = identity
		}
	}
}

// lookupCast returns the conversion of op from one type to another, or
// ErrNoSuchCast.
func lookupCast(op ir.CastOperator, from, to *ir.Type) (castFunc, error) {
	noSuchCast := fmt.Errorf("%w: %s from %s to %s", ErrNoSuchCast, op, from, to)
	if op == ir.CastBitcast && (from.IsVector() || to.IsVector()) {
		switch {
		case from.Scalar().IsPointer() || to.Scalar().IsPointer():
			if from.IsVector() && to.IsVector() && from.Len == to.Len && from.Elem.IsPointer() && to.Elem.IsPointer() {
				return func(_ *memory.Model, v value.Value) value.Value { return v }, nil
			}
			return nil, noSuchCast
		case bitWidthOf(from) != 0 && bitWidthOf(from) == bitWidthOf(to):
			return bitsCast(to), nil
		}
		return nil, noSuchCast
	}
	if from.IsVector() || to.IsVector() {
		if !from.IsVector() || !to.IsVector() || from.Len != to.Len {
			return nil, noSuchCast
		}
		fk, ok1 := from.Elem.ValueKind()
		tk, ok2 := to.Elem.ValueKind()
		if _, ok := castTable[castKey{op, fk, tk}]; !ok || !ok1 || !ok2 {
			return nil, noSuchCast
		}
		return vectorCast(op, tk), nil
	}
	fk, ok1 := from.ValueKind()
	tk, ok2 := to.ValueKind()
	f, ok := castTable[castKey{op, fk, tk}]
	if !ok || !ok1 || !ok2 {
		return nil, noSuchCast
	}
	return f, nil
}

// bitWidthOf returns the width of the bit pattern of a scalar or vector of
// integers and floats, or zero.
func bitWidthOf(t *ir.Type) int {
	k, ok := t.Scalar().ValueKind()
	if !ok || k.IsPointer() {
		return 0
	}
	if t.IsVector() {
		return k.BitWidth() * int(t.Len)
	}
	return k.BitWidth()
}

func vectorCast(op ir.CastOperator, to value.Kind) castFunc {
	return func(m *memory.Model, v value.Value) value.Value {
		vec := v.Vector()
		lanes := make([]value.Value, vec.Len())
		for i := range lanes {
			lane := vec.Lane(i)
			f, ok := castTable[castKey{op, lane.Kind(), to}]
			if !ok {
				panic(fmt.Errorf("%w: %s from %s to %s", ErrNoSuchCast, op, lane.Kind(), to))
			}
			lanes[i] = f(m, lane)
		}
		return vectorOf(to, lanes)
	}
}

// bitsCast reinterprets the bits of a scalar or vector as another type of the
// same width. Lanes are packed least significant first, so i1 lanes take one
// bit each.
func bitsCast(to *ir.Type) castFunc {
	elem, _ := to.Scalar().ValueKind()
	return func(_ *memory.Model, v value.Value) value.Value {
		words := packBits(v)
		if !to.IsVector() {
			return value.FromBits(elem, words[0])
		}
		w := elem.BitWidth()
		lanes := make([]uint64, to.Len)
		for i := range lanes {
			lanes[i] = getBits(words, i*w, w)
		}
		return value.Vec(value.NewVector(elem, lanes...))
	}
}

func packBits(v value.Value) []uint64 {
	if v.Kind() != value.KindVector {
		return []uint64{v.Bits()}
	}
	vec := v.Vector()
	w := vec.Elem().BitWidth()
	words := make([]uint64, (vec.Len()*w+63)/64)
	for i := 0; i < vec.Len(); i++ {
		// Lane widths divide 64, so a lane never straddles two words.
		off := i * w
		words[off/64] |= vec.LaneBits(i) << uint(off%64)
	}
	return words
}

func getBits(words []uint64, off, w int) uint64 {
	v := words[off/64] >> uint(off%64)
	if w < 64 {
		v &= 1<<uint(w) - 1
	}
	return v
}

type castSpec struct {
	kind value.Kind
	fn   castFunc
}

type castNode struct {
	definition
	op   ir.CastOperator
	to   value.Kind
	x    operand
	spec atomic.Pointer[castSpec]
}

func (n *castNode) exec(ce *callEngine, fr *frame) {
	x := n.x.eval(fr)
	s := n.spec.Load()
	if s.kind != x.Kind() {
		// Only scalar pointers change kind at run time.
		f, ok := castTable[castKey{n.op, x.Kind(), n.to}]
		if !ok {
			panic(fmt.Errorf("%w: %s from %s to %s", ErrNoSuchCast, n.op, x.Kind(), n.to))
		}
		s = &castSpec{kind: x.Kind(), fn: f}
		n.spec.Store(s)
	}
	fr.slots[n.dst] = s.fn(ce.engine.model, x)
}
