package interpreter

import (
	"fmt"
	"math"
	"math/bits"
	"sync/atomic"

	"github.com/tetratelabs/bitzero/internal/ir"
	"github.com/tetratelabs/bitzero/internal/value"
)

type binaryFunc func(x, y value.Value) value.Value

// binarySpec is a binary operator specialized for one operand kind.
type binarySpec struct {
	kind value.Kind
	fn   binaryFunc
}

type binaryNode struct {
	definition
	op    ir.ArithmeticOperator
	flags ir.Flags
	x, y  operand
	spec  atomic.Pointer[binarySpec]
}

func (n *binaryNode) exec(_ *callEngine, fr *frame) {
	x, y := n.x.eval(fr), n.y.eval(fr)
	s := n.spec.Load()
	if s == nil || s.kind != x.Kind() {
		s = &binarySpec{kind: x.Kind(), fn: resolveBinary(n.op, n.flags, x)}
		n.spec.Store(s)
	}
	fr.slots[n.dst] = s.fn(x, y)
}

// resolveBinary specializes op for the kind of x. Vectors apply the scalar
// specialization of their element lane by lane.
func resolveBinary(op ir.ArithmeticOperator, flags ir.Flags, x value.Value) binaryFunc {
	if x.Kind() == value.KindVector {
		return laneWise(resolveScalarBinary(op, flags, x.Vector().Elem()))
	}
	return resolveScalarBinary(op, flags, x.Kind())
}

func resolveScalarBinary(op ir.ArithmeticOperator, flags ir.Flags, kind value.Kind) binaryFunc {
	switch {
	case kind.IsInteger() && !op.IsFloat():
		if f := integerBinary(op, flags, kind); f != nil {
			return func(x, y value.Value) value.Value {
				return value.FromBits(kind, f(x.Bits(), y.Bits()))
			}
		}
	case kind == value.KindFloat && op.IsFloat():
		f := float32Binary(op)
		return func(x, y value.Value) value.Value { return value.Float(f(x.Float(), y.Float())) }
	case kind == value.KindDouble && op.IsFloat():
		f := float64Binary(op)
		return func(x, y value.Value) value.Value { return value.Double(f(x.Double(), y.Double())) }
	}
	err := fmt.Errorf("%w: %s on %s", ir.ErrNoSuchOperator, op, kind)
	return func(value.Value, value.Value) value.Value { panic(err) }
}

func laneWise(f binaryFunc) binaryFunc {
	return func(x, y value.Value) value.Value {
		xv, yv := x.Vector(), y.Vector()
		lanes := make([]value.Value, xv.Len())
		for i := range lanes {
			lanes[i] = f(xv.Lane(i), yv.Lane(i))
		}
		return vectorOf(xv.Elem(), lanes)
	}
}

// integerBinary returns op on zero-extended operands of the width of kind.
// The result is truncated to that width. nuw and nsw turn wrapping into
// ErrIntegerOverflow; exact is not checked.
func integerBinary(op ir.ArithmeticOperator, flags ir.Flags, kind value.Kind) func(x, y uint64) uint64 {
	w := uint(kind.BitWidth())
	mask := kind.Mask(math.MaxUint64)
	sign := uint64(1) << (w - 1)
	nuw, nsw := flags&ir.FlagNUW != 0, flags&ir.FlagNSW != 0
	signed := func(v uint64) int64 { return int64(v<<(64-w)) >> (64 - w) }

	switch op {
	case ir.OpAdd:
		return func(x, y uint64) uint64 {
			r := (x + y) & mask
			if (nuw && r < x) || (nsw && ^(x^y)&(x^r)&sign != 0) {
				panic(ErrIntegerOverflow)
			}
			return r
		}
	case ir.OpSub:
		return func(x, y uint64) uint64 {
			r := (x - y) & mask
			if (nuw && y > x) || (nsw && (x^y)&(x^r)&sign != 0) {
				panic(ErrIntegerOverflow)
			}
			return r
		}
	case ir.OpMul:
		return func(x, y uint64) uint64 {
			hi, lo := bits.Mul64(x, y)
			r := lo & mask
			if (nuw && (hi != 0 || lo != r)) || (nsw && mulOverflows(signed(x), signed(y), w)) {
				panic(ErrIntegerOverflow)
			}
			return r
		}
	case ir.OpUDiv:
		return func(x, y uint64) uint64 {
			if y == 0 {
				panic(ErrIntegerDivideByZero)
			}
			return x / y
		}
	case ir.OpURem:
		return func(x, y uint64) uint64 {
			if y == 0 {
				panic(ErrIntegerDivideByZero)
			}
			return x % y
		}
	case ir.OpSDiv:
		minimum := signed(sign)
		return func(x, y uint64) uint64 {
			if y == 0 {
				panic(ErrIntegerDivideByZero)
			}
			sx, sy := signed(x), signed(y)
			if sx == minimum && sy == -1 {
				panic(ErrIntegerOverflow)
			}
			return uint64(sx/sy) & mask
		}
	case ir.OpSRem:
		minimum := signed(sign)
		return func(x, y uint64) uint64 {
			if y == 0 {
				panic(ErrIntegerDivideByZero)
			}
			sx, sy := signed(x), signed(y)
			if sx == minimum && sy == -1 {
				panic(ErrIntegerOverflow)
			}
			return uint64(sx%sy) & mask
		}
	case ir.OpShl:
		return func(x, y uint64) uint64 {
			s := y % uint64(w)
			r := (x << s) & mask
			if (nuw && r>>s != x) || (nsw && signed(r)>>s != signed(x)) {
				panic(ErrIntegerOverflow)
			}
			return r
		}
	case ir.OpLShr:
		return func(x, y uint64) uint64 { return x >> (y % uint64(w)) }
	case ir.OpAShr:
		return func(x, y uint64) uint64 { return uint64(signed(x)>>(y%uint64(w))) & mask }
	case ir.OpAnd:
		return func(x, y uint64) uint64 { return x & y }
	case ir.OpOr:
		return func(x, y uint64) uint64 { return x | y }
	case ir.OpXor:
		return func(x, y uint64) uint64 { return x ^ y }
	}
	return nil
}

// mulOverflows is true when the product of a and b does not fit w signed
// bits.
func mulOverflows(a, b int64, w uint) bool {
	if w < 64 {
		// Both operands fit 32 bits, so the product fits 64.
		p := a * b
		limit := int64(1) << (w - 1)
		return p < -limit || p >= limit
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if a < 0 {
		hi -= uint64(b)
	}
	if b < 0 {
		hi -= uint64(a)
	}
	return int64(hi) != int64(lo)>>63
}

func float32Binary(op ir.ArithmeticOperator) func(x, y float32) float32 {
	switch op {
	case ir.OpFAdd:
		return func(x, y float32) float32 { return x + y }
	case ir.OpFSub:
		return func(x, y float32) float32 { return x - y }
	case ir.OpFMul:
		return func(x, y float32) float32 { return x * y }
	case ir.OpFDiv:
		return func(x, y float32) float32 { return x / y }
	}
	return func(x, y float32) float32 { return float32(math.Mod(float64(x), float64(y))) }
}

func float64Binary(op ir.ArithmeticOperator) func(x, y float64) float64 {
	switch op {
	case ir.OpFAdd:
		return func(x, y float64) float64 { return x + y }
	case ir.OpFSub:
		return func(x, y float64) float64 { return x - y }
	case ir.OpFMul:
		return func(x, y float64) float64 { return x * y }
	case ir.OpFDiv:
		return func(x, y float64) float64 { return x / y }
	}
	return math.Mod
}

// fnegNode flips the sign bit, so NaN payloads are kept.
type fnegNode struct {
	definition
	x operand
}

func (n *fnegNode) exec(_ *callEngine, fr *frame) {
	fr.slots[n.dst] = fneg(n.x.eval(fr))
}

func fneg(v value.Value) value.Value {
	switch v.Kind() {
	case value.KindFloat:
		return value.FromBits(value.KindFloat, v.Bits()^(1<<31))
	case value.KindDouble:
		return value.FromBits(value.KindDouble, v.Bits()^(1<<63))
	case value.KindVector:
		vec := v.Vector()
		lanes := make([]value.Value, vec.Len())
		for i := range lanes {
			lanes[i] = fneg(vec.Lane(i))
		}
		return vectorOf(vec.Elem(), lanes)
	}
	panic(fmt.Errorf("%w: fneg on %s", ir.ErrNoSuchOperator, v.Kind()))
}
