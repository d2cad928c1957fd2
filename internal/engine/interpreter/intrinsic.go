package interpreter

import (
	"fmt"
	"math"
	"math/bits"
	"strings"

	"github.com/tetratelabs/bitzero/internal/ir"
	"github.com/tetratelabs/bitzero/internal/moremath"
	"github.com/tetratelabs/bitzero/internal/value"
)

// intrinsics are keyed by the name after "llvm." up to the first type
// suffix, e.g. "memcpy" for llvm.memcpy.p0.p0.i64.
var intrinsics = map[string]hostFunc{
	"memcpy":       memoryCopy,
	"memmove":      memoryCopy,
	"memset":       memorySet,
	"lifetime":     nop,
	"dbg":          nop,
	"assume":       nop,
	"donothing":    nop,
	"stackrestore": nop,
	"stacksave": func(*callEngine, []value.Value) value.Value {
		return value.Native(value.NullPointer)
	},
	"expect":    func(_ *callEngine, args []value.Value) value.Value { return args[0] },
	"trap":      trap,
	"debugtrap": trap,

	"fabs":     floatUnary(math.Abs),
	"sqrt":     floatUnary(math.Sqrt),
	"floor":    floatUnary(math.Floor),
	"ceil":     floatUnary(math.Ceil),
	"trunc":    floatUnary(math.Trunc),
	"round":    floatUnary(math.Round),
	"rint":     floatUnary(math.RoundToEven),
	"copysign": floatBinary(math.Copysign),
	"minnum":   floatBinary(moremath.MinNum),
	"maxnum":   floatBinary(moremath.MaxNum),
	"pow":      floatBinary(math.Pow),
	"fma":      fma,
	"fmuladd":  fma,

	"smax": integerBinaryIntrinsic(func(x, y value.Value) bool { return x.SignExtended() > y.SignExtended() }),
	"smin": integerBinaryIntrinsic(func(x, y value.Value) bool { return x.SignExtended() < y.SignExtended() }),
	"umax": integerBinaryIntrinsic(func(x, y value.Value) bool { return x.Bits() > y.Bits() }),
	"umin": integerBinaryIntrinsic(func(x, y value.Value) bool { return x.Bits() < y.Bits() }),
	"abs": func(_ *callEngine, args []value.Value) value.Value {
		x := args[0]
		if x.SignExtended() < 0 {
			return value.FromBits(x.Kind(), uint64(-x.SignExtended()))
		}
		return x
	},
	"ctpop": bitCount(func(v uint64, _ int) int { return bits.OnesCount64(v) }),
	"ctlz":  bitCount(func(v uint64, w int) int { return bits.LeadingZeros64(v) - (64 - w) }),
	"cttz": bitCount(func(v uint64, w int) int {
		if v == 0 {
			return w
		}
		return bits.TrailingZeros64(v)
	}),
	"bswap": func(_ *callEngine, args []value.Value) value.Value {
		x := args[0]
		return value.FromBits(x.Kind(), bits.ReverseBytes64(x.Bits())>>uint(64-x.Kind().BitWidth()))
	},

	"sadd": withOverflow(ir.OpAdd, ir.FlagNSW),
	"uadd": withOverflow(ir.OpAdd, ir.FlagNUW),
	"ssub": withOverflow(ir.OpSub, ir.FlagNSW),
	"usub": withOverflow(ir.OpSub, ir.FlagNUW),
	"smul": withOverflow(ir.OpMul, ir.FlagNSW),
	"umul": withOverflow(ir.OpMul, ir.FlagNUW),
}

// lookupIntrinsic returns the implementation of an llvm.* declaration.
func lookupIntrinsic(name string) (hostFunc, bool) {
	rest, ok := strings.CutPrefix(name, "llvm.")
	if !ok {
		return nil, false
	}
	if i := strings.IndexByte(rest, '.'); i >= 0 {
		rest = rest[:i]
	}
	f, ok := intrinsics[rest]
	return f, ok
}

func nop(*callEngine, []value.Value) value.Value { return value.Void }

func trap(*callEngine, []value.Value) value.Value { panic(ErrUnreachable) }

func memoryCopy(ce *callEngine, args []value.Value) value.Value {
	if err := ce.engine.model.Copy(args[0], args[1], args[2].Bits()); err != nil {
		panic(err)
	}
	return value.Void
}

func memorySet(ce *callEngine, args []value.Value) value.Value {
	if err := ce.engine.model.Fill(args[0], byte(args[1].Bits()), args[2].Bits()); err != nil {
		panic(err)
	}
	return value.Void
}

func floatUnary(f func(float64) float64) hostFunc {
	return func(_ *callEngine, args []value.Value) value.Value {
		switch x := args[0]; x.Kind() {
		case value.KindFloat:
			return value.Float(float32(f(float64(x.Float()))))
		case value.KindDouble:
			return value.Double(f(x.Double()))
		}
		panic(fmt.Errorf("%w: float intrinsic on %s", ErrUnsupported, args[0].Kind()))
	}
}

func floatBinary(f func(x, y float64) float64) hostFunc {
	return func(_ *callEngine, args []value.Value) value.Value {
		switch x, y := args[0], args[1]; x.Kind() {
		case value.KindFloat:
			return value.Float(float32(f(float64(x.Float()), float64(y.Float()))))
		case value.KindDouble:
			return value.Double(f(x.Double(), y.Double()))
		}
		panic(fmt.Errorf("%w: float intrinsic on %s", ErrUnsupported, args[0].Kind()))
	}
}

func fma(_ *callEngine, args []value.Value) value.Value {
	x, y, z := args[0], args[1], args[2]
	switch x.Kind() {
	case value.KindFloat:
		return value.Float(float32(math.FMA(float64(x.Float()), float64(y.Float()), float64(z.Float()))))
	case value.KindDouble:
		return value.Double(math.FMA(x.Double(), y.Double(), z.Double()))
	}
	panic(fmt.Errorf("%w: fma on %s", ErrUnsupported, x.Kind()))
}

// integerBinaryIntrinsic returns x when first(x, y) holds, otherwise y.
func integerBinaryIntrinsic(first func(x, y value.Value) bool) hostFunc {
	return func(_ *callEngine, args []value.Value) value.Value {
		if first(args[0], args[1]) {
			return args[0]
		}
		return args[1]
	}
}

func bitCount(count func(v uint64, width int) int) hostFunc {
	return func(_ *callEngine, args []value.Value) value.Value {
		x := args[0]
		return value.FromBits(x.Kind(), uint64(count(x.Bits(), x.Kind().BitWidth())))
	}
}

// withOverflow implements the *.with.overflow intrinsics. The result is a
// { iN, i1 } aggregate holding the wrapped result and the overflow bit.
func withOverflow(op ir.ArithmeticOperator, flag ir.Flags) hostFunc {
	return func(ce *callEngine, args []value.Value) value.Value {
		x, y := args[0], args[1]
		kind := x.Kind()
		r := integerBinary(op, 0, kind)(x.Bits(), y.Bits())
		overflow := overflows(integerBinary(op, flag, kind), x.Bits(), y.Bits())

		m := ce.engine.model
		size := int64(kind.ByteSize())
		obj := value.Managed(m.NewStackObject(uint64(2 * size)))
		if err := m.Store(obj, value.FromBits(kind, r)); err != nil {
			panic(err)
		}
		if err := m.Store(value.Managed(obj.Managed().Add(size)), value.I1(overflow)); err != nil {
			panic(err)
		}
		return obj
	}
}

func overflows(f func(x, y uint64) uint64, x, y uint64) (ret bool) {
	defer func() {
		if recover() != nil {
			ret = true
		}
	}()
	f(x, y)
	return false
}
