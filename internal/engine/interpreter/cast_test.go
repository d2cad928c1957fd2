package interpreter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/bitzero/internal/ir"
	"github.com/tetratelabs/bitzero/internal/memory"
	"github.com/tetratelabs/bitzero/internal/value"
)

func TestLookupCast(t *testing.T) {
	tests := []struct {
		name     string
		op       ir.CastOperator
		from, to *ir.Type
		x        value.Value
		expected value.Value
	}{
		{name: "trunc", op: ir.CastTrunc, from: ir.I32, to: ir.I8, x: value.I32(0x1234), expected: value.I8(0x34)},
		{name: "trunc to i1", op: ir.CastTrunc, from: ir.I8, to: ir.I1, x: value.I8(3), expected: value.I1(true)},
		{name: "zext", op: ir.CastZExt, from: ir.I8, to: ir.I32, x: value.I8(-1), expected: value.I32(0xff)},
		{name: "sext", op: ir.CastSExt, from: ir.I8, to: ir.I32, x: value.I8(-1), expected: value.I32(-1)},
		{name: "sext i1", op: ir.CastSExt, from: ir.I1, to: ir.I64, x: value.I1(true), expected: value.I64(-1)},
		{name: "fptosi", op: ir.CastFPToSI, from: ir.Double, to: ir.I32, x: value.Double(-2.9), expected: value.I32(-2)},
		{name: "fptosi saturates", op: ir.CastFPToSI, from: ir.Double, to: ir.I8, x: value.Double(1000), expected: value.I8(math.MaxInt8)},
		{name: "fptosi saturates low", op: ir.CastFPToSI, from: ir.Float, to: ir.I8, x: value.Float(-1000), expected: value.I8(math.MinInt8)},
		{name: "fptosi nan", op: ir.CastFPToSI, from: ir.Double, to: ir.I32, x: value.Double(math.NaN()), expected: value.I32(0)},
		{name: "fptoui negative", op: ir.CastFPToUI, from: ir.Double, to: ir.I32, x: value.Double(-5), expected: value.I32(0)},
		{name: "fptoui", op: ir.CastFPToUI, from: ir.Float, to: ir.I16, x: value.Float(65535), expected: value.I16(-1)},
		{name: "sitofp", op: ir.CastSIToFP, from: ir.I8, to: ir.Double, x: value.I8(-3), expected: value.Double(-3)},
		{name: "uitofp", op: ir.CastUIToFP, from: ir.I8, to: ir.Float, x: value.I8(-1), expected: value.Float(255)},
		{name: "fptrunc", op: ir.CastFPTrunc, from: ir.Double, to: ir.Float, x: value.Double(1.5), expected: value.Float(1.5)},
		{name: "fpext", op: ir.CastFPExt, from: ir.Float, to: ir.Double, x: value.Float(0.25), expected: value.Double(0.25)},
		{name: "bitcast float to i32", op: ir.CastBitcast, from: ir.Float, to: ir.I32, x: value.Float(1), expected: value.I32(0x3f800000)},
		{name: "bitcast i64 to double", op: ir.CastBitcast, from: ir.I64, to: ir.Double, x: value.I64(0x4000000000000000), expected: value.Double(2)},
		{name: "inttoptr", op: ir.CastIntToPtr, from: ir.I64, to: ir.Ptr, x: value.I64(0x40), expected: value.Native(0x40)},
		{name: "ptrtoint native", op: ir.CastPtrToInt, from: ir.Ptr, to: ir.I64, x: value.Native(0x40), expected: value.I64(0x40)},
		{
			name: "bitcast i1 vector to i8", op: ir.CastBitcast, from: ir.VectorOf(ir.I1, 8), to: ir.I8,
			x:        value.Vec(value.NewVector(value.KindI1, 1, 0, 1, 0, 0, 0, 0, 1)),
			expected: value.FromBits(value.KindI8, 0x85),
		},
		{
			name: "bitcast i64 to i32 vector", op: ir.CastBitcast, from: ir.I64, to: ir.VectorOf(ir.I32, 2),
			x:        value.I64(0x0000000200000001),
			expected: value.Vec(value.NewVector(value.KindI32, 1, 2)),
		},
		{
			name: "bitcast i32 vector to i64", op: ir.CastBitcast, from: ir.VectorOf(ir.I32, 2), to: ir.I64,
			x:        value.Vec(value.NewVector(value.KindI32, 1, 2)),
			expected: value.I64(0x0000000200000001),
		},
		{
			name: "zext vector", op: ir.CastZExt, from: ir.VectorOf(ir.I8, 2), to: ir.VectorOf(ir.I16, 2),
			x:        value.Vec(value.NewVector(value.KindI8, 0xff, 1)),
			expected: value.Vec(value.NewVector(value.KindI16, 0xff, 1)),
		},
	}

	m := memory.NewModel(0)
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			f, err := lookupCast(tc.op, tc.from, tc.to)
			require.NoError(t, err)
			actual := f(m, tc.x)
			require.True(t, tc.expected.Equal(actual), actual.String())
		})
	}
}

func TestLookupCast_NoSuchCast(t *testing.T) {
	tests := []struct {
		name     string
		op       ir.CastOperator
		from, to *ir.Type
	}{
		{name: "trunc widening", op: ir.CastTrunc, from: ir.I8, to: ir.I32},
		{name: "zext narrowing", op: ir.CastZExt, from: ir.I32, to: ir.I8},
		{name: "bitcast width mismatch", op: ir.CastBitcast, from: ir.I32, to: ir.Double},
		{name: "bitcast vector width mismatch", op: ir.CastBitcast, from: ir.VectorOf(ir.I8, 3), to: ir.I32},
		{name: "vector length mismatch", op: ir.CastZExt, from: ir.VectorOf(ir.I8, 2), to: ir.VectorOf(ir.I16, 4)},
		{name: "vector to scalar", op: ir.CastZExt, from: ir.VectorOf(ir.I8, 2), to: ir.I32},
		{name: "fpext narrowing", op: ir.CastFPExt, from: ir.Double, to: ir.Float},
		{name: "bitcast pointer to int", op: ir.CastBitcast, from: ir.Ptr, to: ir.I64},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, err := lookupCast(tc.op, tc.from, tc.to)
			require.ErrorIs(t, err, ErrNoSuchCast)
		})
	}
}

func TestLookupCast_PtrToIntMaterializes(t *testing.T) {
	m := memory.NewModel(0)
	obj := m.NewStackObject(8)
	require.NoError(t, m.Store(value.Managed(obj), value.I32(42)))

	// The static type says ptr; the node picks the managed specialization
	// from the runtime kind.
	f := castTable[castKey{ir.CastPtrToInt, value.KindManagedPointer, value.KindI64}]

	addr := f(m, value.Managed(obj))
	require.NotZero(t, addr.Bits())
	require.Equal(t, addr, f(m, value.Managed(obj)))

	v, err := m.Load(value.Native(value.NativePointer(addr.Bits())), value.KindI32)
	require.NoError(t, err)
	require.Equal(t, value.I32(42), v)
}

func TestModuleEngine_Cast(t *testing.T) {
	b := newBuilder("widen", ir.I64, ir.I8)
	b.block()
	wide := emit(b, ir.NewCast(ir.CastSExt, b.param(0), ir.I64))
	b.ret(wide)

	e := instantiate(t, newModule(b.f), Options{})
	ret, err := mustFunction(t, e, "widen").Call(testCtx, value.I8(-4))
	require.NoError(t, err)
	require.Equal(t, value.I64(-4), ret)
}
