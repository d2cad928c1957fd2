package interpreter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/bitzero/internal/ir"
	"github.com/tetratelabs/bitzero/internal/memory"
	"github.com/tetratelabs/bitzero/internal/value"
)

func TestResolveCompare(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name     string
		pred     ir.Predicate
		x, y     value.Value
		expected bool
	}{
		{name: "eq", pred: ir.ICmpEQ, x: value.I32(3), y: value.I32(3), expected: true},
		{name: "ne", pred: ir.ICmpNE, x: value.I32(3), y: value.I32(3)},
		{name: "slt negative", pred: ir.ICmpSLT, x: value.I8(-1), y: value.I8(1), expected: true},
		{name: "ult negative", pred: ir.ICmpULT, x: value.I8(-1), y: value.I8(1)},
		{name: "sge", pred: ir.ICmpSGE, x: value.I64(math.MinInt64), y: value.I64(0)},
		{name: "uge", pred: ir.ICmpUGE, x: value.I64(math.MinInt64), y: value.I64(0), expected: true},
		{name: "olt", pred: ir.FCmpOLT, x: value.Double(1), y: value.Double(2), expected: true},
		{name: "olt nan", pred: ir.FCmpOLT, x: value.Double(nan), y: value.Double(2)},
		{name: "ult nan", pred: ir.FCmpULT, x: value.Double(nan), y: value.Double(2), expected: true},
		{name: "oeq nan", pred: ir.FCmpOEQ, x: value.Double(nan), y: value.Double(nan)},
		{name: "une nan", pred: ir.FCmpUNE, x: value.Double(nan), y: value.Double(nan), expected: true},
		{name: "one", pred: ir.FCmpONE, x: value.Float(1), y: value.Float(2), expected: true},
		{name: "one nan", pred: ir.FCmpONE, x: value.Float(float32(nan)), y: value.Float(2)},
		{name: "ord", pred: ir.FCmpORD, x: value.Float(1), y: value.Float(2), expected: true},
		{name: "uno", pred: ir.FCmpUNO, x: value.Float(1), y: value.Float(float32(nan)), expected: true},
		{name: "true", pred: ir.FCmpTrue, x: value.Double(nan), y: value.Double(nan), expected: true},
		{name: "false", pred: ir.FCmpFalse, x: value.Double(1), y: value.Double(1)},
		{name: "native pointers", pred: ir.ICmpULT, x: value.Native(0x10), y: value.Native(0x20), expected: true},
	}

	m := memory.NewModel(0)
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			actual := resolveCompare(tc.pred, tc.x)(m, tc.x, tc.y)
			require.Equal(t, value.I1(tc.expected), actual)
		})
	}
}

func TestResolveCompare_Vector(t *testing.T) {
	x := value.Vec(value.NewVector(value.KindI32, 1, 5, 3))
	y := value.Vec(value.NewVector(value.KindI32, 2, 4, 3))

	actual := resolveCompare(ir.ICmpSLE, x)(memory.NewModel(0), x, y)
	require.True(t, value.NewVector(value.KindI1, 1, 0, 1).Equal(actual.Vector()), actual.String())
}

func TestComparePointers(t *testing.T) {
	m := memory.NewModel(0)
	a, b := m.NewStackObject(16), m.NewStackObject(16)

	t.Run("same owner", func(t *testing.T) {
		x, y := value.Managed(a), value.Managed(a.Add(8))
		require.True(t, comparePointers(m, ir.ICmpULT, x, y))
		require.False(t, comparePointers(m, ir.ICmpEQ, x, y))
		require.True(t, comparePointers(m, ir.ICmpEQ, y, value.Managed(a.Add(8))))
	})

	t.Run("different owners", func(t *testing.T) {
		x, y := value.Managed(a), value.Managed(b)
		require.False(t, comparePointers(m, ir.ICmpEQ, x, y))
		require.True(t, comparePointers(m, ir.ICmpNE, x, y))
		require.False(t, comparePointers(m, ir.ICmpEQ, x, value.Native(value.NullPointer)))
		require.Panics(t, func() { comparePointers(m, ir.ICmpULT, x, y) })
	})

	t.Run("handle", func(t *testing.T) {
		h, err := m.Handles.Export(b)
		require.NoError(t, err)
		require.True(t, comparePointers(m, ir.ICmpEQ, value.Native(h), value.Managed(b)))
		require.False(t, comparePointers(m, ir.ICmpEQ, value.Native(h), value.Managed(a)))
	})
}

func TestModuleEngine_Select(t *testing.T) {
	b := newBuilder("max", ir.I32, ir.I32, ir.I32)
	b.block()
	gt := emit(b, ir.NewCmp(ir.ICmpSGT, b.param(0), b.param(1)))
	larger := emit(b, ir.NewSelect(gt, b.param(0), b.param(1)))
	b.ret(larger)

	f := mustFunction(t, instantiate(t, newModule(b.f), Options{}), "max")
	for _, tc := range []struct{ x, y, expected int32 }{{1, 2, 2}, {-1, -5, -1}, {7, 7, 7}} {
		ret, err := f.Call(testCtx, value.I32(tc.x), value.I32(tc.y))
		require.NoError(t, err)
		require.Equal(t, value.I32(tc.expected), ret)
	}
}
