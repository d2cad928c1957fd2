package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/bitzero/internal/ir"
	"github.com/tetratelabs/bitzero/internal/memory"
	"github.com/tetratelabs/bitzero/internal/value"
)

func TestResolveLanes(t *testing.T) {
	vec := value.NewVector(value.KindI16, 1, 2, 3)
	s := resolveLanes(value.KindI16)
	require.Equal(t, value.I16(2), s.extract(vec, 1))

	updated := s.insert(vec, 1, value.I16(-1))
	require.Equal(t, value.I16(-1), updated.Lane(1))
	// Vectors are values: the original is unchanged.
	require.Equal(t, value.I16(2), vec.Lane(1))

	ptrs := value.NewPointerVector(value.Native(0x10), value.Native(0x20))
	s = resolveLanes(ptrs.Elem())
	require.Equal(t, value.Native(0x20), s.extract(ptrs, 1))
}

func TestLaneIndex(t *testing.T) {
	vec := value.NewVector(value.KindI8, 1, 2)
	require.Equal(t, 1, laneIndex(vec, value.I32(1)))
	require.Panics(t, func() { laneIndex(vec, value.I32(2)) })
	require.Panics(t, func() { laneIndex(vec, value.I32(-1)) })
}

func TestModuleEngine_ExtractElement(t *testing.T) {
	vecType := ir.VectorOf(ir.I32, 4)

	b := newBuilder("lane", ir.I32, ir.I32)
	b.block()
	vec := &ir.DataConst{Typ: vecType, Elems: []uint64{10, 20, 30, 40}}
	doubled := b.binary(ir.OpMul, 0, vec, &ir.DataConst{Typ: vecType, Elems: []uint64{2, 2, 2, 2}})
	replaced := emit(b, ir.NewInsertElement(doubled, intConst(ir.I32, 7), intConst(ir.I32, 0)))
	b.ret(emit(b, ir.NewExtractElement(replaced, b.param(0))))

	f := mustFunction(t, instantiate(t, newModule(b.f), Options{}), "lane")
	for i, expected := range []int32{7, 40, 60, 80} {
		ret, err := f.Call(testCtx, value.I32(int32(i)))
		require.NoError(t, err)
		require.Equal(t, value.I32(expected), ret)
	}

	_, err := f.Call(testCtx, value.I32(4))
	require.ErrorIs(t, err, memory.ErrOutOfBounds)
}
