package interpreter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/bitzero/internal/ir"
	"github.com/tetratelabs/bitzero/internal/memory"
	"github.com/tetratelabs/bitzero/internal/value"
)

func TestModuleEngine_AllocaLoadStore(t *testing.T) {
	b := newBuilder("inc", ir.I32, ir.I32)
	b.block()
	slot := emit(b, ir.NewAlloca(ir.I32, intConst(ir.I32, 1), 4))
	emit(b, ir.NewStore(slot, b.param(0), 4))
	loaded := emit(b, ir.NewLoad(ir.I32, slot, 4))
	b.ret(b.binary(ir.OpAdd, 0, loaded, intConst(ir.I32, 1)))

	ret, err := mustFunction(t, instantiate(t, newModule(b.f), Options{}), "inc").Call(testCtx, value.I32(41))
	require.NoError(t, err)
	require.Equal(t, value.I32(42), ret)
}

func TestModuleEngine_ManagedPointerInMemory(t *testing.T) {
	// A managed pointer stored to memory comes back as a handle that still
	// reaches the same object.
	b := newBuilder("roundtrip", ir.I32)
	b.block()
	outer := emit(b, ir.NewAlloca(ir.Ptr, intConst(ir.I32, 1), 8))
	inner := emit(b, ir.NewAlloca(ir.I32, intConst(ir.I32, 1), 4))
	emit(b, ir.NewStore(outer, inner, 8))
	handle := emit(b, ir.NewLoad(ir.Ptr, outer, 8))
	emit(b, ir.NewStore(handle, intConst(ir.I32, 7), 4))
	b.ret(emit(b, ir.NewLoad(ir.I32, inner, 4)))

	ret, err := mustFunction(t, instantiate(t, newModule(b.f), Options{}), "roundtrip").Call(testCtx)
	require.NoError(t, err)
	require.Equal(t, value.I32(7), ret)
}

func TestModuleEngine_GlobalsPersist(t *testing.T) {
	b := newBuilder("next", ir.I32)
	m := newModule(b.f)
	counter := addGlobal(m, "counter", ir.I32, intConst(ir.I32, 5))

	b.block()
	old := emit(b, ir.NewLoad(ir.I32, counter, 4))
	incremented := b.binary(ir.OpAdd, 0, old, intConst(ir.I32, 1))
	emit(b, ir.NewStore(counter, incremented, 4))
	b.ret(incremented)

	e := instantiate(t, m, Options{})
	f := mustFunction(t, e, "next")
	for _, expected := range []int32{6, 7} {
		ret, err := f.Call(testCtx)
		require.NoError(t, err)
		require.Equal(t, value.I32(expected), ret)
	}

	addr, ok := e.GlobalAddress("counter")
	require.True(t, ok)
	v, err := e.Memory().Load(value.Native(addr), value.KindI32)
	require.NoError(t, err)
	require.Equal(t, value.I32(7), v)
}

func TestModuleEngine_Aggregates(t *testing.T) {
	pairType := ir.StructOf(ir.I32, ir.I64)

	b := newBuilder("sum", ir.I64)
	m := newModule(b.f)
	pair := addGlobal(m, "pair", pairType, &ir.AggregateConst{
		Typ:   pairType,
		Elems: []ir.Value{intConst(ir.I32, 3), intConst(ir.I64, 4)},
	})

	b.block()
	agg := emit(b, ir.NewLoad(pairType, pair, 8))
	first, err := ir.NewExtractValue(agg, []uint64{0})
	require.NoError(t, err)
	emit(b, first)
	second, err := ir.NewExtractValue(agg, []uint64{1})
	require.NoError(t, err)
	emit(b, second)
	wide := emit(b, ir.NewCast(ir.CastSExt, first, ir.I64))
	sum := b.binary(ir.OpAdd, 0, wide, second)
	updated, err := ir.NewInsertValue(agg, sum, []uint64{1})
	require.NoError(t, err)
	emit(b, updated)
	emit(b, ir.NewStore(pair, updated, 8))
	field := emit(b, ir.NewGEP(pairType, pair, []ir.Value{intConst(ir.I32, 0), intConst(ir.I32, 1)}, true))
	stored := emit(b, ir.NewLoad(ir.I64, field, 8))
	b.ret(b.binary(ir.OpAdd, 0, stored, second))

	e := instantiate(t, m, Options{})
	ret, err := mustFunction(t, e, "sum").Call(testCtx)
	require.NoError(t, err)
	require.Equal(t, value.I64(11), ret)

	// The first field is untouched by the store of the updated pair.
	addr, _ := e.GlobalAddress("pair")
	v, err := e.Memory().Load(value.Native(addr), value.KindI32)
	require.NoError(t, err)
	require.Equal(t, value.I32(3), v)
}

func TestModuleEngine_GEPIntoArray(t *testing.T) {
	tableType := ir.ArrayOf(ir.I32, 4)

	b := newBuilder("at", ir.I32, ir.I64)
	m := newModule(b.f)
	table := addGlobal(m, "table", tableType, &ir.DataConst{Typ: tableType, Elems: []uint64{10, 20, 30, 40}})

	b.block()
	elem := emit(b, ir.NewGEP(tableType, table, []ir.Value{intConst(ir.I64, 0), b.param(0)}, true))
	b.ret(emit(b, ir.NewLoad(ir.I32, elem, 4)))

	f := mustFunction(t, instantiate(t, m, Options{}), "at")
	for i, expected := range []int32{10, 20, 30, 40} {
		ret, err := f.Call(testCtx, value.I64(int64(i)))
		require.NoError(t, err)
		require.Equal(t, value.I32(expected), ret)
	}
}

func TestModuleEngine_Memcpy(t *testing.T) {
	msgType := ir.ArrayOf(ir.I8, 3)
	memcpy := declare("llvm.memcpy.p0.p0.i64", ir.Void, ir.Ptr, ir.Ptr, ir.I64, ir.I1)

	b := newBuilder("third", ir.I8)
	m := newModule(b.f, memcpy)
	msg := addGlobal(m, "msg", msgType, &ir.DataConst{Typ: msgType, Elems: []uint64{'a', 'b', 'c'}})

	b.block()
	buf := emit(b, ir.NewAlloca(msgType, intConst(ir.I32, 1), 1))
	emit(b, ir.NewCall(memcpy.Sig, memcpy, []ir.Value{buf, msg, intConst(ir.I64, 3), intConst(ir.I1, 0)}))
	last := emit(b, ir.NewGEP(ir.I8, buf, []ir.Value{intConst(ir.I64, 2)}, true))
	b.ret(emit(b, ir.NewLoad(ir.I8, last, 1)))

	ret, err := mustFunction(t, instantiate(t, m, Options{}), "third").Call(testCtx)
	require.NoError(t, err)
	require.Equal(t, value.I8('c'), ret)
}

func TestModuleEngine_NullDereference(t *testing.T) {
	b := newBuilder("deref", ir.I32)
	b.block()
	b.ret(emit(b, ir.NewLoad(ir.I32, &ir.NullConst{Typ: ir.Ptr}, 4)))

	_, err := mustFunction(t, instantiate(t, newModule(b.f), Options{}), "deref").Call(testCtx)
	require.ErrorIs(t, err, memory.ErrNullPointer)
}

func TestModuleEngine_AllocaTooLarge(t *testing.T) {
	b := newBuilder("huge", ir.Ptr)
	b.block()
	b.ret(emit(b, ir.NewAlloca(ir.I64, intConst(ir.I64, -1), 8)))

	_, err := mustFunction(t, instantiate(t, newModule(b.f), Options{}), "huge").Call(testCtx)
	require.ErrorIs(t, err, memory.ErrOutOfMemory)
}
