package interpreter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/bitzero/internal/ir"
	"github.com/tetratelabs/bitzero/internal/memory"
)

// testCtx is an arbitrary, non-default context. Non-nil also prevents linter errors.
var testCtx = context.WithValue(context.Background(), struct{}{}, "arbitrary")

// builder assembles a function the way the bitcode decoder numbers it:
// parameters first, then instruction results.
type builder struct {
	f    *ir.Function
	next int
	blk  *ir.Block
}

func newBuilder(name string, ret *ir.Type, params ...*ir.Type) *builder {
	f := ir.NewFunction(name, ir.FuncOf(ret, params...))
	return &builder{f: f, next: len(f.Params)}
}

func (b *builder) param(i int) ir.Value { return b.f.Params[i] }

// block starts a new block and returns its index.
func (b *builder) block() int {
	b.blk = &ir.Block{Index: len(b.f.Blocks)}
	b.f.Blocks = append(b.f.Blocks, b.blk)
	return b.blk.Index
}

// at continues appending to an existing block.
func (b *builder) at(block int) { b.blk = b.f.Blocks[block] }

func emit[T ir.Instruction](b *builder, inst T) T {
	if t := inst.Type(); t != nil && t.Kind != ir.TypeVoid {
		inst.SetID(b.next)
		b.next++
	}
	b.blk.Insts = append(b.blk.Insts, inst)
	return inst
}

func (b *builder) binary(op ir.ArithmeticOperator, flags ir.Flags, x, y ir.Value) *ir.BinaryInst {
	inst, err := ir.NewBinaryOperation(op, flags, x, y)
	if err != nil {
		panic(err)
	}
	return emit(b, inst)
}

func (b *builder) ret(x ir.Value) { emit(b, ir.NewRet(x)) }

func declare(name string, ret *ir.Type, params ...*ir.Type) *ir.Function {
	f := ir.NewFunction(name, ir.FuncOf(ret, params...))
	f.Declaration = true
	return f
}

func newModule(functions ...*ir.Function) *ir.Module {
	m := &ir.Module{}
	for i, f := range functions {
		f.Index = i
		m.Functions = append(m.Functions, f)
	}
	return m
}

func addGlobal(m *ir.Module, name string, t *ir.Type, init ir.Value) *ir.Global {
	g := &ir.Global{Name: name, ValueType: t, Init: init, Index: len(m.Globals)}
	m.Globals = append(m.Globals, g)
	return g
}

func instantiate(t *testing.T, m *ir.Module, opts Options) *ModuleEngine {
	e, err := NewModuleEngine(testCtx, m, memory.NewModel(0), opts)
	require.NoError(t, err)
	return e
}

func mustFunction(t *testing.T, e *ModuleEngine, name string) *Function {
	f, ok := e.Function(name)
	require.True(t, ok, name)
	return f
}

func intConst(t *ir.Type, v int64) *ir.IntConst {
	kind, _ := t.ValueKind()
	return &ir.IntConst{Typ: t, Bits: kind.Mask(uint64(v))}
}
