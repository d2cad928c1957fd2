package interpreter

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/bitzero/api"
	"github.com/tetratelabs/bitzero/experimental"
	"github.com/tetratelabs/bitzero/experimental/logging"
	"github.com/tetratelabs/bitzero/internal/ir"
	"github.com/tetratelabs/bitzero/internal/memory"
	"github.com/tetratelabs/bitzero/internal/value"
)

type recordedNode struct {
	tag     api.Tag
	display string
	slots   []string
}

type recorder struct {
	compiled []recordedNode
	executed []string
}

func (r *recorder) NewNodeListener(def api.NodeDefinition) experimental.NodeListener {
	r.compiled = append(r.compiled, recordedNode{tag: def.Tag(), display: def.String(), slots: def.Slots()})
	return experimental.NodeListenerFunc(func(_ context.Context, def api.NodeDefinition, _ []api.Value) {
		r.executed = append(r.executed, def.String())
	})
}

func withListeners(f experimental.NodeListenerFactory) context.Context {
	return context.WithValue(testCtx, experimental.NodeListenerFactoryKey{}, f)
}

func TestModuleEngine_NodeListener(t *testing.T) {
	b := newBuilder("inc", ir.I32, ir.I32)
	b.f.Params[0].Name = "x"
	b.block()
	sum := b.binary(ir.OpAdd, ir.FlagNSW, b.param(0), intConst(ir.I32, 1))
	sum.SetName("y")
	b.ret(sum)

	r := &recorder{}
	e, err := NewModuleEngine(withListeners(r), newModule(b.f), memory.NewModel(0), Options{Liveness: LastUse{}})
	require.NoError(t, err)

	require.Equal(t, []recordedNode{
		{tag: api.TagBlock, display: "bb0"},
		{tag: api.TagSSAWrite, display: "params", slots: []string{"%x"}},
		{tag: api.TagAdd, display: "add nsw", slots: []string{"%y"}},
		{tag: api.TagSSALifetimeEnd, display: "clear", slots: []string{"%x"}},
		{tag: api.TagRet, display: "ret"},
	}, r.compiled)

	ret, err := mustFunction(t, e, "inc").Call(testCtx, value.I32(1))
	require.NoError(t, err)
	require.Equal(t, value.I32(2), ret)
	require.Equal(t, []string{"bb0", "params", "add nsw", "clear", "ret"}, r.executed)
}

func TestModuleEngine_NodeListener_Skipped(t *testing.T) {
	b := newBuilder("inc", ir.I32, ir.I32)
	b.block()
	b.ret(b.binary(ir.OpAdd, 0, b.param(0), intConst(ir.I32, 1)))

	var seen []api.Tag
	factory := experimental.NodeListenerFactoryFunc(func(def api.NodeDefinition) experimental.NodeListener {
		seen = append(seen, def.Tag())
		return nil
	})
	e, err := NewModuleEngine(withListeners(factory), newModule(b.f), memory.NewModel(0), Options{})
	require.NoError(t, err)
	require.Equal(t, []api.Tag{api.TagBlock, api.TagSSAWrite, api.TagAdd, api.TagRet}, seen)

	ret, err := mustFunction(t, e, "inc").Call(testCtx, value.I32(1))
	require.NoError(t, err)
	require.Equal(t, value.I32(2), ret)
}

func TestModuleEngine_LoggingListener(t *testing.T) {
	callee := newBuilder("f", ir.I32, ir.I32)
	callee.block()
	callee.ret(callee.binary(ir.OpAdd, 0, callee.param(0), intConst(ir.I32, 1)))

	b := newBuilder("main", ir.I32)
	b.block()
	b.ret(emit(b, ir.NewCall(callee.f.Sig, callee.f, []ir.Value{intConst(ir.I32, 7)})))

	var out bytes.Buffer
	ctx := withListeners(logging.NewLoggingListenerFactory(&out))
	e, err := NewModuleEngine(ctx, newModule(b.f, callee.f), memory.NewModel(0), Options{})
	require.NoError(t, err)

	ret, err := mustFunction(t, e, "main").Call(testCtx)
	require.NoError(t, err)
	require.Equal(t, value.I32(8), ret)
	require.Equal(t, `main: bb0()
--> main: call @f(i32 7)
	f: bb0()
	f: params(i32 7)
	f: add(i32 7, i32 1) = i32 8
	f: ret(i32 8) = i32 8
<-- main: call @f = i32 8
main: ret(i32 8) = i32 8
`, out.String())
}

func TestModuleEngine_LoggingListener_Fault(t *testing.T) {
	b := newBuilder("div", ir.I32, ir.I32)
	b.block()
	b.ret(b.binary(ir.OpSDiv, 0, intConst(ir.I32, 1), b.param(0)))

	var out bytes.Buffer
	ctx := withListeners(logging.NewScopedLoggingListenerFactory(&out, logging.LogScopeArithmetic))
	e, err := NewModuleEngine(ctx, newModule(b.f), memory.NewModel(0), Options{})
	require.NoError(t, err)

	_, err = mustFunction(t, e, "div").Call(testCtx, value.I32(0))
	require.ErrorIs(t, err, ErrIntegerDivideByZero)
	require.Equal(t, "div: sdiv(i32 1, i32 0) error: integer divide by zero\n", out.String())
}
