package bitzero

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/bitzero/api"
	"github.com/tetratelabs/bitzero/experimental"
	"github.com/tetratelabs/bitzero/experimental/logging"
	"github.com/tetratelabs/bitzero/internal/ir/bitcode"
	"github.com/tetratelabs/bitzero/internal/testing/bitcodeenc"
)

// testCtx is an arbitrary, non-default context. Non-nil also prevents linter errors.
var testCtx = context.WithValue(context.Background(), struct{}{}, "arbitrary")

func chars(s string) []uint64 {
	ret := make([]uint64, len(s))
	for i := range s {
		ret[i] = uint64(s[i])
	}
	return ret
}

// twiceBitcode encodes the module of this C file:
//
//	int ext(int);
//	int twice(int x) { int y = ext(x); return y + y; }
var twiceBitcode = func() []byte {
	w := bitcodeenc.NewWriter()
	w.EnterSubblock(bitcode.BlockIdentification, 3)
	w.EmitUnabbrevRecord(1, chars("bitzero")...)
	w.EndBlock()

	w.EnterSubblock(bitcode.BlockModule, 3)
	w.EmitUnabbrevRecord(1, 1) // version
	w.EnterSubblock(bitcode.BlockType, 4)
	w.EmitUnabbrevRecord(1, 2)
	w.EmitUnabbrevRecord(7, 32)       // 0: i32
	w.EmitUnabbrevRecord(21, 0, 0, 0) // 1: i32 (i32)
	w.EndBlock()
	w.EmitUnabbrevRecord(2, chars("x86_64-unknown-linux-gnu")...)
	w.EmitUnabbrevRecord(16, chars("twice.c")...)
	w.EmitUnabbrevRecord(8, 1, 0, 1, 0) // declare @ext
	w.EmitUnabbrevRecord(8, 1, 0, 0, 0) // define @twice

	w.EnterSubblock(bitcode.BlockFunction, 4)
	w.EmitUnabbrevRecord(1, 1)                  // declareblocks
	w.EmitUnabbrevRecord(34, 0, 1<<15, 1, 3, 1) // %3 = call i32 @ext(i32 %x)
	w.EmitUnabbrevRecord(2, 1, 1, 0)            // %4 = add %3, %3
	w.EmitUnabbrevRecord(10, 1)                 // ret %4
	w.EnterSubblock(bitcode.BlockValueSymtab, 4)
	w.EmitUnabbrevRecord(1, append([]uint64{2}, chars("x")...)...)
	w.EndBlock()
	w.EndBlock()

	w.EnterSubblock(bitcode.BlockValueSymtab, 4)
	w.EmitUnabbrevRecord(1, append([]uint64{0}, chars("ext")...)...)
	w.EmitUnabbrevRecord(1, append([]uint64{1}, chars("twice")...)...)
	w.EndBlock()
	w.EndBlock()
	return w.Bytes()
}()

// incrementExt implements ext as x + 1.
func incrementExt(_ context.Context, _ api.Module, params []api.Value) (api.Value, error) {
	return api.I32(params[0].I32() + 1), nil
}

func TestRuntime_CompileModule(t *testing.T) {
	r := NewRuntime(testCtx)

	compiled, err := r.CompileModule(testCtx, twiceBitcode)
	require.NoError(t, err)
	require.Equal(t, "twice.c", compiled.Name())
	require.Equal(t, "x86_64-unknown-linux-gnu", compiled.Triple())

	imported := compiled.ImportedFunctions()
	require.Equal(t, 1, len(imported))
	require.Equal(t, "ext", imported[0].Name())

	exported := compiled.ExportedFunctions()
	require.Equal(t, 1, len(exported))
	def := exported["twice"]
	require.NotNil(t, def)
	require.Equal(t, "twice", def.Name())
	require.Equal(t, []api.Kind{api.KindI32}, def.ParamKinds())
	require.Equal(t, api.KindI32, def.ResultKind())
	require.False(t, def.IsVarArg())

	t.Run("wrapped", func(t *testing.T) {
		compiled, err := r.CompileModule(testCtx, bitcodeenc.Wrap(twiceBitcode))
		require.NoError(t, err)
		require.Equal(t, "twice.c", compiled.Name())
	})
}

func TestRuntime_CompileModule_Errors(t *testing.T) {
	r := NewRuntime(testCtx)

	tests := []struct {
		name        string
		source      []byte
		expectedErr string
	}{
		{name: "nil", expectedErr: "invalid bitcode: empty source"},
		{name: "empty", source: []byte{}, expectedErr: "invalid bitcode: empty source"},
		{name: "not bitcode", source: []byte("\x00asm\x01\x00\x00\x00"), expectedErr: "invalid bitcode: "},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.CompileModule(testCtx, tc.source)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.expectedErr)
		})
	}

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(testCtx)
		cancel()
		_, err := r.CompileModule(ctx, twiceBitcode)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestRuntime_InstantiateModule(t *testing.T) {
	r := NewRuntime(testCtx)
	compiled, err := r.CompileModule(testCtx, twiceBitcode)
	require.NoError(t, err)

	mod, err := r.InstantiateModule(testCtx, compiled, NewModuleConfig().WithHostFunction("ext", incrementExt))
	require.NoError(t, err)
	require.Equal(t, "twice.c", mod.Name())
	require.Equal(t, "Module[twice.c]", mod.String())
	require.Equal(t, mod, r.Module("twice.c"))

	twice := mod.ExportedFunction("twice")
	require.NotNil(t, twice)
	require.Equal(t, "twice", twice.Definition().Name())

	ret, err := twice.Call(testCtx, api.I32(20))
	require.NoError(t, err)
	require.Equal(t, api.I32(42), ret)

	// Declarations and unknown names are not exported.
	require.Nil(t, mod.ExportedFunction("ext"))
	require.Nil(t, mod.ExportedFunction("missing"))

	t.Run("name conflict", func(t *testing.T) {
		_, err := r.InstantiateModule(testCtx, compiled, NewModuleConfig())
		require.EqualError(t, err, "module[twice.c] has already been instantiated")
	})

	t.Run("renamed instance has its own host functions", func(t *testing.T) {
		negate := func(_ context.Context, m api.Module, params []api.Value) (api.Value, error) {
			require.Equal(t, "other", m.Name())
			return api.I32(-params[0].I32()), nil
		}
		other, err := r.InstantiateModule(testCtx, compiled, NewModuleConfig().WithName("other").WithHostFunction("ext", negate))
		require.NoError(t, err)
		require.Equal(t, other, r.Module("other"))

		ret, err := other.ExportedFunction("twice").Call(testCtx, api.I32(3))
		require.NoError(t, err)
		require.Equal(t, api.I32(-6), ret)

		// The first instance is unaffected.
		ret, err = twice.Call(testCtx, api.I32(1))
		require.NoError(t, err)
		require.Equal(t, api.I32(4), ret)
	})

	require.Nil(t, r.Module("missing"))
}

func TestRuntime_InstantiateModule_HostFunctionErrors(t *testing.T) {
	r := NewRuntime(testCtx)
	compiled, err := r.CompileModule(testCtx, twiceBitcode)
	require.NoError(t, err)

	t.Run("unresolved", func(t *testing.T) {
		mod, err := r.InstantiateModule(testCtx, compiled, NewModuleConfig().WithName("unresolved"))
		require.NoError(t, err)

		_, err = mod.ExportedFunction("twice").Call(testCtx, api.I32(1))
		require.Error(t, err)
		require.Contains(t, err.Error(), "llvm runtime error: unresolved function")
	})

	t.Run("host error", func(t *testing.T) {
		expected := errors.New("ext failed")
		fail := func(context.Context, api.Module, []api.Value) (api.Value, error) {
			return api.I32(0), expected
		}
		mod, err := r.InstantiateModule(testCtx, compiled, NewModuleConfig().WithName("failing").WithHostFunction("ext", fail))
		require.NoError(t, err)

		_, err = mod.ExportedFunction("twice").Call(testCtx, api.I32(1))
		require.ErrorIs(t, err, expected)
		require.EqualError(t, err, "llvm runtime error: ext failed\nllvm backtrace:\n\t0: ext\n\t1: twice")
	})
}

func TestRuntime_Instantiate(t *testing.T) {
	r := NewRuntime(testCtx)
	compiled, err := r.CompileModule(testCtx, twiceBitcode)
	require.NoError(t, err)

	// Instantiate names the module after its source file, so only one
	// instance is possible.
	_, err = r.Instantiate(testCtx, twiceBitcode)
	require.NoError(t, err)
	_, err = r.Instantiate(testCtx, twiceBitcode)
	require.Error(t, err)

	// A nil context is replaced with the background one.
	mod, err := r.InstantiateModule(nil, compiled, NewModuleConfig().WithName("nil-config")) //nolint
	require.NoError(t, err)
	require.NotNil(t, mod)
}

func TestRuntime_Logger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := NewRuntimeWithConfig(testCtx, NewRuntimeConfig().WithLogger(logger))

	compiled, err := r.CompileModule(testCtx, twiceBitcode)
	require.NoError(t, err)
	_, err = r.InstantiateModule(testCtx, compiled, NewModuleConfig().WithHostFunction("ext", incrementExt))
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, `msg="decoded module"`)
	require.Contains(t, out, "source_filename=twice.c")
	require.Contains(t, out, "functions=2")
	require.Contains(t, out, `msg="instantiated module"`)
	require.Contains(t, out, "host_functions=1")
	require.Contains(t, out, "runtime=")
}

func TestRuntime_NodeListener(t *testing.T) {
	var out bytes.Buffer
	ctx := context.WithValue(testCtx, experimental.NodeListenerFactoryKey{},
		logging.NewScopedLoggingListenerFactory(&out, logging.LogScopeControl))

	r := NewRuntime(testCtx)
	compiled, err := r.CompileModule(testCtx, twiceBitcode)
	require.NoError(t, err)
	mod, err := r.InstantiateModule(ctx, compiled, NewModuleConfig().WithHostFunction("ext", incrementExt))
	require.NoError(t, err)

	ret, err := mod.ExportedFunction("twice").Call(testCtx, api.I32(1))
	require.NoError(t, err)
	require.Equal(t, api.I32(4), ret)
	require.Contains(t, out.String(), "twice: ret(i32 4) = i32 4\n")
}

func TestRuntimeConfig_CallStackCeiling(t *testing.T) {
	r := NewRuntimeWithConfig(testCtx, NewRuntimeConfig().WithCallStackCeiling(1))
	mod, err := r.InstantiateModule(testCtx, mustCompile(t, r), NewModuleConfig().WithHostFunction("ext", incrementExt))
	require.NoError(t, err)

	// twice calls ext, which is one frame too many.
	_, err = mod.ExportedFunction("twice").Call(testCtx, api.I32(1))
	require.Error(t, err)
	require.Contains(t, err.Error(), "callstack overflow")
}

func TestModule_Memory(t *testing.T) {
	r := NewRuntimeWithConfig(testCtx, NewRuntimeConfig().WithMemoryLimit(1<<20))
	mod, err := r.InstantiateModule(testCtx, mustCompile(t, r), NewModuleConfig())
	require.NoError(t, err)
	mem := mod.Memory()

	p, err := mem.Allocate(8, 8)
	require.NoError(t, err)
	require.Zero(t, uint64(p)%8)

	require.NoError(t, mem.Store(api.Native(p), api.I32(7)))
	v, err := mem.Load(api.Native(p), api.KindI32)
	require.NoError(t, err)
	require.Equal(t, api.I32(7), v)

	s, err := mem.Allocate(4, 1)
	require.NoError(t, err)
	for i, c := range []byte("hi\x00") {
		require.NoError(t, mem.Store(api.Native(s+api.NativePointer(i)), api.I8(int8(c))))
	}
	str, err := mem.ReadString(api.Native(s))
	require.NoError(t, err)
	require.Equal(t, "hi", str)

	require.NoError(t, mem.Copy(api.Native(p+4), api.Native(s), 2))
	v, err = mem.Load(api.Native(p+4), api.KindI16)
	require.NoError(t, err)
	require.Equal(t, api.I16('h'|'i'<<8), v)

	_, err = mem.Allocate(2<<20, 1)
	require.Error(t, err)
}

func mustCompile(t *testing.T, r Runtime) CompiledModule {
	compiled, err := r.CompileModule(testCtx, twiceBitcode)
	require.NoError(t, err)
	return compiled
}
