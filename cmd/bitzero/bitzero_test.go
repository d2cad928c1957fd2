package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/bitzero"
	"github.com/tetratelabs/bitzero/api"
	"github.com/tetratelabs/bitzero/internal/ir/bitcode"
	"github.com/tetratelabs/bitzero/internal/testing/bitcodeenc"
)

// testCtx is an arbitrary, non-default context. Non-nil also prevents linter errors.
var testCtx = context.WithValue(context.Background(), struct{}{}, "arbitrary")

// Binary operator codes of the bitcode binop record.
const (
	binopAdd  = 0
	binopSDiv = 4
)

// encodeBinary encodes a module defining "i32 @name(i32 %a, i32 %b)" which
// returns the binary operation of its parameters.
func encodeBinary(name string, opcode uint64) []byte {
	w := bitcodeenc.NewWriter()
	w.EnterSubblock(bitcode.BlockModule, 3)
	w.EmitUnabbrevRecord(1, 1)
	w.EnterSubblock(bitcode.BlockType, 4)
	w.EmitUnabbrevRecord(1, 2)
	w.EmitUnabbrevRecord(7, 32)          // 0: i32
	w.EmitUnabbrevRecord(21, 0, 0, 0, 0) // 1: i32 (i32, i32)
	w.EndBlock()
	w.EmitUnabbrevRecord(8, 1, 0, 0, 0)

	w.EnterSubblock(bitcode.BlockFunction, 4)
	w.EmitUnabbrevRecord(1, 1)
	w.EmitUnabbrevRecord(2, 2, 1, opcode)
	w.EmitUnabbrevRecord(10, 1)
	w.EndBlock()

	w.EnterSubblock(bitcode.BlockValueSymtab, 4)
	symbol := []uint64{0}
	for i := range name {
		symbol = append(symbol, uint64(name[i]))
	}
	w.EmitUnabbrevRecord(1, symbol...)
	w.EndBlock()
	w.EndBlock()
	return w.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func runMain(t *testing.T, args ...string) (exitCode int, stdOut, stdErr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	exitCode = doMain(args, &out, &errOut)
	return exitCode, out.String(), errOut.String()
}

func TestDoMain_Version(t *testing.T) {
	exitCode, stdOut, stdErr := runMain(t, "version")
	require.Equal(t, 0, exitCode)
	require.NotEmpty(t, stdOut)
	require.Empty(t, stdErr)
}

func TestDoMain_UnknownCommand(t *testing.T) {
	exitCode, _, stdErr := runMain(t, "compile")
	require.Equal(t, exitCommandError, exitCode)
	require.Contains(t, stdErr, `error: unknown command "compile"`)
}

func TestDoMain_Dump(t *testing.T) {
	w := bitcodeenc.NewWriter()
	w.EnterSubblock(bitcode.BlockIdentification, 3)
	w.EmitUnabbrevRecord(1, 'b', 'z')
	w.EmitUnabbrevRecord(2, 0)
	w.EndBlock()
	w.EnterSubblock(bitcode.BlockModule, 3)
	w.EmitUnabbrevRecord(1, 2)
	w.EnterSubblock(bitcode.BlockType, 4)
	w.EmitUnabbrevRecord(1, 1)
	w.EmitUnabbrevRecord(7, 32)
	w.EndBlock()
	w.EndBlock()
	path := writeFile(t, "dump.bc", w.Bytes())

	exitCode, stdOut, stdErr := runMain(t, "dump", path)
	require.Equal(t, 0, exitCode, stdErr)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "dump", []byte(stdOut))
}

func TestDoMain_Dump_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		exitCode, _, stdErr := runMain(t, "dump", filepath.Join(t.TempDir(), "missing.bc"))
		require.Equal(t, exitCommandError, exitCode)
		require.Contains(t, stdErr, "error: error reading bitcode: ")
	})

	t.Run("not bitcode", func(t *testing.T) {
		path := writeFile(t, "a.wasm", []byte("\x00asm\x01\x00\x00\x00"))
		exitCode, _, stdErr := runMain(t, "dump", path)
		require.Equal(t, exitCommandError, exitCode)
		require.Contains(t, stdErr, "error: invalid bitcode: ")
	})

	t.Run("no args", func(t *testing.T) {
		exitCode, _, _ := runMain(t, "dump")
		require.Equal(t, exitCommandError, exitCode)
	})
}

func TestDoMain_Run(t *testing.T) {
	add := writeFile(t, "add.bc", encodeBinary("add", binopAdd))

	tests := []struct {
		name             string
		args             []string
		expectedExitCode int
		expectedStdOut   string
		expectedStdErr   string
	}{
		{
			name:           "add",
			args:           []string{"run", add, "--func", "add", "20", "22"},
			expectedStdOut: "i32 42\n",
		},
		{
			name:           "prefixed arguments",
			args:           []string{"run", add, "--func", "add", "0x10", "0b111"},
			expectedStdOut: "i32 23\n",
		},
		{
			name:           "negative arguments",
			args:           []string{"run", add, "--func", "add", "--", "-1", "-2"},
			expectedStdOut: "i32 -3\n",
		},
		{
			name:             "missing function",
			args:             []string{"run", add},
			expectedExitCode: exitCommandError,
			expectedStdErr:   "error: function \"main\" not found in " + add + "\n",
		},
		{
			name:             "argument count",
			args:             []string{"run", add, "--func", "add", "1"},
			expectedExitCode: exitCommandError,
			expectedStdErr:   "error: invalid arguments: add takes 2 arguments, but 1 were given\n",
		},
		{
			name:             "argument syntax",
			args:             []string{"run", add, "--func", "add", "1", "one"},
			expectedExitCode: exitCommandError,
			expectedStdErr:   "error: invalid arguments: argument 1: strconv.ParseInt: parsing \"one\": invalid syntax\n",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			exitCode, stdOut, stdErr := runMain(t, tc.args...)
			require.Equal(t, tc.expectedExitCode, exitCode, stdErr)
			require.Equal(t, tc.expectedStdOut, stdOut)
			require.Equal(t, tc.expectedStdErr, stdErr)
		})
	}
}

func TestDoMain_Run_Fault(t *testing.T) {
	div := writeFile(t, "div.bc", encodeBinary("div", binopSDiv))

	exitCode, stdOut, stdErr := runMain(t, "run", div, "--func", "div", "1", "0")
	require.Equal(t, exitFailure, exitCode)
	require.Empty(t, stdOut)
	require.Equal(t, "error: error calling div: llvm runtime error: integer divide by zero\nllvm backtrace:\n\t0: div\n", stdErr)
}

func TestDoMain_Run_Trace(t *testing.T) {
	add := writeFile(t, "add.bc", encodeBinary("add", binopAdd))

	t.Run("flag", func(t *testing.T) {
		exitCode, stdOut, stdErr := runMain(t, "run", add, "--func", "add", "--trace", "20", "22")
		require.Equal(t, 0, exitCode, stdErr)
		require.Equal(t, "i32 42\n", stdOut)
		require.Contains(t, stdErr, "add: add(i32 20, i32 22) = i32 42\n")
		require.Contains(t, stdErr, "add: ret(i32 42) = i32 42\n")
	})

	t.Run("config scopes", func(t *testing.T) {
		config := writeFile(t, "bitzero.yaml", []byte("trace: true\nlog_scopes: [control]\n"))
		exitCode, _, stdErr := runMain(t, "run", add, "--config", config, "--func", "add", "20", "22")
		require.Equal(t, 0, exitCode, stdErr)
		require.Contains(t, stdErr, "add: ret(i32 42) = i32 42\n")
		require.NotContains(t, stdErr, "add(i32 20, i32 22)")
	})

	t.Run("flag overrides config", func(t *testing.T) {
		config := writeFile(t, "bitzero.yaml", []byte("trace: true\n"))
		exitCode, _, stdErr := runMain(t, "run", add, "--config", config, "--trace=false", "--func", "add", "20", "22")
		require.Equal(t, 0, exitCode, stdErr)
		require.Empty(t, stdErr)
	})
}

func TestDoMain_Run_Verbose(t *testing.T) {
	add := writeFile(t, "add.bc", encodeBinary("add", binopAdd))

	exitCode, _, stdErr := runMain(t, "run", add, "--func", "add", "-v", "1", "2")
	require.Equal(t, 0, exitCode, stdErr)
	require.Contains(t, stdErr, `msg="decoded module"`)
	require.Contains(t, stdErr, `msg="instantiated module"`)
}

func TestDoMain_Run_Config(t *testing.T) {
	add := writeFile(t, "add.bc", encodeBinary("add", binopAdd))

	t.Run("unknown key", func(t *testing.T) {
		config := writeFile(t, "bitzero.yaml", []byte("tracing: true\n"))
		exitCode, _, stdErr := runMain(t, "run", add, "--config", config, "--func", "add", "1", "2")
		require.Equal(t, exitCommandError, exitCode)
		require.Contains(t, stdErr, "error: invalid config: parsing "+config)
		require.Contains(t, stdErr, "field tracing not found")
	})

	t.Run("memory limit below one page", func(t *testing.T) {
		config := writeFile(t, "bitzero.yaml", []byte("memory_limit: 1\n"))
		exitCode, _, stdErr := runMain(t, "run", add, "--config", config, "--func", "add", "1", "2")
		require.Equal(t, exitCommandError, exitCode)
		require.Contains(t, stdErr, "error: error instantiating bitcode: ")
	})
}

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    *fileConfig
		expectedErr string
	}{
		{
			name:     "empty",
			input:    "",
			expected: &fileConfig{},
		},
		{
			name:  "all",
			input: "memory_limit: 1048576\ncall_stack_ceiling: 100\ntrace: true\nlog_scopes: [memory, control]\n",
			expected: &fileConfig{
				MemoryLimit:      1 << 20,
				CallStackCeiling: 100,
				Trace:            true,
				LogScopes:        []string{"memory", "control"},
			},
		},
		{
			name:        "negative ceiling",
			input:       "call_stack_ceiling: -1\n",
			expectedErr: "parsing test.yaml: call_stack_ceiling must not be negative",
		},
		{
			name:        "unknown scope",
			input:       "log_scopes: [io]\n",
			expectedErr: `parsing test.yaml: unknown log scope: "io"`,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			cfg := &fileConfig{}
			err := parseConfig([]byte(tc.input), "test.yaml", cfg)
			if tc.expectedErr != "" {
				require.EqualError(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, cfg)
		})
	}
}

func TestParseArg(t *testing.T) {
	tests := []struct {
		kind     api.Kind
		input    string
		expected api.Value
	}{
		{kind: api.KindI1, input: "true", expected: api.I1(true)},
		{kind: api.KindI8, input: "-1", expected: api.I8(-1)},
		{kind: api.KindI8, input: "0xff", expected: api.I8(-1)},
		{kind: api.KindI16, input: "0o777", expected: api.I16(0o777)},
		{kind: api.KindI32, input: "42", expected: api.I32(42)},
		{kind: api.KindI64, input: "-9000000000", expected: api.I64(-9000000000)},
		{kind: api.KindFloat, input: "1.5", expected: api.Float(1.5)},
		{kind: api.KindDouble, input: "-0.25", expected: api.Double(-0.25)},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.kind.String()+" "+tc.input, func(t *testing.T) {
			v, err := parseArg(tc.kind, tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.expected, v)
		})
	}

	_, err := parseArg(api.KindI8, "256")
	require.Error(t, err)
	_, err = parseArg(api.KindNativePointer, "0")
	require.ErrorIs(t, err, errUnsupportedParam)
}

func TestHostFunctions(t *testing.T) {
	r := bitzero.NewRuntime(testCtx)
	mod, err := r.Instantiate(testCtx, encodeBinary("add", binopAdd))
	require.NoError(t, err)

	mem := mod.Memory()
	p, err := mem.Allocate(6, 1)
	require.NoError(t, err)
	for i, c := range []byte("hello\x00") {
		require.NoError(t, mem.Store(api.Native(p+api.NativePointer(i)), api.I8(int8(c))))
	}

	var out bytes.Buffer
	ret, err := puts(&out)(testCtx, mod, []api.Value{api.Native(p)})
	require.NoError(t, err)
	require.Equal(t, api.I32(6), ret)

	ret, err = putchar(&out)(testCtx, mod, []api.Value{api.I32('!' + 0x100)})
	require.NoError(t, err)
	require.Equal(t, api.I32('!'), ret)
	require.Equal(t, "hello\n!", out.String())

	_, err = puts(&out)(testCtx, mod, []api.Value{api.Native(0)})
	require.Error(t, err)
}
