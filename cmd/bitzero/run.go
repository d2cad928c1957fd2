package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tetratelabs/bitzero"
	"github.com/tetratelabs/bitzero/api"
	"github.com/tetratelabs/bitzero/experimental"
	"github.com/tetratelabs/bitzero/experimental/logging"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	*rootOptions
	function string
	trace    bool
}

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <file.bc> [args...]",
		Short: "Call a function of a bitcode file",
		Long: `Decode and instantiate a bitcode file, then call one of its functions with
the given arguments and print the result.

Arguments are parsed according to the parameter types of the function:
integers accept Go literal prefixes like 0x, i1 accepts true and false.
Negative numbers go after a "--" separator. The module may call puts and
putchar, which write to stdout.

Example:
  bitzero run fib.bc --func fib 10
  bitzero run abs.bc --func abs -- -3
  bitzero run hello.bc --trace`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModule(cmd, opts, args[0], args[1:])
		},
	}
	cmd.Flags().StringVar(&opts.function, "func", "main", "name of the function to call")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "log every executed node to stderr")
	return cmd
}

func runModule(cmd *cobra.Command, opts *runOptions, path string, args []string) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return wrapExitError(exitCommandError, "invalid config", err)
	}
	if cmd.Flags().Changed("trace") {
		cfg.Trace = opts.trace
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return wrapExitError(exitCommandError, "error reading bitcode", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Trace {
		scopes, err := cfg.logScopes()
		if err != nil {
			return wrapExitError(exitCommandError, "invalid config", err)
		}
		ctx = context.WithValue(ctx, experimental.NodeListenerFactoryKey{},
			logging.NewScopedLoggingListenerFactory(stringWriter(cmd.ErrOrStderr()), scopes))
	}

	r := bitzero.NewRuntimeWithConfig(ctx, cfg.runtimeConfig().WithLogger(opts.logger(cmd)))
	compiled, err := r.CompileModule(ctx, source)
	if err != nil {
		return wrapExitError(exitCommandError, "error compiling bitcode", err)
	}

	stdout := cmd.OutOrStdout()
	mConfig := bitzero.NewModuleConfig().
		WithName(path).
		WithHostFunction("puts", puts(stdout)).
		WithHostFunction("putchar", putchar(stdout))
	mod, err := r.InstantiateModule(ctx, compiled, mConfig)
	if err != nil {
		return wrapExitError(exitCommandError, "error instantiating bitcode", err)
	}

	fn := mod.ExportedFunction(opts.function)
	if fn == nil {
		return newExitError(exitCommandError, fmt.Sprintf("function %q not found in %s", opts.function, path))
	}
	params, err := parseArgs(fn.Definition(), args)
	if err != nil {
		return wrapExitError(exitCommandError, "invalid arguments", err)
	}

	ret, err := fn.Call(ctx, params...)
	if err != nil {
		return wrapExitError(exitFailure, "error calling "+opts.function, err)
	}
	if ret.Kind() != api.KindVoid {
		fmt.Fprintln(stdout, ret)
	}
	return nil
}

// parseArgs converts command line arguments to the parameter kinds of def.
func parseArgs(def api.FunctionDefinition, args []string) ([]api.Value, error) {
	kinds := def.ParamKinds()
	if len(args) != len(kinds) {
		return nil, fmt.Errorf("%s takes %d arguments, but %d were given", def.Name(), len(kinds), len(args))
	}
	ret := make([]api.Value, len(args))
	for i, arg := range args {
		v, err := parseArg(kinds[i], arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		ret[i] = v
	}
	return ret, nil
}

var errUnsupportedParam = errors.New("unsupported parameter kind")

func parseArg(kind api.Kind, s string) (api.Value, error) {
	switch kind {
	case api.KindI1:
		b, err := strconv.ParseBool(s)
		return api.I1(b), err
	case api.KindI8, api.KindI16, api.KindI32, api.KindI64:
		bits := int(kind.ByteSize()) * 8
		v, err := strconv.ParseInt(s, 0, bits)
		if err != nil {
			// Allow unsigned spellings of the same bits, e.g. 0xff for i8.
			u, uerr := strconv.ParseUint(s, 0, bits)
			if uerr != nil {
				return api.Value{}, err
			}
			v = int64(u)
		}
		switch kind {
		case api.KindI8:
			return api.I8(int8(v)), nil
		case api.KindI16:
			return api.I16(int16(v)), nil
		case api.KindI32:
			return api.I32(int32(v)), nil
		}
		return api.I64(v), nil
	case api.KindFloat:
		f, err := strconv.ParseFloat(s, 32)
		return api.Float(float32(f)), err
	case api.KindDouble:
		f, err := strconv.ParseFloat(s, 64)
		return api.Double(f), err
	}
	return api.Value{}, fmt.Errorf("%w: %s", errUnsupportedParam, kind)
}

// stringWriter adds io.StringWriter to writers that lack it, as required by
// logging.Writer.
func stringWriter(w io.Writer) logging.Writer {
	if lw, ok := w.(logging.Writer); ok {
		return lw
	}
	return writeStringer{w}
}

type writeStringer struct{ io.Writer }

func (w writeStringer) WriteString(s string) (int, error) { return w.Write([]byte(s)) }
