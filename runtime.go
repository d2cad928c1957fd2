package bitzero

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tetratelabs/bitzero/api"
	"github.com/tetratelabs/bitzero/internal/engine/interpreter"
	"github.com/tetratelabs/bitzero/internal/ir"
	"github.com/tetratelabs/bitzero/internal/ir/bitcode"
	"github.com/tetratelabs/bitzero/internal/memory"
)

// Runtime allows embedding of LLVM bitcode modules.
//
// The below is an example of basic initialization:
//
//	ctx := context.Background()
//	r := bitzero.NewRuntime(ctx)
//
//	mod, _ := r.Instantiate(ctx, bc)
//	ret, _ := mod.ExportedFunction("main").Call(ctx)
//
// Note: Each module instance has its own native memory. Modules never share
// globals, even when compiled from the same bitcode.
type Runtime interface {
	// Instantiate instantiates a module from the bitcode and returns it, or
	// an error if the bitcode was invalid.
	//
	// Note: This is a convenience utility that chains CompileModule with
	// InstantiateModule. To instantiate the same source multiple times, use
	// CompileModule as InstantiateModule avoids redundant decoding.
	Instantiate(ctx context.Context, source []byte) (api.Module, error)

	// CompileModule decodes the bitcode, either raw or in the wrapper
	// header, or returns an error if it was invalid.
	CompileModule(ctx context.Context, source []byte) (CompiledModule, error)

	// InstantiateModule lays out the globals of the compiled module in a new
	// native memory and compiles each defined function.
	//
	// A node listener factory found in ctx under
	// experimental.NodeListenerFactoryKey instruments the compiled
	// functions of this instance.
	InstantiateModule(ctx context.Context, compiled CompiledModule, config *ModuleConfig) (api.Module, error)

	// Module returns an instantiated module with the given name, or nil if
	// there is none.
	Module(moduleName string) api.Module
}

// NewRuntime returns a runtime with a configuration assigned by
// NewRuntimeConfig.
func NewRuntime(ctx context.Context) Runtime {
	return NewRuntimeWithConfig(ctx, NewRuntimeConfig())
}

// NewRuntimeWithConfig returns a runtime with the given configuration.
func NewRuntimeWithConfig(_ context.Context, rConfig *RuntimeConfig) Runtime {
	config := rConfig.clone()
	id := uuid.Must(uuid.NewV7())
	return &runtime{
		config:  config,
		logger:  config.logger.With(slog.String("runtime", id.String())),
		modules: map[string]*moduleInstance{},
	}
}

// runtime allows decoupling of public interfaces from internal representation.
type runtime struct {
	config *RuntimeConfig
	logger *slog.Logger

	mux     sync.RWMutex
	modules map[string]*moduleInstance
}

// Module implements Runtime.Module.
func (r *runtime) Module(moduleName string) api.Module {
	r.mux.RLock()
	defer r.mux.RUnlock()
	if m, ok := r.modules[moduleName]; ok {
		return m
	}
	return nil
}

// CompileModule implements Runtime.CompileModule.
func (r *runtime) CompileModule(ctx context.Context, source []byte) (CompiledModule, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(source) == 0 {
		return nil, errors.New("invalid bitcode: empty source")
	}

	start := time.Now()
	m, err := bitcode.DecodeModule(source)
	if err != nil {
		return nil, fmt.Errorf("invalid bitcode: %w", err)
	}

	r.logger.DebugContext(ctx, "decoded module",
		slog.String("source_filename", m.SourceFilename),
		slog.String("triple", m.Triple),
		slog.Int("functions", len(m.Functions)),
		slog.Int("globals", len(m.Globals)),
		slog.Int("bytes", len(source)),
		slog.Duration("elapsed", time.Since(start)))
	return newCompiledModule(m), nil
}

// Instantiate implements Runtime.Instantiate.
func (r *runtime) Instantiate(ctx context.Context, source []byte) (api.Module, error) {
	compiled, err := r.CompileModule(ctx, source)
	if err != nil {
		return nil, err
	}
	return r.InstantiateModule(ctx, compiled, NewModuleConfig())
}

// InstantiateModule implements Runtime.InstantiateModule.
func (r *runtime) InstantiateModule(ctx context.Context, compiled CompiledModule, mConfig *ModuleConfig) (api.Module, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	code, ok := compiled.(*compiledModule)
	if !ok {
		return nil, fmt.Errorf("unsupported compiled module %T", compiled)
	}
	if mConfig == nil {
		mConfig = NewModuleConfig()
	}

	name := mConfig.name
	if name == "" {
		name = code.module.SourceFilename
	}

	mod := &moduleInstance{name: name, compiled: code}
	opts := interpreter.Options{
		CallStackCeiling: r.config.callStackCeiling,
		HostFunctions:    make(map[string]interpreter.HostFunction, len(mConfig.hostFunctions)),
	}
	if r.config.liveness {
		opts.Liveness = interpreter.LastUse{}
	}
	for fnName, fn := range mConfig.hostFunctions {
		opts.HostFunctions[fnName] = mod.hostFunction(fn)
	}

	start := time.Now()
	engine, err := interpreter.NewModuleEngine(ctx, code.module, memory.NewModel(r.config.memoryLimit), opts)
	if err != nil {
		return nil, fmt.Errorf("module[%s]: %w", name, err)
	}
	mod.engine = engine

	if name != "" {
		r.mux.Lock()
		_, exists := r.modules[name]
		if !exists {
			r.modules[name] = mod
		}
		r.mux.Unlock()
		if exists {
			return nil, fmt.Errorf("module[%s] has already been instantiated", name)
		}
	}

	r.logger.DebugContext(ctx, "instantiated module",
		slog.String("module", name),
		slog.Int("host_functions", len(opts.HostFunctions)),
		slog.Bool("liveness", r.config.liveness),
		slog.Duration("elapsed", time.Since(start)))
	return mod, nil
}

// CompiledModule is a decoded bitcode module ready to be instantiated
// (Runtime.InstantiateModule) as an api.Module.
//
// Note: This is an interface for decoupling, not third-party
// implementations. All implementations are in bitzero.
type CompiledModule interface {
	// Name returns the source file name recorded in the bitcode, if any.
	Name() string

	// Triple returns the target triple recorded in the bitcode, if any.
	Triple() string

	// ImportedFunctions returns the functions the module declares but does
	// not define, in module order. Calling one that neither a host function
	// nor an intrinsic implements faults.
	ImportedFunctions() []api.FunctionDefinition

	// ExportedFunctions returns the functions the module defines, keyed by
	// name.
	ExportedFunctions() map[string]api.FunctionDefinition
}

type compiledModule struct {
	module   *ir.Module
	imported []api.FunctionDefinition
	exported map[string]api.FunctionDefinition
}

func newCompiledModule(m *ir.Module) *compiledModule {
	c := &compiledModule{module: m, exported: map[string]api.FunctionDefinition{}}
	for _, f := range m.Functions {
		def := newFunctionDefinition(f.Name, f.Sig)
		if f.Declaration {
			c.imported = append(c.imported, def)
		} else if f.Name != "" {
			c.exported[f.Name] = def
		}
	}
	return c
}

// Name implements CompiledModule.Name.
func (c *compiledModule) Name() string { return c.module.SourceFilename }

// Triple implements CompiledModule.Triple.
func (c *compiledModule) Triple() string { return c.module.Triple }

// ImportedFunctions implements CompiledModule.ImportedFunctions.
func (c *compiledModule) ImportedFunctions() []api.FunctionDefinition { return c.imported }

// ExportedFunctions implements CompiledModule.ExportedFunctions.
func (c *compiledModule) ExportedFunctions() map[string]api.FunctionDefinition { return c.exported }
