// Package interpreter lowers decoded IR functions into trees of executable
// nodes and evaluates them against a memory.Model.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/bitzero/experimental"
	"github.com/tetratelabs/bitzero/internal/ir"
	"github.com/tetratelabs/bitzero/internal/memory"
	"github.com/tetratelabs/bitzero/internal/value"
)

var (
	ErrIntegerOverflow     = errors.New("integer overflow")
	ErrIntegerDivideByZero = errors.New("integer divide by zero")
	ErrUnreachable         = errors.New("unreachable")
	ErrCallStackOverflow   = errors.New("callstack overflow")
	// ErrNoSuchCast is returned at compile time for a cast between kinds
	// that has no specialization.
	ErrNoSuchCast = errors.New("no such cast")
	// ErrUnsupported is returned at compile time for IR the interpreter
	// cannot represent, such as i128 values or vector GEPs.
	ErrUnsupported              = errors.New("unsupported")
	ErrUnresolvedFunction       = errors.New("unresolved function")
	ErrInvalidFunctionPointer   = errors.New("invalid function pointer")
	ErrInvalidPointerComparison = errors.New("ordered comparison of pointers into different objects")
)

// DefaultCallStackCeiling is the maximum depth of nested calls.
const DefaultCallStackCeiling = 2000

// HostFunction implements a declared function in Go. A non-nil error faults
// the calling function.
type HostFunction func(ctx context.Context, args []value.Value) (value.Value, error)

// Options configures NewModuleEngine.
type Options struct {
	// CallStackCeiling bounds nested calls. Zero means
	// DefaultCallStackCeiling.
	CallStackCeiling int
	// Liveness decides where frame slots are cleared. nil disables clearing.
	Liveness Liveness
	// HostFunctions resolve declarations by name. They take precedence over
	// intrinsics.
	HostFunctions map[string]HostFunction
}

// ModuleEngine is an instantiated module: globals laid out in native memory
// and every defined function compiled.
type ModuleEngine struct {
	module  *ir.Module
	model   *memory.Model
	ceiling int

	functions []*Function
	byIR      map[*ir.Function]*Function
	byName    map[string]*Function
	byAddr    map[value.NativePointer]*Function
	globals   map[*ir.Global]value.NativePointer

	// constants caches evaluated module-level constants.
	constants map[ir.Value]value.Value
	inits     []globalInit
	initOnce  sync.Once
	initErr   error
}

type globalInit struct {
	g    *ir.Global
	addr value.NativePointer
	v    value.Value
}

// NewModuleEngine lays out globals and function addresses of m in model and
// compiles every defined function. A node listener factory found in ctx
// under experimental.NodeListenerFactoryKey instruments the compiled nodes.
func NewModuleEngine(ctx context.Context, m *ir.Module, model *memory.Model, opts Options) (*ModuleEngine, error) {
	e := &ModuleEngine{
		module:    m,
		model:     model,
		ceiling:   opts.CallStackCeiling,
		byIR:      map[*ir.Function]*Function{},
		byName:    map[string]*Function{},
		byAddr:    map[value.NativePointer]*Function{},
		globals:   map[*ir.Global]value.NativePointer{},
		constants: map[ir.Value]value.Value{},
	}
	if e.ceiling <= 0 {
		e.ceiling = DefaultCallStackCeiling
	}

	var listeners experimental.NodeListenerFactory
	if ctx != nil {
		listeners, _ = ctx.Value(experimental.NodeListenerFactoryKey{}).(experimental.NodeListenerFactory)
	}

	for _, g := range m.Globals {
		size := g.ValueType.StoreSize()
		if size == 0 {
			size = 1
		}
		align := g.ValueType.Align()
		if g.Align > align {
			align = g.Align
		}
		addr, err := model.Allocate(size, align)
		if err != nil {
			return nil, fmt.Errorf("global @%s: %w", g.Name, err)
		}
		e.globals[g] = addr
	}

	for _, f := range m.Functions {
		// Functions only need a distinct address to be called through.
		addr, err := model.Allocate(1, 16)
		if err != nil {
			return nil, fmt.Errorf("function @%s: %w", f.Name, err)
		}
		fn := &Function{engine: e, ir: f, name: f.Name, addr: addr}
		e.functions = append(e.functions, fn)
		e.byIR[f] = fn
		e.byAddr[addr] = fn
		if f.Name != "" {
			e.byName[f.Name] = fn
		}
	}

	for _, g := range m.Globals {
		if g.Init == nil {
			continue
		}
		v, err := e.constant(g.Init)
		if err != nil {
			return nil, fmt.Errorf("initializer of @%s: %w", g.Name, err)
		}
		e.inits = append(e.inits, globalInit{g: g, addr: e.globals[g], v: v})
	}

	for _, fn := range e.functions {
		if fn.ir.Declaration {
			fn.host = resolveDeclaration(fn.name, opts.HostFunctions)
			continue
		}
		if err := compileFunction(e, fn, opts.Liveness, listeners); err != nil {
			return nil, fmt.Errorf("compiling @%s: %w", fn.name, err)
		}
	}
	return e, nil
}

// resolveDeclaration returns the implementation of a declared function, or
// nil when it stays unresolved until called.
func resolveDeclaration(name string, hosts map[string]HostFunction) hostFunc {
	if h, ok := hosts[name]; ok {
		return func(ce *callEngine, args []value.Value) value.Value {
			ret, err := h(ce.ctx, args)
			if err != nil {
				panic(err)
			}
			return ret
		}
	}
	if h, ok := lookupIntrinsic(name); ok {
		return h
	}
	return nil
}

// Initialize writes global initializers to memory. It runs once, on the
// first call of any function, and returns the same error afterwards.
func (e *ModuleEngine) Initialize() error {
	e.initOnce.Do(func() {
		for _, in := range e.inits {
			if err := e.writeConstant(value.Native(in.addr), in.g.ValueType, in.v); err != nil {
				e.initErr = fmt.Errorf("initializing @%s: %w", in.g.Name, err)
				return
			}
		}
	})
	return e.initErr
}

// writeConstant stores v, whose type is t, at addr. Aggregate constants are
// managed objects and are copied.
func (e *ModuleEngine) writeConstant(addr value.Value, t *ir.Type, v value.Value) error {
	if t.IsAggregate() {
		return e.model.Copy(addr, v, t.StoreSize())
	}
	return e.model.Store(addr, v)
}

// Memory returns the memory model the module runs against.
func (e *ModuleEngine) Memory() *memory.Model { return e.model }

// Module returns the IR the engine was built from.
func (e *ModuleEngine) Module() *ir.Module { return e.module }

// Function returns the function named name.
func (e *ModuleEngine) Function(name string) (*Function, bool) {
	f, ok := e.byName[name]
	return f, ok
}

// Functions returns all functions in module order.
func (e *ModuleEngine) Functions() []*Function { return e.functions }

// GlobalAddress returns the native address of the global variable named
// name.
func (e *ModuleEngine) GlobalAddress(name string) (value.NativePointer, bool) {
	g, ok := e.module.Global(name)
	if !ok {
		return 0, false
	}
	return e.globals[g], true
}

// functionAt resolves the callee of an indirect call.
func (e *ModuleEngine) functionAt(p value.Value) *Function {
	if p.Kind() == value.KindNativePointer {
		if f, ok := e.byAddr[p.Native()]; ok {
			return f
		}
	}
	panic(fmt.Errorf("%w: %s", ErrInvalidFunctionPointer, p))
}
