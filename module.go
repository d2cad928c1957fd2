package bitzero

import (
	"context"
	"fmt"

	"github.com/tetratelabs/bitzero/api"
	"github.com/tetratelabs/bitzero/internal/engine/interpreter"
	"github.com/tetratelabs/bitzero/internal/ir"
	"github.com/tetratelabs/bitzero/internal/memory"
	"github.com/tetratelabs/bitzero/internal/value"
)

var (
	_ api.Module             = (*moduleInstance)(nil)
	_ api.Function           = (*function)(nil)
	_ api.FunctionDefinition = (*functionDefinition)(nil)
	_ api.Memory             = (*memory.Model)(nil)
)

// moduleInstance implements api.Module over an interpreter.ModuleEngine.
type moduleInstance struct {
	name     string
	compiled *compiledModule
	engine   *interpreter.ModuleEngine
}

// String implements fmt.Stringer.
func (m *moduleInstance) String() string {
	return fmt.Sprintf("Module[%s]", m.name)
}

// Name implements api.Module.Name.
func (m *moduleInstance) Name() string { return m.name }

// Memory implements api.Module.Memory.
func (m *moduleInstance) Memory() api.Memory { return m.engine.Memory() }

// ExportedFunction implements api.Module.ExportedFunction.
func (m *moduleInstance) ExportedFunction(name string) api.Function {
	def, ok := m.compiled.exported[name]
	if !ok {
		return nil
	}
	f, ok := m.engine.Function(name)
	if !ok {
		return nil
	}
	return &function{def: def, f: f}
}

// hostFunction adapts fn to the interpreter, passing m as the calling
// module.
func (m *moduleInstance) hostFunction(fn api.GoFunction) interpreter.HostFunction {
	return func(ctx context.Context, args []value.Value) (value.Value, error) {
		return fn(ctx, m, args)
	}
}

type function struct {
	def api.FunctionDefinition
	f   *interpreter.Function
}

// Definition implements api.Function.Definition.
func (f *function) Definition() api.FunctionDefinition { return f.def }

// Call implements api.Function.Call.
func (f *function) Call(ctx context.Context, params ...api.Value) (api.Value, error) {
	return f.f.Call(ctx, params...)
}

type functionDefinition struct {
	name   string
	params []api.Kind
	result api.Kind
	varArg bool
}

func newFunctionDefinition(name string, sig *ir.Type) *functionDefinition {
	def := &functionDefinition{name: name, result: kindOf(sig.Ret), varArg: sig.VarArg}
	if len(sig.Params) > 0 {
		def.params = make([]api.Kind, len(sig.Params))
		for i, p := range sig.Params {
			def.params[i] = kindOf(p)
		}
	}
	return def
}

// kindOf maps a parameter or result type to the kind of its value.
// Aggregates are passed by pointer, and types the interpreter has no value
// for are reported as void.
func kindOf(t *ir.Type) api.Kind {
	if t == nil {
		return api.KindVoid
	}
	if t.IsAggregate() {
		return api.KindNativePointer
	}
	k, _ := t.ValueKind()
	return k
}

// Name implements api.FunctionDefinition.Name.
func (d *functionDefinition) Name() string { return d.name }

// ParamKinds implements api.FunctionDefinition.ParamKinds.
func (d *functionDefinition) ParamKinds() []api.Kind { return d.params }

// ResultKind implements api.FunctionDefinition.ResultKind.
func (d *functionDefinition) ResultKind() api.Kind { return d.result }

// IsVarArg implements api.FunctionDefinition.IsVarArg.
func (d *functionDefinition) IsVarArg() bool { return d.varArg }
