// Package ir is the in-memory representation of a decoded bitcode module:
// types, constants, global values and functions made of basic blocks.
package ir

import (
	"fmt"
	"strings"
)

// Module is a decoded bitcode module.
type Module struct {
	// Producer is the identification string of the tool that wrote the module.
	Producer       string
	Version        uint64
	Triple         string
	DataLayout     string
	SourceFilename string

	Types     []*Type
	Globals   []*Global
	Functions []*Function
	Aliases   []*Alias
}

// Function returns the function named name.
func (m *Module) Function(name string) (*Function, bool) {
	for _, f := range m.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Global returns the global variable named name.
func (m *Module) Global(name string) (*Global, bool) {
	for _, g := range m.Globals {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}

// Function is a function definition or declaration.
type Function struct {
	Name string
	// Sig is the function type.
	Sig         *Type
	Params      []*Param
	Blocks      []*Block
	Declaration bool
	Linkage     Linkage
	CallingConv uint64
	// Index is the position in Module.Functions.
	Index int
	ptr   *Type
}

// NewFunction returns a function with one parameter per parameter type of sig.
func NewFunction(name string, sig *Type) *Function {
	f := &Function{Name: name, Sig: sig, Params: make([]*Param, len(sig.Params))}
	for i, p := range sig.Params {
		f.Params[i] = &Param{Typ: p, Index: i}
	}
	return f
}

func (f *Function) Type() *Type {
	if f.ptr == nil {
		f.ptr = PointerTo(f.Sig)
	}
	return f.ptr
}

func (f *Function) Ident() string { return "@" + f.Name }

// String returns the function in a textual form close to the LLVM assembly.
func (f *Function) String() string {
	var b strings.Builder
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Typ.String() + " " + p.Ident()
	}
	if f.Declaration {
		fmt.Fprintf(&b, "declare %s @%s(%s)\n", f.Sig.Ret, f.Name, strings.Join(params, ", "))
		return b.String()
	}
	fmt.Fprintf(&b, "define %s @%s(%s) {\n", f.Sig.Ret, f.Name, strings.Join(params, ", "))
	for _, blk := range f.Blocks {
		fmt.Fprintf(&b, "bb%d:\n", blk.Index)
		for _, inst := range blk.Insts {
			b.WriteString("  ")
			b.WriteString(inst.String())
			b.WriteByte('\n')
		}
	}
	b.WriteString("}\n")
	return b.String()
}
