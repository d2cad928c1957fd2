// Package api includes constants and interfaces used by both end-users and internal implementations.
package api

import (
	"context"
	"fmt"

	"github.com/tetratelabs/bitzero/internal/value"
)

// Kind is the tag of a Value.
//
// The following describes how to convert between Go and LLVM values:
//   - KindI1 - I1(bool), Value.I1
//   - KindI8, KindI16, KindI32, KindI64 - I8(int8) ... I64(int64), Value.I64 etc.
//   - KindFloat, KindDouble - Float(float32), Double(float64)
//   - KindNativePointer - Native(NativePointer), Value.Native
//   - KindManagedPointer - Managed(ManagedPointer), Value.Managed
//   - KindVector - Vec(*value.Vector), Value.Vector
type Kind = value.Kind

const (
	KindVoid           = value.KindVoid
	KindI1             = value.KindI1
	KindI8             = value.KindI8
	KindI16            = value.KindI16
	KindI32            = value.KindI32
	KindI64            = value.KindI64
	KindFloat          = value.KindFloat
	KindDouble         = value.KindDouble
	KindNativePointer  = value.KindNativePointer
	KindManagedPointer = value.KindManagedPointer
	KindVector         = value.KindVector
)

// Value is a tagged LLVM value passed to and returned from functions.
type Value = value.Value

// NativePointer is a byte address into the flat native address space of a
// module instance.
type NativePointer = value.NativePointer

// ManagedPointer addresses memory owned by an Owner the embedder supplies.
type ManagedPointer = value.ManagedPointer

// Owner is implemented by the embedder to back managed pointers. See
// value.Owner for the contract.
type Owner = value.Owner

// TextOwner is an Owner that can answer string reads directly.
type TextOwner = value.TextOwner

// NativeOwner is an Owner that can move its bytes into native memory.
type NativeOwner = value.NativeOwner

// I1 encodes a boolean as KindI1.
func I1(v bool) Value { return value.I1(v) }

// I8 encodes v as KindI8.
func I8(v int8) Value { return value.I8(v) }

// I16 encodes v as KindI16.
func I16(v int16) Value { return value.I16(v) }

// I32 encodes v as KindI32.
func I32(v int32) Value { return value.I32(v) }

// I64 encodes v as KindI64.
func I64(v int64) Value { return value.I64(v) }

// Float encodes v as KindFloat.
func Float(v float32) Value { return value.Float(v) }

// Double encodes v as KindDouble.
func Double(v float64) Value { return value.Double(v) }

// Native encodes p as KindNativePointer.
func Native(p NativePointer) Value { return value.Native(p) }

// Managed encodes p as KindManagedPointer.
func Managed(p ManagedPointer) Value { return value.Managed(p) }

// Tag identifies the operation of an executed node, so that listeners can
// select what they observe.
type Tag uint32

const (
	TagSSARead Tag = iota
	TagSSAWrite
	TagSSALifetimeEnd
	TagConstant
	TagAdd
	TagSub
	TagMul
	TagDiv
	TagRem
	TagShl
	TagShr
	TagAnd
	TagOr
	TagXor
	TagICmp
	TagFCmp
	TagCast
	TagAlloca
	TagLoad
	TagStore
	TagGetElementPtr
	TagExtractElement
	TagInsertElement
	TagExtractValue
	TagInsertValue
	TagSelect
	TagPhi
	TagCall
	TagRet
	TagBr
	TagSwitch
	TagUnreachable
	TagBlock
)

var tagNames = [...]string{
	TagSSARead:        "SSA_READ",
	TagSSAWrite:       "SSA_WRITE",
	TagSSALifetimeEnd: "SSA_LIFETIME_END",
	TagConstant:       "CONSTANT",
	TagAdd:            "ADD",
	TagSub:            "SUB",
	TagMul:            "MUL",
	TagDiv:            "DIV",
	TagRem:            "REM",
	TagShl:            "SHL",
	TagShr:            "SHR",
	TagAnd:            "AND",
	TagOr:             "OR",
	TagXor:            "XOR",
	TagICmp:           "ICMP",
	TagFCmp:           "FCMP",
	TagCast:           "CAST",
	TagAlloca:         "ALLOCA",
	TagLoad:           "LOAD",
	TagStore:          "STORE",
	TagGetElementPtr:  "GETELEMENTPTR",
	TagExtractElement: "EXTRACTELEMENT",
	TagInsertElement:  "INSERTELEMENT",
	TagExtractValue:   "EXTRACTVALUE",
	TagInsertValue:    "INSERTVALUE",
	TagSelect:         "SELECT",
	TagPhi:            "PHI",
	TagCall:           "CALL",
	TagRet:            "RET",
	TagBr:             "BR",
	TagSwitch:         "SWITCH",
	TagUnreachable:    "UNREACHABLE",
	TagBlock:          "BLOCK",
}

// String returns the upper-case name of the tag, e.g. "GETELEMENTPTR".
func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("<unknown=%d>", uint32(t))
}

// NodeDefinition describes an executable node of a compiled function.
//
// Note: This is an interface for decoupling, not third-party implementations.
// All implementations are in bitzero.
type NodeDefinition interface {
	// Tag is the kind of operation the node performs.
	Tag() Tag

	// String is the display form of the operation, e.g. "add nuw" or "sext".
	String() string

	// Function is the name of the function that contains the node.
	Function() string

	// Slots returns the names of the frame slots the node writes, or clears
	// in the case of TagSSALifetimeEnd.
	Slots() []string
}

// Module is an instantiated bitcode module.
//
// Note: This is an interface for decoupling, not third-party implementations.
// All implementations are in bitzero.
type Module interface {
	fmt.Stringer

	// Name is the name this module was instantiated with.
	Name() string

	// ExportedFunction returns a function defined in this module or nil if it
	// doesn't exist.
	ExportedFunction(name string) Function

	// Memory returns the memory model of this module instance.
	Memory() Memory
}

// FunctionDefinition is the signature of a function.
type FunctionDefinition interface {
	// Name is the symbol name of the function.
	Name() string

	// ParamKinds are the kinds of the fixed parameters. Aggregates are
	// passed by pointer.
	ParamKinds() []Kind

	// ResultKind is KindVoid when the function returns nothing.
	ResultKind() Kind

	// IsVarArg is true when the function accepts extra arguments.
	IsVarArg() bool
}

// Function is a function defined in a module.
type Function interface {
	// Definition is the signature of this function.
	Definition() FunctionDefinition

	// Call invokes the function with the given parameters. The context is
	// only checked on entry: a call that already started runs to completion.
	//
	// A fault inside the function, such as an out of bounds access, is
	// returned as an error prefixed by "llvm runtime error" and followed by a
	// backtrace.
	Call(ctx context.Context, params ...Value) (Value, error)
}

// GoFunction is a host function implemented in Go, which satisfies calls to
// a function declared but not defined in the module.
type GoFunction func(ctx context.Context, mod Module, params []Value) (Value, error)

// Memory is the memory model of a module instance: native memory plus
// managed objects reachable through auto-deref handles.
//
// Note: This is an interface for decoupling, not third-party implementations.
// All implementations are in bitzero.
type Memory interface {
	// Load reads a scalar of the given kind at addr.
	Load(addr Value, kind Kind) (Value, error)

	// Store writes v at addr.
	Store(addr, v Value) error

	// Copy copies n bytes from src to dst.
	Copy(dst, src Value, n uint64) error

	// ReadString reads the NUL-terminated string at addr.
	ReadString(addr Value) (string, error)

	// Allocate reserves size bytes of native memory aligned to align.
	Allocate(size, align uint64) (NativePointer, error)
}
