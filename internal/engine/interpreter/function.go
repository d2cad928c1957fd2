package interpreter

import (
	"context"
	"fmt"
	"strings"

	"github.com/tetratelabs/bitzero/internal/ir"
	"github.com/tetratelabs/bitzero/internal/value"
)

// hostFunc implements a function body in Go: host functions and intrinsics.
type hostFunc func(ce *callEngine, args []value.Value) value.Value

// Function is a function of a ModuleEngine. Defined functions are compiled;
// declarations are bound to a host function, an intrinsic or nothing.
type Function struct {
	engine *ModuleEngine
	ir     *ir.Function
	name   string
	addr   value.NativePointer

	// blocks is nil for declarations.
	blocks   [][]node
	numSlots int
	host     hostFunc
}

func (f *Function) Name() string { return f.name }

// Signature returns the function type.
func (f *Function) Signature() *ir.Type { return f.ir.Sig }

// Address is the native address taken by pointers to f.
func (f *Function) Address() value.NativePointer { return f.addr }

// IsDeclaration is true when f has no body in the module.
func (f *Function) IsDeclaration() bool { return f.ir.Declaration }

// Call invokes f. Faults raised while running are returned as errors
// prefixed with "llvm runtime error" and followed by a backtrace of the
// functions on the call stack at the time of the fault.
func (f *Function) Call(ctx context.Context, args ...value.Value) (ret value.Value, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err = ctx.Err(); err != nil {
		return
	}
	if err = f.engine.Initialize(); err != nil {
		return
	}
	if err = f.checkArgs(args); err != nil {
		return
	}

	ce := &callEngine{ctx: ctx, engine: f.engine}
	defer func() {
		if v := recover(); v != nil {
			traces := make([]string, 0, len(ce.frames))
			for i := len(ce.frames) - 1; i >= 0; i-- {
				traces = append(traces, fmt.Sprintf("\t%d: %s", len(ce.frames)-1-i, ce.frames[i].f.name))
			}
			if err2, ok := v.(error); ok {
				err = fmt.Errorf("llvm runtime error: %w", err2)
			} else {
				err = fmt.Errorf("llvm runtime error: %v", v)
			}
			if len(traces) > 0 {
				err = fmt.Errorf("%w\nllvm backtrace:\n%s", err, strings.Join(traces, "\n"))
			}
		}
	}()
	ret = ce.call(f, args)
	return
}

func (f *Function) checkArgs(args []value.Value) error {
	sig := f.ir.Sig
	if len(args) < len(sig.Params) || (len(args) > len(sig.Params) && !sig.VarArg) {
		return fmt.Errorf("expected %d params, but passed %d", len(sig.Params), len(args))
	}
	for i, p := range sig.Params {
		if !accepts(p, args[i]) {
			return fmt.Errorf("param[%d] of @%s expects %s, but passed %s", i, f.name, p, args[i])
		}
	}
	return nil
}

// accepts is true when v can be bound to a parameter of type t.
func accepts(t *ir.Type, v value.Value) bool {
	switch {
	case t.IsPointer(), t.IsAggregate():
		return v.IsPointer()
	case t.IsVector():
		return v.Kind() == value.KindVector && uint64(v.Vector().Len()) == t.Len
	}
	k, ok := t.ValueKind()
	return ok && k == v.Kind()
}

// callEngine holds the state of one top-level Call.
type callEngine struct {
	// ctx is the context of the running node. Listeners may replace it for
	// the duration of a node.
	ctx    context.Context
	engine *ModuleEngine
	frames []*frame
}

// frame is the register file of one function activation.
type frame struct {
	f     *Function
	slots []value.Value
	// block is the running block and prev the one control came from.
	block, prev int
	// next is the block chosen by the terminator, or -1 to return.
	next int
	ret  value.Value
}

func (ce *callEngine) call(f *Function, args []value.Value) value.Value {
	if len(ce.frames) >= ce.engine.ceiling {
		panic(ErrCallStackOverflow)
	}
	fr := &frame{f: f, prev: -1}
	ce.frames = append(ce.frames, fr)

	var ret value.Value
	switch {
	case f.blocks != nil:
		if len(args) < len(f.ir.Params) {
			panic(fmt.Errorf("%w: @%s takes %d params, but passed %d", ErrInvalidFunctionPointer, f.name, len(f.ir.Params), len(args)))
		}
		fr.slots = make([]value.Value, f.numSlots)
		copy(fr.slots, args[:len(f.ir.Params)])
		ret = ce.run(fr)
	case f.host != nil:
		ret = f.host(ce, args)
	default:
		panic(fmt.Errorf("%w: @%s", ErrUnresolvedFunction, f.name))
	}

	ce.frames = ce.frames[:len(ce.frames)-1]
	return ret
}

func (ce *callEngine) run(fr *frame) value.Value {
	blocks := fr.f.blocks
	for b := 0; ; {
		fr.block = b
		for _, n := range blocks[b] {
			n.exec(ce, fr)
		}
		if fr.next < 0 {
			return fr.ret
		}
		fr.prev, b = b, fr.next
	}
}
