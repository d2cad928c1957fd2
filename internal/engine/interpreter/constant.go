package interpreter

import (
	"fmt"

	"github.com/tetratelabs/bitzero/internal/ir"
	"github.com/tetratelabs/bitzero/internal/memory"
	"github.com/tetratelabs/bitzero/internal/value"
)

// kindOf maps a first-class type to the kind of the values it holds.
// Aggregates are held as managed pointers to immutable objects.
func kindOf(t *ir.Type) (value.Kind, error) {
	if t.IsAggregate() {
		return value.KindManagedPointer, nil
	}
	if k, ok := t.ValueKind(); ok {
		return k, nil
	}
	return value.KindVoid, fmt.Errorf("%w: type %s", ErrUnsupported, t)
}

// constant evaluates a module-level constant once. It is only called while
// the engine is built.
func (e *ModuleEngine) constant(c ir.Value) (value.Value, error) {
	if v, ok := e.constants[c]; ok {
		return v, nil
	}
	v, err := e.evalConstant(c)
	if err != nil {
		return value.Void, err
	}
	e.constants[c] = v
	return v, nil
}

func (e *ModuleEngine) evalConstant(c ir.Value) (value.Value, error) {
	switch c := c.(type) {
	case *ir.IntConst:
		kind, err := kindOf(c.Typ)
		if err != nil {
			return value.Void, err
		}
		return value.FromBits(kind, c.Bits), nil
	case *ir.FloatConst:
		kind, err := kindOf(c.Typ)
		if err != nil {
			return value.Void, err
		}
		return value.FromBits(kind, c.Bits), nil
	case *ir.NullConst:
		return e.zeroOf(c.Typ)
	case *ir.UndefConst:
		return e.zeroOf(c.Typ)
	case *ir.Global:
		return value.Native(e.globals[c]), nil
	case *ir.Function:
		return value.Native(e.byIR[c].addr), nil
	case *ir.Alias:
		return e.constant(c.Aliasee)
	case *ir.AggregateConst:
		return e.aggregateConstant(c)
	case *ir.DataConst:
		return e.dataConstant(c)
	case *ir.ExprConst:
		return e.exprConstant(c)
	}
	return value.Void, fmt.Errorf("%w: constant %s", ErrUnsupported, c.Ident())
}

// zeroOf returns the zero value of t: null for pointers, zeroed lanes for
// vectors and a zeroed object for aggregates.
func (e *ModuleEngine) zeroOf(t *ir.Type) (value.Value, error) {
	switch {
	case t.IsAggregate():
		return value.Managed(e.model.NewStackObject(t.StoreSize())), nil
	case t.IsVector():
		elem, err := kindOf(t.Elem)
		if err != nil {
			return value.Void, err
		}
		lanes := make([]value.Value, t.Len)
		for i := range lanes {
			lanes[i] = value.Zero(elem)
		}
		return vectorOf(elem, lanes), nil
	}
	kind, err := kindOf(t)
	if err != nil {
		return value.Void, err
	}
	return value.Zero(kind), nil
}

func (e *ModuleEngine) aggregateConstant(c *ir.AggregateConst) (value.Value, error) {
	elems := make([]value.Value, len(c.Elems))
	for i, el := range c.Elems {
		v, err := e.constant(el)
		if err != nil {
			return value.Void, err
		}
		elems[i] = v
	}
	t := c.Typ
	if t.IsVector() {
		elem, err := kindOf(t.Elem)
		if err != nil {
			return value.Void, err
		}
		return vectorOf(elem, elems), nil
	}
	obj := value.Managed(e.model.NewStackObject(t.StoreSize()))
	for i, v := range elems {
		offset, field := elementAt(t, i)
		if err := e.writeConstant(memory.Offset(obj, int64(offset)), field, v); err != nil {
			return value.Void, err
		}
	}
	return obj, nil
}

func (e *ModuleEngine) dataConstant(c *ir.DataConst) (value.Value, error) {
	t := c.Typ
	elem, err := kindOf(t.Elem)
	if err != nil {
		return value.Void, err
	}
	if t.IsVector() {
		return value.Vec(value.NewVector(elem, c.Elems...)), nil
	}
	obj := value.Managed(e.model.NewStackObject(t.StoreSize()))
	stride := int64(t.Elem.StoreSize())
	for i, bits := range c.Elems {
		if err := e.model.Store(memory.Offset(obj, int64(i)*stride), value.FromBits(elem, bits)); err != nil {
			return value.Void, err
		}
	}
	return obj, nil
}

// elementAt returns the byte offset and type of element i of an aggregate.
func elementAt(t *ir.Type, i int) (uint64, *ir.Type) {
	if t.Kind == ir.TypeStruct {
		return t.FieldOffset(i), t.Fields[i]
	}
	return uint64(i) * t.Elem.StoreSize(), t.Elem
}

func (e *ModuleEngine) exprConstant(c *ir.ExprConst) (v value.Value, err error) {
	ops := make([]value.Value, len(c.Operands))
	for i, o := range c.Operands {
		if ops[i], err = e.constant(o); err != nil {
			return
		}
	}

	switch c.Op {
	case ir.ExprCast:
		var cast castFunc
		if cast, err = lookupCast(c.Cast, c.Operands[0].Type(), c.Typ); err != nil {
			return
		}
		return evalSafely(func() value.Value { return cast(e.model, ops[0]) })
	case ir.ExprBinary:
		fn := resolveBinary(c.Binary, c.Flags, ops[0])
		return evalSafely(func() value.Value { return fn(ops[0], ops[1]) })
	case ir.ExprCompare:
		fn := resolveCompare(c.Pred, ops[0])
		return evalSafely(func() value.Value { return fn(e.model, ops[0], ops[1]) })
	case ir.ExprSelect:
		if ops[0].I1() {
			return ops[1], nil
		}
		return ops[2], nil
	case ir.ExprGEP:
		var offset int64
		if offset, err = constantOffset(c.SourceElem, ops[1:]); err != nil {
			return
		}
		return memory.Offset(ops[0], offset), nil
	}
	return value.Void, fmt.Errorf("%w: constant expression %s", ErrUnsupported, c.Ident())
}

// constantOffset folds the indices of a constant GEP into a byte offset.
func constantOffset(source *ir.Type, indices []value.Value) (int64, error) {
	if len(indices) == 0 {
		return 0, nil
	}
	offset := indices[0].SignExtended() * int64(source.StoreSize())
	t := source
	for _, idx := range indices[1:] {
		switch t.Kind {
		case ir.TypeStruct:
			i := int(idx.Bits())
			if i >= len(t.Fields) {
				return 0, fmt.Errorf("%w: field %d of %s", ir.ErrOperandType, i, t)
			}
			offset += int64(t.FieldOffset(i))
			t = t.Fields[i]
		case ir.TypeArray, ir.TypeVector:
			offset += idx.SignExtended() * int64(t.Elem.StoreSize())
			t = t.Elem
		default:
			return 0, fmt.Errorf("%w: index into %s", ir.ErrOperandType, t)
		}
	}
	return offset, nil
}

// evalSafely turns a fault raised while folding a constant into an error.
func evalSafely(fn func() value.Value) (v value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
	}()
	return fn(), nil
}

// vectorOf builds a vector value from lanes of kind elem.
func vectorOf(elem value.Kind, lanes []value.Value) value.Value {
	if elem.IsPointer() {
		return value.Vec(value.NewPointerVector(lanes...))
	}
	bits := make([]uint64, len(lanes))
	for i, l := range lanes {
		bits[i] = l.Bits()
	}
	return value.Vec(value.NewVector(elem, bits...))
}
