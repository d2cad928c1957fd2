package interpreter

import (
	"fmt"

	"github.com/tetratelabs/bitzero/internal/memory"
	"github.com/tetratelabs/bitzero/internal/value"
)

// layout describes how a value of one type is moved to and from memory.
type layout struct {
	kind value.Kind
	// elem and lanes are set for vectors.
	elem  value.Kind
	lanes int
	// size is the store size of an aggregate; aggregates are copied.
	size      uint64
	aggregate bool
}

func (l *layout) load(m *memory.Model, addr value.Value) value.Value {
	var v value.Value
	var err error
	switch {
	case l.aggregate:
		obj := value.Managed(m.NewStackObject(l.size))
		err = m.Copy(obj, addr, l.size)
		v = obj
	case l.kind == value.KindVector:
		v, err = m.LoadVector(addr, l.elem, l.lanes)
	default:
		v, err = m.Load(addr, l.kind)
	}
	if err != nil {
		panic(err)
	}
	return v
}

func (l *layout) store(m *memory.Model, addr, v value.Value) {
	var err error
	if l.aggregate {
		err = copyAggregate(m, addr, v, l.size)
	} else {
		err = m.Store(addr, v)
	}
	if err != nil {
		panic(err)
	}
}

// copyAggregate copies size bytes of an aggregate. A copy between a native
// and a managed address goes through the native representation of the
// managed side, which fails with memory.ErrMaterialization for objects that
// have none.
func copyAggregate(m *memory.Model, dst, src value.Value, size uint64) (err error) {
	if size == 0 {
		return nil
	}
	if dst.Kind() != src.Kind() {
		if dst, err = materialize(m, dst); err != nil {
			return
		}
		if src, err = materialize(m, src); err != nil {
			return
		}
	}
	return m.Copy(dst, src, size)
}

func materialize(m *memory.Model, p value.Value) (value.Value, error) {
	if p.Kind() != value.KindManagedPointer {
		return p, nil
	}
	native, err := m.MaterializeToNative(p.Managed())
	if err != nil {
		return value.Void, err
	}
	return value.Native(native), nil
}

type loadNode struct {
	definition
	addr operand
	layout
}

func (n *loadNode) exec(ce *callEngine, fr *frame) {
	fr.slots[n.dst] = n.load(ce.engine.model, n.addr.eval(fr))
}

type storeNode struct {
	definition
	addr, val operand
	layout
}

func (n *storeNode) exec(ce *callEngine, fr *frame) {
	n.store(ce.engine.model, n.addr.eval(fr), n.val.eval(fr))
}

// allocaNode allocates a fresh managed stack object per execution.
type allocaNode struct {
	definition
	count    operand
	elemSize uint64
}

func (n *allocaNode) exec(ce *callEngine, fr *frame) {
	m := ce.engine.model
	count := n.count.eval(fr).Bits()
	size := n.elemSize * count
	if count != 0 && (size/count != n.elemSize || size > m.Native.Limit()) {
		panic(fmt.Errorf("%w: alloca of %d x %d bytes", memory.ErrOutOfMemory, count, n.elemSize))
	}
	fr.slots[n.dst] = value.Managed(m.NewStackObject(size))
}

// gepStep adds idx scaled by scale to the address, or offset when idx is nil.
type gepStep struct {
	idx    operand
	scale  int64
	offset int64
}

type gepNode struct {
	definition
	base  operand
	steps []gepStep
}

func (n *gepNode) exec(_ *callEngine, fr *frame) {
	var offset int64
	for _, s := range n.steps {
		if s.idx == nil {
			offset += s.offset
		} else {
			offset += s.idx.eval(fr).SignExtended() * s.scale
		}
	}
	fr.slots[n.dst] = memory.Offset(n.base.eval(fr), offset)
}

// extractValueNode reads a member of an aggregate. Aggregate members are
// returned as pointers into the same immutable object.
type extractValueNode struct {
	definition
	agg    operand
	offset int64
	layout
}

func (n *extractValueNode) exec(ce *callEngine, fr *frame) {
	at := memory.Offset(n.agg.eval(fr), n.offset)
	if n.aggregate {
		fr.slots[n.dst] = at
		return
	}
	fr.slots[n.dst] = n.load(ce.engine.model, at)
}

// insertValueNode copies an aggregate and replaces one member.
type insertValueNode struct {
	definition
	agg, elem operand
	aggSize   uint64
	offset    int64
	layout
}

func (n *insertValueNode) exec(ce *callEngine, fr *frame) {
	m := ce.engine.model
	obj := value.Managed(m.NewStackObject(n.aggSize))
	if err := m.Copy(obj, n.agg.eval(fr), n.aggSize); err != nil {
		panic(err)
	}
	n.store(m, memory.Offset(obj, n.offset), n.elem.eval(fr))
	fr.slots[n.dst] = obj
}
