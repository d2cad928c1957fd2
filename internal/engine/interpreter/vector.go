package interpreter

import (
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/bitzero/internal/memory"
	"github.com/tetratelabs/bitzero/internal/value"
)

// laneSpec is the lane access for one element kind.
type laneSpec struct {
	elem    value.Kind
	extract func(vec *value.Vector, i int) value.Value
	insert  func(vec *value.Vector, i int, lane value.Value) *value.Vector
}

// resolveLanes specializes lane accesses for elem. The 64-bit specialization
// also serves pointer vectors: their lanes are returned unchanged.
func resolveLanes(elem value.Kind) *laneSpec {
	switch elem {
	case value.KindI64, value.KindNativePointer, value.KindManagedPointer:
		return &laneSpec{
			elem:    elem,
			extract: func(vec *value.Vector, i int) value.Value { return vec.Lane(i) },
			insert:  func(vec *value.Vector, i int, lane value.Value) *value.Vector { return vec.With(i, lane) },
		}
	}
	return &laneSpec{
		elem: elem,
		extract: func(vec *value.Vector, i int) value.Value {
			return value.FromBits(elem, vec.LaneBits(i))
		},
		insert: func(vec *value.Vector, i int, lane value.Value) *value.Vector {
			return vec.With(i, value.FromBits(elem, lane.Bits()))
		},
	}
}

// laneIndex checks idx against the length of vec.
func laneIndex(vec *value.Vector, idx value.Value) int {
	i := idx.Bits()
	if i >= uint64(vec.Len()) {
		panic(fmt.Errorf("%w: lane %d of a %d lane vector", memory.ErrOutOfBounds, i, vec.Len()))
	}
	return int(i)
}

type extractElementNode struct {
	definition
	vec, idx operand
	spec     atomic.Pointer[laneSpec]
}

func (n *extractElementNode) exec(_ *callEngine, fr *frame) {
	vec := n.vec.eval(fr).Vector()
	s := n.spec.Load()
	if s == nil || s.elem != vec.Elem() {
		s = resolveLanes(vec.Elem())
		n.spec.Store(s)
	}
	fr.slots[n.dst] = s.extract(vec, laneIndex(vec, n.idx.eval(fr)))
}

type insertElementNode struct {
	definition
	vec, elem, idx operand
	spec           atomic.Pointer[laneSpec]
}

func (n *insertElementNode) exec(_ *callEngine, fr *frame) {
	vec := n.vec.eval(fr).Vector()
	s := n.spec.Load()
	if s == nil || s.elem != vec.Elem() {
		s = resolveLanes(vec.Elem())
		n.spec.Store(s)
	}
	fr.slots[n.dst] = value.Vec(s.insert(vec, laneIndex(vec, n.idx.eval(fr)), n.elem.eval(fr)))
}
