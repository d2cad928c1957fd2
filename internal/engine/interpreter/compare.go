package interpreter

import (
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/bitzero/internal/ir"
	"github.com/tetratelabs/bitzero/internal/memory"
	"github.com/tetratelabs/bitzero/internal/value"
)

type compareFunc func(m *memory.Model, x, y value.Value) value.Value

type compareSpec struct {
	kind value.Kind
	fn   compareFunc
}

type compareNode struct {
	definition
	pred ir.Predicate
	x, y operand
	spec atomic.Pointer[compareSpec]
}

func (n *compareNode) exec(ce *callEngine, fr *frame) {
	x, y := n.x.eval(fr), n.y.eval(fr)
	s := n.spec.Load()
	if s == nil || s.kind != x.Kind() {
		s = &compareSpec{kind: x.Kind(), fn: resolveCompare(n.pred, x)}
		n.spec.Store(s)
	}
	fr.slots[n.dst] = s.fn(ce.engine.model, x, y)
}

// resolveCompare specializes pred for the kind of x. Vectors compare lane by
// lane into a vector of i1.
func resolveCompare(pred ir.Predicate, x value.Value) compareFunc {
	if x.Kind() == value.KindVector {
		scalar := scalarCompare(pred, x.Vector().Elem())
		return func(m *memory.Model, x, y value.Value) value.Value {
			xv, yv := x.Vector(), y.Vector()
			lanes := make([]uint64, xv.Len())
			for i := range lanes {
				if scalar(m, xv.Lane(i), yv.Lane(i)) {
					lanes[i] = 1
				}
			}
			return value.Vec(value.NewVector(value.KindI1, lanes...))
		}
	}
	scalar := scalarCompare(pred, x.Kind())
	return func(m *memory.Model, x, y value.Value) value.Value {
		return value.I1(scalar(m, x, y))
	}
}

func scalarCompare(pred ir.Predicate, kind value.Kind) func(m *memory.Model, x, y value.Value) bool {
	switch {
	case pred.IsFloat() && kind == value.KindFloat:
		return func(_ *memory.Model, x, y value.Value) bool {
			return fcmp(pred, float64(x.Float()), float64(y.Float()))
		}
	case pred.IsFloat() && kind == value.KindDouble:
		return func(_ *memory.Model, x, y value.Value) bool { return fcmp(pred, x.Double(), y.Double()) }
	case !pred.IsFloat() && kind.IsInteger():
		return func(_ *memory.Model, x, y value.Value) bool {
			return icmp(pred, x.Bits(), y.Bits(), x.SignExtended(), y.SignExtended())
		}
	case !pred.IsFloat() && kind.IsPointer():
		return func(m *memory.Model, x, y value.Value) bool { return comparePointers(m, pred, x, y) }
	}
	err := fmt.Errorf("%w: compare %s on %s", ir.ErrNoSuchOperator, pred, kind)
	return func(*memory.Model, value.Value, value.Value) bool { panic(err) }
}

// icmp evaluates an integer predicate given both the unsigned and the signed
// view of the operands.
func icmp(pred ir.Predicate, ux, uy uint64, sx, sy int64) bool {
	switch pred {
	case ir.ICmpEQ:
		return ux == uy
	case ir.ICmpNE:
		return ux != uy
	case ir.ICmpUGT:
		return ux > uy
	case ir.ICmpUGE:
		return ux >= uy
	case ir.ICmpULT:
		return ux < uy
	case ir.ICmpULE:
		return ux <= uy
	case ir.ICmpSGT:
		return sx > sy
	case ir.ICmpSGE:
		return sx >= sy
	case ir.ICmpSLT:
		return sx < sy
	case ir.ICmpSLE:
		return sx <= sy
	}
	panic(fmt.Errorf("%w: icmp %s", ir.ErrNoSuchOperator, pred))
}

// fcmp evaluates an ordered (O*) or unordered (U*) float predicate.
func fcmp(pred ir.Predicate, x, y float64) bool {
	unordered := x != x || y != y
	switch pred {
	case ir.FCmpFalse:
		return false
	case ir.FCmpOEQ:
		return x == y
	case ir.FCmpOGT:
		return x > y
	case ir.FCmpOGE:
		return x >= y
	case ir.FCmpOLT:
		return x < y
	case ir.FCmpOLE:
		return x <= y
	case ir.FCmpONE:
		return !unordered && x != y
	case ir.FCmpORD:
		return !unordered
	case ir.FCmpUNO:
		return unordered
	case ir.FCmpUEQ:
		return unordered || x == y
	case ir.FCmpUGT:
		return unordered || x > y
	case ir.FCmpUGE:
		return unordered || x >= y
	case ir.FCmpULT:
		return unordered || x < y
	case ir.FCmpULE:
		return unordered || x <= y
	case ir.FCmpUNE:
		return x != y
	}
	return true
}

// comparePointers compares native pointers by address and managed pointers
// into the same object by offset. Handle addresses are resolved first, so a
// handle and the managed pointer it names are equal. Pointers into different
// objects are never equal and have no order.
func comparePointers(m *memory.Model, pred ir.Predicate, x, y value.Value) bool {
	x, y = resolveHandle(m, x), resolveHandle(m, y)
	switch {
	case x.Kind() == value.KindNativePointer && y.Kind() == value.KindNativePointer:
		return icmp(pred, x.Bits(), y.Bits(), int64(x.Bits()), int64(y.Bits()))
	case x.Kind() == value.KindManagedPointer && y.Kind() == value.KindManagedPointer &&
		x.Managed().Owner == y.Managed().Owner:
		ox, oy := x.Managed().Offset, y.Managed().Offset
		return icmp(pred, uint64(ox), uint64(oy), ox, oy)
	}
	switch pred {
	case ir.ICmpEQ:
		return false
	case ir.ICmpNE:
		return true
	}
	panic(fmt.Errorf("%w: icmp %s %s, %s", ErrInvalidPointerComparison, pred, x, y))
}

func resolveHandle(m *memory.Model, p value.Value) value.Value {
	if p.Kind() == value.KindNativePointer && p.Native().IsAutoDerefHandle() {
		if mp, err := m.Handles.Resolve(p.Native()); err == nil {
			return value.Managed(mp)
		}
	}
	return p
}

type selectNode struct {
	definition
	cond, x, y operand
}

func (n *selectNode) exec(_ *callEngine, fr *frame) {
	c, x, y := n.cond.eval(fr), n.x.eval(fr), n.y.eval(fr)
	if c.Kind() != value.KindVector {
		if c.I1() {
			fr.slots[n.dst] = x
		} else {
			fr.slots[n.dst] = y
		}
		return
	}
	cv, xv, yv := c.Vector(), x.Vector(), y.Vector()
	lanes := make([]value.Value, cv.Len())
	for i := range lanes {
		if cv.Lane(i).I1() {
			lanes[i] = xv.Lane(i)
		} else {
			lanes[i] = yv.Lane(i)
		}
	}
	fr.slots[n.dst] = vectorOf(xv.Elem(), lanes)
}
