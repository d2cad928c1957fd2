package interpreter

import (
	"github.com/tetratelabs/bitzero/internal/value"
)

type brNode struct {
	definition
	target int
}

func (n *brNode) exec(_ *callEngine, fr *frame) { fr.next = n.target }

type condBrNode struct {
	definition
	cond          operand
	ifTrue, ifNot int
}

func (n *condBrNode) exec(_ *callEngine, fr *frame) {
	if n.cond.eval(fr).I1() {
		fr.next = n.ifTrue
	} else {
		fr.next = n.ifNot
	}
}

type switchCase struct {
	bits   uint64
	target int
}

type switchNode struct {
	definition
	cond  operand
	cases []switchCase
	def   int
}

func (n *switchNode) exec(_ *callEngine, fr *frame) {
	c := n.cond.eval(fr).Bits()
	for _, sc := range n.cases {
		if sc.bits == c {
			fr.next = sc.target
			return
		}
	}
	fr.next = n.def
}

type retNode struct {
	definition
	// x is nil for ret void.
	x operand
}

func (n *retNode) exec(_ *callEngine, fr *frame) {
	fr.ret = value.Void
	if n.x != nil {
		fr.ret = n.x.eval(fr)
	}
	fr.next = -1
}

func (n *retNode) output(fr *frame) value.Value { return fr.ret }

type unreachableNode struct {
	definition
}

func (n *unreachableNode) exec(*callEngine, *frame) { panic(ErrUnreachable) }

// phiNode assigns all phis at the head of a block at once: every incoming
// value is read before any slot is written.
type phiNode struct {
	definition
	dsts []int
	// incoming holds, per predecessor block, one operand per phi.
	incoming map[int][]operand
}

func (n *phiNode) exec(_ *callEngine, fr *frame) {
	ops := n.incoming[fr.prev]
	vals := make([]value.Value, len(ops))
	for i, o := range ops {
		vals[i] = o.eval(fr)
	}
	for i, v := range vals {
		fr.slots[n.dsts[i]] = v
	}
}

func (n *phiNode) inputs(fr *frame) []value.Value {
	ops := n.incoming[fr.prev]
	ret := make([]value.Value, len(ops))
	for i, o := range ops {
		ret[i] = o.eval(fr)
	}
	return ret
}

func (n *phiNode) output(fr *frame) value.Value {
	if len(n.dsts) == 1 {
		return fr.slots[n.dsts[0]]
	}
	return value.Void
}

type callNode struct {
	definition
	// callee is set for direct calls; target is evaluated otherwise.
	callee *Function
	target operand
	args   []operand
}

func (n *callNode) exec(ce *callEngine, fr *frame) {
	f := n.callee
	if f == nil {
		f = ce.engine.functionAt(n.target.eval(fr))
	}
	args := make([]value.Value, len(n.args))
	for i, a := range n.args {
		args[i] = a.eval(fr)
	}
	ret := ce.call(f, args)
	if n.dst >= 0 {
		fr.slots[n.dst] = ret
	}
}
