package interpreter

import (
	"fmt"

	"github.com/tetratelabs/bitzero/api"
	"github.com/tetratelabs/bitzero/experimental"
	"github.com/tetratelabs/bitzero/internal/value"
)

// node is one executable operation of a compiled block.
type node interface {
	api.NodeDefinition

	exec(ce *callEngine, fr *frame)

	// inputs returns the operand values node is about to consume. It is only
	// called when a listener is attached.
	inputs(fr *frame) []value.Value

	// output returns the value node produced, or value.Void.
	output(fr *frame) value.Value
}

// operand is a source of an input value: a frame slot or a constant.
type operand interface {
	eval(fr *frame) value.Value
}

type slotOperand int

func (o slotOperand) eval(fr *frame) value.Value { return fr.slots[o] }

type constOperand struct{ v value.Value }

func (o constOperand) eval(*frame) value.Value { return o.v }

// definition implements api.NodeDefinition and the listener plumbing shared
// by all nodes.
type definition struct {
	tag     api.Tag
	display string
	fn      string
	slots   []string
	ops     []operand
	// dst is the slot written by the node, or -1.
	dst int
}

func (d *definition) Tag() api.Tag     { return d.tag }
func (d *definition) String() string   { return d.display }
func (d *definition) Function() string { return d.fn }
func (d *definition) Slots() []string  { return d.slots }

func (d *definition) inputs(fr *frame) []value.Value {
	ret := make([]value.Value, len(d.ops))
	for i, o := range d.ops {
		ret[i] = o.eval(fr)
	}
	return ret
}

func (d *definition) output(fr *frame) value.Value {
	if d.dst < 0 {
		return value.Void
	}
	return fr.slots[d.dst]
}

// listenedNode notifies a listener around the execution of node.
type listenedNode struct {
	node
	l experimental.NodeListener
}

func (n *listenedNode) exec(ce *callEngine, fr *frame) {
	parent := ce.ctx
	ctx := n.l.Before(parent, n.node, n.node.inputs(fr))
	ce.ctx = ctx
	done := false
	defer func() {
		ce.ctx = parent
		if !done {
			r := recover()
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			n.l.After(ctx, n.node, value.Void, err)
			panic(r)
		}
	}()
	n.node.exec(ce, fr)
	done = true
	n.l.After(ctx, n.node, n.node.output(fr), nil)
}

// clearNode zeroes slots after their last use.
type clearNode struct {
	definition
	clear []int
}

func (n *clearNode) exec(_ *callEngine, fr *frame) {
	for _, s := range n.clear {
		fr.slots[s] = value.Void
	}
}

// blockNode marks the entry of a block for listeners. It is only emitted when
// listeners are attached.
type blockNode struct {
	definition
}

func (n *blockNode) exec(*callEngine, *frame) {}

// paramNode reports the parameters written to the frame at function entry.
type paramNode struct {
	definition
	params int
}

func (n *paramNode) exec(*callEngine, *frame) {}

func (n *paramNode) inputs(fr *frame) []value.Value {
	return append([]value.Value(nil), fr.slots[:n.params]...)
}
