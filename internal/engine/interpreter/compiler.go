package interpreter

import (
	"fmt"

	"github.com/tetratelabs/bitzero/api"
	"github.com/tetratelabs/bitzero/experimental"
	"github.com/tetratelabs/bitzero/internal/ir"
	"github.com/tetratelabs/bitzero/internal/value"
)

// compiler lowers the blocks of one function into nodes.
type compiler struct {
	e         *ModuleEngine
	f         *Function
	names     []string
	listeners experimental.NodeListenerFactory
}

func compileFunction(e *ModuleEngine, f *Function, liveness Liveness, listeners experimental.NodeListenerFactory) error {
	irf := f.ir
	if len(irf.Blocks) == 0 {
		return fmt.Errorf("%w: function without blocks", ErrUnsupported)
	}

	// Slots are numbered by value id: parameters first, then instruction
	// results. Ids taken by function-local constants stay unused.
	n := len(irf.Params)
	for _, blk := range irf.Blocks {
		for _, inst := range blk.Insts {
			if id := inst.ID(); id >= n {
				n = id + 1
			}
		}
	}
	c := &compiler{e: e, f: f, names: make([]string, n), listeners: listeners}
	for _, p := range irf.Params {
		c.names[p.Index] = p.Ident()
	}
	for _, blk := range irf.Blocks {
		for _, inst := range blk.Insts {
			if id := inst.ID(); id >= 0 {
				c.names[id] = inst.Ident()
			}
		}
	}

	var dead [][][]ir.Value
	if liveness != nil {
		dead = liveness.DeadAfter(irf)
	}

	blocks := make([][]node, len(irf.Blocks))
	for b, blk := range irf.Blocks {
		var nodes []node
		if listeners != nil {
			nodes = c.append(nodes, &blockNode{definition: c.def(api.TagBlock, blockName(blk), -1)})
			if b == 0 && len(irf.Params) > 0 {
				pn := &paramNode{definition: c.def(api.TagSSAWrite, "params", -1), params: len(irf.Params)}
				pn.slots = c.names[:len(irf.Params)]
				nodes = c.append(nodes, pn)
			}
		}

		var phis []*ir.PhiInst
		var phiDead []ir.Value
		for i, inst := range blk.Insts {
			if phi, ok := inst.(*ir.PhiInst); ok {
				phis = append(phis, phi)
				if dead != nil {
					phiDead = append(phiDead, dead[b][i]...)
				}
				continue
			}
			if len(phis) > 0 {
				pn, err := c.phi(phis)
				if err != nil {
					return fmt.Errorf("bb%d: %w", b, err)
				}
				nodes = c.append(nodes, pn)
				nodes = c.appendClear(nodes, phiDead)
				phis, phiDead = nil, nil
			}

			nd, err := c.lower(inst)
			if err != nil {
				return fmt.Errorf("bb%d: %s: %w", b, inst, err)
			}
			nodes = c.append(nodes, nd)
			if dead != nil && !inst.IsTerminator() {
				nodes = c.appendClear(nodes, dead[b][i])
			}
		}
		if blk.Terminator() == nil {
			return fmt.Errorf("bb%d: %w: block without terminator", b, ErrUnsupported)
		}
		blocks[b] = nodes
	}
	f.blocks = blocks
	f.numSlots = n
	return nil
}

func blockName(blk *ir.Block) string {
	if blk.Name != "" {
		return blk.Name
	}
	return fmt.Sprintf("bb%d", blk.Index)
}

// def returns the common part of a node writing dst, or no slot when dst is
// negative.
func (c *compiler) def(tag api.Tag, display string, dst int, ops ...operand) definition {
	d := definition{tag: tag, display: display, fn: c.f.name, ops: ops, dst: dst}
	if dst >= 0 {
		d.slots = []string{c.names[dst]}
	}
	return d
}

// append adds n, wrapped in a listener when the factory returns one for it.
func (c *compiler) append(nodes []node, n node) []node {
	if c.listeners != nil {
		if l := c.listeners.NewNodeListener(n); l != nil {
			n = &listenedNode{node: n, l: l}
		}
	}
	return append(nodes, n)
}

func (c *compiler) appendClear(nodes []node, vals []ir.Value) []node {
	if len(vals) == 0 {
		return nodes
	}
	cn := &clearNode{definition: c.def(api.TagSSALifetimeEnd, "clear", -1)}
	for _, v := range vals {
		slot := c.slotOf(v)
		if slot < 0 {
			continue
		}
		cn.clear = append(cn.clear, slot)
		cn.slots = append(cn.slots, c.names[slot])
	}
	if len(cn.clear) == 0 {
		return nodes
	}
	return c.append(nodes, cn)
}

func (c *compiler) slotOf(v ir.Value) int {
	switch v := v.(type) {
	case *ir.Param:
		return v.Index
	case ir.Instruction:
		return v.ID()
	}
	return -1
}

func (c *compiler) operand(v ir.Value) (operand, error) {
	switch v := v.(type) {
	case *ir.Param:
		return slotOperand(v.Index), nil
	case ir.Instruction:
		if v.ID() < 0 {
			return nil, fmt.Errorf("%w: void operand %s", ErrUnsupported, v)
		}
		return slotOperand(v.ID()), nil
	}
	cv, err := c.e.constant(v)
	if err != nil {
		return nil, err
	}
	return constOperand{v: cv}, nil
}

func (c *compiler) operands(vals ...ir.Value) ([]operand, error) {
	ret := make([]operand, len(vals))
	for i, v := range vals {
		o, err := c.operand(v)
		if err != nil {
			return nil, err
		}
		ret[i] = o
	}
	return ret, nil
}

func (c *compiler) layoutOf(t *ir.Type) (layout, error) {
	kind, err := kindOf(t)
	if err != nil {
		return layout{}, err
	}
	l := layout{kind: kind}
	switch {
	case t.IsAggregate():
		l.aggregate, l.size = true, t.StoreSize()
	case t.IsVector():
		l.elem, _ = t.Elem.ValueKind()
		l.lanes = int(t.Len)
	}
	return l, nil
}

var binaryTags = map[ir.ArithmeticOperator]api.Tag{
	ir.OpAdd: api.TagAdd, ir.OpFAdd: api.TagAdd,
	ir.OpSub: api.TagSub, ir.OpFSub: api.TagSub,
	ir.OpMul: api.TagMul, ir.OpFMul: api.TagMul,
	ir.OpUDiv: api.TagDiv, ir.OpSDiv: api.TagDiv, ir.OpFDiv: api.TagDiv,
	ir.OpURem: api.TagRem, ir.OpSRem: api.TagRem, ir.OpFRem: api.TagRem,
	ir.OpShl:  api.TagShl,
	ir.OpLShr: api.TagShr, ir.OpAShr: api.TagShr,
	ir.OpAnd: api.TagAnd,
	ir.OpOr:  api.TagOr,
	ir.OpXor: api.TagXor,
}

func (c *compiler) lower(inst ir.Instruction) (node, error) {
	if t := inst.Type(); t != nil && inst.ID() >= 0 {
		if _, err := kindOf(t); err != nil {
			return nil, err
		}
	}
	dst := inst.ID()

	switch inst := inst.(type) {
	case *ir.BinaryInst:
		ops, err := c.operands(inst.X, inst.Y)
		if err != nil {
			return nil, err
		}
		return &binaryNode{
			definition: c.def(binaryTags[inst.Op], inst.Display(), dst, ops...),
			op:         inst.Op, flags: inst.Flags, x: ops[0], y: ops[1],
		}, nil

	case *ir.UnaryInst:
		x, err := c.operand(inst.X)
		if err != nil {
			return nil, err
		}
		return &fnegNode{definition: c.def(api.TagSub, "fneg", dst, x), x: x}, nil

	case *ir.CastInst:
		from, to := inst.X.Type(), inst.Type()
		fn, err := lookupCast(inst.Op, from, to)
		if err != nil {
			return nil, err
		}
		x, err := c.operand(inst.X)
		if err != nil {
			return nil, err
		}
		fromKind, _ := kindOf(from)
		toKind, _ := kindOf(to)
		n := &castNode{definition: c.def(api.TagCast, inst.Op.String(), dst, x), op: inst.Op, to: toKind, x: x}
		n.spec.Store(&castSpec{kind: fromKind, fn: fn})
		return n, nil

	case *ir.CmpInst:
		ops, err := c.operands(inst.X, inst.Y)
		if err != nil {
			return nil, err
		}
		tag := api.TagICmp
		if inst.Pred.IsFloat() {
			tag = api.TagFCmp
		}
		return &compareNode{
			definition: c.def(tag, inst.Opcode()+" "+inst.Pred.String(), dst, ops...),
			pred:       inst.Pred, x: ops[0], y: ops[1],
		}, nil

	case *ir.SelectInst:
		ops, err := c.operands(inst.Cond, inst.X, inst.Y)
		if err != nil {
			return nil, err
		}
		return &selectNode{definition: c.def(api.TagSelect, "select", dst, ops...), cond: ops[0], x: ops[1], y: ops[2]}, nil

	case *ir.ExtractElementInst:
		ops, err := c.operands(inst.Vec, inst.Index)
		if err != nil {
			return nil, err
		}
		return &extractElementNode{definition: c.def(api.TagExtractElement, inst.Opcode(), dst, ops...), vec: ops[0], idx: ops[1]}, nil

	case *ir.InsertElementInst:
		ops, err := c.operands(inst.Vec, inst.Elem, inst.Index)
		if err != nil {
			return nil, err
		}
		return &insertElementNode{
			definition: c.def(api.TagInsertElement, inst.Opcode(), dst, ops...),
			vec:        ops[0], elem: ops[1], idx: ops[2],
		}, nil

	case *ir.ExtractValueInst:
		agg, err := c.operand(inst.Agg)
		if err != nil {
			return nil, err
		}
		offset, elem, err := memberAt(inst.Agg.Type(), inst.Indices)
		if err != nil {
			return nil, err
		}
		l, err := c.layoutOf(elem)
		if err != nil {
			return nil, err
		}
		return &extractValueNode{definition: c.def(api.TagExtractValue, inst.Opcode(), dst, agg), agg: agg, offset: int64(offset), layout: l}, nil

	case *ir.InsertValueInst:
		ops, err := c.operands(inst.Agg, inst.Elem)
		if err != nil {
			return nil, err
		}
		offset, elem, err := memberAt(inst.Agg.Type(), inst.Indices)
		if err != nil {
			return nil, err
		}
		l, err := c.layoutOf(elem)
		if err != nil {
			return nil, err
		}
		return &insertValueNode{
			definition: c.def(api.TagInsertValue, inst.Opcode(), dst, ops...),
			agg:        ops[0], elem: ops[1],
			aggSize: inst.Agg.Type().StoreSize(), offset: int64(offset), layout: l,
		}, nil

	case *ir.AllocaInst:
		count, err := c.operand(inst.Count)
		if err != nil {
			return nil, err
		}
		return &allocaNode{definition: c.def(api.TagAlloca, "alloca", dst, count), count: count, elemSize: inst.Elem.StoreSize()}, nil

	case *ir.LoadInst:
		addr, err := c.operand(inst.Addr)
		if err != nil {
			return nil, err
		}
		l, err := c.layoutOf(inst.Type())
		if err != nil {
			return nil, err
		}
		return &loadNode{definition: c.def(api.TagLoad, "load", dst, addr), addr: addr, layout: l}, nil

	case *ir.StoreInst:
		ops, err := c.operands(inst.Val, inst.Addr)
		if err != nil {
			return nil, err
		}
		l, err := c.layoutOf(inst.Val.Type())
		if err != nil {
			return nil, err
		}
		return &storeNode{definition: c.def(api.TagStore, "store", -1, ops...), val: ops[0], addr: ops[1], layout: l}, nil

	case *ir.GEPInst:
		return c.gep(inst)

	case *ir.CallInst:
		return c.call(inst)

	case *ir.RetInst:
		d := c.def(api.TagRet, "ret", -1)
		if inst.X == nil {
			return &retNode{definition: d}, nil
		}
		x, err := c.operand(inst.X)
		if err != nil {
			return nil, err
		}
		d.ops = []operand{x}
		return &retNode{definition: d, x: x}, nil

	case *ir.BrInst:
		if inst.Cond == nil {
			if err := c.checkTarget(inst.True); err != nil {
				return nil, err
			}
			return &brNode{definition: c.def(api.TagBr, "br", -1), target: inst.True}, nil
		}
		if err := c.checkTarget(inst.True, inst.False); err != nil {
			return nil, err
		}
		cond, err := c.operand(inst.Cond)
		if err != nil {
			return nil, err
		}
		return &condBrNode{definition: c.def(api.TagBr, "br", -1, cond), cond: cond, ifTrue: inst.True, ifNot: inst.False}, nil

	case *ir.SwitchInst:
		cond, err := c.operand(inst.Cond)
		if err != nil {
			return nil, err
		}
		if err = c.checkTarget(inst.Default); err != nil {
			return nil, err
		}
		n := &switchNode{definition: c.def(api.TagSwitch, "switch", -1, cond), cond: cond, def: inst.Default}
		for _, sc := range inst.Cases {
			v, err := c.e.constant(sc.Value)
			if err != nil {
				return nil, err
			}
			if err = c.checkTarget(sc.Block); err != nil {
				return nil, err
			}
			n.cases = append(n.cases, switchCase{bits: v.Bits(), target: sc.Block})
		}
		return n, nil

	case *ir.UnreachableInst:
		return &unreachableNode{definition: c.def(api.TagUnreachable, "unreachable", -1)}, nil
	}
	return nil, fmt.Errorf("%w: instruction %s", ErrUnsupported, inst.Opcode())
}

func (c *compiler) checkTarget(blocks ...int) error {
	for _, b := range blocks {
		if b < 0 || b >= len(c.f.ir.Blocks) {
			return fmt.Errorf("%w: branch to bb%d", ir.ErrOperandType, b)
		}
	}
	return nil
}

// memberAt returns the byte offset and type of the member of t reached by
// indices.
func memberAt(t *ir.Type, indices []uint64) (uint64, *ir.Type, error) {
	var offset uint64
	for _, idx := range indices {
		switch t.Kind {
		case ir.TypeStruct:
			if idx >= uint64(len(t.Fields)) {
				return 0, nil, fmt.Errorf("%w: field %d of %s", ir.ErrOperandType, idx, t)
			}
		case ir.TypeArray:
			if idx >= t.Len {
				return 0, nil, fmt.Errorf("%w: element %d of %s", ir.ErrOperandType, idx, t)
			}
		default:
			return 0, nil, fmt.Errorf("%w: index into %s", ir.ErrOperandType, t)
		}
		var off uint64
		off, t = elementAt(t, int(idx))
		offset += off
	}
	return offset, t, nil
}

func (c *compiler) gep(inst *ir.GEPInst) (node, error) {
	if inst.Type().IsVector() {
		return nil, fmt.Errorf("%w: vector getelementptr", ErrUnsupported)
	}
	base, err := c.operand(inst.Base)
	if err != nil {
		return nil, err
	}
	ops := []operand{base}
	var steps []gepStep
	var folded int64
	add := func(idx ir.Value, scale int64) error {
		if k, ok := idx.(*ir.IntConst); ok {
			folded += value.FromBits(kindOfInt(k.Typ), k.Bits).SignExtended() * scale
			return nil
		}
		o, err := c.operand(idx)
		if err != nil {
			return err
		}
		ops = append(ops, o)
		steps = append(steps, gepStep{idx: o, scale: scale})
		return nil
	}

	t := inst.SourceElem
	for i, idx := range inst.Indices {
		if i == 0 {
			if err = add(idx, int64(t.StoreSize())); err != nil {
				return nil, err
			}
			continue
		}
		switch t.Kind {
		case ir.TypeStruct:
			k, ok := idx.(*ir.IntConst)
			if !ok || k.Bits >= uint64(len(t.Fields)) {
				return nil, fmt.Errorf("%w: struct index %s into %s", ir.ErrOperandType, idx.Ident(), t)
			}
			folded += int64(t.FieldOffset(int(k.Bits)))
			t = t.Fields[k.Bits]
		case ir.TypeArray, ir.TypeVector:
			if err = add(idx, int64(t.Elem.StoreSize())); err != nil {
				return nil, err
			}
			t = t.Elem
		default:
			return nil, fmt.Errorf("%w: index into %s", ir.ErrOperandType, t)
		}
	}
	if folded != 0 {
		steps = append(steps, gepStep{offset: folded})
	}
	return &gepNode{definition: c.def(api.TagGetElementPtr, "getelementptr", inst.ID(), ops...), base: base, steps: steps}, nil
}

// kindOfInt maps an integer type to its kind, treating wider integers as
// 64 bits.
func kindOfInt(t *ir.Type) value.Kind {
	if k, ok := t.ValueKind(); ok {
		return k
	}
	return value.KindI64
}

func (c *compiler) phi(phis []*ir.PhiInst) (node, error) {
	n := &phiNode{incoming: map[int][]operand{}}
	var slots []string
	for i, phi := range phis {
		if _, err := kindOf(phi.Type()); err != nil {
			return nil, err
		}
		n.dsts = append(n.dsts, phi.ID())
		slots = append(slots, c.names[phi.ID()])
		for _, in := range phi.Incoming {
			o, err := c.operand(in.Value)
			if err != nil {
				return nil, err
			}
			ops := n.incoming[in.Block]
			if ops == nil {
				ops = make([]operand, len(phis))
				n.incoming[in.Block] = ops
			}
			ops[i] = o
		}
	}
	for b, ops := range n.incoming {
		for i, o := range ops {
			if o == nil {
				return nil, fmt.Errorf("%w: %s has no value for bb%d", ir.ErrOperandType, phis[i].Ident(), b)
			}
		}
	}
	n.definition = c.def(api.TagPhi, "phi", -1)
	n.slots = slots
	return n, nil
}

func (c *compiler) call(inst *ir.CallInst) (node, error) {
	args, err := c.operands(inst.Args...)
	if err != nil {
		return nil, err
	}
	dst := inst.ID()
	n := &callNode{definition: c.def(api.TagCall, "call "+inst.Callee.Ident(), dst, args...), args: args}

	callee := inst.Callee
	for {
		a, ok := callee.(*ir.Alias)
		if !ok {
			break
		}
		callee = a.Aliasee
	}
	if f, ok := callee.(*ir.Function); ok {
		n.callee = c.e.byIR[f]
		return n, nil
	}
	target, err := c.operand(callee)
	if err != nil {
		return nil, err
	}
	if k, ok := target.(constOperand); ok && k.v.Kind() == value.KindNativePointer {
		if f, ok := c.e.byAddr[k.v.Native()]; ok {
			n.callee = f
			return n, nil
		}
	}
	n.target = target
	return n, nil
}
