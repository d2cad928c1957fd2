package interpreter

import "github.com/tetratelabs/bitzero/internal/ir"

// Liveness decides where frame slots die.
type Liveness interface {
	// DeadAfter returns, per block and instruction index, the values whose
	// last use is that instruction. Slots of those values are cleared right
	// after it runs.
	DeadAfter(f *ir.Function) [][][]ir.Value
}

// LastUse is the default Liveness. It only frees values whose uses are all
// in the defining block and none of them a phi; a value with no use dies
// right after its definition. Everything else lives until the function
// returns.
type LastUse struct{}

type useInfo struct {
	v       ir.Value
	block   int
	last    int
	escapes bool
}

func (LastUse) DeadAfter(f *ir.Function) [][][]ir.Value {
	infos := map[ir.Value]*useInfo{}
	var order []*useInfo
	define := func(v ir.Value, block, last int) {
		in := &useInfo{v: v, block: block, last: last}
		infos[v] = in
		order = append(order, in)
	}
	for _, p := range f.Params {
		define(p, 0, -1)
	}
	for b, blk := range f.Blocks {
		for i, inst := range blk.Insts {
			if inst.ID() >= 0 {
				define(inst, b, i)
			}
		}
	}

	for b, blk := range f.Blocks {
		for i, inst := range blk.Insts {
			_, phi := inst.(*ir.PhiInst)
			for _, op := range inst.Operands() {
				in, ok := infos[*op]
				if !ok {
					continue
				}
				if phi || in.block != b {
					in.escapes = true
				} else if i > in.last {
					in.last = i
				}
			}
		}
	}

	ret := make([][][]ir.Value, len(f.Blocks))
	for b, blk := range f.Blocks {
		ret[b] = make([][]ir.Value, len(blk.Insts))
	}
	for _, in := range order {
		if in.escapes || in.last < 0 {
			continue
		}
		ret[in.block][in.last] = append(ret[in.block][in.last], in.v)
	}
	return ret
}
