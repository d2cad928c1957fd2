package ir

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUndefinedValue is returned for a backward reference to a slot that does
// not exist, or a forward reference with no type to build a placeholder.
var ErrUndefinedValue = errors.New("undefined value")

// SymbolTable numbers values in definition order and resolves references to
// them in two phases: a reference to a slot not yet defined gets a
// placeholder, and every operand tracked against that placeholder is patched
// when the slot is defined.
type SymbolTable struct {
	values  []Value
	pending map[uint32]*pendingSlot
}

type pendingSlot struct {
	ph   *placeholder
	uses []*Value
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{pending: map[uint32]*pendingSlot{}}
}

// Len returns the number of defined slots, which is also the next slot.
func (t *SymbolTable) Len() uint32 { return uint32(len(t.values)) }

// At returns the value of a defined slot.
func (t *SymbolTable) At(slot uint32) (Value, bool) {
	if slot < t.Len() {
		return t.values[slot], true
	}
	return nil, false
}

// Get returns the value of slot, or a placeholder of type typ when the slot
// is not defined yet. typ may be nil only for defined slots.
func (t *SymbolTable) Get(slot uint32, typ *Type) (Value, error) {
	if v, ok := t.At(slot); ok {
		return v, nil
	}
	if p, ok := t.pending[slot]; ok {
		return p.ph, nil
	}
	if typ == nil {
		return nil, fmt.Errorf("%w: slot %d (defined: %d)", ErrUndefinedValue, slot, t.Len())
	}
	p := &pendingSlot{ph: &placeholder{typ: typ, slot: slot}}
	t.pending[slot] = p
	return p.ph, nil
}

// Track registers dst for patching if it holds a placeholder.
func (t *SymbolTable) Track(dst *Value) {
	if ph, ok := (*dst).(*placeholder); ok {
		if p, ok := t.pending[ph.slot]; ok {
			p.uses = append(p.uses, dst)
		}
	}
}

// Ref stores the value of slot into dst and tracks it.
func (t *SymbolTable) Ref(slot uint32, typ *Type, dst *Value) error {
	v, err := t.Get(slot, typ)
	if err != nil {
		return err
	}
	*dst = v
	t.Track(dst)
	return nil
}

// Define assigns v to the next slot, patches its dependents and returns the
// slot.
func (t *SymbolTable) Define(v Value) uint32 {
	slot := t.Len()
	t.values = append(t.values, v)
	if p, ok := t.pending[slot]; ok {
		for _, dst := range p.uses {
			*dst = v
		}
		delete(t.pending, slot)
	}
	return slot
}

// Unresolved returns the slots referenced but never defined, in order.
func (t *SymbolTable) Unresolved() []uint32 {
	ret := make([]uint32, 0, len(t.pending))
	for slot := range t.pending {
		ret = append(ret, slot)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

// Truncate drops every slot from n on, including pending ones. It is used to
// discard function-local values.
func (t *SymbolTable) Truncate(n uint32) {
	if n < t.Len() {
		for i := n; i < t.Len(); i++ {
			t.values[i] = nil
		}
		t.values = t.values[:n]
	}
	for slot := range t.pending {
		if slot >= n {
			delete(t.pending, slot)
		}
	}
}
