package memory

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/tetratelabs/bitzero/internal/value"
)

var (
	// ErrHandleTableFull is returned when every handle id is in use.
	ErrHandleTableFull = errors.New("handle table full")
	// ErrUnhashableOwner is returned when exporting a pointer whose owner
	// cannot be used as a map key, like a struct value holding a slice.
	ErrUnhashableOwner = errors.New("owner is not comparable")
)

type handleKey struct {
	owner  value.Owner
	offset int64
}

// HandleTable exports managed pointers as auto-deref native addresses. A
// handle is never released. Exporting a pointer that already has a handle
// returns that handle, even when two goroutines race to export it.
type HandleTable struct {
	mux     sync.RWMutex
	entries []value.ManagedPointer
	ids     map[handleKey]uint32
}

func NewHandleTable() *HandleTable {
	return &HandleTable{ids: map[handleKey]uint32{}}
}

// Len returns the number of exported handles.
func (t *HandleTable) Len() int {
	t.mux.RLock()
	defer t.mux.RUnlock()
	return len(t.entries)
}

// Export returns the handle address of mp.
func (t *HandleTable) Export(mp value.ManagedPointer) (value.NativePointer, error) {
	if typ := reflect.TypeOf(mp.Owner); typ != nil && !typ.Comparable() {
		return 0, fmt.Errorf("%w: %s", ErrUnhashableOwner, typ)
	}
	key := handleKey{owner: mp.Owner, offset: mp.Offset}

	t.mux.RLock()
	id, ok := t.ids[key]
	t.mux.RUnlock()
	if ok {
		return value.HandleAddress(id, 0), nil
	}

	t.mux.Lock()
	defer t.mux.Unlock()
	if id, ok = t.ids[key]; ok {
		return value.HandleAddress(id, 0), nil
	}
	if uint64(len(t.entries)) > uint64(value.MaxHandleID) {
		return 0, ErrHandleTableFull
	}
	id = uint32(len(t.entries))
	t.entries = append(t.entries, mp)
	t.ids[key] = id
	return value.HandleAddress(id, 0), nil
}

// Resolve translates a handle address back to the managed pointer it was
// exported for, displaced by the in-handle offset.
func (t *HandleTable) Resolve(p value.NativePointer) (value.ManagedPointer, error) {
	if !p.IsAutoDerefHandle() {
		return value.ManagedPointer{}, fmt.Errorf("%w: 0x%x", ErrInvalidHandle, uint64(p))
	}
	id := p.HandleID()
	t.mux.RLock()
	defer t.mux.RUnlock()
	if uint64(id) >= uint64(len(t.entries)) {
		return value.ManagedPointer{}, fmt.Errorf("%w: 0x%x (handle %d of %d)", ErrInvalidHandle, uint64(p), id, len(t.entries))
	}
	return t.entries[id].Add(int64(p.HandleOffset())), nil
}
