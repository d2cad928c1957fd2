package memory

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/tetratelabs/bitzero/internal/value"
)

// ByteOwner is a managed object backed by a byte slice. Stack slots are
// ByteOwners. When created with a native memory it can be materialized: its
// bytes move to a native allocation once, and every later access, managed or
// native, sees the same bytes.
type ByteOwner struct {
	mux  sync.RWMutex
	size uint64
	data []byte
	mem  *NativeMemory
	// addr is the native address once materialized.
	addr value.NativePointer
}

// NewByteOwner returns an owner of a copy of data that cannot be materialized.
func NewByteOwner(data []byte) *ByteOwner {
	return &ByteOwner{size: uint64(len(data)), data: append([]byte(nil), data...)}
}

// NewByteOwnerIn returns a zeroed owner of size bytes which can be
// materialized into mem.
func NewByteOwnerIn(mem *NativeMemory, size uint64) *ByteOwner {
	return &ByteOwner{size: size, data: make([]byte, size), mem: mem}
}

func (o *ByteOwner) Size() uint64 { return o.size }

func (o *ByteOwner) InBounds(offset, n uint64) bool {
	return offset <= o.size && n <= o.size-offset
}

func (o *ByteOwner) ReadElement(offset uint64, width int) (uint64, error) {
	if !o.InBounds(offset, uint64(width)) {
		return 0, ErrOutOfBounds
	}
	o.mux.RLock()
	defer o.mux.RUnlock()
	if o.addr != 0 {
		v, ok := o.mem.ReadUint(uint64(o.addr)+offset, width)
		if !ok {
			return 0, ErrOutOfBounds
		}
		return v, nil
	}
	b := o.data[offset:]
	switch width {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		return binary.LittleEndian.Uint64(b), nil
	}
	return 0, value.ErrUnsupportedWidth
}

func (o *ByteOwner) WriteElement(offset uint64, width int, bits uint64) error {
	if !o.InBounds(offset, uint64(width)) {
		return ErrOutOfBounds
	}
	o.mux.Lock()
	defer o.mux.Unlock()
	if o.addr != 0 {
		if !o.mem.WriteUint(uint64(o.addr)+offset, width, bits) {
			return ErrOutOfBounds
		}
		return nil
	}
	b := o.data[offset:]
	switch width {
	case 1:
		b[0] = byte(bits)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(bits))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(bits))
	case 8:
		binary.LittleEndian.PutUint64(b, bits)
	default:
		return value.ErrUnsupportedWidth
	}
	return nil
}

// Materialize implements value.NativeOwner.
func (o *ByteOwner) Materialize(offset uint64) (value.NativePointer, error) {
	o.mux.Lock()
	defer o.mux.Unlock()
	if o.addr == 0 {
		if o.mem == nil {
			return 0, fmt.Errorf("%w: byte object of %d bytes", ErrMaterialization, o.size)
		}
		addr, err := o.mem.Allocate(o.size, 16)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMaterialization, err)
		}
		o.mem.Write(uint64(addr), o.data)
		o.addr, o.data = addr, nil
	}
	return o.addr + value.NativePointer(offset), nil
}

// Bytes returns a copy of the current contents.
func (o *ByteOwner) Bytes() []byte {
	o.mux.RLock()
	defer o.mux.RUnlock()
	if o.addr != 0 {
		b, _ := o.mem.Read(uint64(o.addr), o.size)
		return b
	}
	return append([]byte(nil), o.data...)
}

// ElementOwner is an array of fixed-width elements, such as a host slice of
// int32. Element-sized accesses at element boundaries are served directly;
// single bytes are extracted from their element. Any other width is
// unsupported and falls back to byte accesses in Model.
type ElementOwner struct {
	mux   sync.RWMutex
	width int
	elems []uint64
}

// NewElementOwner returns an owner of elems, each width bytes wide.
func NewElementOwner(width int, elems ...uint64) *ElementOwner {
	ret := &ElementOwner{width: width, elems: make([]uint64, len(elems))}
	mask := ^uint64(0)
	if width < 8 {
		mask = 1<<(8*uint(width)) - 1
	}
	for i, e := range elems {
		ret.elems[i] = e & mask
	}
	return ret
}

func (o *ElementOwner) Size() uint64 { return uint64(len(o.elems) * o.width) }

func (o *ElementOwner) InBounds(offset, n uint64) bool {
	size := o.Size()
	return offset <= size && n <= size-offset
}

// Element returns element i.
func (o *ElementOwner) Element(i int) uint64 {
	o.mux.RLock()
	defer o.mux.RUnlock()
	return o.elems[i]
}

func (o *ElementOwner) ReadElement(offset uint64, width int) (uint64, error) {
	if !o.InBounds(offset, uint64(width)) {
		return 0, ErrOutOfBounds
	}
	w := uint64(o.width)
	o.mux.RLock()
	defer o.mux.RUnlock()
	switch {
	case width == o.width && offset%w == 0:
		return o.elems[offset/w], nil
	case width == 1:
		return o.elems[offset/w] >> (8 * (offset % w)) & 0xff, nil
	}
	return 0, value.ErrUnsupportedWidth
}

func (o *ElementOwner) WriteElement(offset uint64, width int, bits uint64) error {
	if !o.InBounds(offset, uint64(width)) {
		return ErrOutOfBounds
	}
	w := uint64(o.width)
	o.mux.Lock()
	defer o.mux.Unlock()
	switch {
	case width == o.width && offset%w == 0:
		if width < 8 {
			bits &= 1<<(8*uint(width)) - 1
		}
		o.elems[offset/w] = bits
	case width == 1:
		shift := 8 * (offset % w)
		e := &o.elems[offset/w]
		*e = *e&^(0xff<<shift) | (bits&0xff)<<shift
	default:
		return value.ErrUnsupportedWidth
	}
	return nil
}

// StringOwner is read-only text. The terminating NUL is part of the object
// so C string scans stop inside it.
type StringOwner struct {
	s string
}

func NewStringOwner(s string) *StringOwner { return &StringOwner{s: s} }

func (o *StringOwner) Size() uint64 { return uint64(len(o.s)) + 1 }

func (o *StringOwner) InBounds(offset, n uint64) bool {
	size := o.Size()
	return offset <= size && n <= size-offset
}

func (o *StringOwner) ReadElement(offset uint64, width int) (uint64, error) {
	if !o.InBounds(offset, uint64(width)) {
		return 0, ErrOutOfBounds
	}
	var ret uint64
	for i := 0; i < width; i++ {
		if at := offset + uint64(i); at < uint64(len(o.s)) {
			ret |= uint64(o.s[at]) << (8 * i)
		}
	}
	return ret, nil
}

func (o *StringOwner) WriteElement(uint64, int, uint64) error { return ErrReadOnly }

// ReadString implements value.TextOwner.
func (o *StringOwner) ReadString(offset uint64) (string, bool) {
	if offset > uint64(len(o.s)) {
		return "", false
	}
	return o.s[offset:], true
}
