package memory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tetratelabs/bitzero/internal/value"
)

// Model is the single entry point for memory accesses. An address is routed
// in this order:
//
//  1. a native address outside the handle range reads and writes the flat
//     native memory;
//  2. a native handle address is resolved through the handle table and then
//     accessed as a managed pointer;
//  3. a managed pointer accesses its owner at the requested width, falling
//     back to byte accesses when the owner does not support that width.
//
// Pointers stored to memory are always stored as native addresses. Managed
// pointers are exported to the handle table first, so loading them back
// yields a handle address that dereferences to the same object.
type Model struct {
	Native  *NativeMemory
	Handles *HandleTable
}

// NewModel returns a model whose native memory grows up to limit bytes.
func NewModel(limit uint64) *Model {
	return &Model{Native: NewNativeMemory(limit), Handles: NewHandleTable()}
}

// NewStackObject allocates a zeroed managed object of size bytes that can be
// materialized into the native memory of m.
func (m *Model) NewStackObject(size uint64) value.ManagedPointer {
	return value.ManagedPointer{Owner: NewByteOwnerIn(m.Native, size)}
}

// Allocate reserves size bytes of native memory aligned to align.
func (m *Model) Allocate(size, align uint64) (value.NativePointer, error) {
	return m.Native.Allocate(size, align)
}

// location is a resolved address: either a native byte offset or a managed
// pointer.
type location struct {
	native  uint64
	mp      value.ManagedPointer
	managed bool
}

func (m *Model) resolve(addr value.Value) (location, error) {
	switch addr.Kind() {
	case value.KindNativePointer:
		p := addr.Native()
		if p == value.NullPointer {
			return location{}, ErrNullPointer
		}
		if p.IsAutoDerefHandle() {
			mp, err := m.Handles.Resolve(p)
			if err != nil {
				return location{}, err
			}
			return location{mp: mp, managed: true}, nil
		}
		return location{native: uint64(p)}, nil
	case value.KindManagedPointer:
		return location{mp: addr.Managed(), managed: true}, nil
	}
	return location{}, fmt.Errorf("%w: %s", ErrNotPointer, addr)
}

// Offset returns addr displaced by delta bytes, keeping its kind.
func Offset(addr value.Value, delta int64) value.Value {
	if addr.Kind() == value.KindManagedPointer {
		return value.Managed(addr.Managed().Add(delta))
	}
	return value.Native(addr.Native() + value.NativePointer(delta))
}

func (m *Model) read(loc location, width int) (uint64, error) {
	if !loc.managed {
		v, ok := m.Native.ReadUint(loc.native, width)
		if !ok {
			return 0, fmt.Errorf("%w: read of %d bytes at 0x%x (size %d)", ErrOutOfBounds, width, loc.native, m.Native.Size())
		}
		return v, nil
	}
	o, off, err := ownerRange(loc.mp, uint64(width))
	if err != nil {
		return 0, err
	}
	v, err := o.ReadElement(off, width)
	if !errors.Is(err, value.ErrUnsupportedWidth) {
		return v, wrapOwnerError(err, loc.mp)
	}
	v = 0
	for i := 0; i < width; i++ {
		b, err := o.ReadElement(off+uint64(i), 1)
		if err != nil {
			return 0, wrapOwnerError(err, loc.mp)
		}
		v |= (b & 0xff) << (8 * i)
	}
	return v, nil
}

func (m *Model) write(loc location, width int, bits uint64) error {
	if !loc.managed {
		if !m.Native.WriteUint(loc.native, width, bits) {
			return fmt.Errorf("%w: write of %d bytes at 0x%x (size %d)", ErrOutOfBounds, width, loc.native, m.Native.Size())
		}
		return nil
	}
	o, off, err := ownerRange(loc.mp, uint64(width))
	if err != nil {
		return err
	}
	err = o.WriteElement(off, width, bits)
	if !errors.Is(err, value.ErrUnsupportedWidth) {
		return wrapOwnerError(err, loc.mp)
	}
	for i := 0; i < width; i++ {
		if err = o.WriteElement(off+uint64(i), 1, bits>>(8*i)&0xff); err != nil {
			return wrapOwnerError(err, loc.mp)
		}
	}
	return nil
}

// ownerRange bounds checks n bytes at mp.
func ownerRange(mp value.ManagedPointer, n uint64) (value.Owner, uint64, error) {
	if mp.Owner == nil {
		return nil, 0, ErrNullPointer
	}
	if mp.Offset < 0 || !mp.Owner.InBounds(uint64(mp.Offset), n) {
		return nil, 0, fmt.Errorf("%w: %d bytes at offset %d of %T (size %d)", ErrOutOfBounds, n, mp.Offset, mp.Owner, mp.Owner.Size())
	}
	return mp.Owner, uint64(mp.Offset), nil
}

func wrapOwnerError(err error, mp value.ManagedPointer) error {
	if err == nil || errors.Is(err, ErrOutOfBounds) || errors.Is(err, ErrReadOnly) {
		return err
	}
	return fmt.Errorf("%T at offset %d: %w", mp.Owner, mp.Offset, err)
}

// Load reads a scalar of the given kind at addr. Pointer kinds load a native
// address.
func (m *Model) Load(addr value.Value, kind value.Kind) (value.Value, error) {
	width := kind.ByteSize()
	if width == 0 {
		return value.Void, fmt.Errorf("cannot load %s", kind)
	}
	loc, err := m.resolve(addr)
	if err != nil {
		return value.Void, err
	}
	bits, err := m.read(loc, width)
	if err != nil {
		return value.Void, err
	}
	if kind.IsPointer() {
		return value.Native(value.NativePointer(bits)), nil
	}
	return value.FromBits(kind, bits), nil
}

// LoadVector reads n consecutive lanes of elem starting at addr.
func (m *Model) LoadVector(addr value.Value, elem value.Kind, n int) (value.Value, error) {
	width := int64(elem.ByteSize())
	if elem.IsPointer() {
		ptrs := make([]value.Value, n)
		for i := range ptrs {
			v, err := m.Load(Offset(addr, int64(i)*width), elem)
			if err != nil {
				return value.Void, err
			}
			ptrs[i] = v
		}
		return value.Vec(value.NewPointerVector(ptrs...)), nil
	}
	lanes := make([]uint64, n)
	for i := range lanes {
		v, err := m.Load(Offset(addr, int64(i)*width), elem)
		if err != nil {
			return value.Void, err
		}
		lanes[i] = v.Bits()
	}
	return value.Vec(value.NewVector(elem, lanes...)), nil
}

// Store writes v at addr. Vectors are stored lane by lane.
func (m *Model) Store(addr, v value.Value) error {
	if v.Kind() == value.KindVector {
		vec := v.Vector()
		width := int64(vec.Elem().ByteSize())
		for i := 0; i < vec.Len(); i++ {
			if err := m.Store(Offset(addr, int64(i)*width), vec.Lane(i)); err != nil {
				return err
			}
		}
		return nil
	}
	width := v.Kind().ByteSize()
	if width == 0 {
		return fmt.Errorf("cannot store %s", v.Kind())
	}
	bits, err := m.pointerBits(v)
	if err != nil {
		return err
	}
	loc, err := m.resolve(addr)
	if err != nil {
		return err
	}
	return m.write(loc, width, bits)
}

// pointerBits returns the bits to store for v. Managed pointers are exported.
func (m *Model) pointerBits(v value.Value) (uint64, error) {
	if v.Kind() != value.KindManagedPointer {
		return v.Bits(), nil
	}
	p, err := m.Handles.Export(v.Managed())
	return uint64(p), err
}

// Copy copies n bytes from src to dst, in any combination of native and
// managed addresses. Copying zero bytes does not touch either address.
func (m *Model) Copy(dst, src value.Value, n uint64) error {
	if n == 0 {
		return nil
	}
	s, err := m.resolve(src)
	if err != nil {
		return err
	}
	d, err := m.resolve(dst)
	if err != nil {
		return err
	}
	if !s.managed && !d.managed {
		if !m.Native.Copy(d.native, s.native, n) {
			return fmt.Errorf("%w: copy of %d bytes from 0x%x to 0x%x (size %d)", ErrOutOfBounds, n, s.native, d.native, m.Native.Size())
		}
		return nil
	}
	buf, err := m.readBytes(s, n)
	if err != nil {
		return err
	}
	return m.writeBytes(d, buf)
}

// Fill sets n bytes at dst to b.
func (m *Model) Fill(dst value.Value, b byte, n uint64) error {
	if n == 0 {
		return nil
	}
	d, err := m.resolve(dst)
	if err != nil {
		return err
	}
	buf := make([]byte, n)
	if b != 0 {
		for i := range buf {
			buf[i] = b
		}
	}
	return m.writeBytes(d, buf)
}

func (m *Model) readBytes(loc location, n uint64) ([]byte, error) {
	if !loc.managed {
		b, ok := m.Native.Read(loc.native, n)
		if !ok {
			return nil, fmt.Errorf("%w: read of %d bytes at 0x%x (size %d)", ErrOutOfBounds, n, loc.native, m.Native.Size())
		}
		return b, nil
	}
	if _, _, err := ownerRange(loc.mp, n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	for i := range buf {
		b, err := m.read(location{mp: loc.mp.Add(int64(i)), managed: true}, 1)
		if err != nil {
			return nil, err
		}
		buf[i] = byte(b)
	}
	return buf, nil
}

func (m *Model) writeBytes(loc location, buf []byte) error {
	if !loc.managed {
		if !m.Native.Write(loc.native, buf) {
			return fmt.Errorf("%w: write of %d bytes at 0x%x (size %d)", ErrOutOfBounds, len(buf), loc.native, m.Native.Size())
		}
		return nil
	}
	if _, _, err := ownerRange(loc.mp, uint64(len(buf))); err != nil {
		return err
	}
	for i, b := range buf {
		if err := m.write(location{mp: loc.mp.Add(int64(i)), managed: true}, 1, uint64(b)); err != nil {
			return err
		}
	}
	return nil
}

// MaterializeToNative returns the native address of mp. It fails with
// ErrMaterialization when the owner has no byte-addressable backing.
func (m *Model) MaterializeToNative(mp value.ManagedPointer) (value.NativePointer, error) {
	no, ok := mp.Owner.(value.NativeOwner)
	if !ok {
		return 0, fmt.Errorf("%w: %T", ErrMaterialization, mp.Owner)
	}
	base, err := no.Materialize(0)
	if err != nil {
		if errors.Is(err, ErrMaterialization) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", ErrMaterialization, err)
	}
	return base + value.NativePointer(mp.Offset), nil
}

// ToNative returns a native address for any pointer: native pointers as is,
// materializable managed pointers by materializing, and the others as handle
// addresses.
func (m *Model) ToNative(p value.Value) (value.NativePointer, error) {
	switch p.Kind() {
	case value.KindNativePointer:
		return p.Native(), nil
	case value.KindManagedPointer:
		if native, err := m.MaterializeToNative(p.Managed()); err == nil {
			return native, nil
		}
		return m.Handles.Export(p.Managed())
	}
	return 0, fmt.Errorf("%w: %s", ErrNotPointer, p)
}

// ReadString reads the NUL-terminated string at addr. Text owners answer
// directly; everything else is scanned byte by byte.
func (m *Model) ReadString(addr value.Value) (string, error) {
	loc, err := m.resolve(addr)
	if err != nil {
		return "", err
	}
	if !loc.managed {
		end, ok := m.Native.IndexByte(loc.native, 0)
		if !ok {
			return "", fmt.Errorf("%w: unterminated string at 0x%x", ErrOutOfBounds, loc.native)
		}
		b, _ := m.Native.Read(loc.native, end-loc.native)
		return string(b), nil
	}

	if to, ok := loc.mp.Owner.(value.TextOwner); ok && loc.mp.Offset >= 0 {
		if s, ok := to.ReadString(uint64(loc.mp.Offset)); ok {
			if i := strings.IndexByte(s, 0); i >= 0 {
				s = s[:i]
			}
			return s, nil
		}
	}
	var b strings.Builder
	for i := int64(0); ; i++ {
		c, err := m.read(location{mp: loc.mp.Add(i), managed: true}, 1)
		if err != nil {
			return "", err
		}
		if c == 0 {
			return b.String(), nil
		}
		b.WriteByte(byte(c))
	}
}
