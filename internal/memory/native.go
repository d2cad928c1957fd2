package memory

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/tetratelabs/bitzero/internal/value"
)

const (
	// PageSize is the unit by which native memory grows: 2^16 = 65536 bytes.
	PageSize = uint64(65536)
	// PageSizeInBits satisfies the relation: "1 << PageSizeInBits == PageSize".
	PageSizeInBits = 16

	// DefaultLimit caps native memory when no limit is configured.
	DefaultLimit = 256 << 20

	// firstAddress reserves the low addresses so no allocation is null.
	firstAddress = 16
)

// NativeMemory is the flat little-endian address space. Address zero is never
// handed out by Allocate. Accesses take the read lock; growth takes the write
// lock, so a reader never observes a buffer being replaced.
type NativeMemory struct {
	mux    sync.RWMutex
	buffer []byte
	next   uint64
	limit  uint64
}

// NewNativeMemory returns an empty memory that grows up to limit bytes,
// rounded down to a page. Zero means DefaultLimit.
func NewNativeMemory(limit uint64) *NativeMemory {
	if limit == 0 {
		limit = DefaultLimit
	}
	if ceiling := uint64(value.HandleBit); limit > ceiling {
		limit = ceiling
	}
	return &NativeMemory{next: firstAddress, limit: limit &^ (PageSize - 1)}
}

// Size returns the number of addressable bytes.
func (m *NativeMemory) Size() uint64 {
	m.mux.RLock()
	defer m.mux.RUnlock()
	return uint64(len(m.buffer))
}

// Limit returns the maximum size in bytes.
func (m *NativeMemory) Limit() uint64 { return m.limit }

// hasSize returns true if the buffer is large enough for n bytes at offset.
func (m *NativeMemory) hasSize(offset, n uint64) bool {
	size := uint64(len(m.buffer))
	return offset <= size && n <= size-offset
}

func (m *NativeMemory) ReadByte(offset uint64) (byte, bool) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if !m.hasSize(offset, 1) {
		return 0, false
	}
	return m.buffer[offset], true
}

func (m *NativeMemory) ReadUint16Le(offset uint64) (uint16, bool) {
	v, ok := m.ReadUint(offset, 2)
	return uint16(v), ok
}

func (m *NativeMemory) ReadUint32Le(offset uint64) (uint32, bool) {
	v, ok := m.ReadUint(offset, 4)
	return uint32(v), ok
}

func (m *NativeMemory) ReadUint64Le(offset uint64) (uint64, bool) {
	return m.ReadUint(offset, 8)
}

func (m *NativeMemory) ReadFloat32Le(offset uint64) (float32, bool) {
	v, ok := m.ReadUint32Le(offset)
	if !ok {
		return 0, false
	}
	return math.Float32frombits(v), true
}

func (m *NativeMemory) ReadFloat64Le(offset uint64) (float64, bool) {
	v, ok := m.ReadUint64Le(offset)
	if !ok {
		return 0, false
	}
	return math.Float64frombits(v), true
}

// ReadUint reads width bytes (1, 2, 4 or 8) at offset, zero extended.
func (m *NativeMemory) ReadUint(offset uint64, width int) (uint64, bool) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if !m.hasSize(offset, uint64(width)) {
		return 0, false
	}
	b := m.buffer[offset:]
	switch width {
	case 1:
		return uint64(b[0]), true
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), true
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), true
	case 8:
		return binary.LittleEndian.Uint64(b), true
	}
	return 0, false
}

// Read returns a copy of byteCount bytes at offset.
func (m *NativeMemory) Read(offset, byteCount uint64) ([]byte, bool) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if !m.hasSize(offset, byteCount) {
		return nil, false
	}
	return append([]byte(nil), m.buffer[offset:offset+byteCount]...), true
}

// IndexByte returns the offset of the first c at or after offset.
func (m *NativeMemory) IndexByte(offset uint64, c byte) (uint64, bool) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	for i := offset; i < uint64(len(m.buffer)); i++ {
		if m.buffer[i] == c {
			return i, true
		}
	}
	return 0, false
}

func (m *NativeMemory) WriteByte(offset uint64, v byte) bool {
	return m.WriteUint(offset, 1, uint64(v))
}

func (m *NativeMemory) WriteUint16Le(offset uint64, v uint16) bool {
	return m.WriteUint(offset, 2, uint64(v))
}

func (m *NativeMemory) WriteUint32Le(offset uint64, v uint32) bool {
	return m.WriteUint(offset, 4, uint64(v))
}

func (m *NativeMemory) WriteUint64Le(offset uint64, v uint64) bool {
	return m.WriteUint(offset, 8, v)
}

func (m *NativeMemory) WriteFloat32Le(offset uint64, v float32) bool {
	return m.WriteUint32Le(offset, math.Float32bits(v))
}

func (m *NativeMemory) WriteFloat64Le(offset uint64, v float64) bool {
	return m.WriteUint64Le(offset, math.Float64bits(v))
}

// WriteUint writes the low width bytes (1, 2, 4 or 8) of v at offset.
func (m *NativeMemory) WriteUint(offset uint64, width int, v uint64) bool {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if !m.hasSize(offset, uint64(width)) {
		return false
	}
	b := m.buffer[offset:]
	switch width {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, v)
	default:
		return false
	}
	return true
}

func (m *NativeMemory) Write(offset uint64, val []byte) bool {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if !m.hasSize(offset, uint64(len(val))) {
		return false
	}
	copy(m.buffer[offset:], val)
	return true
}

// Copy moves n bytes from src to dst. The ranges may overlap.
func (m *NativeMemory) Copy(dst, src, n uint64) bool {
	m.mux.RLock()
	defer m.mux.RUnlock()
	if !m.hasSize(dst, n) || !m.hasSize(src, n) {
		return false
	}
	copy(m.buffer[dst:dst+n], m.buffer[src:src+n])
	return true
}

// Allocate reserves size bytes aligned to align, a power of two, growing the
// memory as needed. The memory is zeroed. Allocations are never freed.
func (m *NativeMemory) Allocate(size, align uint64) (value.NativePointer, error) {
	if align == 0 {
		align = 1
	}
	m.mux.Lock()
	defer m.mux.Unlock()

	addr := (m.next + align - 1) &^ (align - 1)
	end := addr + size
	if end < addr || end > m.limit {
		return 0, fmt.Errorf("%w: %d bytes exceed the %s limit", ErrOutOfMemory, size, PagesToUnitOfBytes(m.limit>>PageSizeInBits))
	}
	if cur := uint64(len(m.buffer)); end > cur {
		pages := (end - cur + PageSize - 1) >> PageSizeInBits
		m.grow(pages)
	}
	m.next = end
	return value.NativePointer(addr), nil
}

// Grow extends the memory by newPages pages. It returns the previous size in
// pages, or false when the limit would be exceeded.
func (m *NativeMemory) Grow(newPages uint64) (uint64, bool) {
	m.mux.Lock()
	defer m.mux.Unlock()
	current := uint64(len(m.buffer)) >> PageSizeInBits
	if (current+newPages)<<PageSizeInBits > m.limit {
		return 0, false
	}
	m.grow(newPages)
	return current, true
}

func (m *NativeMemory) grow(pages uint64) {
	m.buffer = append(m.buffer, make([]byte, pages<<PageSizeInBits)...)
}

// PagesToUnitOfBytes converts pages to a human-readable form. Ex. 1 -> "64 Ki"
func PagesToUnitOfBytes(pages uint64) string {
	k := pages * 64
	if k < 1024 {
		return fmt.Sprintf("%d Ki", k)
	}
	m := k / 1024
	if m < 1024 {
		return fmt.Sprintf("%d Mi", m)
	}
	g := m / 1024
	if g < 1024 {
		return fmt.Sprintf("%d Gi", g)
	}
	return fmt.Sprintf("%d Ti", g/1024)
}
