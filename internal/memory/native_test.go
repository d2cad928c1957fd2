package memory

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageConsts(t *testing.T) {
	require.Equal(t, PageSize, uint64(1)<<PageSizeInBits)
	require.Equal(t, PageSize, uint64(1<<16))
}

func TestNewNativeMemory_Limit(t *testing.T) {
	require.Equal(t, uint64(DefaultLimit), NewNativeMemory(0).Limit())
	require.Equal(t, PageSize, NewNativeMemory(PageSize+100).Limit())
}

func TestNativeMemory_Grow(t *testing.T) {
	m := NewNativeMemory(10 * PageSize)

	prev, ok := m.Grow(5)
	require.True(t, ok)
	require.Equal(t, uint64(0), prev)
	require.Equal(t, 5*PageSize, m.Size())

	// Zero page grow is well-defined.
	prev, ok = m.Grow(0)
	require.True(t, ok)
	require.Equal(t, uint64(5), prev)

	_, ok = m.Grow(6)
	require.False(t, ok)
	require.Equal(t, 5*PageSize, m.Size())

	prev, ok = m.Grow(5)
	require.True(t, ok)
	require.Equal(t, uint64(5), prev)
	require.Equal(t, 10*PageSize, m.Size())
}

func TestNativeMemory_Allocate(t *testing.T) {
	m := NewNativeMemory(2 * PageSize)

	a, err := m.Allocate(3, 1)
	require.NoError(t, err)
	require.NotZero(t, a)
	require.Equal(t, PageSize, m.Size())

	b, err := m.Allocate(8, 8)
	require.NoError(t, err)
	require.Zero(t, uint64(b)%8)
	require.True(t, uint64(b) >= uint64(a)+3)

	// Crossing a page boundary grows memory.
	c, err := m.Allocate(PageSize, 16)
	require.NoError(t, err)
	require.Equal(t, 2*PageSize, m.Size())
	require.Zero(t, uint64(c)%16)

	_, err = m.Allocate(PageSize, 1)
	require.ErrorIs(t, err, ErrOutOfMemory)
	require.Contains(t, err.Error(), "128 Ki limit")
}

func TestNativeMemory_ReadWrite(t *testing.T) {
	m := NewNativeMemory(0)
	_, ok := m.Grow(1)
	require.True(t, ok)
	end := m.Size()

	require.True(t, m.WriteByte(0, 0xfe))
	v8, ok := m.ReadByte(0)
	require.True(t, ok)
	require.Equal(t, byte(0xfe), v8)

	require.True(t, m.WriteUint16Le(2, 0xbeef))
	v16, ok := m.ReadUint16Le(2)
	require.True(t, ok)
	require.Equal(t, uint16(0xbeef), v16)

	require.True(t, m.WriteUint32Le(4, 0xdeadbeef))
	v32, ok := m.ReadUint32Le(4)
	require.True(t, ok)
	require.Equal(t, uint32(0xdeadbeef), v32)
	lo, _ := m.ReadByte(4)
	require.Equal(t, byte(0xef), lo, "little endian")

	require.True(t, m.WriteUint64Le(8, math.MaxUint64-1))
	v64, ok := m.ReadUint64Le(8)
	require.True(t, ok)
	require.Equal(t, uint64(math.MaxUint64-1), v64)

	require.True(t, m.WriteFloat32Le(16, float32(math.Inf(-1))))
	f32, ok := m.ReadFloat32Le(16)
	require.True(t, ok)
	require.True(t, math.IsInf(float64(f32), -1))

	require.True(t, m.WriteFloat64Le(24, math.Pi))
	f64, ok := m.ReadFloat64Le(24)
	require.True(t, ok)
	require.Equal(t, math.Pi, f64)

	require.True(t, m.Write(32, []byte("abc")))
	b, ok := m.Read(32, 3)
	require.True(t, ok)
	require.Equal(t, []byte("abc"), b)
	b[0] = 'z'
	again, _ := m.Read(32, 1)
	require.Equal(t, []byte("a"), again, "Read returns a copy")

	require.True(t, m.Copy(33, 32, 3))
	b, _ = m.Read(32, 4)
	require.Equal(t, []byte("aabc"), b)

	// Out of bounds, including offsets that would overflow.
	require.False(t, m.WriteUint32Le(end-3, 1))
	_, ok = m.ReadUint64Le(end - 7)
	require.False(t, ok)
	_, ok = m.Read(math.MaxUint64, 2)
	require.False(t, ok)
	require.False(t, m.Copy(0, end-1, 2))
	_, ok = m.ReadByte(end)
	require.False(t, ok)
}

func TestPagesToUnitOfBytes(t *testing.T) {
	tests := []struct {
		pages    uint64
		expected string
	}{
		{pages: 0, expected: "0 Ki"},
		{pages: 1, expected: "64 Ki"},
		{pages: 10, expected: "640 Ki"},
		{pages: 4096, expected: "256 Mi"},
		{pages: 65536, expected: "4 Gi"},
		{pages: 1 << 26, expected: "4 Ti"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.expected, func(t *testing.T) {
			require.Equal(t, tc.expected, PagesToUnitOfBytes(tc.pages))
		})
	}
}
