package value

import "errors"

// NativePointer is a byte address into the flat native address space.
//
// Addresses with HandleBit set are auto-deref handles: they were exported to
// a caller outside the interpreter and must be translated back through the
// handle table before any byte access. The low 32 bits of a handle address
// are the byte offset inside the handle and the bits between are the handle
// id.
type NativePointer uint64

const (
	HandleBit        NativePointer = 1 << 62
	handleOffsetBits               = 32
	handleOffsetMask NativePointer = 1<<handleOffsetBits - 1
	handleIDMask     NativePointer = (HandleBit - 1) &^ handleOffsetMask
	MaxHandleID                    = uint32(handleIDMask >> handleOffsetBits)
	MaxHandleOffset                = uint32(handleOffsetMask)
	NullPointer      NativePointer = 0
)

// HandleAddress encodes the auto-deref address of offset inside handle id.
func HandleAddress(id, offset uint32) NativePointer {
	return HandleBit | NativePointer(id)<<handleOffsetBits | NativePointer(offset)
}

// IsAutoDerefHandle reports whether p lies in the reserved handle range.
func (p NativePointer) IsAutoDerefHandle() bool {
	return p&HandleBit != 0
}

// HandleID is only meaningful when IsAutoDerefHandle is true.
func (p NativePointer) HandleID() uint32 {
	return uint32((p & handleIDMask) >> handleOffsetBits)
}

// HandleOffset is only meaningful when IsAutoDerefHandle is true.
func (p NativePointer) HandleOffset() uint32 {
	return uint32(p & handleOffsetMask)
}

// ManagedPointer addresses memory owned by an external object. Offset
// arithmetic keeps the owner; a pointer may transiently point outside the
// owner, bounds are checked at access.
type ManagedPointer struct {
	Owner  Owner
	Offset int64
}

// Equal is structural: same owner identity, same offset.
func (p ManagedPointer) Equal(o ManagedPointer) bool {
	return p.Owner == o.Owner && p.Offset == o.Offset
}

// Add returns p displaced by delta bytes within the same owner.
func (p ManagedPointer) Add(delta int64) ManagedPointer {
	return ManagedPointer{Owner: p.Owner, Offset: p.Offset + delta}
}

// ErrUnsupportedWidth is returned by an Owner that cannot serve an element
// access at the requested width. The memory model then falls back to byte
// accesses.
var ErrUnsupportedWidth = errors.New("unsupported element width")

// Owner is the capability an embedder implements to back managed pointers.
// Implementations must be comparable since pointer equality is owner identity;
// pointer receivers are the usual choice.
type Owner interface {
	// Size returns the byte size of the object.
	Size() uint64

	// InBounds reports whether [offset, offset+n) lies inside the object.
	InBounds(offset, n uint64) bool

	// ReadElement reads width bytes (1, 2, 4 or 8) at offset, little endian,
	// zero extended.
	ReadElement(offset uint64, width int) (uint64, error)

	// WriteElement writes the low width bytes of bits at offset.
	WriteElement(offset uint64, width int, bits uint64) error
}

// TextOwner is an Owner that can produce a string directly, bypassing the
// byte-by-byte NUL scan.
type TextOwner interface {
	Owner

	// ReadString returns the text starting at offset. ok is false when the
	// owner cannot serve the request and the generic path must be used.
	ReadString(offset uint64) (s string, ok bool)
}

// NativeOwner is an Owner whose bytes can be made addressable natively.
type NativeOwner interface {
	Owner

	// Materialize returns the native address of offset, or an error when the
	// object has no byte-addressable backing.
	Materialize(offset uint64) (NativePointer, error)
}
