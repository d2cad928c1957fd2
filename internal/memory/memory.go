// Package memory is the dual-mode memory model: a flat native address space
// and managed objects reached through an owner capability. Model routes each
// access by the kind of its address.
package memory

import "errors"

var (
	ErrOutOfBounds     = errors.New("out of bounds memory access")
	ErrNullPointer     = errors.New("null pointer dereference")
	ErrMaterialization = errors.New("managed object has no native representation")
	ErrOutOfMemory     = errors.New("out of native memory")
	ErrInvalidHandle   = errors.New("invalid handle address")
	ErrReadOnly        = errors.New("write to read-only object")
	ErrNotPointer      = errors.New("address is not a pointer")
)
