package models

import (
	"encoding/binary"
)

// Callbacks receives the memory image of an executable as it is loaded.
// All methods are invoked synchronously from LoadFile, in file order.
type Callbacks interface {
	// LoadData delivers initialized bytes at addr. p is only valid for the
	// duration of the call.
	LoadData(addr uint64, p []byte, prot int) error
	// SetZero asks for size zero bytes at addr.
	SetZero(addr, size uint64, prot int) error
	// SetRegister is reserved for loaders that carry register state.
	SetRegister(name string, p []byte) error
}

type Loader interface {
	Bits() int
	ByteOrder() binary.ByteOrder
	Entry() uint64
	Type() int
	// Span is the address range covered by the most recent LoadFile.
	Span() Segment
	LoadFile(cb Callbacks) error
	// FindSymbol returns ok == false if no symbol has the name.
	FindSymbol(name string) (addr uint64, ok bool, err error)
	Close() error
}
