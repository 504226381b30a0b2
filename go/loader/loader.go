package loader

import (
	"encoding/binary"

	"github.com/lunixbochs/elfload/go/models"
)

// values returned by Loader.Type()
const (
	UNKNOWN = iota
	EXEC
	DYN
)

// LoaderBase holds the properties every loader reports once it has parsed its header.
type LoaderBase struct {
	bits      int
	byteOrder binary.ByteOrder
	entry     uint64
	span      models.Segment
}

func (l *LoaderBase) Bits() int {
	return l.bits
}

func (l *LoaderBase) ByteOrder() binary.ByteOrder {
	if l.byteOrder == nil {
		return binary.LittleEndian
	}
	return l.byteOrder
}

func (l *LoaderBase) Entry() uint64 {
	return l.entry
}

func (l *LoaderBase) Span() models.Segment {
	return l.span
}
