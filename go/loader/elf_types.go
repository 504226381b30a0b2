package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

var elfMagic = []byte{0x7f, 0x45, 0x4c, 0x46}

const identSize = 16

// FormatError means the file is not something this loader accepts.
type FormatError struct {
	Off int64
	Msg string
	Val interface{}
}

func (e *FormatError) Error() string {
	msg := e.Msg
	if e.Val != nil {
		msg += fmt.Sprintf(" '%v'", e.Val)
	}
	return fmt.Sprintf("%s in record at byte %#x", msg, e.Off)
}

// ReadError is a failed or short read of the underlying file.
type ReadError struct {
	Off  int64
	Size int
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read of %d bytes at %#x failed: %v", e.Size, e.Off, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// wire layouts, as found after the 16-byte identification

type elfHeader32 struct {
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type elfHeader64 struct {
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type progHeader32 struct {
	Type   uint32
	Off    uint32
	Vaddr  uint32
	Paddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
	Align  uint32
}

type progHeader64 struct {
	Type   uint32
	Flags  uint32
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

type sectHeader32 struct {
	Name      uint32
	Type      uint32
	Flags     uint32
	Addr      uint32
	Off       uint32
	Size      uint32
	Link      uint32
	Info      uint32
	Addralign uint32
	Entsize   uint32
}

type sectHeader64 struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Off       uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

type symEntry32 struct {
	Name  uint32
	Value uint32
	Size  uint32
	Info  uint8
	Other uint8
	Shndx uint16
}

type symEntry64 struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

// canonical forms, widened on read so nothing past decoding cares about the class

type elfHeader struct {
	Class     elf.Class
	Data      elf.Data
	Type      elf.Type
	Machine   elf.Machine
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

func (h *elfHeader) is64() bool {
	return h.Class == elf.ELFCLASS64
}

func (h *elfHeader) bits() int {
	if h.is64() {
		return 64
	}
	return 32
}

func (h *elfHeader) order() binary.ByteOrder {
	if h.Data == elf.ELFDATA2MSB {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

type progHeader struct {
	Type   elf.ProgType
	Flags  elf.ProgFlag
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

type sectHeader struct {
	Name      uint32
	Type      elf.SectionType
	Flags     uint64
	Addr      uint64
	Off       uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

type symEntry struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

func (s *symEntry) Type() elf.SymType {
	return elf.ST_TYPE(s.Info)
}

// readFull reads exactly len(p) bytes at off.
func readFull(r io.ReaderAt, p []byte, off int64) error {
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &ReadError{Off: off, Size: len(p), Err: err}
}

// unpackAt decodes the struct i from off in the given byte order.
func unpackAt(r io.ReaderAt, i interface{}, off int64, order binary.ByteOrder) error {
	size, err := struc.Sizeof(i)
	if err != nil {
		return errors.Wrap(err, "struc.Sizeof() failed")
	}
	buf := make([]byte, size)
	if err := readFull(r, buf, off); err != nil {
		return err
	}
	return errors.Wrap(struc.UnpackWithOrder(bytes.NewReader(buf), i, order), "struc.Unpack() failed")
}

// readElfHeader reads and validates the file header. It rejects anything that
// is not an ELF32/ELF64 executable in either byte order.
func readElfHeader(r io.ReaderAt) (*elfHeader, error) {
	var ident [identSize]byte
	if err := readFull(r, ident[:], 0); err != nil {
		return nil, err
	}
	if !bytes.Equal(ident[:4], elfMagic) {
		return nil, &FormatError{0, "bad magic number", ident[:4]}
	}
	h := &elfHeader{
		Class: elf.Class(ident[elf.EI_CLASS]),
		Data:  elf.Data(ident[elf.EI_DATA]),
	}
	if h.Class != elf.ELFCLASS32 && h.Class != elf.ELFCLASS64 {
		return nil, &FormatError{int64(elf.EI_CLASS), "unknown ELF class", h.Class}
	}
	if h.Data != elf.ELFDATA2LSB && h.Data != elf.ELFDATA2MSB {
		return nil, &FormatError{int64(elf.EI_DATA), "unknown ELF data encoding", h.Data}
	}
	order := h.order()
	if h.is64() {
		var raw elfHeader64
		if err := unpackAt(r, &raw, identSize, order); err != nil {
			return nil, err
		}
		h.Type = elf.Type(raw.Type)
		h.Machine = elf.Machine(raw.Machine)
		h.Version = raw.Version
		h.Entry = raw.Entry
		h.Phoff = raw.Phoff
		h.Shoff = raw.Shoff
		h.Flags = raw.Flags
		h.Ehsize = raw.Ehsize
		h.Phentsize = raw.Phentsize
		h.Phnum = raw.Phnum
		h.Shentsize = raw.Shentsize
		h.Shnum = raw.Shnum
		h.Shstrndx = raw.Shstrndx
	} else {
		var raw elfHeader32
		if err := unpackAt(r, &raw, identSize, order); err != nil {
			return nil, err
		}
		h.Type = elf.Type(raw.Type)
		h.Machine = elf.Machine(raw.Machine)
		h.Version = raw.Version
		h.Entry = uint64(raw.Entry)
		h.Phoff = uint64(raw.Phoff)
		h.Shoff = uint64(raw.Shoff)
		h.Flags = raw.Flags
		h.Ehsize = raw.Ehsize
		h.Phentsize = raw.Phentsize
		h.Phnum = raw.Phnum
		h.Shentsize = raw.Shentsize
		h.Shnum = raw.Shnum
		h.Shstrndx = raw.Shstrndx
	}
	if h.Type != elf.ET_EXEC {
		return nil, &FormatError{identSize, "not an executable", h.Type}
	}
	return h, nil
}

func (h *elfHeader) readProgHeader(r io.ReaderAt, i int) (*progHeader, error) {
	off := int64(h.Phoff) + int64(i)*int64(h.Phentsize)
	if h.is64() {
		var raw progHeader64
		if err := unpackAt(r, &raw, off, h.order()); err != nil {
			return nil, err
		}
		return &progHeader{
			Type:   elf.ProgType(raw.Type),
			Flags:  elf.ProgFlag(raw.Flags),
			Off:    raw.Off,
			Vaddr:  raw.Vaddr,
			Paddr:  raw.Paddr,
			Filesz: raw.Filesz,
			Memsz:  raw.Memsz,
			Align:  raw.Align,
		}, nil
	}
	var raw progHeader32
	if err := unpackAt(r, &raw, off, h.order()); err != nil {
		return nil, err
	}
	return &progHeader{
		Type:   elf.ProgType(raw.Type),
		Flags:  elf.ProgFlag(raw.Flags),
		Off:    uint64(raw.Off),
		Vaddr:  uint64(raw.Vaddr),
		Paddr:  uint64(raw.Paddr),
		Filesz: uint64(raw.Filesz),
		Memsz:  uint64(raw.Memsz),
		Align:  uint64(raw.Align),
	}, nil
}

func (h *elfHeader) readSectHeader(r io.ReaderAt, i int) (*sectHeader, error) {
	off := int64(h.Shoff) + int64(i)*int64(h.Shentsize)
	if h.is64() {
		var raw sectHeader64
		if err := unpackAt(r, &raw, off, h.order()); err != nil {
			return nil, err
		}
		return &sectHeader{
			Name:      raw.Name,
			Type:      elf.SectionType(raw.Type),
			Flags:     raw.Flags,
			Addr:      raw.Addr,
			Off:       raw.Off,
			Size:      raw.Size,
			Link:      raw.Link,
			Info:      raw.Info,
			Addralign: raw.Addralign,
			Entsize:   raw.Entsize,
		}, nil
	}
	var raw sectHeader32
	if err := unpackAt(r, &raw, off, h.order()); err != nil {
		return nil, err
	}
	return &sectHeader{
		Name:      raw.Name,
		Type:      elf.SectionType(raw.Type),
		Flags:     uint64(raw.Flags),
		Addr:      uint64(raw.Addr),
		Off:       uint64(raw.Off),
		Size:      uint64(raw.Size),
		Link:      raw.Link,
		Info:      raw.Info,
		Addralign: uint64(raw.Addralign),
		Entsize:   uint64(raw.Entsize),
	}, nil
}

func (h *elfHeader) readSymbol(r io.ReaderAt, symtab *sectHeader, i uint64) (*symEntry, error) {
	off := int64(symtab.Off + i*symtab.Entsize)
	if h.is64() {
		var raw symEntry64
		if err := unpackAt(r, &raw, off, h.order()); err != nil {
			return nil, err
		}
		return &symEntry{
			Name:  raw.Name,
			Info:  raw.Info,
			Other: raw.Other,
			Shndx: raw.Shndx,
			Value: raw.Value,
			Size:  raw.Size,
		}, nil
	}
	var raw symEntry32
	if err := unpackAt(r, &raw, off, h.order()); err != nil {
		return nil, err
	}
	return &symEntry{
		Name:  raw.Name,
		Info:  raw.Info,
		Other: raw.Other,
		Shndx: raw.Shndx,
		Value: uint64(raw.Value),
		Size:  uint64(raw.Size),
	}, nil
}
