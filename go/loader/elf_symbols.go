package loader

import (
	"bytes"
	"debug/elf"
	"io"

	"github.com/pkg/errors"
)

// longest symbol name compared by FindSymbol
const maxSymbolName = 256

var MissingTable = errors.New("symbol metadata unavailable")

// FindSymbol returns the value of the first FUNC or OBJECT symbol named name,
// scanning the symbol table in order. ok is false if there is no such symbol.
// It fails with MissingTable if the file has no symbol table or string table.
func (e *ElfLoader) FindSymbol(name string) (uint64, bool, error) {
	if e.symtab == nil || e.strtab == nil {
		return 0, false, errors.WithStack(MissingTable)
	}
	if addr, ok := e.symCache[name]; ok {
		return addr, true, nil
	}
	symtab := e.symtab
	if symtab.Entsize == 0 {
		return 0, false, &FormatError{int64(symtab.Off), "symbol table has zero entry size", nil}
	}
	target := []byte(name)
	buf := make([]byte, maxSymbolName)
	count := symtab.Size / symtab.Entsize
	for i := uint64(0); i < count; i++ {
		sym, err := e.header.readSymbol(e.r, symtab, i)
		if err != nil {
			return 0, false, errors.Wrapf(err, "failed to read symbol %d", i)
		}
		if t := sym.Type(); t != elf.STT_FUNC && t != elf.STT_OBJECT {
			continue
		}
		symName, err := e.readName(buf, sym.Name)
		if err != nil {
			return 0, false, errors.Wrapf(err, "failed to read name of symbol %d", i)
		}
		if bytes.Equal(symName, target) {
			if e.symCache == nil {
				e.symCache = make(map[string]uint64)
			}
			e.symCache[name] = sym.Value
			e.config.Logf("elf: symbol %s = %#x", name, sym.Value)
			return sym.Value, true, nil
		}
	}
	return 0, false, nil
}

// readName reads a NUL-terminated name of at most len(buf) bytes from the string table.
func (e *ElfLoader) readName(buf []byte, off uint32) ([]byte, error) {
	pos := int64(e.strtab.Off) + int64(off)
	n, err := e.r.ReadAt(buf, pos)
	if n == 0 && err != nil || err != nil && err != io.EOF {
		return nil, &ReadError{Off: pos, Size: len(buf), Err: err}
	}
	p := buf[:n]
	if i := bytes.IndexByte(p, 0); i >= 0 {
		p = p[:i]
	}
	return p, nil
}
