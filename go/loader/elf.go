package loader

import (
	"debug/elf"
	"io"

	"github.com/pkg/errors"

	"github.com/lunixbochs/elfload/go/models"
	"github.com/lunixbochs/elfload/go/models/cpu"
)

// segments are streamed to LoadData in chunks of this size
const chunkSize = 0x1000

type LoadState int

const (
	Unscanned LoadState = iota
	Scanned
	Loading
	Done
)

func (s LoadState) String() string {
	switch s {
	case Unscanned:
		return "unscanned"
	case Scanned:
		return "scanned"
	case Loading:
		return "loading"
	case Done:
		return "done"
	}
	return "unknown"
}

type ElfLoader struct {
	LoaderBase
	r      io.ReaderAt
	config *models.Config
	state  LoadState

	header *elfHeader
	symtab *sectHeader
	strtab *sectHeader
	// names already resolved since the last scan
	symCache map[string]uint64
}

// MatchElf reports whether r looks like an ELF executable this loader accepts.
func MatchElf(r io.ReaderAt) bool {
	_, err := readElfHeader(r)
	return err == nil
}

// NewElfLoader parses the header and section table of r. If r is an io.Closer,
// the loader owns it and Close closes it.
func NewElfLoader(r io.ReaderAt, config *models.Config) (models.Loader, error) {
	e := &ElfLoader{r: r, config: config}
	if err := e.Scan(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *ElfLoader) State() LoadState {
	return e.state
}

// Scan (re)reads the file header and section table, replacing all previously
// recorded state.
func (e *ElfLoader) Scan() error {
	e.state = Unscanned
	e.LoaderBase = LoaderBase{}
	e.header, e.symtab, e.strtab, e.symCache = nil, nil, nil, nil

	h, err := readElfHeader(e.r)
	if err != nil {
		return errors.Wrap(err, "failed to read ELF header")
	}
	var symtab, strtab *sectHeader
	var symtabIdx int
	sections := make(map[int]*sectHeader)
	for i := 0; i < int(h.Shnum); i++ {
		sh, err := h.readSectHeader(e.r, i)
		if err != nil {
			return errors.Wrapf(err, "failed to read section header %d", i)
		}
		sections[i] = sh
		if sh.Type == elf.SHT_STRTAB && i != int(h.Shstrndx) {
			strtab = sh
		}
		if sh.Type == elf.SHT_SYMTAB {
			symtab, symtabIdx = sh, i
		}
	}
	if symtab != nil {
		// prefer the table the symtab links to; the heuristic above picks the
		// wrong one when there are several string tables
		if linked, ok := sections[int(symtab.Link)]; ok && linked.Type == elf.SHT_STRTAB && int(symtab.Link) != int(h.Shstrndx) {
			if linked != strtab {
				e.config.Logf("elf: symtab %d links to string table %d", symtabIdx, symtab.Link)
			}
			strtab = linked
		}
	}
	e.header, e.symtab, e.strtab = h, symtab, strtab
	e.bits, e.byteOrder, e.entry = h.bits(), h.order(), h.Entry
	e.state = Scanned
	e.config.Logf("elf: %d-bit %s, entry %#x, %d program headers, %d sections, symtab=%t strtab=%t",
		h.bits(), h.order(), h.Entry, h.Phnum, h.Shnum, symtab != nil, strtab != nil)
	return nil
}

func (e *ElfLoader) Type() int {
	if e.header != nil && e.header.Type == elf.ET_EXEC {
		return EXEC
	}
	return UNKNOWN
}

// segmentProt maps ELF segment flags onto cpu.PROT_* bits.
func segmentProt(flags elf.ProgFlag) int {
	prot := cpu.PROT_NONE
	if flags&elf.PF_R != 0 {
		prot |= cpu.PROT_READ
	}
	if flags&elf.PF_W != 0 {
		prot |= cpu.PROT_WRITE
	}
	if flags&elf.PF_X != 0 {
		prot |= cpu.PROT_EXEC
	}
	return prot
}

// LoadFile rescans the file, then streams every non-empty PT_LOAD segment to cb.
// File contents arrive through cb.LoadData in chunks of up to 4096 bytes in
// ascending address order; any memory past the file contents is requested with a
// single cb.SetZero. The first read or callback error aborts the load.
func (e *ElfLoader) LoadFile(cb models.Callbacks) error {
	if cb == nil {
		panic("elf: LoadFile called with nil callbacks")
	}
	if err := e.Scan(); err != nil {
		return err
	}
	e.state = Loading
	h := e.header
	buf := make([]byte, chunkSize)
	for i := 0; i < int(h.Phnum); i++ {
		ph, err := h.readProgHeader(e.r, i)
		if err != nil {
			e.state = Scanned
			return errors.Wrapf(err, "failed to read program header %d", i)
		}
		if ph.Type != elf.PT_LOAD || ph.Memsz == 0 {
			continue
		}
		if err := e.loadSegment(cb, ph, buf); err != nil {
			e.state = Scanned
			return errors.Wrapf(err, "failed to load segment %d", i)
		}
	}
	e.state = Done
	return nil
}

func (e *ElfLoader) loadSegment(cb models.Callbacks, ph *progHeader, buf []byte) error {
	if ph.Filesz > ph.Memsz {
		return &FormatError{int64(ph.Off), "segment file size exceeds memory size", ph.Filesz}
	}
	if ph.Vaddr+ph.Memsz < ph.Vaddr {
		return &FormatError{int64(ph.Off), "segment wraps the address space", ph.Vaddr}
	}
	prot := segmentProt(ph.Flags)
	e.config.Logf("elf: load %#x-%#x (file %#x+%#x) %s", ph.Vaddr, ph.Vaddr+ph.Memsz, ph.Off, ph.Filesz, cpu.ProtString(prot))
	for done := uint64(0); done < ph.Filesz; {
		n := ph.Filesz - done
		if n > chunkSize {
			n = chunkSize
		}
		p := buf[:n]
		if err := readFull(e.r, p, int64(ph.Off+done)); err != nil {
			return err
		}
		if err := cb.LoadData(ph.Vaddr+done, p, prot); err != nil {
			return errors.Wrapf(err, "LoadData(%#x) failed", ph.Vaddr+done)
		}
		done += n
	}
	if ph.Memsz > ph.Filesz {
		if err := cb.SetZero(ph.Vaddr+ph.Filesz, ph.Memsz-ph.Filesz, prot); err != nil {
			return errors.Wrapf(err, "SetZero(%#x) failed", ph.Vaddr+ph.Filesz)
		}
	}
	e.span.Merge(&models.Segment{Start: ph.Vaddr, End: ph.Vaddr + ph.Memsz})
	return nil
}

func (e *ElfLoader) Close() error {
	if c, ok := e.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
