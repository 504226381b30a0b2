package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/lunixbochs/struc"
)

type testSegment struct {
	typ   elf.ProgType
	flags elf.ProgFlag
	vaddr uint64
	data  []byte
	memsz uint64
}

type testSymbol struct {
	name  string
	value uint64
	typ   elf.SymType
}

// testElf describes a synthetic executable.
type testElf struct {
	class elf.Class
	order binary.ByteOrder
	typ   elf.Type
	entry uint64
	segs  []testSegment
	syms  []testSymbol

	noSymtab bool
	// keep .symtab but leave out its .strtab
	noStrtab bool
	// add a .dynstr after .strtab, which fools the last-STRTAB-wins rule
	decoyStrtab bool
	// leave the symtab sh_link at 0
	noLink bool
}

func (t *testElf) is64() bool {
	return t.class == elf.ELFCLASS64
}

func (t *testElf) sizes() (ehdr, phent, shent, syment int) {
	if t.is64() {
		return 64, 56, 64, 24
	}
	return 52, 32, 40, 16
}

type testSection struct {
	name    string
	typ     elf.SectionType
	data    []byte
	link    uint32
	entsize uint64
	off     uint64
}

func pack(order binary.ByteOrder, i interface{}) []byte {
	var buf bytes.Buffer
	if err := struc.PackWithOrder(&buf, i, order); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func strtab(names ...string) ([]byte, map[string]uint32) {
	buf := []byte{0}
	offs := make(map[string]uint32)
	for _, name := range names {
		if _, ok := offs[name]; ok {
			continue
		}
		offs[name] = uint32(len(buf))
		buf = append(buf, name...)
		buf = append(buf, 0)
	}
	return buf, offs
}

func (t *testElf) symtab(offs map[string]uint32) []byte {
	var buf bytes.Buffer
	// index 0 is the null symbol
	syms := append([]testSymbol{{}}, t.syms...)
	for _, s := range syms {
		info := elf.ST_INFO(elf.STB_GLOBAL, s.typ)
		name := offs[s.name]
		if s.name == "" {
			name = 0
			info = 0
		}
		if t.is64() {
			buf.Write(pack(t.order, &symEntry64{Name: name, Info: info, Shndx: 1, Value: s.value}))
		} else {
			buf.Write(pack(t.order, &symEntry32{Name: name, Info: info, Shndx: 1, Value: uint32(s.value)}))
		}
	}
	return buf.Bytes()
}

func (t *testElf) build() []byte {
	ehdrSize, phent, shent, syment := t.sizes()
	if t.order == nil {
		t.order = binary.LittleEndian
	}
	if t.typ == 0 {
		t.typ = elf.ET_EXEC
	}

	sections := []*testSection{{}}
	var names []string
	for _, s := range t.syms {
		names = append(names, s.name)
	}
	symstr, offs := strtab(names...)
	shstrIdx := len(sections)
	sections = append(sections, &testSection{name: ".shstrtab", typ: elf.SHT_STRTAB})
	if !t.noSymtab {
		var link uint32
		if !t.noStrtab {
			link = uint32(len(sections))
			sections = append(sections, &testSection{name: ".strtab", typ: elf.SHT_STRTAB, data: symstr})
		}
		if t.noLink {
			link = 0
		}
		sections = append(sections, &testSection{
			name: ".symtab", typ: elf.SHT_SYMTAB, data: t.symtab(offs),
			link: link, entsize: uint64(syment),
		})
	}
	if t.decoyStrtab {
		decoy := bytes.Repeat([]byte("decoy\x00"), len(symstr)/6+1)
		sections = append(sections, &testSection{name: ".dynstr", typ: elf.SHT_STRTAB, data: decoy})
	}
	var shnames []string
	for _, s := range sections[1:] {
		shnames = append(shnames, s.name)
	}
	shstr, shoffs := strtab(shnames...)
	sections[shstrIdx].data = shstr

	// layout: header, program headers, section contents, section headers, segment data
	phoff := uint64(ehdrSize)
	off := phoff + uint64(phent*len(t.segs))
	for _, s := range sections[1:] {
		s.off = off
		off += uint64(len(s.data))
	}
	off = (off + 7) &^ 7
	shoff := off
	off += uint64(shent * len(sections))
	segOffs := make([]uint64, len(t.segs))
	for i, s := range t.segs {
		off = (off + 15) &^ 15
		segOffs[i] = off
		off += uint64(len(s.data))
	}
	out := make([]byte, off)

	ident := out[:16]
	copy(ident, elfMagic)
	ident[elf.EI_CLASS] = byte(t.class)
	if t.order == binary.BigEndian {
		ident[elf.EI_DATA] = byte(elf.ELFDATA2MSB)
	} else {
		ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	}
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	if t.is64() {
		copy(out[16:], pack(t.order, &elfHeader64{
			Type: uint16(t.typ), Machine: uint16(elf.EM_X86_64), Version: 1, Entry: t.entry,
			Phoff: phoff, Shoff: shoff, Ehsize: uint16(ehdrSize),
			Phentsize: uint16(phent), Phnum: uint16(len(t.segs)),
			Shentsize: uint16(shent), Shnum: uint16(len(sections)), Shstrndx: uint16(shstrIdx),
		}))
	} else {
		copy(out[16:], pack(t.order, &elfHeader32{
			Type: uint16(t.typ), Machine: uint16(elf.EM_386), Version: 1, Entry: uint32(t.entry),
			Phoff: uint32(phoff), Shoff: uint32(shoff), Ehsize: uint16(ehdrSize),
			Phentsize: uint16(phent), Phnum: uint16(len(t.segs)),
			Shentsize: uint16(shent), Shnum: uint16(len(sections)), Shstrndx: uint16(shstrIdx),
		}))
	}
	for i, s := range t.segs {
		typ := s.typ
		if typ == 0 {
			typ = elf.PT_LOAD
		}
		var ph []byte
		if t.is64() {
			ph = pack(t.order, &progHeader64{
				Type: uint32(typ), Flags: uint32(s.flags), Off: segOffs[i], Vaddr: s.vaddr, Paddr: s.vaddr,
				Filesz: uint64(len(s.data)), Memsz: s.memsz, Align: 0x1000,
			})
		} else {
			ph = pack(t.order, &progHeader32{
				Type: uint32(typ), Flags: uint32(s.flags), Off: uint32(segOffs[i]), Vaddr: uint32(s.vaddr), Paddr: uint32(s.vaddr),
				Filesz: uint32(len(s.data)), Memsz: uint32(s.memsz), Align: 0x1000,
			})
		}
		copy(out[phoff+uint64(i*phent):], ph)
		copy(out[segOffs[i]:], s.data)
	}
	for i, s := range sections {
		copy(out[s.off:], s.data)
		if i == 0 {
			continue
		}
		var sh []byte
		if t.is64() {
			sh = pack(t.order, &sectHeader64{
				Name: shoffs[s.name], Type: uint32(s.typ), Off: s.off, Size: uint64(len(s.data)),
				Link: s.link, Addralign: 1, Entsize: s.entsize,
			})
		} else {
			sh = pack(t.order, &sectHeader32{
				Name: shoffs[s.name], Type: uint32(s.typ), Off: uint32(s.off), Size: uint32(len(s.data)),
				Link: s.link, Addralign: 1, Entsize: uint32(s.entsize),
			})
		}
		copy(out[shoff+uint64(i*shent):], sh)
	}
	return out
}

// testCall records one callback invocation.
type testCall struct {
	Op   string
	Addr uint64
	Size uint64
	Prot int
	Data []byte
}

type recorder struct {
	calls []testCall
	fail  error
}

func (r *recorder) LoadData(addr uint64, p []byte, prot int) error {
	r.calls = append(r.calls, testCall{"load", addr, uint64(len(p)), prot, append([]byte(nil), p...)})
	return r.fail
}

func (r *recorder) SetZero(addr, size uint64, prot int) error {
	r.calls = append(r.calls, testCall{"zero", addr, size, prot, nil})
	return r.fail
}

func (r *recorder) SetRegister(name string, p []byte) error {
	r.calls = append(r.calls, testCall{"reg:" + name, 0, uint64(len(p)), 0, append([]byte(nil), p...)})
	return r.fail
}

var testClasses = []struct {
	class elf.Class
	order binary.ByteOrder
}{
	{elf.ELFCLASS32, binary.LittleEndian},
	{elf.ELFCLASS32, binary.BigEndian},
	{elf.ELFCLASS64, binary.LittleEndian},
	{elf.ELFCLASS64, binary.BigEndian},
}
