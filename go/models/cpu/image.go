package cpu

import (
	"github.com/pkg/errors"
)

// largest single region an Image will back with memory
const MaxRegion = 1 << 30

// Image is an in-memory executable image. It implements models.Callbacks,
// so a loader can populate it directly.
type Image struct {
	sim  MemSim
	regs map[string][]byte
}

func NewImage() *Image {
	return &Image{regs: make(map[string][]byte)}
}

func (m *Image) LoadData(addr uint64, p []byte, prot int) error {
	return m.place(addr, uint64(len(p)), p, prot)
}

func (m *Image) SetZero(addr, size uint64, prot int) error {
	return m.place(addr, size, nil, prot)
}

func (m *Image) SetRegister(name string, p []byte) error {
	m.regs[name] = append([]byte(nil), p...)
	return nil
}

// Reg returns the last value stored with SetRegister.
func (m *Image) Reg(name string) ([]byte, bool) {
	p, ok := m.regs[name]
	return p, ok
}

func (m *Image) Mappings() Pages {
	return m.sim.Mem
}

func (m *Image) Read(addr, size uint64) ([]byte, error) {
	p := make([]byte, size)
	if err := m.sim.Read(addr, p, 0); err != nil {
		return nil, err
	}
	return p, nil
}

// place maps addr:addr+size with prot and fills it with p, or zeroes if p is nil.
// Writes that continue the previous page with the same protection grow that page
// instead of adding a new one, so chunked loads end up as one mapping.
func (m *Image) place(addr, size uint64, p []byte, prot int) error {
	if size == 0 {
		return nil
	}
	if addr+size < addr {
		return errors.Errorf("region %#x+%#x wraps the address space", addr, size)
	}
	if size > MaxRegion {
		return errors.Errorf("region %#x+%#x is larger than %#x bytes", addr, size, MaxRegion)
	}
	if addr > 0 {
		if prev := m.sim.Mem.Find(addr - 1); prev != nil && prev.Prot == prot && !m.mapped(addr, size) {
			if p == nil {
				prev.Data = append(prev.Data, make([]byte, size)...)
			} else {
				prev.Data = append(prev.Data, p...)
			}
			prev.Size += size
			return nil
		}
	}
	m.sim.Map(addr, size, prot, true)
	if p == nil {
		return nil
	}
	return errors.Wrap(m.sim.Write(addr, p, 0), "image write failed")
}

func (m *Image) mapped(addr, size uint64) bool {
	for _, mm := range m.sim.Mem {
		if mm.Overlaps(addr, size) {
			return true
		}
	}
	return false
}
