package cpu

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// snapshot format:
// header (uncompressed, big endian)
//   [4]byte magic "ELIM"
//   uint32(format version)
//   uint32(number of pages)
//   uint32(number of registers)
// remainder is a snappy stream of
//   1..pages: uint64(addr), uint32(prot), uint64(len), <raw bytes of len>
//   1..regs:  uint16(name len), name, uint32(value len), <raw value>
// registers are stored sorted by name so identical images give identical files.

var IMAGE_MAGIC = "ELIM"

const imageVersion = 1

type imageHeader struct {
	Magic   string `struc:"[4]byte"`
	Version uint32
	Pages   uint32
	Regs    uint32
}

type pageRecord struct {
	Addr uint64
	Prot uint32
	Size int `struc:"uint64,sizeof=Data"`
	Data []byte
}

type regRecord struct {
	NameLen int `struc:"uint16,sizeof=Name"`
	Name    string
	Size    int `struc:"uint32,sizeof=Data"`
	Data    []byte
}

var snapshotOrder = binary.BigEndian

func (m *Image) Save(w io.Writer) error {
	header := &imageHeader{
		Magic:   IMAGE_MAGIC,
		Version: imageVersion,
		Pages:   uint32(len(m.sim.Mem)),
		Regs:    uint32(len(m.regs)),
	}
	if err := struc.PackWithOrder(w, header, snapshotOrder); err != nil {
		return errors.Wrap(err, "failed to pack header")
	}
	zw := snappy.NewBufferedWriter(w)
	for _, page := range m.sim.Mem {
		rec := &pageRecord{Addr: page.Addr, Prot: uint32(page.Prot), Data: page.Data}
		if err := struc.PackWithOrder(zw, rec, snapshotOrder); err != nil {
			return errors.Wrapf(err, "failed to pack page %#x", page.Addr)
		}
	}
	names := make([]string, 0, len(m.regs))
	for name := range m.regs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rec := &regRecord{Name: name, Data: m.regs[name]}
		if err := struc.PackWithOrder(zw, rec, snapshotOrder); err != nil {
			return errors.Wrapf(err, "failed to pack register %s", name)
		}
	}
	return errors.Wrap(zw.Close(), "failed to flush snapshot")
}

func LoadImage(r io.Reader) (*Image, error) {
	var header imageHeader
	if err := struc.UnpackWithOrder(r, &header, snapshotOrder); err != nil {
		return nil, errors.Wrap(err, "failed to unpack header")
	}
	if header.Magic != IMAGE_MAGIC {
		return nil, errors.Errorf("bad snapshot magic: %q", header.Magic)
	}
	if header.Version != imageVersion {
		return nil, errors.Errorf("unsupported snapshot version: %d", header.Version)
	}
	m := NewImage()
	zr := snappy.NewReader(r)
	for i := uint32(0); i < header.Pages; i++ {
		var rec pageRecord
		if err := struc.UnpackWithOrder(zr, &rec, snapshotOrder); err != nil {
			return nil, errors.Wrapf(err, "failed to unpack page %d", i)
		}
		if err := m.LoadData(rec.Addr, rec.Data, int(rec.Prot)); err != nil {
			return nil, err
		}
	}
	for i := uint32(0); i < header.Regs; i++ {
		var rec regRecord
		if err := struc.UnpackWithOrder(zr, &rec, snapshotOrder); err != nil {
			return nil, errors.Wrapf(err, "failed to unpack register %d", i)
		}
		m.regs[rec.Name] = rec.Data
	}
	return m, nil
}
