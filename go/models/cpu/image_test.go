package cpu

import (
	"bytes"
	"testing"
)

func TestImageChunksCoalesce(t *testing.T) {
	m := NewImage()
	b := pattern(0x2800)
	for off := 0; off < len(b); off += 0x1000 {
		end := off + 0x1000
		if end > len(b) {
			end = len(b)
		}
		if err := m.LoadData(0x400000+uint64(off), b[off:end], PROT_READ|PROT_EXEC); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.SetZero(0x402800, 0x800, PROT_READ|PROT_EXEC); err != nil {
		t.Fatal(err)
	}
	maps := m.Mappings()
	if len(maps) != 1 {
		t.Fatalf("expected one mapping, got:\n%s", maps)
	}
	if maps[0].Addr != 0x400000 || maps[0].Size != 0x3000 {
		t.Fatalf("bad mapping: %s", maps[0])
	}
	p, err := m.Read(0x400000, 0x3000)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p[:0x2800], b) {
		t.Fatal("loaded data mismatch")
	}
	if !bytes.Equal(p[0x2800:], make([]byte, 0x800)) {
		t.Fatal("zero fill mismatch")
	}
}

func TestImageProtBoundary(t *testing.T) {
	m := NewImage()
	if err := m.LoadData(0x1000, []byte{1, 2, 3, 4}, PROT_READ); err != nil {
		t.Fatal(err)
	}
	if err := m.LoadData(0x1004, []byte{5, 6, 7, 8}, PROT_READ|PROT_WRITE); err != nil {
		t.Fatal(err)
	}
	if len(m.Mappings()) != 2 {
		t.Fatalf("different protections should not merge:\n%s", m.Mappings())
	}
	p, err := m.Read(0x1000, 8)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Fatalf("read across mappings: %x", p)
	}
}

func TestImageOverwrite(t *testing.T) {
	m := NewImage()
	m.LoadData(0x1000, bytes.Repeat([]byte{0xff}, 0x100), PROT_ALL)
	if err := m.SetZero(0x1040, 0x40, PROT_READ); err != nil {
		t.Fatal(err)
	}
	p, _ := m.Read(0x1000, 0x100)
	for i, c := range p {
		want := byte(0xff)
		if i >= 0x40 && i < 0x80 {
			want = 0
		}
		if c != want {
			t.Fatalf("byte %#x: got %#x want %#x", i, c, want)
		}
	}
	if _, err := m.Read(0x2000, 1); err == nil {
		t.Fatal("read of unmapped memory succeeded")
	}
}

func TestImageRegisters(t *testing.T) {
	m := NewImage()
	buf := []byte{0x78, 0x56, 0x34, 0x12}
	m.SetRegister("pc", buf)
	buf[0] = 0
	p, ok := m.Reg("pc")
	if !ok || !bytes.Equal(p, []byte{0x78, 0x56, 0x34, 0x12}) {
		t.Fatalf("bad register value: %x", p)
	}
	if _, ok := m.Reg("sp"); ok {
		t.Fatal("unset register reported present")
	}
}

func TestImageWrap(t *testing.T) {
	m := NewImage()
	if err := m.SetZero(^uint64(0)-0xf, 0x20, PROT_READ); err == nil {
		t.Fatal("wrapping region accepted")
	}
}

func TestImageHugeRegion(t *testing.T) {
	m := NewImage()
	if err := m.SetZero(0x1000, 1<<62, PROT_READ|PROT_WRITE); err == nil {
		t.Fatal("huge zero fill accepted")
	}
	if err := m.LoadData(0x1000, []byte{1}, PROT_READ|PROT_WRITE); err != nil {
		t.Fatal(err)
	}
	if err := m.SetZero(0x1001, MaxRegion+1, PROT_READ|PROT_WRITE); err == nil {
		t.Fatal("huge zero fill accepted after an adjacent page")
	}
	if len(m.Mappings()) != 1 || m.Mappings()[0].Size != 1 {
		t.Fatalf("rejected region changed the mappings:\n%s", m.Mappings())
	}
}
