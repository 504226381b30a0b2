package loader

import (
	"bytes"
	"io"

	"github.com/lunixbochs/elfload/go/models"
)

// CGC executables are ELF files with a different magic number.
var cgcMagic = []byte{0x7f, 0x43, 0x47, 0x43}

func MatchCgc(r io.ReaderAt) bool {
	return bytes.Equal(getMagic(r), cgcMagic) && MatchElf(&FakeCgcReader{r})
}

// FakeCgcReader presents a CGC executable as an ELF file.
type FakeCgcReader struct {
	io.ReaderAt
}

func (f *FakeCgcReader) ReadAt(p []byte, off int64) (int, error) {
	n := 0
	if off < 4 {
		n, _ = bytes.NewReader(elfMagic).ReadAt(p, off)
		if n == len(p) {
			return n, nil
		}
		p = p[n:]
		off = 4
	}
	n1, err := f.ReaderAt.ReadAt(p, off)
	return n1 + n, err
}

func (f *FakeCgcReader) Close() error {
	if c, ok := f.ReaderAt.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func NewCgcLoader(r io.ReaderAt, config *models.Config) (models.Loader, error) {
	return NewElfLoader(&FakeCgcReader{r}, config)
}
