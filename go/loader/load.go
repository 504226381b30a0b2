package loader

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/lunixbochs/elfload/go/models"
)

// Format pairs a cheap probe with the constructor for a file format.
type Format struct {
	Name  string
	Match func(r io.ReaderAt) bool
	New   func(r io.ReaderAt, config *models.Config) (models.Loader, error)
}

var formats []Format

// Register appends a format. Formats are probed in registration order.
func Register(f Format) {
	formats = append(formats, f)
}

func init() {
	Register(Format{Name: "elf", Match: MatchElf, New: NewElfLoader})
	Register(Format{Name: "cgc", Match: MatchCgc, New: NewCgcLoader})
}

// New returns a loader for the first registered format that matches r.
// If no format matches, it returns a nil Loader and a nil error.
func New(r io.ReaderAt, config *models.Config) (models.Loader, error) {
	for _, f := range formats {
		if f.Match(r) {
			config.Logf("loader: detected %s", f.Name)
			l, err := f.New(r, config)
			return l, errors.Wrapf(err, "failed to load %s", f.Name)
		}
	}
	return nil, nil
}

// Open is New for a file on disk. The returned loader owns the file until Close.
func Open(path string, config *models.Config) (models.Loader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	l, err := New(f, config)
	if l == nil {
		f.Close()
		return nil, err
	}
	return l, nil
}
