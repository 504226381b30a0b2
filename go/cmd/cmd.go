package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mgutz/ansi"
	"github.com/pkg/errors"

	"github.com/lunixbochs/elfload/go/loader"
	"github.com/lunixbochs/elfload/go/models"
	"github.com/lunixbochs/elfload/go/models/cpu"
)

type strslice []string

func (s *strslice) String() string {
	return fmt.Sprintf("%v", *s)
}

func (s *strslice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// PrintError prints err followed by the stack it was created on, if it has one.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(w, "Error: %s\n", err)
	st, ok := err.(stackTracer)
	if !ok {
		return
	}
	for _, f := range st.StackTrace() {
		fmt.Fprintf(w, "  %n() %s:%d\n", f, f, f)
		if fmt.Sprintf("%n", f) == "main" {
			break
		}
	}
}

var protColors = map[int]string{
	cpu.PROT_READ:                  ansi.ColorCode("default"),
	cpu.PROT_READ | cpu.PROT_WRITE: ansi.ColorCode("green"),
	cpu.PROT_READ | cpu.PROT_EXEC:  ansi.ColorCode("red+b"),
	cpu.PROT_ALL:                   ansi.ColorCode("magenta+b"),
}

func protColor(prot int, color bool) string {
	s := cpu.ProtString(prot)
	if !color {
		return s
	}
	code, ok := protColors[prot]
	if !ok {
		code = ansi.ColorCode("yellow")
	}
	return code + s + ansi.Reset
}

// Run parses argv, loads the executable into a memory image and reports on it.
// It returns the process exit code.
func Run(argv []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(argv[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "verbose output")
	color := fs.Bool("color", false, "colorize memory protections")
	dump := fs.Int("dump", 0, "hexdump the first <n> bytes of each mapping")
	save := fs.String("save", "", "save the loaded memory image to <file>")
	var syms strslice
	fs.Var(&syms, "sym", "resolve symbol (can be repeated)")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [options] <exe>\n\nOptions:\n", argv[0])
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv[1:]); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	config := &models.Config{Color: *color, Verbose: *verbose, Output: stderr}
	if err := run(fs.Arg(0), config, syms, *dump, *save, stdout); err != nil {
		PrintError(stderr, err)
		return 1
	}
	return 0
}

func run(exe string, config *models.Config, syms []string, dump int, save string, w io.Writer) error {
	l, err := loader.Open(exe, config)
	if err != nil {
		return err
	}
	if l == nil {
		return errors.Errorf("%s: unrecognized executable format", exe)
	}
	defer l.Close()

	img := cpu.NewImage()
	if err := l.LoadFile(img); err != nil {
		return err
	}
	span := l.Span()
	fmt.Fprintf(w, "%s: %d-bit %s, entry 0x%x\n", exe, l.Bits(), l.ByteOrder(), l.Entry())
	fmt.Fprintf(w, "span 0x%x-0x%x\n", span.Start, span.End)
	fmt.Fprintf(w, "\nmappings:\n")
	for _, page := range img.Mappings() {
		fmt.Fprintf(w, "  0x%x-0x%x %s\n", page.Addr, page.Addr+page.Size, protColor(page.Prot, config.Color))
		if dump > 0 {
			n := uint64(dump)
			if n > page.Size {
				n = page.Size
			}
			mem, err := img.Read(page.Addr, n)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, HexDump(page.Addr, mem, l.Bits()))
		}
	}
	if len(syms) > 0 {
		fmt.Fprintf(w, "\nsymbols:\n")
	}
	for _, name := range syms {
		addr, ok, err := l.FindSymbol(name)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintf(w, "  %s = 0x%x\n", name, addr)
		} else {
			fmt.Fprintf(w, "  %s not found\n", name)
		}
	}
	if save != "" {
		f, err := os.Create(save)
		if err != nil {
			return errors.Wrap(err, "failed to create snapshot")
		}
		if err := img.Save(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return errors.Wrap(err, "failed to write snapshot")
		}
		config.Logf("saved image to %s", save)
	}
	return nil
}

func Main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}
