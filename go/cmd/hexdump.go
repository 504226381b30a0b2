package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexDump formats mem as rows of target-word-sized hex groups followed by their ascii.
func HexDump(base uint64, mem []byte, bits int) string {
	word := bits / 8
	// rows stay inside 80 columns
	words := (80 - word*2 - 4) * 3 / 4 / ((word + 1) * 2)
	addrFmt := fmt.Sprintf("0x%%0%dx:", len(fmt.Sprintf("%x", base+uint64(len(mem)))))

	var rows []string
	hexCol := make([]string, words)
	asciiCol := make([]string, words)
	for off := 0; off < len(mem); off += words * word {
		for j := range hexCol {
			start, end := off+j*word, off+(j+1)*word
			if start > len(mem) {
				start = len(mem)
			}
			if end > len(mem) {
				end = len(mem)
			}
			w := mem[start:end]
			hexCol[j] = fmt.Sprintf("%-*s", word*2, hex.EncodeToString(w))
			asciiCol[j] = fmt.Sprintf("%-*s", word, printable(w))
		}
		rows = append(rows, fmt.Sprintf(addrFmt+" %s [%s]", base+uint64(off),
			strings.Join(hexCol, " "), strings.Join(asciiCol, " ")))
	}
	return strings.Join(rows, "\n")
}

func printable(p []byte) string {
	o := make([]byte, len(p))
	for i, c := range p {
		if c < 0x20 || c > 0x7e {
			c = '.'
		}
		o[i] = c
	}
	return string(o)
}
