package models

import (
	"fmt"
	"io"
	"os"
)

type Config struct {
	Color   bool
	Verbose bool
	// Output receives verbose logging. Defaults to os.Stderr.
	Output io.Writer
}

func (c *Config) Logf(format string, args ...interface{}) {
	if c == nil || !c.Verbose {
		return
	}
	out := c.Output
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprintf(out, format+"\n", args...)
}
