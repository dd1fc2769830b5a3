package builtin

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Console is the "console" package. Every call writes one line to the
// underlying writer.
type Console struct {
	w  io.Writer
	mu sync.Mutex
}

// NewConsole creates a console writing to w. A nil w discards output.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = io.Discard
	}
	return &Console{w: w}
}

func (c *Console) Specifier() string { return "console" }

func (c *Console) Log(args ...any)   { c.write("", args) }
func (c *Console) Info(args ...any)  { c.write("", args) }
func (c *Console) Debug(args ...any) { c.write("", args) }
func (c *Console) Warn(args ...any)  { c.write("warn: ", args) }
func (c *Console) Error(args ...any) { c.write("error: ", args) }

func (c *Console) write(prefix string, args []any) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, prefix+strings.Join(parts, " "))
}
