package observe

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/jpillora/sizestr"
)

// Pass forwards chunks unchanged.
type Pass struct{}

func (Pass) Process(chunk []byte) ([]byte, error) {
	return chunk, nil
}

// Counter counts the bytes that pass through it.
type Counter struct {
	log      *slog.Logger
	observed atomic.Int64
}

// NewCounter returns a Counter that logs its running total at debug level
// to log, if non-nil.
func NewCounter(log *slog.Logger) *Counter {
	return &Counter{log: log}
}

func (c *Counter) Process(chunk []byte) ([]byte, error) {
	n := c.observed.Add(int64(len(chunk)))
	if c.log != nil {
		c.log.Debug("observed", "chunk", len(chunk), "total", sizestr.ToString(n))
	}
	return chunk, nil
}

// Observed returns the number of bytes seen so far.
func (c *Counter) Observed() int64 {
	return c.observed.Load()
}

// DefaultDumpLimit is how much of each chunk Dump logs.
const DefaultDumpLimit = 64

// Dump logs a hex dump of the start of every chunk at debug level.
type Dump struct {
	log   *slog.Logger
	limit int
}

func NewDump(log *slog.Logger, limit int) *Dump {
	if limit <= 0 {
		limit = DefaultDumpLimit
	}
	return &Dump{log: log, limit: limit}
}

func (d *Dump) Process(chunk []byte) ([]byte, error) {
	if d.log == nil {
		return chunk, nil
	}
	b := chunk
	if len(b) > d.limit {
		b = b[:d.limit]
	}
	d.log.Debug("chunk", "len", len(chunk), "hex", hex.Dump(b))
	return chunk, nil
}

var registry = map[string]Factory{
	"pass":  func(*slog.Logger) Unit { return Pass{} },
	"count": func(log *slog.Logger) Unit { return NewCounter(log) },
	"dump":  func(log *slog.Logger) Unit { return NewDump(log, DefaultDumpLimit) },
}

// Lookup returns the factory for a built-in unit name.
func Lookup(name string) (Factory, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown observer %q (have %v)", name, Names())
	}
	return f, nil
}

// LookupAll resolves a list of names, preserving order.
func LookupAll(names []string) ([]Factory, error) {
	fs := make([]Factory, 0, len(names))
	for _, n := range names {
		f, err := Lookup(n)
		if err != nil {
			return nil, err
		}
		fs = append(fs, f)
	}
	return fs, nil
}

// Names lists the built-in unit names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
