// Package observe implements the per-direction chain of units that inspect
// or transform relayed bytes.
//
// A Unit sees every chunk read from one side of a relay before it is written
// to the other. Units run in registration order, each receiving the previous
// unit's output. Observers return their input unchanged; transformers may
// return a different chunk. A unit must not block: while it runs, its relay
// direction is stalled.
//
// Chains are built per connection from Factory values, so unit state is
// never shared between connections.
package observe

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrObserverFailure wraps any error returned by a Unit.
var ErrObserverFailure = errors.New("observer failure")

// Unit inspects or transforms one chunk. The returned chunk is forwarded in
// place of the input. Units must not retain chunk after returning; the
// relay reuses its buffer.
type Unit interface {
	Process(chunk []byte) ([]byte, error)
}

// Func adapts an ordinary function to a Unit.
type Func func(chunk []byte) ([]byte, error)

func (f Func) Process(chunk []byte) ([]byte, error) {
	return f(chunk)
}

// Chain is an ordered sequence of units for one relay direction. The zero
// value is an empty chain ready for Apply. A nil *Chain also passes chunks
// through unchanged from Process and has Len 0, but Apply needs a non-nil
// chain.
type Chain struct {
	units []Unit
}

// NewChain returns a chain running units in the given order.
func NewChain(units ...Unit) *Chain {
	return &Chain{units: append([]Unit(nil), units...)}
}

// Apply registers u after every unit already in the chain.
func (c *Chain) Apply(u Unit) {
	c.units = append(c.units, u)
}

// Len reports the number of registered units.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.units)
}

// Process runs chunk through every unit in order.
func (c *Chain) Process(chunk []byte) ([]byte, error) {
	if c == nil {
		return chunk, nil
	}
	for i, u := range c.units {
		out, err := u.Process(chunk)
		if err != nil {
			return nil, fmt.Errorf("%w: unit %d (%T): %w", ErrObserverFailure, i, u, err)
		}
		chunk = out
	}
	return chunk, nil
}

// Factory creates a fresh unit for one connection direction. log carries
// the connection's attributes.
type Factory func(log *slog.Logger) Unit

// Pipeline describes the units to attach to every relayed connection:
// Upstream sees client-to-destination bytes, Downstream the reverse.
type Pipeline struct {
	Upstream   []Factory
	Downstream []Factory
}

// NewChains instantiates both directions' chains for one connection.
func (p Pipeline) NewChains(log *slog.Logger) (upstream, downstream *Chain) {
	if log == nil {
		log = slog.Default()
	}
	return build(p.Upstream, log.With("dir", "up")), build(p.Downstream, log.With("dir", "down"))
}

func build(fs []Factory, log *slog.Logger) *Chain {
	c := &Chain{}
	for _, f := range fs {
		c.Apply(f(log))
	}
	return c
}
