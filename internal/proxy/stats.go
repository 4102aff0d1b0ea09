package proxy

import (
	"fmt"
	"sync/atomic"
)

// ConnStats tracks currently open and total connection counts for a server.
type ConnStats struct {
	count atomic.Int64
	open  atomic.Int64
}

// New adds one to the total count and returns the new total, which doubles
// as a connection id.
func (c *ConnStats) New() int64 {
	return c.count.Add(1)
}

func (c *ConnStats) Open() {
	c.open.Add(1)
}

func (c *ConnStats) Close() {
	c.open.Add(-1)
}

// OpenCount reports the number of connections currently open.
func (c *ConnStats) OpenCount() int64 {
	return c.open.Load()
}

func (c *ConnStats) String() string {
	return fmt.Sprintf("[%d/%d]", c.open.Load(), c.count.Load())
}
