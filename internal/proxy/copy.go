package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/die-net/socks6d/internal/observe"
)

var (
	// ErrRelayIO wraps read and write failures during the relay.
	ErrRelayIO = errors.New("relay i/o failure")

	// ErrIdleTimeout reports a pair closed for inactivity.
	ErrIdleTimeout = fmt.Errorf("%w: idle timeout", ErrRelayIO)
)

// DefaultBufferSize bounds the chunk read in one go from either side.
const DefaultBufferSize = 32 * 1024

var relayBuffers = NewBufferPool(DefaultBufferSize)

type CopyOptions struct {
	// Upstream sees bytes read from source before they are written to
	// destination; Downstream the reverse. Either may be nil.
	Upstream   *observe.Chain
	Downstream *observe.Chain

	// IdleTimeout, if positive, ends the relay once neither direction has
	// moved a byte for this long.
	IdleTimeout time.Duration
}

// CopyStats counts the bytes written to each side.
type CopyStats struct {
	Sent     int64 // to destination
	Received int64 // to source
}

// CopyBidirectional relays between source and destination until either
// direction ends, then closes both and waits for the other direction to
// stop. End of stream is a normal finish; the first read, write or observer
// error is returned. Canceling ctx closes both connections.
func CopyBidirectional(ctx context.Context, source, destination net.Conn, opts CopyOptions) (CopyStats, error) {
	var (
		stats     CopyStats
		closing   atomic.Bool
		closeOnce sync.Once
	)
	closeBoth := func() {
		closeOnce.Do(func() {
			closing.Store(true)
			_ = source.Close()
			_ = destination.Close()
		})
	}
	defer closeBoth()

	// If the context is canceled, close both sides to unblock the pumps.
	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var idle *idleTimer
	if opts.IdleTimeout > 0 {
		idle = newIdleTimer(opts.IdleTimeout)
	}

	var g errgroup.Group
	g.Go(func() error {
		defer closeBoth()
		p := pump{dst: destination, src: source, chain: opts.Upstream, idle: idle, closing: &closing}
		err := p.run()
		stats.Sent = p.written
		return err
	})
	g.Go(func() error {
		defer closeBoth()
		p := pump{dst: source, src: destination, chain: opts.Downstream, idle: idle, closing: &closing}
		err := p.run()
		stats.Received = p.written
		return err
	})

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return stats, err
}

// pump moves chunks from src to dst, one at a time.
type pump struct {
	dst, src net.Conn
	chain    *observe.Chain
	idle     *idleTimer
	closing  *atomic.Bool
	written  int64
}

func (p *pump) run() error {
	buf := relayBuffers.Get()
	defer relayBuffers.Put(buf)

	for {
		p.idle.arm(p.src)

		nr, rerr := p.src.Read(buf)
		if nr > 0 {
			p.idle.touch()
			out, err := p.chain.Process(buf[:nr])
			if err != nil {
				return err
			}
			if len(out) > 0 {
				nw, werr := p.dst.Write(out)
				p.written += int64(nw)
				if werr != nil {
					if p.closing.Load() || isPeerClosed(werr) {
						return nil
					}
					return fmt.Errorf("%w: write: %w", ErrRelayIO, werr)
				}
				p.idle.touch()
			}
		}

		if rerr != nil {
			switch {
			case rerr == io.EOF, p.closing.Load(), errors.Is(rerr, net.ErrClosed):
				return nil
			case p.idle != nil && errors.Is(rerr, os.ErrDeadlineExceeded):
				if p.idle.expired() {
					return ErrIdleTimeout
				}
				continue
			}
			return fmt.Errorf("%w: read: %w", ErrRelayIO, rerr)
		}
	}
}

// isPeerClosed reports a write that failed because the other end hung up,
// which can race ahead of the end of stream on the opposite pump.
func isPeerClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.EPIPE)
}

// idleTimer is shared by both pumps of a pair so that traffic in either
// direction keeps the pair alive.
type idleTimer struct {
	timeout time.Duration
	last    atomic.Int64
}

func newIdleTimer(timeout time.Duration) *idleTimer {
	t := &idleTimer{timeout: timeout}
	t.touch()
	return t
}

func (t *idleTimer) arm(c net.Conn) {
	if t == nil {
		return
	}
	_ = c.SetReadDeadline(time.Unix(0, t.last.Load()).Add(t.timeout))
}

func (t *idleTimer) touch() {
	if t == nil {
		return
	}
	t.last.Store(time.Now().UnixNano())
}

func (t *idleTimer) expired() bool {
	return time.Since(time.Unix(0, t.last.Load())) >= t.timeout
}
