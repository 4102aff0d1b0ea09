package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/prep/socketpair"

	"github.com/die-net/socks6d/internal/observe"
)

func newPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b, err := socketpair.New("unix")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}

type copyResult struct {
	stats CopyStats
	err   error
}

// startRelay wires client <-> [source relay destination] <-> upstream and
// runs CopyBidirectional in the background.
func startRelay(t *testing.T, ctx context.Context, opts CopyOptions) (client, upstream net.Conn, done <-chan copyResult) {
	t.Helper()
	client, source := newPair(t)
	destination, upstream := newPair(t)

	ch := make(chan copyResult, 1)
	go func() {
		st, err := CopyBidirectional(ctx, source, destination, opts)
		ch <- copyResult{st, err}
	}()
	return client, upstream, ch
}

func waitRelay(t *testing.T, done <-chan copyResult) copyResult {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not finish")
		return copyResult{}
	}
}

func assertEOF(t *testing.T, c net.Conn) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	b, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("expected EOF, got %v after %q", err, b)
	}
}

func TestCopyBidirectionalPreservesOrder(t *testing.T) {
	counter := observe.NewCounter(nil)
	client, upstream, done := startRelay(t, context.Background(), CopyOptions{
		Upstream: observe.NewChain(observe.Pass{}, counter),
	})

	var want bytes.Buffer
	for i := range 500 {
		want.Write(bytes.Repeat([]byte{byte(i)}, i%97+1))
	}
	want.Write(bytes.Repeat([]byte("x"), 3*DefaultBufferSize+17))

	go func() {
		b := want.Bytes()
		for len(b) > 0 {
			n := min(len(b), 1+len(b)%4093)
			if _, err := client.Write(b[:n]); err != nil {
				return
			}
			b = b[n:]
		}
	}()

	got := make([]byte, want.Len())
	if _, err := io.ReadFull(upstream, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want.Bytes()) {
		t.Fatal("bytes reordered or altered upstream")
	}

	// And back the other way.
	msg := []byte("downstream reply")
	if _, err := upstream.Write(msg); err != nil {
		t.Fatal(err)
	}
	back := make([]byte, len(msg))
	if _, err := io.ReadFull(client, back); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, msg) {
		t.Fatalf("got %q want %q", back, msg)
	}

	_ = client.Close()
	r := waitRelay(t, done)
	if r.err != nil {
		t.Fatal(r.err)
	}
	if r.stats.Sent != int64(want.Len()) || r.stats.Received != int64(len(msg)) {
		t.Fatalf("unexpected stats %+v", r.stats)
	}
	if counter.Observed() != int64(want.Len()) {
		t.Fatalf("counter observed %d, want %d", counter.Observed(), want.Len())
	}
	assertEOF(t, upstream)
}

func TestCopyBidirectionalTransform(t *testing.T) {
	upper := observe.Func(func(b []byte) ([]byte, error) {
		return bytes.ToUpper(b), nil
	})
	double := observe.Func(func(b []byte) ([]byte, error) {
		return append(bytes.Clone(b), b...), nil
	})
	client, upstream, done := startRelay(t, context.Background(), CopyOptions{
		Upstream:   observe.NewChain(upper),
		Downstream: observe.NewChain(double),
	})

	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 5)
	if _, err := io.ReadFull(upstream, got); err != nil {
		t.Fatal(err)
	}
	if string(got) != "HELLO" {
		t.Fatalf("got %q", got)
	}

	if _, err := upstream.Write([]byte("ab")); err != nil {
		t.Fatal(err)
	}
	got = make([]byte, 4)
	if _, err := io.ReadFull(client, got); err != nil {
		t.Fatal(err)
	}
	if string(got) != "abab" {
		t.Fatalf("got %q", got)
	}

	_ = upstream.Close()
	r := waitRelay(t, done)
	if r.err != nil {
		t.Fatal(r.err)
	}
	if r.stats.Received != 4 {
		t.Fatalf("Received = %d, want 4", r.stats.Received)
	}
}

func TestCopyBidirectionalFirstToFinishClosesBoth(t *testing.T) {
	tests := []struct {
		name  string
		close func(client, upstream net.Conn)
		open  func(client, upstream net.Conn) []net.Conn
	}{
		{
			name:  "client closes",
			close: func(c, _ net.Conn) { _ = c.Close() },
			open:  func(_, u net.Conn) []net.Conn { return []net.Conn{u} },
		},
		{
			name:  "upstream closes",
			close: func(_, u net.Conn) { _ = u.Close() },
			open:  func(c, _ net.Conn) []net.Conn { return []net.Conn{c} },
		},
		{
			// No half-duplex linger: end of stream one way tears down both.
			name:  "client half-closes",
			close: func(c, _ net.Conn) { _ = c.(interface{ CloseWrite() error }).CloseWrite() },
			open:  func(c, u net.Conn) []net.Conn { return []net.Conn{c, u} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, upstream, done := startRelay(t, context.Background(), CopyOptions{})

			tt.close(client, upstream)
			r := waitRelay(t, done)
			if r.err != nil {
				t.Fatal(r.err)
			}
			for _, c := range tt.open(client, upstream) {
				assertEOF(t, c)
			}
		})
	}
}

func TestCopyBidirectionalPeerCloseRace(t *testing.T) {
	// Over net.Pipe a write to the closed client fails at once, often before
	// the opposite pump has read the end of stream.
	for range 50 {
		client, source := net.Pipe()
		destination, upstream := net.Pipe()

		go func() {
			b := make([]byte, 2)
			if _, err := io.ReadFull(upstream, b); err != nil {
				return
			}
			_, _ = upstream.Write([]byte("reply"))
			_, _ = io.Copy(io.Discard, upstream)
		}()

		done := make(chan copyResult, 1)
		go func() {
			st, err := CopyBidirectional(context.Background(), source, destination, CopyOptions{})
			done <- copyResult{st, err}
		}()

		if _, err := client.Write([]byte("hi")); err != nil {
			t.Fatal(err)
		}
		_ = client.Close()

		r := waitRelay(t, done)
		_ = upstream.Close()
		if r.err != nil {
			t.Fatalf("client close reported as %v", r.err)
		}
	}
}

func TestIsPeerClosed(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{err: io.ErrClosedPipe, want: true},
		{err: &net.OpError{Op: "write", Err: net.ErrClosed}, want: true},
		{err: &net.OpError{Op: "write", Err: os.NewSyscallError("write", syscall.EPIPE)}, want: true},
		{err: io.ErrShortWrite, want: false},
		{err: os.ErrDeadlineExceeded, want: false},
	}

	for _, tt := range tests {
		if got := isPeerClosed(tt.err); got != tt.want {
			t.Errorf("isPeerClosed(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCopyBidirectionalObserverFailure(t *testing.T) {
	boom := errors.New("boom")
	fail := observe.Func(func(b []byte) ([]byte, error) {
		if bytes.Contains(b, []byte("bad")) {
			return nil, boom
		}
		return b, nil
	})
	client, upstream, done := startRelay(t, context.Background(), CopyOptions{Upstream: observe.NewChain(fail)})

	if _, err := client.Write([]byte("ok")); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 2)
	if _, err := io.ReadFull(upstream, got); err != nil {
		t.Fatal(err)
	}

	if _, err := client.Write([]byte("bad")); err != nil {
		t.Fatal(err)
	}
	r := waitRelay(t, done)
	if !errors.Is(r.err, observe.ErrObserverFailure) || !errors.Is(r.err, boom) {
		t.Fatalf("unexpected error %v", r.err)
	}
	if r.stats.Sent != 2 {
		t.Fatalf("Sent = %d, want 2", r.stats.Sent)
	}
	assertEOF(t, upstream)
	assertEOF(t, client)
}

func TestCopyBidirectionalContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client, upstream, done := startRelay(t, ctx, CopyOptions{})

	cancel()
	r := waitRelay(t, done)
	if !errors.Is(r.err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", r.err)
	}
	assertEOF(t, client)
	assertEOF(t, upstream)
}

func TestCopyBidirectionalIdleTimeout(t *testing.T) {
	client, upstream, done := startRelay(t, context.Background(), CopyOptions{IdleTimeout: 300 * time.Millisecond})

	// Traffic in one direction keeps the whole pair alive.
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := upstream.Read(buf); err != nil {
				return
			}
		}
	}()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := client.Write([]byte("tick")); err != nil {
			t.Fatal(err)
		}
		select {
		case r := <-done:
			t.Fatalf("relay ended while active: %v", r.err)
		case <-time.After(30 * time.Millisecond):
		}
	}

	r := waitRelay(t, done)
	if !errors.Is(r.err, ErrIdleTimeout) || !errors.Is(r.err, ErrRelayIO) {
		t.Fatalf("expected ErrIdleTimeout, got %v", r.err)
	}
	assertEOF(t, client)
}

func TestBufferPool(t *testing.T) {
	p := NewBufferPool(16)
	b := p.Get()
	if len(b) != 16 {
		t.Fatalf("len = %d", len(b))
	}
	p.Put(b[:3])
	if b := p.Get(); len(b) != 16 {
		t.Fatalf("len after Put = %d", len(b))
	}
	p.Put(make([]byte, 4))
}
