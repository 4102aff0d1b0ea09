package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestListenTCPReusePort(t *testing.T) {
	if !ReusePortSupported {
		t.Skip("SO_REUSEPORT not supported on this platform")
	}
	ctx := context.Background()
	cfg := ListenConfig{ReusePort: true}

	a, err := ListenTCP(ctx, "tcp", "127.0.0.1:0", cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	b, err := ListenTCP(ctx, "tcp", a.Addr().String(), cfg)
	if err != nil {
		t.Fatalf("second listener on %s: %v", a.Addr(), err)
	}
	defer b.Close()
}

func TestListenTCPAppliesKeepAlive(t *testing.T) {
	ln, err := ListenTCP(context.Background(), "tcp", "127.0.0.1:0", ListenConfig{
		KeepAlive: net.KeepAliveConfig{Enable: true, Idle: 30 * time.Second, Interval: 10 * time.Second, Count: 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	if _, ok := ln.(*KeepAliveListener); !ok {
		t.Fatalf("expected *KeepAliveListener, got %T", ln)
	}

	go func() {
		c, err := net.Dial("tcp", ln.Addr().String())
		if err == nil {
			_ = c.Close()
		}
	}()
	c, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	_ = c.Close()
}

func TestAcceptLoopReturnsOnClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	handled := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- acceptLoop(context.Background(), ln, slog.Default(), func(c net.Conn) {
			_ = c.Close()
			handled <- struct{}{}
		})
	}()

	c, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("connection not handled")
	}

	_ = ln.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("acceptLoop returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("acceptLoop did not return")
	}
}

// flakyListener fails Accept with err a few times before delegating.
type flakyListener struct {
	net.Listener
	fails int
	err   error
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.fails > 0 {
		l.fails--
		return nil, l.err
	}
	return l.Listener.Accept()
}

func TestAcceptLoopRetriesTemporaryErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	fl := &flakyListener{Listener: ln, fails: 3, err: &net.OpError{Op: "accept", Net: "tcp", Err: os.NewSyscallError("accept", syscall.EMFILE)}}
	handled := make(chan struct{}, 1)
	go func() {
		_ = acceptLoop(context.Background(), fl, slog.Default(), func(c net.Conn) {
			_ = c.Close()
			handled <- struct{}{}
		})
	}()

	c, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("connection not handled after transient accept errors")
	}
}

func TestAcceptLoopFatalError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	boom := errors.New("boom")
	fl := &flakyListener{Listener: ln, fails: 1, err: boom}
	err = acceptLoop(context.Background(), fl, slog.Default(), func(c net.Conn) { _ = c.Close() })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestIsTemporaryAcceptError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{err: syscall.EMFILE, want: true},
		{err: fmt.Errorf("accept: %w", syscall.ECONNABORTED), want: true},
		{err: &net.OpError{Op: "accept", Err: os.NewSyscallError("accept", syscall.ENFILE)}, want: true},
		{err: os.ErrDeadlineExceeded, want: true},
		{err: syscall.EINVAL, want: false},
		{err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		if got := isTemporaryAcceptError(tt.err); got != tt.want {
			t.Errorf("isTemporaryAcceptError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestConnStats(t *testing.T) {
	var st ConnStats
	if id := st.New(); id != 1 {
		t.Fatalf("first id = %d", id)
	}
	st.Open()
	st.New()
	st.Open()
	st.Close()
	if st.OpenCount() != 1 {
		t.Fatalf("OpenCount() = %d", st.OpenCount())
	}
	if got := st.String(); got != "[1/2]" {
		t.Fatalf("String() = %q", got)
	}
}
