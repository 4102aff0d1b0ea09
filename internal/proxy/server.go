package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/jpillora/sizestr"

	"github.com/die-net/socks6d/internal/observe"
)

// negotiateFunc runs a protocol handshake on conn and returns the connected
// destination. Any client bytes it forwards to the destination go through
// upstream first.
type negotiateFunc func(ctx context.Context, log *slog.Logger, conn net.Conn, upstream *observe.Chain) (net.Conn, error)

// server holds what the SOCKS5 and SOCKS6 servers share: configuration,
// lifecycle context, connection counters and the per-connection flow of
// negotiate-then-relay.
type server struct {
	ctx   context.Context
	cfg   Config
	log   *slog.Logger
	stats ConnStats
}

func newServer(ctx context.Context, cfg Config, proto string) server {
	if ctx == nil {
		ctx = context.Background()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return server{ctx: ctx, cfg: cfg, log: log.With("proto", proto)}
}

// Stats returns the server's connection counters.
func (s *server) Stats() *ConnStats {
	return &s.stats
}

func (s *server) serve(ln net.Listener, negotiate negotiateFunc) error {
	return acceptLoop(s.ctx, ln, s.log, func(c net.Conn) {
		id := s.stats.New()
		log := s.log.With("conn", id, "client", c.RemoteAddr().String())
		if err := s.handle(c, log, negotiate); err != nil {
			log.Debug("connection error", "error", err)
		}
	})
}

func (s *server) handle(conn net.Conn, log *slog.Logger, negotiate negotiateFunc) error {
	defer conn.Close()
	s.stats.Open()
	defer s.stats.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	if s.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}
	// Unblock a handshake stuck in I/O on shutdown.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	upChain, downChain := s.cfg.Observers.NewChains(log)
	up, err := negotiate(ctx, log, conn, upChain)
	stop()
	if err != nil {
		return fmt.Errorf("negotiate: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	st, err := CopyBidirectional(ctx, conn, up, CopyOptions{
		Upstream:    upChain,
		Downstream:  downChain,
		IdleTimeout: s.cfg.IdleTimeout,
	})
	log.Debug("closed",
		"conns", s.stats.String(),
		"sent", sizestr.ToString(st.Sent),
		"received", sizestr.ToString(st.Received))
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}
