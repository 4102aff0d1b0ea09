package proxy

import (
	"context"
	"log/slog"
	"net"

	"github.com/die-net/socks6d/internal/observe"
	"github.com/die-net/socks6d/internal/socks6"
)

// SOCKS6Server serves SOCKS6 CONNECT requests without authentication.
type SOCKS6Server struct {
	server
}

// NewSOCKS6Server returns a server whose connections live no longer than
// ctx.
func NewSOCKS6Server(ctx context.Context, cfg Config) *SOCKS6Server {
	return &SOCKS6Server{server: newServer(ctx, cfg, "socks6")}
}

// Serve accepts connections on ln until it is closed or the server's
// context is done.
func (s *SOCKS6Server) Serve(ln net.Listener) error {
	return s.serve(ln, s.negotiate)
}

func (s *SOCKS6Server) negotiate(ctx context.Context, log *slog.Logger, conn net.Conn, upstream *observe.Chain) (net.Conn, error) {
	h := socks6.NewHandshake(conn, s.cfg.Dialer)
	h.Logger = log
	h.Upstream = upstream

	up, err := h.Run(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug("connected", "destination", h.Request().Destination.String())
	return up, nil
}
