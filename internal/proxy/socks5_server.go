package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/die-net/socks6d/internal/dialer"
	"github.com/die-net/socks6d/internal/observe"
	"github.com/die-net/socks6d/internal/socks5"
)

// SOCKS5Server serves SOCKS5 CONNECT requests without authentication,
// through the same dialer, observers and relay as SOCKS6Server.
type SOCKS5Server struct {
	server
}

func NewSOCKS5Server(ctx context.Context, cfg Config) *SOCKS5Server {
	return &SOCKS5Server{server: newServer(ctx, cfg, "socks5")}
}

func (s *SOCKS5Server) Serve(ln net.Listener) error {
	return s.serve(ln, s.negotiate)
}

// SOCKS5 has no initial data, so the upstream chain first sees bytes in the
// relay.
func (s *SOCKS5Server) negotiate(ctx context.Context, log *slog.Logger, conn net.Conn, _ *observe.Chain) (net.Conn, error) {
	if err := socks5.ServerNegotiateNoAuth(conn); err != nil {
		return nil, err
	}

	req, err := socks5.ServerReadRequest(conn)
	if err != nil {
		return nil, err
	}
	if req.Cmd != socks5.CmdConnect {
		socks5.WriteCommandNotSupportedReply(conn, req.Atyp)
		return nil, fmt.Errorf("unsupported command %d", req.Cmd)
	}

	dst := req.Address()
	up, err := s.cfg.Dialer.DialContext(ctx, "tcp", dst)
	if err != nil {
		socks5.WriteFailureReply(conn, dialer.Classify(err), req.Atyp)
		return nil, err
	}

	if err := socks5.WriteSuccessReply(conn, up.LocalAddr()); err != nil {
		_ = up.Close()
		return nil, err
	}
	log.Debug("connected", "destination", dst)
	return up, nil
}
