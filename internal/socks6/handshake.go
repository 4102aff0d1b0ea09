package socks6

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/die-net/socks6d/internal/dialer"
	"github.com/die-net/socks6d/internal/observe"
)

// State is a step of the server-side handshake.
type State int

const (
	AwaitRequest State = iota
	AuthenticationSelected
	ConnectingDestination
	Established
	Aborted
)

func (s State) String() string {
	switch s {
	case AwaitRequest:
		return "AwaitRequest"
	case AuthenticationSelected:
		return "AuthenticationSelected"
	case ConnectingDestination:
		return "ConnectingDestination"
	case Established:
		return "Established"
	case Aborted:
		return "Aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const initialDataChunk = 16 * 1024

// Handshake negotiates one inbound connection on the no-authentication
// CONNECT path. A Handshake is single-use.
type Handshake struct {
	// Logger, if set, receives state transitions at debug level.
	Logger *slog.Logger

	// Upstream, if set, processes initial data on its way to the
	// destination. Pass the chain that will later relay the same direction
	// so it sees one continuous stream.
	Upstream *observe.Chain

	source net.Conn
	dialer dialer.Dialer
	state  State
	req    *Request
}

func NewHandshake(source net.Conn, d dialer.Dialer) *Handshake {
	return &Handshake{source: source, dialer: d}
}

// State reports where the handshake is, or where it stopped.
func (h *Handshake) State() State {
	return h.state
}

// Request returns the decoded client request, or nil if none was read.
func (h *Handshake) Request() *Request {
	return h.req
}

// Run reads the client's request, connects to its destination and replies.
// On success it returns the connected destination, which the caller owns.
// On failure a best-effort failure reply has been written to source; closing
// source is left to the caller.
func (h *Handshake) Run(ctx context.Context) (net.Conn, error) {
	req, err := ReadRequest(h.source)
	if err != nil {
		switch {
		case errors.Is(err, errVersion):
			// Tell the peer which version we speak.
			_, _ = h.source.Write([]byte{Version})
		case errors.Is(err, errAddressType):
			_, _ = h.source.Write(EncodeFailureReply(ReplyAddressNotSupported))
		case errors.Is(err, ErrMalformedMessage):
			_, _ = h.source.Write(EncodeFailureReply(ReplyGeneralFailure))
		}
		return nil, h.abort(fmt.Errorf("read request: %w", err))
	}
	h.req = req

	if _, err := h.source.Write(EncodeNoAuthReply()); err != nil {
		return nil, h.abort(fmt.Errorf("write auth reply: %w", err))
	}
	h.transition(AuthenticationSelected)

	if req.Command != CommandConnect {
		_, _ = h.source.Write(EncodeFailureReply(ReplyCommandNotSupported))
		return nil, h.abort(fmt.Errorf("%w: %s", ErrUnsupportedCommand, req.Command))
	}

	h.transition(ConnectingDestination)
	dst, err := h.dialer.DialContext(ctx, "tcp", req.Destination.String())
	if err != nil {
		_, _ = h.source.Write(EncodeFailureReply(replyCodeFor(dialer.Classify(err))))
		return nil, h.abort(fmt.Errorf("%w: %w", ErrUpstreamConnect, err))
	}

	if err := h.finish(req, dst); err != nil {
		_ = dst.Close()
		return nil, h.abort(err)
	}
	h.transition(Established)
	return dst, nil
}

// finish forwards any announced initial data and sends the success reply.
func (h *Handshake) finish(req *Request, dst net.Conn) error {
	if n := int(req.InitialDataLength()); n > 0 {
		if err := h.forwardInitialData(dst, n); err != nil {
			return fmt.Errorf("forward initial data: %w", err)
		}
	}

	rep, err := EncodeSuccessReply(EndpointFromAddr(dst.LocalAddr()))
	if err != nil {
		return err
	}
	if _, err := h.source.Write(rep); err != nil {
		return fmt.Errorf("write success reply: %w", err)
	}
	return nil
}

// forwardInitialData reads exactly n bytes from source, runs them through
// Upstream and writes the result to dst.
func (h *Handshake) forwardInitialData(dst net.Conn, n int) error {
	buf := make([]byte, min(n, initialDataChunk))
	for n > 0 {
		nr, err := h.source.Read(buf[:min(n, len(buf))])
		if nr > 0 {
			n -= nr
			out, perr := h.Upstream.Process(buf[:nr])
			if perr != nil {
				return perr
			}
			if len(out) > 0 {
				if _, werr := dst.Write(out); werr != nil {
					return werr
				}
			}
		}
		if err != nil && n > 0 {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: %w", ErrIncompleteHandshake, io.ErrUnexpectedEOF)
			}
			return err
		}
	}
	return nil
}

func (h *Handshake) abort(err error) error {
	if h.Logger != nil {
		h.Logger.Debug("handshake aborted", "state", h.state, "error", err)
	}
	h.state = Aborted
	return err
}

func (h *Handshake) transition(s State) {
	if h.Logger != nil {
		h.Logger.Debug("handshake", "from", h.state, "to", s)
	}
	h.state = s
}

func replyCodeFor(f dialer.Failure) ReplyCode {
	switch f {
	case dialer.FailureRefused:
		return ReplyConnectionRefused
	case dialer.FailureNetworkUnreachable:
		return ReplyNetworkUnreachable
	case dialer.FailureHostUnreachable:
		return ReplyHostUnreachable
	case dialer.FailureTimeout:
		return ReplyTimeout
	default:
		return ReplyGeneralFailure
	}
}
