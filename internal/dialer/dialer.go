package dialer

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
)

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Failure is the reason an outbound connection could not be made, in the
// granularity SOCKS replies can report.
type Failure int

const (
	FailureGeneral Failure = iota
	FailureNetworkUnreachable
	FailureHostUnreachable
	FailureRefused
	FailureTimeout
)

func (f Failure) String() string {
	switch f {
	case FailureNetworkUnreachable:
		return "network unreachable"
	case FailureHostUnreachable:
		return "host unreachable"
	case FailureRefused:
		return "connection refused"
	case FailureTimeout:
		return "timeout"
	default:
		return "general failure"
	}
}

// Classify maps a dial error onto a Failure.
func Classify(err error) Failure {
	var dnsErr *net.DNSError
	switch {
	case err == nil:
		return FailureGeneral
	case errors.Is(err, syscall.ECONNREFUSED):
		return FailureRefused
	case errors.Is(err, syscall.ENETUNREACH):
		return FailureNetworkUnreachable
	case errors.Is(err, syscall.EHOSTUNREACH):
		return FailureHostUnreachable
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return FailureTimeout
		}
		return FailureHostUnreachable
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FailureTimeout
	}
	return FailureGeneral
}
