package proxy

import (
	"log/slog"
	"time"

	"github.com/die-net/socks6d/internal/dialer"
	"github.com/die-net/socks6d/internal/observe"
)

type Config struct {
	NegotiationTimeout time.Duration

	// IdleTimeout closes a relayed pair after no bytes have moved in either
	// direction for this long. Zero disables it.
	IdleTimeout time.Duration

	Dialer dialer.Dialer

	Observers observe.Pipeline

	Logger *slog.Logger
}
