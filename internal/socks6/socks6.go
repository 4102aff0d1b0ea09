package socks6

import (
	"errors"
	"fmt"
)

// Version is the protocol version byte carried by every message.
const Version = 0x06

// Command is the operation a client requests.
type Command byte

const (
	CommandNoop         Command = 0x00
	CommandConnect      Command = 0x01
	CommandBind         Command = 0x02
	CommandUDPAssociate Command = 0x03
)

func (c Command) String() string {
	switch c {
	case CommandNoop:
		return "NOOP"
	case CommandConnect:
		return "CONNECT"
	case CommandBind:
		return "BIND"
	case CommandUDPAssociate:
		return "UDP ASSOCIATE"
	default:
		return fmt.Sprintf("command(0x%02x)", byte(c))
	}
}

// AddressType tags the encoding of an address field.
type AddressType byte

const (
	AddressIPv4   AddressType = 0x01
	AddressDomain AddressType = 0x03
	AddressIPv6   AddressType = 0x04
)

// ReplyCode is the status carried by an operation reply.
type ReplyCode byte

const (
	ReplySuccess             ReplyCode = 0x00
	ReplyGeneralFailure      ReplyCode = 0x01
	ReplyNotAllowed          ReplyCode = 0x02
	ReplyNetworkUnreachable  ReplyCode = 0x03
	ReplyHostUnreachable     ReplyCode = 0x04
	ReplyConnectionRefused   ReplyCode = 0x05
	ReplyTTLExpired          ReplyCode = 0x06
	ReplyCommandNotSupported ReplyCode = 0x07
	ReplyAddressNotSupported ReplyCode = 0x08
	ReplyTimeout             ReplyCode = 0x09
)

func (c ReplyCode) String() string {
	switch c {
	case ReplySuccess:
		return "success"
	case ReplyGeneralFailure:
		return "general SOCKS server failure"
	case ReplyNotAllowed:
		return "connection not allowed by ruleset"
	case ReplyNetworkUnreachable:
		return "network unreachable"
	case ReplyHostUnreachable:
		return "host unreachable"
	case ReplyConnectionRefused:
		return "connection refused"
	case ReplyTTLExpired:
		return "TTL expired"
	case ReplyCommandNotSupported:
		return "command not supported"
	case ReplyAddressNotSupported:
		return "address type not supported"
	case ReplyTimeout:
		return "timeout expired"
	default:
		return fmt.Sprintf("reply(0x%02x)", byte(c))
	}
}

// AuthReplyType is the status carried by an authentication reply.
type AuthReplyType byte

const (
	AuthSuccess AuthReplyType = 0x00
	AuthFailure AuthReplyType = 0x01
)

// Option kinds. Only OptionAuthMethodAdvertisement is ever interpreted.
const (
	OptionStack                   uint16 = 0x0001
	OptionAuthMethodAdvertisement uint16 = 0x0002
	OptionAuthMethodSelection     uint16 = 0x0003
	OptionAuthData                uint16 = 0x0004
)

const (
	requestHeaderLen = 8
	optionHeaderLen  = 4
	maxDomainLen     = 255
	maxOptionsLen    = 0xffff
)

var (
	// ErrMalformedMessage reports wire data that cannot be parsed.
	ErrMalformedMessage = errors.New("socks6: malformed message")

	// ErrUnsupportedCommand reports a well-formed request for an operation
	// other than CONNECT.
	ErrUnsupportedCommand = errors.New("socks6: unsupported command")

	// ErrIncompleteHandshake reports a peer that closed before the
	// handshake completed.
	ErrIncompleteHandshake = errors.New("socks6: incomplete handshake")

	// ErrUpstreamConnect reports a failure to connect to the requested
	// destination.
	ErrUpstreamConnect = errors.New("socks6: upstream connect failed")

	errVersion     = fmt.Errorf("%w: version mismatch", ErrMalformedMessage)
	errAddressType = fmt.Errorf("%w: unsupported address type", ErrMalformedMessage)
	errTruncated   = fmt.Errorf("%w: truncated", ErrMalformedMessage)
)
