package socks6

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Option is one entry of a message's option block, kept opaque. Nil and
// empty Data encode identically; decoding a header-only option yields nil.
type Option struct {
	Kind uint16
	Data []byte
}

// NewAuthMethodAdvertisement builds the option a client uses to announce
// initial data and the authentication methods it supports.
func NewAuthMethodAdvertisement(initialDataLen uint16, methods ...byte) Option {
	data := binary.BigEndian.AppendUint16(nil, initialDataLen)
	data = append(data, methods...)
	for (optionHeaderLen+len(data))%4 != 0 {
		data = append(data, 0x00)
	}
	return Option{Kind: OptionAuthMethodAdvertisement, Data: data}
}

// Request is a decoded client request.
type Request struct {
	Command     Command
	Destination Endpoint
	Options     []Option
}

// InitialDataLength reports how many bytes of initial data the client
// announced it would send right after the request.
func (r *Request) InitialDataLength() uint16 {
	for _, o := range r.Options {
		if o.Kind == OptionAuthMethodAdvertisement && len(o.Data) >= 2 {
			return binary.BigEndian.Uint16(o.Data[:2])
		}
	}
	return 0
}

// MarshalBinary encodes r in wire format.
func (r *Request) MarshalBinary() ([]byte, error) {
	opts, err := appendOptions(nil, r.Options)
	if err != nil {
		return nil, err
	}

	b := make([]byte, 0, requestHeaderLen+maxDomainLen+1+len(opts))
	b = append(b, Version, byte(r.Command))
	b = binary.BigEndian.AppendUint16(b, uint16(len(opts)))
	b, err = appendEndpoint(b, r.Destination)
	if err != nil {
		return nil, err
	}
	return append(b, opts...), nil
}

// DecodeRequest decodes a request from b. Bytes following the request, such
// as initial data, are ignored.
func DecodeRequest(b []byte) (*Request, error) {
	req, err := ReadRequest(bytes.NewReader(b))
	if errors.Is(err, ErrIncompleteHandshake) {
		return nil, errTruncated
	}
	return req, err
}

// ReadRequest reads exactly one request from r. A stream that ends before
// the request is complete yields ErrIncompleteHandshake.
func ReadRequest(r io.Reader) (*Request, error) {
	req, err := readRequest(r)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: %w", ErrIncompleteHandshake, err)
	}
	return req, err
}

func readRequest(r io.Reader) (*Request, error) {
	var hdr [4]byte
	if err := readFull(r, hdr[:1]); err != nil {
		return nil, err
	}
	if hdr[0] != Version {
		return nil, fmt.Errorf("%w: got %d", errVersion, hdr[0])
	}
	if err := readFull(r, hdr[1:]); err != nil {
		return nil, err
	}

	dst, err := readEndpoint(r)
	if err != nil {
		return nil, err
	}

	opts, err := readOptions(r, int(binary.BigEndian.Uint16(hdr[2:4])))
	if err != nil {
		return nil, err
	}

	return &Request{
		Command:     Command(hdr[1]),
		Destination: dst,
		Options:     opts,
	}, nil
}

func appendOptions(b []byte, opts []Option) ([]byte, error) {
	start := len(b)
	for _, o := range opts {
		n := optionHeaderLen + len(o.Data)
		if n > maxOptionsLen {
			return nil, fmt.Errorf("socks6: option 0x%04x too long", o.Kind)
		}
		b = binary.BigEndian.AppendUint16(b, o.Kind)
		b = binary.BigEndian.AppendUint16(b, uint16(n))
		b = append(b, o.Data...)
	}
	if len(b)-start > maxOptionsLen {
		return nil, errors.New("socks6: option block too long")
	}
	return b, nil
}

// readOptions reads an n byte option block. Options are split on their
// declared lengths and never interpreted here.
func readOptions(r io.Reader, n int) ([]Option, error) {
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if err := readFull(r, b); err != nil {
		return nil, err
	}

	var opts []Option
	for len(b) > 0 {
		if len(b) < optionHeaderLen {
			return nil, fmt.Errorf("%w: short option header", ErrMalformedMessage)
		}
		kind := binary.BigEndian.Uint16(b[0:2])
		l := int(binary.BigEndian.Uint16(b[2:4]))
		if l < optionHeaderLen || l > len(b) {
			return nil, fmt.Errorf("%w: option 0x%04x length %d", ErrMalformedMessage, kind, l)
		}
		o := Option{Kind: kind}
		if l > optionHeaderLen {
			o.Data = b[optionHeaderLen:l]
		}
		opts = append(opts, o)
		b = b[l:]
	}
	return opts, nil
}
