package socks6

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// AuthReply is the first message the server sends: the outcome of
// authentication.
type AuthReply struct {
	Type    AuthReplyType
	Options []Option
}

// MarshalBinary encodes r in wire format.
func (r *AuthReply) MarshalBinary() ([]byte, error) {
	opts, err := appendOptions(nil, r.Options)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 0, 4+len(opts))
	b = append(b, Version, byte(r.Type))
	b = binary.BigEndian.AppendUint16(b, uint16(len(opts)))
	return append(b, opts...), nil
}

// ReadAuthReply reads one authentication reply from r.
func ReadAuthReply(r io.Reader) (*AuthReply, error) {
	var hdr [4]byte
	if err := readFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("auth reply: %w", err)
	}
	if hdr[0] != Version {
		return nil, fmt.Errorf("%w: got %d", errVersion, hdr[0])
	}
	opts, err := readOptions(r, int(binary.BigEndian.Uint16(hdr[2:4])))
	if err != nil {
		return nil, fmt.Errorf("auth reply: %w", err)
	}
	return &AuthReply{Type: AuthReplyType(hdr[1]), Options: opts}, nil
}

// Reply is the operation reply sent once the request has been handled.
type Reply struct {
	Code    ReplyCode
	Bound   Endpoint
	Options []Option
}

// MarshalBinary encodes r in wire format.
func (r *Reply) MarshalBinary() ([]byte, error) {
	opts, err := appendOptions(nil, r.Options)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 0, requestHeaderLen+16+len(opts))
	b = append(b, Version, byte(r.Code))
	b = binary.BigEndian.AppendUint16(b, uint16(len(opts)))
	b, err = appendEndpoint(b, r.Bound)
	if err != nil {
		return nil, err
	}
	return append(b, opts...), nil
}

// DecodeReply decodes an operation reply from b.
func DecodeReply(b []byte) (*Reply, error) {
	rep, err := ReadReply(bytes.NewReader(b))
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, errTruncated
	}
	return rep, err
}

// ReadReply reads one operation reply from r.
func ReadReply(r io.Reader) (*Reply, error) {
	var hdr [4]byte
	if err := readFull(r, hdr[:]); err != nil {
		return nil, err
	}
	if hdr[0] != Version {
		return nil, fmt.Errorf("%w: got %d", errVersion, hdr[0])
	}
	bound, err := readEndpoint(r)
	if err != nil {
		return nil, err
	}
	opts, err := readOptions(r, int(binary.BigEndian.Uint16(hdr[2:4])))
	if err != nil {
		return nil, err
	}
	return &Reply{Code: ReplyCode(hdr[1]), Bound: bound, Options: opts}, nil
}

var noAuthReply = []byte{Version, byte(AuthSuccess), 0x00, 0x00}

// EncodeNoAuthReply returns the authentication reply telling the client no
// authentication is required.
func EncodeNoAuthReply() []byte {
	return bytes.Clone(noAuthReply)
}

// EncodeSuccessReply returns a success operation reply carrying bound as the
// bound address.
func EncodeSuccessReply(bound Endpoint) ([]byte, error) {
	return (&Reply{Code: ReplySuccess, Bound: bound}).MarshalBinary()
}

// EncodeFailureReply returns an operation reply with the given failure code
// and a zero bound address.
func EncodeFailureReply(code ReplyCode) []byte {
	// VER REP OPTLEN(2) PORT(2) PAD ATYP ADDR(4)
	return []byte{Version, byte(code), 0x00, 0x00, 0x00, 0x00, 0x00, byte(AddressIPv4), 0x00, 0x00, 0x00, 0x00}
}
