package socks6

import (
	"fmt"
	"io"
)

// ReplyError is returned by ClientConnect when the server answers with a
// failure.
type ReplyError struct {
	Code ReplyCode
}

func (e *ReplyError) Error() string {
	return "socks6: server replied: " + e.Code.String()
}

// ClientConnect runs the client side of a no-authentication CONNECT on rw:
// it sends the request (and initialData, if any), then reads the
// authentication and operation replies. The returned reply carries the
// server's bound address.
func ClientConnect(rw io.ReadWriter, destination Endpoint, initialData []byte) (*Reply, error) {
	if len(initialData) > 0xffff {
		return nil, fmt.Errorf("socks6: initial data too long: %d bytes", len(initialData))
	}

	req := &Request{
		Command:     CommandConnect,
		Destination: destination,
		Options:     []Option{NewAuthMethodAdvertisement(uint16(len(initialData)))},
	}
	b, err := req.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if _, err := rw.Write(append(b, initialData...)); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	auth, err := ReadAuthReply(rw)
	if err != nil {
		return nil, err
	}
	if auth.Type != AuthSuccess {
		return nil, fmt.Errorf("socks6: authentication failed")
	}

	rep, err := ReadReply(rw)
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if rep.Code != ReplySuccess {
		return rep, &ReplyError{Code: rep.Code}
	}
	return rep, nil
}
