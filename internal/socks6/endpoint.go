package socks6

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"
	"unicode/utf8"
)

// Endpoint is a destination or bound address: a domain name or IP literal
// plus a port.
type Endpoint struct {
	Host string
	Port uint16
}

// ParseEndpoint parses a "host:port" string.
func ParseEndpoint(s string) (Endpoint, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, err
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("port %q: %w", port, err)
	}
	return Endpoint{Host: host, Port: uint16(p)}, nil
}

// EndpointFromAddr converts a local or remote socket address. Anything other
// than a TCP address maps to 0.0.0.0:0.
func EndpointFromAddr(a net.Addr) Endpoint {
	ta, ok := a.(*net.TCPAddr)
	if !ok || ta == nil {
		return Endpoint{Host: "0.0.0.0"}
	}
	ap := ta.AddrPort()
	addr := ap.Addr().Unmap()
	if !addr.IsValid() {
		addr = netip.IPv4Unspecified()
	}
	return Endpoint{Host: addr.WithZone("").String(), Port: ap.Port()}
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// AddressType reports how Host is encoded on the wire.
func (e Endpoint) AddressType() AddressType {
	addr, err := netip.ParseAddr(e.Host)
	switch {
	case err != nil:
		return AddressDomain
	case addr.Is4():
		return AddressIPv4
	default:
		return AddressIPv6
	}
}

// appendEndpoint appends port, padding, address type and address.
func appendEndpoint(b []byte, e Endpoint) ([]byte, error) {
	b = binary.BigEndian.AppendUint16(b, e.Port)
	b = append(b, 0x00)

	atyp := e.AddressType()
	b = append(b, byte(atyp))
	switch atyp {
	case AddressIPv4:
		a4 := netip.MustParseAddr(e.Host).As4()
		return append(b, a4[:]...), nil
	case AddressIPv6:
		addr := netip.MustParseAddr(e.Host)
		if addr.Zone() != "" {
			return nil, fmt.Errorf("socks6: cannot encode zone of %q", e.Host)
		}
		a16 := addr.As16()
		return append(b, a16[:]...), nil
	default:
		if len(e.Host) == 0 || len(e.Host) > maxDomainLen {
			return nil, fmt.Errorf("socks6: domain name length %d out of range", len(e.Host))
		}
		if !utf8.ValidString(e.Host) {
			return nil, fmt.Errorf("socks6: domain name %q is not UTF-8", e.Host)
		}
		b = append(b, byte(len(e.Host)))
		return append(b, e.Host...), nil
	}
}

// readEndpoint reads port, padding, address type and address.
func readEndpoint(r io.Reader) (Endpoint, error) {
	var hdr [4]byte
	if err := readFull(r, hdr[:]); err != nil {
		return Endpoint{}, err
	}
	port := binary.BigEndian.Uint16(hdr[0:2])

	host, err := readAddress(r, AddressType(hdr[3]))
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{Host: host, Port: port}, nil
}

func readAddress(r io.Reader, atyp AddressType) (string, error) {
	switch atyp {
	case AddressIPv4:
		var b [4]byte
		if err := readFull(r, b[:]); err != nil {
			return "", err
		}
		return netip.AddrFrom4(b).String(), nil
	case AddressIPv6:
		var b [16]byte
		if err := readFull(r, b[:]); err != nil {
			return "", err
		}
		return netip.AddrFrom16(b).String(), nil
	case AddressDomain:
		var n [1]byte
		if err := readFull(r, n[:]); err != nil {
			return "", err
		}
		b := make([]byte, int(n[0]))
		if err := readFull(r, b); err != nil {
			return "", err
		}
		// Peers may pad the name with NULs to 4-byte alignment.
		b = bytes.TrimRight(b, "\x00")
		if len(b) == 0 {
			return "", fmt.Errorf("%w: empty domain name", ErrMalformedMessage)
		}
		if !utf8.Valid(b) {
			return "", fmt.Errorf("%w: domain name is not UTF-8", ErrMalformedMessage)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("%w 0x%02x", errAddressType, byte(atyp))
	}
}

// readFull is io.ReadFull, except that a stream ending before the first byte
// is also reported as io.ErrUnexpectedEOF: every read inside a message is
// mid-message.
func readFull(r io.Reader, b []byte) error {
	_, err := io.ReadFull(r, b)
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
