// Package socks5 provides the small server-side SOCKS5 handshake socks6d
// uses for its SOCKS5 listener.
//
// It wraps the low-level protocol types in github.com/txthinking/socks5 to
// keep negotiation, request parsing and reply writing in one place. Only the
// no-authentication method and the CONNECT command are supported.
package socks5
