// Package proxy implements the socks6d listener-side servers and the relay
// engine they share.
//
// It contains the SOCKS6 and SOCKS5 servers, the accept loop, keepalive and
// SO_REUSEPORT listeners, and CopyBidirectional, which pumps bytes between
// an established client/destination pair through per-direction observer
// chains.
package proxy
