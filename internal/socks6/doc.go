// Package socks6 implements the subset of SOCKS protocol version 6
// (draft-olteanu-intarea-socks-6-11) that socks6d speaks: the request and
// reply wire codec, and the server-side handshake for the no-authentication
// CONNECT path.
//
// The codec is pure: encoders return byte slices and decoders consume byte
// slices or an io.Reader without touching anything else. Handshake drives
// one inbound connection through the negotiation states and hands back the
// connected destination; relaying bytes afterwards is the caller's job.
//
// Options carried in requests are skipped by their declared lengths. The only
// option socks6d looks inside is the authentication method advertisement,
// for the length of any initial data the client sends after the request.
package socks6
