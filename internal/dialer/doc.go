// Package dialer provides the outbound connect primitive used by socks6d
// listeners.
//
// Dialers implement a small interface (DialContext) so proxy servers and
// the SOCKS6 handshake can be tested against fakes. Classify maps a dial
// error onto the failure kinds SOCKS replies can express.
package dialer
