// Package tor routes fetches through Tor or any SOCKS5 proxy.
//
// Proxy wraps a SOCKS5 dialer (golang.org/x/net/proxy) and builds the
// http.Transport used by the fetcher. Daemon starts an embedded Tor process
// through tornago for the --tor mode. OriginOf is the origin resolver used
// when crawling onion services: it rejects .onion hosts whose v3 checksum
// does not verify, so mistyped addresses fail without a network round trip.
package tor
