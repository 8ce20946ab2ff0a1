package tor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// checkProxyTimeout bounds the SOCKS5 greeting done by Check.
const checkProxyTimeout = 2 * time.Second

// SOCKS5 protocol constants
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthNoAccept = 0xFF
)

// Proxy is a SOCKS5 proxy that fetches can be routed through.
type Proxy struct {
	// address is the proxy address in "host:port" format.
	address string

	// dialer is the SOCKS5 dialer. The x/net implementation supports
	// DialContext, so cancelled fetches stop dialing.
	dialer proxy.ContextDialer
}

// NewProxy creates a Proxy for the given "host:port" address.
// It does not connect; call Check to verify the proxy is up.
func NewProxy(address string) (*Proxy, error) {
	if !isValidProxyAddress(address) {
		return nil, ErrInvalidProxyAddress
	}

	// Tor's SOCKS port does not require authentication.
	d, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer for %s does not support contexts", address)
	}

	return &Proxy{address: address, dialer: cd}, nil
}

// isValidProxyAddress checks that address is "host:port" with a port in 1-65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// Address returns the proxy address.
func (p *Proxy) Address() string {
	return p.address
}

// DialContext connects to address through the proxy.
func (p *Proxy) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return p.dialer.DialContext(ctx, network, address)
}

// Transport returns an http.Transport that dials through the proxy.
//
// TLS verification is disabled because onion services commonly use
// self-signed certificates; the onion address authenticates the service.
// Compression is left to the fetcher, which negotiates brotli and gzip itself.
func (p *Proxy) Transport() *http.Transport {
	return &http.Transport{
		DialContext: p.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // Required for .onion services
		},
		// Each connection is a Tor circuit; keep the idle pool small.
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  true,
	}
}

// Check performs a SOCKS5 greeting with the proxy and reports the outcome.
func (p *Proxy) Check(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Client greeting: version, one method, "no authentication".
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	// Server choice: version, selected method.
	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}

	if resp[0] != socks5Version || resp[1] == socks5AuthNoAccept || resp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}
