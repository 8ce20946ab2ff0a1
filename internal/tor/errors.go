package tor

import "errors"

// Proxy and daemon errors.
var (
	// ErrInvalidProxyAddress is returned when the proxy address is not in
	// "host:port" form.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrProxyNotSOCKS5 is returned when the proxy answers but does not speak
	// SOCKS5 without authentication.
	ErrProxyNotSOCKS5 = errors.New("proxy is not a SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when the proxy cannot be reached.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")

	// ErrProxyTimeout is returned when the proxy does not answer in time.
	ErrProxyTimeout = errors.New("timeout connecting to proxy")

	// ErrDaemonNotRunning is returned when the embedded daemon is used before
	// Start or after Stop.
	ErrDaemonNotRunning = errors.New("embedded Tor daemon is not running")

	// ErrInvalidOnionAddress is returned for a .onion host that is not a
	// valid v3 address.
	ErrInvalidOnionAddress = errors.New("invalid onion address")

	// ErrV2AddressDeprecated is returned for a v2 .onion host.
	// V2 addresses stopped working in October 2021.
	ErrV2AddressDeprecated = errors.New("v2 onion addresses are deprecated and no longer functional")
)

// ProxyStatus is the result of checking a SOCKS5 proxy.
type ProxyStatus int

const (
	// ProxyStatusOK indicates the proxy completed a SOCKS5 greeting.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType indicates the peer answered but not as a SOCKS5
	// proxy accepting unauthenticated clients.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect indicates the TCP connection failed.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the check timed out.
	ProxyStatusTimeout
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not SOCKS5)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Err returns the error for this status, or nil if OK.
func (s ProxyStatus) Err() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrProxyNotSOCKS5
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
