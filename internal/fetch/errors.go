package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrOnionWithoutProxy is returned when an onion address is fetched
	// without a SOCKS5 proxy.
	ErrOnionWithoutProxy = errors.New("onion addresses require --tor or --proxy")

	// ErrUnsupportedEncoding is returned for a Content-Encoding the fetcher
	// did not ask for and cannot decode.
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")

	// ErrUnsupportedScheme is returned for addresses that are not http or https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
)

// StatusError is returned when the server answers with a status of 400 or
// above.
type StatusError struct {
	// URL is the address that was requested.
	URL string

	// Code is the HTTP status code.
	Code int

	// Status is the status line, e.g. "404 Not Found".
	Status string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}
