package fetch

import (
	"net/http"

	"github.com/nao1215/levelcrawl/internal/config"
)

// siteTransport wraps an http.RoundTripper to add the cookie and headers of
// the request's site, as configured in the config file. Redirects go through
// RoundTrip again, so each hop gets the settings of its own host.
type siteTransport struct {
	base  http.RoundTripper
	sites *config.File
}

// RoundTrip implements http.RoundTripper.
func (t *siteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	site := t.sites.GetSiteConfig(req.URL.Hostname())
	if site.Cookie == "" && len(site.Headers) == 0 {
		return t.base.RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request.
	clone := req.Clone(req.Context())

	if site.Cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+site.Cookie)
		} else {
			clone.Header.Set("Cookie", site.Cookie)
		}
	}
	for key, value := range site.Headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
