package config

import (
	"maps"
	"net/url"
	"strings"
)

// SiteConfig holds the settings of one site section of the config file.
type SiteConfig struct {
	// Cookie is sent with every request to the site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra HTTP headers sent with every request to the site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Excludes are extra exclusion filters for traversals seeded on the site.
	Excludes []string `yaml:"excludes,omitempty"`
}

// Profile is the crawl profile of the defaults section. Zero values leave
// the built-in defaults untouched.
type Profile struct {
	Depth       int      `yaml:"depth,omitempty"`
	Downloaders int      `yaml:"downloaders,omitempty"`
	Extractors  int      `yaml:"extractors,omitempty"`
	PerHost     int      `yaml:"perHost,omitempty"`
	Excludes    []string `yaml:"excludes,omitempty"`

	// Cookie and Headers apply to every site without its own value.
	Cookie  string            `yaml:"cookie,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// File represents the structure of the .levelcrawl configuration file.
type File struct {
	// Defaults is the crawl profile applied to every invocation.
	Defaults Profile `yaml:"defaults,omitempty"`

	// Sites maps a host name (without scheme or port) to its settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`
}

// GetSiteConfig returns the request settings for host: the site section
// merged over the defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := SiteConfig{
		Cookie:  cf.Defaults.Cookie,
		Headers: maps.Clone(cf.Defaults.Headers),
	}

	if site, ok := cf.Sites[strings.ToLower(host)]; ok {
		if site.Cookie != "" {
			result.Cookie = site.Cookie
		}
		if len(site.Headers) > 0 {
			if result.Headers == nil {
				result.Headers = make(map[string]string, len(site.Headers))
			}
			maps.Copy(result.Headers, site.Headers)
		}
		result.Excludes = site.Excludes
	}

	return result
}

// hostOf returns the lower-cased host name of address, or address itself
// when it does not parse as an absolute URL.
func hostOf(address string) string {
	u, err := url.Parse(address)
	if err != nil || u.Hostname() == "" {
		return strings.ToLower(address)
	}
	return strings.ToLower(u.Hostname())
}
