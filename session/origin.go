package session

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/layer-3/portal/core"
)

const (
	DefaultDevOrigin = "http://127.0.0.1:8000"
	DefaultPrefix    = "/api"
)

// Target describes where the API lives
type Target struct {
	// Development routes requests through the local dev origin
	Development bool
	// Origin is the absolute API origin used outside development
	Origin string
	// DevOrigin is the local proxy or backend used in development
	DevOrigin string
	// Prefix is the path every endpoint lives under
	Prefix string
}

// ResolveBaseURL returns the absolute URL endpoints are joined to.
// A missing or malformed origin is a configuration error.
func ResolveBaseURL(t Target) (string, error) {
	origin := t.Origin
	if t.Development {
		origin = t.DevOrigin
		if origin == "" {
			origin = DefaultDevOrigin
		}
	}

	u, err := parseOrigin(origin)
	if err != nil {
		return "", err
	}

	prefix := t.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	prefix = "/" + strings.Trim(prefix, "/")

	base := strings.TrimRight(u.Scheme+"://"+u.Host+u.EscapedPath(), "/")
	if !strings.HasSuffix(base, prefix) {
		base += prefix
	}
	return base, nil
}

// parseOrigin validates an absolute http(s) URL with a host
func parseOrigin(origin string) (*url.URL, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return nil, fmt.Errorf("%w: API origin is not set", core.ErrConfiguration)
	}

	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("%w: API origin %q: %w", core.ErrConfiguration, origin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: API origin %q must use http or https", core.ErrConfiguration, origin)
	}
	if u.Host == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: API origin %q has no host", core.ErrConfiguration, origin)
	}
	if u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return nil, fmt.Errorf("%w: API origin %q must not carry credentials, query or fragment", core.ErrConfiguration, origin)
	}

	return u, nil
}

// JoinEndpoint appends endpoint to base. Endpoints that already include the
// base path ("/api/hello" against ".../api") are not doubled.
func JoinEndpoint(base, endpoint string) string {
	if endpoint == "" || endpoint == "/" {
		return base
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	if u, err := url.Parse(base); err == nil && u.Path != "" && u.Path != "/" {
		if endpoint == u.Path || strings.HasPrefix(endpoint, u.Path+"/") || strings.HasPrefix(endpoint, u.Path+"?") {
			endpoint = strings.TrimPrefix(endpoint, u.Path)
		}
	}

	return strings.TrimRight(base, "/") + endpoint
}
