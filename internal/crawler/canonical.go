package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL marks a link that cannot become a canonical URL: garbage
// input or a non-HTTP(S) scheme. Callers drop the link and move on.
var ErrInvalidURL = errors.New("invalid url")

// Canonicalize resolves raw against base and reduces it to the stable
// dedup key used for node identity: scheme and host lower-cased, default
// port stripped, fragment removed, empty path collapsed to "/", trailing
// slash stripped on non-root paths. The query survives verbatim since it
// distinguishes parameter endpoints. The returned URL is the resolved
// absolute form used for fetching.
//
// The function is pure: the same input always yields the same key, and
// feeding a key back through yields the key unchanged.
func Canonicalize(base *url.URL, raw string) (string, *url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	var u *url.URL
	var err error
	if base != nil {
		u, err = base.Parse(raw)
	} else {
		u, err = url.Parse(raw)
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", nil, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	u.Scheme = scheme
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != defaultPort(scheme) {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}
	u.Fragment = ""
	u.RawFragment = ""

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}

	key := scheme + "://" + u.Host + path
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key, u, nil
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}
