package types

import (
	"net/url"
	"strings"
)

// NormaliseDomain canonicalises a user-supplied target domain: lowercase,
// leading "www." stripped, no scheme/path/port retained. It accepts
// either a bare host or a full URL so callers don't have to pre-parse
// sheet-column input. The law this enforces (SPEC_FULL.md §8):
//
//	NormaliseDomain("https://www.Foo.com/bar") == "foo.com" == NormaliseDomain("FOO.com")
func NormaliseDomain(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}

	host := s
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			host = u.Host
		}
	}

	host = strings.ToLower(host)
	if idx := strings.IndexByte(host, ':'); idx != -1 {
		host = host[:idx]
	}
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimSuffix(host, "/")
	return host
}

// HostMatchesTarget reports whether a resolved link's host is the
// target domain itself or a subdomain of it, per the extraction
// predicate in SPEC_FULL.md §4.3 step 2.
func HostMatchesTarget(host, targetDomain string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	if idx := strings.IndexByte(host, ':'); idx != -1 {
		host = host[:idx]
	}
	if host == targetDomain {
		return true
	}
	return strings.HasSuffix(host, "."+targetDomain)
}

// ValidateURL enforces the malformed_input rejection point at enqueue
// time (SPEC_FULL.md §7): the URL must parse and carry an http(s)
// scheme and a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	if u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
