package helpers

import (
	"net/url"
	"strings"
)

// ResolveURL resolves ref against base. It returns ref unchanged when either
// side does not parse.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return r.String()
	}
	return b.ResolveReference(r).String()
}

// StripQuery removes the query string and fragment from a URL
func StripQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// StripFragment removes only the fragment from a URL
func StripFragment(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// SameHost reports whether both URLs point at the same host
func SameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Hostname(), ub.Hostname())
}

// InventoryTail returns the path segments that follow prefix in the URL
// path. The second result is false when the path does not contain prefix.
func InventoryTail(raw, prefix string) ([]string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	idx := strings.Index(u.Path, prefix)
	if idx < 0 {
		return nil, false
	}
	tail := strings.Trim(u.Path[idx+len(prefix):], "/")
	if tail == "" {
		return []string{}, true
	}
	return strings.Split(tail, "/"), true
}

// NormalizePrefix makes sure a path prefix starts and ends with a slash
func NormalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "/"
	}
	return "/" + prefix + "/"
}
