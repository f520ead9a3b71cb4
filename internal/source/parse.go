// Package source parses resource arguments given on the command line.
package source

import (
	"net/url"
	"strings"
)

func Normalize(raw string) string {
	return strings.TrimSpace(raw)
}

func IsHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// CanonicalKey returns a comparable form of an http(s) URL: scheme and host
// lowercased, fragment dropped. Other input is returned trimmed.
func CanonicalKey(raw string) string {
	s := Normalize(raw)
	if !IsHTTPURL(s) {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

// ParseCommaArg splits "primary,mirror,..." into the primary URL and the
// list of candidates, primary first. Entries that are not http(s) URLs are
// skipped; an argument with no usable URL yields "", nil.
func ParseCommaArg(arg string) (string, []string) {
	primary := ""
	var mirrors []string
	seen := make(map[string]bool)

	for _, p := range strings.Split(arg, ",") {
		clean := Normalize(p)
		if clean == "" || !IsHTTPURL(clean) {
			continue
		}
		key := CanonicalKey(clean)
		if seen[key] {
			continue
		}
		seen[key] = true
		if primary == "" {
			primary = clean
		}
		mirrors = append(mirrors, clean)
	}

	if primary == "" {
		return "", nil
	}
	return primary, mirrors
}
