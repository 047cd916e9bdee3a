package proxy

import (
	neturl "net/url"
	"strings"
)

// urlDecode converts percent-encoded sequences like %2f into their byte
// values. Unlike url.PathUnescape it never fails on malformed input.
func urlDecode(url string) string {
	b := make([]byte, 0, len(url))
	for i := 0; i < len(url); i++ {
		c := url[i]
		if c == '%' && i+2 < len(url) && isHex(url[i+1]) && isHex(url[i+2]) {
			b = append(b, fromHex(url[i+1])<<4|fromHex(url[i+2]))
			i += 2
		} else {
			b = append(b, c)
		}
	}
	return string(b)
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	}
	return 0
}

// buildURL resolves action against base and appends the get query, the way
// a GET form submission from the proxied page would.
func buildURL(base, action, get string) string {
	decodedBase := urlDecode(urlDecode(base))
	finalURL, err := neturl.Parse(decodedBase)
	if err != nil {
		return decodedBase
	}
	if action != "" {
		if ref, err := neturl.Parse(urlDecode(action)); err == nil {
			finalURL = finalURL.ResolveReference(ref)
		}
	}
	if get != "" {
		if finalURL.RawQuery != "" {
			finalURL.RawQuery += "&" + get
		} else {
			finalURL.RawQuery = get
		}
	}
	return finalURL.String()
}

// normalizeTargetURL accepts what users type into the fetch form: encoded
// urls, bare hosts and scheme-relative urls.
func normalizeTargetURL(u string) string {
	s := strings.TrimSpace(u)
	if s == "" {
		return s
	}
	s = urlDecode(s)
	lower := strings.ToLower(s)
	if !(strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")) {
		s = "http://" + strings.TrimPrefix(s, "//")
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
