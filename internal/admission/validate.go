package admission

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	insecurePrefix = "http://"
	securePrefix   = "https://"
)

var schemePrefix = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)

// UpgradeScheme rewrites a leading "http://" (any case) to "https://".
// Occurrences later in the string are left untouched.
func UpgradeScheme(s string) string {
	if len(s) >= len(insecurePrefix) && strings.EqualFold(s[:len(insecurePrefix)], insecurePrefix) {
		return securePrefix + s[len(insecurePrefix):]
	}
	return s
}

// LooksLikeURL reports whether s starts with a "scheme://" prefix. Base64
// and data URIs never do.
func LooksLikeURL(s string) bool {
	return schemePrefix.MatchString(s)
}

// CheckSize fails with kind when n exceeds limit.
func CheckSize(n, limit int64, kind Kind) error {
	if n > limit {
		return fail(kind, fmt.Errorf("size %d exceeds limit %d", n, limit))
	}
	return nil
}

// StripDataURIPrefix drops everything up to and including the first comma,
// so "data:image/png;base64,AAAA" becomes "AAAA". Input without a comma is
// returned unchanged.
func StripDataURIPrefix(s string) string {
	if i := strings.IndexByte(s, ','); i >= 0 {
		return s[i+1:]
	}
	return s
}

// DecodeInline decodes a base64 image payload. The encoded length is checked
// against maxEncodedLen before any decoding work happens.
func DecodeInline(s string, maxEncodedLen int) ([]byte, error) {
	if err := CheckSize(int64(len(s)), int64(maxEncodedLen), KindPayloadTooLarge); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(StripDataURIPrefix(s))
	if err != nil {
		return nil, fail(KindBase64Invalid, err)
	}
	return data, nil
}

// ValidateURL checks raw against the decode URL policy. Checks run in a fixed
// order and the first failure is returned:
//
//  1. raw parses as a URL
//  2. the scheme is https
//  3. a host is present
//  4. the host equals, or is a subdomain of, an allowed domain
//  5. the lower-cased path ends with an allowed image extension
func ValidateURL(raw string, allowedDomains, extensions []string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fail(KindInvalidURL, err)
	}
	if u.Scheme != "https" {
		return fail(KindInsecureScheme, fmt.Errorf("scheme %q", u.Scheme))
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fail(KindInvalidHost, nil)
	}
	if !HostAllowed(host, allowedDomains) {
		return fail(KindDomainNotAllowed, fmt.Errorf("host %q", host))
	}
	path := strings.ToLower(u.Path)
	for _, ext := range extensions {
		if strings.HasSuffix(path, strings.ToLower(ext)) {
			return nil
		}
	}
	return fail(KindNotImageExtension, fmt.Errorf("path %q", u.Path))
}

// HostAllowed reports whether host equals one of domains or ends with
// "." + domain. Comparison is case-insensitive.
func HostAllowed(host string, domains []string) bool {
	host = strings.ToLower(host)
	for _, d := range domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// LossyString converts a decoded payload to text, writing U+FFFD for each
// byte that does not start a valid UTF-8 sequence.
func LossyString(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b) + 8)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
		} else {
			sb.Write(b[:size])
		}
		b = b[size:]
	}
	return sb.String()
}
