package generator

import "regexp"

// internalEndpoint matches textual endpoints in private, loopback or
// link-local ranges: IPv4 127.0.0.0/8, 10.0.0.0/8, 172.16.0.0/12 and
// 192.168.0.0/16, IPv6 loopback ::1 and unique-local fc00::/7 literals.
// The value is matched as literal text, never resolved: a hostname that is
// not a dotted/colon IP literal fails to match and counts as external.
// Compiled once at init and read-only thereafter.
var internalEndpoint = regexp.MustCompile(
	`^(?:127\.|10\.|192\.168\.|172\.(?:1[6-9]|2[0-9]|3[01])\.)` +
		`|^::1$` +
		`|^(?i:f[cd][0-9a-f]{2}):`,
)

// IsInternal reports whether a textual hostname/IP falls in a private,
// loopback or unique-local range. This is a deliberate approximation;
// callers must not assume network-topology awareness.
func IsInternal(endpoint []byte) bool {
	return internalEndpoint.Match(endpoint)
}
