package chat

import "strings"

// Fallback values substituted when a fingerprint component is missing.
const (
	fallbackAddr     = "0.0.0.0"
	fallbackAgent    = "unknown"
	fallbackLanguage = "unknown"
)

// fingerprintSep joins the three fingerprint components. The pipe is not
// expected to occur inside an IP address, user agent, or language tag.
const fingerprintSep = "|"

// Fingerprint derives a coarse client-grouping key from request metadata.
// The same (addr, agent, language) triple always produces the same key;
// missing components collapse to fixed fallbacks, so even an empty request
// yields a stable (shared) fingerprint. This is intentional anti-abuse
// grouping, not client identity.
func Fingerprint(addr, agent, language string) string {
	if addr = strings.TrimSpace(addr); addr == "" {
		addr = fallbackAddr
	}
	if agent = strings.TrimSpace(agent); agent == "" {
		agent = fallbackAgent
	}
	if language = strings.TrimSpace(language); language == "" {
		language = fallbackLanguage
	}
	return addr + fingerprintSep + agent + fingerprintSep + language
}
