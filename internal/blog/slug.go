package blog

import (
	"strings"

	"github.com/mozillazg/go-unidecode"
)

// maxSlugLen bounds generated slugs so they stay usable in URLs and indexes.
const maxSlugLen = 80

// Slugify converts free text into a URL slug: non-ASCII characters are
// transliterated, everything except letters and digits becomes a hyphen, and
// runs of hyphens collapse. Returns "" when nothing usable remains; callers
// must substitute their own fallback.
func Slugify(s string) string {
	s = strings.ToLower(unidecode.Unidecode(s))

	var b strings.Builder
	b.Grow(len(s))
	prevHyphen := true // suppress a leading hyphen
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevHyphen = false
		default:
			if !prevHyphen {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}

	out := strings.TrimRight(b.String(), "-")
	if len(out) > maxSlugLen {
		out = strings.TrimRight(out[:maxSlugLen], "-")
	}
	return out
}
