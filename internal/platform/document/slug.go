package document

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	slugInvalid = regexp.MustCompile(`[^\w\s-]`)
	slugDashes  = regexp.MustCompile(`[-\s]+`)
)

// Slugify folds s to lower-case ASCII words joined by hyphens, suitable for a
// download filename. Accented letters lose their marks; anything else outside
// [a-z0-9_-] is dropped.
func Slugify(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), runes.Remove(runes.Predicate(isNonASCII)))
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = slugInvalid.ReplaceAllString(strings.ToLower(folded), "")
	folded = strings.TrimSpace(folded)
	return strings.Trim(slugDashes.ReplaceAllString(folded, "-"), "-")
}

func isNonASCII(r rune) bool {
	return r > unicode.MaxASCII
}
