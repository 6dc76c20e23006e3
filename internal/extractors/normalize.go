package extractors

import "regexp"

// Masking rules run in order: each earlier rule consumes digits that the final
// digit rule would otherwise mangle.
var normalizeRules = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`), "UUID"},
	{regexp.MustCompile(`0x[0-9a-fA-F]+`), "HEX"},
	{regexp.MustCompile(`/[\w/.-]+`), "/PATH"},
	{regexp.MustCompile(`\d+`), "N"},
}

// Normalize canonicalizes an error message so that messages differing only in
// identifiers, addresses, paths or counters share one pattern. It is idempotent.
func Normalize(message string) string {
	for _, rule := range normalizeRules {
		message = rule.pattern.ReplaceAllString(message, rule.replacement)
	}
	return message
}
