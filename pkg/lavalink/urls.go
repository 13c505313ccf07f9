package lavalink

import "regexp"

// URL patterns used to classify queries before they are sent anywhere.
// Provider-specific URL matching lives with each provider's Match.
var (
	searchPrefixRegex = regexp.MustCompile(`^(ytm?|sc)search:.`)

	baseURLRegex = regexp.MustCompile(`https?://(?:www\.)?.+`)
)

// IsURL reports whether the query is a plain http(s) URL.
func IsURL(query string) bool {
	return baseURLRegex.MatchString(query)
}

// HasSearchPrefix reports whether the query is already prefixed with a
// node search type such as "ytsearch:".
func HasSearchPrefix(query string) bool {
	return searchPrefixRegex.MatchString(query)
}
