package ingest

import "strings"

// NormalizeURL canonicalizes a LinkedIn URL for comparison. The rewrites are
// ordered and each operates on the previous result: lowercase, strip scheme,
// strip www., drop query and fragment, strip one trailing slash, then strip
// a trailing /posts listing suffix. Two URLs name the same profile iff their
// normalized forms are equal. Normalizing is idempotent.
func NormalizeURL(url string) string {
	if url == "" {
		return ""
	}

	url = strings.ToLower(url)
	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "www.")
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	if i := strings.IndexByte(url, '#'); i >= 0 {
		url = url[:i]
	}
	url = strings.TrimSuffix(url, "/")
	url = strings.TrimSuffix(url, "/posts")

	return url
}

// isPersonalProfile reports whether the URL names a person rather than a
// company or school page. Posts authored by organization pages are never
// attributed to a personal tracked profile.
func isPersonalProfile(url string) bool {
	if url == "" {
		return false
	}

	lower := strings.ToLower(url)
	return strings.Contains(lower, "/in/") &&
		!strings.Contains(lower, "/company/") &&
		!strings.Contains(lower, "/school/")
}
