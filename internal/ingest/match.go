package ingest

import (
	"strings"

	"github.com/linkpulse/linkpulse/internal/linkpulse"
)

// A strategy tries to pick the tracked profile a post belongs to. Strategies
// run in order with early exit, so the tie-break policy stays explicit:
// exact normalized URL, then public identifier, then substring containment.
type strategy func(authorURL, publicID string, profiles []linkpulse.TrackedProfile) *linkpulse.TrackedProfile

var strategies = []strategy{
	matchExactURL,
	matchPublicID,
	matchContainment,
}

// MatchProfile selects the tracked profile that authored the post, or nil
// when no strategy succeeds. Attribution is only attempted for personal
// profile URLs; organization pages always come back nil and the caller's
// fallback policy applies.
func MatchProfile(authorURL, publicID string, profiles []linkpulse.TrackedProfile) *linkpulse.TrackedProfile {
	if !isPersonalProfile(authorURL) {
		return nil
	}

	for _, match := range strategies {
		if p := match(authorURL, publicID, profiles); p != nil {
			return p
		}
	}

	return nil
}

func matchExactURL(authorURL, _ string, profiles []linkpulse.TrackedProfile) *linkpulse.TrackedProfile {
	if authorURL == "" {
		return nil
	}

	normalized := NormalizeURL(authorURL)
	for i := range profiles {
		if NormalizeURL(profiles[i].ProfileURL) == normalized {
			return &profiles[i]
		}
	}

	return nil
}

func matchPublicID(_, publicID string, profiles []linkpulse.TrackedProfile) *linkpulse.TrackedProfile {
	if publicID == "" {
		return nil
	}

	needle := "/in/" + strings.ToLower(publicID)
	for i := range profiles {
		if strings.Contains(strings.ToLower(profiles[i].ProfileURL), needle) {
			return &profiles[i]
		}
	}

	return nil
}

// matchContainment handles partial or truncated URL variants by checking
// containment in both directions.
func matchContainment(authorURL, _ string, profiles []linkpulse.TrackedProfile) *linkpulse.TrackedProfile {
	if authorURL == "" {
		return nil
	}

	normalized := NormalizeURL(authorURL)
	for i := range profiles {
		tracked := NormalizeURL(profiles[i].ProfileURL)
		if strings.Contains(normalized, tracked) || strings.Contains(tracked, normalized) {
			return &profiles[i]
		}
	}

	return nil
}
