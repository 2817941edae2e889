package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkpulse/linkpulse/internal/linkpulse"
)

func trackedProfiles(urls ...string) []linkpulse.TrackedProfile {
	profiles := make([]linkpulse.TrackedProfile, 0, len(urls))
	for i, url := range urls {
		profiles = append(profiles, linkpulse.TrackedProfile{
			ID:         string(rune('a' + i)),
			UserID:     "user-1",
			ProfileURL: url,
		})
	}

	return profiles
}

func TestMatchProfile_ExactNormalizedURL(t *testing.T) {
	profiles := trackedProfiles(
		"https://www.linkedin.com/in/jane",
		"https://www.linkedin.com/in/john",
	)

	got := MatchProfile("https://www.linkedin.com/in/jane/", "", profiles)
	require.NotNil(t, got)
	assert.Equal(t, "https://www.linkedin.com/in/jane", got.ProfileURL)
}

func TestMatchProfile_PublicIdentifier(t *testing.T) {
	profiles := trackedProfiles(
		"https://www.linkedin.com/in/john",
		"https://www.linkedin.com/in/Jane-Doe-123",
	)

	// The author URL is a vanity variant the exact strategy can't see
	// through; the public id still lands it.
	got := MatchProfile("https://www.linkedin.com/in/unrelated-slug", "jane-doe-123", profiles)
	require.NotNil(t, got)
	assert.Equal(t, "https://www.linkedin.com/in/Jane-Doe-123", got.ProfileURL)
}

func TestMatchProfile_BidirectionalContainment(t *testing.T) {
	profiles := trackedProfiles("https://www.linkedin.com/in/jane-doe-1b2c3d")

	// Truncated author URL contained by the tracked one.
	got := MatchProfile("https://www.linkedin.com/in/jane-doe", "", profiles)
	require.NotNil(t, got)
	assert.Equal(t, profiles[0].ProfileURL, got.ProfileURL)
}

func TestMatchProfile_OrganizationPagesNeverMatch(t *testing.T) {
	profiles := trackedProfiles("https://www.linkedin.com/in/acme")

	// Even a textually similar company URL must not attribute to a person.
	assert.Nil(t, MatchProfile("https://www.linkedin.com/company/acme", "", profiles))
	assert.Nil(t, MatchProfile("https://www.linkedin.com/school/acme", "acme", profiles))
}

func TestMatchProfile_NoAuthorURL(t *testing.T) {
	profiles := trackedProfiles("https://www.linkedin.com/in/jane")

	// No URL fails the personal-profile gate outright.
	assert.Nil(t, MatchProfile("", "jane", profiles))
}

func TestMatchProfile_StrategyOrder(t *testing.T) {
	// Both profiles would pass containment, but the exact match must win.
	profiles := trackedProfiles(
		"https://www.linkedin.com/in/jane-doe-extended",
		"https://www.linkedin.com/in/jane-doe",
	)

	got := MatchProfile("https://www.linkedin.com/in/jane-doe", "", profiles)
	require.NotNil(t, got)
	assert.Equal(t, "https://www.linkedin.com/in/jane-doe", got.ProfileURL)
}

func TestMatchProfile_NoStrategyMatches(t *testing.T) {
	profiles := trackedProfiles("https://www.linkedin.com/in/jane")

	assert.Nil(t, MatchProfile("https://www.linkedin.com/in/someone-else", "someone", profiles))
}
