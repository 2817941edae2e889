package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/linkpulse/linkpulse/internal/apify"
	lperrs "github.com/linkpulse/linkpulse/internal/errors"
	"github.com/linkpulse/linkpulse/internal/linkpulse"
	"github.com/linkpulse/linkpulse/internal/serverutil"
)

type refreshRequest struct {
	ApifyOptions apify.OptionsPatch `json:"apifyOptions"`
}

// RefreshResp reports counts only; item-level failures are logged, not
// itemized to the caller.
type RefreshResp struct {
	Message       string `json:"message"`
	ProfilesCount int    `json:"profilesCount"`
	PostsSaved    int    `json:"postsSaved"`
}

func (s *Server) postRefresh(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx  = r.Context()
		uid  = userID(r)
		body refreshRequest
	)
	// The body is optional; most callers send nothing.
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return lperrs.E(err, http.StatusBadRequest)
	}

	profiles, err := s.repo.UserProfiles(ctx, uid)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		return serverutil.WriteJSON(w, http.StatusOK, RefreshResp{
			Message: "No profiles to refresh",
		})
	}

	urls := make([]string, 0, len(profiles))
	for _, p := range profiles {
		urls = append(urls, p.ProfileURL)
	}
	slog.InfoContext(ctx, "refreshing posts", "profiles", len(urls))

	rawPosts, err := s.provider.FetchPosts(ctx, urls, s.defaultOpts.Apply(body.ApifyOptions))
	if err != nil {
		return lperrs.E(http.StatusBadGateway, fmt.Errorf("ingestion unavailable: %w", err))
	}
	slog.InfoContext(ctx, "fetched posts from provider", "count", len(rawPosts))

	sum := s.ingestor.Run(ctx, uid, rawPosts, profiles)
	slog.InfoContext(ctx, "refresh run finished",
		"saved", sum.PostsSaved,
		"skipped", sum.PostsSkipped,
		"fallbacks", sum.Fallbacks,
		"errors", len(sum.Errors),
	)

	// The store changed; drop every cached query response.
	s.latestCache.Purge()

	return serverutil.WriteJSON(w, http.StatusOK, RefreshResp{
		Message:       "Posts refreshed successfully",
		ProfilesCount: sum.ProfilesCount,
		PostsSaved:    sum.PostsSaved,
	})
}

type PostResp struct {
	ID                string   `json:"id"`
	ProfileURL        string   `json:"profileUrl"`
	URN               string   `json:"urn"`
	PostURL           string   `json:"postUrl"`
	Text              string   `json:"text"`
	AuthorFullName    string   `json:"authorFullName"`
	AuthorTitle       string   `json:"authorTitle"`
	AuthorProfileURL  string   `json:"authorProfileUrl"`
	Image             string   `json:"image"`
	Images            []string `json:"images"`
	PostedAtISO       *string  `json:"postedAtISO"`
	PostedAtTimestamp *int64   `json:"postedAtTimestamp"`
	TimeSincePosted   string   `json:"timeSincePosted"`
	NumLikes          int64    `json:"numLikes"`
	NumComments       int64    `json:"numComments"`
	NumShares         int64    `json:"numShares"`
}

func apiPost(p linkpulse.CachedPost) PostResp {
	return PostResp{
		ID:                p.ID,
		ProfileURL:        p.ProfileURL,
		URN:               p.URN,
		PostURL:           p.PostURL,
		Text:              p.Text,
		AuthorFullName:    p.AuthorName,
		AuthorTitle:       p.AuthorTitle,
		AuthorProfileURL:  p.AuthorProfileURL,
		Image:             p.Image,
		Images:            p.Images,
		PostedAtISO:       p.PostedAtISO,
		PostedAtTimestamp: p.PostedAtTS,
		TimeSincePosted:   p.TimeSincePosted,
		NumLikes:          p.NumLikes,
		NumComments:       p.NumComments,
		NumShares:         p.NumShares,
	}
}

const latestPostsLimit = 100

func (s *Server) getLatestPosts(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx   = r.Context()
		uid   = userID(r)
		query = r.URL.Query()
	)

	hours, _ := strconv.Atoi(query.Get("hours"))
	if hours <= 0 {
		hours = 24
	}
	profileID := query.Get("profileId")

	// Cached responses are only dropped on refresh, which is also the only
	// way the store gains posts; the sliding cutoff drifting between
	// refreshes is acceptable for a dashboard.
	cacheKey := fmt.Sprintf("%s|%d|%s", uid, hours, profileID)
	if posts, ok := s.latestCache.Get(cacheKey); ok {
		return serverutil.WriteJSON(w, http.StatusOK, posts)
	}

	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour).UnixMilli()
	filter := linkpulse.PostFilter{
		MinPostedAtTS: &cutoff,
		Limit:         latestPostsLimit,
	}

	if profileID != "" {
		profile, err := s.repo.Profile(ctx, uid, profileID)
		switch {
		case errors.Is(err, linkpulse.ErrNotFound):
			slog.InfoContext(ctx, "profile not found, not filtering", "profile_id", profileID)
		case err != nil:
			return err
		default:
			filter.ProfileURL = profile.ProfileURL
		}
	}

	posts, err := s.repo.UserPosts(ctx, uid, filter)
	if err != nil {
		return err
	}

	resp := make([]PostResp, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, apiPost(p))
	}
	s.latestCache.Add(cacheKey, resp)

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

type (
	DebugMatchResp struct {
		Profile           ProfileResp      `json:"profile"`
		Stats             DebugMatchStats  `json:"stats"`
		UniqueProfileURLs []string         `json:"uniqueProfileUrls"`
		SampleMatching    []DebugMatchPost `json:"sampleMatchingPosts"`
	}

	DebugMatchStats struct {
		TotalPosts        int `json:"totalPosts"`
		MatchingPosts     int `json:"matchingPosts"`
		UniqueProfileURLs int `json:"uniqueProfileUrls"`
	}

	DebugMatchPost struct {
		Author     string `json:"author"`
		AuthorURL  string `json:"authorUrl"`
		ProfileURL string `json:"profileUrl"`
		Text       string `json:"text"`
	}
)

// getDebugProfileMatch summarizes how well posts are being attributed to one
// tracked profile. Behind the DebugEndpoints flag.
func (s *Server) getDebugProfileMatch(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx = r.Context()
		uid = userID(r)
	)

	profileID := r.URL.Query().Get("profileId")
	if profileID == "" {
		return lperrs.E("profileId is required", http.StatusBadRequest)
	}

	profile, err := s.repo.Profile(ctx, uid, profileID)
	if errors.Is(err, linkpulse.ErrNotFound) {
		return lperrs.E("profile not found", http.StatusNotFound)
	}
	if err != nil {
		return err
	}

	allPosts, err := s.repo.UserPosts(ctx, uid, linkpulse.PostFilter{Limit: 50})
	if err != nil {
		return err
	}
	matching, err := s.repo.UserPosts(ctx, uid, linkpulse.PostFilter{ProfileURL: profile.ProfileURL, Limit: 50})
	if err != nil {
		return err
	}

	seen := map[string]bool{}
	uniqueURLs := []string{}
	for _, p := range allPosts {
		if !seen[p.ProfileURL] {
			seen[p.ProfileURL] = true
			uniqueURLs = append(uniqueURLs, p.ProfileURL)
		}
	}

	sample := []DebugMatchPost{}
	for _, p := range matching[:min(len(matching), 5)] {
		text := p.Text
		// Truncate on a rune boundary so the sample stays valid UTF-8.
		if r := []rune(text); len(r) > 100 {
			text = string(r[:100])
		}
		sample = append(sample, DebugMatchPost{
			Author:     p.AuthorName,
			AuthorURL:  p.AuthorProfileURL,
			ProfileURL: p.ProfileURL,
			Text:       text,
		})
	}

	return serverutil.WriteJSON(w, http.StatusOK, DebugMatchResp{
		Profile: apiProfile(profile),
		Stats: DebugMatchStats{
			TotalPosts:        len(allPosts),
			MatchingPosts:     len(matching),
			UniqueProfileURLs: len(uniqueURLs),
		},
		UniqueProfileURLs: uniqueURLs,
		SampleMatching:    sample,
	})
}
