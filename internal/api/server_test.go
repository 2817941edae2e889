package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkpulse/linkpulse/internal/apify"
	"github.com/linkpulse/linkpulse/internal/linkpulse"
)

type fakeRepo struct {
	profiles []linkpulse.TrackedProfile
	posts    map[string]linkpulse.CachedPost

	insertErr error
	queries   int
}

func newFakeRepo(profiles ...linkpulse.TrackedProfile) *fakeRepo {
	return &fakeRepo{
		profiles: profiles,
		posts:    map[string]linkpulse.CachedPost{},
	}
}

func (f *fakeRepo) Profile(_ context.Context, userID, id string) (linkpulse.TrackedProfile, error) {
	for _, p := range f.profiles {
		if p.UserID == userID && p.ID == id {
			return p, nil
		}
	}
	return linkpulse.TrackedProfile{}, linkpulse.ErrNotFound
}

func (f *fakeRepo) UserProfiles(_ context.Context, userID string) ([]linkpulse.TrackedProfile, error) {
	var out []linkpulse.TrackedProfile
	for _, p := range f.profiles {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertProfile(_ context.Context, userID, profileURL, label string) (linkpulse.TrackedProfile, error) {
	if f.insertErr != nil {
		return linkpulse.TrackedProfile{}, f.insertErr
	}

	p := linkpulse.TrackedProfile{
		ID:         fmt.Sprintf("prof-%d", len(f.profiles)+1),
		UserID:     userID,
		ProfileURL: profileURL,
		Label:      label,
	}
	f.profiles = append(f.profiles, p)
	return p, nil
}

func (f *fakeRepo) DeleteProfile(_ context.Context, userID, id string) error {
	for i, p := range f.profiles {
		if p.UserID == userID && p.ID == id {
			f.profiles = append(f.profiles[:i], f.profiles[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeRepo) UpsertPost(_ context.Context, post linkpulse.CachedPost) error {
	f.posts[post.UserID+"|"+post.URN] = post
	return nil
}

func (f *fakeRepo) UserPosts(_ context.Context, userID string, filter linkpulse.PostFilter) ([]linkpulse.CachedPost, error) {
	f.queries++

	var out []linkpulse.CachedPost
	for _, p := range f.posts {
		if p.UserID != userID {
			continue
		}
		if filter.ProfileURL != "" && p.ProfileURL != filter.ProfileURL {
			continue
		}
		if filter.MinPostedAtTS != nil && (p.PostedAtTS == nil || *p.PostedAtTS < *filter.MinPostedAtTS) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

type fakeProvider struct {
	posts []linkpulse.RawPost
	err   error

	lastURLs []string
	lastOpts apify.Options
}

func (f *fakeProvider) FetchPosts(_ context.Context, targetURLs []string, opts apify.Options) ([]linkpulse.RawPost, error) {
	f.lastURLs = targetURLs
	f.lastOpts = opts
	return f.posts, f.err
}

func janeProfile() linkpulse.TrackedProfile {
	return linkpulse.TrackedProfile{
		ID:         "prof-1",
		UserID:     "user-1",
		ProfileURL: "https://www.linkedin.com/in/jane",
		Label:      "Jane",
	}
}

func newTestServer(repo *fakeRepo, provider *fakeProvider) *Server {
	return NewServer(ServerConfig{
		Port:           0,
		CorsOrigin:     "*",
		DefaultOptions: apify.Options{MaxPosts: 20},
		DebugEndpoints: true,
	}, repo, provider)
}

func doRequest(s *Server, method, target string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("X-User-ID", "user-1")

	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestRequireUser(t *testing.T) {
	s := newTestServer(newFakeRepo(), &fakeProvider{})

	req := httptest.NewRequest(http.MethodGet, "/api/profiles", nil)
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Same structured error shape as every other failure on this API.
	var body struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Unauthenticated", body.Message)
	assert.Equal(t, http.StatusUnauthorized, body.Status)

	// Health stays open.
	rec = httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostRefresh(t *testing.T) {
	repo := newFakeRepo(janeProfile())
	provider := &fakeProvider{posts: []linkpulse.RawPost{
		{"urn": "urn-1", "authorProfileUrl": "https://www.linkedin.com/in/jane", "text": "hi"},
		{"text": "no identity"},
	}}
	s := newTestServer(repo, provider)

	rec := doRequest(s, http.MethodPost, "/api/posts/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RefreshResp
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Posts refreshed successfully", resp.Message)
	assert.Equal(t, 1, resp.ProfilesCount)
	assert.Equal(t, 1, resp.PostsSaved)

	assert.Equal(t, []string{"https://www.linkedin.com/in/jane"}, provider.lastURLs)
	assert.Equal(t, 20, provider.lastOpts.MaxPosts)
	assert.Len(t, repo.posts, 1)
}

func TestPostRefresh_OptionOverrides(t *testing.T) {
	repo := newFakeRepo(janeProfile())
	provider := &fakeProvider{}
	s := newTestServer(repo, provider)

	rec := doRequest(s, http.MethodPost, "/api/posts/refresh",
		`{"apifyOptions": {"maxPosts": 5, "scrapeComments": true}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 5, provider.lastOpts.MaxPosts)
	assert.True(t, provider.lastOpts.ScrapeComments)
}

func TestPostRefresh_NoProfiles(t *testing.T) {
	provider := &fakeProvider{}
	s := newTestServer(newFakeRepo(), provider)

	rec := doRequest(s, http.MethodPost, "/api/posts/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RefreshResp
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "No profiles to refresh", resp.Message)
	// The provider is never called without targets.
	assert.Nil(t, provider.lastURLs)
}

func TestPostRefresh_ProviderDown(t *testing.T) {
	s := newTestServer(newFakeRepo(janeProfile()), &fakeProvider{err: errors.New("actor exploded")})

	rec := doRequest(s, http.MethodPost, "/api/posts/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGetLatestPosts(t *testing.T) {
	repo := newFakeRepo(janeProfile())
	s := newTestServer(repo, &fakeProvider{})

	recentTS := nowMillis() - 1000
	oldTS := nowMillis() - 1000*60*60*48
	repo.posts["user-1|urn-1"] = cachedPost("urn-1", "https://www.linkedin.com/in/jane", &recentTS)
	repo.posts["user-1|urn-2"] = cachedPost("urn-2", "https://www.linkedin.com/in/jane", &oldTS)
	repo.posts["user-1|urn-3"] = cachedPost("urn-3", "https://www.linkedin.com/in/other", &recentTS)

	rec := doRequest(s, http.MethodGet, "/api/posts/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var posts []PostResp
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&posts))
	// Default 24h window drops the stale post.
	assert.Len(t, posts, 2)

	rec = doRequest(s, http.MethodGet, "/api/posts/latest?profileId=prof-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	posts = nil
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "urn-1", posts[0].URN)
}

func TestGetLatestPosts_Cached(t *testing.T) {
	repo := newFakeRepo(janeProfile())
	s := newTestServer(repo, &fakeProvider{})

	for i := 0; i < 3; i++ {
		rec := doRequest(s, http.MethodGet, "/api/posts/latest", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, repo.queries)

	// A refresh invalidates cached responses.
	doRequest(s, http.MethodPost, "/api/posts/refresh", "")
	doRequest(s, http.MethodGet, "/api/posts/latest", "")
	assert.Equal(t, 2, repo.queries)
}

func TestGetLatestPosts_UnknownProfileUnfiltered(t *testing.T) {
	repo := newFakeRepo(janeProfile())
	s := newTestServer(repo, &fakeProvider{})

	ts := nowMillis()
	repo.posts["user-1|urn-1"] = cachedPost("urn-1", "https://www.linkedin.com/in/jane", &ts)

	rec := doRequest(s, http.MethodGet, "/api/posts/latest?profileId=nope", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var posts []PostResp
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&posts))
	assert.Len(t, posts, 1)
}

func TestProfiles(t *testing.T) {
	repo := newFakeRepo()
	s := newTestServer(repo, &fakeProvider{})

	// Create
	rec := doRequest(s, http.MethodPost, "/api/profiles",
		`{"profileUrl": "https://www.linkedin.com/in/jane", "label": "Jane"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created ProfileResp
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "https://www.linkedin.com/in/jane", created.ProfileURL)
	assert.Equal(t, "Jane", created.Label)

	// List
	rec = doRequest(s, http.MethodGet, "/api/profiles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []ProfileResp
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Len(t, listed, 1)

	// Delete
	rec = doRequest(s, http.MethodDelete, "/api/profiles/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, repo.profiles)
}

func TestPostProfiles_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "missing url", body: `{"label": "x"}`},
		{name: "not linkedin", body: `{"profileUrl": "https://example.com/in/jane"}`},
	}

	s := newTestServer(newFakeRepo(), &fakeProvider{})
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := doRequest(s, http.MethodPost, "/api/profiles", c.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestPostProfiles_Duplicate(t *testing.T) {
	repo := newFakeRepo(janeProfile())
	repo.insertErr = fmt.Errorf("profile exists: %w", linkpulse.ErrConflict)
	s := newTestServer(repo, &fakeProvider{})

	rec := doRequest(s, http.MethodPost, "/api/profiles",
		`{"profileUrl": "https://www.linkedin.com/in/jane"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already tracked")
}

func TestDeleteProfile_NotFound(t *testing.T) {
	s := newTestServer(newFakeRepo(), &fakeProvider{})

	rec := doRequest(s, http.MethodDelete, "/api/profiles/prof-404", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugProfileMatch(t *testing.T) {
	repo := newFakeRepo(janeProfile())
	s := newTestServer(repo, &fakeProvider{})

	ts := nowMillis()
	repo.posts["user-1|urn-1"] = cachedPost("urn-1", "https://www.linkedin.com/in/jane", &ts)
	repo.posts["user-1|urn-2"] = cachedPost("urn-2", "https://www.linkedin.com/in/other", &ts)

	rec := doRequest(s, http.MethodGet, "/api/posts/debug-profile-match?profileId=prof-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DebugMatchResp
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Stats.TotalPosts)
	assert.Equal(t, 1, resp.Stats.MatchingPosts)
	assert.Equal(t, 2, resp.Stats.UniqueProfileURLs)
	require.Len(t, resp.SampleMatching, 1)
	assert.Equal(t, "urn-1 text", resp.SampleMatching[0].Text)

	rec = doRequest(s, http.MethodGet, "/api/posts/debug-profile-match", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/posts/debug-profile-match?profileId=missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugProfileMatch_TruncatesSampleOnRuneBoundary(t *testing.T) {
	repo := newFakeRepo(janeProfile())
	s := newTestServer(repo, &fakeProvider{})

	ts := nowMillis()
	post := cachedPost("urn-1", "https://www.linkedin.com/in/jane", &ts)
	post.Text = strings.Repeat("é", 150)
	repo.posts["user-1|urn-1"] = post

	rec := doRequest(s, http.MethodGet, "/api/posts/debug-profile-match?profileId=prof-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DebugMatchResp
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.SampleMatching, 1)

	got := resp.SampleMatching[0].Text
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 100), got)
}

func cachedPost(urn, profileURL string, ts *int64) linkpulse.CachedPost {
	return linkpulse.CachedPost{
		ID:         "post-" + urn,
		UserID:     "user-1",
		ProfileURL: profileURL,
		URN:        urn,
		Text:       urn + " text",
		PostedAtTS: ts,
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
