// Package apify talks to the Apify platform: it starts an actor run for the
// target profile URLs, waits for the run to finish, and pulls the resulting
// dataset. The caller gets either the full batch or a single failure; no
// partial dataset is ever returned.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/linkpulse/linkpulse/internal/linkpulse"
)

const defaultBaseURL = "https://api.apify.com/v2"

// ErrNotConfigured means the token or actor ID is missing; a refresh cannot
// even start.
var ErrNotConfigured = errors.New("apify credentials or actor id not configured")

type (
	Client struct {
		httpClient *http.Client

		baseURL      string
		token        string
		actorID      string
		pollInterval time.Duration
		maxWait      time.Duration
	}

	Config struct {
		Token   string
		ActorID string
		// BaseURL overrides the Apify API root, mainly for tests.
		BaseURL      string
		PollInterval time.Duration
		MaxWait      time.Duration
	}
)

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 5 * time.Minute
	}

	return &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      cfg.BaseURL,
		token:        cfg.Token,
		actorID:      cfg.ActorID,
		pollInterval: cfg.PollInterval,
		maxWait:      cfg.MaxWait,
	}
}

// actorInput is the payload for the LinkedIn profile posts actor.
type actorInput struct {
	TargetURLs        []string `json:"targetUrls"`
	ScrapeReactions   bool     `json:"scrapeReactions"`
	MaxReactions      int      `json:"maxReactions"`
	ScrapeComments    bool     `json:"scrapeComments"`
	MaxComments       int      `json:"maxComments"`
	MaxPosts          int      `json:"maxPosts"`
	IncludeQuotePosts bool     `json:"includeQuotePosts"`
	IncludeReposts    bool     `json:"includeReposts"`
}

type runData struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

type runResponse struct {
	Data runData `json:"data"`
}

// FetchPosts runs the actor against the target URLs and returns the scraped
// batch once the remote run has succeeded.
func (c *Client) FetchPosts(ctx context.Context, targetURLs []string, opts Options) ([]linkpulse.RawPost, error) {
	if c.token == "" || c.actorID == "" {
		return nil, ErrNotConfigured
	}

	run, err := c.startRun(ctx, targetURLs, opts)
	if err != nil {
		return nil, fmt.Errorf("error starting apify run: %w", err)
	}

	if err := c.waitForRun(ctx, run.ID); err != nil {
		return nil, err
	}

	posts, err := c.datasetItems(ctx, run.DefaultDatasetID)
	if err != nil {
		return nil, fmt.Errorf("error fetching apify dataset: %w", err)
	}

	return posts, nil
}

func (c *Client) startRun(ctx context.Context, targetURLs []string, opts Options) (runData, error) {
	input := actorInput{
		TargetURLs:        targetURLs,
		ScrapeReactions:   opts.ScrapeReactions,
		MaxReactions:      opts.MaxReactions,
		ScrapeComments:    opts.ScrapeComments,
		MaxComments:       opts.MaxComments,
		MaxPosts:          opts.MaxPosts,
		IncludeQuotePosts: opts.IncludeQuotePosts,
		IncludeReposts:    opts.IncludeReposts,
	}

	body, err := json.Marshal(input)
	if err != nil {
		return runData{}, fmt.Errorf("error marshaling actor input: %s", err)
	}

	url := fmt.Sprintf("%s/acts/%s/runs?token=%s", c.baseURL, c.actorID, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return runData{}, fmt.Errorf("error creating request: %s", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return runData{}, fmt.Errorf("error calling apify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return runData{}, fmt.Errorf("unexpected status code starting run: %d", resp.StatusCode)
	}

	var runResp runResponse
	if err := json.NewDecoder(resp.Body).Decode(&runResp); err != nil {
		return runData{}, fmt.Errorf("error decoding run response: %s", err)
	}

	return runResp.Data, nil
}

// waitForRun polls the run status until it reaches a terminal state, with a
// hard ceiling on the total wait. A run that is still going when the ceiling
// hits is a run-level failure.
func (c *Client) waitForRun(ctx context.Context, runID string) error {
	b := retry.WithMaxDuration(c.maxWait, retry.NewConstant(c.pollInterval))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		status, err := c.runStatus(ctx, runID)
		if err != nil {
			return fmt.Errorf("error checking apify run status: %w", err)
		}

		switch status {
		case "SUCCEEDED":
			return nil
		case "FAILED", "ABORTED", "TIMED-OUT":
			return fmt.Errorf("apify run %s", status)
		}

		return retry.RetryableError(fmt.Errorf("apify run still %s", status))
	})
	if err != nil {
		return fmt.Errorf("apify run did not succeed: %w", err)
	}

	return nil
}

func (c *Client) runStatus(ctx context.Context, runID string) (string, error) {
	url := fmt.Sprintf("%s/actor-runs/%s?token=%s", c.baseURL, runID, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %s", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error calling apify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code checking run: %d", resp.StatusCode)
	}

	var runResp runResponse
	if err := json.NewDecoder(resp.Body).Decode(&runResp); err != nil {
		return "", fmt.Errorf("error decoding run status: %s", err)
	}

	return runResp.Data.Status, nil
}

func (c *Client) datasetItems(ctx context.Context, datasetID string) ([]linkpulse.RawPost, error) {
	url := fmt.Sprintf("%s/datasets/%s/items?token=%s", c.baseURL, datasetID, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %s", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling apify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code fetching dataset: %d", resp.StatusCode)
	}

	var posts []linkpulse.RawPost
	if err := json.NewDecoder(resp.Body).Decode(&posts); err != nil {
		return nil, fmt.Errorf("error decoding dataset items: %s", err)
	}

	return posts, nil
}
