// Package linkpulse holds the domain types shared between the ingestion
// pipeline, the storage layer, and the HTTP surface.
package linkpulse

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrConflict = errors.New("resource already exists")
	ErrNotFound = errors.New("resource not found")
)

type (
	// TrackedProfile is a LinkedIn profile a user has registered for
	// monitoring. Unique per (user, profile URL).
	TrackedProfile struct {
		ID         string    `db:"id"`
		UserID     string    `db:"user_id"`
		ProfileURL string    `db:"profile_url"`
		Label      string    `db:"label"`
		CreatedAt  time.Time `db:"created_at"`
		UpdatedAt  time.Time `db:"updated_at"`
	}

	// RawPost is one item as the scrape provider returned it. Its shape
	// drifts across provider versions, so it stays an untyped bag until the
	// normalizer has extracted canonical fields from it.
	RawPost map[string]any

	// CachedPost is the canonical, durable form of one ingested post.
	// (user_id, urn) is the idempotency key.
	CachedPost struct {
		ID               string     `db:"id"`
		UserID           string     `db:"user_id"`
		ProfileURL       string     `db:"profile_url"`
		URN              string     `db:"urn"`
		PostURL          string     `db:"post_url"`
		Text             string     `db:"text"`
		AuthorName       string     `db:"author_name"`
		AuthorTitle      string     `db:"author_title"`
		AuthorProfileURL string     `db:"author_profile_url"`
		Image            string     `db:"image"`
		Images           StringList `db:"images"`
		PostedAtISO      *string    `db:"posted_at_iso"`
		PostedAtTS       *int64     `db:"posted_at_ts"`
		TimeSincePosted  string     `db:"time_since_posted"`
		NumLikes         int64      `db:"num_likes"`
		NumComments      int64      `db:"num_comments"`
		NumShares        int64      `db:"num_shares"`
		Raw              Payload    `db:"raw"`
		CreatedAt        time.Time  `db:"created_at"`
		UpdatedAt        time.Time  `db:"updated_at"`
	}

	// PostFilter narrows a post query. Zero values mean "no filter".
	PostFilter struct {
		MinPostedAtTS *int64
		ProfileURL    string
		Limit         uint64
	}

	Repository interface {
		Profile(ctx context.Context, userID, id string) (TrackedProfile, error)
		UserProfiles(ctx context.Context, userID string) ([]TrackedProfile, error)
		InsertProfile(ctx context.Context, userID, profileURL, label string) (TrackedProfile, error)
		DeleteProfile(ctx context.Context, userID, id string) error

		// UpsertPost inserts or fully replaces the post keyed by
		// (post.UserID, post.URN). A lost duplicate-key race surfaces as
		// ErrConflict.
		UpsertPost(ctx context.Context, post CachedPost) error
		UserPosts(ctx context.Context, userID string, filter PostFilter) ([]CachedPost, error)
	}
)

// StringList is an ordered list of URL strings stored as a JSON column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("error marshaling string list: %s", err)
	}

	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}

	return fmt.Errorf("cannot scan %T into StringList", src)
}

// Payload is the provider's original raw item, preserved opaquely for
// audit and debugging. Stored as a JSON column.
type Payload map[string]any

func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		p = Payload{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("error marshaling payload: %s", err)
	}

	return string(b), nil
}

func (p *Payload) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	}

	return fmt.Errorf("cannot scan %T into Payload", src)
}
