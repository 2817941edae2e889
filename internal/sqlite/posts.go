package sqlite

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"modernc.org/sqlite"

	"github.com/linkpulse/linkpulse/internal/linkpulse"
)

const postNamespace = "-post"

// UpsertPost inserts the post or, when (user_id, urn) already exists, fully
// replaces its fields with the fresh normalization. Last write wins on
// refresh; a lost insert race surfaces as ErrConflict for the caller to
// treat as already-saved.
func (r Repo) UpsertPost(ctx context.Context, post linkpulse.CachedPost) error {
	const q = `INSERT INTO cached_posts (
		id, user_id, profile_url, urn, post_url, text,
		author_name, author_title, author_profile_url,
		image, images, posted_at_iso, posted_at_ts, time_since_posted,
		num_likes, num_comments, num_shares, raw
	) VALUES (
		:id, :user_id, :profile_url, :urn, :post_url, :text,
		:author_name, :author_title, :author_profile_url,
		:image, :images, :posted_at_iso, :posted_at_ts, :time_since_posted,
		:num_likes, :num_comments, :num_shares, :raw
	)
	ON CONFLICT(user_id, urn) DO UPDATE SET
		profile_url = excluded.profile_url,
		post_url = excluded.post_url,
		text = excluded.text,
		author_name = excluded.author_name,
		author_title = excluded.author_title,
		author_profile_url = excluded.author_profile_url,
		image = excluded.image,
		images = excluded.images,
		posted_at_iso = excluded.posted_at_iso,
		posted_at_ts = excluded.posted_at_ts,
		time_since_posted = excluded.time_since_posted,
		num_likes = excluded.num_likes,
		num_comments = excluded.num_comments,
		num_shares = excluded.num_shares,
		raw = excluded.raw,
		updated_at = CURRENT_TIMESTAMP;`

	post.ID = fmt.Sprintf("%s%s", uuid.NewString(), postNamespace)
	_, err := r.db.NamedExecContext(ctx, q, post)
	if sqliteErr := (&sqlite.Error{}); errors.As(err, &sqliteErr) && sqliteErr.Code() == 2067 {
		return fmt.Errorf("post already cached: %w", linkpulse.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("error upserting post: %s", err)
	}

	return nil
}

func (r Repo) UserPosts(ctx context.Context, userID string, filter linkpulse.PostFilter) ([]linkpulse.CachedPost, error) {
	q := sq.Select("*").
		From("cached_posts").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("posted_at_ts DESC")
	if filter.MinPostedAtTS != nil {
		q = q.Where(sq.GtOrEq{"posted_at_ts": *filter.MinPostedAtTS})
	}
	if filter.ProfileURL != "" {
		q = q.Where(sq.Eq{"profile_url": filter.ProfileURL})
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var posts []linkpulse.CachedPost
	if err := r.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, fmt.Errorf("error selecting posts: %s", err)
	}

	return posts, nil
}
