package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linkpulse/linkpulse/internal/linkpulse"
)

type (
	// Store is the slice of the repository the orchestrator writes through.
	Store interface {
		UpsertPost(ctx context.Context, post linkpulse.CachedPost) error
	}

	// RunSummary aggregates the outcome of one ingestion run.
	RunSummary struct {
		ProfilesCount int
		PostsSaved    int
		PostsSkipped  int
		Fallbacks     int
		Errors        []ItemError
	}

	// ItemError records one post that failed processing, for diagnostics
	// only: item failures never abort the run.
	ItemError struct {
		URN    string
		Author string
		Err    error
	}

	// Ingestor drives one batch through normalize, match, and upsert.
	// It holds no state between runs.
	Ingestor struct {
		store Store
	}
)

func New(store Store) Ingestor {
	return Ingestor{store: store}
}

// Run processes every raw post independently: unidentifiable items are
// skipped, unmatched posts fall back to the first tracked profile, and the
// upsert is idempotent on (user, urn). A duplicate-key race counts as a
// skip, any other per-item failure is recorded and the run continues.
func (ing Ingestor) Run(ctx context.Context, userID string, rawPosts []linkpulse.RawPost, profiles []linkpulse.TrackedProfile) RunSummary {
	sum := RunSummary{ProfilesCount: len(profiles)}
	if len(profiles) == 0 {
		return sum
	}

	for _, raw := range rawPosts {
		fields, err := Normalize(raw)
		if errors.Is(err, ErrUnidentifiable) {
			slog.WarnContext(ctx, "skipping post without urn", "author", firstString(raw, nameAccessors))
			sum.PostsSkipped++
			continue
		}

		profileURL := profiles[0].ProfileURL
		matched := MatchProfile(fields.AuthorProfileURL, fields.AuthorPublicID, profiles)
		if matched != nil {
			profileURL = matched.ProfileURL
		} else {
			sum.Fallbacks++
			if len(profiles) > 1 {
				// With several tracked profiles this attribution is a
				// best-effort guess; flag it for whoever reads the logs.
				slog.WarnContext(ctx, "could not match post to a tracked profile, using fallback",
					"author", fields.AuthorName,
					"author_url", fields.AuthorProfileURL,
					"fallback", profileURL,
				)
			}
		}

		post := linkpulse.CachedPost{
			UserID:           userID,
			ProfileURL:       profileURL,
			URN:              fields.URN,
			PostURL:          fields.PostURL,
			Text:             fields.Text,
			AuthorName:       fields.AuthorName,
			AuthorTitle:      fields.AuthorTitle,
			AuthorProfileURL: fields.AuthorProfileURL,
			Image:            fields.Image,
			Images:           fields.Images,
			PostedAtISO:      fields.PostedAtISO,
			PostedAtTS:       fields.PostedAtTS,
			TimeSincePosted:  fields.TimeSincePosted,
			NumLikes:         fields.NumLikes,
			NumComments:      fields.NumComments,
			NumShares:        fields.NumShares,
			Raw:              linkpulse.Payload(raw),
		}

		err = ing.store.UpsertPost(ctx, post)
		if errors.Is(err, linkpulse.ErrConflict) {
			// Another writer got there first. Idempotence makes this a
			// success, not a failure.
			slog.InfoContext(ctx, "post already exists, skipping", "urn", fields.URN)
			sum.PostsSkipped++
			continue
		}
		if err != nil {
			slog.ErrorContext(ctx, "error saving post", "urn", fields.URN, "error", err)
			sum.Errors = append(sum.Errors, ItemError{
				URN:    fields.URN,
				Author: fields.AuthorName,
				Err:    fmt.Errorf("error saving post: %w", err),
			})
			continue
		}

		sum.PostsSaved++
	}

	return sum
}
