package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"modernc.org/sqlite"

	"github.com/linkpulse/linkpulse/internal/linkpulse"
)

const profileNamespace = "-prof"

func (r Repo) Profile(ctx context.Context, userID, id string) (linkpulse.TrackedProfile, error) {
	const q = `SELECT * FROM tracked_profiles WHERE id = ? AND user_id = ?;`

	var profile linkpulse.TrackedProfile
	err := r.db.GetContext(ctx, &profile, q, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return linkpulse.TrackedProfile{}, linkpulse.ErrNotFound
	}
	if err != nil {
		return linkpulse.TrackedProfile{}, fmt.Errorf("error fetching profile: %s", err)
	}

	return profile, nil
}

func (r Repo) UserProfiles(ctx context.Context, userID string) ([]linkpulse.TrackedProfile, error) {
	const q = `SELECT * FROM tracked_profiles WHERE user_id = ? ORDER BY created_at DESC;`

	var profiles []linkpulse.TrackedProfile
	if err := r.db.SelectContext(ctx, &profiles, q, userID); err != nil {
		return nil, fmt.Errorf("error selecting profiles: %s", err)
	}

	return profiles, nil
}

func (r Repo) InsertProfile(ctx context.Context, userID, profileURL, label string) (linkpulse.TrackedProfile, error) {
	const q = `INSERT INTO tracked_profiles (id, user_id, profile_url, label) VALUES (:id, :user_id, :profile_url, :label);`

	p := linkpulse.TrackedProfile{
		ID:         fmt.Sprintf("%s%s", uuid.NewString(), profileNamespace),
		UserID:     userID,
		ProfileURL: profileURL,
		Label:      label,
	}
	_, err := r.db.NamedExecContext(ctx, q, p)
	if sqliteErr := (&sqlite.Error{}); errors.As(err, &sqliteErr) && sqliteErr.Code() == 2067 {
		return linkpulse.TrackedProfile{}, fmt.Errorf("profile already tracked: %w", linkpulse.ErrConflict)
	}
	if err != nil {
		return linkpulse.TrackedProfile{}, fmt.Errorf("error inserting profile: %s", err)
	}

	return r.Profile(ctx, userID, p.ID)
}

func (r Repo) DeleteProfile(ctx context.Context, userID, id string) error {
	const q = `DELETE FROM tracked_profiles WHERE id = ? AND user_id = ?;`

	if _, err := r.db.ExecContext(ctx, q, id, userID); err != nil {
		return fmt.Errorf("error deleting profile: %s", err)
	}

	return nil
}
