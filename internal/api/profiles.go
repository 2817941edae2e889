package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	lperrs "github.com/linkpulse/linkpulse/internal/errors"
	"github.com/linkpulse/linkpulse/internal/linkpulse"
	"github.com/linkpulse/linkpulse/internal/serverutil"
)

type ProfileResp struct {
	ID         string    `json:"id"`
	ProfileURL string    `json:"profileUrl"`
	Label      string    `json:"label"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func apiProfile(p linkpulse.TrackedProfile) ProfileResp {
	return ProfileResp{
		ID:         p.ID,
		ProfileURL: p.ProfileURL,
		Label:      p.Label,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func (s *Server) getProfiles(w http.ResponseWriter, r *http.Request) error {
	profiles, err := s.repo.UserProfiles(r.Context(), userID(r))
	if err != nil {
		return err
	}

	resp := make([]ProfileResp, 0, len(profiles))
	for _, p := range profiles {
		resp = append(resp, apiProfile(p))
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

type createProfileRequest struct {
	ProfileURL string `json:"profileUrl"`
	Label      string `json:"label"`
}

func (v createProfileRequest) Validate() error {
	if v.ProfileURL == "" {
		return lperrs.E("Profile URL is required", http.StatusBadRequest,
			lperrs.Detail{Field: "profileUrl", Error: "required"})
	}
	if !strings.HasPrefix(v.ProfileURL, "https://www.linkedin.com/") {
		return lperrs.E("Profile URL must start with https://www.linkedin.com/", http.StatusBadRequest,
			lperrs.Detail{Field: "profileUrl", Error: "must be a linkedin.com URL"})
	}

	return nil
}

func (s *Server) postProfiles(w http.ResponseWriter, r *http.Request) error {
	body, err := serverutil.DecodeValid[createProfileRequest](r.Body)
	if err != nil {
		return lperrs.E(err, http.StatusBadRequest)
	}

	profile, err := s.repo.InsertProfile(r.Context(), userID(r), body.ProfileURL, body.Label)
	if errors.Is(err, linkpulse.ErrConflict) {
		return lperrs.E("Profile already tracked", http.StatusBadRequest)
	}
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusCreated, apiProfile(profile))
}

func (s *Server) deleteProfile(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx = r.Context()
		uid = userID(r)
		id  = mux.Vars(r)["id"]
	)

	// Scoped fetch first so a foreign id is indistinguishable from a
	// missing one.
	if _, err := s.repo.Profile(ctx, uid, id); errors.Is(err, linkpulse.ErrNotFound) {
		return lperrs.E("Profile not found", http.StatusNotFound)
	} else if err != nil {
		return err
	}

	if err := s.repo.DeleteProfile(ctx, uid, id); err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Profile deleted successfully"})
}
