// Package api is the HTTP surface: profile management, the refresh trigger,
// and the post query endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/linkpulse/linkpulse/internal/apify"
	"github.com/linkpulse/linkpulse/internal/ingest"
	"github.com/linkpulse/linkpulse/internal/linkpulse"
	"github.com/linkpulse/linkpulse/internal/serverutil"
)

type (
	// Provider yields one full batch of raw posts for the target profile
	// URLs, or fails as a whole.
	Provider interface {
		FetchPosts(ctx context.Context, targetURLs []string, opts apify.Options) ([]linkpulse.RawPost, error)
	}

	Server struct {
		*http.Server

		repo     linkpulse.Repository
		provider Provider
		ingestor ingest.Ingestor

		defaultOpts apify.Options
		latestCache *lru.Cache[string, []PostResp]
	}

	ServerConfig struct {
		Port       int
		CorsOrigin string

		// DefaultOptions is the environment-derived actor input, overridable
		// per refresh request.
		DefaultOptions apify.Options

		DebugEndpoints bool
	}
)

func NewServer(config ServerConfig, repo linkpulse.Repository, provider Provider) *Server {
	var (
		r        = serverutil.ErrRouter{Router: mux.NewRouter()}
		cache, _ = lru.New[string, []PostResp](256)
	)

	srvr := Server{
		repo:        repo,
		provider:    provider,
		ingestor:    ingest.New(repo),
		defaultOpts: config.DefaultOptions,
		latestCache: cache,
		Server: &http.Server{
			Addr:        fmt.Sprintf(":%d", config.Port),
			ReadTimeout: 5 * time.Second,
			// No write timeout: a refresh blocks on the provider's remote
			// run, which enforces its own ceiling.
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{config.CorsOrigin}),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"Content-Type", "Authorization", userHeader}),
			)(r),
		},
	}

	r.Use(serverutil.AccessLogMiddleware) // Log everything
	r.HandleFuncE("/health", srvr.getHealth).Methods(http.MethodGet)

	authed := serverutil.ErrRouter{Router: r.PathPrefix("/api").Subrouter()}
	authed.Use(requireUserMiddleware)

	authed.HandleFuncE("/posts/refresh", srvr.postRefresh).Methods(http.MethodPost)
	authed.HandleFuncE("/posts/latest", srvr.getLatestPosts).Methods(http.MethodGet)
	if config.DebugEndpoints {
		// For poking at attribution locally
		authed.HandleFuncE("/posts/debug-profile-match", srvr.getDebugProfileMatch).Methods(http.MethodGet)
	}

	authed.HandleFuncE("/profiles", srvr.getProfiles).Methods(http.MethodGet)
	authed.HandleFuncE("/profiles", srvr.postProfiles).Methods(http.MethodPost)
	authed.HandleFuncE("/profiles/{id}", srvr.deleteProfile).Methods(http.MethodDelete)

	return &srvr
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) error {
	return serverutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
