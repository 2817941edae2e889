// Linkpulse tracks a set of LinkedIn profiles per user and caches their
// public posts.
//
// Posts are scraped through an Apify actor, normalized, attributed to the
// tracked profile that authored them, and upserted keyed by (user, urn).
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/linkpulse/linkpulse/internal/api"
	"github.com/linkpulse/linkpulse/internal/apify"
	"github.com/linkpulse/linkpulse/internal/migrations"
	"github.com/linkpulse/linkpulse/internal/sqlite"
	"github.com/linkpulse/linkpulse/logger"
)

type config struct {
	Port     int    `env:"PORT, default=8080"`
	Database string `env:"DATABASE, required"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`

	CORSOrigin     string `env:"CORS_ORIGIN, default=*"`
	DebugEndpoints bool   `env:"DEBUG_ENDPOINTS, default=false"`

	ApifyToken        string        `env:"APIFY_TOKEN"`
	ApifyActorID      string        `env:"APIFY_ACTOR_ID"`
	ApifyBaseURL      string        `env:"APIFY_BASE_URL"`
	ApifyPollInterval time.Duration `env:"APIFY_POLL_INTERVAL, default=5s"`
	ApifyMaxWait      time.Duration `env:"APIFY_MAX_WAIT, default=5m"`

	// Default actor input, overridable per refresh request.
	ScrapeReactions   bool `env:"APIFY_SCRAPE_REACTIONS, default=false"`
	MaxReactions      int  `env:"APIFY_MAX_REACTIONS, default=0"`
	ScrapeComments    bool `env:"APIFY_SCRAPE_COMMENTS, default=false"`
	MaxComments       int  `env:"APIFY_MAX_COMMENTS, default=0"`
	MaxPosts          int  `env:"APIFY_MAX_POSTS, default=0"`
	IncludeQuotePosts bool `env:"APIFY_INCLUDE_QUOTE_POSTS, default=true"`
	IncludeReposts    bool `env:"APIFY_INCLUDE_REPOSTS, default=true"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	// Determine which logger format to use
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if cfg.LoggerFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	l := slog.New(logger.NewContextHandler(handler))
	slog.SetDefault(l)

	// Start the application
	if err := run(ctx, cfg); err != nil {
		slog.Error("error running", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	slog.Info("running", "port", cfg.Port, "database", cfg.Database)

	// Connect to the db
	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_txlock=immediate&_journal_mode=WAL&_busy_timeout=5000", cfg.Database))
	if err != nil {
		return fmt.Errorf("error opening database: %s", err)
	}
	defer dbx.Close()

	// Migrate, always
	if err := migrations.Run(dbx); err != nil {
		return fmt.Errorf("error migrating: %s", err)
	}

	repo := sqlite.New(dbx)
	provider := apify.New(apify.Config{
		Token:        cfg.ApifyToken,
		ActorID:      cfg.ApifyActorID,
		BaseURL:      cfg.ApifyBaseURL,
		PollInterval: cfg.ApifyPollInterval,
		MaxWait:      cfg.ApifyMaxWait,
	})

	srvr := api.NewServer(api.ServerConfig{
		Port:           cfg.Port,
		CorsOrigin:     cfg.CORSOrigin,
		DebugEndpoints: cfg.DebugEndpoints,
		DefaultOptions: apify.Options{
			ScrapeReactions:   cfg.ScrapeReactions,
			MaxReactions:      cfg.MaxReactions,
			ScrapeComments:    cfg.ScrapeComments,
			MaxComments:       cfg.MaxComments,
			MaxPosts:          cfg.MaxPosts,
			IncludeQuotePosts: cfg.IncludeQuotePosts,
			IncludeReposts:    cfg.IncludeReposts,
		},
	}, repo, provider)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Start the server
		if err := srvr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error listening: %s", err)
		}

		return nil
	})
	g.Go(func() error {
		// Block from shutting down until the group is canceled
		<-gCtx.Done()

		downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srvr.Shutdown(downCtx); err != nil {
			slog.Error("error shutting down server", "error", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("error running: %s", err)
	}

	return nil
}
