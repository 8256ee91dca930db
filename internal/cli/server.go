package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"amc-progress-service/internal/app"
	"amc-progress-service/internal/config"
	"amc-progress-service/internal/infra/memory"
	"amc-progress-service/internal/infra/postgres"
	redisinfra "amc-progress-service/internal/infra/redis"
	"amc-progress-service/internal/scheduler"
	transport "amc-progress-service/internal/transport/http"
	"github.com/common-nighthawk/go-figure"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the progress API and live buzzer server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), rt)
		},
	}
}

func runServer(ctx context.Context, rt *runtime) error {
	printStartUpBanner()
	cfg := rt.cfg

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := rt.port
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	db, registry, err := openLocal(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	// Open every namespace with stored data so the retry job covers them.
	namespaces, err := db.Namespaces(ctx)
	if err != nil {
		return err
	}
	for _, ns := range namespaces {
		if _, err := registry.For(ns); err != nil {
			return err
		}
	}

	b, err := connectBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	practice := app.NewPracticeService(b.catalog(cfg))

	lockTTL := config.TTLDuration(cfg.Live.LockTTL, 30*time.Second)
	var (
		sessions app.SessionRepository
		arbiter  app.Arbiter
	)
	if b.redis != nil {
		sessions = redisinfra.NewSessionStore(b.redis, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
		arbiter = redisinfra.NewArbiter(b.redis, lockTTL)
	} else {
		sessions = memory.NewSessionStore()
		arbiter = memory.NewArbiter(lockTTL)
	}

	local := app.NewProgressRewards(registry)
	var (
		scores      app.ScoreWriter
		profiles    app.ProfileWriter
		leaderboard app.LeaderboardReader
		liveOpts    []app.LiveOption
	)
	if b.pool != nil {
		journal := postgres.NewLiveJournal(b.pool)
		profileStore := postgres.NewProfileStore(b.pool)
		scores, profiles, leaderboard = postgres.NewScoreStore(b.pool), profileStore, profileStore
		liveOpts = append(liveOpts, app.WithJournal(journal), app.WithRewards(app.RewardChain{journal, local}))
	} else {
		log.Printf("postgres not configured; remote store is in-memory")
		remote := memory.NewRemoteStore()
		scores, profiles, leaderboard = remote, remote, remote
		liveOpts = append(liveOpts, app.WithRewards(local))
	}
	live := app.NewLiveService(sessions, practice, arbiter, liveOpts...)
	sync := app.NewSyncService(registry, scores, profiles)

	jobs := scheduler.New(sync, config.TTLDuration(cfg.Sync.Interval, 5*time.Minute))
	if err := jobs.Start(); err != nil {
		return err
	}
	defer jobs.Stop()

	auth := transport.NewAuthenticator(cfg.Auth.JWTSecret)
	if !auth.Enabled() {
		log.Printf("auth.jwtSecret not set; API runs in development mode")
	}
	gin.SetMode(gin.ReleaseMode)
	api := transport.NewAPI(registry, sync, practice, live, leaderboard)
	ws := transport.NewWSHandler(live, cfg.Live.Rate, cfg.Live.Burst)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(api, ws, auth, log.Writer()),
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting amc progress service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	live.Wait()
	return err
}

func printStartUpBanner() {
	figure.NewFigure("AMC PROGRESS", "", true).Print()
	fmt.Println("======================================================")
	fmt.Printf("AMC Progress Service (v%s)\n\n", version)
}
