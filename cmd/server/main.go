package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"listings/internal/api"
	"listings/internal/auth"
	"listings/internal/config"
	mydb "listings/internal/db"
	"listings/internal/feed"
	"listings/internal/models"
	"listings/internal/store"
	"listings/internal/upload"
)

func main() {
	root := &cobra.Command{
		Use:           "listings",
		Short:         "Real-estate listings API with an admin panel backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(
		&cobra.Command{Use: "serve", Short: "Run the HTTP server", RunE: runServe},
		&cobra.Command{Use: "migrate", Short: "Create or update the database schema", RunE: runMigrate},
		&cobra.Command{Use: "hash-password [password]", Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH", Args: cobra.MaximumNArgs(1), RunE: runHashPassword},
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	config.LoadEnv()
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.SentryEnv}); err != nil {
			return fmt.Errorf("sentry.Init: %w", err)
		}
		// отправляем накопленные события перед выходом
		defer sentry.Flush(2 * time.Second)
	}

	db, err := openAndMigrate(cfg)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	deps := api.Deps{
		Store:    store.New(db),
		Gate:     auth.NewGate(cfg.AdminPasswordHash),
		Sessions: auth.SessionOptions{Secret: cfg.SessionSecret, TTL: cfg.SessionTTL, Secure: cfg.CookieSecure},
		Limits:   upload.Limits{MaxFileSize: cfg.UploadMaxFileSize, MaxFiles: cfg.UploadMaxFiles},
	}
	if cfg.FeedURL != "" {
		cache, closeFeed := newFeedCache(cfg)
		defer closeFeed()
		deps.Feed = cache
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.WithCORS(api.NewRouter(deps), cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Println("Server listening on :" + cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Println("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func runMigrate(_ *cobra.Command, _ []string) error {
	config.LoadEnv()
	driver, dsn, err := config.DatabaseFromEnv()
	if err != nil {
		return err
	}
	db, err := mydb.Open(driver, dsn)
	if err != nil {
		return err
	}
	if err := mydb.Migrate(db); err != nil {
		return err
	}
	log.Println("schema is up to date")
	return nil
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	var pw string
	if len(args) == 1 {
		pw = args[0]
	} else {
		// пароль со stdin, чтобы не светить его в истории shell
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		pw = strings.TrimRight(line, "\r\n")
	}
	hash, err := models.HashPassword(pw)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

func openAndMigrate(cfg *config.Config) (*gorm.DB, error) {
	db, err := mydb.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := mydb.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func newFeedCache(cfg *config.Config) (*feed.Cache, func()) {
	fetcher := &feed.HTTPFetcher{URL: cfg.FeedURL}
	if cfg.RedisAddr == "" {
		return feed.NewCache(feed.NewMemoryStore(), fetcher, cfg.FeedTTL), func() {}
	}
	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	log.Println("feed cache: redis at " + cfg.RedisAddr)
	return feed.NewCache(feed.NewRedisStore("listings:feed", rc), fetcher, cfg.FeedTTL), func() { _ = rc.Close() }
}
