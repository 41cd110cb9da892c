package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/iamasit07/connect4-remote/internal/config"
	"github.com/iamasit07/connect4-remote/internal/repository/postgres"
	"github.com/iamasit07/connect4-remote/internal/repository/redis"
	"github.com/iamasit07/connect4-remote/internal/service/cleanup"
	"github.com/iamasit07/connect4-remote/internal/service/relay"
	transportHttp "github.com/iamasit07/connect4-remote/internal/transport/http"
	"github.com/iamasit07/connect4-remote/internal/transport/websocket"
	"github.com/iamasit07/connect4-remote/pkg/auth"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			log.Debug().Msg("no .env file found")
		}
	}

	cobra.CheckErr(newRootCmd().Execute())
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "relayd",
		Short:         "Shared game record service for connect4 relay games.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), config.LoadConfig())
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every request")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the relay API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), config.LoadConfig())
		},
	})
	root.AddCommand(newKeygenCmd())

	root.CompletionOptions.HiddenDefaultCmd = true
	return root
}

func newKeygenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print an API key signed with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			key, err := auth.NewKeys(cfg.JWTSecret).Issue(subject, ttl)
			if err != nil {
				return fmt.Errorf("issue key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "connect4", "who the key is issued to")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "key lifetime, 0 for no expiry")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := log.Logger
	gin.SetMode(gin.ReleaseMode)

	var store relay.Store
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetimeMin)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		logger.Info().Msg("running database migrations")
		if err := postgres.RunMigrations(db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		store = postgres.NewGameRepo(db)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, games are kept in memory")
		store = relay.NewMemoryStore()
	}

	var bus relay.Bus = relay.NewLocalBus()
	var cache relay.Cache
	rdb, err := redis.Connect(ctx, cfg.RedisURL, cfg.RedisPassword, logger)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		bus = redis.NewEventBus(rdb, logger)
		cache = redis.NewGameCache(rdb, cfg.CacheTTL, logger)
	}

	svc := relay.NewService(store, bus, logger)
	if cache != nil {
		svc.WithCache(cache)
	}
	connManager := websocket.NewConnectionManager()

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	go cleanup.NewWorker(svc, cfg.StaleGameTTL, cfg.CleanupInterval, logger).Start(workerCtx)

	router := transportHttp.NewRouter(transportHttp.RouterConfig{
		Service:        svc,
		Keys:           auth.NewKeys(cfg.JWTSecret),
		ConnManager:    connManager,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("relayd starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info().Msg("relayd is shutting down")

	stopWorkers()
	connManager.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info().Msg("relayd exited gracefully")
	return nil
}
