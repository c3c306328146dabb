package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/logtrace"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/config"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/memory"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/postgresql"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/server"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/session"
)

func init() {
	logtrace.InitLogger()
}

type cmdoptions struct {
	configFile string
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	slog := log.With().Str("state", "init").Logger()

	opt := parseFlags()

	// .env is optional; the environment wins over the config file.
	_ = godotenv.Load()

	slog.Info().Str("config_file", opt.configFile).Msg("loading config file")
	if err := config.LoadConfig(opt.configFile); err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}

	session.Init(config.Config().Tracking.MaxMetaKeys)

	store, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer store.Close()

	liveness := session.NewLivenessTracker()
	mgr := session.NewManager(store, liveness, session.ManagerOptions{
		HeartbeatTimeout: config.Config().Tracking.GetHeartbeatTimeoutOrDefault(),
		RoundingMinutes:  config.Config().Tracking.RoundingMinutes,
	})

	// Adopt sessions that were active before a restart.
	if err := mgr.SeedLiveness(ctx); err != nil {
		return fmt.Errorf("seeding liveness: %w", err)
	}

	sweeper := session.NewSweeper(mgr, config.Config().Tracking.GetSweepIntervalOrDefault())
	sweeper.Start(ctx)

	serverErrors, shutdownServer, err := createTrackerServer(ctx, store, mgr)
	if err != nil {
		sweeper.Stop()
		return fmt.Errorf("creating tracker server: %w", err)
	}

	// Channel to listen for an interrupt or terminate signal from the OS.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		sweeper.Stop()
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		slog.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		shutdownServer()
		sweeper.Stop()
	}

	slog.Info().Msg("server stopped")
	return nil
}

func openStore(ctx context.Context) (db.SessionStore, error) {
	switch config.Config().DB.Driver {
	case "memory":
		log.Info().Msg("using in-memory session store")
		return memory.New(), nil
	case "postgres":
		return postgresql.New(config.Config().DSN())
	default:
		return nil, fmt.Errorf("unknown db driver: %s", config.Config().DB.Driver)
	}
}

func createTrackerServer(ctx context.Context, store db.SessionStore, mgr *session.Manager) (chan error, func(), error) {
	slog := log.With().Str("state", "init").Logger()

	s := server.CreateNewServer(store, mgr, session.NewBillingGate(store, mgr), session.NewAggregator(store))
	s.MountHandlers()

	srv := &http.Server{
		Addr:              ":" + config.Config().ServerPort,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)

	go func() {
		slog.Info().Str("port", config.Config().ServerPort).Msg("server started")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := func() {
		// Give outstanding requests 5 seconds to complete and initiate the shutdown.
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error().Err(err).Msg("could not stop server gracefully")
			if err := srv.Close(); err != nil {
				slog.Error().Err(err).Msg("could not stop server")
			}
		}
	}

	return serverErrors, shutdown, nil
}

func parseFlags() cmdoptions {
	configFile := flag.String("config", "tracksrv.conf", "path to the configuration file")
	flag.Parse()
	return cmdoptions{
		configFile: *configFile,
	}
}
