package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/rendezvous/internal/adapters/http"
	"github.com/dkeye/rendezvous/internal/adapters/rtc"
	"github.com/dkeye/rendezvous/internal/app"
	"github.com/dkeye/rendezvous/internal/app/orch"
	"github.com/dkeye/rendezvous/internal/config"
	"github.com/dkeye/rendezvous/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("failed to parse flags")
	}
	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	clock := core.RealClock{}
	store := app.NewStore(app.FirstComePolicy{}, clock)
	o := &orch.Orchestrator{
		Store:         store,
		Clock:         clock,
		MaxCandidates: cfg.MaxCandidates,
	}
	if cfg.ValidateSDP {
		o.Validator = rtc.Validator{}
	}

	monitor := app.NewMonitor(store, clock, app.MonitorConfig{
		Interval:         cfg.SweepInterval,
		KeepAliveTimeout: cfg.KeepAliveTimeout,
		MaxAge:           cfg.MaxSessionAge,
	})
	monitor.OnExpired(o.SessionExpired)

	probes := &router.Probes{}
	probes.Alive.Store(true)
	limiter := router.NewRateLimiter(cfg.JoinRateLimit, cfg.JoinRateInterval, clock)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(cfg, o, probes, limiter),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return monitor.Run(ctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Rendezvous server started")
		probes.Ready.Store(true)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		probes.Ready.Store(false)
		probes.Alive.Store(false)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		return nil
	})
	return g.Wait()
}
