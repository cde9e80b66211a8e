package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "grid_adequacy/docs"
	"grid_adequacy/internal/config"
	"grid_adequacy/internal/handlers"
	"grid_adequacy/internal/logger"
	"grid_adequacy/internal/mapsurface"
	"grid_adequacy/internal/repository"
	"grid_adequacy/internal/repository/db"
	"grid_adequacy/internal/server"
	"grid_adequacy/internal/service"
	"grid_adequacy/internal/upstream"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout  = 10 * time.Second
	redisPingTimeout = 2 * time.Second
)

func newServeCmd() *cobra.Command {
	var (
		configDir string
		port      string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configDir, "config", "", "directory containing config.yml")
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port, overrides config")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	log := logger.Get(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = log.Sync() }()

	conn, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	client, err := upstream.New(cfg.Upstream.BaseURL, nil, cfg.Upstream.Timeout, upstream.RebuildParams{
		Horizon:       cfg.Upstream.Horizon,
		StepDeg:       cfg.Upstream.StepDeg,
		DemandGrowth:  cfg.Upstream.DemandGrowth,
		ReserveMargin: cfg.Upstream.ReserveMargin,
	})
	if err != nil {
		return fmt.Errorf("upstream client: %w", err)
	}

	cache, closeCache := heatCache(parent, cfg, log)
	defer closeCache()

	services, err := service.NewService(repository.NewRepository(conn), service.Options{
		Engine: service.EngineDeps{
			Frames:    client,
			Heat:      client,
			Cache:     cache,
			Map:       mapOptions(cfg.Map),
			Tick:      cfg.Playback.Tick,
			Autoplay:  cfg.Playback.Autoplay,
			LoadRetry: retryPolicy(cfg.Load),
			HeatRetry: retryPolicy(cfg.Heat.RetryConfig),
		},
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
		Log:        log,
	})
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}

	srv := server.New(cfg.Port, handlers.NewHandler(services, log).InitRoutes())

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the journal outlives the sessions so their close events are persisted
	journalCtx, stopJournal := context.WithCancel(context.WithoutCancel(parent))
	defer stopJournal()

	g, gctx := errgroup.WithContext(ctx)
	journalDone := make(chan struct{})
	g.Go(func() error {
		defer close(journalDone)
		services.EventLog.Run(journalCtx)
		return nil
	})
	g.Go(func() error {
		log.Infow("http_listening", "addr", srv.Addr(), "upstream", cfg.Upstream.BaseURL)
		return srv.Run()
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Infow("shutting down server...")

		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shCtx)
		if err != nil {
			log.Errorw("server forced to shutdown", "err", err)
		}
		services.Sessions.Shutdown()
		stopJournal()
		<-journalDone
		return err
	})
	return g.Wait()
}

// heatCache builds the in-process LRU, fronting Redis when redis.addr is set.
func heatCache(ctx context.Context, cfg *config.Config, log *logger.Logger) (service.HeatCache, func()) {
	local := service.NewLRUHeatCache(cfg.Heat.CacheSize, cfg.Heat.CacheTTL)
	if cfg.Redis.Addr == "" {
		return service.NewTieredHeatCache(local, nil), func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// reads and writes degrade to misses until it comes back
		log.Warnw("redis_unreachable", "addr", cfg.Redis.Addr, "err", err)
	}

	shared := service.NewRedisHeatCache(rdb, cfg.Redis.Prefix, cfg.Heat.CacheTTL, log.Named("heat_cache"))
	return service.NewTieredHeatCache(local, shared), func() {
		if err := rdb.Close(); err != nil {
			log.Errorw("failed to close redis", "err", err)
		}
	}
}

func mapOptions(c config.MapConfig) mapsurface.MapOptions {
	opts := mapsurface.MapOptions{Style: c.Style, Zoom: c.Zoom, Pitch: c.Pitch, Bearing: c.Bearing}
	if len(c.Center) == 2 {
		opts.Center = [2]float64{c.Center[0], c.Center[1]}
	}
	return opts
}

func retryPolicy(c config.RetryConfig) service.RetryPolicy {
	return service.RetryPolicy{
		MaxRetries:      c.MaxRetries,
		InitialInterval: c.InitialInterval,
		MaxInterval:     c.MaxInterval,
	}
}
