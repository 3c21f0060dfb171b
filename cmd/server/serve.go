package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voltplatform/volt-backend/internal/api"
	"github.com/voltplatform/volt-backend/internal/cache"
	"github.com/voltplatform/volt-backend/internal/config"
	"github.com/voltplatform/volt-backend/internal/logger"
	"github.com/voltplatform/volt-backend/internal/metrics"
	"github.com/voltplatform/volt-backend/internal/middleware"
	"github.com/voltplatform/volt-backend/internal/repository"
	"github.com/voltplatform/volt-backend/internal/service"
	"github.com/voltplatform/volt-backend/internal/spatial"
	"github.com/voltplatform/volt-backend/internal/storage"
	"github.com/voltplatform/volt-backend/internal/synthesis"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := logger.L()

	// 初始化数据库
	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	jobCache, closeCache, err := openJobCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	archive, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}

	users := repository.NewUserRepository(db)
	races := repository.NewRaceRepository(db)
	jobs := repository.NewSynthesisRepository(db)

	authSvc := service.NewAuthService(users, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	analyticsSvc := service.NewAnalyticsService(races, cache.NewAnalyticsCache(cfg.Analysis.CacheTTL), m)
	raceSvc := service.NewRaceService(races, analyticsSvc, archive, m, log, cfg.Upload.MaxBytes)

	engineCfg := synthesis.DefaultConfig()
	engineCfg.MinSimilarity = cfg.Synthesis.MinSimilarity
	engineCfg.MaxCandidates = cfg.Synthesis.MaxCandidates
	synthSvc := service.NewSynthesisService(jobs, races, raceSvc, jobCache, service.SynthesisOptions{
		Workers:         cfg.Synthesis.Workers,
		QueueSize:       cfg.Synthesis.QueueSize,
		JobTimeout:      cfg.Synthesis.JobTimeout,
		OwnerCorpusOnly: cfg.Synthesis.CorpusScope == config.CorpusScopeOwner,
		AreaLimits:      spatial.AreaLimits{MinKm2: cfg.Synthesis.MinAreaKm2, MaxKm2: cfg.Synthesis.MaxAreaKm2},
		Engine:          engineCfg,
	}, m, log)
	// workers outlive the signal context so Stop can cancel them in order
	if err := synthSvc.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	defer synthSvc.Stop()

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow)
	defer limiter.Close()

	// 初始化路由
	router := api.SetupRouter(cfg, &api.Dependencies{
		Auth:        authSvc,
		Races:       raceSvc,
		Analytics:   analyticsSvc,
		Synthesis:   synthSvc,
		Metrics:     m,
		RateLimiter: limiter,
		Logger:      log,
	})

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Server.Port), zap.String("mode", cfg.Server.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

func openJobCache(ctx context.Context, cfg *config.Config) (cache.JobCache, func(), error) {
	client, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		logger.Info("redis not configured, job cache disabled")
		return cache.NopJobCache{}, func() {}, nil
	}
	logger.Info("redis job cache enabled", zap.String("addr", cfg.Redis.Addr))
	return cache.NewRedisJobCache(client, cfg.Redis.JobTTL), func() { client.Close() }, nil
}

func openArchive(ctx context.Context, cfg *config.Config) (storage.Archive, error) {
	if cfg.Minio.Endpoint == "" {
		logger.Info("minio not configured, upload archive disabled")
		return storage.NopArchive{}, nil
	}
	archive, err := storage.NewMinioArchive(ctx, storage.MinioConfig{
		Endpoint:  cfg.Minio.Endpoint,
		AccessKey: cfg.Minio.AccessKey,
		SecretKey: cfg.Minio.SecretKey,
		Bucket:    cfg.Minio.Bucket,
		Region:    cfg.Minio.Region,
		UseSSL:    cfg.Minio.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("minio upload archive enabled", zap.String("bucket", cfg.Minio.Bucket))
	return archive, nil
}
