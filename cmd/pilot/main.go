package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"tradepulse/internal/client/analysis"
	"tradepulse/internal/client/exchange"
	"tradepulse/internal/client/feed"
	"tradepulse/internal/config"
	cronrunner "tradepulse/internal/cron"
	"tradepulse/internal/db"
	"tradepulse/internal/handler"
	"tradepulse/internal/logger"
	"tradepulse/internal/pipeline"
	"tradepulse/internal/record"
	gormrepository "tradepulse/internal/repository/gorm"
	"tradepulse/internal/risk"
	"tradepulse/internal/service"

	_ "tradepulse/docs"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("TP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("TP_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	feedHTTP := &http.Client{Timeout: cfg.Feed.Timeout}
	feedClient := feed.NewClient(feedHTTP, cfg.Feed.BaseURL, cfg.Feed.AuthToken)
	analyst := analysis.NewClient(cfg.Analysis.APIKey, cfg.Analysis.BaseURL, cfg.Analysis.Model, cfg.Exchange.QuoteAsset)
	exchangeHTTP := &http.Client{Timeout: cfg.Exchange.Timeout}
	trader := exchange.NewClient(exchangeHTTP, exchange.Options{
		Host:        cfg.Exchange.BaseURL,
		APIKey:      cfg.Exchange.APIKey,
		SecretKey:   cfg.Exchange.SecretKey,
		RecvWindow:  cfg.Exchange.RecvWindow,
		QuoteAsset:  cfg.Exchange.QuoteAsset,
		DryRun:      cfg.Exchange.DryRun,
		DualSide:    cfg.Exchange.DualSide,
		PriceMaxAge: cfg.Exchange.PriceMaxAge,
		Logger:      logger,
	})

	records := record.NewStore(store, logger)
	queue := pipeline.NewQueue()
	cache := pipeline.NewResultCache()
	registry := &risk.Registry{
		Repo:     store,
		Logger:   logger,
		Prices:   trader,
		Trader:   trader,
		Interval: cfg.Trading.MonitorInterval,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(handler.CORSMiddleware())
	engine.Use(handler.RequireBearer(cfg.Server.AuthToken))

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	handler.RegisterDocs(engine)
	recordHandler := &handler.RecordHandler{Repo: store}
	recordHandler.Register(engine)
	positionHandler := &handler.PositionHandler{Repo: store, Registry: registry}
	positionHandler.Register(engine)
	orderHandler := &handler.OrderHandler{Repo: store}
	orderHandler.Register(engine)
	pipelineHandler := &handler.PipelineHandler{Store: records, Queue: queue, Cache: cache, Registry: registry}
	pipelineHandler.Register(engine)
	settingsHandler := &handler.SystemSettingsHandler{Repo: store, Settings: settingsSvc}
	settingsHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	baseCtx := ctx

	// Rebuild the working set and requeue interrupted work before any
	// worker can dequeue.
	loaded, err := records.Load(baseCtx, cfg.Reaper.EvictAfter)
	if err != nil {
		logger.Fatal("record store load failed", zap.Error(err))
	}
	requeued, err := records.RecoverInterrupted(baseCtx, cfg.Pipeline.MaxRetries)
	if err != nil {
		logger.Fatal("record recovery failed", zap.Error(err))
	}
	for _, id := range requeued {
		queue.Enqueue(pipeline.Task{RecordID: id})
	}
	logger.Info("record store loaded",
		zap.Int("records", loaded),
		zap.Int("requeued", len(requeued)),
	)

	registry.Start(baseCtx)
	if restored, err := registry.ReloadOpenPositions(baseCtx); err != nil {
		logger.Warn("position reload failed", zap.Error(err))
	} else if restored > 0 {
		logger.Info("position monitors restored", zap.Int("count", restored))
	}

	if err := trader.SetDualSidePosition(baseCtx, cfg.Exchange.DualSide); err != nil {
		logger.Warn("set position mode failed", zap.Error(err))
	}

	stream := exchange.NewPriceStream(trader, exchange.PriceStreamOptions{
		URL: cfg.Exchange.WSURL,
		SymbolProvider: func(ctx context.Context) ([]string, error) {
			return registry.ActiveInstruments(), nil
		},
		Logger: logger,
	})
	go func() {
		if err := stream.Run(baseCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("price stream stopped", zap.Error(err))
		}
	}()

	pool := &pipeline.WorkerPool{
		Store:       records,
		Queue:       queue,
		Cache:       cache,
		Analyzer:    analyst,
		Logger:      logger,
		Workers:     cfg.Pipeline.Workers,
		Timeout:     cfg.Analysis.Timeout,
		MaxRetries:  cfg.Pipeline.MaxRetries,
		AuthorNotes: cfg.Feed.AuthorNotes,
	}
	go func() {
		if err := pool.Run(baseCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("worker pool stopped", zap.Error(err))
		}
	}()

	ingestor := &pipeline.Ingestor{
		Source:      feedClient,
		Store:       records,
		Queue:       queue,
		Cache:       cache,
		Trader:      trader,
		Registry:    registry,
		Repo:        store,
		Filter:      pipeline.NewSignalFilter(cfg.Trading.Blacklist, cfg.Trading.MinConfidence),
		Flags:       settingsSvc,
		Logger:      logger,
		Accounts:    cfg.Feed.Accounts,
		PageLimit:   cfg.Feed.PageLimit,
		EntryParams: risk.ParamsFromConfig(cfg.Trading),
		Leverage:    cfg.Exchange.Leverage,
	}
	go func() {
		if err := ingestor.Run(baseCtx, cfg.Feed.PollInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("ingestor stopped", zap.Error(err))
		}
	}()

	cronRunner := cronrunner.New(logger, baseCtx)
	reaper := &pipeline.Reaper{
		Store:      records,
		Queue:      queue,
		Flags:      settingsSvc,
		Logger:     logger,
		StaleAfter: cfg.Reaper.StaleAfter,
		EvictAfter: cfg.Reaper.EvictAfter,
		MaxRetries: cfg.Pipeline.MaxRetries,
	}
	if cfg.Cron.Enabled {
		if _, err := cronRunner.Add(cfg.Reaper.Schedule, "reaper", reaper.RunOnce); err != nil {
			logger.Warn("cron register reaper failed", zap.Error(err))
		}
		_, err := cronRunner.Add("@every 1m", "pipeline stats", func(ctx context.Context) {
			stats := records.Stats()
			logger.Info("pipeline stats",
				zap.Int("working_set", stats.WorkingSet),
				zap.Int("known_ids", stats.KnownIDs),
				zap.Int("queue_depth", queue.Len()),
				zap.Int("results_cached", cache.Len()),
				zap.Int("active_monitors", registry.Active()),
			)
		})
		if err != nil {
			logger.Warn("cron register stats failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	registry.StopAll()
}
