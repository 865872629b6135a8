package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arbadvisor/internal/agent"
	"arbadvisor/internal/config"
	cronrunner "arbadvisor/internal/cron"
	"arbadvisor/internal/db"
	"arbadvisor/internal/handler"
	"arbadvisor/internal/llm"
	"arbadvisor/internal/logger"
	gormrepository "arbadvisor/internal/repository/gorm"
	"arbadvisor/internal/service"
)

func main() {
	cfgPath := os.Getenv("AA_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("AA_ENV_ONLY"); envOnlyRaw != "" {
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

	// The agent pipeline is fully in-memory; postgres only backs wallets and
	// strategies. A missing database degrades those surfaces instead of
	// killing the demo.
	var dbConn *db.DB
	if strings.TrimSpace(cfg.DB.DSN) != "" {
		dbConn, err = db.Open(cfg.DB)
		if err != nil {
			logger.Warn("db open failed, wallet and strategy APIs disabled", zap.Error(err))
			dbConn = nil
		}
	} else {
		logger.Warn("db dsn not configured, wallet and strategy APIs disabled")
	}
	if dbConn != nil {
		defer db.Close(dbConn)
		if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
			logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
	}

	textClient := llm.NewClient(llm.Config{
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		Timeout:   cfg.LLM.Timeout,
		MaxTokens: cfg.LLM.MaxTokens,
	})

	bus := agent.NewBus()
	orchestrator := agent.NewSystem(textClient, bus, logger, agent.OrchestratorConfig{
		ScanInterval:      cfg.Agents.ScanInterval,
		ConversationDelay: cfg.Agents.ConversationDelay,
		Debug:             cfg.Agents.Debug,
	})

	var (
		accountSvc  *service.AccountService
		walletSvc   *service.WalletService
		strategySvc *service.StrategyService
	)
	if dbConn != nil {
		store := gormrepository.New(dbConn.Gorm)
		accountSvc = service.NewAccountService(store, logger, decimal.NewFromFloat(cfg.Wallet.InitialBalance))
		walletSvc = service.NewWalletService(store, logger)
		strategySvc = service.NewStrategyService(store, textClient, logger)
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{}
	if dbConn != nil {
		healthHandler.DB = dbConn.Gorm
	}
	healthHandler.Register(engine)

	systemHandler := &handler.SystemHandler{
		Orchestrator: orchestrator,
		Accounts:     accountSvc,
		Logger:       logger,
	}
	systemHandler.Register(engine)

	oppHandler := &handler.OpportunityHandler{Orchestrator: orchestrator}
	oppHandler.Register(engine)
	recHandler := &handler.RecommendationHandler{Orchestrator: orchestrator}
	recHandler.Register(engine)
	msgHandler := &handler.MessageHandler{Orchestrator: orchestrator}
	msgHandler.Register(engine)
	streamHandler := &handler.StreamHandler{Bus: bus, Logger: logger}
	streamHandler.Register(engine)

	if dbConn != nil {
		accountHandler := &handler.AccountHandler{Accounts: accountSvc}
		accountHandler.Register(engine)
		walletHandler := &handler.WalletHandler{Wallet: walletSvc}
		walletHandler.Register(engine)
		strategyHandler := &handler.StrategyHandler{
			Strategies:   strategySvc,
			Orchestrator: orchestrator,
		}
		strategyHandler.Register(engine)
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orchestrator.Start(ctx)
	defer orchestrator.Stop()

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)

		_, err = cronRunner.Add(cfg.Cron.OpportunitySweep, func(ctx context.Context) {
			orchestrator.OpportunityAgent().Sweep()
		})
		if err != nil {
			logger.Warn("cron register opportunity sweep failed", zap.Error(err))
		}

		_, err = cronRunner.Add(cfg.Cron.MetricsSnapshot, func(ctx context.Context) {
			status := orchestrator.SystemStatus()
			logger.Info("metrics snapshot",
				zap.Bool("running", status.IsRunning),
				zap.Int("messages", status.Metrics.MessagesExchanged),
				zap.Int("active_opportunities", status.Metrics.ActiveOpportunities),
				zap.Int("recommendations", status.Metrics.TotalRecommendations),
				zap.Uint64("bus_dropped", bus.Dropped()),
			)
		})
		if err != nil {
			logger.Warn("cron register metrics snapshot failed", zap.Error(err))
		}

		_, err = cronRunner.Add(cfg.Cron.DailyStats, func(ctx context.Context) {
			users := orchestrator.MatchingAgent().KnownUsers()
			total := 0
			for _, u := range users {
				total += len(orchestrator.UserRecommendations(u))
			}
			logger.Info("daily stats",
				zap.Int("users", len(users)),
				zap.Int("stored_recommendations", total),
			)
		})
		if err != nil {
			logger.Warn("cron register daily stats failed", zap.Error(err))
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
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
