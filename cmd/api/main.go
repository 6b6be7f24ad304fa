package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/robfig/cron/v3"

	"ivr-billing/internal/auth"
	"ivr-billing/internal/billing"
	"ivr-billing/internal/callprovider"
	"ivr-billing/internal/config"
	"ivr-billing/internal/currency"
	"ivr-billing/internal/custody"
	"ivr-billing/internal/httpapi"
	"ivr-billing/internal/pricing"
	"ivr-billing/internal/reporting"
	"ivr-billing/internal/subscription"
	"ivr-billing/internal/trigger"
	"ivr-billing/internal/usage"
	"ivr-billing/internal/wallet"
	"ivr-billing/pkg/logger"
	"ivr-billing/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Repositories
	recordRepo := usage.NewPostgresRepo(db)
	subRepo := subscription.NewPostgresRepo(db)
	planRepo := subscription.NewPostgresPlanRepo(db)
	accountRepo := wallet.NewPostgresAccountRepo(db)
	txRepo := wallet.NewPostgresTransactionRepo(db)
	pricingRepo := pricing.NewPostgresRepo(db)

	// External clients
	provider := callprovider.NewHTTPClient(cfg.CallProvider)
	custodyClient := custody.NewHTTPClient(cfg.Custody)
	priceFetcher := currency.NewHTTPPriceClient(cfg.PriceAPI)

	// Services
	subSvc := subscription.NewService(subRepo, planRepo)
	walletSvc := wallet.NewService(accountRepo, txRepo)
	pricingSvc := pricing.NewService(pricingRepo)
	rateSvc := currency.NewRateService(priceFetcher, currency.NewRedisPriceCache(rdb), cfg.Billing.PriceCacheTTL)
	reportSvc := reporting.NewService(reporting.NewPostgresRepo(db), pricingSvc)

	// Metering pipeline
	tracker := usage.NewTracker(recordRepo, subSvc, provider)
	engine := billing.NewEngine(recordRepo, accountRepo, walletSvc, custodyClient, rateSvc, pricingSvc, subSvc)
	locker := billing.NewRedisLocker(rdb, cfg.Billing.ChargeLockTTL)
	pipeline := trigger.NewPipeline(tracker, engine, locker)
	poller := trigger.NewPoller(recordRepo, provider, pipeline)
	safetyNet := trigger.NewSafetyNet(recordRepo, pipeline)
	webhook := trigger.NewWebhookHandler(pipeline)

	// Scheduled triggers. Cron specs carry a seconds field.
	jobCtx := logger.With(rootCtx, log)
	sched := cron.New(cron.WithSeconds())
	sched.Schedule(cron.Every(cfg.Billing.PollInterval), cron.FuncJob(func() {
		if err := poller.RunOnce(jobCtx); err != nil {
			log.Error("poll cycle failed", "err", err)
		}
	}))
	if _, err := sched.AddFunc(cfg.Billing.SafetyNetSpec, func() {
		if err := safetyNet.RunOnce(jobCtx); err != nil {
			log.Error("safety net sweep failed", "err", err)
		}
	}); err != nil {
		log.Error("safety net schedule invalid", "spec", cfg.Billing.SafetyNetSpec, "err", err)
		os.Exit(1)
	}
	if _, err := sched.AddFunc(cfg.Billing.ExpirySpec, func() {
		n, err := subSvc.ExpireDue(jobCtx)
		if err != nil {
			log.Error("subscription expiry pass failed", "err", err)
			return
		}
		if n > 0 {
			log.Info("subscriptions expired", "count", n)
		}
	}); err != nil {
		log.Error("expiry schedule invalid", "spec", cfg.Billing.ExpirySpec, "err", err)
		os.Exit(1)
	}
	sched.Start()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	handlers := httpapi.Handlers{
		Auth:    authManager,
		Subs:    subSvc,
		Wallet:  walletSvc,
		Records: recordRepo,
		Reports: reportSvc,
		Pricing: pricingSvc,
	}
	registerRoutes(r, db, handlers, webhook, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Let in-flight cron jobs finish before the process exits.
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
