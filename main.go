package main

import (
	"context"
	"encoding/json"
	stdlog "log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gocache "github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"
	"github.com/username/cartera/backend/src/broker"
	"github.com/username/cartera/backend/src/config"
	"github.com/username/cartera/backend/src/database"
	"github.com/username/cartera/backend/src/fx"
	"github.com/username/cartera/backend/src/handlers"
	"github.com/username/cartera/backend/src/logger"
	"github.com/username/cartera/backend/src/processors"
	"github.com/username/cartera/backend/src/services"
	"github.com/username/cartera/backend/src/store"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == config.Cfg.FrontendBaseURL {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("Cartera backend server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.DatabasePath)

	kv := store.NewKV(database.DB, config.Cfg.CacheEnabled)
	reportCache := gocache.New(config.Cfg.ReportCacheTTL, services.CacheCleanupInterval)

	fxClient := fx.NewClient(config.Cfg.FXBaseURL, kv)
	brokerClient := broker.NewClient(broker.Config{
		BaseURL:      config.Cfg.BrokerBaseURL,
		User:         config.Cfg.BrokerUser,
		Password:     config.Cfg.BrokerPassword,
		Timeout:      config.Cfg.BrokerTimeout,
		AuthCooldown: config.Cfg.AuthCooldown,
		SafetyMargin: config.Cfg.TokenSafetyMargin,
	}, kv)

	normalizer := processors.NewNormalizer(processors.NormalizerConfig{
		FXLookbackDays:         config.Cfg.FXLookbackDays,
		RedemptionLookbackDays: config.Cfg.RedemptionLookbackDays,
	})
	incomeProcessor := processors.NewIncomeProcessor(normalizer)

	portfolioService := services.NewPortfolioService(
		brokerClient,
		fxClient,
		normalizer,
		incomeProcessor,
		kv,
		reportCache,
		services.Config{
			HistoryStartDate: config.Cfg.HistoryStartDate,
			CacheTTL:         config.Cfg.CacheTTL,
			Merge: processors.MergeConfig{
				PriceTolAbs: config.Cfg.DedupPriceTolAbs,
				PriceTolRel: config.Cfg.DedupPriceTolRel,
			},
		},
	)

	authHandler := handlers.NewAuthHandler(brokerClient)
	portfolioHandler := handlers.NewPortfolioHandler(portfolioService)
	fxHandler := handlers.NewFXHandler(fxClient)
	instrumentHandler := handlers.NewInstrumentHandler(brokerClient)

	// Daily jobs: refresh the FX table and trim the cache store.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(config.Cfg.FXRefreshSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		fxClient.Refresh(ctx)
		portfolioService.InvalidateCache()
	}); err != nil {
		logger.L.Error("Failed to schedule FX refresh", "spec", config.Cfg.FXRefreshSpec, "error", err)
	}
	if _, err := scheduler.AddFunc("30 3 * * *", func() {
		if n, err := kv.PurgeOlderThan(30 * 24 * time.Hour); err == nil && n > 0 {
			logger.L.Info("Purged old cache entries", "count", n)
		}
	}); err != nil {
		logger.L.Error("Failed to schedule cache purge", "error", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Cartera Backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/auth/status", authHandler.HandleStatus)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)

		r.Get("/portfolio", portfolioHandler.HandleGetPortfolio)
		r.Get("/portfolio/{ticker}/operations", portfolioHandler.HandleGetOperations)
		r.Get("/portfolio/{ticker}/costbasis", portfolioHandler.HandleGetCostBasis)
		r.Get("/income", portfolioHandler.HandleGetIncome)
		r.Get("/fees", portfolioHandler.HandleGetFees)
		r.Get("/cashflows/projected", portfolioHandler.HandleGetProjectedCashFlows)
		r.Post("/refresh", portfolioHandler.HandleRefresh)

		r.Get("/instruments/{ticker}", instrumentHandler.HandleGetInstrument)
		r.Get("/instruments/{ticker}/prices", instrumentHandler.HandleGetPriceHistory)
		r.Get("/fx/rate", fxHandler.HandleGetRate)
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
