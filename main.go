package main

import (
	"context"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/username/fundfolio/src/config"
	"github.com/username/fundfolio/src/database"
	"github.com/username/fundfolio/src/handlers"
	"github.com/username/fundfolio/src/logger"
	"github.com/username/fundfolio/src/market"
	"github.com/username/fundfolio/src/processors"
	"github.com/username/fundfolio/src/security"
	"github.com/username/fundfolio/src/services"
	"github.com/username/fundfolio/src/store"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
			"http://localhost:5173": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, X-Request-ID")
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Fundfolio server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}

	loc, err := time.LoadLocation(config.Cfg.MarketTimezone)
	if err != nil {
		logger.L.Error("Failed to load market timezone", "timezone", config.Cfg.MarketTimezone, "error", err)
		os.Exit(1)
	}

	calendar := market.NewCalendar(loc)
	if err := calendar.LoadHolidays(config.Cfg.HolidayDataPath); err != nil {
		logger.L.Error("Failed to load market holidays, weekends only", "path", config.Cfg.HolidayDataPath, "error", err)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	st, err := store.NewSQLiteStore(database.DB)
	if err != nil {
		logger.L.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret, config.Cfg.AccessTokenExpiry)
	authHandler, err := handlers.NewAuthHandler(authService, config.Cfg.AdminPassword)
	if err != nil {
		logger.L.Error("Failed to initialize auth handler", "error", err)
		os.Exit(1)
	}

	quoteSource := services.NewEastmoneyQuoteSource(
		config.Cfg.EstimateBaseURL,
		config.Cfg.HistoryBaseURL,
		config.Cfg.QuoteTimeout,
		loc,
		time.Now,
	)

	positionProcessor := processors.NewPositionProcessor()
	settlementProcessor := processors.NewSettlementProcessor(st, calendar, positionProcessor)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := handlers.NewStreamHub()
	go hub.Run(ctx)

	portfolioService := services.NewPortfolioService(
		st, quoteSource, calendar, settlementProcessor, positionProcessor,
		hub.Broadcast, time.Now,
	)

	scheduler := services.NewValuationScheduler(
		quoteSource, calendar,
		services.SchedulerConfig{
			TradingInterval:    config.Cfg.TradingInterval,
			NonTradingInterval: config.Cfg.NonTradingInterval,
			FetchDelay:         config.Cfg.QuoteFetchDelay,
		},
		portfolioService.HandleQuote,
		time.Now,
	)
	portfolioService.AttachScheduler(scheduler)

	if funds, err := st.Funds(); err != nil {
		logger.L.Error("Failed to load tracked funds", "error", err)
	} else {
		scheduler.SetTrackedFunds(funds)
	}
	scheduler.Start()

	fundHandler := handlers.NewFundHandler(portfolioService)
	tradeHandler := handlers.NewTradeHandler(portfolioService)
	accountHandler := handlers.NewAccountHandler(st)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("POST /api/auth/login", authHandler.HandleLogin)

	requireAuth := handlers.AuthMiddleware(authService)
	protect := func(handler http.HandlerFunc) http.Handler {
		return requireAuth(handler)
	}

	apiRouter.Handle("GET /api/funds", protect(fundHandler.HandleListFunds))
	apiRouter.Handle("POST /api/funds", protect(fundHandler.HandleCreateFund))
	apiRouter.Handle("DELETE /api/funds/{id}", protect(fundHandler.HandleDeleteFund))
	apiRouter.Handle("GET /api/funds/{id}/trades", protect(tradeHandler.HandleListTrades))
	apiRouter.Handle("POST /api/funds/{id}/trades", protect(tradeHandler.HandleCreateTrade))

	apiRouter.Handle("GET /api/accounts", protect(accountHandler.HandleListAccounts))
	apiRouter.Handle("POST /api/accounts", protect(accountHandler.HandleCreateAccount))
	apiRouter.Handle("POST /api/accounts/rename", protect(accountHandler.HandleRenameAccount))
	apiRouter.Handle("POST /api/accounts/order", protect(accountHandler.HandleSetAccountOrder))
	apiRouter.Handle("DELETE /api/accounts/{name}", protect(accountHandler.HandleDeleteAccount))

	apiRouter.Handle("POST /api/refresh", protect(func(w http.ResponseWriter, r *http.Request) {
		scheduler.TriggerNow()
		w.WriteHeader(http.StatusAccepted)
	}))

	// Browsers cannot set an Authorization header on the WebSocket handshake;
	// the token rides in the query string instead.
	apiRouter.HandleFunc("GET /api/stream", func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if _, err := authService.ValidateToken(token); err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		hub.HandleStream(w, r)
	})

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Fundfolio backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(handlers.RequestIDMiddleware(rootMux)))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.L.Info("Shutdown signal received, stopping...")
		scheduler.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.L.Error("Server shutdown error", "error", err)
		}
	}()

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
