package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sevasetu/paycore/gateway"
	"github.com/sevasetu/paycore/infra/config"
	"github.com/sevasetu/paycore/infra/logger"
	"github.com/sevasetu/paycore/infra/middle"
	"github.com/sevasetu/paycore/infra/opensearch"
	"github.com/sevasetu/paycore/infra/response"
	"github.com/sevasetu/paycore/notify"
	"github.com/sevasetu/paycore/reconcile"
	"github.com/sevasetu/paycore/router"
	"github.com/sevasetu/paycore/store"
)

var openSearchLogger *opensearch.Logger

func init() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg := config.GetAppConfig()
	if cfg.EnableLogging {
		osClient, err := opensearch.NewClient(cfg)
		if err != nil {
			log.Printf("Failed to initialize OpenSearch client: %v", err)
			log.Println("Continuing without OpenSearch logging...")
		} else {
			openSearchLogger = opensearch.NewLogger(osClient)
			log.Println("OpenSearch logging initialized successfully")
		}
	} else {
		log.Println("OpenSearch logging is disabled")
	}

	logger.InitGlobalLogger(openSearchLogger)
}

func main() {
	cfg := config.GetAppConfig()

	adapter, err := newActiveGateway(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize payment gateway", err)
	}
	log.Printf("Active payment gateway: %s", adapter.Name())

	requests, err := newStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize service request store", err)
	}
	defer requests.Close()

	dispatcher := notify.NewDispatcher(newSender(), newDirectory(cfg))
	processor := reconcile.NewProcessor(adapter, requests, notify.NewEvents(dispatcher))
	if openSearchLogger != nil {
		processor.SetAuditLog(openSearchLogger)
	}

	r := chi.NewRouter()

	// Basic Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Security Middleware
	rateLimiter := middle.NewRateLimiter()
	r.Use(middle.SecurityHeadersMiddleware)
	r.Use(middle.IPWhitelistMiddleware)
	r.Use(middle.RateLimitMiddleware(rateLimiter))
	r.Use(middle.RequestValidationMiddleware)
	r.Use(middle.PanicRecoveryMiddleware)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "Content-Length", "Access-Control-Allow-Origin"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Routes(r, router.Deps{
		Processor:   processor,
		Requests:    requests,
		GatewayName: adapter.Name(),
		Environment: cfg.Environment,
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = response.WriteJSON(w, http.StatusNotFound, response.Response{
			Code:    http.StatusNotFound,
			Success: false,
			Message: "Not Found",
		})
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", err)
		}
	}()

	log.Println("API is running on", cfg.Port)

	<-ctx.Done()

	log.Println("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", err)
	}
}

// newActiveGateway builds the configured adapter from environment credentials.
func newActiveGateway(cfg *config.AppConfig) (gateway.Adapter, error) {
	apiKey, apiSecret, webhookSecret := config.GatewayCredentials(cfg.ActiveGateway)

	factory := gateway.NewFactory(gateway.DefaultRegistry)
	return factory.Create(gateway.Config{
		Provider:      cfg.ActiveGateway,
		APIKey:        apiKey,
		APISecret:     apiSecret,
		WebhookSecret: webhookSecret,
		Environment:   cfg.Environment,
	})
}

func newStore(cfg *config.AppConfig) (store.ServiceRequestStore, error) {
	switch cfg.StoreDriver {
	case "postgres":
		return store.NewPostgresStore(cfg.PostgresDSN)
	default:
		return store.NewSQLiteStore(cfg.SQLitePath)
	}
}

func newSender() notify.EmailSender {
	host := config.GetEnv("SMTP_HOST", "")
	if host == "" {
		log.Println("SMTP not configured, using log sender")
		return notify.LogSender{}
	}
	return notify.NewSMTPSender(
		host,
		config.GetEnv("SMTP_PORT", "587"),
		config.GetEnv("SMTP_USERNAME", ""),
		config.GetEnv("SMTP_PASSWORD", ""),
		config.GetEnv("SMTP_FROM", "noreply@sevasetu.in"),
	)
}

// newDirectory parses PROVIDER_EMAILS ("id=email,id=email") and the admin
// list into a static recipient directory.
func newDirectory(cfg *config.AppConfig) notify.Directory {
	providers := map[string]string{}
	for _, pair := range strings.Split(config.GetEnv("PROVIDER_EMAILS", ""), ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if id, email, ok := strings.Cut(pair, "="); ok {
			providers[strings.TrimSpace(id)] = strings.TrimSpace(email)
		}
	}
	return notify.NewStaticDirectory(providers, cfg.AdminEmails)
}
