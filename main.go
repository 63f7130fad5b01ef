package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dshelp/internal/config"
	"dshelp/internal/handlers"
	slackint "dshelp/internal/integrations/slack"
	"dshelp/internal/logging"
	"dshelp/internal/middleware"
	"dshelp/internal/services"
	"dshelp/internal/storage"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sashabaranov/go-openai"
)

func main() {
	// Local development convenience; in deployment the environment is
	// injected directly and no .env file exists.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env file")
	}

	logging.Setup()

	slog.Info("Starting dshelp", slog.String("version", "1.0.0"))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	slackClient, err := slackint.NewClient(startupCtx, cfg.SlackBotToken)
	if err != nil {
		slog.Error("Failed to initialize Slack client", "error", err)
		os.Exit(1)
	}
	slog.Info("Slack identity resolved", slog.String("bot_user_id", slackClient.SelfID()))

	openaiClient := openai.NewClient(cfg.OpenAIAPIKey)

	// The ticket audit log is optional: without DATABASE_URL the bot
	// still answers and posts tickets, it just keeps no records.
	var store storage.Store
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			slog.Warn("Ticket audit log unavailable, continuing without it", "error", err)
		} else {
			store = pg
			slog.Info("Ticket audit log connected")
		}
	} else {
		slog.Info("DATABASE_URL not set, ticket audit log disabled")
	}

	var searcher services.WebSearcher
	if cfg.ExaAPIKey != "" {
		searcher = services.NewExaClient(cfg.ExaAPIKey)
	} else {
		slog.Info("EXA_API_KEY not set, web search tool disabled")
	}

	scorer := services.NewRelevanceScorer(openaiClient, cfg.RelevanceThreshold, cfg.MaxRelevantThreads)
	discovery := services.NewThreadDiscovery(slackClient, scorer, cfg.MaxRelevantThreads, cfg.ThreadFetchTimeout)
	classifier := services.NewScopeClassifier(openaiClient)
	tickets := services.NewTicketPoster(slackClient, cfg.TicketChannelID, store)
	generator := services.NewResponseGenerator(openaiClient, tickets, searcher, services.NewOpenMeteoClient())

	slackHandler := handlers.NewSlackEventsHandler(slackClient, cfg.SlackSigningSecret, classifier, discovery, generator)
	ticketsHandler := handlers.NewTicketsHandler(store)

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware)
	router.Use(middleware.MetricsMiddleware)

	slackRouter := router.PathPrefix("/slack").Subrouter()
	slackRouter.Use(middleware.EventsRateLimitMiddleware())
	slackRouter.HandleFunc("/events", slackHandler.HandleEvent).Methods("POST")

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(middleware.APIRateLimitMiddleware())
	apiRouter.HandleFunc("/tickets", ticketsHandler.HandleList).Methods("GET")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ready"))
	}).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Server starting", slog.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if store != nil {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close ticket audit log", "error", err)
		}
	}

	slog.Info("Server exited gracefully")
}
