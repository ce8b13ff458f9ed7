// Command server runs the workflow engine behind a REST API and a
// WebSocket event stream.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smilemakc/mbflow/internal/config"
	"github.com/smilemakc/mbflow/internal/domain"
	"github.com/smilemakc/mbflow/internal/engine"
	"github.com/smilemakc/mbflow/internal/infrastructure/api/rest"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow/internal/infrastructure/websocket"
	"github.com/smilemakc/mbflow/internal/nodebody"
	"github.com/smilemakc/mbflow/internal/persistence"
)

func main() {
	var (
		port          = flag.String("port", "", "server port (overrides config)")
		configPath    = flag.String("config", "config.yml", "path to YAML config overlay")
		enableCORS    = flag.Bool("cors", true, "enable CORS")
		enableMetrics = flag.Bool("metrics", true, "enable progress/event streaming")
		apiKeys       = flag.String("api-keys", "", "comma-separated API keys for authentication")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if *port != "" {
		cfg.Port = *port
	}

	log := logger.Setup(cfg.LogLevel)
	log.Info().Str("port", cfg.Port).Bool("cors", *enableCORS).Bool("metrics", *enableMetrics).Msg("starting mbflow server")

	store, err := buildStore(cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize checkpoint store")
		os.Exit(1)
	}
	log.Info().Str("backend", cfg.PersistenceBackend).Msg("checkpoint store ready")

	bodies := map[string]engine.NodeBody{
		"http_request": nodebody.NewHTTPRequestBody(),
	}
	if cfg.OpenAIAPIKey != "" {
		bodies["llm_completion"] = nodebody.NewLLMCompletionBody(cfg.OpenAIAPIKey, "")
	}

	hub := websocket.NewHub(log)
	go hub.Run()

	onStart := func(e *engine.Engine, wctx *domain.WorkflowExecutionContext) {
		if !*enableMetrics {
			return
		}
		obs := websocket.NewObserver(hub, wctx.InstanceID)
		go obs.Run(e.Events(), e.Progress())
	}

	registry := rest.NewRegistry(bodies, engine.DefaultConfig(), onStart)

	var apiKeysList []string
	if *apiKeys != "" {
		apiKeysList = splitCommaList(*apiKeys)
		log.Info().Int("count", len(apiKeysList)).Msg("api key authentication enabled")
	}

	serverConfig := rest.ServerConfig{
		EnableCORS:      *enableCORS,
		EnableRateLimit: false,
		RateLimitMax:    100,
		RateLimitWindow: time.Minute,
		APIKeys:         apiKeysList,
		JWTSecret:       cfg.JWTSecret,
	}
	restServer := rest.NewServer(registry, store, log, serverConfig)

	wsAuth := websocket.Authenticator(websocket.NewNoAuth())
	if cfg.JWTSecret != "" {
		wsAuth = websocket.NewJWTAuth(cfg.JWTSecret)
	}
	wsHandler := websocket.NewHandler(hub, wsAuth, log)

	mux := http.NewServeMux()
	mux.Handle("/", restServer)
	mux.Handle("/ws", wsHandler)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", httpServer.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server exited gracefully")
}

func buildStore(cfg *config.Config) (persistence.Store, error) {
	switch cfg.PersistenceBackend {
	case "file":
		return persistence.NewFileStore(cfg.CheckpointDir, persistence.JSONCodec{})
	case "postgres":
		return persistence.NewPostgresStore(context.Background(), persistence.DefaultPostgresConfig(cfg.DatabaseDSN), persistence.JSONCodec{})
	default:
		return persistence.NewMemoryStore(), nil
	}
}

func splitCommaList(s string) []string {
	var out []string
	current := ""
	for _, ch := range s {
		if ch == ',' {
			if current != "" {
				out = append(out, current)
				current = ""
			}
			continue
		}
		current += string(ch)
	}
	if current != "" {
		out = append(out, current)
	}
	return out
}
