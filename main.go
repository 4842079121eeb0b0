package main

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruvnet/fine-tune-mcp/internal/domain/finetuning"
	"github.com/ruvnet/fine-tune-mcp/internal/infrastructure/config"
	"github.com/ruvnet/fine-tune-mcp/internal/infrastructure/logger"
	_ "github.com/ruvnet/fine-tune-mcp/internal/infrastructure/metrics" // Register Prometheus metrics
	"github.com/ruvnet/fine-tune-mcp/internal/infrastructure/openaiclient"
	"github.com/ruvnet/fine-tune-mcp/internal/interfaces/httpserver"
	mcproute "github.com/ruvnet/fine-tune-mcp/internal/interfaces/httpserver/routes/mcp"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("log_level", cfg.LogLevel).
		Str("provider", cfg.Provider).
		Msg("Starting fine-tune MCP service")

	// Register providers once at startup; the registry is read-only
	// afterwards.
	registry := finetuning.NewRegistry()
	registry.Register(func() finetuning.Provider {
		return finetuning.NewOpenAIProvider(openaiclient.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: time.Duration(cfg.OpenAIHTTPTimeout) * time.Second,
		})
	})

	provider := registry.Default(cfg.Provider)
	if provider == nil {
		log.Error().Str("provider", cfg.Provider).Msg("no fine-tuning provider available")
	}

	// Initialize MCP routes
	finetuneMCP := mcproute.NewFinetuneMCP(provider)
	mcpRoute := mcproute.NewMCPRoute(finetuneMCP)

	// Start HTTP server
	server := httpserver.NewHTTPServer(cfg, mcpRoute)
	log.Info().Str("address", ":"+cfg.HTTPPort).Msg("Server listening")
	if err := server.Run(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
