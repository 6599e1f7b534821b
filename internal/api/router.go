package api

import (
	"net/http"

	"github.com/Conceptual-Machines/melody-api/internal/api/handlers"
	apimiddleware "github.com/Conceptual-Machines/melody-api/internal/api/middleware"
	"github.com/Conceptual-Machines/melody-api/internal/config"
	"github.com/Conceptual-Machines/melody-api/internal/metrics"
	"github.com/Conceptual-Machines/melody-api/internal/music"
	webhandlers "github.com/Conceptual-Machines/melody-api/internal/web/handlers"
	"github.com/Conceptual-Machines/melody-api/pkg/embedded"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Dependencies are the shared, already initialized components the routes use
type Dependencies struct {
	Config     *config.Config
	DB         *gorm.DB // nil when history is disabled
	Version    string
	Vocabulary *music.Vocabulary
	Generator  handlers.Generator
	History    handlers.HistoryStore // nil when history is disabled
	Metrics    *handlers.MetricsHandler
	CloudWatch *metrics.Client
	Sessions   *apimiddleware.SeedSessions
}

func SetupRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(apimiddleware.RecoverWithSentry())

	// Sentry middleware for error tracking
	router.Use(apimiddleware.SentryMiddleware())

	// Request tracking and structured logging
	router.Use(apimiddleware.RequestTracking(deps.CloudWatch))

	// Stylesheet and generated artifacts
	router.StaticFS("/static", http.FS(embedded.Static()))
	router.Static(handlers.OutputPrefix, cfg.OutputDir)

	// Health check
	healthHandler := handlers.NewHealthHandler(deps.DB, cfg.ModelName, deps.Vocabulary.Size())
	router.GET("/health", healthHandler.HealthCheck)

	// Metrics endpoint
	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = handlers.NewMetricsHandler(deps.Version, cfg.ModelName)
	}
	router.GET("/api/metrics", metricsHandler.GetMetrics)

	editor := music.NewSeedEditor(deps.Vocabulary, cfg.StepDuration)
	seedHandler := handlers.NewSeedHandler(editor)
	generationHandler := handlers.NewGenerationHandler(deps.Generator, deps.History, cfg.DefaultLength)
	vocabularyHandler := handlers.NewVocabularyHandler(deps.Vocabulary, cfg.SequenceLength, cfg.MinLength, cfg.MaxLength, cfg.DefaultLength)

	// Everything below reads or writes the visitor's seed
	visitor := router.Group("/")
	visitor.Use(deps.Sessions.Middleware(), apimiddleware.Auth(cfg, false))
	{
		// Web pages
		webHandler := webhandlers.NewWebHandler(deps.Vocabulary, seedHandler, generationHandler, cfg.MinLength, cfg.MaxLength, cfg.DefaultLength)
		visitor.GET("/", webHandler.Home)

		// HTMX fragments
		visitor.POST("/htmx/seed/symbols", webHandler.AppendSymbol)
		visitor.POST("/htmx/seed/clear", webHandler.ClearSeed)
		visitor.POST("/htmx/generate", webHandler.Generate)
	}

	// API routes v1
	v1 := router.Group("/api/v1")
	v1.Use(deps.Sessions.Middleware(), apimiddleware.Auth(cfg, cfg.IsGatewayMode()))
	{
		v1.GET("/vocabulary", vocabularyHandler.GetVocabulary)

		v1.GET("/seed", seedHandler.GetSeed)
		v1.POST("/seed/symbols", seedHandler.AppendSymbol)
		v1.DELETE("/seed", seedHandler.ClearSeed)

		v1.POST("/generations", generationHandler.Generate)
		v1.GET("/generations", generationHandler.ListGenerations)
		v1.GET("/generations/:id", generationHandler.GetGeneration)
	}

	return router
}
