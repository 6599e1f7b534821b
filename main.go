package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Conceptual-Machines/melody-api/internal/api"
	"github.com/Conceptual-Machines/melody-api/internal/api/handlers"
	apimiddleware "github.com/Conceptual-Machines/melody-api/internal/api/middleware"
	"github.com/Conceptual-Machines/melody-api/internal/config"
	"github.com/Conceptual-Machines/melody-api/internal/database"
	"github.com/Conceptual-Machines/melody-api/internal/generation"
	"github.com/Conceptual-Machines/melody-api/internal/inference"
	"github.com/Conceptual-Machines/melody-api/internal/logger"
	"github.com/Conceptual-Machines/melody-api/internal/metrics"
	"github.com/Conceptual-Machines/melody-api/internal/music"
	"github.com/Conceptual-Machines/melody-api/internal/observability"
	"github.com/Conceptual-Machines/melody-api/internal/render"
	"github.com/Conceptual-Machines/melody-api/internal/services"
	"github.com/Conceptual-Machines/melody-api/pkg/embedded"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

const (
	sentryFlushTimeout = 2 * time.Second
	shutdownTimeout    = 10 * time.Second
)

// releaseVersion is set via ldflags during build
var releaseVersion = "dev"

// GetVersion returns the current release version
func GetVersion() string {
	return releaseVersion
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if !logger.SetLevel(cfg.LogLevel) {
		log.Printf("⚠️  Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
	}

	// Initialize Sentry
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			Release:          "melody-api@" + releaseVersion,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
			EnableLogs:       true,
			Debug:            !cfg.IsProduction(),
			BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
				// Filter out sensitive data
				if event.Request != nil {
					event.Request.Headers = filterSensitiveHeaders(event.Request.Headers)
				}
				return event
			},
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s, release: %s)", cfg.Environment, releaseVersion)
			defer sentry.Flush(sentryFlushTimeout)
		}
	} else {
		log.Println("⚠️  Sentry not configured (SENTRY_DSN not set)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer := observability.InitializeLangfuse(ctx, cfg)

	cloudwatch, err := metrics.NewClient(ctx, cfg.Environment)
	if err != nil {
		log.Fatal("Failed to create CloudWatch client:", err)
	}

	vocab, source, err := music.LoadVocabularyWithFallback(cfg.VocabPath, embedded.DefaultVocabularyJSON)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal("Failed to load vocabulary:", err)
	}
	log.Printf("🎼 Vocabulary loaded from %s (%d symbols)", source, vocab.Size())

	// The model is loaded once and shared by every request. A missing model
	// keeps the server up; generations then fail with 503.
	model, err := inference.Load(ctx, inference.Options{
		Backend:        cfg.ModelBackend,
		Path:           cfg.ModelPath,
		URL:            cfg.ModelURL,
		Name:           cfg.ModelName,
		VocabularySize: vocab.Size(),
	})
	if err != nil {
		logger.Error("Failed to load model", err, logger.Fields{"backend": cfg.ModelBackend, "path": cfg.ModelPath})
		model = inference.Unavailable(cfg.ModelName, err)
	} else {
		log.Printf("🧠 Model %s loaded (%s backend)", model.Name(), cfg.ModelBackend)
	}

	// Initialize database (optional)
	var (
		db         *gorm.DB
		history    handlers.HistoryStore
		historySvc *services.HistoryService
	)
	if cfg.DatabaseURL == "" {
		log.Println("⚠️  Generation history disabled (DATABASE_URL not set)")
	} else {
		db, err = database.Connect(cfg.DatabaseURL)
		if err != nil {
			sentry.CaptureException(err)
			log.Fatal("Failed to connect to database:", err)
		}
		if err := database.Migrate(db); err != nil {
			sentry.CaptureException(err)
			log.Fatal("Failed to run migrations:", err)
		}
		historySvc = services.NewHistoryService(db)
		history = historySvc
	}

	// Rendering pipeline
	runner := render.NewRunner(cfg.RenderTimeout, "")
	var (
		engraver render.Engraver
		synth    render.Synthesizer
	)
	if cfg.ScoreImageEnabled() {
		engraver = render.NewMuseScore(cfg.MuseScoreBin, runner)
	}
	if cfg.AudioEnabled() {
		synth = render.NewFluidSynth(cfg.FluidSynthBin, cfg.SoundfontPath, cfg.SampleRate, runner)
	}
	pipeline := render.NewPipeline(nil, nil, engraver, synth)
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.Fatal("Failed to create output directory:", err)
	}

	metricsHandler := handlers.NewMetricsHandler(GetVersion(), cfg.ModelName)
	recorders := metrics.Multi{metrics.NewSentryMetrics(), cloudwatch, metricsHandler}

	decoder := generation.NewDecoder(vocab, model, cfg.SequenceLength)
	decoder.Verbose = cfg.LogLevel == "debug"

	opts := []generation.Option{
		generation.WithMetrics(recorders),
		generation.WithTracer(tracer),
	}
	if historySvc != nil {
		opts = append(opts, generation.WithHistory(historySvc))
	}
	service := generation.NewService(decoder, pipeline, generation.ServiceConfig{
		ModelName:     cfg.ModelName,
		Quantum:       cfg.StepDuration,
		FlushTrailing: cfg.FlushTrailingNote,
		MinLength:     cfg.MinLength,
		MaxLength:     cfg.MaxLength,
		OutputDir:     cfg.OutputDir,
	}, opts...)

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	router := api.SetupRouter(api.Dependencies{
		Config:     cfg,
		DB:         db,
		Version:    GetVersion(),
		Vocabulary: vocab,
		Generator:  service,
		History:    history,
		Metrics:    metricsHandler,
		CloudWatch: cloudwatch,
		Sessions:   apimiddleware.NewSeedSessions(cfg.SessionSecret, cfg.IsProduction()),
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🚀 Starting server on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.CaptureException(err)
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
	cloudwatch.Wait()
}

func filterSensitiveHeaders(headers map[string]string) map[string]string {
	filtered := make(map[string]string)
	sensitiveKeys := map[string]bool{
		"authorization": true,
		"cookie":        true,
		"x-api-key":     true,
	}

	for k, v := range headers {
		if sensitiveKeys[k] {
			filtered[k] = "[REDACTED]"
		} else {
			filtered[k] = v
		}
	}
	return filtered
}
