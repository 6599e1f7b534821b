package generation

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
	"github.com/Conceptual-Machines/melody-api/internal/logger"
	"github.com/Conceptual-Machines/melody-api/internal/metrics"
	"github.com/Conceptual-Machines/melody-api/internal/models"
	"github.com/Conceptual-Machines/melody-api/internal/music"
	"github.com/Conceptual-Machines/melody-api/internal/observability"
	"github.com/Conceptual-Machines/melody-api/internal/render"
	"github.com/google/uuid"
)

// Renderer writes the artifacts of one melody into dir
type Renderer interface {
	Render(ctx context.Context, events []models.NoteEvent, dir string) (*render.Artifacts, error)
}

// HistoryRecorder persists generation records
type HistoryRecorder interface {
	Record(ctx context.Context, generation *models.Generation) error
}

// ServiceConfig holds the tunables of a Service
type ServiceConfig struct {
	ModelName     string
	Quantum       float64
	FlushTrailing bool
	MinLength     int
	MaxLength     int
	OutputDir     string
}

// Service runs a full generation: decode, reconstruct, render
type Service struct {
	decoder  *Decoder
	renderer Renderer
	history  HistoryRecorder
	metrics  metrics.GenerationRecorder
	tracer   *observability.LangfuseClient
	cfg      ServiceConfig
}

// Option configures optional collaborators of a Service
type Option func(*Service)

// WithHistory persists every generation
func WithHistory(h HistoryRecorder) Option {
	return func(s *Service) { s.history = h }
}

// WithMetrics records generation metrics
func WithMetrics(m metrics.GenerationRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer sends generation traces to Langfuse
func WithTracer(t *observability.LangfuseClient) Option {
	return func(s *Service) { s.tracer = t }
}

// NewService creates a generation service
func NewService(decoder *Decoder, renderer Renderer, cfg ServiceConfig, opts ...Option) *Service {
	if cfg.Quantum <= 0 {
		cfg.Quantum = music.DefaultQuantum
	}
	s := &Service{decoder: decoder, renderer: renderer, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = observability.GetClient()
	}
	return s
}

// Request is one generation request
type Request struct {
	Seed      string
	Length    int
	Strategy  Strategy
	SessionID string
	UserID    string
	RequestID string
}

// Result is a finished generation
type Result struct {
	ID            string             `json:"id"`
	Seed          string             `json:"seed"`
	Symbols       []string           `json:"symbols"`
	Generated     int                `json:"generated_steps"`
	StopReason    string             `json:"stop_reason"`
	Events        []models.NoteEvent `json:"events"`
	DroppedEvents int                `json:"dropped_events"`
	Beats         float64            `json:"beats"`
	Artifacts     *render.Artifacts  `json:"artifacts"`
	Duration      time.Duration      `json:"-"`
}

// Melody returns the generated symbols as a seed-formatted string
func (r *Result) Melody() string {
	return strings.Join(r.Symbols, " ")
}

// LengthRange returns the accepted request lengths
func (s *Service) LengthRange() (int, int) {
	return s.cfg.MinLength, s.cfg.MaxLength
}

// Generate validates req, runs the pipeline and records the outcome
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if req.Strategy == nil {
		req.Strategy = Greedy{}
	}

	start := time.Now()
	id := uuid.New().String()
	fields := logger.Fields{
		"generation_id": id,
		"request_id":    req.RequestID,
		"session_id":    req.SessionID,
		"model":         s.cfg.ModelName,
		"strategy":      req.Strategy.Name(),
		"length":        req.Length,
	}

	trace := s.tracer.StartTrace(ctx, "melody-generation", observability.TraceOptions{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Metadata:  map[string]interface{}{"generation_id": id, "request_id": req.RequestID},
	})
	defer trace.Finish()
	gen := trace.Generation("decode", s.cfg.ModelName, map[string]interface{}{
		"strategy": req.Strategy.Name(),
		"length":   req.Length,
	})
	gen.Input(req.Seed)

	result, err := s.run(ctx, id, req)
	duration := time.Since(start)

	record := &models.Generation{
		ID:              id,
		SessionID:       req.SessionID,
		UserID:          req.UserID,
		RequestID:       req.RequestID,
		ModelName:       s.cfg.ModelName,
		Strategy:        req.Strategy.Name(),
		Seed:            req.Seed,
		RequestedLength: req.Length,
		DurationMS:      int(duration.Milliseconds()),
	}
	stats := metrics.GenerationStats{
		Model:    s.cfg.ModelName,
		Strategy: req.Strategy.Name(),
		Duration: duration,
		Success:  err == nil,
	}

	if err != nil {
		kind := string(apperrors.Kind(err))
		record.Status = models.GenerationStatusFailed
		record.ErrorKind = kind
		stats.ErrorKind = kind
		fields["error_kind"] = kind

		gen.SetLevel(observability.LevelError)
		gen.Metadata(map[string]interface{}{"error_kind": kind, "error": err.Error()})
		gen.Finish()

		logger.Error("Melody generation failed", err, fields)
	} else {
		result.Duration = duration
		record.Status = models.GenerationStatusSucceeded
		record.GeneratedSteps = result.Generated
		record.EventCount = len(result.Events)
		record.DroppedEvents = result.DroppedEvents
		record.StopReason = result.StopReason
		record.Symbols = result.Melody()
		record.MIDIPath = result.Artifacts.MIDI
		record.MusicXMLPath = result.Artifacts.MusicXML
		record.ImagePath = result.Artifacts.Image
		record.AudioPath = result.Artifacts.Audio

		stats.Steps = result.Generated
		stats.Events = len(result.Events)
		stats.DroppedEvents = result.DroppedEvents
		stats.StopReason = result.StopReason

		gen.Output(result.Melody())
		gen.SymbolUsage(len(result.Symbols)-result.Generated, result.Generated)
		gen.Metadata(map[string]interface{}{"stop_reason": result.StopReason, "events": len(result.Events)})
		gen.Finish()

		fields["stop_reason"] = result.StopReason
		fields["dropped_events"] = result.DroppedEvents
		logger.LogGenerationRequest(ctx, s.cfg.ModelName, duration, result.Generated, len(result.Events), fields)
	}

	if s.metrics != nil {
		s.metrics.RecordGeneration(ctx, stats)
	}
	if s.history != nil {
		// History is best effort; a failed insert never fails the generation
		if histErr := s.history.Record(ctx, record); histErr != nil {
			logger.Error("Failed to record generation history", histErr, logger.Fields{"generation_id": id})
		}
	}

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) validate(req Request) error {
	if strings.TrimSpace(req.Seed) == "" {
		return apperrors.NewInvalidInput("The seed melody is empty. Add at least one note.")
	}
	if (s.cfg.MinLength > 0 && req.Length < s.cfg.MinLength) || (s.cfg.MaxLength > 0 && req.Length > s.cfg.MaxLength) {
		return apperrors.NewInvalidInput(fmt.Sprintf("Length must be between %d and %d steps.", s.cfg.MinLength, s.cfg.MaxLength))
	}
	if req.Length <= 0 {
		return apperrors.NewInvalidInput("Length must be positive.")
	}
	return nil
}

func (s *Service) run(ctx context.Context, id string, req Request) (*Result, error) {
	decoded, err := s.decoder.Decode(ctx, req.Seed, req.Length, req.Strategy)
	if err != nil {
		return nil, err
	}

	recon, err := music.Reconstruct(decoded.Symbols, music.ReconstructOptions{
		Quantum:       s.cfg.Quantum,
		FlushTrailing: s.cfg.FlushTrailing,
	})
	if err != nil {
		return nil, err
	}
	if recon.Dropped > 0 {
		logger.Warn("Trailing note dropped from melody", logger.Fields{
			"generation_id": id,
			"dropped":       recon.Dropped,
		})
	}

	artifacts, err := s.renderer.Render(ctx, recon.Events, filepath.Join(s.cfg.OutputDir, id))
	if err != nil {
		return nil, err
	}

	return &Result{
		ID:            id,
		Seed:          req.Seed,
		Symbols:       decoded.Symbols,
		Generated:     decoded.Generated(),
		StopReason:    decoded.StopReason,
		Events:        recon.Events,
		DroppedEvents: recon.Dropped,
		Beats:         recon.TotalBeats(),
		Artifacts:     artifacts,
	}, nil
}
