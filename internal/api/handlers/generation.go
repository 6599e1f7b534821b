package handlers

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Conceptual-Machines/melody-api/internal/api/middleware"
	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
	"github.com/Conceptual-Machines/melody-api/internal/generation"
	"github.com/Conceptual-Machines/melody-api/internal/models"
	"github.com/Conceptual-Machines/melody-api/internal/render"
	"github.com/Conceptual-Machines/melody-api/internal/services"
	"github.com/gin-gonic/gin"
)

// OutputPrefix is the URL path artifacts are served under
const OutputPrefix = "/output"

// Generator produces melodies from a seed
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
	LengthRange() (int, int)
}

// HistoryStore reads past generations
type HistoryStore interface {
	List(ctx context.Context, filter services.HistoryFilter) ([]models.Generation, error)
	Get(ctx context.Context, id string, filter services.HistoryFilter) (*models.Generation, error)
	Stats(ctx context.Context, filter services.HistoryFilter) (*services.Stats, error)
}

type GenerationHandler struct {
	generator     Generator
	history       HistoryStore
	defaultLength int
}

// NewGenerationHandler creates the handler. history may be nil when no
// database is configured.
func NewGenerationHandler(generator Generator, history HistoryStore, defaultLength int) *GenerationHandler {
	return &GenerationHandler{
		generator:     generator,
		history:       history,
		defaultLength: defaultLength,
	}
}

type GenerateRequest struct {
	// Seed overrides the session seed when set
	Seed   string `json:"seed" form:"seed"`
	Length int    `json:"length" form:"length"`

	// Sampling parameters; strategy defaults to greedy
	Strategy     string  `json:"strategy" form:"strategy"`
	TopK         int     `json:"top_k" form:"top_k"`
	Temperature  float64 `json:"temperature" form:"temperature"`
	SamplingSeed *int64  `json:"sampling_seed" form:"sampling_seed"`
}

type GenerateResponse struct {
	ID             string             `json:"id"`
	Seed           string             `json:"seed"`
	Melody         string             `json:"melody"`
	Symbols        []string           `json:"symbols"`
	GeneratedSteps int                `json:"generated_steps"`
	StopReason     string             `json:"stop_reason"`
	Events         []models.NoteEvent `json:"events"`
	DroppedEvents  int                `json:"dropped_events"`
	Beats          float64            `json:"beats"`
	Artifacts      render.Links       `json:"artifacts"`
	DurationMS     int64              `json:"duration_ms"`
}

func newGenerateResponse(result *generation.Result) GenerateResponse {
	return GenerateResponse{
		ID:             result.ID,
		Seed:           result.Seed,
		Melody:         result.Melody(),
		Symbols:        result.Symbols,
		GeneratedSteps: result.Generated,
		StopReason:     result.StopReason,
		Events:         result.Events,
		DroppedEvents:  result.DroppedEvents,
		Beats:          result.Beats,
		Artifacts:      result.Artifacts.Links(OutputPrefix),
		DurationMS:     result.Duration.Milliseconds(),
	}
}

// Generate continues the seed and renders the melody
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBind(&req); err != nil {
		RespondError(c, apperrors.InvalidInput(err, "The generation request is malformed."))
		return
	}

	result, err := h.Run(c, req)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newGenerateResponse(result))
}

// Run fills request defaults from the session and calls the generator
func (h *GenerationHandler) Run(c *gin.Context, req GenerateRequest) (*generation.Result, error) {
	seed := req.Seed
	if seed == "" {
		seed = middleware.SessionSeed(c)
	}
	if len(seed) > maxSeedLength {
		return nil, apperrors.NewInvalidInput("The seed is too long.")
	}

	length := req.Length
	if length == 0 {
		length = h.defaultLength
	}

	strategy, err := buildStrategy(req)
	if err != nil {
		return nil, err
	}

	sessionID, userID := requestIdentity(c)
	return h.generator.Generate(c.Request.Context(), generation.Request{
		Seed:      seed,
		Length:    length,
		Strategy:  strategy,
		SessionID: sessionID,
		UserID:    userID,
		RequestID: c.GetString("request_id"),
	})
}

func buildStrategy(req GenerateRequest) (generation.Strategy, error) {
	opts := generation.StrategyOptions{
		Name:        req.Strategy,
		TopK:        req.TopK,
		Temperature: req.Temperature,
	}
	if opts.TopK == 0 {
		opts.TopK = defaultTopK
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if req.SamplingSeed != nil {
		opts.Seed = *req.SamplingSeed
	} else {
		opts.Seed = time.Now().UnixNano()
	}
	return generation.NewStrategy(opts)
}

// HistoryItem is a stored generation with artifact links
type HistoryItem struct {
	models.Generation
	Artifacts *render.Links `json:"artifacts,omitempty"`
}

func newHistoryItem(g models.Generation) HistoryItem {
	item := HistoryItem{Generation: g}
	if g.MIDIPath != "" {
		artifacts := &render.Artifacts{
			Dir:      filepath.Dir(g.MIDIPath),
			MIDI:     g.MIDIPath,
			MusicXML: g.MusicXMLPath,
			Image:    g.ImagePath,
			Audio:    g.AudioPath,
		}
		links := artifacts.Links(OutputPrefix)
		item.Artifacts = &links
	}
	return item
}

func (h *GenerationHandler) historyFilter(c *gin.Context) services.HistoryFilter {
	sessionID, userID := requestIdentity(c)
	return services.HistoryFilter{SessionID: sessionID, UserID: userID}
}

// ListGenerations returns the caller's recent generations
func (h *GenerationHandler) ListGenerations(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "generations": []HistoryItem{}})
		return
	}

	filter := h.historyFilter(c)
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			RespondError(c, apperrors.NewInvalidInput("limit must be a positive integer."))
			return
		}
		if limit > maxHistoryPageSize {
			limit = maxHistoryPageSize
		}
		filter.Limit = limit
	}

	generations, err := h.history.List(c.Request.Context(), filter)
	if err != nil {
		RespondError(c, err)
		return
	}
	stats, err := h.history.Stats(c.Request.Context(), filter)
	if err != nil {
		RespondError(c, err)
		return
	}

	items := make([]HistoryItem, 0, len(generations))
	for _, g := range generations {
		items = append(items, newHistoryItem(g))
	}
	c.JSON(http.StatusOK, gin.H{
		"enabled":     true,
		"generations": items,
		"stats":       stats,
	})
}

// GetGeneration returns one of the caller's generations
func (h *GenerationHandler) GetGeneration(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Generation history is not enabled.",
		})
		return
	}

	g, err := h.history.Get(c.Request.Context(), c.Param("id"), h.historyFilter(c))
	if errors.Is(err, services.ErrGenerationNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:     "not_found",
			Message:   "Generation not found.",
			RequestID: c.GetString("request_id"),
		})
		return
	}
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newHistoryItem(*g))
}
