package handlers

import (
	"net/http"

	apihandlers "github.com/Conceptual-Machines/melody-api/internal/api/handlers"
	"github.com/Conceptual-Machines/melody-api/internal/api/middleware"
	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
	"github.com/Conceptual-Machines/melody-api/internal/logger"
	"github.com/Conceptual-Machines/melody-api/internal/music"
	"github.com/Conceptual-Machines/melody-api/internal/web/templates"
	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
)

// WebHandler serves the form page and its htmx fragments. Seed and
// generation logic is shared with the JSON handlers.
type WebHandler struct {
	vocab      *music.Vocabulary
	seeds      *apihandlers.SeedHandler
	generation *apihandlers.GenerationHandler

	minLength     int
	maxLength     int
	defaultLength int
}

func NewWebHandler(vocab *music.Vocabulary, seeds *apihandlers.SeedHandler, generation *apihandlers.GenerationHandler, minLength, maxLength, defaultLength int) *WebHandler {
	return &WebHandler{
		vocab:         vocab,
		seeds:         seeds,
		generation:    generation,
		minLength:     minLength,
		maxLength:     maxLength,
		defaultLength: defaultLength,
	}
}

func render(c *gin.Context, status int, component templ.Component) {
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(c.Request.Context(), c.Writer); err != nil {
		logger.Error("Failed to render template", err, logger.WithContext(c))
	}
}

// Home renders the melody form with the session seed
func (h *WebHandler) Home(c *gin.Context) {
	render(c, http.StatusOK, templates.Home(templates.HomeData{
		Pitches:       h.vocab.PitchChoices(),
		Durations:     music.AcceptedDurations,
		Seed:          middleware.SessionSeed(c),
		MinLength:     h.minLength,
		MaxLength:     h.maxLength,
		DefaultLength: h.defaultLength,
	}))
}

// AppendSymbol adds the chosen pitch and duration, returning the seed box
func (h *WebHandler) AppendSymbol(c *gin.Context) {
	var req apihandlers.AppendRequest
	if err := c.ShouldBind(&req); err != nil {
		render(c, http.StatusOK, templates.SeedBox(middleware.SessionSeed(c), "Choose a pitch and a duration."))
		return
	}

	seed, err := h.seeds.Append(c, req)
	if err != nil {
		render(c, http.StatusOK, templates.SeedBox(seed, apperrors.Message(err)))
		return
	}
	render(c, http.StatusOK, templates.SeedBox(seed, ""))
}

// ClearSeed empties the seed box
func (h *WebHandler) ClearSeed(c *gin.Context) {
	seed, err := h.seeds.Clear(c)
	if err != nil {
		render(c, http.StatusOK, templates.SeedBox(seed, apperrors.Message(err)))
		return
	}
	render(c, http.StatusOK, templates.SeedBox(seed, ""))
}

// Generate runs a generation from the session seed and returns the result
// fragment. Failures are shown inline; htmx only swaps 2xx responses.
func (h *WebHandler) Generate(c *gin.Context) {
	var req apihandlers.GenerateRequest
	if err := c.ShouldBind(&req); err != nil {
		render(c, http.StatusOK, templates.ErrorMessage("The generation request is malformed."))
		return
	}
	// the form always generates from the session seed
	req.Seed = ""

	result, err := h.generation.Run(c, req)
	if err != nil {
		if apperrors.StatusCode(apperrors.Kind(err)) >= http.StatusInternalServerError {
			fields := logger.WithContext(c)
			fields["error_kind"] = string(apperrors.Kind(err))
			logger.Error("Generation from form failed", err, fields)
		}
		render(c, http.StatusOK, templates.ErrorMessage(apperrors.Message(err)))
		return
	}

	render(c, http.StatusOK, templates.Result(templates.ResultData{
		ID:            result.ID,
		Melody:        result.Melody(),
		Steps:         result.Generated,
		Events:        len(result.Events),
		DroppedEvents: result.DroppedEvents,
		StopReason:    result.StopReason,
		Links:         result.Artifacts.Links(apihandlers.OutputPrefix),
	}))
}
