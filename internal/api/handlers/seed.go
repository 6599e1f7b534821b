package handlers

import (
	"fmt"
	"net/http"

	"github.com/Conceptual-Machines/melody-api/internal/api/middleware"
	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
	"github.com/Conceptual-Machines/melody-api/internal/music"
	"github.com/gin-gonic/gin"
)

// SeedHandler edits the seed stored in the visitor session
type SeedHandler struct {
	editor *music.SeedEditor
}

func NewSeedHandler(editor *music.SeedEditor) *SeedHandler {
	return &SeedHandler{editor: editor}
}

// AppendRequest adds one pitch or rest of the given quarter length
type AppendRequest struct {
	Pitch    string  `json:"pitch" form:"pitch" binding:"required"`
	Duration float64 `json:"duration" form:"duration" binding:"required"`
}

// SeedResponse is the current session seed
type SeedResponse struct {
	Seed  string `json:"seed"`
	Steps int    `json:"steps"`
}

func newSeedResponse(seed string) SeedResponse {
	return SeedResponse{Seed: seed, Steps: len(splitSymbols(seed))}
}

// GetSeed returns the session seed
func (h *SeedHandler) GetSeed(c *gin.Context) {
	c.JSON(http.StatusOK, newSeedResponse(middleware.SessionSeed(c)))
}

// AppendSymbol appends a pitch/duration pair to the session seed
func (h *SeedHandler) AppendSymbol(c *gin.Context) {
	var req AppendRequest
	if err := c.ShouldBind(&req); err != nil {
		RespondError(c, apperrors.InvalidInput(err, "Choose a pitch and a duration."))
		return
	}

	seed, err := h.Append(c, req)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSeedResponse(seed))
}

// ClearSeed empties the session seed
func (h *SeedHandler) ClearSeed(c *gin.Context) {
	seed, err := h.Clear(c)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSeedResponse(seed))
}

// Append validates req, updates the session and returns the new seed.
// On error the unchanged session seed is returned.
func (h *SeedHandler) Append(c *gin.Context, req AppendRequest) (string, error) {
	current := middleware.SessionSeed(c)
	if !music.IsAcceptedDuration(req.Duration) {
		return current, apperrors.NewInvalidInput(fmt.Sprintf("Duration %g is not one of the offered note lengths.", req.Duration))
	}

	seed, err := h.editor.Append(current, req.Pitch, req.Duration)
	if err != nil {
		return current, err
	}
	if len(seed) > maxSeedLength {
		return current, apperrors.NewInvalidInput("The seed is too long. Clear it or generate from what you have.")
	}

	if err := middleware.SetSessionSeed(c, seed); err != nil {
		return current, apperrors.Storage(err, "The seed could not be saved in your session.")
	}
	return seed, nil
}

// Clear resets the session seed to empty
func (h *SeedHandler) Clear(c *gin.Context) (string, error) {
	seed := h.editor.Clear()
	if err := middleware.SetSessionSeed(c, seed); err != nil {
		return middleware.SessionSeed(c), apperrors.Storage(err, "The seed could not be saved in your session.")
	}
	return seed, nil
}
