package handlers

import (
	"net/http"
	"strings"

	"github.com/Conceptual-Machines/melody-api/internal/music"
	"github.com/gin-gonic/gin"
)

// VocabularyHandler exposes what the seed editor and form can offer
type VocabularyHandler struct {
	vocab          *music.Vocabulary
	sequenceLength int
	minLength      int
	maxLength      int
	defaultLength  int
}

func NewVocabularyHandler(vocab *music.Vocabulary, sequenceLength, minLength, maxLength, defaultLength int) *VocabularyHandler {
	return &VocabularyHandler{
		vocab:          vocab,
		sequenceLength: sequenceLength,
		minLength:      minLength,
		maxLength:      maxLength,
		defaultLength:  defaultLength,
	}
}

type VocabularyResponse struct {
	Size           int                 `json:"size"`
	Pitches        []music.PitchChoice `json:"pitches"`
	Durations      []float64           `json:"durations"`
	DefaultSeed    string              `json:"default_seed"`
	SequenceLength int                 `json:"sequence_length"`
	MinLength      int                 `json:"min_length"`
	MaxLength      int                 `json:"max_length"`
	DefaultLength  int                 `json:"default_length"`
}

// GetVocabulary returns pitch choices, durations and length limits
func (h *VocabularyHandler) GetVocabulary(c *gin.Context) {
	c.JSON(http.StatusOK, VocabularyResponse{
		Size:           h.vocab.Size(),
		Pitches:        h.vocab.PitchChoices(),
		Durations:      music.AcceptedDurations,
		DefaultSeed:    music.DefaultSeed,
		SequenceLength: h.sequenceLength,
		MinLength:      h.minLength,
		MaxLength:      h.maxLength,
		DefaultLength:  h.defaultLength,
	})
}

func splitSymbols(seed string) []string {
	return strings.Fields(seed)
}
