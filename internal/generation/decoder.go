package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
	"github.com/Conceptual-Machines/melody-api/internal/inference"
	"github.com/Conceptual-Machines/melody-api/internal/logger"
	"github.com/Conceptual-Machines/melody-api/internal/models"
	"github.com/Conceptual-Machines/melody-api/internal/music"
)

// DefaultWindow is the number of most recent steps the model sees
const DefaultWindow = 64

// Decoder extends a seed one symbol at a time with a pretrained model
type Decoder struct {
	vocab  *music.Vocabulary
	model  inference.Model
	window int

	// Verbose logs every predicted symbol
	Verbose bool
}

// DecodeResult is the generated melody in symbol form
type DecodeResult struct {
	Symbols    []string
	SeedLength int
	StopReason string
}

// Generated returns the number of symbols added after the seed
func (r *DecodeResult) Generated() int {
	return len(r.Symbols) - r.SeedLength
}

// NewDecoder creates a decoder with the given context window
func NewDecoder(vocab *music.Vocabulary, model inference.Model, window int) *Decoder {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Decoder{vocab: vocab, model: model, window: window}
}

// Window returns the context window length
func (d *Decoder) Window() int {
	return d.window
}

// Decode runs up to length steps. It stops early when the end marker is
// selected; the marker itself is not part of the melody.
func (d *Decoder) Decode(ctx context.Context, seed string, length int, strategy Strategy) (*DecodeResult, error) {
	if strategy == nil {
		strategy = Greedy{}
	}

	melody := strings.Fields(seed)
	ids, err := d.vocab.Encode(seed)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, apperrors.NewInvalidInput("The seed melody is empty. Add at least one note.")
	}

	result := &DecodeResult{SeedLength: len(melody), StopReason: models.StopReasonLength}
	size := d.vocab.Size()

	for step := 0; step < length; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if len(ids) > d.window {
			ids = ids[len(ids)-d.window:]
		}

		probs, err := d.model.Predict(ctx, OneHot(ids, size))
		if err != nil {
			return nil, err
		}
		if len(probs) != size {
			return nil, apperrors.ModelInference(
				fmt.Errorf("model returned %d probabilities for %d symbols", len(probs), size), "")
		}

		next := strategy.Select(probs)
		symbol, ok := d.vocab.Symbol(next)
		if !ok {
			return nil, apperrors.ModelInference(fmt.Errorf("strategy selected id %d outside vocabulary", next), "")
		}
		ids = append(ids, next)

		if d.Verbose {
			logger.Debug("Predicted symbol", logger.Fields{
				"step":        step,
				"symbol":      symbol,
				"probability": probs[next],
			})
		}

		if symbol == music.EndMarker {
			result.StopReason = models.StopReasonEndMarker
			break
		}
		melody = append(melody, symbol)
	}

	result.Symbols = melody
	return result, nil
}

// OneHot encodes ids as rows of a (len(ids), size) matrix
func OneHot(ids []int, size int) [][]float64 {
	rows := make([][]float64, len(ids))
	for i, id := range ids {
		row := make([]float64, size)
		if id >= 0 && id < size {
			row[id] = 1
		}
		rows[i] = row
	}
	return rows
}
